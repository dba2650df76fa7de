package gateway

import (
	"encoding/json"
	"log"
	"strings"
)

// ── WS Protocol Message Types ──

// SubscribeMsg is the client → server SUBSCRIBE request. An empty
// Instruments list subscribes to every instrument.
type SubscribeMsg struct {
	Type           string   `json:"type"`  // "SUBSCRIBE"
	ReqID          string   `json:"reqId"` // client-generated request ID
	Instruments    []string `json:"instruments"`
	ActionableOnly bool     `json:"actionable_only"` // skip HOLD signals
}

// UnsubscribeMsg is the client → server UNSUBSCRIBE request.
type UnsubscribeMsg struct {
	Type        string   `json:"type"` // "UNSUBSCRIBE"
	ReqID       string   `json:"reqId"`
	Instruments []string `json:"instruments"`
}

// SnapshotResponse is the server → client SNAPSHOT with the latest signal
// of every subscribed instrument.
type SnapshotResponse struct {
	Type    string      `json:"type"` // "SNAPSHOT"
	ReqID   string      `json:"reqId"`
	Client  string      `json:"client"`
	Signals []SignalDTO `json:"signals"`
}

// ErrorResponse is the server → client ERROR message.
type ErrorResponse struct {
	Type  string `json:"type"` // "ERROR"
	ReqID string `json:"reqId,omitempty"`
	Error string `json:"error"`
}

// instrumentFromChannel extracts the instrument from "pub:signal:{instrument}".
func instrumentFromChannel(channel string) (string, bool) {
	inst := strings.TrimPrefix(channel, "pub:signal:")
	if inst == channel || inst == "" {
		return "", false
	}
	return inst, true
}

// SendJSON marshals and sends a message to the client's send channel.
func SendJSON(c *Client, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[gateway] json marshal error: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("[gateway] client %s send buffer full, dropping message", c.id)
	}
}

// SendError sends an error response to the client.
func SendError(c *Client, reqID, errMsg string) {
	SendJSON(c, ErrorResponse{
		Type:  "ERROR",
		ReqID: reqID,
		Error: errMsg,
	})
}
