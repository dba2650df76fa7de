package gateway

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"signal-systemv1/internal/model"

	"github.com/gorilla/websocket"
)

// Client represents a single WebSocket peer.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Subscription filter; nil instruments means all.
	subMu          sync.RWMutex
	instruments    map[string]bool
	actionableOnly bool
}

// ID returns the client's connection id.
func (c *Client) ID() string { return c.id }

// wants reports whether a signal passes this client's subscription filter.
func (c *Client) wants(instrument string, kind model.SignalKind) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	if c.actionableOnly && !kind.Actionable() {
		return false
	}
	return c.instruments == nil || c.instruments[instrument]
}

func (c *Client) sendInitialState(lastTS string) {
	var cutoff time.Time
	if lastTS != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, lastTS); err == nil {
			cutoff = parsed
		}
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	for channel, entry := range c.hub.latest {
		if !cutoff.IsZero() && !entry.TS.After(cutoff) {
			continue
		}

		envelope, _ := json.Marshal(map[string]interface{}{
			"channel":     channel,
			"data":        entry.Data,
			"ts":          entry.TS.Format(time.RFC3339Nano),
			"channel_seq": entry.Seq,
			"initial":     true,
		})
		select {
		case c.send <- envelope:
		default:
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			// Coalesce queued messages into one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				w.Write(next)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Printf("[gateway] ws client %s disconnected", c.id)
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var base struct {
			Type string `json:"type"`
			Ping int64  `json:"ping"`
		}
		if json.Unmarshal(msg, &base) != nil {
			continue
		}

		switch base.Type {
		case "SUBSCRIBE":
			var subMsg SubscribeMsg
			if err := json.Unmarshal(msg, &subMsg); err != nil {
				SendError(c, "", "invalid SUBSCRIBE: "+err.Error())
				continue
			}
			c.handleSubscribe(subMsg)

		case "UNSUBSCRIBE":
			var unsubMsg UnsubscribeMsg
			if err := json.Unmarshal(msg, &unsubMsg); err != nil {
				continue
			}
			c.handleUnsubscribe(unsubMsg)

		default:
			if base.Ping > 0 {
				pong, _ := json.Marshal(map[string]interface{}{
					"type":      "pong",
					"ping":      base.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
				select {
				case c.send <- pong:
				default:
				}
			}
		}
	}
}

// handleSubscribe replaces the client's filter and replies with a snapshot
// of the latest signal for each subscribed instrument.
func (c *Client) handleSubscribe(msg SubscribeMsg) {
	c.subMu.Lock()
	if len(msg.Instruments) == 0 {
		c.instruments = nil
	} else {
		c.instruments = make(map[string]bool, len(msg.Instruments))
		for _, inst := range msg.Instruments {
			c.instruments[inst] = true
		}
	}
	c.actionableOnly = msg.ActionableOnly
	c.subMu.Unlock()

	snap := SnapshotResponse{Type: "SNAPSHOT", ReqID: msg.ReqID, Client: c.id, Signals: []SignalDTO{}}
	for _, sig := range c.hub.LatestSignals("") {
		if c.wants(sig.Instrument, sig.Kind) {
			snap.Signals = append(snap.Signals, NewSignalDTO("", sig))
		}
	}
	SendJSON(c, snap)

	log.Printf("[gateway] client %s subscribed: instruments=%v actionable_only=%v",
		c.id, msg.Instruments, msg.ActionableOnly)
}

// handleUnsubscribe removes instruments from an explicit subscription.
func (c *Client) handleUnsubscribe(msg UnsubscribeMsg) {
	c.subMu.Lock()
	if c.instruments != nil {
		for _, inst := range msg.Instruments {
			delete(c.instruments, inst)
		}
	}
	c.subMu.Unlock()

	log.Printf("[gateway] client %s unsubscribed: instruments=%v", c.id, msg.Instruments)
}
