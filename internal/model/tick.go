package model

import (
	"encoding/json"
	"time"
)

// Tick is one timestamped price observation for an instrument.
// High, Low and Close are optional; zero values degrade to Price.
type Tick struct {
	Instrument string    `json:"instrument"`
	Price      float64   `json:"price"`
	High       float64   `json:"high,omitempty"`
	Low        float64   `json:"low,omitempty"`
	Close      float64   `json:"close,omitempty"`
	TS         time.Time `json:"ts"`
}

// HighOrPrice returns High, or Price when the feed carries no OHLC.
func (t *Tick) HighOrPrice() float64 {
	if t.High == 0 {
		return t.Price
	}
	return t.High
}

// LowOrPrice returns Low, or Price when the feed carries no OHLC.
func (t *Tick) LowOrPrice() float64 {
	if t.Low == 0 {
		return t.Price
	}
	return t.Low
}

// CloseOrPrice returns Close, or Price when the feed carries no OHLC.
func (t *Tick) CloseOrPrice() float64 {
	if t.Close == 0 {
		return t.Price
	}
	return t.Close
}

// PubSubChannel returns the Redis channel ticks for this instrument arrive on.
func (t *Tick) PubSubChannel() string {
	return "pub:tick:" + t.Instrument
}

// JSON returns the JSON-encoded tick (ignoring errors for hot-path usage).
func (t *Tick) JSON() []byte {
	b, _ := json.Marshal(t)
	return b
}
