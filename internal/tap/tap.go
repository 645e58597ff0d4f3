// Package tap mirrors protocol frames to an external observer without
// touching the protocol stream itself.
package tap

import (
	"context"
	"encoding/json"
)

type Direction string

const (
	Inbound  Direction = "in"
	Outbound Direction = "out"
)

type Frame struct {
	SessionID string    `json:"session_id"`
	NodeID    string    `json:"node_id,omitempty"`
	Direction Direction `json:"direction"`
	Seq       int64     `json:"seq"`
	Line      string    `json:"line"`
	Ts        int64     `json:"ts"`
}

func (f Frame) Marshal() ([]byte, error) {
	return json.Marshal(f)
}

type Tap interface {
	Publish(ctx context.Context, f Frame) error
	Close() error
}

// Nop is the tap used when no observer is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Frame) error { return nil }
func (Nop) Close() error                         { return nil }
