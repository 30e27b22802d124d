package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ReadyType is the type tag of the readiness announcement.
const ReadyType = "ohifReady"

var ErrUnknownMessage = errors.New("bridge: unknown message")

type Kind int

const (
	KindReady Kind = iota + 1
	KindDelivery
)

func (k Kind) String() string {
	switch k {
	case KindReady:
		return "ready"
	case KindDelivery:
		return "delivery"
	}
	return "unknown"
}

// Message is either a readiness announcement or a delivery of blobs, in
// the order the sender listed them.
type Message struct {
	Kind  Kind
	Blobs [][]byte
}

func Ready() Message { return Message{Kind: KindReady} }

func Delivery(blobs [][]byte) Message {
	return Message{Kind: KindDelivery, Blobs: blobs}
}

type wireMessage struct {
	Type  string   `json:"type,omitempty"`
	Blobs [][]byte `json:"blobs,omitempty"`
}

// MarshalJSON writes the tagged form. Blobs are base64 strings.
func (m Message) MarshalJSON() ([]byte, error) {
	switch m.Kind {
	case KindReady:
		return json.Marshal(wireMessage{Type: ReadyType})
	case KindDelivery:
		blobs := m.Blobs
		if blobs == nil {
			blobs = [][]byte{}
		}
		return json.Marshal(struct {
			Type  string   `json:"type"`
			Blobs [][]byte `json:"blobs"`
		}{Type: "delivery", Blobs: blobs})
	}
	return nil, fmt.Errorf("marshal kind %d: %w", m.Kind, ErrUnknownMessage)
}

// Decode validates an inbound payload. Accepted shapes:
//
//	{"type":"ohifReady"}
//	{"type":"<anything else>","blobs":["<base64>", ...]}
//	["<base64>", ...]
//
// Anything else yields ErrUnknownMessage.
func Decode(raw []byte) (Message, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Message{}, fmt.Errorf("empty payload: %w", ErrUnknownMessage)
	}
	if raw[0] == '[' {
		var blobs [][]byte
		if err := json.Unmarshal(raw, &blobs); err != nil {
			return Message{}, fmt.Errorf("decode blob list: %w", errors.Join(ErrUnknownMessage, err))
		}
		return Delivery(blobs), nil
	}

	var probe struct {
		Type  *string          `json:"type"`
		Blobs *json.RawMessage `json:"blobs"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", errors.Join(ErrUnknownMessage, err))
	}
	if probe.Type != nil && *probe.Type == ReadyType {
		return Ready(), nil
	}
	if probe.Blobs == nil {
		return Message{}, ErrUnknownMessage
	}
	var blobs [][]byte
	if err := json.Unmarshal(*probe.Blobs, &blobs); err != nil {
		return Message{}, fmt.Errorf("decode blobs: %w", errors.Join(ErrUnknownMessage, err))
	}
	return Delivery(blobs), nil
}
