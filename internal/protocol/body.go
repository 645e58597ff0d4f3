package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMissingType  = errors.New("body type is required")
	ErrUnknownType  = errors.New("unknown body type")
	ErrMissingField = errors.New("missing required field")
)

// Body is the message body: the common correlation fields flattened together
// with exactly one Payload variant, discriminated by "type" on the wire.
type Body struct {
	MsgID     int64
	InReplyTo *int64
	Payload   Payload
}

// Type returns the wire discriminant, or "" when no payload is set.
func (b Body) Type() string {
	if b.Payload == nil {
		return ""
	}
	return b.Payload.MessageType()
}

func (b *Body) UnmarshalJSON(data []byte) error {
	obj, err := decodeObject(data)
	if err != nil {
		return err
	}
	decoded, err := decodeBody(obj)
	if err != nil {
		return err
	}
	*b = decoded
	return nil
}

func decodeBody(obj object) (Body, error) {
	if !obj.present("type") {
		return Body{}, ErrMissingType
	}
	typ, err := obj.requireString("type")
	if err != nil {
		return Body{}, err
	}
	if typ == "" {
		return Body{}, ErrMissingType
	}
	payload, err := decodePayload(typ, obj)
	if err != nil {
		return Body{}, err
	}
	msgID, err := obj.requireInt("msg_id")
	if err != nil {
		return Body{}, err
	}
	inReplyTo, err := obj.optionalInt("in_reply_to")
	if err != nil {
		return Body{}, err
	}
	return Body{MsgID: msgID, InReplyTo: inReplyTo, Payload: payload}, nil
}

func (b Body) MarshalJSON() ([]byte, error) {
	if b.Payload == nil {
		return nil, ErrMissingType
	}
	raw, err := marshalJSON(b.Payload)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	fields["type"] = mustMarshalJSON(b.Payload.MessageType())
	fields["msg_id"] = mustMarshalJSON(b.MsgID)
	if b.InReplyTo != nil {
		fields["in_reply_to"] = mustMarshalJSON(*b.InReplyTo)
	}
	return marshalJSON(fields)
}

func decodePayload(typ string, obj object) (Payload, error) {
	switch typ {
	case TypeInit:
		nodeID, err := obj.optionalString("node_id")
		if err != nil {
			return nil, err
		}
		nodeIDs, err := obj.optionalStrings("node_ids")
		if err != nil {
			return nil, err
		}
		return InitPayload{NodeID: nodeID, NodeIDs: nodeIDs}, nil
	case TypeInitOk:
		return InitOkPayload{}, nil
	case TypeEcho:
		echo, err := obj.requireString("echo")
		if err != nil {
			return nil, err
		}
		return EchoPayload{Echo: echo}, nil
	case TypeEchoOk:
		echo, err := obj.requireString("echo")
		if err != nil {
			return nil, err
		}
		return EchoOkPayload{Echo: echo}, nil
	case TypeError:
		code, err := obj.requireInt("code")
		if err != nil {
			return nil, err
		}
		text, err := obj.optionalString("text")
		if err != nil {
			return nil, err
		}
		return ErrorPayload{Code: int(code), Text: text}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
}

func mustMarshalJSON(v any) []byte {
	b, err := marshalJSON(v)
	if err != nil {
		panic(err)
	}
	return b
}
