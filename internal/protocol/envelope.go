package protocol

import (
	"errors"
	"fmt"
)

var ErrInvalidEnvelope = errors.New("invalid envelope")

type Envelope struct {
	Src  string `json:"src"`
	Dest string `json:"dest"`
	Body Body   `json:"body"`
}

func (e Envelope) ValidateBasic() error {
	if e.Body.Payload == nil {
		return fmt.Errorf("%w: body is required", ErrInvalidEnvelope)
	}
	return nil
}

func (e Envelope) String() string {
	return fmt.Sprintf("%s from %s to %s (msg_id=%d)", e.Body.Type(), e.Src, e.Dest, e.Body.MsgID)
}

// Reply builds the answer to e: src and dest swapped, in_reply_to set to e's
// msg_id. The caller picks the reply's own msg_id.
func (e Envelope) Reply(msgID int64, payload Payload) Envelope {
	inReplyTo := e.Body.MsgID
	return Envelope{
		Src:  e.Dest,
		Dest: e.Src,
		Body: Body{
			MsgID:     msgID,
			InReplyTo: &inReplyTo,
			Payload:   payload,
		},
	}
}

func DecodeEnvelope(data []byte) (*Envelope, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return nil, err
	}
	src, err := obj.requireString("src")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	dest, err := obj.requireString("dest")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	if !obj.present("body") {
		return nil, fmt.Errorf("%w: body is required", ErrInvalidEnvelope)
	}
	bodyObj, err := decodeObject(obj["body"])
	if err != nil {
		return nil, fmt.Errorf("%w: body: %w", ErrInvalidEnvelope, err)
	}
	body, err := decodeBody(bodyObj)
	if err != nil {
		return nil, err
	}
	env := Envelope{Src: src, Dest: dest, Body: body}
	if err := env.ValidateBasic(); err != nil {
		return nil, err
	}
	return &env, nil
}

func EncodeEnvelope(env Envelope) ([]byte, error) {
	if err := env.ValidateBasic(); err != nil {
		return nil, err
	}
	return marshalJSON(env)
}

// Header is the routing part of a frame that could not be fully decoded.
type Header struct {
	Src   string
	Dest  string
	MsgID *int64
}

// DecodeHeader recovers src, dest and msg_id from a frame whose body failed
// to decode. ok is false when src or dest cannot be recovered.
func DecodeHeader(data []byte) (Header, bool) {
	obj, err := decodeObject(data)
	if err != nil {
		return Header{}, false
	}
	src, err := obj.requireString("src")
	if err != nil {
		return Header{}, false
	}
	dest, err := obj.requireString("dest")
	if err != nil {
		return Header{}, false
	}
	h := Header{Src: src, Dest: dest}
	if bodyObj, err := decodeObject(obj["body"]); err == nil {
		if msgID, err := bodyObj.requireInt("msg_id"); err == nil {
			h.MsgID = &msgID
		}
	}
	return h, true
}
