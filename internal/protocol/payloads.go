package protocol

// Payload is one variant of the body tagged union. The set is closed: only
// the types in this file implement it.
type Payload interface {
	MessageType() string
	isPayload()
}

// InitPayload is the handshake request. Maelstrom always sends node_id and
// node_ids, but neither is required to decode.
type InitPayload struct {
	NodeID  string   `json:"node_id,omitempty"`
	NodeIDs []string `json:"node_ids,omitempty"`
}

type InitOkPayload struct{}

type EchoPayload struct {
	Echo string `json:"echo"`
}

type EchoOkPayload struct {
	Echo string `json:"echo"`
}

type ErrorPayload struct {
	Code int    `json:"code"`
	Text string `json:"text,omitempty"`
}

func (InitPayload) MessageType() string   { return TypeInit }
func (InitOkPayload) MessageType() string { return TypeInitOk }
func (EchoPayload) MessageType() string   { return TypeEcho }
func (EchoOkPayload) MessageType() string { return TypeEchoOk }
func (ErrorPayload) MessageType() string  { return TypeError }

func (InitPayload) isPayload()   {}
func (InitOkPayload) isPayload() {}
func (EchoPayload) isPayload()   {}
func (EchoOkPayload) isPayload() {}
func (ErrorPayload) isPayload()  {}
