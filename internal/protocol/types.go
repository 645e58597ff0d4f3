package protocol

const (
	TypeInit   = "init"
	TypeInitOk = "init_ok"
	TypeEcho   = "echo"
	TypeEchoOk = "echo_ok"
	TypeError  = "error"
)

// Maelstrom error codes used in error bodies.
const (
	CodeNotSupported     = 10
	CodeMalformedRequest = 12
)
