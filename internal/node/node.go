// Package node runs the Maelstrom read-dispatch-write loop: one JSON frame
// per line on the input stream, one reply per line on the output stream.
package node

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"echonode/internal/logging"
	"echonode/internal/protocol"
	"echonode/internal/tap"
)

var ErrHandshake = errors.New("handshake failed")

type IDPolicy string

const (
	// IDCounter gives every outbound message the next value of a counter
	// owned by the node, starting at 1.
	IDCounter IDPolicy = "counter"
	// IDReuse copies the inbound msg_id onto the reply.
	IDReuse IDPolicy = "reuse"
)

type DecodeErrorPolicy string

const (
	DecodeErrorFatal DecodeErrorPolicy = "fatal"
	DecodeErrorReply DecodeErrorPolicy = "reply"
)

type State int

const (
	Uninitialized State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Options struct {
	IDPolicy          IDPolicy
	DecodeErrorPolicy DecodeErrorPolicy
	SessionID         string
	Tap               tap.Tap
	Logger            logging.Logger
}

type Node struct {
	in     *bufio.Reader
	out    *bufio.Writer
	opts   Options
	logger logging.Logger

	state State
	id    string
	peers []string

	lastID   int64
	linesIn  int64
	linesOut int64
}

func New(in io.Reader, out io.Writer, opts Options) *Node {
	if opts.IDPolicy == "" {
		opts.IDPolicy = IDCounter
	}
	if opts.DecodeErrorPolicy == "" {
		opts.DecodeErrorPolicy = DecodeErrorFatal
	}
	if opts.Tap == nil {
		opts.Tap = tap.Nop{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.SessionID != "" {
		logger = logger.With("session_id", opts.SessionID)
	}
	return &Node{
		in:     bufio.NewReader(in),
		out:    bufio.NewWriter(out),
		opts:   opts,
		logger: logger,
	}
}

// ID is the node id assigned by the handshake, or "" before it.
func (n *Node) ID() string { return n.id }

// Peers is the node_ids list from the handshake.
func (n *Node) Peers() []string { return append([]string(nil), n.peers...) }

func (n *Node) State() State { return n.state }

// Run performs the handshake and then serves frames until the input is
// exhausted or ctx is cancelled. It returns nil on a clean end of input or
// cancellation, and the first decode, encode or I/O error otherwise.
func (n *Node) Run(ctx context.Context) error {
	if err := n.handshake(ctx); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			n.logger.Warn("input closed before handshake")
			return nil
		case isStopped(ctx, err):
			n.logger.Info("stopped before handshake", "reason", err.Error())
			return nil
		}
		return err
	}

	for {
		line, err := n.readLine(ctx)
		if errors.Is(err, io.EOF) {
			n.logger.Info("input closed", "lines_in", n.linesIn, "lines_out", n.linesOut)
			return nil
		}
		if isStopped(ctx, err) {
			n.logger.Info("stopped", "reason", err.Error(), "lines_in", n.linesIn, "lines_out", n.linesOut)
			return nil
		}
		if err != nil {
			return err
		}
		if err := n.handleLine(ctx, line); err != nil {
			return err
		}
	}
}

func isStopped(ctx context.Context, err error) bool {
	return err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err())
}

func (n *Node) handshake(ctx context.Context) error {
	line, err := n.readLine(ctx)
	if err != nil {
		return err
	}
	env, err := protocol.DecodeEnvelope(line)
	if err != nil {
		return fmt.Errorf("%w: line %d: %w", ErrHandshake, n.linesIn, err)
	}
	req, ok := env.Body.Payload.(protocol.InitPayload)
	if !ok {
		return fmt.Errorf("%w: line %d: expected %s, got %s", ErrHandshake, n.linesIn, protocol.TypeInit, env.Body.Type())
	}

	n.id = req.NodeID
	if n.id == "" {
		n.id = env.Dest
	}
	n.peers = append([]string(nil), req.NodeIDs...)
	n.state = Running
	n.logger = n.logger.With("node_id", n.id)
	n.logger.Info("node initialized", "peers", len(n.peers), "msg_id_policy", string(n.opts.IDPolicy))

	reply := env.Reply(n.allocID(&env.Body.MsgID), protocol.InitOkPayload{})
	return n.send(ctx, reply)
}

func (n *Node) handleLine(ctx context.Context, line []byte) error {
	env, err := protocol.DecodeEnvelope(line)
	if err != nil {
		return n.rejectLine(ctx, line, err)
	}
	n.logger.Debug("frame received", "line", n.linesIn, "frame", env.String())
	if env.Dest != n.id {
		n.logger.Warn("frame addressed to another node", "line", n.linesIn, "dest", env.Dest)
	}

	reply, err := n.dispatch(env)
	if err != nil {
		return err
	}
	if reply == nil {
		return nil
	}
	return n.send(ctx, *reply)
}

func (n *Node) dispatch(env *protocol.Envelope) (*protocol.Envelope, error) {
	switch p := env.Body.Payload.(type) {
	case protocol.InitPayload, protocol.InitOkPayload:
		n.logger.Debug("ignoring handshake traffic", "type", env.Body.Type(), "src", env.Src)
		return nil, nil
	case protocol.EchoPayload:
		reply := env.Reply(n.allocID(&env.Body.MsgID), protocol.EchoOkPayload{Echo: p.Echo})
		return &reply, nil
	case protocol.EchoOkPayload:
		n.logger.Debug("ignoring echo_ok", "src", env.Src, "msg_id", env.Body.MsgID)
		return nil, nil
	case protocol.ErrorPayload:
		n.logger.Warn("error received", "src", env.Src, "code", p.Code, "text", p.Text)
		return nil, nil
	default:
		return nil, fmt.Errorf("unhandled body type %q", env.Body.Type())
	}
}

// rejectLine applies the decode error policy to a line that failed to decode.
func (n *Node) rejectLine(ctx context.Context, line []byte, cause error) error {
	if n.opts.DecodeErrorPolicy != DecodeErrorReply {
		return fmt.Errorf("decode line %d: %w", n.linesIn, cause)
	}
	hdr, ok := protocol.DecodeHeader(line)
	if !ok {
		n.logger.Warn("dropping undecodable line", "line", n.linesIn, "err", cause.Error())
		return nil
	}

	code := protocol.CodeMalformedRequest
	if errors.Is(cause, protocol.ErrUnknownType) {
		code = protocol.CodeNotSupported
	}
	n.logger.Warn("rejecting line", "line", n.linesIn, "src", hdr.Src, "code", code, "err", cause.Error())
	return n.send(ctx, protocol.Envelope{
		Src:  hdr.Dest,
		Dest: hdr.Src,
		Body: protocol.Body{
			MsgID:     n.allocID(hdr.MsgID),
			InReplyTo: hdr.MsgID,
			Payload:   protocol.ErrorPayload{Code: code, Text: cause.Error()},
		},
	})
}

// allocID picks the msg_id for an outbound message answering inbound.
// inbound may be nil when the request's msg_id is unknown.
func (n *Node) allocID(inbound *int64) int64 {
	if n.opts.IDPolicy == IDReuse && inbound != nil {
		return *inbound
	}
	n.lastID++
	return n.lastID
}

type readResult struct {
	line []byte
	err  error
}

// readLine blocks for the next line or until ctx is done. The read itself
// runs on its own goroutine so a cancelled ctx is noticed while stdin is
// idle; after cancellation the reader is never touched again.
func (n *Node) readLine(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	done := make(chan readResult, 1)
	go func() {
		line, err := n.in.ReadBytes('\n')
		done <- readResult{line: line, err: err}
	}()

	var res readResult
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-done:
	}

	line, err := res.line, res.err
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read line %d: %w", n.linesIn+1, err)
	}
	n.linesIn++
	line = bytes.TrimRight(line, "\r\n")
	n.publish(ctx, tap.Inbound, n.linesIn, line)
	return line, nil
}

func (n *Node) send(ctx context.Context, env protocol.Envelope) error {
	data, err := protocol.EncodeEnvelope(env)
	if err != nil {
		return fmt.Errorf("encode %s reply: %w", env.Body.Type(), err)
	}
	if _, err := n.out.Write(data); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	if err := n.out.WriteByte('\n'); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	if err := n.out.Flush(); err != nil {
		return fmt.Errorf("flush reply: %w", err)
	}
	n.linesOut++
	n.logger.Debug("frame sent", "frame", env.String())
	n.publish(ctx, tap.Outbound, n.linesOut, data)
	return nil
}

func (n *Node) publish(ctx context.Context, dir tap.Direction, seq int64, line []byte) {
	err := n.opts.Tap.Publish(ctx, tap.Frame{
		SessionID: n.opts.SessionID,
		NodeID:    n.id,
		Direction: dir,
		Seq:       seq,
		Line:      string(line),
		Ts:        time.Now().UnixMilli(),
	})
	if err != nil {
		n.logger.Warn("tap publish failed", "direction", string(dir), "seq", seq, "err", err.Error())
	}
}
