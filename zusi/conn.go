package zusi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Node ids used by the connection handshake and by cab-panel clients.
const (
	IDConnection uint16 = 0x0001 // top-level: connection setup
	IDHello      uint16 = 0x0001
	IDAckHello   uint16 = 0x0002

	IDClientApp     uint16 = 0x0002 // top-level: cab-panel application
	IDNeededData    uint16 = 0x0003
	IDAckNeededData uint16 = 0x0004
	IDCabData       uint16 = 0x000A // DATA_FTD
	IDOperation     uint16 = 0x000B // DATA_OPERATION
	IDProgramData   uint16 = 0x000C // DATA_PROG
	IDInput         uint16 = 0x010A // INPUT command

	// ProtocolVersion is the Zusi 3 TCP protocol revision this client speaks.
	ProtocolVersion uint16 = 2

	// ClientTypeCab announces the client as a cab panel.
	ClientTypeCab uint16 = 2

	// DefaultAddress is where a local Zusi instance listens.
	DefaultAddress = "127.0.0.1:1436"

	DialTimeout      = 5 * time.Second
	HandshakeTimeout = 10 * time.Second
)

// ErrUnexpectedReply is returned when the server answers a handshake step
// with a node of the wrong shape.
var ErrUnexpectedReply = errors.New("unexpected reply")

// HandshakeError reports a handshake step rejected by the server.
type HandshakeError struct {
	Step   string
	Result uint8
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("%s rejected by server (result %d)", e.Step, e.Result)
}

// Conn is a connection to a Zusi server. After the handshake the read and
// write sides are handed out separately through Reader and Writer.
type Conn struct {
	conn net.Conn
	dec  *Decoder
	enc  *Encoder
}

// Dial connects to addr.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	d := net.Dialer{Timeout: DialTimeout}
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}

	return NewConn(c), nil
}

// NewConn wraps an established connection.
func NewConn(c net.Conn) *Conn {
	return &Conn{conn: c, dec: NewDecoder(c), enc: NewEncoder(c)}
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

// Reader returns the receive side of the connection.
func (c *Conn) Reader() *NodeReader {
	return &NodeReader{dec: c.dec}
}

// Writer returns the send side of the connection.
func (c *Conn) Writer() *NodeWriter {
	return &NodeWriter{enc: c.enc}
}

// NodeReader can only receive.
type NodeReader struct {
	dec *Decoder
}

// Receive blocks until the next node arrives.
func (r *NodeReader) Receive() (*Node, error) {
	return r.dec.Decode()
}

// NodeWriter can only send.
type NodeWriter struct {
	enc *Encoder
}

func (w *NodeWriter) Send(n *Node) error {
	return w.enc.Encode(n)
}

type HelloRequest struct {
	ClientName    string
	ClientVersion string
}

// ServerInfo is what the server reports in its hello acknowledgement.
type ServerInfo struct {
	Version        string
	ConnectionInfo string
}

// Hello announces the client and waits for the server's acknowledgement.
func (c *Conn) Hello(ctx context.Context, req HelloRequest) (ServerInfo, error) {
	msg := NewNode(IDConnection,
		NewNode(IDHello).With(
			Uint16Attr(0x0001, ProtocolVersion),
			Uint16Attr(0x0002, ClientTypeCab),
			TextAttr(0x0003, req.ClientName),
			TextAttr(0x0004, req.ClientVersion),
		),
	)

	reply, err := c.roundTrip(ctx, "HELLO", msg)
	if err != nil {
		return ServerInfo{}, err
	}

	ack, ok := reply.Child(IDAckHello)
	if reply.ID != IDConnection || !ok {
		return ServerInfo{}, fmt.Errorf("HELLO: %w: node 0x%04X", ErrUnexpectedReply, reply.ID)
	}

	result, ok := ack.Uint8(0x0003)
	if !ok {
		return ServerInfo{}, fmt.Errorf("HELLO: %w: missing result", ErrUnexpectedReply)
	}
	if result != 0 {
		return ServerInfo{}, &HandshakeError{Step: "HELLO", Result: result}
	}

	var info ServerInfo
	info.Version, _ = ack.Text(0x0001)
	info.ConnectionInfo, _ = ack.Text(0x0002)
	return info, nil
}

// NeededDataRequest lists the data a client subscribes to.
type NeededDataRequest struct {
	CabData     []uint16
	Operation   bool
	ProgramData []uint16
}

// NeededData registers the client's subscriptions.
func (c *Conn) NeededData(ctx context.Context, req NeededDataRequest) error {
	needed := NewNode(IDNeededData)
	if len(req.CabData) > 0 {
		needed.Children = append(needed.Children, idList(IDCabData, req.CabData))
	}
	if req.Operation {
		needed.Children = append(needed.Children, NewNode(IDOperation))
	}
	if len(req.ProgramData) > 0 {
		needed.Children = append(needed.Children, idList(IDProgramData, req.ProgramData))
	}

	reply, err := c.roundTrip(ctx, "NEEDED_DATA", NewNode(IDClientApp, needed))
	if err != nil {
		return err
	}

	ack, ok := reply.Child(IDAckNeededData)
	if reply.ID != IDClientApp || !ok {
		return fmt.Errorf("NEEDED_DATA: %w: node 0x%04X", ErrUnexpectedReply, reply.ID)
	}

	result, ok := ack.Uint8(0x0001)
	if !ok {
		return fmt.Errorf("NEEDED_DATA: %w: missing result", ErrUnexpectedReply)
	}
	if result != 0 {
		return &HandshakeError{Step: "NEEDED_DATA", Result: result}
	}

	return nil
}

func idList(id uint16, ids []uint16) *Node {
	n := NewNode(id)
	for _, v := range ids {
		n.Attributes = append(n.Attributes, Uint16Attr(0x0001, v))
	}
	return n
}

func (c *Conn) roundTrip(ctx context.Context, step string, msg *Node) (*Node, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(HandshakeTimeout)
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%s: %w", step, err)
	}
	defer c.conn.SetDeadline(time.Time{})

	if err := c.enc.Encode(msg); err != nil {
		return nil, fmt.Errorf("sending %s: %w", step, err)
	}

	reply, err := c.dec.Decode()
	if err != nil {
		return nil, fmt.Errorf("waiting for %s acknowledgement: %w", step, err)
	}

	return reply, nil
}
