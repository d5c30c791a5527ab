package zusi

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

const (
	nodeStart uint32 = 0x00000000
	nodeEnd   uint32 = 0xFFFFFFFF

	// MaxAttributeSize bounds a single attribute value.
	MaxAttributeSize = 1 << 20

	// MaxDepth bounds node nesting.
	MaxDepth = 64
)

var (
	// ErrMalformedFrame indicates a byte stream that is not a valid node encoding.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrFrameTooLarge indicates an attribute above MaxAttributeSize.
	ErrFrameTooLarge = errors.New("frame too large")
)

// Encoder writes nodes to an underlying writer. Each node is flushed with
// a single Write call.
type Encoder struct {
	w   io.Writer
	mu  sync.Mutex
	buf bytes.Buffer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes n and all of its descendants.
func (e *Encoder) Encode(n *Node) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.buf.Reset()
	if err := appendNode(&e.buf, n, 0); err != nil {
		return err
	}

	if _, err := e.w.Write(e.buf.Bytes()); err != nil {
		return fmt.Errorf("writing node 0x%04X: %w", n.ID, err)
	}

	return nil
}

// MarshalNode returns the wire encoding of n.
func MarshalNode(n *Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := appendNode(&buf, n, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func appendNode(buf *bytes.Buffer, n *Node, depth int) error {
	if depth > MaxDepth {
		return fmt.Errorf("%w: nesting deeper than %d", ErrMalformedFrame, MaxDepth)
	}

	var scratch [6]byte
	binary.LittleEndian.PutUint32(scratch[:4], nodeStart)
	binary.LittleEndian.PutUint16(scratch[4:], n.ID)
	buf.Write(scratch[:6])

	for _, a := range n.Attributes {
		if len(a.Value) > MaxAttributeSize {
			return fmt.Errorf("%w: attribute 0x%04X has %d bytes", ErrFrameTooLarge, a.ID, len(a.Value))
		}
		binary.LittleEndian.PutUint32(scratch[:4], uint32(2+len(a.Value)))
		binary.LittleEndian.PutUint16(scratch[4:], a.ID)
		buf.Write(scratch[:6])
		buf.Write(a.Value)
	}

	for _, c := range n.Children {
		if err := appendNode(buf, c, depth+1); err != nil {
			return err
		}
	}

	binary.LittleEndian.PutUint32(scratch[:4], nodeEnd)
	buf.Write(scratch[:4])

	return nil
}

// Decoder reads nodes from an underlying reader.
type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Decode reads the next top-level node. It returns io.EOF only when the
// stream ends cleanly between nodes.
func (d *Decoder) Decode() (*Node, error) {
	marker, err := d.uint32()
	if err != nil {
		return nil, err
	}
	if marker != nodeStart {
		return nil, fmt.Errorf("%w: expected node start, got 0x%08X", ErrMalformedFrame, marker)
	}

	n, err := d.node(0)
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

// node reads the remainder of a node whose start marker was consumed.
func (d *Decoder) node(depth int) (*Node, error) {
	if depth > MaxDepth {
		return nil, fmt.Errorf("%w: nesting deeper than %d", ErrMalformedFrame, MaxDepth)
	}

	id, err := d.uint16()
	if err != nil {
		return nil, err
	}
	n := &Node{ID: id}

	for {
		length, err := d.uint32()
		if err != nil {
			return nil, err
		}

		switch {
		case length == nodeEnd:
			return n, nil
		case length == nodeStart:
			c, err := d.node(depth + 1)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, c)
		case length < 2:
			return nil, fmt.Errorf("%w: attribute length %d in node 0x%04X", ErrMalformedFrame, length, id)
		case length-2 > MaxAttributeSize:
			return nil, fmt.Errorf("%w: attribute of %d bytes in node 0x%04X", ErrFrameTooLarge, length-2, id)
		default:
			aid, err := d.uint16()
			if err != nil {
				return nil, err
			}
			value := make([]byte, length-2)
			if _, err := io.ReadFull(d.r, value); err != nil {
				return nil, err
			}
			n.Attributes = append(n.Attributes, Attribute{ID: aid, Value: value})
		}
	}
}

func (d *Decoder) uint32() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func (d *Decoder) uint16() (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}
