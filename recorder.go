package doorpanel

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"go.tigermatt.uk/doorpanel/zusi"
)

// Direction of a recorded message, seen from this client.
type Direction uint8

const (
	Inbound  Direction = 0
	Outbound Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Inbound:
		return "IN"
	case Outbound:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Record is one captured message.
type Record struct {
	Timestamp time.Time  `cbor:"1,keyasint"`
	Session   string     `cbor:"2,keyasint,omitempty"`
	Direction Direction  `cbor:"3,keyasint"`
	Node      *zusi.Node `cbor:"4,keyasint"`
}

var (
	recEncMode cbor.EncMode
	recDecMode cbor.DecMode
)

func init() {
	var err error

	recEncMode, err = cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("record encoder mode: %v", err))
	}

	recDecMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyQuiet,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("record decoder mode: %v", err))
	}
}

// Recorder appends records to Dest as a CBOR stream. It is safe for use
// by the receiver and the translator at the same time.
type Recorder struct {
	Dest    io.Writer
	Session string

	mu   sync.Mutex
	enc  *cbor.Encoder
	once sync.Once
}

func (r *Recorder) Record(dir Direction, n *zusi.Node) error {
	r.init()

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.enc.Encode(Record{
		Timestamp: time.Now(),
		Session:   r.Session,
		Direction: dir,
		Node:      n,
	})
}

func (r *Recorder) init() {
	r.once.Do(func() {
		r.enc = recEncMode.NewEncoder(r.Dest)
	})
}

// ReadIn decodes records from r onto out until r is exhausted. It closes
// out when done.
func ReadIn(out chan<- Record, r io.Reader) error {
	defer close(out)

	dec := recDecMode.NewDecoder(r)

	for {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("while decoding: %w", err)
		}

		out <- rec
	}
}
