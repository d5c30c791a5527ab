package main

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.tigermatt.uk/doorpanel"
	"go.tigermatt.uk/doorpanel/zusi"
)

// How the fake simulator ends its stream after the scripted events.
type ending int

const (
	endEOF ending = iota
	endGarbage
	endHold
	endClose
)

// fakeZusi is a scripted simulator: it answers the handshake, sends its
// events, ends the stream and then records every batch the client sends
// until the client goes away.
type fakeZusi struct {
	helloResult uint8
	events      []*zusi.Node
	end         ending

	requests chan *zusi.Node
	batches  chan *zusi.Node
	first    chan struct{}
	once     sync.Once
}

func newFakeZusi(helloResult uint8, end ending, events ...*zusi.Node) *fakeZusi {
	return &fakeZusi{
		helloResult: helloResult,
		events:      events,
		end:         end,
		requests:    make(chan *zusi.Node, 2),
		batches:     make(chan *zusi.Node, 64),
		first:       make(chan struct{}),
	}
}

// listen serves one client on a loopback listener and returns its address.
func (f *fakeZusi) listen(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(f.batches)
			return
		}
		f.serve(c)
	}()

	return ln.Addr().String()
}

func (f *fakeZusi) serve(c net.Conn) {
	defer close(f.batches)
	defer c.Close()

	dec := zusi.NewDecoder(c)
	enc := zusi.NewEncoder(c)

	req, err := dec.Decode()
	if err != nil {
		return
	}
	f.requests <- req
	if err := enc.Encode(ackHello(f.helloResult)); err != nil || f.helloResult != 0 {
		return
	}

	req, err = dec.Decode()
	if err != nil {
		return
	}
	f.requests <- req
	if err := enc.Encode(ackNeededData()); err != nil {
		return
	}

	for _, ev := range f.events {
		if err := enc.Encode(ev); err != nil {
			return
		}
	}

	switch f.end {
	case endEOF:
		if tcp, ok := c.(*net.TCPConn); ok {
			tcp.CloseWrite()
		}
	case endGarbage:
		if _, err := c.Write([]byte{0x01, 0x02, 0x03, 0x04}); err != nil {
			return
		}
	case endClose:
		return
	case endHold:
	}

	for {
		batch, err := dec.Decode()
		if err != nil {
			return
		}
		f.once.Do(func() { close(f.first) })
		f.batches <- batch
	}
}

// received collects the batches the client sent before disconnecting.
func (f *fakeZusi) received(t *testing.T) []*zusi.Node {
	t.Helper()

	var out []*zusi.Node
	timeout := time.After(5 * time.Second)
	for {
		select {
		case b, ok := <-f.batches:
			if !ok {
				return out
			}
			out = append(out, b)
		case <-timeout:
			t.Fatal("client did not disconnect")
			return nil
		}
	}
}

func ackHello(result uint8) *zusi.Node {
	return zusi.NewNode(zusi.IDConnection,
		zusi.NewNode(zusi.IDAckHello).With(
			zusi.TextAttr(0x0001, "3.5.0.0"),
			zusi.Uint8Attr(0x0003, result),
		),
	)
}

func ackNeededData() *zusi.Node {
	return zusi.NewNode(zusi.IDClientApp, zusi.NewNode(zusi.IDAckNeededData).With(zusi.Uint8Attr(0x0001, 0)))
}

// internalPress reports a press of the left door key on the internal
// assignment, which the client always answers with a release.
func internalPress() *zusi.Node {
	return zusi.NewNode(zusi.IDClientApp, zusi.NewNode(zusi.IDOperation,
		zusi.NewNode(0x0001).With(
			zusi.Uint16Attr(0x0001, 36),
			zusi.Uint16Attr(0x0002, doorpanel.CommandLeftDown),
		),
	))
}

func execute(ctx context.Context, args ...string) error {
	opts = options{}
	cmd := rootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.ExecuteContext(ctx)
}

func TestRunLifecycle(t *testing.T) {
	release := doorpanel.InputBatch(doorpanel.Keypress(36, doorpanel.CommandLeftDown+1))

	tests := []struct {
		name        string
		end         ending
		wantErr     error
		wantBatches int
	}{
		{name: "clean end of stream", end: endEOF, wantBatches: 3},
		{name: "receive failure drains queued messages", end: endGarbage, wantErr: zusi.ErrMalformedFrame, wantBatches: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFakeZusi(0, tt.end, internalPress(), internalPress(), internalPress())
			addr := srv.listen(t)

			err := execute(context.Background(), addr)
			batches := srv.received(t)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			require.Len(t, batches, tt.wantBatches)
			assert.Equal(t, release, batches[len(batches)-1])
		})
	}
}

func TestRunInterrupted(t *testing.T) {
	srv := newFakeZusi(0, endHold, internalPress())
	addr := srv.listen(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-srv.first
		cancel()
	}()

	err := execute(ctx, addr)

	assert.NoError(t, err)
	assert.Len(t, srv.received(t), 1)
}

func TestRunHandshakeRejected(t *testing.T) {
	srv := newFakeZusi(1, endEOF, internalPress())
	addr := srv.listen(t)

	err := execute(context.Background(), addr)

	var herr *zusi.HandshakeError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "HELLO", herr.Step)
	assert.Empty(t, srv.received(t))
	assert.Len(t, srv.requests, 1, "nothing is subscribed after a rejected hello")
}

func TestRunSendFailure(t *testing.T) {
	client, server := net.Pipe()
	dial = func(context.Context, string) (*zusi.Conn, error) {
		return zusi.NewConn(client), nil
	}
	t.Cleanup(func() { dial = zusi.Dial })

	srv := newFakeZusi(0, endClose, internalPress())
	go srv.serve(server)

	err := execute(context.Background(), "simulator:1436")

	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.Empty(t, srv.received(t))
}
