package zusi

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalLayout(t *testing.T) {
	n := NewNode(0x0002, NewNode(0x010A)).With(Uint8Attr(0x0003, 0x2A))

	got, err := MarshalNode(n)
	require.NoError(t, err)

	want := []byte{
		0x00, 0x00, 0x00, 0x00, 0x02, 0x00, // node 0x0002
		0x03, 0x00, 0x00, 0x00, 0x03, 0x00, 0x2A, // attribute 0x0003 = 0x2A
		0x00, 0x00, 0x00, 0x00, 0x0A, 0x01, // node 0x010A
		0xFF, 0xFF, 0xFF, 0xFF, // end 0x010A
		0xFF, 0xFF, 0xFF, 0xFF, // end 0x0002
	}
	assert.Equal(t, want, got)
}

func TestEncodeDecode(t *testing.T) {
	nodes := []*Node{
		NewNode(0x0001),
		NewNode(0x0002,
			NewNode(0x000A,
				NewNode(0x0066).With(Uint8Attr(0x02, 1), Uint8Attr(0x03, 0), Uint8Attr(0x05, 2)),
			).With(Float32Attr(0x01, 12.5)),
		),
		NewNode(0x0002,
			NewNode(0x000B,
				NewNode(0x0002).With(TextAttr(0x01, "Tuerfreigabe"), Int16Attr(0x03, 0)),
			),
		),
	}

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, n := range nodes {
		require.NoError(t, enc.Encode(n))
	}

	dec := NewDecoder(&buf)
	for _, want := range nodes {
		got, err := dec.Decode()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := dec.Decode()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeMalformed(t *testing.T) {
	le32 := func(v uint32) []byte { return binary.LittleEndian.AppendUint32(nil, v) }
	cat := func(parts ...[]byte) []byte { return bytes.Join(parts, nil) }
	start := cat(le32(0), []byte{0x02, 0x00})

	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{name: "bad start marker", in: le32(7), want: ErrMalformedFrame},
		{name: "attribute too short", in: cat(start, le32(1)), want: ErrMalformedFrame},
		{name: "attribute too large", in: cat(start, le32(MaxAttributeSize+3)), want: ErrFrameTooLarge},
		{name: "truncated node", in: start, want: io.ErrUnexpectedEOF},
		{name: "truncated attribute", in: cat(start, le32(4), []byte{0x01, 0x00, 0xAA}), want: io.ErrUnexpectedEOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDecoder(bytes.NewReader(tt.in)).Decode()
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeTooDeep(t *testing.T) {
	var buf bytes.Buffer
	for i := 0; i < MaxDepth+2; i++ {
		buf.Write([]byte{0, 0, 0, 0, 1, 0})
	}

	_, err := NewDecoder(&buf).Decode()
	assert.ErrorIs(t, err, ErrMalformedFrame)
}
