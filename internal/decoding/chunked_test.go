package decoding

import (
	"bytes"
	"errors"
	"testing"

	"github.com/datallboy/gofetch/internal/domain"
)

func TestChunkedSinglePass(t *testing.T) {
	d := NewChunkedDecoder()

	out, err := d.Decode([]byte("5\r\nhello\r\n0\r\n\r\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(out) != "hello" {
		t.Fatalf("payload = %q, want %q", out, "hello")
	}
	if !d.Finished() {
		t.Fatal("decoder should report finished after the terminal chunk")
	}
}

func TestChunkedByteByByte(t *testing.T) {
	raw := []byte("6\r\nfoobar\r\nb\r\nhello world\r\n0\r\n\r\n")

	d := NewChunkedDecoder()
	var payload bytes.Buffer
	for _, b := range raw {
		out, err := d.Decode([]byte{b})
		if err != nil {
			t.Fatalf("Decode(%#x): %v", b, err)
		}
		payload.Write(out)
	}

	if payload.String() != "foobarhello world" {
		t.Fatalf("payload = %q", payload.String())
	}
	if !d.Finished() {
		t.Fatal("decoder should be finished")
	}
}

func TestChunkedExtensionAndTrailer(t *testing.T) {
	d := NewChunkedDecoder()

	out, err := d.Decode([]byte("4;name=value\r\ndata\r\n0\r\nX-Checksum: abc\r\n\r\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(out) != "data" {
		t.Fatalf("payload = %q, want %q", out, "data")
	}
	if !d.Finished() {
		t.Fatal("trailer headers must not prevent completion")
	}
}

func TestChunkedBytesAfterTerminalChunk(t *testing.T) {
	d := NewChunkedDecoder()

	// Trailing garbage in the same read as the terminal chunk.
	out, err := d.Decode([]byte("3\r\nfoo\r\n0\r\n\r\nGARBAGE"))
	if !errors.Is(err, domain.ErrDecoderClosed) {
		t.Fatalf("err = %v, want ErrDecoderClosed", err)
	}
	if string(out) != "foo" {
		t.Fatalf("payload before the error = %q, want %q", out, "foo")
	}

	// And in a later read.
	d = NewChunkedDecoder()
	if _, err := d.Decode([]byte("3\r\nfoo\r\n0\r\n\r\n")); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, err := d.Decode([]byte("x")); !errors.Is(err, domain.ErrDecoderClosed) {
		t.Fatalf("err = %v, want ErrDecoderClosed", err)
	}
}

func TestChunkedDecodeAfterFinish(t *testing.T) {
	d := NewChunkedDecoder()

	if _, err := d.Decode([]byte("3\r\nfo")); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if err := d.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if _, err := d.Decode([]byte("o\r\n")); !errors.Is(err, domain.ErrDecoderClosed) {
		t.Fatalf("err = %v, want ErrDecoderClosed", err)
	}
}

func TestChunkedBadFraming(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"size not hex", "zz\r\nhello\r\n"},
		{"missing size", "\r\n"},
		{"data missing CR", "3\r\nfooX"},
		{"size missing LF", "3\rX"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := NewChunkedDecoder()
			if _, err := d.Decode([]byte(tc.raw)); err == nil {
				t.Fatalf("Decode(%q) should fail", tc.raw)
			}
		})
	}
}
