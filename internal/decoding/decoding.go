// Package decoding holds the two optional stages between the wire and the
// disk: a transfer-encoding decoder that strips transport framing and a
// content-encoding decoder that inflates compressed payloads. Both are
// push-style: the transfer loop feeds whatever one bounded read produced
// and persists whatever the stage reports back.
package decoding

// TransferDecoder strips transport-level framing (e.g. HTTP chunked).
// Decode reports the decoder's actual produced payload, which is
// authoritative for how many bytes get persisted.
type TransferDecoder interface {
	Decode(p []byte) ([]byte, error)

	// Finished is true once the framing declared the stream complete.
	Finished() bool

	// Finish finalizes the decoder. No input is accepted afterwards.
	Finish() error
}

// ContentDecoder inflates payload compression (e.g. gzip) independent of
// transport framing. Output length is variable and unrelated to input length.
// Close tears the stage down and returns any residual output produced after
// the last Decode, so the tail of the stream still gets persisted.
type ContentDecoder interface {
	Decode(p []byte) ([]byte, error)
	Finished() bool
	Close() ([]byte, error)
}
