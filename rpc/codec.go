package rpc

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Frame markers prefixed to every encoded payload
const (
	frameRaw  byte = 0x00
	frameZstd byte = 0x01
)

// Codec encodes values as msgpack, zstd-compressing payloads that exceed the
// configured minimum size. Level 0 disables compression entirely.
type Codec struct {
	enc     *zstd.Encoder
	dec     *zstd.Decoder
	minSize int
}

// NewCodec creates a codec with the given compression level (0-4) and
// minimum payload size for compression to kick in.
func NewCodec(level, minSize int) (*Codec, error) {
	c := &Codec{minSize: minSize}

	if level > 0 {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(configLevelToZstd(level)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			enc.Close()
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		c.enc = enc
		c.dec = dec
	}

	return c, nil
}

// Encode marshals v and compresses the result if it is large enough
func (c *Codec) Encode(v any) ([]byte, error) {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	if c.enc != nil && len(payload) >= c.minSize {
		framed := make([]byte, 1, len(payload)/2+1)
		framed[0] = frameZstd
		return c.enc.EncodeAll(payload, framed), nil
	}

	framed := make([]byte, 1+len(payload))
	framed[0] = frameRaw
	copy(framed[1:], payload)
	return framed, nil
}

// Decode decompresses data if needed and unmarshals it into v
func (c *Codec) Decode(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("empty payload")
	}

	switch data[0] {
	case frameRaw:
		return msgpack.Unmarshal(data[1:], v)
	case frameZstd:
		if c.dec == nil {
			return fmt.Errorf("received compressed payload but compression is disabled")
		}
		payload, err := c.dec.DecodeAll(data[1:], nil)
		if err != nil {
			return fmt.Errorf("failed to decompress payload: %w", err)
		}
		return msgpack.Unmarshal(payload, v)
	default:
		return fmt.Errorf("unknown frame marker: 0x%02x", data[0])
	}
}

// Close releases codec resources
func (c *Codec) Close() {
	if c.enc != nil {
		c.enc.Close()
	}
	if c.dec != nil {
		c.dec.Close()
	}
}

// configLevelToZstd maps config levels (1-4) to zstd.EncoderLevel
func configLevelToZstd(level int) zstd.EncoderLevel {
	switch level {
	case 1:
		return zstd.SpeedFastest
	case 2:
		return zstd.SpeedDefault
	case 3:
		return zstd.SpeedBetterCompression
	case 4:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedFastest
	}
}
