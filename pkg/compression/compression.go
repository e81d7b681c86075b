// Package compression wraps the codecs used for block and index files.
//
// Every payload written through Seal carries a one-byte codec tag so a
// reader never needs to know how the file was produced.
package compression

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Type identifies a codec. The values are persisted.
type Type uint8

const (
	// TypeNone stores payloads verbatim.
	TypeNone Type = 0
	// TypeGzip uses gzip.
	TypeGzip Type = 1
	// TypeZstd uses zstd.
	TypeZstd Type = 2
)

// String returns the config name of t.
func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeGzip:
		return "gzip"
	case TypeZstd:
		return "zstd"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// ParseType maps a config name to a Type.
func ParseType(name string) (Type, error) {
	switch strings.ToLower(name) {
	case "", "zstd":
		return TypeZstd, nil
	case "gzip":
		return TypeGzip, nil
	case "none":
		return TypeNone, nil
	default:
		return 0, fmt.Errorf("unknown compression type: %q", name)
	}
}

// Level trades speed for ratio.
type Level int

const (
	// LevelFastest prioritizes speed.
	LevelFastest Level = 1
	// LevelDefault balances speed and ratio.
	LevelDefault Level = 3
	// LevelBest prioritizes ratio.
	LevelBest Level = 9
)

// Compressor compresses whole buffers.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Type() Type
}

// ============================================================================
// Gzip
// ============================================================================

// GzipCompressor implements Compressor using gzip.
type GzipCompressor struct {
	level int
}

// NewGzipCompressor creates a gzip compressor.
func NewGzipCompressor(level Level) *GzipCompressor {
	switch level {
	case LevelFastest:
		return &GzipCompressor{level: gzip.BestSpeed}
	case LevelBest:
		return &GzipCompressor{level: gzip.BestCompression}
	default:
		return &GzipCompressor{level: gzip.DefaultCompression}
	}
}

// Compress compresses data using gzip.
func (c *GzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress decompresses gzip data.
func (c *GzipCompressor) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip header: %w", err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Type returns TypeGzip.
func (c *GzipCompressor) Type() Type { return TypeGzip }

// ============================================================================
// Zstd
// ============================================================================

// ZstdCompressor implements Compressor using zstd. It is safe for
// concurrent use; the pager compresses from several goroutines.
type ZstdCompressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewZstdCompressor creates a zstd compressor.
func NewZstdCompressor(level Level) (*ZstdCompressor, error) {
	speed := zstd.SpeedDefault
	switch level {
	case LevelFastest:
		speed = zstd.SpeedFastest
	case LevelBest:
		speed = zstd.SpeedBestCompression
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(speed))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &ZstdCompressor{encoder: encoder, decoder: decoder}, nil
}

// Compress compresses data using zstd.
func (c *ZstdCompressor) Compress(data []byte) ([]byte, error) {
	return c.encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// Decompress decompresses zstd data.
func (c *ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	return c.decoder.DecodeAll(data, nil)
}

// Type returns TypeZstd.
func (c *ZstdCompressor) Type() Type { return TypeZstd }

// Close releases encoder and decoder resources.
func (c *ZstdCompressor) Close() {
	c.encoder.Close()
	c.decoder.Close()
}

// ============================================================================
// None
// ============================================================================

// NoOpCompressor passes data through.
type NoOpCompressor struct{}

// Compress returns data unchanged.
func (NoOpCompressor) Compress(data []byte) ([]byte, error) { return data, nil }

// Decompress returns data unchanged.
func (NoOpCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }

// Type returns TypeNone.
func (NoOpCompressor) Type() Type { return TypeNone }

// ============================================================================
// Factory and framing
// ============================================================================

// New creates a compressor by type and level.
func New(t Type, level Level) (Compressor, error) {
	switch t {
	case TypeZstd:
		return NewZstdCompressor(level)
	case TypeGzip:
		return NewGzipCompressor(level), nil
	case TypeNone:
		return NoOpCompressor{}, nil
	default:
		return nil, fmt.Errorf("unknown compression type: %d", t)
	}
}

// Close releases c if it holds resources.
func Close(c Compressor) {
	if closer, ok := c.(interface{ Close() }); ok {
		closer.Close()
	}
}

// Seal compresses data with c and prefixes the codec tag.
func Seal(c Compressor, data []byte) ([]byte, error) {
	body, err := c.Compress(data)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, byte(c.Type()))
	return append(out, body...), nil
}

// Codecs resolves the codec named by a sealed payload's tag.
type Codecs struct {
	mu     sync.Mutex
	byType map[Type]Compressor
}

// NewCodecs creates a resolver that prefers the given compressors and
// creates default-level ones for any other tag it meets.
func NewCodecs(known ...Compressor) *Codecs {
	c := &Codecs{byType: make(map[Type]Compressor)}
	for _, k := range known {
		c.byType[k.Type()] = k
	}
	return c
}

// Open reverses Seal.
func (c *Codecs) Open(sealed []byte) ([]byte, error) {
	if len(sealed) == 0 {
		return nil, fmt.Errorf("sealed payload is empty")
	}
	t := Type(sealed[0])
	c.mu.Lock()
	comp, ok := c.byType[t]
	if !ok {
		var err error
		if comp, err = New(t, LevelDefault); err != nil {
			c.mu.Unlock()
			return nil, err
		}
		c.byType[t] = comp
	}
	c.mu.Unlock()
	return comp.Decompress(sealed[1:])
}
