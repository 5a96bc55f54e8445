package format

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"

	"mrvoxel/pkg/logging"
)

// Gzip is the handler for a gzip-compressed data file. The data is
// decompressed into memory on Open and, if writable, compressed back to the
// file on Close. A writable handler whose file does not exist yet starts from
// zeroed data.
type Gzip struct {
	file     File
	bps      int64
	count    int
	writable bool
	limits   Limits

	data  []byte
	addrs [][]byte
}

// NewGzip creates a handler for count segments of bytesPerSegment bytes
// stored back to back in one compressed stream. The file offset is the size
// of any uncompressed prefix preceding the stream.
func NewGzip(file File, count int, bytesPerSegment int64, writable bool, limits Limits) *Gzip {
	return &Gzip{
		file:     file,
		bps:      bytesPerSegment,
		count:    count,
		writable: writable,
		limits:   limits,
	}
}

func (g *Gzip) SegmentCount() int          { return g.count }
func (g *Gzip) BytesPerSegment() int64     { return g.bps }
func (g *Gzip) Address(segment int) []byte { return g.addrs[segment] }
func (g *Gzip) Writable() bool             { return g.writable }

func (g *Gzip) Open() error {
	total := g.bps * int64(g.count)
	if g.bps < 0 || (g.count > 0 && total/int64(g.count) != g.bps) || total > g.limits.maxBytes() {
		return fmt.Errorf("%w: %d segments of %s", ErrTooLarge, g.count, humanize.Bytes(uint64(max(g.bps, 0))))
	}
	g.data = make([]byte, total)

	fh, err := os.Open(g.file.Name)
	switch {
	case errors.Is(err, fs.ErrNotExist) && g.writable:
	case err != nil:
		return fmt.Errorf("failed to open data file: %w", err)
	default:
		defer fh.Close()
		if _, err := fh.Seek(g.file.Offset, io.SeekStart); err != nil {
			return fmt.Errorf("failed to seek %q: %w", g.file.Name, err)
		}
		zr, err := gzip.NewReader(fh)
		if err != nil {
			return fmt.Errorf("failed to decompress %q: %w", g.file.Name, err)
		}
		if _, err := io.ReadFull(zr, g.data); err != nil {
			return fmt.Errorf("failed to decompress %q: %w", g.file.Name, err)
		}
		if err := zr.Close(); err != nil {
			return fmt.Errorf("failed to decompress %q: %w", g.file.Name, err)
		}
	}

	g.addrs = make([][]byte, g.count)
	for i := range g.addrs {
		g.addrs[i] = g.data[int64(i)*g.bps : int64(i+1)*g.bps : int64(i+1)*g.bps]
	}
	logging.For("format").Debug().
		Str("file", g.file.Name).
		Str("size", humanize.Bytes(uint64(total))).
		Msg("decompressed image data")
	return nil
}

// Close releases the data, compressing it back to the file if writable.
// Any uncompressed prefix of the file is preserved.
func (g *Gzip) Close() error {
	if g.addrs == nil {
		return ErrNotOpen
	}
	defer func() { g.data, g.addrs = nil, nil }()
	if !g.writable {
		return nil
	}

	var prefix []byte
	if g.file.Offset > 0 {
		prefix = make([]byte, g.file.Offset)
		if err := readAt(File{Name: g.file.Name}, prefix); err != nil {
			return err
		}
	}

	var buf bytes.Buffer
	buf.Write(prefix)
	zw, err := gzip.NewWriterLevel(&buf, g.limits.GzipLevel)
	if err != nil {
		return fmt.Errorf("failed to compress %q: %w", g.file.Name, err)
	}
	if _, err := zw.Write(g.data); err != nil {
		return fmt.Errorf("failed to compress %q: %w", g.file.Name, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to compress %q: %w", g.file.Name, err)
	}
	if err := os.WriteFile(g.file.Name, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %q: %w", g.file.Name, err)
	}
	logging.For("format").Debug().
		Str("file", g.file.Name).
		Str("compressed", humanize.Bytes(uint64(buf.Len()))).
		Msg("compressed image data")
	return nil
}
