// Package format gives images access to their on-disk data.
//
// A Handler makes the data of an image available as one or more byte
// segments of equal length, one per data file. Handlers are opened before the
// data is accessed and closed afterwards; closing a writable handler makes
// any modifications durable.
package format

import (
	"errors"
	"math"
)

var (
	// ErrTooLarge is returned when image data exceeds the addressable size.
	ErrTooLarge = errors.New("image data too large to access")

	// ErrNotOpen is returned when closing a handler that was never opened.
	ErrNotOpen = errors.New("handler is not open")
)

// Handler exposes the data segments of an image.
type Handler interface {
	Open() error
	Close() error
	SegmentCount() int
	BytesPerSegment() int64
	Address(segment int) []byte
	Writable() bool
}

// File is one data file holding a segment starting at Offset.
type File struct {
	Name   string
	Offset int64
}

// Limits bounds how image data is brought into memory.
type Limits struct {
	// MaxFiles is the largest number of files that are memory-mapped
	// individually; images split over more files are copied to the heap.
	MaxFiles int `yaml:"maxFiles"`

	// MaxBytes is the largest total data size a handler accepts.
	MaxBytes int64 `yaml:"maxBytes"`

	// GzipLevel is the compression level used when writing gzip data.
	GzipLevel int `yaml:"gzipLevel"`
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxFiles:  256,
		MaxBytes:  math.MaxInt,
		GzipLevel: 6,
	}
}

func (l Limits) maxBytes() int64 {
	if l.MaxBytes <= 0 || l.MaxBytes > math.MaxInt {
		return math.MaxInt
	}
	return l.MaxBytes
}

// Memory is a handler over heap buffers that never touch the disk.
type Memory struct {
	segments [][]byte
	bps      int64
}

// NewMemory allocates count zeroed segments of bytesPerSegment bytes.
func NewMemory(count int, bytesPerSegment int64) *Memory {
	m := &Memory{segments: make([][]byte, count), bps: bytesPerSegment}
	for i := range m.segments {
		m.segments[i] = make([]byte, bytesPerSegment)
	}
	return m
}

func (m *Memory) Open() error                { return nil }
func (m *Memory) Close() error               { return nil }
func (m *Memory) SegmentCount() int          { return len(m.segments) }
func (m *Memory) BytesPerSegment() int64     { return m.bps }
func (m *Memory) Address(segment int) []byte { return m.segments[segment] }
func (m *Memory) Writable() bool             { return true }
