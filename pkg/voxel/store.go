package voxel

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/constraints"

	"mrvoxel/pkg/header"
)

var (
	// ErrReadOnly is the panic value raised when writing through a read-only image.
	ErrReadOnly = errors.New("image is not writable")

	// ErrUnsupportedDataType is returned for datatypes that cannot be addressed per voxel.
	ErrUnsupportedDataType = errors.New("unsupported data type for voxel access")
)

// Store is the backing storage of an image, addressed by linear element index.
// Values are exchanged as float64; implementations convert to and from their
// storage type.
type Store interface {
	Len() int
	Get(i int) float64
	Set(i int, v float64)
}

// Number is the set of element types a SliceStore can hold.
type Number interface {
	constraints.Integer | constraints.Float
}

// SliceStore keeps voxel data in a typed Go slice.
type SliceStore[T Number] struct {
	Data []T
}

// NewSliceStore wraps data without copying it.
func NewSliceStore[T Number](data []T) *SliceStore[T] {
	return &SliceStore[T]{Data: data}
}

func (s *SliceStore[T]) Len() int             { return len(s.Data) }
func (s *SliceStore[T]) Get(i int) float64    { return float64(s.Data[i]) }
func (s *SliceStore[T]) Set(i int, v float64) { s.Data[i] = fromFloat[T](v) }

// fromFloat converts v to T, rounding and saturating for integer types.
func fromFloat[T Number](v float64) T {
	var zero T
	switch any(zero).(type) {
	case float32, float64:
		return T(v)
	}
	if math.IsNaN(v) {
		return 0
	}
	v = math.Round(v)
	switch any(zero).(type) {
	case int8:
		return T(clamp(v, math.MinInt8, math.MaxInt8))
	case int16:
		return T(clamp(v, math.MinInt16, math.MaxInt16))
	case int32:
		return T(clamp(v, math.MinInt32, math.MaxInt32))
	case uint8:
		return T(clamp(v, 0, math.MaxUint8))
	case uint16:
		return T(clamp(v, 0, math.MaxUint16))
	case uint32:
		return T(clamp(v, 0, math.MaxUint32))
	case uint, uint64, uintptr:
		return T(clamp(v, 0, maxUint64Float))
	}
	return T(clamp(v, math.MinInt64, maxInt64Float))
}

// Largest float64 values that still convert to uint64 and int64 without overflow.
const (
	maxUint64Float = 18446744073709549568.0
	maxInt64Float  = 9223372036854774784.0
)

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RawStore interprets one or more byte segments as values of a header.DataType.
// Each segment holds the same number of values, as produced by format handlers
// that map one file per segment.
type RawStore struct {
	segments [][]byte
	perSeg   int
	count    int
	dt       header.DataType
	width    int
}

// NewRawStore creates a store over the given segments. Complex types expose
// their real component; bit-packed data is not supported.
func NewRawStore(dt header.DataType, segments ...[]byte) (*RawStore, error) {
	if dt.Bits() < 8 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDataType, dt)
	}
	if len(segments) == 0 {
		return nil, errors.New("raw store needs at least one segment")
	}
	width := dt.Bytes()
	perSeg := len(segments[0]) / width
	for i, seg := range segments {
		if len(seg)/width != perSeg {
			return nil, fmt.Errorf("segment %d holds %d values, expected %d", i, len(seg)/width, perSeg)
		}
	}
	return &RawStore{
		segments: segments,
		perSeg:   perSeg,
		count:    perSeg * len(segments),
		dt:       dt,
		width:    width,
	}, nil
}

// DataType returns the storage datatype.
func (s *RawStore) DataType() header.DataType { return s.dt }

func (s *RawStore) Len() int { return s.count }

func (s *RawStore) locate(i int) []byte {
	seg := s.segments[0]
	if len(s.segments) > 1 {
		seg = s.segments[i/s.perSeg]
		i %= s.perSeg
	}
	return seg[i*s.width:]
}

func (s *RawStore) Get(i int) float64 {
	b := s.locate(i)
	order := s.dt.ByteOrder()
	switch s.dt & (header.Type | header.Signed) {
	case header.UInt8:
		return float64(b[0])
	case header.Int8:
		return float64(int8(b[0]))
	case header.UInt16:
		return float64(order.Uint16(b))
	case header.Int16:
		return float64(int16(order.Uint16(b)))
	case header.UInt32:
		return float64(order.Uint32(b))
	case header.Int32:
		return float64(int32(order.Uint32(b)))
	case header.UInt64:
		return float64(order.Uint64(b))
	case header.Int64:
		return float64(int64(order.Uint64(b)))
	case header.Float32, header.Float32 | header.Signed:
		return float64(math.Float32frombits(order.Uint32(b)))
	case header.Float64, header.Float64 | header.Signed:
		return math.Float64frombits(order.Uint64(b))
	}
	return math.NaN()
}

func (s *RawStore) Set(i int, v float64) {
	b := s.locate(i)
	order := s.dt.ByteOrder()
	switch s.dt & (header.Type | header.Signed) {
	case header.UInt8:
		b[0] = fromFloat[uint8](v)
	case header.Int8:
		b[0] = byte(fromFloat[int8](v))
	case header.UInt16:
		order.PutUint16(b, fromFloat[uint16](v))
	case header.Int16:
		order.PutUint16(b, uint16(fromFloat[int16](v)))
	case header.UInt32:
		order.PutUint32(b, fromFloat[uint32](v))
	case header.Int32:
		order.PutUint32(b, uint32(fromFloat[int32](v)))
	case header.UInt64:
		order.PutUint64(b, fromFloat[uint64](v))
	case header.Int64:
		order.PutUint64(b, uint64(fromFloat[int64](v)))
	case header.Float32, header.Float32 | header.Signed:
		order.PutUint32(b, math.Float32bits(float32(v)))
	case header.Float64, header.Float64 | header.Signed:
		order.PutUint64(b, math.Float64bits(v))
	}
	if s.dt.IsComplex() {
		// zero the imaginary half
		clear(b[s.width/2 : s.width])
	}
}

type readOnlyStore struct {
	Store
}

func (readOnlyStore) Set(int, float64) { panic(ErrReadOnly) }

// ReadOnly wraps s so that any write panics with ErrReadOnly.
func ReadOnly(s Store) Store {
	if _, ok := s.(readOnlyStore); ok {
		return s
	}
	return readOnlyStore{s}
}
