package header

import (
	"errors"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestDataTypeProperties(t *testing.T) {
	tests := []struct {
		dt       DataType
		spec     string
		bytes    int
		integer  bool
		floating bool
		signed   bool
	}{
		{UInt8, "uint8", 1, true, false, false},
		{Int16BE, "int16be", 2, true, false, true},
		{UInt32LE, "uint32le", 4, true, false, false},
		{Float32LE, "float32le", 4, false, true, false},
		{Float64BE, "float64be", 8, false, true, false},
		{CFloat32 | LittleEndian, "cfloat32le", 8, false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			if got := tt.dt.String(); got != tt.spec {
				t.Errorf("Expected specifier %q, got %q", tt.spec, got)
			}
			if got := tt.dt.Bytes(); got != tt.bytes {
				t.Errorf("Expected %d bytes, got %d", tt.bytes, got)
			}
			if tt.dt.IsInteger() != tt.integer || tt.dt.IsFloatingPoint() != tt.floating || tt.dt.IsSigned() != tt.signed {
				t.Errorf("Unexpected classification for %s", tt.spec)
			}
			parsed, err := ParseDataType(tt.spec)
			if err != nil {
				t.Fatalf("Failed to parse %q: %v", tt.spec, err)
			}
			if parsed != tt.dt {
				t.Errorf("Expected parsed type %#x, got %#x", uint8(tt.dt), uint8(parsed))
			}
		})
	}

	if _, err := ParseDataType("float16"); !errors.Is(err, ErrUnknownDataType) {
		t.Errorf("Expected ErrUnknownDataType, got %v", err)
	}
	if got := Int16.WithNativeOrder(); got != Int16|HostOrder {
		t.Errorf("Expected host byte order, got %s", got)
	}
	if got := Int16BE.WithNativeOrder(); got != Int16BE {
		t.Errorf("Expected explicit order to be kept, got %s", got)
	}
	if HostOrder != LittleEndian && HostOrder != BigEndian {
		t.Errorf("Expected a single byte order flag, got %#x", uint8(HostOrder))
	}
	if Native != Float32|HostOrder {
		t.Errorf("Expected native type float32 in host order, got %s", Native)
	}
	if got := UInt8.WithNativeOrder(); got != UInt8 {
		t.Errorf("Expected single byte type to stay without order, got %s", got)
	}
}

func TestValidate(t *testing.T) {
	h := New([]int{4, 4, 4}, 1, 1, 2)
	if err := h.Validate(); err != nil {
		t.Fatalf("Expected valid header, got %v", err)
	}

	bad := h.Clone()
	bad.Axes[1].Spacing = 0
	if err := bad.Validate(); !errors.Is(err, ErrInvalidVoxelSize) {
		t.Errorf("Expected ErrInvalidVoxelSize, got %v", err)
	}

	bad = h.Clone()
	bad.Axes[2].Stride = -1
	if err := bad.Validate(); !errors.Is(err, ErrInvalidAxis) {
		t.Errorf("Expected duplicate stride to be rejected, got %v", err)
	}

	if err := (&Header{}).Validate(); !errors.Is(err, ErrInvalidAxis) {
		t.Errorf("Expected empty header to be rejected, got %v", err)
	}
}

func TestPermuteAndExtract(t *testing.T) {
	h := New([]int{2, 3, 4, 5}, 1, 2, 3, 0.5)
	h.Affine = Transform{{1, 0, 0, 10}, {0, 2, 0, 20}, {0, 0, 3, 30}}

	p, err := h.Permute([]int{1, 0, 2, 3})
	if err != nil {
		t.Fatalf("Permute failed: %v", err)
	}
	if p.Size(0) != 3 || p.Size(1) != 2 {
		t.Errorf("Expected sizes [3 2 ...], got %v", p.Sizes())
	}
	if p.Affine[1][0] != 2 || p.Affine[0][1] != 1 {
		t.Errorf("Expected transform columns to be swapped, got %v", p.Affine)
	}
	if h.Size(0) != 2 {
		t.Error("Permute must not modify the original header")
	}

	if _, err := h.Permute([]int{3, 1, 2, 0}); !errors.Is(err, ErrInvalidAxis) {
		t.Errorf("Expected non-spatial axis move to fail, got %v", err)
	}

	e, err := h.Extract([]int{0, 1, 2})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if e.NDim() != 3 {
		t.Errorf("Expected 3 axes, got %d", e.NDim())
	}
	if _, err := h.Extract([]int{7}); !errors.Is(err, ErrInvalidAxis) {
		t.Errorf("Expected out of range axis to fail, got %v", err)
	}
}

func TestEffectiveTransform(t *testing.T) {
	h := New([]int{5, 3, 1}, 2, 1, 1)
	tr := h.EffectiveTransform()
	if tr[0][3] != -4 || tr[1][3] != -1 || tr[2][3] != 0 {
		t.Errorf("Expected centring translation [-4 -1 0], got [%g %g %g]", tr[0][3], tr[1][3], tr[2][3])
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	h := New([]int{8, 8, 4}, 0.9, 0.9, 3)
	h.DataType = Int16BE
	h.Comments = []string{"phantom"}

	data, err := yaml.Marshal(h)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var got Header
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got.DataType != Int16BE {
		t.Errorf("Expected datatype int16be, got %s", got.DataType)
	}
	if got.Spacing(2) != 3 || got.Size(0) != 8 {
		t.Errorf("Axes not preserved: %+v", got.Axes)
	}
}
