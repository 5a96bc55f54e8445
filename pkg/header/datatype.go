package header

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// DataType describes how a voxel value is stored on disk or in memory.
// The lower nibble holds the base type; the upper bits are attribute flags.
type DataType uint8

// Attribute flags and base types.
const (
	Attributes   DataType = 0xF0
	Type         DataType = 0x0F
	Complex      DataType = 0x10
	Signed       DataType = 0x20
	LittleEndian DataType = 0x40
	BigEndian    DataType = 0x80

	Undefined DataType = 0x00
	Bit       DataType = 0x01
	UInt8     DataType = 0x02
	UInt16    DataType = 0x03
	UInt32    DataType = 0x04
	UInt64    DataType = 0x05
	Float32   DataType = 0x06
	Float64   DataType = 0x07
)

// Common fully specified data types.
const (
	Int8      = UInt8 | Signed
	Int16     = UInt16 | Signed
	Int32     = UInt32 | Signed
	Int64     = UInt64 | Signed
	Int16LE   = Int16 | LittleEndian
	Int16BE   = Int16 | BigEndian
	UInt16LE  = UInt16 | LittleEndian
	UInt16BE  = UInt16 | BigEndian
	Int32LE   = Int32 | LittleEndian
	Int32BE   = Int32 | BigEndian
	UInt32LE  = UInt32 | LittleEndian
	UInt32BE  = UInt32 | BigEndian
	Int64LE   = Int64 | LittleEndian
	Int64BE   = Int64 | BigEndian
	UInt64LE  = UInt64 | LittleEndian
	UInt64BE  = UInt64 | BigEndian
	Float32LE = Float32 | LittleEndian
	Float32BE = Float32 | BigEndian
	Float64LE = Float64 | LittleEndian
	Float64BE = Float64 | BigEndian
	CFloat32  = Complex | Float32
	CFloat64  = Complex | Float64
)

var (
	// HostOrder is the byte order flag of the running machine.
	HostOrder = hostOrder()

	// Native is the default type for newly created images.
	Native = Float32 | HostOrder
)

func hostOrder() DataType {
	var b [2]byte
	binary.NativeEndian.PutUint16(b[:], 1)
	if b[0] == 1 {
		return LittleEndian
	}
	return BigEndian
}

var baseNames = map[DataType]string{
	Bit:     "bit",
	UInt8:   "uint8",
	UInt16:  "uint16",
	UInt32:  "uint32",
	UInt64:  "uint64",
	Float32: "float32",
	Float64: "float64",
}

// IsComplex reports whether values are stored as complex pairs.
func (dt DataType) IsComplex() bool { return dt&Complex != 0 }

// IsSigned reports whether an integer type is signed.
func (dt DataType) IsSigned() bool { return dt&Signed != 0 }

// IsLittleEndian reports whether the little-endian flag is set.
func (dt DataType) IsLittleEndian() bool { return dt&LittleEndian != 0 }

// IsBigEndian reports whether the big-endian flag is set.
func (dt DataType) IsBigEndian() bool { return dt&BigEndian != 0 }

// IsInteger reports whether the base type is an integer type.
func (dt DataType) IsInteger() bool {
	switch dt & Type {
	case UInt8, UInt16, UInt32, UInt64:
		return true
	}
	return false
}

// IsFloatingPoint reports whether the base type is float32 or float64.
func (dt DataType) IsFloatingPoint() bool {
	t := dt & Type
	return t == Float32 || t == Float64
}

// Bits returns the number of bits used by one stored value.
func (dt DataType) Bits() int {
	var bits int
	switch dt & Type {
	case Bit:
		bits = 1
	case UInt8:
		bits = 8
	case UInt16:
		bits = 16
	case UInt32, Float32:
		bits = 32
	case UInt64, Float64:
		bits = 64
	default:
		return 0
	}
	if dt.IsComplex() {
		bits *= 2
	}
	return bits
}

// Bytes returns the number of bytes used by one stored value, rounded up.
func (dt DataType) Bytes() int {
	return (dt.Bits() + 7) / 8
}

// WithNativeOrder returns dt with the host byte order set if no order was specified.
// Single byte types never carry a byte order.
func (dt DataType) WithNativeOrder() DataType {
	if dt.Bytes() <= 1 || dt.IsLittleEndian() || dt.IsBigEndian() {
		return dt
	}
	return dt | HostOrder
}

// ByteOrder returns the binary byte order of multi-byte values.
func (dt DataType) ByteOrder() binary.ByteOrder {
	switch {
	case dt.IsBigEndian():
		return binary.BigEndian
	case dt.IsLittleEndian():
		return binary.LittleEndian
	}
	return binary.NativeEndian
}

// String returns the textual specifier, e.g. "int16be" or "cfloat32le".
func (dt DataType) String() string {
	name, ok := baseNames[dt&Type]
	if !ok {
		return "undefined"
	}
	if dt.IsInteger() && dt.IsSigned() {
		name = name[1:]
	}
	if dt.IsComplex() {
		name = "c" + name
	}
	switch {
	case dt.IsLittleEndian():
		name += "le"
	case dt.IsBigEndian():
		name += "be"
	}
	return name
}

// ParseDataType parses a specifier as produced by String. Case is ignored.
func ParseDataType(spec string) (DataType, error) {
	s := strings.ToLower(strings.TrimSpace(spec))
	var dt DataType
	switch {
	case strings.HasSuffix(s, "le"):
		dt |= LittleEndian
		s = strings.TrimSuffix(s, "le")
	case strings.HasSuffix(s, "be"):
		dt |= BigEndian
		s = strings.TrimSuffix(s, "be")
	}
	if strings.HasPrefix(s, "c") {
		dt |= Complex
		s = s[1:]
	}
	switch s {
	case "bit":
		dt |= Bit
	case "int8", "int16", "int32", "int64":
		dt |= Signed
		s = "u" + s
		fallthrough
	case "uint8", "uint16", "uint32", "uint64":
		for base, name := range baseNames {
			if name == s {
				dt |= base
			}
		}
	case "float32":
		dt |= Float32
	case "float64":
		dt |= Float64
	default:
		return Undefined, fmt.Errorf("%w: %q", ErrUnknownDataType, spec)
	}
	if dt.IsComplex() && !dt.IsFloatingPoint() {
		return Undefined, fmt.Errorf("%w: complex integer type %q", ErrUnknownDataType, spec)
	}
	return dt, nil
}

// MarshalYAML encodes the data type by its specifier.
func (dt DataType) MarshalYAML() (interface{}, error) {
	return dt.String(), nil
}

// UnmarshalYAML decodes a specifier string.
func (dt *DataType) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseDataType(s)
	if err != nil {
		return err
	}
	*dt = parsed
	return nil
}
