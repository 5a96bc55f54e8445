package format

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"mrvoxel/pkg/header"
	"mrvoxel/pkg/logging"
	"mrvoxel/pkg/stride"
	"mrvoxel/pkg/voxel"
)

// Raw images are stored as a YAML header next to a data file:
//
//	brain.yaml    header, including the name of the data file
//	brain.raw     voxel values in the order given by the strides
//	brain.raw.gz  the same, gzip-compressed
const (
	HeaderExt = ".yaml"
	DataExt   = ".raw"
	GzipExt   = ".gz"
)

type sidecar struct {
	header.Header `yaml:",inline"`

	File   string `yaml:"file"`
	Offset int64  `yaml:"offset,omitempty"`
}

// HeaderPath returns the header file name for an image path given with or
// without its extension.
func HeaderPath(path string) string {
	if strings.HasSuffix(path, HeaderExt) {
		return path
	}
	return path + HeaderExt
}

func readSidecar(path string) (*sidecar, error) {
	data, err := os.ReadFile(HeaderPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	var sc sidecar
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse header %q: %w", HeaderPath(path), err)
	}
	if sc.IntensityScale == 0 {
		sc.IntensityScale = 1
	}
	if sc.Name == "" {
		sc.Name = strings.TrimSuffix(filepath.Base(HeaderPath(path)), HeaderExt)
	}
	if err := sc.Header.Validate(); err != nil {
		return nil, fmt.Errorf("invalid header %q: %w", HeaderPath(path), err)
	}
	if sc.File == "" {
		return nil, fmt.Errorf("header %q names no data file", HeaderPath(path))
	}
	if !filepath.IsAbs(sc.File) {
		sc.File = filepath.Join(filepath.Dir(HeaderPath(path)), sc.File)
	}
	return &sc, nil
}

// ReadHeader reads the header of an image without touching its data.
func ReadHeader(path string) (*header.Header, error) {
	sc, err := readSidecar(path)
	if err != nil {
		return nil, err
	}
	return &sc.Header, nil
}

func dataSize(h *header.Header) (int64, error) {
	if h.DataType.Bits() < 8 {
		return 0, fmt.Errorf("%w: %s", voxel.ErrUnsupportedDataType, h.DataType)
	}
	n := stride.VoxelCount(h.Sizes())
	return n * int64(h.DataType.Bytes()), nil
}

func newHandler(sc *sidecar, writable bool, limits Limits) (Handler, error) {
	bps, err := dataSize(&sc.Header)
	if err != nil {
		return nil, err
	}
	f := File{Name: sc.File, Offset: sc.Offset}
	if strings.HasSuffix(sc.File, GzipExt) {
		return NewGzip(f, 1, bps, writable, limits), nil
	}
	return NewDefault([]File{f}, bps, writable, limits), nil
}

// Open reads the header of an image and opens a handler for its data.
func Open(path string, writable bool, limits Limits) (*header.Header, Handler, error) {
	sc, err := readSidecar(path)
	if err != nil {
		return nil, nil, err
	}
	hnd, err := newHandler(sc, writable, limits)
	if err != nil {
		return nil, nil, err
	}
	if err := hnd.Open(); err != nil {
		return nil, nil, err
	}
	logging.For("format").Debug().
		Str("image", sc.Name).
		Str("file", sc.File).
		Bool("writable", writable).
		Msg("opened image")
	return &sc.Header, hnd, nil
}

// CreateOptions controls how a new image is written.
type CreateOptions struct {
	// Compress stores the data gzip-compressed.
	Compress bool
	Limits   Limits
}

// Create writes the header for a new image and opens a writable handler over
// zeroed data. The data file is named after the header file.
func Create(path string, h *header.Header, opts CreateOptions) (*header.Header, Handler, error) {
	hdr := h.Clone()
	hdr.DataType = hdr.DataType.WithNativeOrder()
	if hdr.DataType == header.Undefined {
		hdr.DataType = header.Native
	}
	hdr.SetStrides(stride.Sanitise(hdr.Strides()))
	if err := hdr.Validate(); err != nil {
		return nil, nil, err
	}
	bps, err := dataSize(hdr)
	if err != nil {
		return nil, nil, err
	}

	hp := HeaderPath(path)
	base := strings.TrimSuffix(filepath.Base(hp), HeaderExt)
	if hdr.Name == "" {
		hdr.Name = base
	}
	sc := sidecar{Header: *hdr, File: base + DataExt}
	if opts.Compress {
		sc.File += GzipExt
	}

	data, err := yaml.Marshal(&sc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal header: %w", err)
	}
	if err := os.WriteFile(hp, data, 0o644); err != nil {
		return nil, nil, fmt.Errorf("failed to write header: %w", err)
	}

	dataPath := filepath.Join(filepath.Dir(hp), sc.File)
	if opts.Compress {
		if err := os.Remove(dataPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("failed to replace data file: %w", err)
		}
	} else if err := preallocate(dataPath, bps); err != nil {
		return nil, nil, err
	}

	sc.File = dataPath
	hnd, err := newHandler(&sc, true, opts.Limits)
	if err != nil {
		return nil, nil, err
	}
	if err := hnd.Open(); err != nil {
		return nil, nil, err
	}
	logging.For("format").Debug().
		Str("image", hdr.Name).
		Str("file", dataPath).
		Msg("created image")
	return hdr, hnd, nil
}

func preallocate(name string, size int64) error {
	fh, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create data file: %w", err)
	}
	if err := fh.Truncate(size); err != nil {
		fh.Close()
		return fmt.Errorf("failed to size data file: %w", err)
	}
	return fh.Close()
}

// Image is an image backed by an open handler.
type Image struct {
	*voxel.Image
	handler Handler
}

// Handler returns the handler holding the image data.
func (img *Image) Handler() Handler { return img.handler }

// Close releases the image data, making writes durable.
func (img *Image) Close() error { return img.handler.Close() }

// OpenImage opens an existing image for voxel access.
func OpenImage(path string, writable bool, limits Limits) (*Image, error) {
	h, hnd, err := Open(path, writable, limits)
	if err != nil {
		return nil, err
	}
	return wrap(h, hnd)
}

// CreateImage creates a new image for voxel access.
func CreateImage(path string, h *header.Header, opts CreateOptions) (*Image, error) {
	hdr, hnd, err := Create(path, h, opts)
	if err != nil {
		return nil, err
	}
	return wrap(hdr, hnd)
}

func wrap(h *header.Header, hnd Handler) (*Image, error) {
	img, err := voxel.FromSegments(h, hnd)
	if err != nil {
		hnd.Close()
		return nil, err
	}
	return &Image{Image: img, handler: hnd}, nil
}
