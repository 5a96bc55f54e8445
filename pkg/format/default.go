package format

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"mrvoxel/pkg/logging"
)

// Default is the handler for uncompressed data files. Each file is
// memory-mapped when there are at most Limits.MaxFiles of them; otherwise all
// segments are read into a single heap buffer, which is written back on
// Close if the handler is writable.
type Default struct {
	files    []File
	bps      int64
	writable bool
	limits   Limits

	mapped [][]byte // whole mappings, page aligned
	heap   []byte
	addrs  [][]byte
}

// NewDefault creates a handler for files each holding bytesPerSegment bytes.
func NewDefault(files []File, bytesPerSegment int64, writable bool, limits Limits) *Default {
	return &Default{
		files:    files,
		bps:      bytesPerSegment,
		writable: writable,
		limits:   limits,
	}
}

func (d *Default) SegmentCount() int          { return len(d.files) }
func (d *Default) BytesPerSegment() int64     { return d.bps }
func (d *Default) Address(segment int) []byte { return d.addrs[segment] }
func (d *Default) Writable() bool             { return d.writable }

// Mapped reports whether the data is memory-mapped rather than copied.
func (d *Default) Mapped() bool { return d.mapped != nil }

func (d *Default) Open() error {
	if len(d.files) == 0 {
		return fmt.Errorf("no data files to open")
	}
	total := d.bps * int64(len(d.files))
	if d.bps < 0 || total/int64(len(d.files)) != d.bps || total > d.limits.maxBytes() {
		return fmt.Errorf("%w: %d files of %s", ErrTooLarge, len(d.files), humanize.Bytes(uint64(max(d.bps, 0))))
	}
	for _, f := range d.files {
		st, err := os.Stat(f.Name)
		if err != nil {
			return fmt.Errorf("failed to open data file: %w", err)
		}
		if st.Size() < f.Offset+d.bps {
			return fmt.Errorf("data file %q is too short: %d bytes, need %d", f.Name, st.Size(), f.Offset+d.bps)
		}
	}

	log := logging.For("format")
	if d.bps == 0 {
		d.addrs = make([][]byte, len(d.files))
		return nil
	}
	if d.limits.MaxFiles <= 0 || len(d.files) <= d.limits.MaxFiles {
		if err := d.mapFiles(); err != nil {
			return err
		}
		log.Debug().
			Int("files", len(d.files)).
			Str("size", humanize.Bytes(uint64(total))).
			Bool("writable", d.writable).
			Msg("memory-mapped image data")
		return nil
	}
	if err := d.load(total); err != nil {
		return err
	}
	log.Debug().
		Int("files", len(d.files)).
		Str("size", humanize.Bytes(uint64(total))).
		Msg("loaded image data into memory")
	return nil
}

func (d *Default) mapFiles() error {
	flag, prot := os.O_RDONLY, unix.PROT_READ
	if d.writable {
		flag, prot = os.O_RDWR, unix.PROT_READ|unix.PROT_WRITE
	}
	page := int64(os.Getpagesize())
	d.mapped = make([][]byte, 0, len(d.files))
	d.addrs = make([][]byte, len(d.files))
	for i, f := range d.files {
		fh, err := os.OpenFile(f.Name, flag, 0)
		if err != nil {
			d.unmap()
			return fmt.Errorf("failed to open data file: %w", err)
		}
		start := f.Offset - f.Offset%page
		skip := f.Offset - start
		data, err := unix.Mmap(int(fh.Fd()), start, int(skip+d.bps), prot, unix.MAP_SHARED)
		fh.Close()
		if err != nil {
			d.unmap()
			return fmt.Errorf("failed to map %q: %w", f.Name, err)
		}
		d.mapped = append(d.mapped, data)
		d.addrs[i] = data[skip : skip+d.bps : skip+d.bps]
	}
	return nil
}

func (d *Default) load(total int64) error {
	d.heap = make([]byte, total)
	d.addrs = make([][]byte, len(d.files))
	for i, f := range d.files {
		seg := d.heap[int64(i)*d.bps : int64(i+1)*d.bps : int64(i+1)*d.bps]
		if err := readAt(f, seg); err != nil {
			d.heap, d.addrs = nil, nil
			return err
		}
		d.addrs[i] = seg
	}
	return nil
}

func readAt(f File, buf []byte) error {
	fh, err := os.Open(f.Name)
	if err != nil {
		return fmt.Errorf("failed to open data file: %w", err)
	}
	defer fh.Close()
	if _, err := fh.ReadAt(buf, f.Offset); err != nil {
		return fmt.Errorf("failed to read %q: %w", f.Name, err)
	}
	return nil
}

func writeAt(f File, buf []byte) error {
	fh, err := os.OpenFile(f.Name, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to open data file: %w", err)
	}
	if _, err := fh.WriteAt(buf, f.Offset); err != nil {
		fh.Close()
		return fmt.Errorf("failed to write %q: %w", f.Name, err)
	}
	return fh.Close()
}

func (d *Default) unmap() error {
	var first error
	for _, m := range d.mapped {
		if d.writable {
			if err := unix.Msync(m, unix.MS_SYNC); err != nil && first == nil {
				first = fmt.Errorf("failed to sync mapped data: %w", err)
			}
		}
		if err := unix.Munmap(m); err != nil && first == nil {
			first = fmt.Errorf("failed to unmap data: %w", err)
		}
	}
	d.mapped = nil
	return first
}

// Close releases the data, writing copied segments back to their files if
// the handler is writable.
func (d *Default) Close() error {
	if d.addrs == nil {
		return ErrNotOpen
	}
	var err error
	switch {
	case d.mapped != nil:
		err = d.unmap()
	case d.heap != nil && d.writable:
		for i, f := range d.files {
			if werr := writeAt(f, d.addrs[i]); werr != nil && err == nil {
				err = werr
			}
		}
		logging.For("format").Debug().Int("files", len(d.files)).Msg("wrote image data back to disk")
	}
	d.heap, d.addrs = nil, nil
	return err
}
