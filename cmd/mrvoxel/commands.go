package main

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/stat"

	"mrvoxel/pkg/config"
	"mrvoxel/pkg/format"
	"mrvoxel/pkg/header"
	"mrvoxel/pkg/interpolation"
	"mrvoxel/pkg/loop"
	"mrvoxel/pkg/reslice"
	"mrvoxel/pkg/stride"
	"mrvoxel/pkg/threaded"
	"mrvoxel/pkg/visualization"
	"mrvoxel/pkg/voxel"
)

var errArgs = errors.New("wrong number of arguments")

func parseList[T any](s string, parse func(string) (T, error)) ([]T, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []T
	for _, f := range strings.Split(s, ",") {
		v, err := parse(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("invalid list %q: %w", s, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

// triple expands a single value to all three spatial axes.
func triple[T any](vals []T, what string) ([3]T, error) {
	var out [3]T
	switch len(vals) {
	case 1:
		out = [3]T{vals[0], vals[0], vals[0]}
	case 3:
		copy(out[:], vals)
	default:
		return out, fmt.Errorf("%s needs 1 or 3 values, got %d", what, len(vals))
	}
	return out, nil
}

func runInfo(cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return errArgs
	}
	for _, path := range args {
		img, err := format.OpenImage(path, false, cfg.Limits())
		if err != nil {
			return err
		}
		h := img.Header()
		fmt.Println("================================")
		fmt.Println(h.String())

		bytes := stride.VoxelCount(h.Sizes()) * int64(h.DataType.Bytes())
		fmt.Printf("data size:  %s\n", humanize.Bytes(uint64(bytes)))

		if h.NDim() > 3 {
			fmt.Printf("volumes:    %d of %s voxels\n",
				stride.VoxelCountRange(h.Sizes(), 3, h.NDim()),
				humanize.Comma(stride.VoxelCountRange(h.Sizes(), 0, 3)))
		}

		a := img.Accessor()
		values := make([]float64, 0, stride.VoxelCount(h.Sizes()))
		lo, hi := math.Inf(1), math.Inf(-1)
		err = loop.ByStride(a, 0, loop.All).ForEach(func() error {
			if v := a.Value(); !math.IsNaN(v) {
				values = append(values, v)
				lo, hi = math.Min(lo, v), math.Max(hi, v)
			}
			return nil
		}, a)
		if err != nil {
			return err
		}
		if len(values) > 0 {
			mean, std := stat.MeanStdDev(values, nil)
			fmt.Printf("intensity:  min %g  max %g  mean %g  std %g\n", lo, hi, mean, std)
		}
		if err := img.Close(); err != nil {
			return err
		}
	}
	return nil
}

// coordFlag collects -coord options of the form axis=list, where list holds
// coordinates and inclusive ranges such as 0:2,5.
type coordFlag map[int][]int

func (c coordFlag) String() string { return fmt.Sprint(map[int][]int(c)) }

func (c coordFlag) Set(s string) error {
	axisStr, list, ok := strings.Cut(s, "=")
	if !ok {
		return fmt.Errorf("expected axis=coordinates, got %q", s)
	}
	axis, err := strconv.Atoi(strings.TrimSpace(axisStr))
	if err != nil || axis < 0 {
		return fmt.Errorf("invalid axis in %q", s)
	}
	var coords []int
	for _, item := range strings.Split(list, ",") {
		lo, hi, isRange := strings.Cut(strings.TrimSpace(item), ":")
		first, err := strconv.Atoi(lo)
		if err != nil {
			return fmt.Errorf("invalid coordinate in %q: %w", s, err)
		}
		last := first
		if isRange {
			if last, err = strconv.Atoi(hi); err != nil {
				return fmt.Errorf("invalid coordinate in %q: %w", s, err)
			}
		}
		if last < first {
			return fmt.Errorf("empty range %q", item)
		}
		for x := first; x <= last; x++ {
			coords = append(coords, x)
		}
	}
	c[axis] = append(c[axis], coords...)
	return nil
}

func runConvert(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	dtype := fs.String("datatype", "", "Output data type, e.g. float32le, int16, uint8")
	strides := fs.String("strides", "", "Output strides, e.g. 1,2,3 or -1,2,3")
	axes := fs.String("axes", "", "Output axis order, e.g. 1,0,2; size-one axes may be left out")
	coords := coordFlag{}
	fs.Var(coords, "coord", "Keep only these coordinates along an axis, e.g. 3=0:2,5 (repeatable)")
	gzip := fs.Bool("gzip", cfg.IO.Compress, "Compress the output data")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errArgs
	}

	in, err := format.OpenImage(fs.Arg(0), false, cfg.Limits())
	if err != nil {
		return err
	}
	defer in.Close()

	view := voxel.NewView(in.Accessor())
	if len(coords) > 0 {
		sel := make([][]int, view.NDim())
		for axis, c := range coords {
			if axis >= view.NDim() {
				return fmt.Errorf("-coord axis %d out of range for %d axes", axis, view.NDim())
			}
			sel[axis] = c
		}
		if view, err = view.Extract(sel); err != nil {
			return err
		}
	}
	if *axes != "" {
		order, err := parseList(*axes, strconv.Atoi)
		if err != nil {
			return err
		}
		if view, err = view.Permute(order); err != nil {
			return err
		}
	}

	h := view.Header().Clone()
	if *dtype != "" {
		if h.DataType, err = header.ParseDataType(*dtype); err != nil {
			return err
		}
		h.IntensityOffset, h.IntensityScale = 0, 1
	}
	if *strides != "" {
		s, err := parseList(*strides, strconv.Atoi)
		if err != nil {
			return err
		}
		h.SetStrides(stride.NearestMatch(h.Strides(), s))
	}

	opts := cfg.CreateOptions()
	opts.Compress = *gzip
	out, err := format.CreateImage(fs.Arg(1), h, opts)
	if err != nil {
		return err
	}
	if err := threaded.Copy(cfg.ThreadOptions("copying"), view, out.Accessor()); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func runCat(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("cat", flag.ContinueOnError)
	axis := fs.Int("axis", -1, "Concatenation axis (default: the last non-singleton axis beyond the spatial ones, or a new axis 3)")
	dtype := fs.String("datatype", "", "Output data type (default: that of the first input)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 3 {
		return errArgs
	}

	paths := fs.Args()[:fs.NArg()-1]
	imgs := make([]*voxel.Image, 0, len(paths))
	hdrs := make([]*header.Header, 0, len(paths))
	for _, path := range paths {
		in, err := format.OpenImage(path, false, cfg.Limits())
		if err != nil {
			return err
		}
		defer in.Close()
		imgs = append(imgs, in.Image)
		hdrs = append(hdrs, in.Header())
	}

	h, along, err := voxel.ConcatHeader(hdrs, *axis)
	if err != nil {
		return err
	}
	if *dtype != "" {
		if h.DataType, err = header.ParseDataType(*dtype); err != nil {
			return err
		}
		h.IntensityOffset, h.IntensityScale = 0, 1
	}
	out, err := format.CreateImage(fs.Arg(fs.NArg()-1), h, cfg.CreateOptions())
	if err != nil {
		return err
	}
	if err := voxel.Concatenate(out.Image, imgs, along, cfg.ThreadOptions("concatenating")); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func kernelFlag(fs *flag.FlagSet, cfg *config.Config) *string {
	return fs.String("interp", cfg.Kernel().String(), "Interpolation kernel: nearest, linear, cubic or sinc")
}

// resample writes in, resampled onto hdr, to the image at path.
func resample(cfg *config.Config, in *format.Image, hdr *header.Header, path, kernel string, opts reslice.Options) error {
	kind, err := interpolation.ParseKind(kernel)
	if err != nil {
		return err
	}
	src, err := voxel.Preload(in.Image, nil, cfg.ThreadOptions(""))
	if err != nil {
		return err
	}
	out, err := format.CreateImage(path, hdr, cfg.CreateOptions())
	if err != nil {
		return err
	}
	topts := cfg.ThreadOptions(fmt.Sprintf("reslicing %q", in.Header().Name))
	if err := reslice.Resample(src, out.Image, kind, opts, topts, cfg.InterpOptions()...); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func runReslice(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("reslice", flag.ContinueOnError)
	kernel := kernelFlag(fs, cfg)
	oversample := fs.String("oversample", "", "Oversampling factors x,y,z (default: automatic)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 3 {
		return errArgs
	}

	var opts reslice.Options
	if *oversample != "" {
		factors, err := parseList(*oversample, strconv.Atoi)
		if err != nil {
			return err
		}
		t, err := triple(factors, "-oversample")
		if err != nil {
			return err
		}
		opts.Oversample = t[:]
	}

	in, err := format.OpenImage(fs.Arg(0), false, cfg.Limits())
	if err != nil {
		return err
	}
	defer in.Close()
	tmpl, err := format.ReadHeader(fs.Arg(1))
	if err != nil {
		return err
	}
	return resample(cfg, in, reslice.Template(in.Header(), tmpl), fs.Arg(2), *kernel, opts)
}

func runResize(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("resize", flag.ContinueOnError)
	kernel := kernelFlag(fs, cfg)
	vox := fs.String("voxel", "", "New voxel size, one value or x,y,z")
	scale := fs.String("scale", "", "Scale factor, one value or x,y,z")
	size := fs.String("size", "", "New image size x,y,z")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errArgs
	}

	in, err := format.OpenImage(fs.Arg(0), false, cfg.Limits())
	if err != nil {
		return err
	}
	defer in.Close()

	var hdr *header.Header
	switch {
	case *vox != "":
		v, err := parseList(*vox, parseFloat)
		if err != nil {
			return err
		}
		t, err := triple(v, "-voxel")
		if err != nil {
			return err
		}
		hdr, err = reslice.ByVoxelSize(in.Header(), t)
		if err != nil {
			return err
		}
	case *scale != "":
		v, err := parseList(*scale, parseFloat)
		if err != nil {
			return err
		}
		t, err := triple(v, "-scale")
		if err != nil {
			return err
		}
		hdr, err = reslice.ByScale(in.Header(), t)
		if err != nil {
			return err
		}
	case *size != "":
		v, err := parseList(*size, strconv.Atoi)
		if err != nil {
			return err
		}
		t, err := triple(v, "-size")
		if err != nil {
			return err
		}
		hdr, err = reslice.BySize(in.Header(), t)
		if err != nil {
			return err
		}
	default:
		return errors.New("one of -voxel, -scale or -size is required")
	}
	for axis := range hdr.Axes {
		hdr.Axes[axis].Stride = axis + 1
	}
	return resample(cfg, in, hdr, fs.Arg(1), *kernel, reslice.Options{})
}

func runSlices(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("slices", flag.ContinueOnError)
	axis := fs.String("axis", "all", "Slice axis: x, y, z or all")
	ext := fs.String("ext", ".png", "Image format extension: .png or .jpg")
	volume := fs.Int("volume", 0, "Index along the fourth axis for image series")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errArgs
	}

	in, err := format.OpenImage(fs.Arg(0), false, cfg.Limits())
	if err != nil {
		return err
	}
	defer in.Close()

	acc := in.Accessor()
	if acc.NDim() > 3 {
		if *volume < 0 || *volume >= acc.Size(3) {
			return fmt.Errorf("volume %d outside [0, %d)", *volume, acc.Size(3))
		}
		acc.SetIndex(3, *volume)
	}
	viewer, err := visualization.NewViewer(acc)
	if err != nil {
		return err
	}

	axes := []string{*axis}
	if *axis == "all" {
		axes = []string{"x", "y", "z"}
	}
	for _, a := range axes {
		dir := filepath.Join(fs.Arg(1), a)
		fmt.Printf("Saving %s-axis slices to: %s\n", a, dir)
		if err := viewer.SaveSliceSequence(a, dir, *ext); err != nil {
			return err
		}
	}
	return nil
}

func runImport(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	gap := fs.Float64("gap", 1.0, "Inter-slice gap in mm")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errArgs
	}

	vol, err := visualization.LoadSliceStack(fs.Arg(0), *gap)
	if err != nil {
		return err
	}
	h := vol.Header().Clone()
	h.DataType = header.Float32LE
	out, err := format.CreateImage(fs.Arg(1), h, cfg.CreateOptions())
	if err != nil {
		return err
	}
	if err := threaded.Copy(cfg.ThreadOptions("importing"), vol.Accessor(), out.Accessor()); err != nil {
		out.Close()
		return err
	}
	fmt.Printf("Imported %d slices of %dx%d from %s\n", h.Size(2), h.Size(0), h.Size(1), fs.Arg(0))
	return out.Close()
}

func runConfig(cfg *config.Config, args []string) error {
	if len(args) != 1 {
		return errArgs
	}
	if _, err := os.Stat(args[0]); err == nil {
		return fmt.Errorf("%s already exists", args[0])
	}
	if err := config.CreateDefaultConfigFile(args[0]); err != nil {
		return err
	}
	fmt.Printf("Default configuration written to %s\n", args[0])
	return nil
}
