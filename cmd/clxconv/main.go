// Command clxconv converts images to CLX sprite lists and back.
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"image/color"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rcarmo/go-clx/internal/archive"
	"github.com/rcarmo/go-clx/internal/codec"
	"github.com/rcarmo/go-clx/internal/imaging"
	"github.com/rcarmo/go-clx/internal/logging"
)

const usage = `USAGE:
  clxconv encode [-transparent N] [-frames N] [-header 6|10] [-bottomup] [-zstd] [-level L] [-palette f.pal] [-max-width W] [-max-height H] in out
  clxconv decode [-frame i] [-transparent N] [-bottomup] [-palette f.pal] [-scale 1..16] [-max-width W] [-max-height H] in out.png
  clxconv info [-transparent N] [-max-width W] [-max-height H] in
`

const (
	maxScale       = 16
	defaultMaxSize = 4096
)

var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(argv []string, stdout, stderr io.Writer) int {
	logging.SetOutput(stderr)

	if len(argv) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	var err error
	switch argv[0] {
	case "encode":
		err = runEncode(argv[1:], stderr)
	case "decode":
		err = runDecode(argv[1:], stderr)
	case "info":
		err = runInfo(argv[1:], stdout, stderr)
	case "help", "-h", "-help", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		err = fmt.Errorf("%w: unknown command %q", errUsage, argv[0])
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(stderr, err)
		}
		fmt.Fprint(stderr, usage)
		return 2
	default:
		logging.Error("%s: %v", argv[0], err)
		return 1
	}
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fset := flag.NewFlagSet(name, flag.ContinueOnError)
	fset.SetOutput(stderr)
	return fset
}

// parseFlags reports bad flags as usage errors.
func parseFlags(fset *flag.FlagSet, argv []string) error {
	err := fset.Parse(argv)
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return err
	}
	return fmt.Errorf("%w: %v", errUsage, err)
}

// sizeLimits registers the frame size flags shared by every command.
func sizeLimits(fset *flag.FlagSet) (width, height *int) {
	width = fset.Int("max-width", defaultMaxSize, "reject frames wider than this, 0 for no limit")
	height = fset.Int("max-height", defaultMaxSize, "reject frames taller than this, 0 for no limit")
	return width, height
}

func runEncode(argv []string, stderr io.Writer) error {
	fset := newFlagSet("encode", stderr)
	transparent := fset.Int("transparent", imaging.NoTransparency, "palette index encoded as transparent runs, -1 for none")
	frames := fset.Int("frames", 1, "number of frames stacked vertically in the input")
	header := fset.Int("header", codec.HeaderSize, "frame header size, 6 or 10")
	bottomUp := fset.Bool("bottomup", false, "store rows bottom row first")
	compress := fset.Bool("zstd", false, "wrap the sprite list in a zstd archive")
	levelName := fset.String("level", "default", "zstd level: fastest, default, better, best")
	paletteFile := fset.String("palette", "", ".pal file used to quantise RGB input")
	maxWidth, maxHeight := sizeLimits(fset)
	if err := parseFlags(fset, argv); err != nil {
		return err
	}
	if fset.NArg() != 2 {
		return fmt.Errorf("%w: encode needs an input and an output file", errUsage)
	}
	if *frames < 1 {
		return fmt.Errorf("%w: -frames must be at least 1", errUsage)
	}
	if *transparent < imaging.NoTransparency || *transparent > 255 {
		return fmt.Errorf("%w: -transparent must be -1..255", errUsage)
	}
	level, err := archive.ParseLevel(*levelName)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	in, out := fset.Arg(0), fset.Arg(1)
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	ic, _, err := imaging.DecodeImageConfig(bytes.NewReader(data))
	if err != nil {
		return err
	}
	if (*maxWidth > 0 && ic.Width > *maxWidth) || (*maxHeight > 0 && ic.Height / *frames > *maxHeight) {
		return fmt.Errorf("%w: %dx%d image in %d frames exceeds %dx%d",
			codec.ErrFrameTooLarge, ic.Width, ic.Height, *frames, *maxWidth, *maxHeight)
	}
	img, format, err := imaging.DecodeImage(bytes.NewReader(data))
	if err != nil {
		return err
	}

	fallback, err := loadPalette(*paletteFile)
	if err != nil {
		return err
	}
	strip, err := imaging.ToFrame(img, imaging.PaletteOf(img, fallback), *transparent)
	if err != nil {
		return err
	}
	parts, err := imaging.SplitFrames(strip, *frames)
	if err != nil {
		return err
	}

	opts := []codec.Option{codec.WithHeaderSize(*header)}
	if *transparent >= 0 {
		opts = append(opts, codec.WithTransparent(byte(*transparent)))
	}
	if *bottomUp {
		opts = append(opts, codec.WithBottomUp())
	}

	list, err := codec.EncodeList(parts, opts...)
	if err != nil {
		return err
	}
	result := list
	if *compress {
		if result, err = archive.CompressLevel(list, level); err != nil {
			return err
		}
	}

	if err := os.WriteFile(out, result, 0o644); err != nil {
		return err
	}
	logging.Info("%s (%s %dx%d) -> %s: %d frames, %d bytes", in, format, strip.Width, strip.Height, out, len(parts), len(result))
	return nil
}

func runDecode(argv []string, stderr io.Writer) error {
	fset := newFlagSet("decode", stderr)
	index := fset.Int("frame", 0, "frame to render")
	transparent := fset.Int("transparent", imaging.NoTransparency, "palette index rendered transparent, -1 for none")
	bottomUp := fset.Bool("bottomup", false, "rows are stored bottom row first")
	paletteFile := fset.String("palette", "", ".pal file, grayscale when empty")
	scale := fset.Int("scale", 1, "integer upscale factor, 1..16")
	maxWidth, maxHeight := sizeLimits(fset)
	if err := parseFlags(fset, argv); err != nil {
		return err
	}
	if fset.NArg() != 2 {
		return fmt.Errorf("%w: decode needs an input and an output file", errUsage)
	}
	if *scale < 1 || *scale > maxScale {
		return fmt.Errorf("%w: -scale must be 1..%d", errUsage, maxScale)
	}
	if *transparent < imaging.NoTransparency || *transparent > 255 {
		return fmt.Errorf("%w: -transparent must be -1..255", errUsage)
	}

	list, err := readList(fset.Arg(0))
	if err != nil {
		return err
	}

	opts := []codec.Option{codec.WithMaxSize(*maxWidth, *maxHeight)}
	if *transparent >= 0 {
		opts = append(opts, codec.WithTransparent(byte(*transparent)))
	}
	if *bottomUp {
		opts = append(opts, codec.WithBottomUp())
	}
	f, err := list.Decode(*index, opts...)
	if err != nil {
		return err
	}

	pal, err := loadPalette(*paletteFile)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := imaging.RenderPreview(&buf, imaging.ToPaletted(f, pal, *transparent), *scale); err != nil {
		return err
	}
	return os.WriteFile(fset.Arg(1), buf.Bytes(), 0o644)
}

func runInfo(argv []string, stdout, stderr io.Writer) error {
	fset := newFlagSet("info", stderr)
	transparent := fset.Int("transparent", imaging.NoTransparency, "report opaque bounds against this index")
	maxWidth, maxHeight := sizeLimits(fset)
	if err := parseFlags(fset, argv); err != nil {
		return err
	}
	if fset.NArg() != 1 {
		return fmt.Errorf("%w: info needs an input file", errUsage)
	}

	data, err := os.ReadFile(fset.Arg(0))
	if err != nil {
		return err
	}
	raw, err := archive.Unwrap(data)
	if err != nil {
		return err
	}
	list, err := codec.ParseList(raw)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%s: %d frames, %d bytes", fset.Arg(0), list.Len(), len(raw))
	if archive.IsCompressed(data) {
		fmt.Fprintf(stdout, " (%d compressed)", len(data))
	}
	fmt.Fprintln(stdout)

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FRAME\tWIDTH\tHEIGHT\tHEADER\tBYTES\tBOUNDS")
	for i := 0; i < list.Len(); i++ {
		h, err := list.Header(i)
		if err != nil {
			return err
		}
		if err := h.CheckSize(*maxWidth, *maxHeight); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		bounds := "-"
		if *transparent >= 0 {
			f, err := list.Decode(i, codec.WithTransparent(byte(*transparent)))
			if err != nil {
				return err
			}
			if x0, y0, x1, y1, ok := f.Bounds(byte(*transparent)); ok {
				bounds = fmt.Sprintf("%d,%d-%d,%d", x0, y0, x1, y1)
			} else {
				bounds = "empty"
			}
		}
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%s\n", i, h.Width, h.Height, h.Size, len(list.Frame(i)), bounds)
	}
	return tw.Flush()
}

func readList(path string) (codec.SpriteList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return codec.SpriteList{}, err
	}
	raw, err := archive.Unwrap(data)
	if err != nil {
		return codec.SpriteList{}, err
	}
	return codec.ParseList(raw)
}

func loadPalette(path string) (color.Palette, error) {
	if path == "" {
		return imaging.GrayPalette(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return imaging.LoadPalette(f)
}
