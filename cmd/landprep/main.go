// Command landprep builds the tile files read by the terrain producers:
// DEM residual pyramids, color mipmaps and aperture files.
//
// Usage:
//
//	landprep [flags] height   heightmap.png out.dem
//	landprep [flags] color    image.png     out.col
//	landprep [flags] aperture heightmap.png out.ap
//
// Heightmaps are grayscale images whose full range maps to
// [-height-min, -height-max]. Each built file is appended as a row of the
// manifest CSV.
package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"strings"
	"time"

	_ "golang.org/x/image/tiff"

	"github.com/gogpu/landscape"
	"github.com/gogpu/landscape/config"
	"github.com/gogpu/landscape/internal/color"
	"github.com/gogpu/landscape/preprocess"
	"github.com/gogpu/landscape/tilefile"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config.yaml (empty = use defaults)")
		manifest   = flag.String("manifest", "manifest.csv", "manifest CSV to append to (empty = none)")
		heightMin  = flag.Float64("height-min", 0, "height of black heightmap pixels")
		heightMax  = flag.Float64("height-max", 1000, "height of white heightmap pixels")
		jsonLog    = flag.Bool("json", false, "log as JSON")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: landprep [flags] height|color|aperture input output\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if *jsonLog {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	landscape.SetLogger(logger)

	if flag.NArg() != 3 {
		flag.Usage()
		os.Exit(2)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	job := job{
		mode:      flag.Arg(0),
		input:     flag.Arg(1),
		output:    flag.Arg(2),
		heightMin: *heightMin,
		heightMax: *heightMax,
	}
	start := time.Now()
	entry, err := job.run(cfg.Preprocess)
	if err != nil {
		logger.Error("build failed", "mode", job.mode, "input", job.input, "error", err)
		os.Exit(1)
	}
	entry.Seconds = time.Since(start).Seconds()
	logger.Info("file written",
		"mode", entry.Kind,
		"output", entry.Path,
		"tiles", entry.Tiles,
		"seconds", entry.Seconds,
	)

	if *manifest != "" {
		if err := appendManifest(*manifest, entry); err != nil {
			logger.Error("failed to write manifest", "error", err)
			os.Exit(1)
		}
	}
}

// job is one landprep invocation.
type job struct {
	mode, input, output  string
	heightMin, heightMax float64
}

var errMode = errors.New("landprep: unknown mode")

func (j job) run(cfg config.PreprocessConfig) (ManifestEntry, error) {
	entry := ManifestEntry{Kind: j.mode, Path: j.output, TileSize: cfg.TileSize}
	switch j.mode {
	case "height":
		src, err := loadHeightmap(j.input, j.heightMin, j.heightMax)
		if err != nil {
			return entry, err
		}
		w, stats, err := preprocess.BuildHeights(src, preprocess.HeightConfig{
			TileSize:      cfg.TileSize,
			MinLevel:      cfg.MinLevel,
			MaxLevel:      cfg.MaxLevel,
			ResidualScale: float32(cfg.ResidualScale),
		})
		if err != nil {
			return entry, err
		}
		entry.Levels = int(w.Header().MaxLevel) + 1
		entry.Tiles = stats.Tiles
		entry.ConstantTiles = stats.ConstantTiles
		entry.Overflows = stats.Overflows
		entry.MaxResidual = stats.MaxResidual
		entry.RMSResidual = stats.RMSResidual
		return entry, w.WriteFile(j.output)

	case "color":
		img, err := loadImage(j.input)
		if err != nil {
			return entry, err
		}
		enc, dxt, err := parseEncoding(cfg.ColorEncoding)
		if err != nil {
			return entry, err
		}
		w, err := preprocess.BuildColors(img, preprocess.ColorConfig{
			TileSize:     cfg.TileSize,
			MaxLevel:     cfg.MaxLevel,
			Channels:     cfg.ColorChannels,
			Space:        color.ParseSpace(cfg.ColorSpace),
			NoBorder:     cfg.NoBorder,
			DXT:          dxt,
			Encoding:     enc,
			Quality:      cfg.JPEGQuality,
			ResidualStep: cfg.ResidualStep,
		})
		if err != nil {
			return entry, err
		}
		entry.Levels = cfg.MaxLevel + 1
		entry.Tiles = w.Header().TileCount()
		return entry, w.WriteFile(j.output)

	case "aperture":
		src, err := loadHeightmap(j.input, j.heightMin, j.heightMax)
		if err != nil {
			return entry, err
		}
		w, err := preprocess.BuildAperture(src, preprocess.ApertureConfig{
			TileSize: cfg.TileSize,
			MaxLevel: cfg.MaxLevel,
			Samples:  cfg.ApertureSamples,
			Size:     cfg.ApertureSize,
		})
		if err != nil {
			return entry, err
		}
		entry.Levels = cfg.MaxLevel + 1
		entry.Tiles = w.Header().TileCount()
		return entry, w.WriteFile(j.output)
	}
	return entry, fmt.Errorf("%w %q", errMode, j.mode)
}

func parseEncoding(name string) (tilefile.Encoding, bool, error) {
	switch strings.ToLower(name) {
	case "", "deflate":
		return tilefile.EncodingDeflate, false, nil
	case "jpeg", "jpg":
		return tilefile.EncodingJPEG, false, nil
	case "dxt", "dxt1":
		return tilefile.EncodingDXT, true, nil
	}
	return 0, false, fmt.Errorf("landprep: unknown color encoding %q", name)
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("landprep: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("landprep: decode %s: %w", path, err)
	}
	return img, nil
}

// loadHeightmap reads a grayscale image as a height grid.
func loadHeightmap(path string, lo, hi float64) (*preprocess.GridSampler, error) {
	img, err := loadImage(path)
	if err != nil {
		return nil, err
	}
	values, w, h := heightsOf(img, lo, hi)
	return preprocess.NewGridSampler(values, w, h), nil
}

func heightsOf(img image.Image, lo, hi float64) ([]float32, int, int) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	values := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Color.RGBA is 16 bits per channel; use the luminance of gray.
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			v := (float64(r) + float64(g) + float64(bl)) / (3 * 0xffff)
			values[y*w+x] = float32(lo + v*(hi-lo))
		}
	}
	return values, w, h
}
