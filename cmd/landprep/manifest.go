package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/gocarina/gocsv"
)

// ManifestEntry is one row of the manifest CSV.
type ManifestEntry struct {
	Kind          string  `csv:"kind"`
	Path          string  `csv:"path"`
	TileSize      int     `csv:"tile_size"`
	Levels        int     `csv:"levels"`
	Tiles         int     `csv:"tiles"`
	ConstantTiles int     `csv:"constant_tiles"`
	Overflows     int     `csv:"overflows"`
	MaxResidual   float64 `csv:"max_residual"`
	RMSResidual   float64 `csv:"rms_residual"`
	Seconds       float64 `csv:"seconds"`
}

// appendManifest appends e to the manifest at path, writing the header
// row when the file is new or empty.
func appendManifest(path string, e ManifestEntry) error {
	fresh := true
	if st, err := os.Stat(path); err == nil {
		fresh = st.Size() == 0
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("landprep: manifest: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("landprep: manifest: %w", err)
	}
	records := []ManifestEntry{e}
	if fresh {
		err = gocsv.Marshal(records, f)
	} else {
		err = gocsv.MarshalWithoutHeaders(records, f)
	}
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("landprep: manifest: %w", err)
	}
	return f.Close()
}

// readManifest reads every row of a manifest.
func readManifest(path string) ([]ManifestEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("landprep: manifest: %w", err)
	}
	defer f.Close()
	var entries []ManifestEntry
	if err := gocsv.UnmarshalFile(f, &entries); err != nil {
		return nil, fmt.Errorf("landprep: manifest: %w", err)
	}
	return entries, nil
}
