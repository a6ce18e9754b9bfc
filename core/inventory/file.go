package inventory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// FileVersion is the current inventory file format.
const FileVersion = 1

// ErrUnsupportedVersion is returned for files written by a newer release.
var ErrUnsupportedVersion = errors.New("inventory: unsupported file version")

type fileFormat struct {
	Version int    `json:"version"`
	Totals  Totals `json:"totals"`
	Lots    []Lot  `json:"lots"`
}

// Load reads an inventory file. A missing file yields an empty inventory.
func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}
	return Decode(data)
}

// Decode parses the JSON produced by Encode.
func Decode(data []byte) (*Inventory, error) {
	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode inventory: %w", err)
	}
	if f.Version > FileVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, f.Version)
	}
	return FromLots(f.Lots), nil
}

// Encode serializes the inventory, tombstones included.
func (inv *Inventory) Encode() ([]byte, error) {
	lots := inv.lots
	if lots == nil {
		lots = []Lot{}
	}
	return json.MarshalIndent(fileFormat{Version: FileVersion, Totals: inv.totals, Lots: lots}, "", "  ")
}

// WriteFile writes the inventory to path and flushes it to disk. It is meant
// to target a temporary path that a journal then renames into place.
func (inv *Inventory) WriteFile(path string) error {
	data, err := inv.Encode()
	if err != nil {
		return fmt.Errorf("encode inventory: %w", err)
	}
	return WriteFileSync(path, data)
}

// WriteFileSync writes data to path and fsyncs it before returning.
func WriteFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
