package terrain

import (
	"encoding/json"
	"fmt"
	"os"
)

// File is the JSON layout of a terrain definition: a declared feature count
// and one parallel column per attribute.
type File struct {
	Features int       `json:"features"`
	Bounds   []float64 `json:"bounds"`
	Costs    []float64 `json:"costs"`
	Tags     []string  `json:"tags"`
	Colors   []RGB     `json:"colors"`
}

// FileOf describes t in the file layout.
func FileOf(t *Table) File {
	cols := ColumnsOf(t)
	return File{
		Features: t.Len(),
		Bounds:   cols.Bounds,
		Costs:    cols.Costs,
		Tags:     cols.Tags,
		Colors:   cols.Colors,
	}
}

// LoadFile reads a terrain definition and builds its table with Build.
// Column mismatches return the Default table along with the error.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read terrain file: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode terrain file %s: %w", path, err)
	}
	t, err := Build(f.Features, Columns{Bounds: f.Bounds, Costs: f.Costs, Tags: f.Tags, Colors: f.Colors})
	if err != nil {
		return t, fmt.Errorf("terrain file %s: %w", path, err)
	}
	return t, nil
}
