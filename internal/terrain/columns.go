package terrain

import (
	"fmt"
	"log/slog"
	"strings"
)

// Columns holds terrain definitions as parallel arrays, one entry per feature.
type Columns struct {
	Bounds []float64
	Costs  []float64
	Tags   []string
	Colors []RGB
}

// FieldMismatch records one column whose length disagrees with the feature count.
type FieldMismatch struct {
	Column string
	Got    int
	Want   int
}

// MismatchError lists every mismatched column. It matches ErrConfigurationMismatch.
type MismatchError struct {
	Fields []FieldMismatch
}

func (e *MismatchError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s has %d entries, want %d", f.Column, f.Got, f.Want))
	}
	return ErrConfigurationMismatch.Error() + ": " + strings.Join(parts, "; ")
}

// Is reports whether target is ErrConfigurationMismatch.
func (e *MismatchError) Is(target error) bool { return target == ErrConfigurationMismatch }

// Build assembles a table from parallel columns and a declared feature count.
//
// A feature count below MinFeatures is rejected with ErrTooFewFeatures. When
// any column length differs from features, Build logs a warning and returns
// the Default table together with a *MismatchError, so callers always get a
// usable table on that path.
func Build(features int, cols Columns) (*Table, error) {
	if features < MinFeatures {
		return nil, fmt.Errorf("%w: %d declared, need at least %d", ErrTooFewFeatures, features, MinFeatures)
	}

	var mismatches []FieldMismatch
	check := func(name string, n int) {
		if n != features {
			mismatches = append(mismatches, FieldMismatch{Column: name, Got: n, Want: features})
		}
	}
	check("bounds", len(cols.Bounds))
	check("costs", len(cols.Costs))
	check("tags", len(cols.Tags))
	check("colors", len(cols.Colors))

	if len(mismatches) > 0 {
		err := &MismatchError{Fields: mismatches}
		slog.Warn("terrain columns do not match feature count, using default table",
			"features", features, "error", err)
		return Default(), err
	}

	classes := make([]Class, features)
	for i := range classes {
		classes[i] = Class{
			UpperBound: cols.Bounds[i],
			Cost:       cols.Costs[i],
			Tag:        cols.Tags[i],
			Color:      cols.Colors[i],
		}
	}
	return NewTable(classes)
}

// ColumnsOf splits a table back into parallel columns.
func ColumnsOf(t *Table) Columns {
	cols := Columns{
		Bounds: make([]float64, t.Len()),
		Costs:  make([]float64, t.Len()),
		Tags:   make([]string, t.Len()),
		Colors: make([]RGB, t.Len()),
	}
	for i, c := range t.classes {
		cols.Bounds[i] = c.UpperBound
		cols.Costs[i] = c.Cost
		cols.Tags[i] = c.Tag
		cols.Colors[i] = c.Color
	}
	return cols
}
