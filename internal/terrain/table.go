// Package terrain provides terrain classes, their motility costs, and the
// classification of continuous field values into discrete classes.
package terrain

import (
	"errors"
	"fmt"
	"math"
)

// MinFeatures is the smallest declared feature count accepted by Build.
// Fewer distinct costs leave the view finder without meaningful variance.
const MinFeatures = 5

// MaxClasses bounds the table so class indices fit in a grid byte.
const MaxClasses = 256

var (
	// ErrConfigurationMismatch marks column lengths that disagree with the declared feature count.
	ErrConfigurationMismatch = errors.New("terrain: configuration mismatch")
	// ErrTooFewFeatures marks a declared feature count below MinFeatures.
	ErrTooFewFeatures = errors.New("terrain: too few features")
	// ErrLookupFailure marks a class index with no entry in the table.
	ErrLookupFailure = errors.New("terrain: lookup failure")
	// ErrInvalidTable marks an empty, oversized, or unordered class list.
	ErrInvalidTable = errors.New("terrain: invalid table")
)

// RGB is a display color with 0-255 channels.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Hex returns the color as a #rrggbb string.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Class is one terrain type. A field value v belongs to the first class,
// in ascending order, whose UpperBound is strictly greater than v.
type Class struct {
	UpperBound float64 `json:"upper_bound"`
	Cost       float64 `json:"cost"` // Motility: lower is easier to cross
	Tag        string  `json:"tag"`
	Color      RGB     `json:"color"`
}

// Table is an ordered, immutable set of terrain classes.
type Table struct {
	classes []Class
}

// NewTable validates and copies the given classes into a Table.
// Bounds must be strictly ascending and costs finite.
func NewTable(classes []Class) (*Table, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("%w: no classes", ErrInvalidTable)
	}
	if len(classes) > MaxClasses {
		return nil, fmt.Errorf("%w: %d classes exceeds %d", ErrInvalidTable, len(classes), MaxClasses)
	}
	for i, c := range classes {
		if math.IsNaN(c.UpperBound) {
			return nil, fmt.Errorf("%w: class %d (%s) has NaN bound", ErrInvalidTable, i, c.Tag)
		}
		if math.IsNaN(c.Cost) || math.IsInf(c.Cost, 0) {
			return nil, fmt.Errorf("%w: class %d (%s) has non-finite cost", ErrInvalidTable, i, c.Tag)
		}
		if i > 0 && c.UpperBound <= classes[i-1].UpperBound {
			return nil, fmt.Errorf("%w: bound %g of %q not above %g", ErrInvalidTable,
				c.UpperBound, c.Tag, classes[i-1].UpperBound)
		}
	}
	return &Table{classes: append([]Class(nil), classes...)}, nil
}

// Len returns the number of classes.
func (t *Table) Len() int { return len(t.classes) }

// Classes returns a copy of the class list.
func (t *Table) Classes() []Class {
	return append([]Class(nil), t.classes...)
}

// Classify returns the index of the first class whose bound exceeds v.
// Values at or above the last bound (and NaN) fall into the last class,
// so every value has a class.
func (t *Table) Classify(v float64) int {
	for i, c := range t.classes {
		if v < c.UpperBound {
			return i
		}
	}
	return len(t.classes) - 1
}

// Class returns the class at index i.
func (t *Table) Class(i int) (Class, error) {
	if i < 0 || i >= len(t.classes) {
		return Class{}, fmt.Errorf("%w: class index %d of %d", ErrLookupFailure, i, len(t.classes))
	}
	return t.classes[i], nil
}

// Cost returns the motility cost of class i.
func (t *Table) Cost(i int) (float64, error) {
	c, err := t.Class(i)
	if err != nil {
		return 0, err
	}
	return c.Cost, nil
}

// Tag returns the name of class i.
func (t *Table) Tag(i int) (string, error) {
	c, err := t.Class(i)
	if err != nil {
		return "", err
	}
	return c.Tag, nil
}

// String returns a summary of the table.
func (t *Table) String() string {
	return fmt.Sprintf("Table(classes=%d)", len(t.classes))
}
