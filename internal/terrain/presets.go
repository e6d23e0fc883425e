package terrain

import "fmt"

// Default returns the built-in five-class table.
func Default() *Table {
	return mustTable([]Class{
		{UpperBound: -0.05, Cost: 0.94, Tag: "barren", Color: RGB{240, 230, 140}},
		{UpperBound: 0, Cost: 1.02, Tag: "water", Color: RGB{65, 105, 225}},
		{UpperBound: 0.2, Cost: 0.46, Tag: "pasture", Color: RGB{34, 139, 34}},
		{UpperBound: 0.36, Cost: 2.33, Tag: "spruce", Color: RGB{139, 137, 137}},
		{UpperBound: 1, Cost: 3.12, Tag: "mixed conifer", Color: RGB{255, 250, 250}},
	})
}

// Extended returns a fifteen-class table with finer vegetation bands.
func Extended() *Table {
	return mustTable([]Class{
		{UpperBound: -0.867, Cost: 0.94, Tag: "open space", Color: RGB{128, 128, 0}},
		{UpperBound: -0.733, Cost: 0.59, Tag: "low space", Color: RGB{85, 107, 47}},
		{UpperBound: -0.6, Cost: 1.14, Tag: "med space", Color: RGB{107, 142, 35}},
		{UpperBound: -0.467, Cost: 3.12, Tag: "barren", Color: RGB{210, 180, 140}},
		{UpperBound: -0.333, Cost: 0.46, Tag: "pasture", Color: RGB{154, 205, 50}},
		{UpperBound: -0.2, Cost: 0.96, Tag: "crops", Color: RGB{218, 165, 32}},
		{UpperBound: -0.067, Cost: 1.11, Tag: "sparse veg", Color: RGB{144, 238, 144}},
		{UpperBound: 0, Cost: 1.02, Tag: "open water", Color: RGB{65, 105, 225}},
		{UpperBound: 0.067, Cost: 1.80, Tag: "alpine sparse", Color: RGB{255, 248, 220}},
		{UpperBound: 0.2, Cost: 1.51, Tag: "aspen", Color: RGB{173, 255, 47}},
		{UpperBound: 0.333, Cost: 1.90, Tag: "juniper", Color: RGB{143, 188, 143}},
		{UpperBound: 0.467, Cost: 2.33, Tag: "dry spruce", Color: RGB{0, 128, 0}},
		{UpperBound: 0.733, Cost: 1.41, Tag: "dry mixed", Color: RGB{34, 139, 34}},
		{UpperBound: 0.867, Cost: 1.98, Tag: "pine", Color: RGB{46, 139, 87}},
		{UpperBound: 1, Cost: 3.09, Tag: "mixed conifer", Color: RGB{0, 100, 0}},
	})
}

// Preset resolves a table by name ("default" or "extended").
func Preset(name string) (*Table, error) {
	switch name {
	case "", "default":
		return Default(), nil
	case "extended":
		return Extended(), nil
	default:
		return nil, fmt.Errorf("unknown terrain preset %q", name)
	}
}

func mustTable(classes []Class) *Table {
	t, err := NewTable(classes)
	if err != nil {
		panic(err)
	}
	return t
}
