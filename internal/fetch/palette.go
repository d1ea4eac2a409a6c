package fetch

// Palette is the fallback color cycle, picked by source index.
var Palette = []string{
	"#FF6B6B",
	"#4ECDC4",
	"#45B7D1",
	"#FFA07A",
	"#98D8C8",
	"#F7DC6F",
	"#BB8FCE",
	"#85C1E2",
}

// DefaultColor returns the palette color for the source at index.
func DefaultColor(index int) string {
	if index < 0 {
		index = -index
	}
	return Palette[index%len(Palette)]
}

// ColorFor resolves a source color: the configured override, else the palette.
func ColorFor(src Source, index int) string {
	if src.Color != "" {
		return src.Color
	}
	return DefaultColor(index)
}
