package gfx

import (
	"fmt"
	"strings"
)

var formatNames = map[Format]string{
	FormatUndefined:         "UNDEFINED",
	FormatR8G8B8A8Unorm:     "R8G8B8A8_UNORM",
	FormatR8G8B8A8Srgb:      "R8G8B8A8_SRGB",
	FormatB8G8R8A8Unorm:     "B8G8R8A8_UNORM",
	FormatB8G8R8A8Srgb:      "B8G8R8A8_SRGB",
	FormatR32G32Sfloat:      "R32G32_SFLOAT",
	FormatR32G32B32Sfloat:   "R32G32B32_SFLOAT",
	FormatR32G32B32A32Float: "R32G32B32A32_SFLOAT",
	FormatD16Unorm:          "D16_UNORM",
	FormatD32Sfloat:         "D32_SFLOAT",
	FormatD24UnormS8Uint:    "D24_UNORM_S8_UINT",
	FormatD32SfloatS8Uint:   "D32_SFLOAT_S8_UINT",
}

var presentModeNames = map[PresentMode]string{
	PresentModeFifo:        "FIFO",
	PresentModeFifoRelaxed: "FIFO Relaxed",
	PresentModeImmediate:   "Immediate",
	PresentModeMailbox:     "Mailbox",
}

var colourSpaceNames = map[ColourSpace]string{
	ColourSpaceSrgbNonlinear: "SRGB_NONLINEAR",
}

func (f Format) String() string {
	if n, ok := formatNames[f]; ok {
		return n
	}
	return fmt.Sprintf("FORMAT(%d)", uint32(f))
}

// PresentModeName returns a human readable name; unknown modes are "Other".
func PresentModeName(mode PresentMode) string {
	if n, ok := presentModeNames[mode]; ok {
		return n
	}
	return "Other"
}

func (m PresentMode) String() string {
	return PresentModeName(m)
}

func (c ColourSpace) String() string {
	if n, ok := colourSpaceNames[c]; ok {
		return n
	}
	return fmt.Sprintf("COLOUR_SPACE(%d)", uint32(c))
}

// ParseFormat accepts the names produced by Format.String, case insensitive.
func ParseFormat(name string) (Format, error) {
	for f, n := range formatNames {
		if strings.EqualFold(n, name) {
			return f, nil
		}
	}
	return FormatUndefined, fmt.Errorf("unknown format '%s'", name)
}

// ParsePresentMode accepts names such as "fifo", "fifo_relaxed", "mailbox" or "immediate".
func ParsePresentMode(name string) (PresentMode, error) {
	key := strings.ReplaceAll(strings.ToLower(name), "_", " ")
	for m, n := range presentModeNames {
		if strings.ToLower(n) == key {
			return m, nil
		}
	}
	return PresentModeFifo, fmt.Errorf("unknown present mode '%s'", name)
}

func ParseColourSpace(name string) (ColourSpace, error) {
	for c, n := range colourSpaceNames {
		if strings.EqualFold(n, name) {
			return c, nil
		}
	}
	return ColourSpaceSrgbNonlinear, fmt.Errorf("unknown colour space '%s'", name)
}
