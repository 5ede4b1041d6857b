package math

import (
	"fmt"

	"github.com/lucasb-eyer/go-colorful"
)

// Colour is a linear RGBA colour in [0, 1].
type Colour Vec4

var (
	ColourWhite   = Colour{1, 1, 1, 1}
	ColourBlack   = Colour{0, 0, 0, 1}
	ColourMagenta = Colour{1, 0, 1, 1}
)

// ParseColour accepts "#rrggbb" or "#rrggbbaa".
func ParseColour(hex string) (Colour, error) {
	alpha := float32(1.0)
	if len(hex) == 9 {
		var a uint8
		if _, err := fmt.Sscanf(hex[7:], "%02x", &a); err != nil {
			return Colour{}, fmt.Errorf("invalid alpha in colour '%s': %w", hex, err)
		}
		alpha = float32(a) / 255.0
		hex = hex[:7]
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return Colour{}, err
	}
	return Colour{float32(c.R), float32(c.G), float32(c.B), alpha}, nil
}

// Hex formats the colour as "#rrggbb", dropping alpha.
func (c Colour) Hex() string {
	return colorful.Color{R: float64(c.X), G: float64(c.Y), B: float64(c.Z)}.Clamped().Hex()
}

func (c Colour) Vec4() Vec4 {
	return Vec4(c)
}
