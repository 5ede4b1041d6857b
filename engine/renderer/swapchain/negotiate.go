package swapchain

import (
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
	"golang.org/x/exp/slices"
)

// Preferences are ranked candidate lists, most preferred first.
type Preferences struct {
	ColourFormats []gfx.Format
	ColourSpaces  []gfx.ColourSpace
	DepthFormats  []gfx.Format
	PresentModes  []gfx.PresentMode
	ImageCount    uint32
}

func DefaultPreferences() Preferences {
	return Preferences{
		ColourFormats: []gfx.Format{gfx.FormatB8G8R8A8Srgb, gfx.FormatR8G8B8A8Srgb},
		ColourSpaces:  []gfx.ColourSpace{gfx.ColourSpaceSrgbNonlinear},
		DepthFormats:  []gfx.Format{gfx.FormatD32SfloatS8Uint, gfx.FormatD32Sfloat, gfx.FormatD24UnormS8Uint},
		PresentModes:  []gfx.PresentMode{gfx.PresentModeFifo},
		ImageCount:    2,
	}
}

// withDefaults fills every empty list from DefaultPreferences.
func (p Preferences) withDefaults() Preferences {
	d := DefaultPreferences()
	if len(p.ColourFormats) == 0 {
		p.ColourFormats = d.ColourFormats
	}
	if len(p.ColourSpaces) == 0 {
		p.ColourSpaces = d.ColourSpaces
	}
	if len(p.DepthFormats) == 0 {
		p.DepthFormats = d.DepthFormats
	}
	if len(p.PresentModes) == 0 {
		p.PresentModes = d.PresentModes
	}
	if p.ImageCount == 0 {
		p.ImageCount = d.ImageCount
	}
	return p
}

// ChooseFormat picks the first preferred format and colour space pair the surface supports,
// falling back to the first enumerated format.
func ChooseFormat(available []gfx.SurfaceFormat, formats []gfx.Format, spaces []gfx.ColourSpace) gfx.SurfaceFormat {
	if len(available) == 0 {
		return gfx.SurfaceFormat{Format: formats[0], ColourSpace: spaces[0]}
	}
	// a single undefined entry means the surface has no preference
	if len(available) == 1 && available[0].Format == gfx.FormatUndefined {
		return gfx.SurfaceFormat{Format: formats[0], ColourSpace: spaces[0]}
	}
	for _, f := range formats {
		for _, s := range spaces {
			want := gfx.SurfaceFormat{Format: f, ColourSpace: s}
			if slices.Contains(available, want) {
				return want
			}
		}
	}
	return available[0]
}

// ChoosePresentMode picks the first preferred mode the surface supports. FIFO is always
// available.
func ChoosePresentMode(available []gfx.PresentMode, preferred []gfx.PresentMode) gfx.PresentMode {
	for _, m := range preferred {
		if slices.Contains(available, m) {
			return m
		}
	}
	return gfx.PresentModeFifo
}

// ChooseExtent uses the surface's current extent when it reports one, otherwise clamps size
// to the supported range.
func ChooseExtent(caps gfx.SurfaceCapabilities, size gfx.Extent2D) gfx.Extent2D {
	if caps.CurrentExtent.Width != gfx.UndefinedExtent {
		return caps.CurrentExtent
	}
	return gfx.Extent2D{
		Width:  math.Clamp(size.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: math.Clamp(size.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func chooseImageCount(caps gfx.SurfaceCapabilities, want uint32) uint32 {
	count := want
	if count < caps.MinImageCount {
		count = caps.MinImageCount
	}
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}
