package resources

import (
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
)

type face struct {
	normal  math.Vec3
	corners [4]math.Vec3
}

// GenerateCube builds a cube centred on the origin with four vertices per side so every
// face gets its own normal and texture coordinates.
func GenerateCube(width, height, depth, tileX, tileY float32) ([]math.Vertex, []uint32) {
	if width == 0 {
		core.LogWarn("Width must be nonzero. Defaulting to one.")
		width = 1.0
	}
	if height == 0 {
		core.LogWarn("Height must be nonzero. Defaulting to one.")
		height = 1.0
	}
	if depth == 0 {
		core.LogWarn("Depth must be nonzero. Defaulting to one.")
		depth = 1.0
	}
	if tileX == 0 {
		tileX = 1.0
	}
	if tileY == 0 {
		tileY = 1.0
	}

	x, y, z := width*0.5, height*0.5, depth*0.5
	faces := []face{
		// front
		{math.NewVec3(0, 0, 1), [4]math.Vec3{{-x, -y, z}, {x, y, z}, {-x, y, z}, {x, -y, z}}},
		// back
		{math.NewVec3(0, 0, -1), [4]math.Vec3{{x, -y, -z}, {-x, y, -z}, {x, y, -z}, {-x, -y, -z}}},
		// left
		{math.NewVec3(-1, 0, 0), [4]math.Vec3{{-x, -y, -z}, {-x, y, z}, {-x, y, -z}, {-x, -y, z}}},
		// right
		{math.NewVec3(1, 0, 0), [4]math.Vec3{{x, -y, z}, {x, y, -z}, {x, y, z}, {x, -y, -z}}},
		// bottom
		{math.NewVec3(0, -1, 0), [4]math.Vec3{{x, -y, z}, {-x, -y, -z}, {x, -y, -z}, {-x, -y, z}}},
		// top
		{math.NewVec3(0, 1, 0), [4]math.Vec3{{-x, y, z}, {x, y, -z}, {-x, y, -z}, {x, y, z}}},
	}
	uvs := [4]math.Vec2{{0, 0}, {tileX, tileY}, {0, tileY}, {tileX, 0}}

	vertices := make([]math.Vertex, 0, 24)
	indices := make([]uint32, 0, 36)
	for i, f := range faces {
		for c := range f.corners {
			vertices = append(vertices, math.Vertex{
				Position: f.corners[c],
				Normal:   f.normal,
				Texcoord: uvs[c],
				Colour:   math.Vec4(math.ColourWhite),
			})
		}
		o := uint32(i * 4)
		indices = append(indices, o, o+1, o+2, o, o+3, o+1)
	}
	return vertices, indices
}

// GeneratePlane builds a segmented plane on the XY axis facing +Z.
func GeneratePlane(width, height float32, xSegments, ySegments uint32, tileX, tileY float32) ([]math.Vertex, []uint32) {
	if width == 0 {
		width = 1.0
	}
	if height == 0 {
		height = 1.0
	}
	if xSegments < 1 {
		xSegments = 1
	}
	if ySegments < 1 {
		ySegments = 1
	}
	if tileX == 0 {
		tileX = 1.0
	}
	if tileY == 0 {
		tileY = 1.0
	}

	segW := width / float32(xSegments)
	segH := height / float32(ySegments)
	halfW, halfH := width*0.5, height*0.5
	normal := math.NewVec3(0, 0, 1)

	vertices := make([]math.Vertex, 0, xSegments*ySegments*4)
	indices := make([]uint32, 0, xSegments*ySegments*6)
	for sy := uint32(0); sy < ySegments; sy++ {
		for sx := uint32(0); sx < xSegments; sx++ {
			minX := float32(sx)*segW - halfW
			minY := float32(sy)*segH - halfH
			maxX, maxY := minX+segW, minY+segH
			minU := float32(sx) / float32(xSegments) * tileX
			minV := float32(sy) / float32(ySegments) * tileY
			maxU := float32(sx+1) / float32(xSegments) * tileX
			maxV := float32(sy+1) / float32(ySegments) * tileY

			o := uint32(len(vertices))
			for _, c := range [4][4]float32{{minX, minY, minU, minV}, {maxX, maxY, maxU, maxV}, {minX, maxY, minU, maxV}, {maxX, minY, maxU, minV}} {
				vertices = append(vertices, math.Vertex{
					Position: math.NewVec3(c[0], c[1], 0),
					Normal:   normal,
					Texcoord: math.NewVec2(c[2], c[3]),
					Colour:   math.Vec4(math.ColourWhite),
				})
			}
			indices = append(indices, o, o+1, o+2, o, o+3, o+1)
		}
	}
	return vertices, indices
}
