package math

// Vec2 represents a 2D vector
type Vec2 struct {
	X, Y float32
}

// Vec3 represents a 3D vector
type Vec3 struct {
	X, Y, Z float32
}

// Vec4 represents a 4D vector
type Vec4 struct {
	X, Y, Z, W float32
}

// Quaternion represents a rotational orientation.
type Quaternion Vec4

// Mat4 is a 4x4 matrix stored column by column, translation in Data[12:15].
type Mat4 struct {
	Data [16]float32
}

// Vertex is the vertex layout shared by every pipeline: position, normal, texcoord and colour.
type Vertex struct {
	Position Vec3
	Normal   Vec3
	Texcoord Vec2
	Colour   Vec4
}

// Transform is a position/rotation/scale triple with a cached local matrix. Parenting lives
// in scene.Hierarchy rather than in the transform itself.
type Transform struct {
	Position Vec3
	Rotation Quaternion
	Scale    Vec3
	// IsDirty indicates that Local needs to be recalculated.
	IsDirty bool
	Local   Mat4
}
