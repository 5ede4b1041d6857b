package scene

import (
	"github.com/spaghettifunk/lumen/engine/math"
)

// pitchLimit is 89 degrees, short of the gimbal lock.
const pitchLimit float32 = 1.55334306

/**
 * @brief A free-look camera. Position and rotation are only changed through the setters so
 * the view matrix is rebuilt lazily.
 */
type Camera struct {
	position      math.Vec3
	eulerRotation math.Vec3
	dirty         bool
	view          math.Mat4
}

func NewCamera() *Camera {
	c := &Camera{}
	c.Reset()
	return c
}

func (c *Camera) Reset() {
	c.eulerRotation = math.NewVec3Zero()
	c.position = math.NewVec3Zero()
	c.dirty = false
	c.view = math.NewMat4Identity()
}

func (c *Camera) Position() math.Vec3 {
	return c.position
}

func (c *Camera) SetPosition(position math.Vec3) {
	c.position = position
	c.dirty = true
}

// EulerRotation is (pitch, yaw, roll) in radians.
func (c *Camera) EulerRotation() math.Vec3 {
	return c.eulerRotation
}

func (c *Camera) SetEulerRotation(rotation math.Vec3) {
	c.eulerRotation = rotation
	c.dirty = true
}

// View returns the view matrix, rebuilding it if the camera moved.
func (c *Camera) View() math.Mat4 {
	if c.dirty {
		rotation := math.NewMat4EulerXYZ(c.eulerRotation.X, c.eulerRotation.Y, c.eulerRotation.Z)
		c.view = rotation.Mul(math.NewMat4Translation(c.position)).Inverse()
		c.dirty = false
	}
	return c.view
}

func (c *Camera) Forward() math.Vec3 {
	return c.View().Forward()
}

func (c *Camera) Right() math.Vec3 {
	return c.View().Right()
}

func (c *Camera) move(direction math.Vec3, amount float32) {
	c.position = c.position.Add(direction.MulScalar(amount))
	c.dirty = true
}

func (c *Camera) MoveForward(amount float32) {
	c.move(c.Forward(), amount)
}

func (c *Camera) MoveBackward(amount float32) {
	c.move(c.Forward(), -amount)
}

func (c *Camera) MoveLeft(amount float32) {
	c.move(c.Right(), -amount)
}

func (c *Camera) MoveRight(amount float32) {
	c.move(c.Right(), amount)
}

func (c *Camera) MoveUp(amount float32) {
	c.move(math.NewVec3Up(), amount)
}

func (c *Camera) MoveDown(amount float32) {
	c.move(math.NewVec3Up(), -amount)
}

func (c *Camera) Yaw(amount float32) {
	c.eulerRotation.Y += amount
	c.dirty = true
}

func (c *Camera) Pitch(amount float32) {
	c.eulerRotation.X = math.Clamp(c.eulerRotation.X+amount, -pitchLimit, pitchLimit)
	c.dirty = true
}
