package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInverseOfTranslation(t *testing.T) {
	m := NewMat4Translation(NewVec3(1, 2, 3))
	inv := m.Inverse()
	assert.True(t, m.Mul(inv).Compare(NewMat4Identity(), 1e-5))
	assert.InDelta(t, -1, inv.Data[12], 1e-5)
	assert.InDelta(t, -2, inv.Data[13], 1e-5)
	assert.InDelta(t, -3, inv.Data[14], 1e-5)
}

func TestTransformModel(t *testing.T) {
	var nilTransform *Transform
	assert.Equal(t, NewMat4Identity(), nilTransform.Model())

	tr := NewTransform()
	assert.True(t, tr.Model().Compare(NewMat4Identity(), 1e-6))

	tr.SetPosition(NewVec3(4, 5, 6))
	tr.SetScale(NewVec3(2, 2, 2))
	m := tr.Model()
	assert.False(t, tr.IsDirty)
	assert.InDelta(t, 2, m.Data[0], 1e-6)
	assert.InDelta(t, 4, m.Data[12], 1e-6)
	assert.InDelta(t, 6, m.Data[14], 1e-6)
}

func TestNormalMatrixOfUniformScale(t *testing.T) {
	n := NewMat4Scale(NewVec3(2, 2, 2)).NormalMatrix()
	assert.InDelta(t, 0.5, n.Data[0], 1e-6)
	assert.InDelta(t, 0.5, n.Data[5], 1e-6)
	assert.InDelta(t, 0.5, n.Data[10], 1e-6)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, uint32(5), Clamp(uint32(9), 1, 5))
	assert.Equal(t, float32(1), Clamp(float32(-3), 1, 5))
	assert.Equal(t, 3, Clamp(3, 1, 5))
}

func TestParseColour(t *testing.T) {
	c, err := ParseColour("#ff00ff")
	require.NoError(t, err)
	assert.Equal(t, ColourMagenta, c)

	c, err = ParseColour("#00000080")
	require.NoError(t, err)
	assert.InDelta(t, 128.0/255.0, c.W, 1e-6)

	_, err = ParseColour("magenta")
	assert.Error(t, err)
	assert.Equal(t, "#ff00ff", ColourMagenta.Hex())
}
