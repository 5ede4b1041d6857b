package resources

import (
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cobblestone = `
# a test material
name = cobblestone
diffuse_colour = 1.0 0.5 0.25 1.0
shininess = 16.0
diffuse_map_name = textures/cobblestone
specular_map_name = textures/cobblestone_specular
translucent = true
bogus = ignored
`

func TestParseMaterial(t *testing.T) {
	cfg, err := ParseMaterial(strings.NewReader(cobblestone))
	require.NoError(t, err)

	assert.Equal(t, "cobblestone", cfg.Name)
	assert.Equal(t, math.Colour{X: 1, Y: 0.5, Z: 0.25, W: 1}, cfg.DiffuseColour)
	assert.Equal(t, float32(16), cfg.Shininess)
	assert.Equal(t, "textures/cobblestone", cfg.DiffuseMapName)
	assert.True(t, cfg.Translucent)
	assert.True(t, cfg.Lit)
	// untouched keys keep the default material's values
	assert.Equal(t, DefaultMaterial().Phong.Specular, cfg.SpecularColour)
}

func TestParseMaterialErrors(t *testing.T) {
	tests := map[string]string{
		"no name":          "shininess = 4",
		"short colour":     "name = x\ndiffuse_colour = 1 1 1",
		"colour too large": "name = x\ndiffuse_colour = 2 1 1 1",
		"bad shininess":    "name = x\nshininess = shiny",
		"negative":         "name = x\nshininess = -1",
		"bad bool":         "name = x\nlit = maybe",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseMaterial(strings.NewReader(body))
			assert.ErrorIs(t, err, core.ErrInvalidConfig)
		})
	}
}

func TestLoadMaterialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cobblestone.amt")
	require.NoError(t, os.WriteFile(path, []byte(cobblestone), 0o644))

	cfg, err := LoadMaterialFile(path)
	require.NoError(t, err)
	assert.Equal(t, "cobblestone", cfg.Name)

	_, err = LoadMaterialFile(filepath.Join(t.TempDir(), "missing.amt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCacheMaterialResolvesTextures(t *testing.T) {
	c, _, _ := newCache(t)
	tex, err := c.AddTexture("textures/cobblestone", image.NewRGBA(image.Rect(0, 0, 2, 2)))
	require.NoError(t, err)

	cfg, err := ParseMaterial(strings.NewReader(cobblestone))
	require.NoError(t, err)
	m := c.Material(cfg)

	assert.True(t, m.Textured)
	assert.Same(t, tex, m.Diffuse)
	// the specular map was never loaded
	assert.Nil(t, m.Specular)
	assert.Equal(t, cfg.DiffuseColour, m.Tint)
	assert.Equal(t, float32(16), m.Phong.Shininess)
	assert.True(t, m.Translucent)
}
