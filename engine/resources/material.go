package resources

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
)

// MaterialConfig is the parsed form of a .amt material file: one key = value pair per line,
// colours as four space separated floats and '#' comments.
type MaterialConfig struct {
	Name            string
	DiffuseColour   math.Colour
	AmbientColour   math.Colour
	SpecularColour  math.Colour
	Shininess       float32
	DiffuseMapName  string
	SpecularMapName string
	Lit             bool
	Translucent     bool
	DropColour      bool
}

func LoadMaterialFile(path string) (*MaterialConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg, err := ParseMaterial(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func parseColour(value string) (math.Colour, error) {
	fields := strings.Fields(value)
	if len(fields) != 4 {
		return math.Colour{}, fmt.Errorf("expected 4 values, got %d", len(fields))
	}
	var c [4]float32
	for i, v := range fields {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return math.Colour{}, fmt.Errorf("invalid value '%s'", v)
		}
		c[i] = float32(f)
	}
	return math.Colour{X: c[0], Y: c[1], Z: c[2], W: c[3]}, nil
}

func ParseMaterial(r io.Reader) (*MaterialConfig, error) {
	def := DefaultMaterial()
	cfg := &MaterialConfig{
		DiffuseColour:  def.Tint,
		AmbientColour:  def.Phong.Ambient,
		SpecularColour: def.Phong.Specular,
		Shininess:      def.Phong.Shininess,
		Lit:            true,
	}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		// Skip comments and empty lines
		if strings.HasPrefix(line, "#") || line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			core.LogWarn("material line %d has no '=', skipping: %s", lineNo, line)
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		var err error
		switch key {
		case "name":
			cfg.Name = value
		case "diffuse_colour":
			cfg.DiffuseColour, err = parseColour(value)
		case "ambient_colour":
			cfg.AmbientColour, err = parseColour(value)
		case "specular_colour":
			cfg.SpecularColour, err = parseColour(value)
		case "shininess":
			var f float64
			f, err = strconv.ParseFloat(value, 32)
			cfg.Shininess = float32(f)
		case "diffuse_map_name":
			cfg.DiffuseMapName = value
		case "specular_map_name":
			cfg.SpecularMapName = value
		case "lit":
			cfg.Lit, err = strconv.ParseBool(value)
		case "translucent":
			cfg.Translucent, err = strconv.ParseBool(value)
		case "drop_colour":
			cfg.DropColour, err = strconv.ParseBool(value)
		default:
			core.LogWarn("unknown material key '%s' on line %d, skipping", key, lineNo)
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid %s: %v: %w", lineNo, key, err, core.ErrInvalidConfig)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func inRange(c math.Colour) bool {
	for _, v := range [4]float32{c.X, c.Y, c.Z, c.W} {
		if v < 0 || v > 1 {
			return false
		}
	}
	return true
}

func (m *MaterialConfig) Validate() error {
	switch {
	case m.Name == "":
		return fmt.Errorf("material name is required: %w", core.ErrInvalidConfig)
	case !inRange(m.DiffuseColour) || !inRange(m.AmbientColour) || !inRange(m.SpecularColour):
		return fmt.Errorf("material '%s' colours must be between 0 and 1: %w", m.Name, core.ErrInvalidConfig)
	case m.Shininess < 0:
		return fmt.Errorf("material '%s' shininess cannot be negative: %w", m.Name, core.ErrInvalidConfig)
	}
	return nil
}

// Material resolves the config's texture names against the cache. A map that is not loaded
// is logged and left empty, so the renderer falls back to the missing tint.
func (c *Cache) Material(cfg *MaterialConfig) *Material {
	m := &Material{
		Name: cfg.Name,
		Tint: cfg.DiffuseColour,
		Phong: Phong{
			Ambient:   cfg.AmbientColour,
			Diffuse:   math.ColourWhite,
			Specular:  cfg.SpecularColour,
			Shininess: cfg.Shininess,
		},
		Lit:         cfg.Lit,
		Translucent: cfg.Translucent,
		DropColour:  cfg.DropColour,
	}
	if cfg.DiffuseMapName != "" {
		m.Textured = true
		if t, ok := c.Texture(cfg.DiffuseMapName); ok {
			m.Diffuse = t
		} else {
			core.LogWarn("material '%s': diffuse map '%s' is not loaded", cfg.Name, cfg.DiffuseMapName)
		}
	}
	if cfg.SpecularMapName != "" {
		if t, ok := c.Texture(cfg.SpecularMapName); ok {
			m.Specular = t
		} else {
			core.LogWarn("material '%s': specular map '%s' is not loaded", cfg.Name, cfg.SpecularMapName)
		}
	}
	return m
}
