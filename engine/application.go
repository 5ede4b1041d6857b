package engine

import (
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/platform"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
	"github.com/spaghettifunk/lumen/engine/renderer/vram"
	"github.com/spaghettifunk/lumen/engine/resources"
)

type ApplicationConfig struct {
	// The application name used in windowing and as the Vulkan application name.
	Name string
	// ConfigPath is the TOML file read at boot and watched for changes.
	ConfigPath string
	// ShaderDir holds the compiled <name>.vert.spv and <name>.frag.spv pairs.
	ShaderDir string
	// Names of the built-in shader pairs.
	Shader       string
	SkyboxShader string
}

// Systems is what a game gets to work with once the engine is initialized.
type Systems struct {
	Config    *core.Config
	Platform  *platform.Platform
	Context   *gfx.Context
	VRAM      *vram.VRAM
	Resources *resources.Cache
	Renderer  *renderer.Renderer
}
