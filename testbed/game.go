package testbed

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/containers"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/platform"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
	"github.com/spaghettifunk/lumen/engine/renderer/pipeline"
	"github.com/spaghettifunk/lumen/engine/renderer/scene"
	"github.com/spaghettifunk/lumen/engine/resources"
)

const (
	moveSpeed   float32 = 50.0
	rotateSpeed float32 = 1.5
)

var cubemapFaces = [6]string{"r", "l", "u", "d", "f", "b"}

type TestGame struct {
	*engine.Game
}

type gameState struct {
	sys         *engine.Systems
	WorldCamera *scene.Camera
	projection  math.Mat4

	width  uint32
	height uint32

	hierarchy *scene.Hierarchy
	cubes     []scene.Node
	floor     *math.Transform
	cubeMesh  *resources.Mesh
	floorMesh *resources.Mesh
	skybox    *scene.Skybox

	wireframe     *pipeline.Pipeline
	showWireframe bool
}

func NewTestGame() *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				Name:         "Lumen Testbed",
				ConfigPath:   "lumen.toml",
				ShaderDir:    "shaders",
				Shader:       "builtin",
				SkyboxShader: "skybox",
			},
			State: &gameState{},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize(sys *engine.Systems) error {
	core.LogDebug("TestGame Initialize fn....")
	if sys == nil {
		return fmt.Errorf("the engine is not yet initialized with all its systems")
	}

	state := g.state()
	state.sys = sys
	state.WorldCamera = scene.NewCamera()
	state.WorldCamera.SetPosition(math.NewVec3(10.5, 5.0, 9.5))
	state.hierarchy = scene.NewHierarchy()

	cache := sys.Resources
	textures := map[string]string{}
	for _, name := range []string{"cobblestone", "cobblestone_specular", "paving"} {
		path := filepath.Join("assets", "textures", name+".png")
		if _, err := os.Stat(path); err == nil {
			textures["textures/"+name] = path
		}
	}
	if err := cache.LoadTextures(context.Background(), textures, resources.ImageOptions{}); err != nil {
		core.LogWarn("some testbed textures failed to load: %s", err)
	}

	material := resources.DefaultMaterial()
	if cfg, err := resources.LoadMaterialFile(filepath.Join("assets", "materials", "cobblestone.amt")); err == nil {
		material = cache.Material(cfg)
	} else {
		core.LogInfo("using the default cube material: %s", err)
	}
	vertices, indices := resources.GenerateCube(10, 10, 10, 1, 1)
	cube, err := cache.AddMesh("meshes/test_cube", vertices, indices, material)
	if err != nil {
		return err
	}
	state.cubeMesh = cube

	floorMaterial := resources.DefaultMaterial()
	floorMaterial.Name = "paving"
	floorMaterial.Tint = math.Colour{0.6, 0.6, 0.65, 1}
	if t, ok := cache.Texture("textures/paving"); ok {
		floorMaterial.Diffuse = t
		floorMaterial.Textured = true
	}
	vertices, indices = resources.GeneratePlane(100, 100, 4, 4, 8, 8)
	floor, err := cache.AddMesh("meshes/floor", vertices, indices, floorMaterial)
	if err != nil {
		return err
	}
	state.floorMesh = floor
	state.floor = math.NewTransformFrom(math.NewVec3(0, -10, 0),
		math.NewQuatFromAxisAngle(math.NewVec3(1, 0, 0), math.DegToRad(-90), false), math.NewVec3One())

	// Three cubes, each parented to the previous one.
	parent := containers.Handle{}
	for i, pos := range []math.Vec3{math.NewVec3Zero(), math.NewVec3(10, 0, 1), math.NewVec3(5, 0, 1)} {
		scale := math.NewVec3One().MulScalar(1 / float32(i+1))
		n := state.hierarchy.Add(math.NewTransformFrom(pos, math.NewQuatIdentity(), scale), parent)
		state.cubes = append(state.cubes, n)
		parent = n.Handle()
	}

	if sky, err := loadSkybox(cache, filepath.Join("assets", "cubemaps", "skybox")); err == nil {
		state.skybox = &scene.Skybox{Cubemap: sky}
	} else {
		core.LogInfo("no skybox cubemap found, drawing the blank one: %s", err)
		blank, _ := cache.Texture(resources.DefaultCubemap)
		state.skybox = &scene.Skybox{Cubemap: blank}
	}

	info := sys.Renderer.DefaultPipeline().Info()
	info.Name = "wireframe"
	info.Polygon = gfx.PolygonLine
	info.Cull = gfx.CullNone
	if state.wireframe, err = sys.Renderer.CreatePipeline(info); err != nil {
		core.LogWarn("wireframe pipeline unavailable: %s", err)
	}

	sys.Platform.OnKey(func(key platform.Key, pressed bool) {
		switch {
		case pressed && key == platform.KeyEscape:
			sys.Platform.RequestClose()
		case pressed && key == platform.KeyP:
			state.showWireframe = !state.showWireframe
			core.LogInfo("wireframe overlay: %t", state.showWireframe)
		}
	})
	return nil
}

// loadSkybox reads <prefix>_<face>.png for the six faces in +X, -X, +Y, -Y, +Z, -Z order.
func loadSkybox(cache *resources.Cache, prefix string) (*resources.Texture, error) {
	var faces [6]image.Image
	for i, f := range cubemapFaces {
		img, err := resources.OpenImage(fmt.Sprintf("%s_%s.png", prefix, f))
		if err != nil {
			return nil, err
		}
		faces[i] = img
	}
	return cache.AddCubemap("cubemaps/skybox", faces)
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.state()
	p := state.sys.Platform
	cam := state.WorldCamera
	dt := float32(deltaTime)

	if p.KeyDown(platform.KeyA) || p.KeyDown(platform.KeyLeft) {
		cam.Yaw(rotateSpeed * dt)
	}
	if p.KeyDown(platform.KeyD) || p.KeyDown(platform.KeyRight) {
		cam.Yaw(-rotateSpeed * dt)
	}
	if p.KeyDown(platform.KeyUp) {
		cam.Pitch(rotateSpeed * dt)
	}
	if p.KeyDown(platform.KeyDown) {
		cam.Pitch(-rotateSpeed * dt)
	}
	if p.KeyDown(platform.KeyW) {
		cam.MoveForward(moveSpeed * dt)
	}
	if p.KeyDown(platform.KeyS) {
		cam.MoveBackward(moveSpeed * dt)
	}
	if p.KeyDown(platform.KeyQ) {
		cam.MoveLeft(moveSpeed * dt)
	}
	if p.KeyDown(platform.KeyE) {
		cam.MoveRight(moveSpeed * dt)
	}

	rotation := math.NewQuatFromAxisAngle(math.NewVec3(0, 1, 0), 0.5*dt, false)
	for _, n := range state.cubes {
		n.Transform().Rotate(rotation)
	}
	return nil
}

func (g *TestGame) Render(b *scene.Builder, deltaTime float64) error {
	state := g.state()

	sun := scene.DirLight{
		Direction: math.NewVec4(-0.57735, -0.57735, -0.57735, 0),
		Colour:    math.NewVec4(0.8, 0.8, 0.8, 1),
	}
	b.View(scene.NewView(state.WorldCamera, state.projection, sun)).Skybox(state.skybox)

	b.Batch()
	for _, n := range state.cubes {
		b.Add(scene.Drawable{Meshes: []*resources.Mesh{state.cubeMesh}, Transform: n})
	}
	b.Add(scene.Drawable{Meshes: []*resources.Mesh{state.floorMesh}, Transform: state.floor})

	if state.showWireframe && state.wireframe != nil {
		b.Batch(scene.WithDebug(2))
		for _, n := range state.cubes {
			b.Add(scene.Drawable{Meshes: []*resources.Mesh{state.cubeMesh}, Transform: n, Pipeline: state.wireframe})
		}
	}
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.state()
	state.width = width
	state.height = height
	if height == 0 {
		return nil
	}
	state.projection = math.NewMat4Perspective(math.DegToRad(45.0), float32(width)/float32(height), 0.1, 1000.0)
	return nil
}

func (g *TestGame) Shutdown() error {
	state := g.state()
	if state.wireframe != nil {
		state.sys.Renderer.DestroyPipeline(state.wireframe)
		state.wireframe = nil
	}
	return nil
}
