package descriptor

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
)

// Binding slots shared with the shaders.
const (
	BindingView      uint32 = 0
	BindingModels    uint32 = 1
	BindingNormals   uint32 = 2
	BindingMaterials uint32 = 3
	BindingTints     uint32 = 4
	BindingFlags     uint32 = 5
	BindingDirLights uint32 = 6
	BindingCubemap   uint32 = 7
	BindingDiffuse   uint32 = 10
	BindingSpecular  uint32 = 11
)

const storageBindings = 6

// Bindings describes the per-frame set layout for texture arrays of maxTextures entries.
func Bindings(maxTextures uint32) []gfx.DescriptorBinding {
	all := gfx.StageVertex | gfx.StageFragment
	return []gfx.DescriptorBinding{
		{Binding: BindingView, Type: gfx.DescriptorUniformBuffer, Count: 1, Stages: all},
		{Binding: BindingModels, Type: gfx.DescriptorStorageBuffer, Count: 1, Stages: gfx.StageVertex},
		{Binding: BindingNormals, Type: gfx.DescriptorStorageBuffer, Count: 1, Stages: gfx.StageVertex},
		{Binding: BindingMaterials, Type: gfx.DescriptorStorageBuffer, Count: 1, Stages: gfx.StageFragment},
		{Binding: BindingTints, Type: gfx.DescriptorStorageBuffer, Count: 1, Stages: all},
		{Binding: BindingFlags, Type: gfx.DescriptorStorageBuffer, Count: 1, Stages: all},
		{Binding: BindingDirLights, Type: gfx.DescriptorStorageBuffer, Count: 1, Stages: gfx.StageFragment},
		{Binding: BindingCubemap, Type: gfx.DescriptorCombinedImageSampler, Count: 1, Stages: gfx.StageFragment},
		{Binding: BindingDiffuse, Type: gfx.DescriptorCombinedImageSampler, Count: maxTextures, Stages: gfx.StageFragment},
		{Binding: BindingSpecular, Type: gfx.DescriptorCombinedImageSampler, Count: maxTextures, Stages: gfx.StageFragment},
	}
}

// PoolSizes sizes a pool for copies sets of the per-frame layout.
func PoolSizes(copies, maxTextures uint32) []gfx.DescriptorPoolSize {
	return []gfx.DescriptorPoolSize{
		{Type: gfx.DescriptorUniformBuffer, Count: copies},
		{Type: gfx.DescriptorStorageBuffer, Count: copies * storageBindings},
		{Type: gfx.DescriptorCombinedImageSampler, Count: copies * (2*maxTextures + 1)},
	}
}

func Layout(ctx *gfx.Context, maxTextures uint32) (gfx.DescriptorSetLayout, error) {
	l, err := ctx.Device.CreateDescriptorSetLayout(Bindings(maxTextures))
	if err != nil {
		err = fmt.Errorf("failed to create descriptor set layout: %w", err)
		core.LogError(err.Error())
		return gfx.Null, err
	}
	return l, nil
}

func NewPool(ctx *gfx.Context, copies, maxTextures uint32) (gfx.DescriptorPool, error) {
	p, err := ctx.Device.CreateDescriptorPool(PoolSizes(copies, maxTextures), copies)
	if err != nil {
		err = fmt.Errorf("failed to create descriptor pool for %d sets: %w", copies, err)
		core.LogError(err.Error())
		return gfx.Null, err
	}
	return p, nil
}
