package descriptor

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
)

// Texture is anything that can be bound to a combined image sampler.
type Texture interface {
	Descriptor() gfx.ImageDescriptor
}

// SSBOs are the per-object storage buffers, aligned by object id, plus the light array.
type SSBOs struct {
	Models    *ShaderBuffer
	Normals   *ShaderBuffer
	Materials *ShaderBuffer
	Tints     *ShaderBuffer
	Flags     *ShaderBuffer
	DirLights *ShaderBuffer
}

// Set is the descriptor set of one virtual frame.
type Set struct {
	ctx         *gfx.Context
	handle      gfx.DescriptorSet
	maxTextures uint32
}

// NewSets allocates count sets from pool.
func NewSets(ctx *gfx.Context, pool gfx.DescriptorPool, layout gfx.DescriptorSetLayout, count int, maxTextures uint32) ([]*Set, error) {
	handles, err := ctx.Device.AllocateDescriptorSets(pool, layout, count)
	if err != nil {
		err = fmt.Errorf("failed to allocate %d descriptor sets: %w", count, err)
		core.LogError(err.Error())
		return nil, err
	}
	sets := make([]*Set, len(handles))
	for i, h := range handles {
		sets[i] = &Set{ctx: ctx, handle: h, maxTextures: maxTextures}
	}
	return sets, nil
}

func (s *Set) Handle() gfx.DescriptorSet {
	return s.handle
}

func (s *Set) MaxTextures() uint32 {
	return s.maxTextures
}

// Update points binding at the buffer backing sb's current slot. Descriptor writes are not
// rebound implicitly, so it must follow every write that reallocated or swapped sb.
func (s *Set) Update(sb *ShaderBuffer, binding uint32) error {
	b := sb.Buffer()
	if !b.Valid() {
		return fmt.Errorf("shader buffer '%s' has not been written: %w", sb.name, core.ErrResourceMissing)
	}
	s.ctx.Device.UpdateDescriptorSets([]gfx.DescriptorWrite{{
		Set:     s.handle,
		Binding: binding,
		Type:    sb.kind,
		Buffers: []gfx.BufferDescriptor{{Buffer: b.Handle(), Range: b.Size()}},
	}})
	return nil
}

func (s *Set) WriteView(view *ShaderBuffer) error {
	return s.Update(view, BindingView)
}

func (s *Set) WriteSSBOs(b SSBOs) error {
	for _, u := range []struct {
		sb      *ShaderBuffer
		binding uint32
	}{
		{b.Models, BindingModels},
		{b.Normals, BindingNormals},
		{b.Materials, BindingMaterials},
		{b.Tints, BindingTints},
		{b.Flags, BindingFlags},
		{b.DirLights, BindingDirLights},
	} {
		if err := s.Update(u.sb, u.binding); err != nil {
			return err
		}
	}
	return nil
}

func (s *Set) writeTexture(binding uint32, tex Texture, slot uint32) error {
	if slot >= s.maxTextures {
		err := fmt.Errorf("slot %d of binding %d (max %d): %w", slot, binding, s.maxTextures, core.ErrDescriptorOverflow)
		core.LogError(err.Error())
		return err
	}
	s.ctx.Device.UpdateDescriptorSets([]gfx.DescriptorWrite{{
		Set:          s.handle,
		Binding:      binding,
		ArrayElement: slot,
		Type:         gfx.DescriptorCombinedImageSampler,
		Images:       []gfx.ImageDescriptor{tex.Descriptor()},
	}})
	return nil
}

func (s *Set) WriteDiffuse(tex Texture, slot uint32) error {
	return s.writeTexture(BindingDiffuse, tex, slot)
}

func (s *Set) WriteSpecular(tex Texture, slot uint32) error {
	return s.writeTexture(BindingSpecular, tex, slot)
}

func (s *Set) WriteCubemap(tex Texture) error {
	s.ctx.Device.UpdateDescriptorSets([]gfx.DescriptorWrite{{
		Set:     s.handle,
		Binding: BindingCubemap,
		Type:    gfx.DescriptorCombinedImageSampler,
		Images:  []gfx.ImageDescriptor{tex.Descriptor()},
	}})
	return nil
}

func (s *Set) fill(binding uint32, tex Texture, from, to uint32) []gfx.DescriptorWrite {
	if from >= to {
		return nil
	}
	images := make([]gfx.ImageDescriptor, to-from)
	for i := range images {
		images[i] = tex.Descriptor()
	}
	return []gfx.DescriptorWrite{{
		Set:          s.handle,
		Binding:      binding,
		ArrayElement: from,
		Type:         gfx.DescriptorCombinedImageSampler,
		Images:       images,
	}}
}

func (s *Set) checkRange(to uint32) error {
	if to > s.maxTextures {
		err := fmt.Errorf("reset up to slot %d (max %d): %w", to, s.maxTextures, core.ErrDescriptorOverflow)
		core.LogError(err.Error())
		return err
	}
	return nil
}

// ResetTextures rewrites diffuse slots [from, to) with white and specular slots with black.
func (s *Set) ResetTextures(white, black Texture, from, to uint32) error {
	if err := s.checkRange(to); err != nil {
		return err
	}
	writes := append(s.fill(BindingDiffuse, white, from, to), s.fill(BindingSpecular, black, from, to)...)
	if len(writes) > 0 {
		s.ctx.Device.UpdateDescriptorSets(writes)
	}
	return nil
}

// ResetDiffuse rewrites diffuse slots [from, to) with tex.
func (s *Set) ResetDiffuse(tex Texture, from, to uint32) error {
	if err := s.checkRange(to); err != nil {
		return err
	}
	if writes := s.fill(BindingDiffuse, tex, from, to); len(writes) > 0 {
		s.ctx.Device.UpdateDescriptorSets(writes)
	}
	return nil
}

// ResetSpecular rewrites specular slots [from, to) with tex.
func (s *Set) ResetSpecular(tex Texture, from, to uint32) error {
	if err := s.checkRange(to); err != nil {
		return err
	}
	if writes := s.fill(BindingSpecular, tex, from, to); len(writes) > 0 {
		s.ctx.Device.UpdateDescriptorSets(writes)
	}
	return nil
}
