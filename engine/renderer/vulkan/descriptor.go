package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
)

func (d *Device) CreateDescriptorSetLayout(bindings []gfx.DescriptorBinding) (gfx.DescriptorSetLayout, error) {
	vkBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		vkBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vk.DescriptorType(b.Type),
			DescriptorCount: b.Count,
			StageFlags:      vk.ShaderStageFlags(b.Stages),
		}
	}
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vkBindings)),
		PBindings:    vkBindings,
	}

	var layout vk.DescriptorSetLayout
	if err := check(vk.CreateDescriptorSetLayout(d.logical, &layoutInfo, d.inst.Allocator, &layout), "vkCreateDescriptorSetLayout"); err != nil {
		return gfx.Null, err
	}
	return gfx.DescriptorSetLayout(d.setLayouts.add(layout)), nil
}

func (d *Device) DestroyDescriptorSetLayout(l gfx.DescriptorSetLayout) {
	if layout, ok := d.setLayouts.remove(uint64(l)); ok {
		vk.DestroyDescriptorSetLayout(d.logical, layout, d.inst.Allocator)
	}
}

func (d *Device) CreateDescriptorPool(sizes []gfx.DescriptorPoolSize, maxSets uint32) (gfx.DescriptorPool, error) {
	poolSizes := make([]vk.DescriptorPoolSize, len(sizes))
	for i, s := range sizes {
		poolSizes[i] = vk.DescriptorPoolSize{
			Type:            vk.DescriptorType(s.Type),
			DescriptorCount: s.Count,
		}
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}

	var pool vk.DescriptorPool
	if err := check(vk.CreateDescriptorPool(d.logical, &poolInfo, d.inst.Allocator, &pool), "vkCreateDescriptorPool"); err != nil {
		return gfx.Null, err
	}
	return gfx.DescriptorPool(d.descPools.add(pool)), nil
}

// DestroyDescriptorPool also forgets every set allocated from the pool; the driver frees them
// with it.
func (d *Device) DestroyDescriptorPool(p gfx.DescriptorPool) {
	if pool, ok := d.descPools.remove(uint64(p)); ok {
		vk.DestroyDescriptorPool(d.logical, pool, d.inst.Allocator)
		d.sets.removeIf(func(s setRecord) bool { return s.pool == uint64(p) })
	}
}

func (d *Device) AllocateDescriptorSets(p gfx.DescriptorPool, l gfx.DescriptorSetLayout, count int) ([]gfx.DescriptorSet, error) {
	pool, ok := d.descPools.get(uint64(p))
	layout, lok := d.setLayouts.get(uint64(l))
	if !ok || !lok {
		err := fmt.Errorf("allocate descriptor sets from pool %d with layout %d: %w", p, l, core.ErrResourceMissing)
		core.LogError(err.Error())
		return nil, err
	}

	out := make([]gfx.DescriptorSet, 0, count)
	err := d.locks.SafeCall(DescriptorManagement, func() error {
		for i := 0; i < count; i++ {
			var set vk.DescriptorSet
			res := vk.AllocateDescriptorSets(d.logical, &vk.DescriptorSetAllocateInfo{
				SType:              vk.StructureTypeDescriptorSetAllocateInfo,
				DescriptorPool:     pool,
				DescriptorSetCount: 1,
				PSetLayouts:        []vk.DescriptorSetLayout{layout},
			}, &set)
			if err := check(res, "vkAllocateDescriptorSets"); err != nil {
				return err
			}
			out = append(out, gfx.DescriptorSet(d.sets.add(setRecord{handle: set, pool: uint64(p)})))
		}
		return nil
	})
	if err != nil {
		for _, s := range out {
			d.sets.remove(uint64(s))
		}
		return nil, err
	}
	return out, nil
}

// UpdateDescriptorSets applies all writes in one driver call.
func (d *Device) UpdateDescriptorSets(writes []gfx.DescriptorWrite) {
	if len(writes) == 0 {
		return
	}
	vkWrites := make([]vk.WriteDescriptorSet, len(writes))
	for i, w := range writes {
		vkWrites[i] = vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          d.sets.must(uint64(w.Set)).handle,
			DstBinding:      w.Binding,
			DstArrayElement: w.ArrayElement,
			DescriptorType:  vk.DescriptorType(w.Type),
		}
		if len(w.Buffers) > 0 {
			infos := make([]vk.DescriptorBufferInfo, len(w.Buffers))
			for j, b := range w.Buffers {
				infos[j] = vk.DescriptorBufferInfo{
					Buffer: d.buffers.must(uint64(b.Buffer)),
					Offset: vk.DeviceSize(b.Offset),
					Range:  vk.DeviceSize(b.Range),
				}
			}
			vkWrites[i].DescriptorCount = uint32(len(infos))
			vkWrites[i].PBufferInfo = infos
		} else {
			infos := make([]vk.DescriptorImageInfo, len(w.Images))
			for j, img := range w.Images {
				infos[j] = vk.DescriptorImageInfo{
					Sampler:     d.samplers.must(uint64(img.Sampler)),
					ImageView:   d.views.must(uint64(img.View)),
					ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
				}
			}
			vkWrites[i].DescriptorCount = uint32(len(infos))
			vkWrites[i].PImageInfo = infos
		}
	}
	_ = d.locks.SafeCall(DescriptorManagement, func() error {
		vk.UpdateDescriptorSets(d.logical, uint32(len(vkWrites)), vkWrites, 0, nil)
		return nil
	})
}
