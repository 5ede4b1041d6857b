package renderer

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/pipeline"
	"github.com/spaghettifunk/lumen/engine/renderer/scene"
	"github.com/spaghettifunk/lumen/engine/resources"
)

var fallbackMaterial = resources.DefaultMaterial()

// draw is one recorded draw call; batch indexes the batch list the objects were built from.
// A skipped draw keeps its object id but records nothing.
type draw struct {
	batch    int
	mesh     *resources.Mesh
	pipeline *pipeline.Pipeline
	push     pipeline.PushConstants
	skip     bool
}

type textureWrite struct {
	specular bool
	texture  *resources.Texture
	slot     uint32
}

// slots hands out texture array indices for one frame. Slot 0 always holds the default.
type slots struct {
	max   uint32
	next  uint32
	taken map[*resources.Texture]uint32
}

func newSlots(max uint32) slots {
	return slots{max: max, next: 1, taken: map[*resources.Texture]uint32{}}
}

func (s *slots) reset() {
	s.next = 1
	clear(s.taken)
}

// get returns the slot of t, allocating one when t is new this frame.
func (s *slots) get(t *resources.Texture) (uint32, bool, error) {
	if slot, ok := s.taken[t]; ok {
		return slot, false, nil
	}
	if s.next >= s.max {
		return 0, false, fmt.Errorf("texture '%s' needs slot %d of %d: %w", t.Name, s.next, s.max, core.ErrDescriptorOverflow)
	}
	slot := s.next
	s.taken[t] = slot
	s.next++
	return slot, true, nil
}

// objects is the per-frame data derived from a scene. Every per-object array is indexed by
// object id and all of them grow together.
type objects struct {
	models    []math.Mat4
	normals   []math.Mat4
	materials []MaterialData
	tints     []math.Vec4
	flags     []Flags

	draws     []draw
	writes    []textureWrite
	diffuse   slots
	specular  slots
	triangles uint64
}

func newObjects(maxTextures uint32) *objects {
	return &objects{diffuse: newSlots(maxTextures), specular: newSlots(maxTextures)}
}

func (o *objects) reset() {
	o.models = o.models[:0]
	o.normals = o.normals[:0]
	o.materials = o.materials[:0]
	o.tints = o.tints[:0]
	o.flags = o.flags[:0]
	clear(o.draws)
	o.draws = o.draws[:0]
	clear(o.writes)
	o.writes = o.writes[:0]
	o.diffuse.reset()
	o.specular.reset()
	o.triangles = 0
}

func (o *objects) count() int {
	return len(o.models)
}

func materialFlags(m *resources.Material) Flags {
	var f Flags
	if m.Lit {
		f |= FlagLit
	}
	if !m.Translucent {
		f |= FlagOpaque
	}
	if m.Textured {
		f |= FlagTextured
	}
	if m.UI {
		f |= FlagUI
	}
	if m.DropColour {
		f |= FlagDropColour
	}
	return f
}

// build walks batches in order and assigns one object id per mesh. Meshes still uploading
// or without triangles keep their id and rows but their draws are skipped. extra is or-ed into the flags of the first batch's
// objects, which is how the skybox is marked.
func (o *objects) build(batches []scene.Batch, fallback *pipeline.Pipeline, extra Flags) error {
	o.reset()
	for bi := range batches {
		var flags Flags
		if bi == 0 {
			flags = extra
		}
		for _, d := range batches[bi].Drawables {
			if err := o.add(bi, d, fallback, flags); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *objects) add(batch int, d scene.Drawable, fallback *pipeline.Pipeline, extra Flags) error {
	model := math.NewMat4Identity()
	if core.Assert(d.Transform != nil, "drawable without a transform") {
		model = d.Transform.Model()
	}
	p := d.Pipeline
	if p == nil {
		p = fallback
	}

	for _, mesh := range d.Meshes {
		if !core.Assert(mesh != nil, "drawable with a nil mesh") {
			continue
		}
		skip := !mesh.Ready() || mesh.Triangles() == 0
		material := mesh.Material
		if material == nil {
			material = fallbackMaterial
		}

		id := uint32(o.count())
		push := pipeline.PushConstants{ObjectID: id}
		tint := math.Vec4(material.Tint)
		flags := materialFlags(material) | extra

		if material.Textured {
			switch {
			case material.Diffuse == nil:
				tint = math.Vec4(math.ColourMagenta)
			case material.Diffuse.Ready():
				slot, fresh, err := o.diffuse.get(material.Diffuse)
				if err != nil {
					core.LogError(err.Error())
					return err
				}
				if fresh {
					o.writes = append(o.writes, textureWrite{texture: material.Diffuse, slot: slot})
				}
				push.DiffuseID = slot
			}
			if material.Specular.Ready() {
				slot, fresh, err := o.specular.get(material.Specular)
				if err != nil {
					core.LogError(err.Error())
					return err
				}
				if fresh {
					o.writes = append(o.writes, textureWrite{specular: true, texture: material.Specular, slot: slot})
				}
				push.SpecularID = slot
			}
		}

		o.models = append(o.models, model)
		o.normals = append(o.normals, model.NormalMatrix())
		o.materials = append(o.materials, MaterialData{
			Ambient:   math.Vec4(material.Phong.Ambient),
			Diffuse:   math.Vec4(material.Phong.Diffuse),
			Specular:  math.Vec4(material.Phong.Specular),
			Shininess: material.Phong.Shininess,
		})
		o.tints = append(o.tints, tint)
		o.flags = append(o.flags, flags)
		o.draws = append(o.draws, draw{batch: batch, mesh: mesh, pipeline: p, push: push, skip: skip})
		if !skip {
			o.triangles += uint64(mesh.Triangles())
		}
	}
	return nil
}
