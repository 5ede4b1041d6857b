package scene

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/containers"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
)

type node struct {
	transform *math.Transform
	parent    containers.Handle
	children  []containers.Handle
}

// Hierarchy parents transforms to each other by handle. Nodes never point at each other, so
// removal and reparenting cannot leave dangling references.
type Hierarchy struct {
	nodes *containers.Arena[*node]
}

func NewHierarchy() *Hierarchy {
	return &Hierarchy{nodes: containers.NewArena[*node]()}
}

// Node is a handle bound to its hierarchy; it implements Model with the world matrix.
type Node struct {
	h  *Hierarchy
	id containers.Handle
}

func (n Node) Handle() containers.Handle {
	return n.id
}

func (n Node) Valid() bool {
	if n.h == nil {
		return false
	}
	_, ok := n.h.nodes.Get(n.id)
	return ok
}

// Transform returns the node's local transform, nil for a removed node.
func (n Node) Transform() *math.Transform {
	if nd, ok := n.h.nodes.Get(n.id); ok {
		return nd.transform
	}
	return nil
}

func (n Node) Model() math.Mat4 {
	return n.h.World(n.id)
}

// Add inserts t under parent; the zero handle makes it a root.
func (h *Hierarchy) Add(t *math.Transform, parent containers.Handle) Node {
	if t == nil {
		t = math.NewTransform()
	}
	id := h.nodes.Insert(&node{transform: t})
	if parent.Valid() {
		if err := h.Reparent(id, parent); err != nil {
			core.LogWarn("node added as root: %s", err)
		}
	}
	return Node{h: h, id: id}
}

func (h *Hierarchy) Node(id containers.Handle) Node {
	return Node{h: h, id: id}
}

func (h *Hierarchy) Parent(id containers.Handle) (containers.Handle, bool) {
	nd, ok := h.nodes.Get(id)
	if !ok || !nd.parent.Valid() {
		return containers.Handle{}, false
	}
	return nd.parent, true
}

func (h *Hierarchy) Children(id containers.Handle) []containers.Handle {
	nd, ok := h.nodes.Get(id)
	if !ok {
		return nil
	}
	return append([]containers.Handle(nil), nd.children...)
}

func (h *Hierarchy) detach(id containers.Handle, nd *node) {
	if p, ok := h.nodes.Get(nd.parent); ok {
		for i, c := range p.children {
			if c == id {
				p.children = append(p.children[:i], p.children[i+1:]...)
				break
			}
		}
	}
	nd.parent = containers.Handle{}
}

// Reparent moves id under parent, or to the root when parent is the zero handle. Moving a
// node under its own descendant is rejected.
func (h *Hierarchy) Reparent(id, parent containers.Handle) error {
	nd, ok := h.nodes.Get(id)
	if !ok {
		return fmt.Errorf("unknown node: %w", core.ErrResourceMissing)
	}
	if parent.Valid() {
		p, ok := h.nodes.Get(parent)
		if !ok {
			return fmt.Errorf("unknown parent: %w", core.ErrResourceMissing)
		}
		for a := parent; a.Valid(); {
			if a == id {
				return fmt.Errorf("node cannot be parented to its own descendant")
			}
			an, _ := h.nodes.Get(a)
			a = an.parent
		}
		h.detach(id, nd)
		nd.parent = parent
		p.children = append(p.children, id)
		return nil
	}
	h.detach(id, nd)
	return nil
}

// Remove deletes id and its whole subtree.
func (h *Hierarchy) Remove(id containers.Handle) {
	nd, ok := h.nodes.Get(id)
	if !ok {
		return
	}
	h.detach(id, nd)
	stack := []containers.Handle{id}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n, ok := h.nodes.Remove(top); ok {
			stack = append(stack, n.children...)
		}
	}
}

// World composes the local matrices from id up to its root.
func (h *Hierarchy) World(id containers.Handle) math.Mat4 {
	world := math.NewMat4Identity()
	for a := id; a.Valid(); {
		nd, ok := h.nodes.Get(a)
		if !ok {
			break
		}
		world = world.Mul(nd.transform.Model())
		a = nd.parent
	}
	return world
}

func (h *Hierarchy) Len() int {
	return h.nodes.Len()
}
