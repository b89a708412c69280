package graph

import "fmt"

// slot is one arena entry. A nil module with a nonzero generation marks a
// freed, reusable slot.
type slot struct {
	module     *Module
	generation uint32
}

// ModuleGraph owns a set of Module instances connected by wires, and
// computes a valid execution order over them. Removal is atomic: the
// removed module's slot and every dangling reference to it (wires and
// automation lanes) are cleared together, never leaving the graph in a
// state where a ModuleRef resolves to a removed module.
type ModuleGraph struct {
	slots []slot
	// order lists live indices in insertion order, used to break ties
	// deterministically in ComputeExecutionOrder.
	order []int
}

// NewModuleGraph creates an empty graph.
func NewModuleGraph() *ModuleGraph {
	return &ModuleGraph{}
}

// Add inserts a module into the graph and returns a stable handle to it.
func (g *ModuleGraph) Add(m *Module) ModuleRef {
	for i := range g.slots {
		if g.slots[i].module == nil {
			g.slots[i].module = m
			g.slots[i].generation++
			g.order = append(g.order, i)
			return ModuleRef{index: i, generation: g.slots[i].generation}
		}
	}
	i := len(g.slots)
	g.slots = append(g.slots, slot{module: m, generation: 1})
	g.order = append(g.order, i)
	return ModuleRef{index: i, generation: 1}
}

// Resolve dereferences a ModuleRef, returning ok=false if the ref is stale
// (its slot has since been removed, or reused by a later Add).
func (g *ModuleGraph) Resolve(ref ModuleRef) (*Module, bool) {
	if ref.index < 0 || ref.index >= len(g.slots) {
		return nil, false
	}
	s := g.slots[ref.index]
	if s.module == nil || s.generation != ref.generation {
		return nil, false
	}
	return s.module, true
}

// Remove deletes the module named by ref, atomically severing every wire
// and automation lane in the graph that referenced it. Returns false if ref
// was already stale.
func (g *ModuleGraph) Remove(ref ModuleRef) bool {
	if _, ok := g.Resolve(ref); !ok {
		return false
	}
	g.slots[ref.index].module = nil
	for i, idx := range g.order {
		if idx == ref.index {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	for _, idx := range g.order {
		m := g.slots[idx].module
		m.severInputsReferencing(ref)
		m.severAutomationReferencing(ref)
	}
	return true
}

// Len returns the number of live modules.
func (g *ModuleGraph) Len() int { return len(g.order) }

// Refs returns the ModuleRef of every live module in insertion order.
func (g *ModuleGraph) Refs() []ModuleRef {
	refs := make([]ModuleRef, 0, len(g.order))
	for _, idx := range g.order {
		refs = append(refs, ModuleRef{index: idx, generation: g.slots[idx].generation})
	}
	return refs
}

// IndexOf returns ref's position within Refs(), or -1 if not found.
func (g *ModuleGraph) IndexOf(ref ModuleRef) int {
	for i, idx := range g.order {
		if idx == ref.index && g.slots[idx].generation == ref.generation {
			return i
		}
	}
	return -1
}

// CycleError reports that ComputeExecutionOrder found a dependency cycle.
type CycleError struct {
	Remaining []ModuleRef
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("module graph contains a cycle among %d module(s)", len(e.Remaining))
}

// ComputeExecutionOrder returns a topological ordering of the graph's
// modules such that every wired input is computed before it is consumed.
// Ties (multiple modules simultaneously eligible) are broken by insertion
// order. Returns a *CycleError if no such ordering exists.
func (g *ModuleGraph) ComputeExecutionOrder() ([]ModuleRef, error) {
	refs := g.Refs()
	satisfied := make(map[int]bool, len(refs))
	var result []ModuleRef

	remaining := make([]ModuleRef, len(refs))
	copy(remaining, refs)

	for len(remaining) > 0 {
		progressed := false
		var next []ModuleRef
		for _, ref := range remaining {
			m, _ := g.Resolve(ref)
			ready := true
			for _, in := range m.Inputs {
				if !in.IsWired() {
					continue
				}
				src, _ := in.Wire()
				if !satisfied[src.index] {
					ready = false
					break
				}
			}
			if ready {
				for _, ac := range m.AutomationControls {
					for _, lane := range ac.Lanes {
						if !satisfied[lane.Source.index] {
							ready = false
							break
						}
					}
					if !ready {
						break
					}
				}
			}
			if ready {
				result = append(result, ref)
				satisfied[ref.index] = true
				progressed = true
			} else {
				next = append(next, ref)
			}
		}
		if !progressed {
			return nil, &CycleError{Remaining: next}
		}
		remaining = next
	}
	return result, nil
}
