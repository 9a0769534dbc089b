// Package registry implements the process-wide world/object/attribute
// store described in spec.md §3 and §4.2: a single mutex-guarded registry
// of named worlds, each holding objects, attribute value slots, simulated
// time, and a per-object effort ledger keyed by producer socket address.
//
// Per spec.md §9's "pointer-graph registry → arena + indices" design note,
// every (world, object, attribute) resolves once to a *Slot that is never
// relocated: growth only appends new map entries, so a *Slot handed out by
// DeclareProducer/DeclareConsumer stays valid and stable for the process
// lifetime, letting session bind vectors hold bare pointers safely.
package registry

import (
	"sync"

	"github.com/ulikoehler/Multiverse/internal/convert"
)

// Slot holds one attribute's current value vector and write state.
type Slot struct {
	Values  []float64
	Written bool
}

type object struct {
	attributes map[convert.AttributeKind]*Slot
	efforts    map[convert.AttributeKind]map[string][]float64 // kind -> socket addr -> contributor vector
}

type world struct {
	name    string
	time    float64
	objects map[string]*object
}

// Registry is the process-wide store. All mutations and reads happen under
// mu; callers must never perform socket I/O while holding it (spec.md §5).
type Registry struct {
	mu     sync.Mutex
	worlds map[string]*world
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{worlds: make(map[string]*world)}
}

// Lock and Unlock expose the registry's single global mutex to callers
// (e.g. the session driver) that must perform several registry operations
// as one atomic step, per spec.md §4.4's "under the mutex" bind sequences.
func (r *Registry) Lock()   { r.mu.Lock() }
func (r *Registry) Unlock() { r.mu.Unlock() }

func (r *Registry) world(name string) *world {
	w, ok := r.worlds[name]
	if !ok {
		w = &world{name: name, objects: make(map[string]*object)}
		r.worlds[name] = w
	}
	return w
}

func (w *world) object(name string) *object {
	o, ok := w.objects[name]
	if !ok {
		o = &object{
			attributes: make(map[convert.AttributeKind]*Slot),
			efforts:    make(map[convert.AttributeKind]map[string][]float64),
		}
		w.objects[name] = o
	}
	return o
}

// WorldTime returns the current simulated time for world, creating it if
// absent. Caller must hold the lock.
func (r *Registry) WorldTime(worldName string) float64 {
	return r.world(worldName).time
}

// SetWorldTime stores a new simulated time for world. Caller must hold the
// lock and is responsible for the NaN/non-negativity checks
// spec.md §4.4 assigns to BindSendData, not to the registry itself.
func (r *Registry) SetWorldTime(worldName string, t float64) {
	r.world(worldName).time = t
}

// DeclareProducer implements spec.md §4.2 declare_producer: if the
// attribute entry is absent, it is created with the kind's default vector
// and Written=false. Either way a stable *Slot is returned.
func (r *Registry) DeclareProducer(worldName, objectName string, kind convert.AttributeKind) *Slot {
	obj := r.world(worldName).object(objectName)
	slot, ok := obj.attributes[kind]
	if !ok {
		slot = &Slot{Values: convert.DefaultVector(kind)}
		obj.attributes[kind] = slot
	}
	return slot
}

// DeclareConsumer implements spec.md §4.2 declare_consumer: the entry must
// already exist (callers wait for it via Exists before calling). ok is
// false if the attribute has not been declared by any producer yet.
func (r *Registry) DeclareConsumer(worldName, objectName string, kind convert.AttributeKind) (*Slot, bool) {
	w, ok := r.worlds[worldName]
	if !ok {
		return nil, false
	}
	obj, ok := w.objects[objectName]
	if !ok {
		return nil, false
	}
	slot, ok := obj.attributes[kind]
	return slot, ok
}

// Exists reports whether (world, object, kind) has been declared yet,
// without creating it. Used by the wait_for_objects poll of spec.md §4.4.
func (r *Registry) Exists(worldName, objectName string, kind convert.AttributeKind) bool {
	w, ok := r.worlds[worldName]
	if !ok {
		return false
	}
	obj, ok := w.objects[objectName]
	if !ok {
		return false
	}
	_, ok = obj.attributes[kind]
	return ok
}

// Written reports whether a declared attribute has received at least one
// producer value yet, used by wait_for_receive_data (spec.md §4.4).
func (r *Registry) Written(worldName, objectName string, kind convert.AttributeKind) bool {
	slot, ok := r.DeclareConsumer(worldName, objectName, kind)
	return ok && slot.Written
}

// KnownAttributes lists every (object, kind) pair declared so far in a
// world, used by sentinel expansion (spec.md §4.4 step 5). Efforts are
// included only when their stored vector is longer than 3; the aggregated
// effort slot always holds exactly 3 values, however many producers
// contribute, so efforts are never listed.
func (r *Registry) KnownAttributes(worldName string) []Declared {
	w, ok := r.worlds[worldName]
	if !ok {
		return nil
	}
	var out []Declared
	for objName, obj := range w.objects {
		for kind, slot := range obj.attributes {
			if convert.IsEffort(kind) && len(slot.Values) <= 3 {
				continue
			}
			out = append(out, Declared{Object: objName, Kind: kind})
		}
	}
	return out
}

// Declared names one declared (object, attribute) pair.
type Declared struct {
	Object string
	Kind   convert.AttributeKind
}

// ObjectAttributes lists every kind declared on a single object, for the
// "{obj: [\"\"]}" sentinel expansion.
func (r *Registry) ObjectAttributes(worldName, objectName string) []convert.AttributeKind {
	w, ok := r.worlds[worldName]
	if !ok {
		return nil
	}
	obj, ok := w.objects[objectName]
	if !ok {
		return nil
	}
	var out []convert.AttributeKind
	for kind := range obj.attributes {
		out = append(out, kind)
	}
	return out
}

// ObjectsWithAttribute lists every object in world declaring kind, for the
// "{\"\": [\"attr\"]}" sentinel expansion.
func (r *Registry) ObjectsWithAttribute(worldName string, kind convert.AttributeKind) []string {
	w, ok := r.worlds[worldName]
	if !ok {
		return nil
	}
	var out []string
	for objName, obj := range w.objects {
		if _, ok := obj.attributes[kind]; ok {
			out = append(out, objName)
		}
	}
	return out
}

// EffortRow returns the per-socket contributor row for (world, object,
// kind, socketAddr), creating a zeroed 3-element row on first use. Each
// producer session owns exactly one row (spec.md §4.2).
func (r *Registry) EffortRow(worldName, objectName string, kind convert.AttributeKind, socketAddr string) []float64 {
	obj := r.world(worldName).object(objectName)
	rows, ok := obj.efforts[kind]
	if !ok {
		rows = make(map[string][]float64)
		obj.efforts[kind] = rows
	}
	row, ok := rows[socketAddr]
	if !ok {
		row = make([]float64, 3)
		rows[socketAddr] = row
	}
	return row
}

// AggregateEffort implements spec.md §4.3: for an effort kind on an
// object, sum index-wise across every 3-element contributor group of every
// producer socket's row, writing the total into the shared per-object
// slot (creating it on first use). Returns the aggregated vector.
func (r *Registry) AggregateEffort(worldName, objectName string, kind convert.AttributeKind) []float64 {
	obj := r.world(worldName).object(objectName)
	sum := make([]float64, 3)
	for _, row := range obj.efforts[kind] {
		for j := 0; j+3 <= len(row); j += 3 {
			sum[0] += row[j]
			sum[1] += row[j+1]
			sum[2] += row[j+2]
		}
	}
	slot, ok := obj.attributes[kind]
	if !ok {
		slot = &Slot{Values: make([]float64, 3)}
		obj.attributes[kind] = slot
	}
	slot.Values = sum
	slot.Written = true
	return sum
}

// DropSocket removes a producer socket's effort contributions for a world,
// e.g. on session disconnect, so the aggregate no longer reflects it.
func (r *Registry) DropSocket(worldName, socketAddr string) {
	w, ok := r.worlds[worldName]
	if !ok {
		return
	}
	for _, obj := range w.objects {
		for kind, rows := range obj.efforts {
			delete(rows, socketAddr)
			obj.efforts[kind] = rows
		}
	}
}
