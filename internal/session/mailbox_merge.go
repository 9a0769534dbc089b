package session

import (
	"sort"

	"github.com/ulikoehler/Multiverse/internal/protocol"
)

// unionRequestDocuments merges b into a: a's fields win when both are set,
// and send/receive attribute lists are unioned per object. Used by the
// mailbox cross-simulation merge (spec.md §4.4 BindObjects step 1).
func unionRequestDocuments(a, b protocol.RequestDocument) protocol.RequestDocument {
	name := a.Name
	if name == "" {
		name = b.Name
	}
	world := a.World
	if world == "" {
		world = b.World
	}
	units := a.Units
	if units.Length == "" && units.Angle == "" && units.Mass == "" && units.Time == "" && units.Handedness == "" {
		units = b.Units
	}
	return protocol.RequestDocument{
		Name:    name,
		World:   world,
		Units:   units,
		Send:    unionSpecs(a.Send, b.Send),
		Receive: unionSpecs(a.Receive, b.Receive),
	}
}

// unionSpecs merges two attribute-spec lists, keeping first-seen object
// order and de-duplicating attribute names within an object.
func unionSpecs(a, b []protocol.AttributeSpec) []protocol.AttributeSpec {
	order := make([]string, 0)
	byObject := make(map[string]map[string]bool)
	add := func(specs []protocol.AttributeSpec) {
		for _, s := range specs {
			attrs, ok := byObject[s.Object]
			if !ok {
				attrs = make(map[string]bool)
				byObject[s.Object] = attrs
				order = append(order, s.Object)
			}
			for _, attr := range s.Attributes {
				attrs[attr] = true
			}
		}
	}
	add(a)
	add(b)

	out := make([]protocol.AttributeSpec, 0, len(order))
	for _, obj := range order {
		names := make([]string, 0, len(byObject[obj]))
		for attr := range byObject[obj] {
			names = append(names, attr)
		}
		sort.Strings(names)
		out = append(out, protocol.AttributeSpec{Object: obj, Attributes: names})
	}
	return out
}
