package protocol

import (
	"sort"

	"github.com/ulikoehler/Multiverse/internal/convert"
)

// ExpandReceiveSentinels implements spec.md §4.4 step 5's
// validate_response_meta_data normalization pass:
//
//   - "": [""]           -> every known (object, non-effort) attribute
//   - "obj": [""]        -> every attribute declared on obj
//   - "": ["attr", ...]  -> attr on every object that declares it
//
// Sentinel entries are dropped from the result once expanded, and any
// non-sentinel entry passes through unchanged. Expanded object and
// attribute names are sorted, so the same registry contents always expand
// in the same order.
func ExpandReceiveSentinels(specs []AttributeSpec, world string, known Lister) []AttributeSpec {
	if IsSentinelOnly(specs) {
		out := make([]AttributeSpec, 0)
		byObject := make(map[string][]string)
		order := make([]string, 0)
		for _, d := range known.KnownAttributes(world) {
			if _, ok := byObject[d.Object]; !ok {
				order = append(order, d.Object)
			}
			byObject[d.Object] = append(byObject[d.Object], string(d.Kind))
		}
		sort.Strings(order)
		for _, obj := range order {
			sort.Strings(byObject[obj])
			out = append(out, AttributeSpec{Object: obj, Attributes: byObject[obj]})
		}
		return out
	}

	out := make([]AttributeSpec, 0, len(specs))
	for _, spec := range specs {
		switch {
		case spec.Object != "" && len(spec.Attributes) == 1 && spec.Attributes[0] == "":
			attrs := known.ObjectAttributes(world, spec.Object)
			names := make([]string, 0, len(attrs))
			for _, a := range attrs {
				names = append(names, string(a))
			}
			sort.Strings(names)
			out = append(out, AttributeSpec{Object: spec.Object, Attributes: names})
		case spec.Object == "":
			for _, attr := range spec.Attributes {
				if attr == "" {
					continue
				}
				objNames := known.ObjectsWithAttribute(world, convert.AttributeKind(attr))
				sort.Strings(objNames)
				for _, objName := range objNames {
					out = append(out, AttributeSpec{Object: objName, Attributes: []string{attr}})
				}
			}
		default:
			out = append(out, spec)
		}
	}
	return out
}

// Lister is the minimal registry surface sentinel expansion needs.
type Lister interface {
	KnownAttributes(world string) []Declared
	ObjectAttributes(world, object string) []convert.AttributeKind
	ObjectsWithAttribute(world string, kind convert.AttributeKind) []string
}

// Declared names one declared (object, attribute) pair; mirrors
// registry.Declared so this package avoids importing internal/registry.
type Declared struct {
	Object string
	Kind   convert.AttributeKind
}
