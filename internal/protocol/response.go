package protocol

import (
	"encoding/json"
	"math"

	"github.com/iancoleman/orderedmap"

	"github.com/ulikoehler/Multiverse/internal/convert"
)

// AttributeValues pairs an attribute kind with its current per-axis value
// vector (already scaled to the client's unit system), in the order it
// will be echoed in the response document.
type AttributeValues struct {
	Kind   string
	Values []float64
}

// ObjectValues is one object's echoed attribute values, in request order.
type ObjectValues struct {
	Object     string
	Attributes []AttributeValues
}

// ResponseDocument is the typed form of an outgoing meta-data response.
// Send/Receive echo the request's object/attribute shape, but each
// attribute name is replaced by its current value vector (spec.md §6).
type ResponseDocument struct {
	Name       string
	World      string
	Units      convert.Units
	Time       float64
	Send       []ObjectValues
	Receive    []ObjectValues
}

// Encode renders the response document as the wire JSON shape of spec.md
// §6, using an order-preserving map so repeated identical requests produce
// byte-identical key ordering (the idempotent re-bind property, spec.md
// §8).
func (r ResponseDocument) Encode() ([]byte, error) {
	root := orderedmap.New()
	root.Set("name", r.Name)
	root.Set("world", r.World)
	root.Set("length_unit", r.Units.Length)
	root.Set("angle_unit", r.Units.Angle)
	root.Set("mass_unit", r.Units.Mass)
	root.Set("time_unit", r.Units.Time)
	root.Set("handedness", r.Units.Handedness)
	root.Set("time", r.Time)
	root.Set("send", encodeObjectValues(r.Send))
	root.Set("receive", encodeObjectValues(r.Receive))
	return json.Marshal(root)
}

func encodeObjectValues(objects []ObjectValues) *orderedmap.OrderedMap {
	out := orderedmap.New()
	for _, obj := range objects {
		attrs := orderedmap.New()
		for _, a := range obj.Attributes {
			// encoding/json rejects NaN (the default of a not-yet-written
			// state attribute) and ±Inf; such entries are encoded as null.
			values := make([]any, len(a.Values))
			for i, v := range a.Values {
				if !math.IsNaN(v) && !math.IsInf(v, 0) {
					values[i] = v
				}
			}
			attrs.Set(a.Kind, values)
		}
		out.Set(obj.Object, attrs)
	}
	return out
}
