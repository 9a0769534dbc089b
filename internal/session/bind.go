package session

import (
	"github.com/ulikoehler/Multiverse/internal/convert"
	"github.com/ulikoehler/Multiverse/internal/protocol"
	"github.com/ulikoehler/Multiverse/internal/registry"
)

// bindEntry is one scalar axis of either send_vec or recv_vec: a reference
// into the registry (or, for a producer's effort contribution, into its
// per-socket contributor row) plus the per-axis scale factor computed for
// this session's units (spec.md §4.1/§4.4).
type bindEntry struct {
	kind      convert.AttributeKind
	isTime    bool
	slot      *registry.Slot
	effortRow []float64
	axis      int
	scale     float64
}

// effortTarget names one (object, kind) pair this session consumes whose
// value must be refreshed by effort aggregation (spec.md §4.3) before
// being read into recv_buf.
type effortTarget struct {
	object string
	kind   convert.AttributeKind
}

// toClient converts a canonical (SI) value vector to the client's unit
// system: client = canonical / scale (the inverse of BindSendData's
// client * scale = canonical).
func toClient(values, scale []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		s := 1.0
		if i < len(scale) && scale[i] != 0 {
			s = scale[i]
		}
		out[i] = v / s
	}
	return out
}

// bindSendObjects implements spec.md §4.4 BindObjects step 4
// (bind_send_objects). It must be called with reg's lock held.
func bindSendObjects(reg *registry.Registry, world, producerAddr string, specs []protocol.AttributeSpec, scale map[convert.AttributeKind][]float64, resp *protocol.ResponseDocument) []bindEntry {
	vec := []bindEntry{{isTime: true, scale: scale[convert.Time][0]}}

	for _, spec := range specs {
		var attrValues []protocol.AttributeValues
		for _, attrName := range spec.Attributes {
			kind := convert.AttributeKind(attrName)
			if !convert.Known(kind) {
				continue
			}
			axisScale := scale[kind]

			var values []float64
			if convert.IsEffort(kind) {
				row := reg.EffortRow(world, spec.Object, kind, producerAddr)
				for axis := range row {
					vec = append(vec, bindEntry{kind: kind, effortRow: row, axis: axis, scale: axisScale[axis]})
				}
				values = row
			} else {
				// continue_state: a slot that already existed means this
				// producer is resuming and supplies current values up
				// front, so mark it written immediately rather than
				// waiting for the first BindSendData.
				existed := reg.Exists(world, spec.Object, kind)
				slot := reg.DeclareProducer(world, spec.Object, kind)
				if existed {
					slot.Written = true
				}
				for axis := range slot.Values {
					vec = append(vec, bindEntry{kind: kind, slot: slot, axis: axis, scale: axisScale[axis]})
				}
				values = slot.Values
			}
			attrValues = append(attrValues, protocol.AttributeValues{Kind: attrName, Values: toClient(values, axisScale)})
		}
		if len(attrValues) > 0 {
			resp.Send = append(resp.Send, protocol.ObjectValues{Object: spec.Object, Attributes: attrValues})
		}
	}
	return vec
}

// bindReceiveObjects implements spec.md §4.4 BindObjects step 7
// (bind_receive_objects). Must be called with reg's lock held, and only
// after wait_for_objects has confirmed every non-effort attribute exists.
func bindReceiveObjects(reg *registry.Registry, world string, specs []protocol.AttributeSpec, scale map[convert.AttributeKind][]float64, resp *protocol.ResponseDocument) ([]bindEntry, []effortTarget) {
	vec := []bindEntry{{isTime: true, scale: scale[convert.Time][0]}}
	var efforts []effortTarget

	for _, spec := range specs {
		var attrValues []protocol.AttributeValues
		for _, attrName := range spec.Attributes {
			kind := convert.AttributeKind(attrName)
			if !convert.Known(kind) {
				continue
			}
			axisScale := scale[kind]

			var slot *registry.Slot
			if convert.IsEffort(kind) {
				slot = reg.DeclareProducer(world, spec.Object, kind)
				slot.Written = true
				efforts = append(efforts, effortTarget{object: spec.Object, kind: kind})
			} else {
				s, ok := reg.DeclareConsumer(world, spec.Object, kind)
				if !ok {
					continue
				}
				slot = s
			}
			for axis := range slot.Values {
				vec = append(vec, bindEntry{kind: kind, slot: slot, axis: axis, scale: axisScale[axis]})
			}
			attrValues = append(attrValues, protocol.AttributeValues{Kind: attrName, Values: toClient(slot.Values, axisScale)})
		}
		if len(attrValues) > 0 {
			resp.Receive = append(resp.Receive, protocol.ObjectValues{Object: spec.Object, Attributes: attrValues})
		}
	}
	return vec, efforts
}
