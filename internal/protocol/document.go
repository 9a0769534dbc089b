// Package protocol implements the typed meta-data request/response
// document of spec.md §6/§9: decoding the client's JSON request into an
// order-preserving typed structure, normalizing the sentinel
// object/attribute shorthands, and encoding the response document with
// per-axis values substituted for the echoed attribute lists.
//
// Per spec.md §9's "duck-typed JSON traversal → typed request document"
// design note, object→attribute-list maps are decoded through
// github.com/iancoleman/orderedmap rather than Go's unordered map, because
// the idempotent-re-bind testable property (spec.md §8) requires that
// send_vec/recv_vec ordering be identical across repeated identical
// requests — something an unordered map cannot guarantee.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/iancoleman/orderedmap"

	"github.com/ulikoehler/Multiverse/internal/convert"
)

// AttributeSpec names one object's requested attribute list, in the order
// the client listed them. Object == "" represents the "" sentinel object;
// an element of Attributes == "" represents the "" sentinel attribute.
type AttributeSpec struct {
	Object     string
	Attributes []string
}

// RequestDocument is the typed form of an incoming meta-data request.
type RequestDocument struct {
	Name    string
	World   string
	Units   convert.Units
	Send    []AttributeSpec
	Receive []AttributeSpec
}

type wireDocument struct {
	Name       string  `json:"name"`
	World      string  `json:"world"`
	LengthUnit string  `json:"length_unit"`
	AngleUnit  string  `json:"angle_unit"`
	MassUnit   string  `json:"mass_unit"`
	TimeUnit   string  `json:"time_unit"`
	Handedness string  `json:"handedness"`
	Time       float64 `json:"time,omitempty"`
}

// DecodeRequest parses raw JSON into a RequestDocument, applying spec.md
// §6's documented defaults for any missing unit/handedness field.
func DecodeRequest(raw []byte) (RequestDocument, error) {
	var wire wireDocument
	if err := json.Unmarshal(raw, &wire); err != nil {
		return RequestDocument{}, fmt.Errorf("decode request metadata: %w", err)
	}

	full := orderedmap.New()
	if err := full.UnmarshalJSON(raw); err != nil {
		return RequestDocument{}, fmt.Errorf("decode request metadata: %w", err)
	}

	send, err := decodeAttributeSpecs(full, "send")
	if err != nil {
		return RequestDocument{}, err
	}
	receive, err := decodeAttributeSpecs(full, "receive")
	if err != nil {
		return RequestDocument{}, err
	}

	doc := RequestDocument{
		Name: wire.Name,
		World: wire.World,
		Units: convert.Units{
			Length:     wire.LengthUnit,
			Angle:      wire.AngleUnit,
			Mass:       wire.MassUnit,
			Time:       wire.TimeUnit,
			Handedness: wire.Handedness,
		}.Normalized(),
		Send:    send,
		Receive: receive,
	}
	if doc.World == "" {
		doc.World = "world"
	}
	return doc, nil
}

func decodeAttributeSpecs(full *orderedmap.OrderedMap, field string) ([]AttributeSpec, error) {
	raw, ok := full.Get(field)
	if !ok || raw == nil {
		return nil, nil
	}
	section, ok := raw.(orderedmap.OrderedMap)
	if !ok {
		if m, ok2 := raw.(*orderedmap.OrderedMap); ok2 {
			section = *m
		} else {
			return nil, fmt.Errorf("field %q must be a JSON object", field)
		}
	}

	specs := make([]AttributeSpec, 0, len(section.Keys()))
	for _, objName := range section.Keys() {
		val, _ := section.Get(objName)
		items, ok := val.([]interface{})
		if !ok {
			return nil, fmt.Errorf("field %q object %q must map to an array", field, objName)
		}
		attrs := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("field %q object %q contains a non-string attribute", field, objName)
			}
			attrs = append(attrs, s)
		}
		specs = append(specs, AttributeSpec{Object: objName, Attributes: attrs})
	}
	return specs, nil
}

// IsSentinelOnly reports whether specs is exactly the "" : [""] sentinel
// (spec.md §4.4 step 5's "exactly {\"\": [\"\"]}" case).
func IsSentinelOnly(specs []AttributeSpec) bool {
	if len(specs) != 1 {
		return false
	}
	return specs[0].Object == "" && len(specs[0].Attributes) == 1 && specs[0].Attributes[0] == ""
}
