package protocol

import (
	"encoding/json"
	"testing"

	"github.com/ulikoehler/Multiverse/internal/convert"
)

func TestDecodeRequestAppliesDefaults(t *testing.T) {
	doc, err := DecodeRequest([]byte(`{"name":"p1","send":{"box":["position"]}}`))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Units.Length != "m" || doc.Units.Handedness != "rhs" || doc.Units.Time != "s" {
		t.Fatalf("unexpected defaulted units: %+v", doc.Units)
	}
	if doc.World != "world" {
		t.Fatalf("World = %q, want default %q", doc.World, "world")
	}
	if len(doc.Send) != 1 || doc.Send[0].Object != "box" || doc.Send[0].Attributes[0] != "position" {
		t.Fatalf("unexpected Send: %+v", doc.Send)
	}
}

func TestDecodeRequestPreservesObjectOrder(t *testing.T) {
	raw := []byte(`{"name":"p1","receive":{"zeta":["position"],"alpha":["force"],"mid":["torque"]}}`)
	doc, err := DecodeRequest(raw)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"zeta", "alpha", "mid"}
	if len(doc.Receive) != len(want) {
		t.Fatalf("got %d receive entries, want %d", len(doc.Receive), len(want))
	}
	for i, w := range want {
		if doc.Receive[i].Object != w {
			t.Fatalf("Receive[%d].Object = %q, want %q (order must match request JSON)", i, doc.Receive[i].Object, w)
		}
	}
}

func TestIdempotentDecodeProducesIdenticalOrdering(t *testing.T) {
	raw := []byte(`{"name":"p1","send":{"b":["position"],"a":["force"]}}`)
	d1, err := DecodeRequest(raw)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := DecodeRequest(raw)
	if err != nil {
		t.Fatal(err)
	}
	for i := range d1.Send {
		if d1.Send[i].Object != d2.Send[i].Object {
			t.Fatalf("decode must be deterministic: %v vs %v", d1.Send, d2.Send)
		}
	}
}

type fakeLister struct {
	known     []Declared
	perObject map[string][]convert.AttributeKind
	perKind   map[convert.AttributeKind][]string
}

func (f fakeLister) KnownAttributes(world string) []Declared { return f.known }
func (f fakeLister) ObjectAttributes(world, object string) []convert.AttributeKind {
	return f.perObject[object]
}
func (f fakeLister) ObjectsWithAttribute(world string, kind convert.AttributeKind) []string {
	return f.perKind[kind]
}

func TestExpandEmptySentinelListsEveryKnownAttribute(t *testing.T) {
	lister := fakeLister{known: []Declared{
		{Object: "obj", Kind: convert.Position},
		{Object: "obj", Kind: convert.Quaternion},
	}}
	specs := []AttributeSpec{{Object: "", Attributes: []string{""}}}
	got := ExpandReceiveSentinels(specs, "w", lister)
	if len(got) != 1 || got[0].Object != "obj" {
		t.Fatalf("unexpected expansion: %+v", got)
	}
	if len(got[0].Attributes) != 2 {
		t.Fatalf("expected both declared attributes, got %+v", got[0].Attributes)
	}
}

func TestExpandObjectSentinelListsObjectAttributes(t *testing.T) {
	lister := fakeLister{perObject: map[string][]convert.AttributeKind{
		"obj": {convert.Position, convert.Quaternion},
	}}
	specs := []AttributeSpec{{Object: "obj", Attributes: []string{""}}}
	got := ExpandReceiveSentinels(specs, "w", lister)
	if len(got) != 1 || got[0].Object != "obj" || len(got[0].Attributes) != 2 {
		t.Fatalf("unexpected expansion: %+v", got)
	}
}

func TestExpandAttributeSentinelListsObjectsWithAttribute(t *testing.T) {
	lister := fakeLister{perKind: map[convert.AttributeKind][]string{
		convert.Position: {"obj1", "obj2"},
	}}
	specs := []AttributeSpec{{Object: "", Attributes: []string{"position"}}}
	got := ExpandReceiveSentinels(specs, "w", lister)
	if len(got) != 2 {
		t.Fatalf("expected 2 expanded entries, got %+v", got)
	}
}

func TestEncodeResponseWritesTimeField(t *testing.T) {
	resp := ResponseDocument{
		Name: "p1", World: "w", Time: 1.5,
		Units: convert.DefaultUnits(),
		Receive: []ObjectValues{
			{Object: "box", Attributes: []AttributeValues{{Kind: "position", Values: []float64{0.1, 0.2, 0.3}}}},
		},
	}
	data, err := resp.Encode()
	if err != nil {
		t.Fatal(err)
	}
	var generic map[string]any
	if err := json.Unmarshal(data, &generic); err != nil {
		t.Fatal(err)
	}
	if generic["time"].(float64) != 1.5 {
		t.Fatalf("unexpected time field: %v", generic["time"])
	}
}
