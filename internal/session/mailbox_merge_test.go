package session

import (
	"reflect"
	"testing"

	"github.com/ulikoehler/Multiverse/internal/convert"
	"github.com/ulikoehler/Multiverse/internal/protocol"
)

func TestUnionSpecsMergesAttributesPreservingFirstSeenOrder(t *testing.T) {
	a := []protocol.AttributeSpec{
		{Object: "rover", Attributes: []string{"position"}},
		{Object: "arm", Attributes: []string{"joint_rvalue"}},
	}
	b := []protocol.AttributeSpec{
		{Object: "arm", Attributes: []string{"joint_tvalue"}},
		{Object: "rover", Attributes: []string{"quaternion"}},
	}

	got := unionSpecs(a, b)
	if len(got) != 2 {
		t.Fatalf("expected 2 objects, got %d: %+v", len(got), got)
	}
	if got[0].Object != "rover" || got[1].Object != "arm" {
		t.Fatalf("expected first-seen object order [rover, arm], got %+v", got)
	}
	if !reflect.DeepEqual(got[0].Attributes, []string{"position", "quaternion"}) {
		t.Fatalf("expected sorted merged attributes for rover, got %v", got[0].Attributes)
	}
	if !reflect.DeepEqual(got[1].Attributes, []string{"joint_rvalue", "joint_tvalue"}) {
		t.Fatalf("expected sorted merged attributes for arm, got %v", got[1].Attributes)
	}
}

func TestUnionRequestDocumentsPrefersOwnerFieldsFallsBackToInstigator(t *testing.T) {
	owner := protocol.RequestDocument{
		Name:  "sim",
		World: "w",
		Units: convert.Units{Length: "m", Angle: "rad", Mass: "kg", Time: "s", Handedness: "rhs"},
		Send:  []protocol.AttributeSpec{{Object: "rover", Attributes: []string{"position"}}},
	}
	instigator := protocol.RequestDocument{
		Name:    "sim",
		Receive: []protocol.AttributeSpec{{Object: "rover", Attributes: []string{"quaternion"}}},
	}

	merged := unionRequestDocuments(owner, instigator)
	if merged.World != "w" {
		t.Fatalf("expected owner's world to win, got %q", merged.World)
	}
	if merged.Units.Length != "m" {
		t.Fatalf("expected owner's units to win, got %+v", merged.Units)
	}
	if len(merged.Send) != 1 || merged.Send[0].Object != "rover" {
		t.Fatalf("expected owner's send spec preserved, got %+v", merged.Send)
	}
	if len(merged.Receive) != 1 || merged.Receive[0].Object != "rover" {
		t.Fatalf("expected instigator's receive spec folded in, got %+v", merged.Receive)
	}
}

func TestUnionRequestDocumentsFallsBackToInstigatorWhenOwnerFieldsEmpty(t *testing.T) {
	owner := protocol.RequestDocument{Name: "sim"}
	instigator := protocol.RequestDocument{
		Name:  "sim",
		World: "fallback-world",
		Units: convert.Units{Length: "cm"},
	}

	merged := unionRequestDocuments(owner, instigator)
	if merged.World != "fallback-world" {
		t.Fatalf("expected instigator's world as fallback, got %q", merged.World)
	}
	if merged.Units.Length != "cm" {
		t.Fatalf("expected instigator's units as fallback, got %+v", merged.Units)
	}
}
