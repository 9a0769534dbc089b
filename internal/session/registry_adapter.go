package session

import (
	"github.com/ulikoehler/Multiverse/internal/convert"
	"github.com/ulikoehler/Multiverse/internal/protocol"
	"github.com/ulikoehler/Multiverse/internal/registry"
)

// registryLister adapts *registry.Registry to protocol.Lister so sentinel
// expansion (internal/protocol) never needs to import internal/registry.
// Callers must hold reg's lock before invoking any method here — none of
// them lock internally, matching every other registry accessor.
type registryLister struct {
	reg *registry.Registry
}

func (l registryLister) KnownAttributes(world string) []protocol.Declared {
	declared := l.reg.KnownAttributes(world)
	out := make([]protocol.Declared, len(declared))
	for i, d := range declared {
		out[i] = protocol.Declared{Object: d.Object, Kind: d.Kind}
	}
	return out
}

func (l registryLister) ObjectAttributes(world, object string) []convert.AttributeKind {
	return l.reg.ObjectAttributes(world, object)
}

func (l registryLister) ObjectsWithAttribute(world string, kind convert.AttributeKind) []string {
	return l.reg.ObjectsWithAttribute(world, kind)
}
