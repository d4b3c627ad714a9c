package core

import "strings"

// Namespaces with load-order and cardinality rules.
const (
	NamespaceEmbedder = "embedder"
	NamespaceMemory   = "memory"
)

// ModuleID is a dotted, namespaced module identifier such as "memory.sqlite"
// or "embedder.openai". The part before the first dot is the namespace.
type ModuleID string

// Namespace returns the portion of the ID before the first dot.
func (id ModuleID) Namespace() string {
	ns, _, _ := strings.Cut(string(id), ".")
	return ns
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	// ID uniquely identifies the module.
	ID ModuleID

	// New returns a fresh, unconfigured instance of the module.
	New func() Module
}

// Module is the base interface every module implements.
type Module interface {
	ModuleInfo() ModuleInfo
}
