package core

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"
)

var registry = struct {
	sync.RWMutex
	byID map[ModuleID]ModuleInfo
}{byID: make(map[ModuleID]ModuleInfo)}

// RegisterModule records the module described by instance.ModuleInfo().
// IDs must have the form "namespace.name" and be unique. It panics on a
// malformed or duplicate ID and is meant to be called from init().
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	if err := checkID(info.ID); err != nil {
		panic(err.Error())
	}
	if info.New == nil {
		panic(fmt.Sprintf("module %s: New function must not be nil", info.ID))
	}

	registry.Lock()
	defer registry.Unlock()
	if _, dup := registry.byID[info.ID]; dup {
		panic(fmt.Sprintf("module already registered: %s", info.ID))
	}
	registry.byID[info.ID] = info
}

func checkID(id ModuleID) error {
	ns, name, ok := strings.Cut(string(id), ".")
	if !ok || ns == "" || name == "" {
		return fmt.Errorf("module ID %q must have the form namespace.name", id)
	}
	return nil
}

// GetModule returns the ModuleInfo registered under id.
func GetModule(id string) (ModuleInfo, bool) {
	registry.RLock()
	defer registry.RUnlock()
	info, ok := registry.byID[ModuleID(id)]
	return info, ok
}

// GetModules returns every registered module sorted by ID.
func GetModules() []ModuleInfo {
	return collect(func(ModuleID) bool { return true })
}

// GetModulesByNamespace returns the modules of one namespace, such as
// every "embedder.*", sorted by ID.
func GetModulesByNamespace(namespace string) []ModuleInfo {
	return collect(func(id ModuleID) bool { return id.Namespace() == namespace })
}

func collect(keep func(ModuleID) bool) []ModuleInfo {
	registry.RLock()
	defer registry.RUnlock()

	var out []ModuleInfo
	for id, info := range registry.byID {
		if keep(id) {
			out = append(out, info)
		}
	}
	slices.SortFunc(out, func(a, b ModuleInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// resetRegistry clears the registry. Only for testing.
func resetRegistry() {
	registry.Lock()
	defer registry.Unlock()
	registry.byID = make(map[ModuleID]ModuleInfo)
}
