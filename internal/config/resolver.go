package config

import (
	"slices"
	"strings"

	"github.com/flemzord/mnemo/internal/core"
)

// Resolve returns a sorted list of module IDs from the configuration.
// Embedders load first, then stores, so a store can size its vectors
// from the embedder during Provision.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		if ra, rb := rank(a), rank(b); ra != rb {
			return ra - rb
		}
		return strings.Compare(a, b)
	})
	return ids
}

func rank(id string) int {
	switch core.ModuleID(id).Namespace() {
	case core.NamespaceEmbedder:
		return 0
	case core.NamespaceMemory:
		return 1
	default:
		return 2
	}
}
