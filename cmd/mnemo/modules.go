package main

// Compiled-in modules. Each registers itself with the core registry.
import (
	_ "github.com/flemzord/mnemo/internal/gateway"
	_ "github.com/flemzord/mnemo/modules/embedder/hash"
	_ "github.com/flemzord/mnemo/modules/embedder/ollama"
	_ "github.com/flemzord/mnemo/modules/embedder/openai"
	_ "github.com/flemzord/mnemo/modules/memory/chromem"
	_ "github.com/flemzord/mnemo/modules/memory/sqlite"
)
