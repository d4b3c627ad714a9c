// Package pipeline runs the recall path (classify, retrieve, assemble) and
// the observe path (store an exchange, extract facts) for one scope.
package pipeline

import (
	"errors"
	"log/slog"

	ctxengine "github.com/flemzord/mnemo/internal/context"
	"github.com/flemzord/mnemo/internal/hook"
	"github.com/flemzord/mnemo/internal/memory"
	"github.com/flemzord/mnemo/internal/persona"
	"github.com/flemzord/mnemo/internal/retrieval"
	"github.com/flemzord/mnemo/internal/telemetry"
	"github.com/flemzord/mnemo/internal/tier"
)

// Component names and priorities of an assembled context.
const (
	ComponentIdentity = "identity"
	ComponentGuidance = "guidance"
	ComponentFacts    = "facts"
	ComponentMemories = "memories"
	ComponentDialogue = "recent_dialogue"

	PriorityIdentity = 0
	PriorityGuidance = 1
	PriorityFacts    = 2
	PriorityMemories = 3
	PriorityDialogue = 4
)

// defaultRecentTurns is the size of the recent-dialogue window.
const defaultRecentTurns = 8

// Config groups the dependencies of a Pipeline.
// Uses request struct pattern for >3 parameters.
type Config struct {
	Classifier *retrieval.Classifier
	Engine     *retrieval.Engine
	Assembler  *ctxengine.Assembler
	Writer     *memory.Writer
	History    memory.HistoryStore

	// Identity serves the per-scope identity text. Usually a
	// tier.LoadOnce over persona.Directory.LoadIdentity.
	Identity tier.Tier[string, string]

	// Guidance serves the per-scope guidance notes. Usually a
	// tier.PassThrough over persona.Directory.LoadGuidance.
	Guidance tier.Tier[string, []persona.Note]

	// Dialogue renders the recent-dialogue window. Nil renders it verbatim.
	Dialogue *ctxengine.DialogueCompactor

	// Extractor derives facts from observed exchanges. Nil disables
	// extraction.
	Extractor memory.FactExtractor

	Hooks   *hook.Pipeline
	Metrics *telemetry.Metrics
	Logger  *slog.Logger

	// RecentTurns is the dialogue window size. Zero means 8.
	RecentTurns int
}

func (c Config) validate() error {
	var errs []error
	if c.Classifier == nil {
		errs = append(errs, errors.New("pipeline: classifier is required"))
	}
	if c.Engine == nil {
		errs = append(errs, errors.New("pipeline: engine is required"))
	}
	if c.Assembler == nil {
		errs = append(errs, errors.New("pipeline: assembler is required"))
	}
	if c.Writer == nil {
		errs = append(errs, errors.New("pipeline: writer is required"))
	}
	if c.History == nil {
		errs = append(errs, errors.New("pipeline: history store is required"))
	}
	return errors.Join(errs...)
}
