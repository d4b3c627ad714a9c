package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/mnemo/pkg/app"
)

// initAnswers are the choices collected by the init wizard.
type initAnswers struct {
	Store        string
	Embedder     string
	Model        string
	Bind         string
	Auth         bool
	ExtractFacts bool
}

func defaultAnswers() initAnswers {
	return initAnswers{
		Store:        "memory.sqlite",
		Embedder:     "embedder.hash",
		Bind:         "127.0.0.1:8080",
		ExtractFacts: true,
	}
}

func initCmd() *cobra.Command {
	var (
		force       bool
		useDefaults bool
	)
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := app.ConfigCandidates()[0]
			if len(args) > 0 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			answers := defaultAnswers()
			if !useDefaults {
				if err := askInit(&answers); err != nil {
					if errors.Is(err, huh.ErrUserAborted) {
						return errors.New("init aborted")
					}
					return err
				}
			}

			data, err := renderConfig(answers)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
				return fmt.Errorf("creating config directory: %w", err)
			}
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			if answers.Auth {
				fmt.Fprintln(cmd.OutOrStdout(), "Set MNEMO_API_TOKEN before starting the gateway.")
			}
			if answers.Embedder == "embedder.openai" {
				fmt.Fprintln(cmd.OutOrStdout(), "Set OPENAI_API_KEY before starting mnemo.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.Flags().BoolVar(&useDefaults, "defaults", false, "Skip the form and use default answers")
	return cmd
}

func askInit(a *initAnswers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where should memories be stored?").
				Options(
					huh.NewOption("SQLite file (records and dialogue history)", "memory.sqlite"),
					huh.NewOption("chromem-go vector database", "memory.chromem"),
				).
				Value(&a.Store),
			huh.NewSelect[string]().
				Title("Which embedder?").
				Options(
					huh.NewOption("Offline feature hashing (no model needed)", "embedder.hash"),
					huh.NewOption("Ollama", "embedder.ollama"),
					huh.NewOption("OpenAI-compatible API", "embedder.openai"),
				).
				Value(&a.Embedder),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Embedding model").
				Description("Leave empty for the embedder default.").
				Value(&a.Model),
		).WithHideFunc(func() bool { return a.Embedder == "embedder.hash" }),
		huh.NewGroup(
			huh.NewInput().
				Title("HTTP gateway address").
				Value(&a.Bind).
				Validate(func(s string) error {
					_, err := net.ResolveTCPAddr("tcp", s)
					return err
				}),
			huh.NewConfirm().
				Title("Require a bearer token?").
				Value(&a.Auth),
			huh.NewConfirm().
				Title("Extract facts from conversations?").
				Value(&a.ExtractFacts),
		),
	)
	return form.Run()
}

// renderConfig builds the YAML document for a.
func renderConfig(a initAnswers) ([]byte, error) {
	embedder := map[string]any{}
	switch a.Embedder {
	case "embedder.hash":
		embedder["dimensions"] = 1024
	case "embedder.openai":
		embedder["api_key"] = "${OPENAI_API_KEY}"
	case "embedder.ollama":
		embedder["base_url"] = "${OLLAMA_HOST:-http://localhost:11434}"
	default:
		return nil, fmt.Errorf("unknown embedder %q", a.Embedder)
	}
	if a.Model != "" && a.Embedder != "embedder.hash" {
		embedder["model"] = a.Model
	}

	gateway := map[string]any{"bind": a.Bind}
	if a.Auth {
		gateway["auth"] = map[string]any{"bearer_token": "${MNEMO_API_TOKEN}"}
	}

	doc := struct {
		Version string                    `yaml:"version"`
		Modules map[string]map[string]any `yaml:"modules"`
		Engine  map[string]any            `yaml:"engine"`
	}{
		Version: "1",
		Modules: map[string]map[string]any{
			a.Store:        {},
			a.Embedder:     embedder,
			"gateway.http": gateway,
		},
		Engine: map[string]any{
			"extract_facts": a.ExtractFacts,
			"recent_turns":  8,
			"assembler":     map[string]any{"budget": 4000},
		},
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return append([]byte("# Generated by mnemo init.\n"), out...), nil
}
