package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mark3labs/api2mcp/internal/miner"
	"github.com/mark3labs/api2mcp/internal/safety"
)

// InspectConfig captures the inputs of the inspect command.
type InspectConfig struct {
	Input string
	JSON  bool
}

var inspectRunner = runInspect

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the tool catalog a spec would compile to, without generating code",
		Example: strings.TrimSpace(`  api2mcp inspect --input openapi.yaml
  api2mcp inspect --input http://host/openapi.json --json`),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := cmd.Flags().GetString("input")
			if err != nil {
				return err
			}
			input = strings.TrimSpace(input)
			if input == "" {
				return newUsageError("inspect: --input is required")
			}
			jsonOut, err := cmd.Flags().GetBool("json")
			if err != nil {
				return err
			}
			return inspectRunner(cmd.Context(), &InspectConfig{Input: input, JSON: jsonOut})
		},
	}

	flags := cmd.Flags()
	flags.String("input", "", "Path or URL to the API spec document")
	flags.Bool("json", false, "Output as JSON instead of human-readable text")

	return cmd
}

// inspectReport is the JSON shape of the dry-run/audit view.
type inspectReport struct {
	API   inspectAPI    `json:"api"`
	Tools []inspectTool `json:"tools"`
}

type inspectAPI struct {
	Title     string   `json:"title"`
	Version   string   `json:"version"`
	BaseURL   string   `json:"base_url"`
	Endpoints int      `json:"endpoints"`
	Tags      []string `json:"tags"`
	Skipped   int      `json:"skipped_endpoints"`
}

type inspectTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Safety      string         `json:"safety"`
	Params      []inspectParam `json:"params"`
}

type inspectParam struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

func runInspect(ctx context.Context, cfg *InspectConfig) error {
	apiSpec, err := loadSpec(ctx, cfg.Input)
	if err != nil {
		return err
	}

	tools, report := miner.Mine(apiSpec)
	filtered := safety.Apply(tools, safety.Default())

	if cfg.JSON {
		out := inspectReport{
			API: inspectAPI{
				Title:     apiSpec.Title,
				Version:   apiSpec.Version,
				BaseURL:   apiSpec.BaseURL,
				Endpoints: len(apiSpec.Endpoints),
				Tags:      apiSpec.Tags,
				Skipped:   report.SkippedCount(),
			},
			Tools: make([]inspectTool, 0, len(filtered.Tools)),
		}
		for _, t := range filtered.Tools {
			it := inspectTool{
				Name:        t.Name,
				Description: t.Description,
				Safety:      string(t.Safety),
				Params:      make([]inspectParam, 0, len(t.Params)),
			}
			for _, p := range t.Params {
				it.Params = append(it.Params, inspectParam{Name: p.Name, Type: p.JSONType, Required: p.Required})
			}
			out.Tools = append(out.Tools, it)
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(data))
		return nil
	}

	fmt.Fprintf(os.Stdout, "API: %s v%s\n", apiSpec.Title, apiSpec.Version)
	fmt.Fprintf(os.Stdout, "Base URL: %s\n", apiSpec.BaseURL)
	fmt.Fprintf(os.Stdout, "Endpoints: %d\n", len(apiSpec.Endpoints))
	fmt.Fprintf(os.Stdout, "Tags: %s\n", orNone(strings.Join(apiSpec.Tags, ", ")))
	names := make([]string, 0, len(apiSpec.AuthSchemes))
	for _, a := range apiSpec.AuthSchemes {
		names = append(names, a.Name)
	}
	fmt.Fprintf(os.Stdout, "Auth: %s\n", orNone(strings.Join(names, ", ")))
	if report.SkippedCount() > 0 {
		fmt.Fprintf(os.Stdout, "Skipped endpoints: %d\n", report.SkippedCount())
	}
	fmt.Fprintf(os.Stdout, "\nTools (%d):\n", len(filtered.Tools))
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 72))
	for _, t := range filtered.Tools {
		params := make([]string, 0, len(t.Params))
		for _, p := range t.Params {
			mark := "?"
			if p.Required {
				mark = "*"
			}
			params = append(params, fmt.Sprintf("%s: %s%s", p.Name, p.JSONType, mark))
		}
		fmt.Fprintf(os.Stdout, "  [%s] %s(%s)\n", t.Safety, t.Name, strings.Join(params, ", "))
		fmt.Fprintf(os.Stdout, "      %s\n", t.Description)
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
