package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/mark3labs/api2mcp/internal/codegen"
	"github.com/mark3labs/api2mcp/internal/enhancer"
	"github.com/mark3labs/api2mcp/internal/miner"
	"github.com/mark3labs/api2mcp/internal/safety"
	genspec "github.com/mark3labs/api2mcp/internal/spec"
)

// GenerateConfig captures all inputs that influence the generate command
// after merging defaults, config file values, and CLI overrides.
type GenerateConfig struct {
	Input            string
	Out              string
	Name             string
	BlockDestructive bool
	MaxTools         int
	Allowlist        []string
	Denylist         []string
	ConfigPath       string
	DryRun           bool
	Force            bool
	Verbose          bool
}

var generateRunner = runGenerate

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate an MCP adapter server from an API spec",
		Long: "Generate an MCP adapter server from an OpenAPI/Swagger document or Postman collection. " +
			"Options can be provided via flags, config files, or defaults.",
		Example: strings.TrimSpace(`  api2mcp generate --input openapi.yaml --out ./out
  api2mcp generate --input http://host/openapi.json --out ./out --block-destructive
  api2mcp --config config.yaml generate --force --dry-run`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveGenerateConfig(cmd)
			if err != nil {
				return err
			}
			return generateRunner(cmd.Context(), cfg, enhancer.Noop{})
		},
	}

	flags := cmd.Flags()
	flags.String("input", "", "Path or URL to the API spec document")
	flags.String("out", "", "Output directory (derived from spec title when omitted)")
	flags.String("name", "", "Server name (defaults to a normalized form of the API title)")
	flags.Bool("block-destructive", false, "Drop all destructive tools from the catalog")
	flags.Int("max-tools", 0, "Max number of tools to generate (0 = no limit)")
	flags.StringSlice("allowlist", nil, "Only include tools with these names")
	flags.StringSlice("denylist", nil, "Exclude tools with these names")
	flags.Bool("dry-run", false, "Preview planned outputs without writing files")
	flags.Bool("force", false, "Overwrite existing output when set")

	return cmd
}

func resolveGenerateConfig(cmd *cobra.Command) (*GenerateConfig, error) {
	cfg := GenerateConfig{}

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	configPath = strings.TrimSpace(configPath)
	if configPath != "" {
		cfg.ConfigPath = configPath
		if err := applyGenerateConfigFromFile(&cfg, configPath); err != nil {
			return nil, err
		}
	}

	if err := applyGenerateFlagOverrides(cmd.Flags(), &cfg); err != nil {
		return nil, err
	}
	if verbose, err := cmd.Flags().GetBool("verbose"); err == nil && verbose {
		cfg.Verbose = true
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyGenerateFlagOverrides(flags *pflag.FlagSet, cfg *GenerateConfig) error {
	if flags.Changed("input") {
		value, err := flags.GetString("input")
		if err != nil {
			return err
		}
		cfg.Input = strings.TrimSpace(value)
	}
	if flags.Changed("out") {
		value, err := flags.GetString("out")
		if err != nil {
			return err
		}
		cfg.Out = strings.TrimSpace(value)
	}
	if flags.Changed("name") {
		value, err := flags.GetString("name")
		if err != nil {
			return err
		}
		cfg.Name = strings.TrimSpace(value)
	}
	if flags.Changed("block-destructive") {
		value, err := flags.GetBool("block-destructive")
		if err != nil {
			return err
		}
		cfg.BlockDestructive = value
	}
	if flags.Changed("max-tools") {
		value, err := flags.GetInt("max-tools")
		if err != nil {
			return err
		}
		cfg.MaxTools = value
	}
	if flags.Changed("allowlist") {
		value, err := flags.GetStringSlice("allowlist")
		if err != nil {
			return err
		}
		cfg.Allowlist = sanitizeNames(value)
	}
	if flags.Changed("denylist") {
		value, err := flags.GetStringSlice("denylist")
		if err != nil {
			return err
		}
		cfg.Denylist = sanitizeNames(value)
	}
	if flags.Changed("dry-run") {
		value, err := flags.GetBool("dry-run")
		if err != nil {
			return err
		}
		cfg.DryRun = value
	}
	if flags.Changed("force") {
		value, err := flags.GetBool("force")
		if err != nil {
			return err
		}
		cfg.Force = value
	}
	return nil
}

func (c *GenerateConfig) normalize() {
	c.Input = strings.TrimSpace(c.Input)
	c.Out = strings.TrimSpace(c.Out)
	c.Name = strings.TrimSpace(c.Name)
	c.Allowlist = sanitizeNames(c.Allowlist)
	c.Denylist = sanitizeNames(c.Denylist)
}

func (c *GenerateConfig) validate() error {
	if c.Input == "" {
		return newUsageError("generate: --input is required (set via flag or config file)")
	}
	if c.MaxTools < 0 {
		return newUsageError(fmt.Sprintf("generate: --max-tools must be >= 0, got %d", c.MaxTools))
	}
	return nil
}

func runGenerate(ctx context.Context, cfg *GenerateConfig, enh enhancer.Enhancer) error {
	logger := newLogger(cfg.Verbose)
	defer logger.Sync()

	apiSpec, err := loadSpec(ctx, cfg.Input)
	if err != nil {
		return err
	}
	logger.Info("spec normalized",
		zap.String("title", apiSpec.Title),
		zap.String("version", apiSpec.Version),
		zap.Int("endpoints", len(apiSpec.Endpoints)),
		zap.Int("tags", len(apiSpec.Tags)),
		zap.Int("auth_schemes", len(apiSpec.AuthSchemes)),
	)

	tools, report := miner.Mine(apiSpec)
	logger.Info("catalog mined", zap.Int("tools", len(tools)), zap.Int("skipped", report.SkippedCount()))
	for _, sk := range report.Skipped {
		logger.Warn("skipped endpoint",
			zap.String("method", sk.Method),
			zap.String("path", sk.Path),
			zap.String("reason", sk.Reason),
		)
	}

	tools, err = enhancer.Run(ctx, enh, apiSpec, tools)
	if err != nil {
		return err
	}

	policy := safety.Policy{
		BlockDestructive: cfg.BlockDestructive,
		MaxTools:         cfg.MaxTools,
		Allowlist:        cfg.Allowlist,
		Denylist:         cfg.Denylist,
	}
	filtered := safety.Apply(tools, policy)
	for _, name := range filtered.UnmatchedAllow {
		logger.Warn("allowlist entry matched no tool", zap.String("name", name))
	}
	logger.Info("policy applied", zap.Int("tools", len(filtered.Tools)))

	outDir := cfg.Out
	if outDir == "" {
		outDir = codegen.DeriveServerName(apiSpec.Title)
		if outDir == "" {
			outDir = "mcp-adapter"
		}
	}

	res, err := codegen.Generate(ctx, apiSpec, filtered.Tools, codegen.Options{
		OutDir:     outDir,
		ServerName: cfg.Name,
		Force:      cfg.Force,
		DryRun:     cfg.DryRun,
	})
	if err != nil {
		if errors.Is(err, codegen.ErrEmptyCatalog) {
			return newUsageError("generate: the policy filtered out every tool; nothing to generate")
		}
		var oe *codegen.OutputError
		if errors.As(err, &oe) {
			return newUsageError(fmt.Sprintf("output error for %s: %v\nHint: choose a different --out or use --force when appropriate.", oe.Path, oe.Err))
		}
		return err
	}

	if cfg.DryRun {
		printPlan(res.OutputDir, res.Planned)
		return nil
	}

	fmt.Fprintf(os.Stdout, "Generated %s (%d tools) in %s\n", res.ServerName, res.ToolCount, res.OutputDir)
	fmt.Fprintf(os.Stdout, "To run the server:\n  cd %s\n  pip install -r requirements.txt\n  cp .env.example .env  # fill in your API key\n  python server.py\n", res.OutputDir)
	return nil
}

func printPlan(outDir string, planned []codegen.PlannedFile) {
	fmt.Fprintf(os.Stdout, "Planned writes to %s (%d files):\n", outDir, len(planned))
	for _, p := range planned {
		fmt.Fprintf(os.Stdout, "- %s\n", p.RelPath)
	}
}

// loadSpec maps structured spec errors into friendly messages.
func loadSpec(ctx context.Context, input string) (*genspec.APISpec, error) {
	apiSpec, err := genspec.Load(ctx, input)
	if err != nil {
		var se *genspec.SpecError
		if errors.As(err, &se) {
			msg := fmt.Sprintf("spec: %s", se.Message)
			if se.Location != "" {
				msg = fmt.Sprintf("%s\nLocation: %s", msg, se.Location)
			}
			if se.JSONPointer != "" {
				msg = fmt.Sprintf("%s\nPointer: %s", msg, se.JSONPointer)
			}
			return nil, newUsageError(msg)
		}
		return nil, err
	}
	return apiSpec, nil
}

func sanitizeNames(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	result := make([]string, 0, len(names))
	for _, name := range names {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func applyGenerateConfigFromFile(cfg *GenerateConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return newUsageError(fmt.Sprintf("read config file %q: %v", path, err))
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return newUsageError(fmt.Sprintf("parse config file %q: %v", path, err))
	}

	for key, value := range raw {
		normalized := normalizeKey(key)
		switch normalized {
		case "input":
			str, err := valueAsString(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			cfg.Input = str
		case "out":
			str, err := valueAsString(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			cfg.Out = str
		case "name":
			str, err := valueAsString(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			cfg.Name = str
		case "blockdestructive":
			val, err := valueAsBool(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			cfg.BlockDestructive = val
		case "maxtools":
			val, err := valueAsInt(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			cfg.MaxTools = val
		case "allowlist":
			list, err := valueAsStringSlice(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			cfg.Allowlist = sanitizeNames(list)
		case "denylist":
			list, err := valueAsStringSlice(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			cfg.Denylist = sanitizeNames(list)
		case "dryrun":
			val, err := valueAsBool(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			cfg.DryRun = val
		case "force":
			val, err := valueAsBool(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			cfg.Force = val
		case "verbose":
			val, err := valueAsBool(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			cfg.Verbose = val
		default:
			return newUsageError(fmt.Sprintf("config file %q: unknown field %q", path, key))
		}
	}

	return nil
}

func normalizeKey(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	lowered = strings.ReplaceAll(lowered, "-", "")
	lowered = strings.ReplaceAll(lowered, "_", "")
	return lowered
}

func valueAsString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func valueAsStringSlice(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return nil, nil
		}
		return splitAndTrim(val), nil
	case []any:
		items := make([]string, 0, len(val))
		for idx, elem := range val {
			str, err := valueAsString(elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", idx, err)
			}
			if str != "" {
				items = append(items, str)
			}
		}
		return items, nil
	default:
		return nil, fmt.Errorf("expected string or list, got %T", v)
	}
}

func valueAsBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		trimmed := strings.ToLower(strings.TrimSpace(val))
		switch trimmed {
		case "true", "t", "1", "yes", "y":
			return true, nil
		case "false", "f", "0", "no", "n", "":
			return false, nil
		default:
			return false, fmt.Errorf("invalid boolean value %q", val)
		}
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
}

func valueAsInt(v any) (int, error) {
	switch val := v.(type) {
	case int:
		return val, nil
	case float64:
		return int(val), nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}
