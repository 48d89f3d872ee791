// Package codegen renders the runnable adapter for a filtered tool catalog:
// a Python MCP server exposing one callable per tool, a dependency manifest,
// and an environment-variable template. Rendering is pure: identical inputs
// produce byte-identical output.
package codegen

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mark3labs/api2mcp/internal/miner"
	"github.com/mark3labs/api2mcp/internal/spec"
)

// ErrEmptyCatalog is returned when there is nothing meaningful to generate.
var ErrEmptyCatalog = errors.New("codegen: empty tool catalog")

// OutputError reports an I/O failure writing generated artifacts.
type OutputError struct {
	Path string
	Err  error
}

func (e *OutputError) Error() string { return fmt.Sprintf("codegen: write %s: %v", e.Path, e.Err) }
func (e *OutputError) Unwrap() error { return e.Err }

// Options controls how the adapter is rendered.
type Options struct {
	OutDir     string // required; target directory to write the project
	ServerName string // defaults to a normalized form of the spec title
	Force      bool   // overwrite existing non-empty output directory
	DryRun     bool   // plan without writing
}

// PlannedFile describes a file the generator intends to write.
type PlannedFile struct {
	RelPath string
	Size    int
}

// Result returns the resolved server name and the planned files.
type Result struct {
	ServerName string
	ToolCount  int
	OutputDir  string
	Planned    []PlannedFile
}

// Generate renders the adapter project for (spec, tools) into opts.OutDir.
func Generate(ctx context.Context, s *spec.APISpec, tools []miner.ToolDefinition, opts Options) (*Result, error) {
	_ = ctx
	if s == nil {
		return nil, errors.New("codegen: nil APISpec")
	}
	if len(tools) == 0 {
		return nil, ErrEmptyCatalog
	}
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, errors.New("codegen: OutDir is required")
	}

	serverName := sanitizeServerName(opts.ServerName)
	if serverName == "" {
		serverName = DeriveServerName(s.Title)
		if serverName == "" {
			serverName = "mcp-adapter"
		}
	}

	files := map[string][]byte{
		"server.py":        []byte(renderServerPy(s, tools, serverName)),
		"requirements.txt": []byte(renderRequirements()),
		".env.example":     []byte(renderEnvExample(s, serverName)),
		"README.md":        []byte(renderReadme(s, tools, serverName)),
	}

	rels := make([]string, 0, len(files))
	for p := range files {
		rels = append(rels, p)
	}
	sort.Strings(rels)

	planned := make([]PlannedFile, 0, len(rels))
	for _, rel := range rels {
		planned = append(planned, PlannedFile{RelPath: rel, Size: len(files[rel])})
	}

	abs := opts.OutDir
	if ap, err := filepath.Abs(opts.OutDir); err == nil {
		abs = ap
	}

	if opts.DryRun {
		if err := validateOutputDirectory(abs, opts.Force); err != nil {
			return nil, err
		}
	} else {
		if err := writeFiles(abs, files, opts.Force); err != nil {
			return nil, err
		}
	}

	return &Result{
		ServerName: serverName,
		ToolCount:  len(tools),
		OutputDir:  abs,
		Planned:    planned,
	}, nil
}

func sanitizeServerName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = strings.ReplaceAll(name, " ", "-")
	name = strings.ReplaceAll(name, "/", "-")
	name = strings.ToLower(name)
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-")
}

// DeriveServerName turns an API title into a kebab-case server name.
func DeriveServerName(title string) string {
	t := strings.TrimSpace(title)
	if t == "" {
		return ""
	}
	t = strings.ToLower(t)
	repl := strings.NewReplacer("/", " ", "_", " ", ".", " ", ",", " ", ":", " ")
	t = repl.Replace(t)
	parts := strings.Fields(t)
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "-")
}

// envPrefix builds the {SERVER_NAME}_BASE_URL style prefix from the API
// title, falling back to the server name.
func envPrefix(s *spec.APISpec, serverName string) string {
	src := strings.TrimSpace(s.Title)
	if src == "" {
		src = serverName
	}
	src = strings.ToUpper(src)
	var b strings.Builder
	lastUnderscore := true
	for _, r := range src {
		switch {
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

func writeFiles(absDir string, files map[string][]byte, force bool) error {
	if err := validateOutputDirectory(absDir, force); err != nil {
		return err
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return &OutputError{Path: absDir, Err: err}
	}
	for rel, content := range files {
		if err := writeFileAtomic(absDir, rel, content); err != nil {
			return &OutputError{Path: filepath.Join(absDir, rel), Err: err}
		}
	}
	return nil
}

func validateOutputDirectory(absPath string, force bool) error {
	stat, err := os.Stat(absPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return &OutputError{Path: absPath, Err: err}
	}
	if !stat.IsDir() {
		return &OutputError{Path: absPath, Err: errors.New("not a directory")}
	}
	if force {
		return nil
	}
	entries, err := os.ReadDir(absPath)
	if err != nil {
		return &OutputError{Path: absPath, Err: err}
	}
	if len(entries) > 0 {
		return &OutputError{Path: absPath, Err: errors.New("directory is not empty (use --force to overwrite)")}
	}
	return nil
}

// writeFileAtomic writes via temp file + rename so a crash never leaves a
// half-written artifact in place.
func writeFileAtomic(baseDir, rel string, content []byte) error {
	full := filepath.Join(baseDir, rel)
	tmp, err := os.CreateTemp(baseDir, ".tmp-codegen-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, full); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
