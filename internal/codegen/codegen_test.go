package codegen

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark3labs/api2mcp/internal/miner"
	"github.com/mark3labs/api2mcp/internal/spec"
)

func mathSpec() *spec.APISpec {
	return &spec.APISpec{
		Title:   "Basic Math API",
		Version: "1.0.0",
		BaseURL: "http://localhost:8000",
		Endpoints: []spec.Endpoint{
			{Method: spec.POST, Path: "/add", OperationID: "add_numbers", Summary: "Add two numbers",
				RequestBody: &spec.BodySchema{Fields: []spec.BodyField{
					{Name: "a", JSONType: "number", Required: true},
					{Name: "b", JSONType: "number", Required: true},
				}}},
			{Method: spec.GET, Path: "/health", OperationID: "health_check", Summary: "Health check"},
		},
	}
}

func mineMath(t *testing.T) (*spec.APISpec, []miner.ToolDefinition) {
	t.Helper()
	s := mathSpec()
	tools, report := miner.Mine(s)
	require.Zero(t, report.SkippedCount())
	return s, tools
}

func TestGenerate_WritesProject(t *testing.T) {
	t.Parallel()
	s, tools := mineMath(t)
	dir := t.TempDir()

	res, err := Generate(context.Background(), s, tools, Options{OutDir: dir})
	require.NoError(t, err)
	assert.Equal(t, "basic-math-api", res.ServerName)
	assert.Equal(t, 2, res.ToolCount)

	for _, name := range []string{"server.py", "requirements.txt", ".env.example", "README.md"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	require.Len(t, res.Planned, 4)
	assert.Equal(t, ".env.example", res.Planned[0].RelPath)
	assert.Equal(t, "server.py", res.Planned[3].RelPath)
}

func TestGenerate_ServerPyContents(t *testing.T) {
	t.Parallel()
	s, tools := mineMath(t)
	dir := t.TempDir()

	_, err := Generate(context.Background(), s, tools, Options{OutDir: dir})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "server.py"))
	require.NoError(t, err)
	py := string(data)

	assert.Contains(t, py, `BASE_URL = os.getenv("BASIC_MATH_API_BASE_URL", 'http://localhost:8000')`)
	assert.Contains(t, py, `API_KEY = os.getenv("BASIC_MATH_API_API_KEY", "")`)
	assert.Contains(t, py, "async def add_numbers(a: float, b: float) -> str:")
	assert.Contains(t, py, "body['a'] = a")
	assert.Contains(t, py, "async def health_check() -> str:")
	assert.Contains(t, py, "server = MCPServer('basic-math-api')")
	assert.Contains(t, py, "server.collect(add_numbers, health_check)")
	assert.Contains(t, py, "[WRITES DATA]")
}

func TestGenerate_PathQueryHeaderPlacement(t *testing.T) {
	t.Parallel()
	s := &spec.APISpec{
		Title:   "Pet Store",
		BaseURL: "https://pets.example.com",
		Endpoints: []spec.Endpoint{
			{Method: spec.GET, Path: "/pets/{petId}", OperationID: "get_pet",
				Parameters: []spec.Param{
					{Name: "petId", Location: spec.InPath, JSONType: "integer", Required: true},
					{Name: "verbose", Location: spec.InQuery, JSONType: "boolean"},
					{Name: "X-Trace-Id", Location: spec.InHeader, JSONType: "string"},
				}},
		},
	}
	tools, _ := miner.Mine(s)
	dir := t.TempDir()
	_, err := Generate(context.Background(), s, tools, Options{OutDir: dir})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "server.py"))
	require.NoError(t, err)
	py := string(data)

	// Path token rewritten to the sanitized argument name.
	assert.Contains(t, py, "path = f'/pets/{petid}'")
	assert.Contains(t, py, "if verbose is not None:\n        params['verbose'] = verbose")
	assert.Contains(t, py, "headers['X-Trace-Id'] = x_trace_id")
	assert.Contains(t, py, "params=params")
	assert.Contains(t, py, "headers=headers")
	assert.NotContains(t, py, "body=body")
}

func TestGenerate_Deterministic(t *testing.T) {
	t.Parallel()
	s, tools := mineMath(t)

	read := func(dir string) map[string]string {
		out := map[string]string{}
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		for _, e := range entries {
			data, err := os.ReadFile(filepath.Join(dir, e.Name()))
			require.NoError(t, err)
			out[e.Name()] = string(data)
		}
		return out
	}

	dirA, dirB := t.TempDir(), t.TempDir()
	_, err := Generate(context.Background(), s, tools, Options{OutDir: dirA})
	require.NoError(t, err)
	_, err = Generate(context.Background(), s, tools, Options{OutDir: dirB})
	require.NoError(t, err)

	assert.Equal(t, read(dirA), read(dirB))
}

func TestGenerate_EmptyCatalog(t *testing.T) {
	t.Parallel()
	s, _ := mineMath(t)
	_, err := Generate(context.Background(), s, nil, Options{OutDir: t.TempDir()})
	assert.ErrorIs(t, err, ErrEmptyCatalog)
}

func TestGenerate_DryRunWritesNothing(t *testing.T) {
	t.Parallel()
	s, tools := mineMath(t)
	dir := filepath.Join(t.TempDir(), "out")

	res, err := Generate(context.Background(), s, tools, Options{OutDir: dir, DryRun: true})
	require.NoError(t, err)
	require.Len(t, res.Planned, 4)
	for _, pf := range res.Planned {
		assert.Greater(t, pf.Size, 0, pf.RelPath)
	}

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("dry run created output directory")
	}
}

func TestGenerate_RefusesNonEmptyDirWithoutForce(t *testing.T) {
	t.Parallel()
	s, tools := mineMath(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.txt"), []byte("x"), 0o644))

	_, err := Generate(context.Background(), s, tools, Options{OutDir: dir})
	var oe *OutputError
	require.ErrorAs(t, err, &oe)
	assert.Contains(t, oe.Error(), "not empty")

	_, err = Generate(context.Background(), s, tools, Options{OutDir: dir, Force: true})
	require.NoError(t, err)
}

func TestGenerate_EnvExample(t *testing.T) {
	t.Parallel()
	s, tools := mineMath(t)
	s.AuthSchemes = []spec.AuthScheme{{Name: "apiKeyAuth", Kind: spec.AuthAPIKey, ParamName: "X-API-Key", In: "header"}}
	dir := t.TempDir()
	_, err := Generate(context.Background(), s, tools, Options{OutDir: dir})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, ".env.example"))
	require.NoError(t, err)
	env := string(data)
	assert.Contains(t, env, "BASIC_MATH_API_BASE_URL=http://localhost:8000")
	assert.Contains(t, env, "BASIC_MATH_API_API_KEY=")
	assert.Contains(t, env, `auth scheme "apiKeyAuth": apiKey`)
}

func TestGenerate_Readme(t *testing.T) {
	t.Parallel()
	s, tools := mineMath(t)
	dir := t.TempDir()
	_, err := Generate(context.Background(), s, tools, Options{OutDir: dir})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "README.md"))
	require.NoError(t, err)
	md := string(data)
	assert.True(t, strings.HasPrefix(md, "# basic-math-api\n"))
	assert.Contains(t, md, "| add_numbers | write |")
	assert.Contains(t, md, "| health_check | read |")
	assert.Contains(t, md, "pip install -r requirements.txt")
}

func TestGenerate_ServerNameOverride(t *testing.T) {
	t.Parallel()
	s, tools := mineMath(t)
	res, err := Generate(context.Background(), s, tools, Options{OutDir: t.TempDir(), ServerName: "My Custom Server!"})
	require.NoError(t, err)
	assert.Equal(t, "my-custom-server", res.ServerName)
}

func TestDeriveServerName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "basic-math-api", DeriveServerName("Basic Math API"))
	assert.Equal(t, "orders-v2", DeriveServerName("  Orders/v2  "))
	assert.Equal(t, "", DeriveServerName("   "))
}

func TestEnvPrefix(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "BASIC_MATH_API", envPrefix(&spec.APISpec{Title: "Basic Math API"}, "fallback"))
	assert.Equal(t, "MY_SERVER", envPrefix(&spec.APISpec{}, "my-server"))
}
