package enhancer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark3labs/api2mcp/internal/miner"
	"github.com/mark3labs/api2mcp/internal/spec"
)

func sampleTools() []miner.ToolDefinition {
	ep := &spec.Endpoint{Method: spec.GET, Path: "/pets"}
	return []miner.ToolDefinition{
		{
			Name:        "get_pets",
			Description: "GET /pets",
			Safety:      miner.SafetyRead,
			Params: []miner.ToolParam{
				{Name: "limit", WireName: "limit", JSONType: "integer", Location: spec.InQuery},
			},
			Endpoint: ep,
		},
	}
}

type enhanceFunc func(ctx context.Context, s *spec.APISpec, tools []miner.ToolDefinition) ([]miner.ToolDefinition, error)

func (f enhanceFunc) Enhance(ctx context.Context, s *spec.APISpec, tools []miner.ToolDefinition) ([]miner.ToolDefinition, error) {
	return f(ctx, s, tools)
}

func TestRun_NilEnhancerPassesThrough(t *testing.T) {
	t.Parallel()
	in := sampleTools()
	out, err := Run(context.Background(), nil, &spec.APISpec{}, in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestRun_Noop(t *testing.T) {
	t.Parallel()
	in := sampleTools()
	out, err := Run(context.Background(), Noop{}, &spec.APISpec{}, in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestRun_AllowsRenamesAndRewrites(t *testing.T) {
	t.Parallel()
	e := enhanceFunc(func(_ context.Context, _ *spec.APISpec, tools []miner.ToolDefinition) ([]miner.ToolDefinition, error) {
		out := make([]miner.ToolDefinition, len(tools))
		copy(out, tools)
		out[0].Name = "list_pets"
		out[0].Description = "List every pet in the store"
		return out, nil
	})
	out, err := Run(context.Background(), e, &spec.APISpec{}, sampleTools())
	require.NoError(t, err)
	assert.Equal(t, "list_pets", out[0].Name)
}

func TestRun_RejectsCardinalityChange(t *testing.T) {
	t.Parallel()
	e := enhanceFunc(func(_ context.Context, _ *spec.APISpec, tools []miner.ToolDefinition) ([]miner.ToolDefinition, error) {
		return append(tools, tools[0]), nil
	})
	_, err := Run(context.Background(), e, &spec.APISpec{}, sampleTools())
	assert.ErrorIs(t, err, ErrContractViolation)
}

func TestRun_RejectsSafetyChange(t *testing.T) {
	t.Parallel()
	e := enhanceFunc(func(_ context.Context, _ *spec.APISpec, tools []miner.ToolDefinition) ([]miner.ToolDefinition, error) {
		out := make([]miner.ToolDefinition, len(tools))
		copy(out, tools)
		out[0].Safety = miner.SafetyWrite
		return out, nil
	})
	_, err := Run(context.Background(), e, &spec.APISpec{}, sampleTools())
	assert.ErrorIs(t, err, ErrContractViolation)
}

func TestRun_RejectsParamShapeChange(t *testing.T) {
	t.Parallel()
	e := enhanceFunc(func(_ context.Context, _ *spec.APISpec, tools []miner.ToolDefinition) ([]miner.ToolDefinition, error) {
		out := make([]miner.ToolDefinition, len(tools))
		copy(out, tools)
		out[0].Params = []miner.ToolParam{
			{Name: "limit", WireName: "limit", JSONType: "string", Location: spec.InQuery},
		}
		return out, nil
	})
	_, err := Run(context.Background(), e, &spec.APISpec{}, sampleTools())
	assert.ErrorIs(t, err, ErrContractViolation)
}

func TestRun_RejectsEndpointSwap(t *testing.T) {
	t.Parallel()
	e := enhanceFunc(func(_ context.Context, _ *spec.APISpec, tools []miner.ToolDefinition) ([]miner.ToolDefinition, error) {
		out := make([]miner.ToolDefinition, len(tools))
		copy(out, tools)
		out[0].Endpoint = &spec.Endpoint{Method: spec.DELETE, Path: "/pets"}
		return out, nil
	})
	_, err := Run(context.Background(), e, &spec.APISpec{}, sampleTools())
	assert.ErrorIs(t, err, ErrContractViolation)
}

func TestRun_WrapsEnhancerError(t *testing.T) {
	t.Parallel()
	boom := errors.New("backend unavailable")
	e := enhanceFunc(func(_ context.Context, _ *spec.APISpec, _ []miner.ToolDefinition) ([]miner.ToolDefinition, error) {
		return nil, boom
	})
	_, err := Run(context.Background(), e, &spec.APISpec{}, sampleTools())
	assert.ErrorIs(t, err, boom)
}
