// Package enhancer defines the optional catalog-rewriting step between
// mining and policy filtering. The pipeline is parametrized over the
// Enhancer interface; Noop is the default and any implementation must be
// substitutable without changing other stages' behavior.
package enhancer

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/api2mcp/internal/miner"
	"github.com/mark3labs/api2mcp/internal/spec"
)

// ErrContractViolation reports an enhancer returning a catalog whose
// cardinality or parameter shape differs from its input.
var ErrContractViolation = errors.New("enhancer contract violation")

// Enhancer may rewrite tool names and descriptions. It must return a catalog
// of identical cardinality and identical parameter shape; anything else is a
// contract failure the caller rejects.
type Enhancer interface {
	Enhance(ctx context.Context, s *spec.APISpec, tools []miner.ToolDefinition) ([]miner.ToolDefinition, error)
}

// Noop returns the catalog unchanged.
type Noop struct{}

func (Noop) Enhance(_ context.Context, _ *spec.APISpec, tools []miner.ToolDefinition) ([]miner.ToolDefinition, error) {
	return tools, nil
}

// Run invokes the enhancer and validates its output against the input
// catalog before handing it downstream.
func Run(ctx context.Context, e Enhancer, s *spec.APISpec, tools []miner.ToolDefinition) ([]miner.ToolDefinition, error) {
	if e == nil {
		return tools, nil
	}
	out, err := e.Enhance(ctx, s, tools)
	if err != nil {
		return nil, fmt.Errorf("enhance catalog: %w", err)
	}
	if err := ValidateContract(tools, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateContract checks that enhanced preserves in's cardinality and
// per-tool parameter shapes. Only Name and Description may differ.
func ValidateContract(in, enhanced []miner.ToolDefinition) error {
	if len(enhanced) != len(in) {
		return fmt.Errorf("%w: catalog cardinality changed from %d to %d", ErrContractViolation, len(in), len(enhanced))
	}
	for i := range in {
		a, b := in[i], enhanced[i]
		if b.Safety != a.Safety {
			return fmt.Errorf("%w: tool %q safety changed from %s to %s", ErrContractViolation, a.Name, a.Safety, b.Safety)
		}
		if len(b.Params) != len(a.Params) {
			return fmt.Errorf("%w: tool %q parameter count changed from %d to %d", ErrContractViolation, a.Name, len(a.Params), len(b.Params))
		}
		for j := range a.Params {
			if a.Params[j] != b.Params[j] {
				return fmt.Errorf("%w: tool %q parameter %q shape changed", ErrContractViolation, a.Name, a.Params[j].Name)
			}
		}
		if b.Endpoint != a.Endpoint {
			return fmt.Errorf("%w: tool %q endpoint reference changed", ErrContractViolation, a.Name)
		}
	}
	return nil
}
