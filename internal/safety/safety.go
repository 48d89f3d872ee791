// Package safety filters a mined tool catalog against a policy. Apply is a
// pure function: the input slice is never mutated and survivors keep their
// relative order.
package safety

import (
	"strings"

	"github.com/mark3labs/api2mcp/internal/miner"
)

// Policy is the complete filtering configuration.
type Policy struct {
	// BlockDestructive drops every destructive tool.
	BlockDestructive bool
	// MaxTools truncates the surviving catalog; 0 means unlimited.
	MaxTools int
	// Allowlist keeps only the named tools when non-empty. Entries that match
	// nothing are inert, not errors.
	Allowlist []string
	// Denylist drops the named tools. Evaluated after the allowlist, so a
	// name present in both is dropped.
	Denylist []string
}

// Default returns the policy used by the inspection surface: everything
// passes.
func Default() Policy { return Policy{} }

// Result carries the filtered catalog and the non-fatal conditions the caller
// should surface.
type Result struct {
	Tools []miner.ToolDefinition
	// UnmatchedAllow lists allowlist entries that matched no tool.
	UnmatchedAllow []string
}

// Apply evaluates the policy steps in their contract order: destructive
// block, allowlist, denylist, truncation. Each step sees the previous step's
// output.
func Apply(tools []miner.ToolDefinition, policy Policy) Result {
	out := make([]miner.ToolDefinition, 0, len(tools))
	out = append(out, tools...)

	if policy.BlockDestructive {
		kept := out[:0]
		for _, t := range out {
			if t.Safety != miner.SafetyDestructive {
				kept = append(kept, t)
			}
		}
		out = kept
	}

	var unmatched []string
	if len(policy.Allowlist) > 0 {
		allow := nameSet(policy.Allowlist)
		kept := out[:0]
		matched := make(map[string]struct{}, len(allow))
		for _, t := range out {
			key := strings.ToLower(t.Name)
			if _, ok := allow[key]; ok {
				kept = append(kept, t)
				matched[key] = struct{}{}
			}
		}
		out = kept
		for _, name := range policy.Allowlist {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if _, ok := matched[strings.ToLower(name)]; !ok {
				unmatched = append(unmatched, name)
			}
		}
	}

	if len(policy.Denylist) > 0 {
		deny := nameSet(policy.Denylist)
		kept := out[:0]
		for _, t := range out {
			if _, ok := deny[strings.ToLower(t.Name)]; !ok {
				kept = append(kept, t)
			}
		}
		out = kept
	}

	if policy.MaxTools > 0 && len(out) > policy.MaxTools {
		out = out[:policy.MaxTools]
	}

	return Result{Tools: out, UnmatchedAllow: unmatched}
}

func nameSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}
