package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark3labs/api2mcp/internal/miner"
)

func catalog() []miner.ToolDefinition {
	return []miner.ToolDefinition{
		{Name: "add_numbers", Safety: miner.SafetyWrite},
		{Name: "subtract_numbers", Safety: miner.SafetyWrite},
		{Name: "multiply_numbers", Safety: miner.SafetyWrite},
		{Name: "divide_numbers", Safety: miner.SafetyWrite},
		{Name: "health_check", Safety: miner.SafetyRead},
		{Name: "purge_all", Safety: miner.SafetyDestructive},
	}
}

func names(tools []miner.ToolDefinition) []string {
	out := make([]string, 0, len(tools))
	for _, t := range tools {
		out = append(out, t.Name)
	}
	return out
}

func TestApply_DefaultPassesEverything(t *testing.T) {
	t.Parallel()
	res := Apply(catalog(), Default())
	assert.Equal(t, names(catalog()), names(res.Tools))
	assert.Empty(t, res.UnmatchedAllow)
}

func TestApply_BlockDestructive(t *testing.T) {
	t.Parallel()
	res := Apply(catalog(), Policy{BlockDestructive: true})
	assert.NotContains(t, names(res.Tools), "purge_all")
	assert.Len(t, res.Tools, 5)
}

func TestApply_Allowlist(t *testing.T) {
	t.Parallel()
	res := Apply(catalog(), Policy{Allowlist: []string{"Health_Check", "add_numbers"}})
	assert.Equal(t, []string{"add_numbers", "health_check"}, names(res.Tools))
	assert.Empty(t, res.UnmatchedAllow)
}

func TestApply_AllowlistUnmatchedIsInert(t *testing.T) {
	t.Parallel()
	res := Apply(catalog(), Policy{Allowlist: []string{"add_numbers", "no_such_tool"}})
	assert.Equal(t, []string{"add_numbers"}, names(res.Tools))
	assert.Equal(t, []string{"no_such_tool"}, res.UnmatchedAllow)
}

func TestApply_DenylistWinsOverAllowlist(t *testing.T) {
	t.Parallel()
	res := Apply(catalog(), Policy{
		Allowlist: []string{"add_numbers", "health_check"},
		Denylist:  []string{"add_numbers"},
	})
	assert.Equal(t, []string{"health_check"}, names(res.Tools))
}

func TestApply_TruncationKeepsFirstN(t *testing.T) {
	t.Parallel()
	res := Apply(catalog(), Policy{MaxTools: 2})
	assert.Equal(t, []string{"add_numbers", "subtract_numbers"}, names(res.Tools))
}

func TestApply_TruncationAfterFiltering(t *testing.T) {
	t.Parallel()
	res := Apply(catalog(), Policy{
		Denylist: []string{"add_numbers"},
		MaxTools: 2,
	})
	// Truncation sees the denylist's output, so the survivors shift up.
	assert.Equal(t, []string{"subtract_numbers", "multiply_numbers"}, names(res.Tools))
}

func TestApply_StepOrderContract(t *testing.T) {
	t.Parallel()
	res := Apply(catalog(), Policy{
		BlockDestructive: true,
		Allowlist:        []string{"purge_all", "divide_numbers", "health_check"},
		Denylist:         []string{"divide_numbers"},
		MaxTools:         5,
	})
	// purge_all is gone before the allowlist runs, so its allow entry is
	// unmatched; the denylist then removes divide_numbers.
	assert.Equal(t, []string{"health_check"}, names(res.Tools))
	assert.Equal(t, []string{"purge_all"}, res.UnmatchedAllow)
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	t.Parallel()
	in := catalog()
	want := names(in)
	Apply(in, Policy{BlockDestructive: true, Denylist: []string{"add_numbers"}, MaxTools: 1})
	require.Equal(t, want, names(in))
}

func TestApply_MaxToolsZeroMeansUnlimited(t *testing.T) {
	t.Parallel()
	res := Apply(catalog(), Policy{MaxTools: 0})
	assert.Len(t, res.Tools, len(catalog()))
}
