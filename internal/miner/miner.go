// Package miner derives the callable tool catalog from a normalized APISpec.
// Mining is a pure function of the spec: the same input always yields the
// same names, ordering, and safety classifications.
package miner

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mark3labs/api2mcp/internal/spec"
)

// SafetyLevel tags an operation's side-effect risk.
type SafetyLevel string

const (
	SafetyRead        SafetyLevel = "read"
	SafetyWrite       SafetyLevel = "write"
	SafetyDestructive SafetyLevel = "destructive"
)

// Markers appended to tool descriptions so consumers can surface risk
// without re-deriving it.
const (
	WriteMarker       = "[WRITES DATA]"
	DestructiveMarker = "[DESTRUCTIVE — may permanently delete data]"
)

// ToolParam is one flattened argument of a tool. Name is a normalized
// identifier unique within the tool; WireName keeps the original parameter
// name used on the wire.
type ToolParam struct {
	Name     string
	WireName string
	JSONType string
	Required bool
	Location spec.ParamLocation
}

// ToolDefinition is one safety-classified callable surfaced to the adapter's
// consumers. Endpoint is a non-owning back-reference into the APISpec used at
// generation time to build the HTTP call.
type ToolDefinition struct {
	Name        string
	Description string
	Safety      SafetyLevel
	Params      []ToolParam
	Endpoint    *spec.Endpoint
}

// SkippedEndpoint records a per-endpoint, non-fatal mining failure.
type SkippedEndpoint struct {
	Method string
	Path   string
	Reason string
}

// Report accumulates the non-fatal conditions of one mining run.
type Report struct {
	Skipped []SkippedEndpoint
}

func (r Report) SkippedCount() int { return len(r.Skipped) }

var minableMethods = map[spec.HttpMethod]struct{}{
	spec.GET: {}, spec.POST: {}, spec.PUT: {}, spec.PATCH: {},
	spec.DELETE: {}, spec.HEAD: {}, spec.OPTIONS: {},
}

// Mine builds the ordered tool catalog for an APISpec. Endpoints with
// unparseable methods or empty paths are skipped and reported, never fatal.
func Mine(s *spec.APISpec) ([]ToolDefinition, Report) {
	var report Report
	tools := make([]ToolDefinition, 0, len(s.Endpoints))
	taken := make(map[string]struct{}, len(s.Endpoints))

	for i := range s.Endpoints {
		ep := &s.Endpoints[i]
		if _, ok := minableMethods[ep.Method]; !ok {
			report.Skipped = append(report.Skipped, SkippedEndpoint{
				Method: string(ep.Method), Path: ep.Path, Reason: "unsupported method",
			})
			continue
		}
		if strings.TrimSpace(ep.Path) == "" {
			report.Skipped = append(report.Skipped, SkippedEndpoint{
				Method: string(ep.Method), Path: ep.Path, Reason: "empty path",
			})
			continue
		}

		safety := classify(ep)
		tools = append(tools, ToolDefinition{
			Name:        uniqueName(ep, taken),
			Description: describe(ep, safety),
			Safety:      safety,
			Params:      flattenParams(ep),
			Endpoint:    ep,
		})
	}
	return tools, report
}

// uniqueName picks the tool name and enforces case-insensitive catalog
// uniqueness: synthesized names first try a parent-segment qualifier, then a
// numeric suffix in first-seen order.
func uniqueName(ep *spec.Endpoint, taken map[string]struct{}) string {
	base := normalizeIdent(ep.OperationID)
	synthesized := base == ""
	if synthesized {
		base = synthesizeName(ep)
	}

	name := base
	if _, clash := taken[strings.ToLower(name)]; clash && synthesized {
		if qualified := synthesizeQualifiedName(ep); qualified != "" {
			name = qualified
		}
	}
	for n := 2; ; n++ {
		if _, clash := taken[strings.ToLower(name)]; !clash {
			break
		}
		name = fmt.Sprintf("%s_%d", base, n)
	}
	taken[strings.ToLower(name)] = struct{}{}
	return name
}

// synthesizeName builds "verb_segment" from the method and the last
// non-parameter path segment.
func synthesizeName(ep *spec.Endpoint) string {
	segs := staticSegments(ep.Path)
	if len(segs) == 0 {
		return strings.ToLower(string(ep.Method)) + "_root"
	}
	return strings.ToLower(string(ep.Method)) + "_" + normalizeIdent(segs[len(segs)-1])
}

// synthesizeQualifiedName adds the parent segment when the short form clashes,
// e.g. get_pets_tags instead of a second get_tags.
func synthesizeQualifiedName(ep *spec.Endpoint) string {
	segs := staticSegments(ep.Path)
	if len(segs) < 2 {
		return ""
	}
	return strings.ToLower(string(ep.Method)) + "_" +
		normalizeIdent(segs[len(segs)-2]) + "_" + normalizeIdent(segs[len(segs)-1])
}

func staticSegments(path string) []string {
	var out []string
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg == "" || strings.HasPrefix(seg, "{") {
			continue
		}
		out = append(out, seg)
	}
	return out
}

var identJunkRe = regexp.MustCompile(`[^a-z0-9]+`)

// normalizeIdent flattens an arbitrary token into a lowercase snake
// identifier. Returns "" when nothing survives.
func normalizeIdent(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = identJunkRe.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return ""
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "op_" + s
	}
	return s
}

var destructiveVerbRe = regexp.MustCompile(`\b(delete|remove|purge|destroy|drop|wipe|erase)\b`)

// classify applies the safety precedence: DELETE is destructive, other
// mutating methods are write (upgraded to destructive when the path or text
// names a destructive action), everything else is read. Classification never
// downgrades.
func classify(ep *spec.Endpoint) SafetyLevel {
	switch ep.Method {
	case spec.DELETE:
		return SafetyDestructive
	case spec.POST, spec.PUT, spec.PATCH:
		text := strings.ToLower(ep.Path + " " + ep.Summary + " " + ep.Description)
		if destructiveVerbRe.MatchString(text) {
			return SafetyDestructive
		}
		return SafetyWrite
	default:
		return SafetyRead
	}
}

// describe uses the endpoint's own words when present, otherwise synthesizes
// from the method and path, and appends the safety marker for mutations.
func describe(ep *spec.Endpoint, safety SafetyLevel) string {
	desc := ep.Summary
	if desc == "" {
		desc = ep.Description
	}
	if desc == "" {
		desc = string(ep.Method) + " " + ep.Path
	}
	switch safety {
	case SafetyWrite:
		return desc + " " + WriteMarker
	case SafetyDestructive:
		return desc + " " + DestructiveMarker
	default:
		return desc
	}
}

// flattenParams merges path+query+header parameters and promoted top-level
// body fields into one flat argument list. Within a tool, name collisions are
// resolved by a location-qualified rename; the first occurrence keeps the
// bare name.
func flattenParams(ep *spec.Endpoint) []ToolParam {
	var out []ToolParam
	used := make(map[string]struct{})

	add := func(wireName, jsonType string, required bool, loc spec.ParamLocation) {
		name := normalizeIdent(wireName)
		if name == "" {
			name = "arg"
		}
		if _, clash := used[strings.ToLower(name)]; clash {
			name = string(loc) + "_" + name
		}
		base := name
		for n := 2; ; n++ {
			if _, clash := used[strings.ToLower(name)]; !clash {
				break
			}
			name = fmt.Sprintf("%s_%d", base, n)
		}
		used[strings.ToLower(name)] = struct{}{}
		out = append(out, ToolParam{
			Name:     name,
			WireName: wireName,
			JSONType: jsonType,
			Required: required,
			Location: loc,
		})
	}

	for _, p := range ep.Parameters {
		add(p.Name, p.JSONType, p.Required, p.Location)
	}
	if ep.RequestBody != nil {
		for _, f := range ep.RequestBody.Fields {
			add(f.Name, f.JSONType, f.Required, spec.InBody)
		}
	}
	return out
}
