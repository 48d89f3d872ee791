package codegen

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/mark3labs/api2mcp/internal/miner"
	"github.com/mark3labs/api2mcp/internal/spec"
)

func pyType(jsonType string) string {
	switch jsonType {
	case "integer":
		return "int"
	case "number":
		return "float"
	case "boolean":
		return "bool"
	case "array":
		return "list"
	case "object":
		return "dict"
	default:
		return "str"
	}
}

// pyQuote renders s as a single-quoted Python string literal.
func pyQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return "'" + s + "'"
}

// orderedParams returns required parameters before optional ones, keeping the
// catalog order within each group, which is what the Python signature needs.
func orderedParams(params []miner.ToolParam) []miner.ToolParam {
	out := make([]miner.ToolParam, 0, len(params))
	for _, p := range params {
		if p.Required {
			out = append(out, p)
		}
	}
	for _, p := range params {
		if !p.Required {
			out = append(out, p)
		}
	}
	return out
}

func primaryAuth(s *spec.APISpec) spec.AuthScheme {
	for _, a := range s.AuthSchemes {
		if a.Kind != spec.AuthNone {
			return a
		}
	}
	return spec.AuthScheme{Kind: spec.AuthNone}
}

func renderServerPy(s *spec.APISpec, tools []miner.ToolDefinition, serverName string) string {
	prefix := envPrefix(s, serverName)
	auth := primaryAuth(s)

	var b strings.Builder
	fmt.Fprintf(&b, "\"\"\"Auto-generated MCP server for %s.\n\nAPI version: %s\nBase URL: %s\n\"\"\"\n\n", s.Title, s.Version, s.BaseURL)
	b.WriteString("from __future__ import annotations\n\nimport asyncio\n")
	if auth.Kind == spec.AuthBasic {
		b.WriteString("import base64\n")
	}
	b.WriteString("import json\nimport os\nfrom typing import Any\n\nimport httpx\nfrom dedalus_mcp import MCPServer, tool\n\n\n")

	b.WriteString("# ── Configuration ────────────────────────────────────────────────────────────\n\n")
	fmt.Fprintf(&b, "BASE_URL = os.getenv(\"%s_BASE_URL\", %s)\n", prefix, pyQuote(s.BaseURL))
	fmt.Fprintf(&b, "API_KEY = os.getenv(\"%s_API_KEY\", \"\")\n\n\n", prefix)

	b.WriteString("def _headers() -> dict[str, str]:\n")
	b.WriteString("    h: dict[str, str] = {\n        \"Content-Type\": \"application/json\",\n        \"Accept\": \"application/json\",\n    }\n")
	b.WriteString("    if API_KEY:\n")
	switch auth.Kind {
	case spec.AuthAPIKey:
		header := auth.ParamName
		if header == "" || strings.EqualFold(auth.In, "query") {
			header = "X-API-Key"
		}
		fmt.Fprintf(&b, "        h[%s] = API_KEY\n", pyQuote(header))
	case spec.AuthBasic:
		b.WriteString("        h[\"Authorization\"] = \"Basic \" + base64.b64encode(API_KEY.encode()).decode()\n")
	default:
		// bearer, oauth2 and unauthenticated APIs all get a bearer header;
		// it is a no-op when API_KEY is unset.
		b.WriteString("        h[\"Authorization\"] = f\"Bearer {API_KEY}\"\n")
	}
	b.WriteString("    return h\n\n\n")

	b.WriteString(`async def _request(
    method: str,
    path: str,
    *,
    params: dict[str, Any] | None = None,
    body: dict[str, Any] | None = None,
    headers: dict[str, Any] | None = None,
) -> str:
    """Make an HTTP request to the upstream API."""
    url = f"{BASE_URL}{path}"
    merged = _headers()
    if headers:
        merged.update({k: str(v) for k, v in headers.items()})
    async with httpx.AsyncClient(timeout=30.0) as client:
        resp = await client.request(
            method,
            url,
            headers=merged,
            params=params,
            json=body if body else None,
        )
        resp.raise_for_status()
        try:
            data = resp.json()
            return json.dumps(data, indent=2)
        except Exception:
            return resp.text


`)

	b.WriteString("# ── Tools ────────────────────────────────────────────────────────────────────\n\n")
	for _, t := range tools {
		b.WriteString("\n")
		renderToolPy(&b, t)
	}

	b.WriteString("\n# ── Server ───────────────────────────────────────────────────────────────────\n\n")
	fmt.Fprintf(&b, "server = MCPServer(%s)\n", pyQuote(serverName))
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	fmt.Fprintf(&b, "server.collect(%s)\n\n", strings.Join(names, ", "))
	b.WriteString("if __name__ == \"__main__\":\n    asyncio.run(server.serve())\n")
	return b.String()
}

func renderToolPy(b *strings.Builder, t miner.ToolDefinition) {
	params := orderedParams(t.Params)

	sig := make([]string, 0, len(params))
	for _, p := range params {
		if p.Required {
			sig = append(sig, fmt.Sprintf("%s: %s", p.Name, pyType(p.JSONType)))
		} else {
			sig = append(sig, fmt.Sprintf("%s: %s | None = None", p.Name, pyType(p.JSONType)))
		}
	}

	fmt.Fprintf(b, "@tool(description=%s)\n", pyQuote(t.Description))
	fmt.Fprintf(b, "async def %s(%s) -> str:\n", t.Name, strings.Join(sig, ", "))

	// Concrete request path: substitute each {token} with the corresponding
	// python argument.
	path := t.Endpoint.Path
	for _, p := range params {
		if p.Location == spec.InPath {
			path = strings.ReplaceAll(path, "{"+p.WireName+"}", "{"+p.Name+"}")
		}
	}
	fmt.Fprintf(b, "    path = f%s\n", pyQuote(path))

	var queries, bodies, headers []miner.ToolParam
	for _, p := range params {
		switch p.Location {
		case spec.InQuery:
			queries = append(queries, p)
		case spec.InBody:
			bodies = append(bodies, p)
		case spec.InHeader:
			headers = append(headers, p)
		}
	}

	kwargs := []string{}
	if len(queries) > 0 {
		b.WriteString("    params: dict[str, Any] = {}\n")
		for _, p := range queries {
			writeAssign(b, "params", p)
		}
		kwargs = append(kwargs, "params=params")
	}
	if len(bodies) > 0 {
		b.WriteString("    body: dict[str, Any] = {}\n")
		for _, p := range bodies {
			writeAssign(b, "body", p)
		}
		kwargs = append(kwargs, "body=body")
	}
	if len(headers) > 0 {
		b.WriteString("    headers: dict[str, Any] = {}\n")
		for _, p := range headers {
			writeAssign(b, "headers", p)
		}
		kwargs = append(kwargs, "headers=headers")
	}

	call := fmt.Sprintf("_request(%s, path", pyQuote(string(t.Endpoint.Method)))
	if len(kwargs) > 0 {
		call += ", " + strings.Join(kwargs, ", ")
	}
	call += ")"
	fmt.Fprintf(b, "    return await %s\n\n", call)
}

func writeAssign(b *strings.Builder, target string, p miner.ToolParam) {
	if p.Required {
		fmt.Fprintf(b, "    %s[%s] = %s\n", target, pyQuote(p.WireName), p.Name)
		return
	}
	fmt.Fprintf(b, "    if %s is not None:\n        %s[%s] = %s\n", p.Name, target, pyQuote(p.WireName), p.Name)
}

func renderRequirements() string {
	return "dedalus-mcp>=0.1.0\nhttpx>=0.27.0\n"
}

var envExampleTmpl = template.Must(template.New("env").Parse(
	`# Environment for the generated {{.ServerName}} MCP server.
# Copy to .env and fill in the values before starting the server.
{{- range .AuthLines}}
# {{.}}
{{- end}}
{{.Prefix}}_BASE_URL={{.BaseURL}}
{{.Prefix}}_API_KEY=
`))

func renderEnvExample(s *spec.APISpec, serverName string) string {
	var authLines []string
	for _, a := range s.AuthSchemes {
		authLines = append(authLines, fmt.Sprintf("auth scheme %q: %s", a.Name, a.Kind))
	}
	sort.Strings(authLines)

	var b strings.Builder
	err := envExampleTmpl.Execute(&b, struct {
		ServerName string
		Prefix     string
		BaseURL    string
		AuthLines  []string
	}{serverName, envPrefix(s, serverName), s.BaseURL, authLines})
	if err != nil {
		// Static template over plain strings; execution cannot fail.
		panic(err)
	}
	return b.String()
}

var readmeTmpl = template.Must(template.New("readme").Parse(
	`# {{.ServerName}}

Auto-generated MCP server for {{.Title}}{{if .Version}} (v{{.Version}}){{end}}.

## Tools

| Name | Safety | Description |
|------|--------|-------------|
{{- range .Tools}}
| {{.Name}} | {{.Safety}} | {{.Description}} |
{{- end}}

## Running

` + "```" + `
pip install -r requirements.txt
cp .env.example .env  # fill in your API key
python server.py
` + "```" + `
`))

func renderReadme(s *spec.APISpec, tools []miner.ToolDefinition, serverName string) string {
	var b strings.Builder
	err := readmeTmpl.Execute(&b, struct {
		ServerName string
		Title      string
		Version    string
		Tools      []miner.ToolDefinition
	}{serverName, s.Title, s.Version, tools})
	if err != nil {
		panic(err)
	}
	return b.String()
}
