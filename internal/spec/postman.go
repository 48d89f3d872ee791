package spec

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Postman v2 collection front end. No spec library covers this grammar, so
// the subset the miner needs is decoded directly: request line, query string,
// headers, raw JSON / urlencoded bodies, and the collection-level auth block.

type pmCollection struct {
	Info     pmInfo       `json:"info"`
	Items    []pmItem     `json:"item"`
	Variable []pmVariable `json:"variable"`
	Auth     *pmAuth      `json:"auth"`
}

type pmInfo struct {
	Name    string          `json:"name"`
	Schema  string          `json:"schema"`
	Version json.RawMessage `json:"version"`
}

type pmItem struct {
	Name    string     `json:"name"`
	Items   []pmItem   `json:"item"`
	Request *pmRequest `json:"request"`
}

type pmRequest struct {
	Method      string        `json:"method"`
	Description pmDescription `json:"description"`
	Header      []pmKV        `json:"header"`
	URL         pmURL         `json:"url"`
	Body        *pmBody       `json:"body"`
}

type pmKV struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Disabled bool   `json:"disabled"`
}

type pmVariable struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type pmAuth struct {
	Type string `json:"type"`
}

type pmBody struct {
	Mode       string `json:"mode"`
	Raw        string `json:"raw"`
	URLEncoded []pmKV `json:"urlencoded"`
	FormData   []pmKV `json:"formdata"`
}

// pmURL accepts both the string and the object form Postman exports.
type pmURL struct {
	Raw   string
	Path  []string
	Query []pmKV
}

func (u *pmURL) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		u.Raw = s
		return nil
	}
	var obj struct {
		Raw   string   `json:"raw"`
		Path  []string `json:"path"`
		Query []pmKV   `json:"query"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	u.Raw = obj.Raw
	u.Path = obj.Path
	u.Query = obj.Query
	return nil
}

// pmDescription accepts both the string and the {content: ...} form.
type pmDescription struct {
	Content string
}

func (d *pmDescription) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		d.Content = s
		return nil
	}
	var obj struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	d.Content = obj.Content
	return nil
}

func normalizePostman(raw []byte) (*APISpec, error) {
	var col pmCollection
	if err := json.Unmarshal(raw, &col); err != nil {
		return nil, &SpecError{Code: ParseError, Message: fmt.Sprintf("parse postman collection: %v", err), Cause: err}
	}

	out := &APISpec{
		Title:   strings.TrimSpace(col.Info.Name),
		Version: pmVersionString(col.Info.Version),
		BaseURL: pmBaseURL(col.Variable),
	}
	if col.Auth != nil {
		if scheme, ok := pmAuthScheme(col.Auth.Type); ok {
			out.AuthSchemes = append(out.AuthSchemes, scheme)
		}
	}

	if err := walkPostmanItems(out, col.Items, ""); err != nil {
		return nil, err
	}
	if len(out.Endpoints) == 0 {
		return nil, parseErr("spec: document has no operations")
	}
	out.Tags = collectTags(out.Endpoints)
	return out, nil
}

// walkPostmanItems flattens nested folders; the enclosing folder name becomes
// the endpoint tag.
func walkPostmanItems(out *APISpec, items []pmItem, folder string) error {
	for _, item := range items {
		if len(item.Items) > 0 {
			name := strings.TrimSpace(item.Name)
			if name == "" {
				name = folder
			}
			if err := walkPostmanItems(out, item.Items, name); err != nil {
				return err
			}
			continue
		}
		if item.Request == nil {
			continue
		}
		ep, err := postmanEndpoint(item, folder)
		if err != nil {
			return err
		}
		out.Endpoints = append(out.Endpoints, *ep)
	}
	return nil
}

func postmanEndpoint(item pmItem, folder string) (*Endpoint, error) {
	req := item.Request
	ep := &Endpoint{
		Method:      HttpMethod(strings.ToUpper(strings.TrimSpace(req.Method))),
		Path:        pmPath(req.URL),
		Summary:     strings.TrimSpace(item.Name),
		Description: strings.TrimSpace(req.Description.Content),
	}
	if folder != "" {
		ep.Tags = []string{folder}
	}

	// Path-template variables are the only Postman parameters that are
	// implicitly required.
	for _, m := range pathTokenRe.FindAllStringSubmatch(ep.Path, -1) {
		ep.Parameters = append(ep.Parameters, Param{
			Name:     m[1],
			Location: InPath,
			JSONType: "string",
			Required: true,
		})
	}
	for _, q := range req.URL.Query {
		if q.Disabled || strings.TrimSpace(q.Key) == "" {
			continue
		}
		ep.Parameters = append(ep.Parameters, Param{
			Name:     q.Key,
			Location: InQuery,
			JSONType: "string",
			Required: false,
		})
	}
	for _, h := range req.Header {
		if h.Disabled || strings.TrimSpace(h.Key) == "" {
			continue
		}
		ep.Parameters = append(ep.Parameters, Param{
			Name:     h.Key,
			Location: InHeader,
			JSONType: "string",
			Required: false,
		})
	}

	if req.Body != nil {
		ep.RequestBody = pmBodySchema(req.Body)
	}
	return ep, nil
}

// pmPath reassembles the request path from the url object (or raw line) and
// rewrites :var and {{var}} segments into {var} templates.
func pmPath(u pmURL) string {
	segments := u.Path
	if len(segments) == 0 {
		raw := u.Raw
		// Strip scheme/host or a {{baseUrl}}-style prefix, keep the path.
		if i := strings.Index(raw, "://"); i >= 0 {
			raw = raw[i+3:]
			if j := strings.Index(raw, "/"); j >= 0 {
				raw = raw[j:]
			} else {
				raw = ""
			}
		} else if strings.HasPrefix(raw, "{{") {
			if j := strings.Index(raw, "}}"); j >= 0 {
				raw = raw[j+2:]
			}
		} else if !strings.HasPrefix(raw, "/") {
			// Scheme-less host, e.g. "example.com/pets".
			if j := strings.Index(raw, "/"); j >= 0 && strings.ContainsAny(raw[:j], ".:") {
				raw = raw[j:]
			} else if j < 0 && strings.ContainsAny(raw, ".:") {
				raw = ""
			}
		}
		if i := strings.IndexAny(raw, "?#"); i >= 0 {
			raw = raw[:i]
		}
		segments = strings.Split(strings.Trim(raw, "/"), "/")
	}

	var parts []string
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" || isBaseVarSegment(seg) {
			continue
		}
		if strings.HasPrefix(seg, ":") {
			seg = "{" + strings.TrimPrefix(seg, ":") + "}"
		} else if strings.HasPrefix(seg, "{{") && strings.HasSuffix(seg, "}}") {
			seg = "{" + strings.TrimSuffix(strings.TrimPrefix(seg, "{{"), "}}") + "}"
		}
		parts = append(parts, seg)
	}
	return "/" + strings.Join(parts, "/")
}

// isBaseVarSegment reports whether a segment is a base-URL collection
// variable rather than a real path parameter.
func isBaseVarSegment(seg string) bool {
	if !strings.HasPrefix(seg, "{{") || !strings.HasSuffix(seg, "}}") {
		return false
	}
	switch strings.ToLower(strings.TrimSuffix(strings.TrimPrefix(seg, "{{"), "}}")) {
	case "baseurl", "base_url", "host", "url":
		return true
	}
	return false
}

// pmBodySchema promotes the body fields Postman exposes. Raw JSON bodies are
// typed from their values; everything without a recognizable type stays
// string. required is always false: Postman has no required flag.
func pmBodySchema(body *pmBody) *BodySchema {
	switch body.Mode {
	case "raw":
		var fields map[string]any
		if err := json.Unmarshal([]byte(body.Raw), &fields); err != nil {
			return nil
		}
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		out := &BodySchema{}
		for _, name := range names {
			out.Fields = append(out.Fields, BodyField{
				Name:     name,
				JSONType: jsonValueType(fields[name]),
				Required: false,
			})
		}
		if len(out.Fields) == 0 {
			return nil
		}
		return out
	case "urlencoded", "formdata":
		kvs := body.URLEncoded
		if body.Mode == "formdata" {
			kvs = body.FormData
		}
		out := &BodySchema{}
		for _, kv := range kvs {
			if kv.Disabled || strings.TrimSpace(kv.Key) == "" {
				continue
			}
			out.Fields = append(out.Fields, BodyField{Name: kv.Key, JSONType: "string"})
		}
		if len(out.Fields) == 0 {
			return nil
		}
		return out
	default:
		return nil
	}
}

func jsonValueType(v any) string {
	switch val := v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		if val == float64(int64(val)) {
			return "integer"
		}
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return "string"
	}
}

func pmVersionString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Major int `json:"major"`
		Minor int `json:"minor"`
		Patch int `json:"patch"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return fmt.Sprintf("%d.%d.%d", obj.Major, obj.Minor, obj.Patch)
	}
	return ""
}

func pmBaseURL(vars []pmVariable) string {
	for _, v := range vars {
		switch strings.ToLower(strings.TrimSpace(v.Key)) {
		case "baseurl", "base_url", "host", "url":
			if u := strings.TrimSpace(v.Value); u != "" {
				return u
			}
		}
	}
	return ""
}

func pmAuthScheme(kind string) (AuthScheme, bool) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "bearer":
		return AuthScheme{Name: "bearer", Kind: AuthBearer}, true
	case "apikey":
		return AuthScheme{Name: "apikey", Kind: AuthAPIKey}, true
	case "basic":
		return AuthScheme{Name: "basic", Kind: AuthBasic}, true
	case "oauth2":
		return AuthScheme{Name: "oauth2", Kind: AuthOAuth2}, true
	case "", "noauth":
		return AuthScheme{}, false
	default:
		return AuthScheme{Name: kind, Kind: AuthNone}, true
	}
}
