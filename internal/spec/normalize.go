package spec

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	openapi2 "github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"
)

// SourceKind hints which grammar a raw document uses. KindAuto probes the
// document structure, which is the normal mode; the explicit kinds exist for
// callers that already know what they fetched.
type SourceKind int

const (
	KindAuto SourceKind = iota
	KindOpenAPI
	KindPostman
)

// maxSchemaDepth bounds schema traversal so self-referencing composition
// chains fail instead of looping.
const maxSchemaDepth = 16

// Normalize parses a raw OpenAPI 2.x/3.x or Postman v2 document into the
// canonical APISpec. The grammar is detected by structural probing, never by
// file extension.
func Normalize(raw []byte) (*APISpec, error) {
	return NormalizeKind(raw, KindAuto)
}

// NormalizeKind is Normalize with an explicit grammar hint.
func NormalizeKind(raw []byte, kind SourceKind) (*APISpec, error) {
	var root map[string]any
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, &SpecError{Code: ParseError, Message: fmt.Sprintf("parse document: %v", err), Cause: err}
	}
	if len(root) == 0 {
		return nil, parseErr("spec: empty document")
	}

	switch kind {
	case KindPostman:
		return normalizePostman(raw)
	case KindOpenAPI:
		return normalizeOpenAPI(raw, root)
	default:
		if isPostmanCollection(root) {
			return normalizePostman(raw)
		}
		if _, ok := versionOf(root); ok {
			return normalizeOpenAPI(raw, root)
		}
		return nil, parseErr("spec: unrecognized document (expected 'openapi: 3.x', 'swagger: 2.0', or a Postman v2 collection)")
	}
}

// versionOf returns 3 or 2 when the root map carries a supported
// OpenAPI/Swagger version marker.
func versionOf(root map[string]any) (int, bool) {
	if v, ok := root["openapi"]; ok {
		if s, _ := v.(string); strings.HasPrefix(strings.TrimSpace(s), "3.") {
			return 3, true
		}
	}
	if v, ok := root["swagger"]; ok {
		if s, _ := v.(string); strings.HasPrefix(strings.TrimSpace(s), "2.") {
			return 2, true
		}
	}
	return 0, false
}

func isPostmanCollection(root map[string]any) bool {
	if _, hasItem := root["item"]; !hasItem {
		return false
	}
	info, ok := root["info"].(map[string]any)
	if !ok {
		return false
	}
	// Postman v2 carries a schema URL; the name alone is enough of a probe
	// when combined with the item array.
	if _, ok := info["schema"]; ok {
		return true
	}
	_, hasName := info["name"]
	return hasName
}

func normalizeOpenAPI(raw []byte, root map[string]any) (*APISpec, error) {
	version, ok := versionOf(root)
	if !ok {
		return nil, parseErr("spec: missing or unknown version (expected 'openapi: 3.x' or 'swagger: 2.0')")
	}

	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false

	var doc *openapi3.T
	switch version {
	case 3:
		d, err := loader.LoadFromData(raw)
		if err != nil {
			return nil, mapLoadErr(err)
		}
		doc = d
	case 2:
		// openapi2.T decodes through its json tags, so YAML input goes
		// through the already-parsed root map first.
		jsonRaw, err := json.Marshal(root)
		if err != nil {
			return nil, &SpecError{Code: ParseError, Message: fmt.Sprintf("parse swagger 2.0 document: %v", err), Cause: err}
		}
		var v2 openapi2.T
		if err := json.Unmarshal(jsonRaw, &v2); err != nil {
			return nil, &SpecError{Code: ParseError, Message: fmt.Sprintf("parse swagger 2.0 document: %v", err), Cause: err}
		}
		d, err := openapi2conv.ToV3(&v2)
		if err != nil {
			return nil, &SpecError{Code: ParseError, Message: fmt.Sprintf("convert v2 to v3: %v", err), Cause: err}
		}
		if err := loader.ResolveRefsIn(d, nil); err != nil {
			return nil, mapLoadErr(err)
		}
		doc = d
	}

	return buildAPISpec(doc, raw, root, version == 2)
}

// mapLoadErr classifies kin-openapi loader failures: anything referencing a
// document outside the loaded one is an unresolved-reference error, the rest
// are parse errors.
func mapLoadErr(err error) *SpecError {
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "external") || strings.Contains(lower, "unresolved") {
		return &SpecError{Code: UnresolvedRefError, Message: fmt.Sprintf("resolve references: %v", err), Cause: err}
	}
	return &SpecError{Code: ParseError, Message: fmt.Sprintf("parse document: %v", err), Cause: err}
}

func buildAPISpec(doc *openapi3.T, raw []byte, root map[string]any, isV2 bool) (*APISpec, error) {
	out := &APISpec{}
	if doc.Info != nil {
		out.Title = strings.TrimSpace(doc.Info.Title)
		out.Version = strings.TrimSpace(doc.Info.Version)
	}
	out.BaseURL = baseURL(doc, root, isV2)
	out.AuthSchemes = authSchemes(doc)

	order := readDocOrder(raw)
	for _, path := range orderedPaths(doc, order) {
		item := doc.Paths[path]
		if item == nil {
			continue
		}
		for _, method := range orderedMethods(item, path, order) {
			op := operationFor(item, method)
			if op == nil {
				continue
			}
			ep, err := buildEndpoint(method, path, item, op)
			if err != nil {
				return nil, err
			}
			out.Endpoints = append(out.Endpoints, *ep)
		}
	}
	if len(out.Endpoints) == 0 {
		return nil, parseErr("spec: document has no operations")
	}
	out.Tags = collectTags(out.Endpoints)
	return out, nil
}

func orderedPaths(doc *openapi3.T, order docOrder) []string {
	seen := make(map[string]struct{}, len(order.paths))
	paths := make([]string, 0, len(doc.Paths))
	for _, p := range order.paths {
		if _, ok := doc.Paths[p]; ok {
			paths = append(paths, p)
			seen[p] = struct{}{}
		}
	}
	// Paths the order walk missed (or a walk that failed entirely) fall back
	// to sorted order so the result stays deterministic.
	rest := make([]string, 0)
	for p := range doc.Paths {
		if _, ok := seen[p]; !ok {
			rest = append(rest, p)
		}
	}
	sort.Strings(rest)
	return append(paths, rest...)
}

var canonicalMethods = []string{"get", "post", "put", "patch", "delete", "head", "options"}

func orderedMethods(item *openapi3.PathItem, path string, order docOrder) []string {
	seen := make(map[string]struct{})
	methods := make([]string, 0, 4)
	for _, m := range order.methods[path] {
		if operationFor(item, m) != nil {
			methods = append(methods, m)
			seen[m] = struct{}{}
		}
	}
	for _, m := range canonicalMethods {
		if _, ok := seen[m]; ok {
			continue
		}
		if operationFor(item, m) != nil {
			methods = append(methods, m)
		}
	}
	return methods
}

func operationFor(item *openapi3.PathItem, method string) *openapi3.Operation {
	switch method {
	case "get":
		return item.Get
	case "post":
		return item.Post
	case "put":
		return item.Put
	case "patch":
		return item.Patch
	case "delete":
		return item.Delete
	case "head":
		return item.Head
	case "options":
		return item.Options
	default:
		return nil
	}
}

func buildEndpoint(method, path string, item *openapi3.PathItem, op *openapi3.Operation) (*Endpoint, error) {
	ep := &Endpoint{
		Method:      HttpMethod(strings.ToUpper(method)),
		Path:        path,
		OperationID: strings.TrimSpace(op.OperationID),
		Summary:     strings.TrimSpace(op.Summary),
		Description: strings.TrimSpace(op.Description),
	}
	for _, t := range op.Tags {
		if t = strings.TrimSpace(t); t != "" {
			ep.Tags = append(ep.Tags, t)
		}
	}

	// Path-level parameters first, operation-level ones override in place so
	// the declared order survives.
	idx := make(map[string]int)
	add := func(pref *openapi3.ParameterRef) {
		pm, ok := toParam(pref)
		if !ok {
			return
		}
		key := string(pm.Location) + ":" + pm.Name
		if i, dup := idx[key]; dup {
			ep.Parameters[i] = pm
			return
		}
		idx[key] = len(ep.Parameters)
		ep.Parameters = append(ep.Parameters, pm)
	}
	for _, pref := range item.Parameters {
		add(pref)
	}
	for _, pref := range op.Parameters {
		add(pref)
	}

	if op.RequestBody != nil && op.RequestBody.Value != nil {
		body, err := bodySchemaFor(op.RequestBody.Value)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", ep.Method, path, err)
		}
		ep.RequestBody = body
	}

	if err := verifyPathParams(ep); err != nil {
		return nil, err
	}
	return ep, nil
}

var pathTokenRe = regexp.MustCompile(`\{([^/{}]+)\}`)

// verifyPathParams enforces that every {name} token in the path has exactly
// one required path-location parameter. A mismatch is a parse error, never a
// silent drop.
func verifyPathParams(ep *Endpoint) error {
	for _, m := range pathTokenRe.FindAllStringSubmatch(ep.Path, -1) {
		token := m[1]
		found := false
		for _, p := range ep.Parameters {
			if p.Location != InPath || p.Name != token {
				continue
			}
			if !p.Required {
				return parseErr("%s %s: path parameter %q must be required", ep.Method, ep.Path, token)
			}
			found = true
		}
		if !found {
			return parseErr("%s %s: path template token %q has no matching path parameter", ep.Method, ep.Path, token)
		}
	}
	return nil
}

func toParam(pref *openapi3.ParameterRef) (Param, bool) {
	if pref == nil || pref.Value == nil {
		return Param{}, false
	}
	p := pref.Value
	loc := ParamLocation(strings.TrimSpace(p.In))
	switch loc {
	case InPath, InQuery, InHeader:
	case "cookie":
		// Cookies travel as headers in the generated adapter.
		loc = InHeader
	default:
		return Param{}, false
	}
	pm := Param{
		Name:     strings.TrimSpace(p.Name),
		Location: loc,
		JSONType: "string",
		Required: p.Required,
	}
	if p.Schema != nil && p.Schema.Value != nil {
		pm.JSONType = jsonTypeOf(p.Schema.Value.Type)
		pm.Default = p.Schema.Value.Default
	}
	return pm, true
}

// bodySchemaFor flattens the JSON request body one level deep: each top-level
// property becomes a typed field, nested objects stay opaque. Non-object
// bodies collapse to a single "body" field.
func bodySchemaFor(rb *openapi3.RequestBody) (*BodySchema, error) {
	media := pickJSONMedia(rb.Content)
	if media == nil || media.Schema == nil {
		return nil, nil
	}
	schema, err := derefSchema(media.Schema, make(map[*openapi3.Schema]struct{}), 0)
	if err != nil {
		return nil, err
	}
	if schema == nil {
		return nil, nil
	}

	props, required, err := mergedProperties(schema, make(map[*openapi3.Schema]struct{}), 0)
	if err != nil {
		return nil, err
	}
	if schema.Type != "object" && len(props) == 0 {
		t := jsonTypeOf(schema.Type)
		return &BodySchema{Fields: []BodyField{{Name: "body", JSONType: t, Required: rb.Required}}}, nil
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	out := &BodySchema{}
	for _, name := range names {
		field := BodyField{Name: name, JSONType: "string", Required: required[name]}
		if ref := props[name]; ref != nil && ref.Value != nil {
			field.JSONType = jsonTypeOf(ref.Value.Type)
		}
		out.Fields = append(out.Fields, field)
	}
	if len(out.Fields) == 0 {
		return nil, nil
	}
	return out, nil
}

func pickJSONMedia(content openapi3.Content) *openapi3.MediaType {
	if content == nil {
		return nil
	}
	if mt, ok := content["application/json"]; ok {
		return mt
	}
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.Contains(k, "json") {
			return content[k]
		}
	}
	if len(keys) > 0 {
		return content[keys[0]]
	}
	return nil
}

// derefSchema follows a schema reference to its concrete value with a visited
// set so reference cycles fail instead of recursing forever.
func derefSchema(ref *openapi3.SchemaRef, visited map[*openapi3.Schema]struct{}, depth int) (*openapi3.Schema, error) {
	if ref == nil || ref.Value == nil {
		return nil, nil
	}
	if depth > maxSchemaDepth {
		return nil, parseErr("schema nesting exceeds depth limit %d", maxSchemaDepth)
	}
	if _, seen := visited[ref.Value]; seen {
		return nil, parseErr("cyclic schema reference detected")
	}
	visited[ref.Value] = struct{}{}
	return ref.Value, nil
}

// mergedProperties collects top-level properties and required flags across the
// schema and its allOf parts.
func mergedProperties(schema *openapi3.Schema, visited map[*openapi3.Schema]struct{}, depth int) (map[string]*openapi3.SchemaRef, map[string]bool, error) {
	if depth > maxSchemaDepth {
		return nil, nil, parseErr("schema nesting exceeds depth limit %d", maxSchemaDepth)
	}
	props := make(map[string]*openapi3.SchemaRef)
	required := make(map[string]bool)

	collect := func(s *openapi3.Schema) {
		for name, ref := range s.Properties {
			if _, ok := props[name]; !ok {
				props[name] = ref
			}
		}
		for _, name := range s.Required {
			required[name] = true
		}
	}
	collect(schema)

	for _, part := range schema.AllOf {
		sub, err := derefSchema(part, visited, depth+1)
		if err != nil {
			return nil, nil, err
		}
		if sub == nil {
			continue
		}
		subProps, subReq, err := mergedProperties(sub, visited, depth+1)
		if err != nil {
			return nil, nil, err
		}
		for name, ref := range subProps {
			if _, ok := props[name]; !ok {
				props[name] = ref
			}
		}
		for name := range subReq {
			required[name] = true
		}
	}
	return props, required, nil
}

func jsonTypeOf(t string) string {
	switch strings.TrimSpace(t) {
	case "string":
		return "string"
	case "number":
		return "number"
	case "integer":
		return "integer"
	case "boolean":
		return "boolean"
	case "array":
		return "array"
	case "object":
		return "object"
	default:
		// Absent or exotic types default to string; the adapter passes the
		// value through untouched either way.
		return "string"
	}
}

func baseURL(doc *openapi3.T, root map[string]any, isV2 bool) string {
	// Swagger 2.0 documents carry scheme/host/basePath directly; that raw
	// triple is more reliable than whatever the v2-to-v3 conversion emitted.
	if isV2 {
		if u := v2BaseURL(root); u != "" {
			return u
		}
	}
	for _, s := range doc.Servers {
		if s == nil {
			continue
		}
		if u := strings.TrimSpace(s.URL); u != "" && u != "/" {
			return u
		}
	}
	return ""
}

// v2BaseURL reassembles schemes[0]://host+basePath from the raw Swagger 2.0
// document, for specs where the v2-to-v3 conversion produced no servers.
func v2BaseURL(root map[string]any) string {
	host, _ := root["host"].(string)
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	scheme := "https"
	if schemes, ok := root["schemes"].([]any); ok && len(schemes) > 0 {
		if s, ok := schemes[0].(string); ok && strings.TrimSpace(s) != "" {
			scheme = strings.TrimSpace(s)
		}
	}
	basePath, _ := root["basePath"].(string)
	return scheme + "://" + host + strings.TrimSpace(basePath)
}

func authSchemes(doc *openapi3.T) []AuthScheme {
	if doc.Components == nil || len(doc.Components.SecuritySchemes) == 0 {
		return nil
	}
	names := make([]string, 0, len(doc.Components.SecuritySchemes))
	for name := range doc.Components.SecuritySchemes {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]AuthScheme, 0, len(names))
	for _, name := range names {
		ref := doc.Components.SecuritySchemes[name]
		if ref == nil || ref.Value == nil {
			continue
		}
		v := ref.Value
		scheme := AuthScheme{Name: name, Kind: AuthNone}
		switch strings.ToLower(v.Type) {
		case "apikey":
			scheme.Kind = AuthAPIKey
			scheme.ParamName = v.Name
			scheme.In = v.In
		case "http":
			switch strings.ToLower(v.Scheme) {
			case "bearer":
				scheme.Kind = AuthBearer
			case "basic":
				scheme.Kind = AuthBasic
			}
		case "oauth2":
			scheme.Kind = AuthOAuth2
		case "basic":
			// Swagger 2.0 spells basic auth as its own type.
			scheme.Kind = AuthBasic
		}
		out = append(out, scheme)
	}
	return out
}

func collectTags(endpoints []Endpoint) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, ep := range endpoints {
		for _, t := range ep.Tags {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}
