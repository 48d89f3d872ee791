package spec

// Canonical intermediate representation shared by the miner and the code
// generator. Every supported source grammar (OpenAPI 2.x/3.x, Postman v2)
// normalizes into these types; nothing downstream looks at the raw document.

type HttpMethod string

const (
	GET     HttpMethod = "GET"
	POST    HttpMethod = "POST"
	PUT     HttpMethod = "PUT"
	PATCH   HttpMethod = "PATCH"
	DELETE  HttpMethod = "DELETE"
	HEAD    HttpMethod = "HEAD"
	OPTIONS HttpMethod = "OPTIONS"
)

// ParamLocation is where a parameter travels on the wire.
type ParamLocation string

const (
	InPath   ParamLocation = "path"
	InQuery  ParamLocation = "query"
	InHeader ParamLocation = "header"
	InBody   ParamLocation = "body"
)

// AuthKind classifies an auth scheme into the small set the generated
// adapter knows how to wire.
type AuthKind string

const (
	AuthAPIKey AuthKind = "apiKey"
	AuthBearer AuthKind = "bearer"
	AuthBasic  AuthKind = "basic"
	AuthOAuth2 AuthKind = "oauth2"
	AuthNone   AuthKind = "none"
)

// APISpec is the root IR for one API surface. It is built once per run and
// never mutated afterwards.
type APISpec struct {
	Title       string
	Version     string
	BaseURL     string
	Endpoints   []Endpoint
	Tags        []string // insertion-ordered union of endpoint tags
	AuthSchemes []AuthScheme
}

type AuthScheme struct {
	Name string
	Kind AuthKind
	// ParamName is the header/query field carrying an apiKey credential.
	ParamName string
	In        string
}

// Endpoint is one operation. Path keeps its {param} placeholders; every
// placeholder has a matching required path parameter (enforced at parse time).
type Endpoint struct {
	Method      HttpMethod
	Path        string
	OperationID string
	Summary     string
	Description string
	Tags        []string
	Parameters  []Param
	RequestBody *BodySchema
}

type Param struct {
	Name     string
	Location ParamLocation
	JSONType string
	Required bool
	Default  any
}

// BodySchema describes a structured request body. Only the top level is
// field-typed; nested objects stay opaque.
type BodySchema struct {
	Fields []BodyField
}

type BodyField struct {
	Name     string
	JSONType string
	Required bool
}
