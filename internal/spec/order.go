package spec

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// docOrder captures the first-seen order of paths and of methods within each
// path item. kin-openapi hands back maps, so the order has to be recovered
// from the raw document before it is lost.
type docOrder struct {
	paths   []string
	methods map[string][]string // path -> lowercase method keys in document order
}

var httpMethodKeys = map[string]struct{}{
	"get": {}, "post": {}, "put": {}, "patch": {}, "delete": {}, "head": {}, "options": {}, "trace": {},
}

// readDocOrder parses the raw YAML/JSON document as a node tree and walks the
// "paths" mapping in declaration order. A document without a paths mapping
// yields an empty order; callers fall back to sorted keys.
func readDocOrder(raw []byte) docOrder {
	out := docOrder{methods: make(map[string][]string)}

	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return out
	}
	if len(root.Content) == 0 {
		return out
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return out
	}

	var pathsNode *yaml.Node
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value == "paths" {
			pathsNode = doc.Content[i+1]
			break
		}
	}
	if pathsNode == nil || pathsNode.Kind != yaml.MappingNode {
		return out
	}

	for i := 0; i+1 < len(pathsNode.Content); i += 2 {
		path := pathsNode.Content[i].Value
		item := pathsNode.Content[i+1]
		out.paths = append(out.paths, path)
		if item.Kind != yaml.MappingNode {
			continue
		}
		for j := 0; j+1 < len(item.Content); j += 2 {
			key := strings.ToLower(item.Content[j].Value)
			if _, ok := httpMethodKeys[key]; ok {
				out.methods[path] = append(out.methods[path], key)
			}
		}
	}
	return out
}
