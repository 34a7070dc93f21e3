package export

import (
	"encoding/json"
	"net/url"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/giuseppesec/gqlmap/schema"
)

// Postman v2.1 collection wire shapes.

type PostmanCollection struct {
	Info PostmanInfo     `json:"info"`
	Item []PostmanFolder `json:"item"`
}

type PostmanInfo struct {
	Name   string `json:"name"`
	Schema string `json:"schema"`
}

type PostmanFolder struct {
	Name string           `json:"name"`
	Item []PostmanRequest `json:"item"`
}

type PostmanRequest struct {
	Name    string                `json:"name"`
	Request PostmanRequestDetails `json:"request"`
}

type PostmanRequestDetails struct {
	Method string          `json:"method"`
	Header []PostmanHeader `json:"header"`
	Body   PostmanBody     `json:"body"`
	URL    PostmanURL      `json:"url"`
}

type PostmanHeader struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Type  string `json:"type"`
}

type PostmanBody struct {
	Mode    string         `json:"mode"`
	GraphQL PostmanGraphQL `json:"graphql"`
}

type PostmanGraphQL struct {
	Query     string `json:"query"`
	Variables string `json:"variables"`
}

type PostmanURL struct {
	Raw      string   `json:"raw"`
	Protocol string   `json:"protocol"`
	Host     []string `json:"host"`
	Path     []string `json:"path"`
}

const postmanSchemaURL = "https://schema.getpostman.com/json/collection/v2.1.0/collection.json"

// Postman renders the model as a v2.1 collection with a folder per
// operation kind.
type Postman struct {
	Model *schema.Model
	URL   string
}

// Collection builds the in-memory collection.
func (e *Postman) Collection() *PostmanCollection {
	b := &builder{model: e.Model}
	collection := &PostmanCollection{
		Info: PostmanInfo{Name: "GraphQL API", Schema: postmanSchemaURL},
	}
	if requests := e.folder(b, schema.Query); len(requests) > 0 {
		collection.Item = append(collection.Item, PostmanFolder{Name: "Queries", Item: requests})
	}
	if requests := e.folder(b, schema.Mutation); len(requests) > 0 {
		collection.Item = append(collection.Item, PostmanFolder{Name: "Mutations", Item: requests})
	}
	return collection
}

// Export writes the collection JSON to path.
func (e *Postman) Export(path string) (*Stats, error) {
	collection := e.Collection()
	raw, err := json.MarshalIndent(collection, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshaling collection")
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return nil, errors.Wrap(err, "writing collection")
	}
	stats := &Stats{}
	for _, folder := range collection.Item {
		switch folder.Name {
		case "Queries":
			stats.Queries = len(folder.Item)
		case "Mutations":
			stats.Mutations = len(folder.Item)
		}
	}
	return stats, nil
}

func (e *Postman) folder(b *builder, op schema.OperationType) []PostmanRequest {
	var requests []PostmanRequest
	for _, operation := range b.operations(op) {
		query, variables := b.renderWithVariables(operation)
		requests = append(requests, PostmanRequest{
			Name: operation.Field.Name,
			Request: PostmanRequestDetails{
				Method: "POST",
				Header: []PostmanHeader{{Key: "Content-Type", Value: "application/json", Type: "text"}},
				Body: PostmanBody{
					Mode:    "graphql",
					GraphQL: PostmanGraphQL{Query: query, Variables: variablesJSON(operation, variables)},
				},
				URL: parsePostmanURL(e.URL),
			},
		})
	}
	return requests
}

func variablesJSON(op operation, variables map[string]string) string {
	if len(variables) == 0 {
		return "{}"
	}
	var lines []string
	for _, arg := range sortedArgs(op.Field.Arguments) {
		if value, ok := variables[arg.Name]; ok {
			lines = append(lines, "  \""+arg.Name+"\": "+value)
		}
	}
	if len(lines) == 0 {
		return "{}"
	}
	return "{\n" + strings.Join(lines, ",\n") + "\n}"
}

func parsePostmanURL(raw string) PostmanURL {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return PostmanURL{Raw: raw, Protocol: "http", Host: []string{"localhost"}}
	}
	var path []string
	for _, part := range strings.Split(u.Path, "/") {
		if part != "" {
			path = append(path, part)
		}
	}
	return PostmanURL{
		Raw:      raw,
		Protocol: u.Scheme,
		Host:     strings.Split(u.Hostname(), "."),
		Path:     path,
	}
}
