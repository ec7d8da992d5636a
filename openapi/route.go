package openapi

import (
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

type RouteBuilder struct {
	spec      *Spec
	method    string
	path      string
	operation *openapi3.Operation
}

func (rb *RouteBuilder) pathParams() {
	for _, part := range strings.Split(rb.path, "/") {
		if name, ok := strings.CutPrefix(part, ":"); ok {
			rb.operation.AddParameter(openapi3.NewPathParameter(name).WithSchema(openapi3.NewStringSchema()))
		}
	}
}

func (rb *RouteBuilder) Summary(summary string) *RouteBuilder {
	rb.operation.Summary = summary
	return rb
}

func (rb *RouteBuilder) Description(description string) *RouteBuilder {
	rb.operation.Description = description
	return rb
}

func (rb *RouteBuilder) Tags(tags ...string) *RouteBuilder {
	rb.operation.Tags = append(rb.operation.Tags, tags...)
	return rb
}

func (rb *RouteBuilder) PathParam(name, description string) *RouteBuilder {
	for _, p := range rb.operation.Parameters {
		if p.Value != nil && p.Value.In == openapi3.ParameterInPath && p.Value.Name == name {
			p.Value.Description = description
			return rb
		}
	}
	rb.operation.AddParameter(openapi3.NewPathParameter(name).
		WithDescription(description).
		WithSchema(openapi3.NewStringSchema()))
	return rb
}

func (rb *RouteBuilder) QueryParam(name, description string, required bool) *RouteBuilder {
	rb.operation.AddParameter(openapi3.NewQueryParameter(name).
		WithDescription(description).
		WithRequired(required).
		WithSchema(openapi3.NewStringSchema()))
	return rb
}

func (rb *RouteBuilder) Body(example any, description string) *RouteBuilder {
	rb.operation.RequestBody = &openapi3.RequestBodyRef{
		Value: openapi3.NewRequestBody().
			WithDescription(description).
			WithRequired(true).
			WithJSONSchemaRef(rb.spec.schemaFor(example)),
	}
	return rb
}

// Response documents a status. A nil example means no body.
func (rb *RouteBuilder) Response(statusCode int, example any, description string) *RouteBuilder {
	resp := openapi3.NewResponse().WithDescription(description)
	if example != nil {
		resp.Content = openapi3.NewContentWithJSONSchemaRef(rb.spec.schemaFor(example))
	}
	rb.operation.AddResponse(statusCode, resp)
	return rb
}

// Security lists alternative schemes; any one of them satisfies the route.
func (rb *RouteBuilder) Security(schemes ...string) *RouteBuilder {
	requirements := openapi3.NewSecurityRequirements()
	for _, scheme := range schemes {
		requirements.With(openapi3.NewSecurityRequirement().Authenticate(scheme))
	}
	rb.operation.Security = requirements
	return rb
}

func (rb *RouteBuilder) NoSecurity() *RouteBuilder {
	rb.operation.Security = openapi3.NewSecurityRequirements()
	return rb
}

func (rb *RouteBuilder) Build() {
	rb.spec.addOperation(rb.method, rb.path, rb.operation)
}
