package openapi

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/labstack/echo/v4"
	"gopkg.in/yaml.v3"
)

const schemaPrefix = "#/components/schemas/"

// Spec accumulates the OpenAPI document while routes are registered.
type Spec struct {
	doc     *openapi3.T
	mu      sync.RWMutex
	schemas map[reflect.Type]string
}

func New(title, version string) *Spec {
	return &Spec{
		doc: &openapi3.T{
			OpenAPI: "3.0.3",
			Info: &openapi3.Info{
				Title:   title,
				Version: version,
			},
			Paths: openapi3.NewPaths(),
			Components: &openapi3.Components{
				Schemas:         make(openapi3.Schemas),
				SecuritySchemes: make(openapi3.SecuritySchemes),
			},
		},
		schemas: make(map[reflect.Type]string),
	}
}

func (s *Spec) Description(desc string) *Spec {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Info.Description = desc
	return s
}

func (s *Spec) Tag(name, description string) *Spec {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Tags = append(s.doc.Tags, &openapi3.Tag{Name: name, Description: description})
	return s
}

func (s *Spec) BearerAuth(name, description string) *Spec {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Components.SecuritySchemes[name] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
			Description:  description,
		},
	}
	return s
}

func (s *Spec) CookieAuth(name, cookieName, description string) *Spec {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Components.SecuritySchemes[name] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:        "apiKey",
			Name:        cookieName,
			In:          "cookie",
			Description: description,
		},
	}
	return s
}

func (s *Spec) Document() *openapi3.T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc
}

func (s *Spec) JSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.MarshalIndent(s.doc, "", "  ")
}

func (s *Spec) YAML() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	intermediate, err := s.doc.MarshalYAML()
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(intermediate)
}

func (s *Spec) JSONHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		data, err := s.JSON()
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to render document")
		}
		return c.JSONBlob(http.StatusOK, data)
	}
}

func (s *Spec) YAMLHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		data, err := s.YAML()
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to render document")
		}
		return c.Blob(http.StatusOK, "application/yaml", data)
	}
}

// Register serves the document at /openapi.json and /openapi.yaml.
func (s *Spec) Register(e *echo.Echo) {
	e.GET("/openapi.json", s.JSONHandler())
	e.GET("/openapi.yaml", s.YAMLHandler())
}

func (s *Spec) Route(method, path string) *RouteBuilder {
	rb := &RouteBuilder{
		spec:      s,
		method:    strings.ToUpper(method),
		path:      path,
		operation: &openapi3.Operation{Responses: openapi3.NewResponses()},
	}
	rb.pathParams()
	return rb
}

func (s *Spec) addOperation(method, path string, op *openapi3.Operation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	openAPIPath := echoPathToOpenAPI(path)

	item := s.doc.Paths.Find(openAPIPath)
	if item == nil {
		item = &openapi3.PathItem{}
		s.doc.Paths.Set(openAPIPath, item)
	}
	item.SetOperation(method, op)
}

func echoPathToOpenAPI(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if name, ok := strings.CutPrefix(part, ":"); ok {
			parts[i] = "{" + name + "}"
		}
	}
	return strings.Join(parts, "/")
}

// schemaFor returns a reference to a named component for structs and an
// inline schema for everything else.
func (s *Spec) schemaFor(example any) *openapi3.SchemaRef {
	s.mu.Lock()
	defer s.mu.Unlock()

	if example == nil {
		return &openapi3.SchemaRef{Value: openapi3.NewObjectSchema()}
	}
	return s.typeSchema(reflect.TypeOf(example), map[reflect.Type]bool{})
}

func (s *Spec) typeSchema(t reflect.Type, visiting map[reflect.Type]bool) *openapi3.SchemaRef {
	switch t.Kind() {
	case reflect.Pointer:
		ref := s.typeSchema(t.Elem(), visiting)
		if ref.Value != nil {
			ref.Value.Nullable = true
		}
		return ref
	case reflect.String:
		return &openapi3.SchemaRef{Value: openapi3.NewStringSchema()}
	case reflect.Bool:
		return &openapi3.SchemaRef{Value: openapi3.NewBoolSchema()}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &openapi3.SchemaRef{Value: openapi3.NewIntegerSchema()}
	case reflect.Float32, reflect.Float64:
		return &openapi3.SchemaRef{Value: openapi3.NewFloat64Schema()}
	case reflect.Slice, reflect.Array:
		schema := openapi3.NewArraySchema()
		schema.Items = s.typeSchema(t.Elem(), visiting)
		return &openapi3.SchemaRef{Value: schema}
	case reflect.Map:
		schema := openapi3.NewObjectSchema()
		schema.AdditionalProperties = openapi3.AdditionalProperties{Schema: s.typeSchema(t.Elem(), visiting)}
		return &openapi3.SchemaRef{Value: schema}
	case reflect.Struct:
		return s.structSchema(t, visiting)
	default:
		return &openapi3.SchemaRef{Value: openapi3.NewObjectSchema()}
	}
}

func (s *Spec) structSchema(t reflect.Type, visiting map[reflect.Type]bool) *openapi3.SchemaRef {
	if t.PkgPath() == "time" && t.Name() == "Time" {
		return &openapi3.SchemaRef{Value: openapi3.NewDateTimeSchema()}
	}

	if name, ok := s.schemas[t]; ok {
		return openapi3.NewSchemaRef(schemaPrefix+name, nil)
	}
	if visiting[t] {
		return &openapi3.SchemaRef{Value: openapi3.NewObjectSchema()}
	}
	visiting[t] = true
	defer delete(visiting, t)

	schema := openapi3.NewObjectSchema()
	var required []string

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		tag := field.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		if name == "" {
			name = field.Name
		}

		prop := s.typeSchema(field.Type, visiting)
		if doc := field.Tag.Get("doc"); doc != "" && prop.Value != nil {
			prop.Value.Description = doc
		}
		schema.Properties[name] = prop

		if !strings.Contains(opts, "omitempty") {
			required = append(required, name)
		}
	}
	schema.Required = required

	if t.Name() == "" {
		return &openapi3.SchemaRef{Value: schema}
	}

	name := t.Name()
	if _, taken := s.doc.Components.Schemas[name]; taken {
		name = strings.ReplaceAll(t.PkgPath(), "/", "_") + "_" + name
	}
	s.schemas[t] = name
	s.doc.Components.Schemas[name] = &openapi3.SchemaRef{Value: schema}
	return openapi3.NewSchemaRef(schemaPrefix+name, nil)
}
