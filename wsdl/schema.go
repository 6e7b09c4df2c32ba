package wsdl

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/dougn/testtrackpro/api"
)

// Schema is the parsed service description: schema types, the remote
// operation set, and the SOAP endpoint address.
type Schema struct {
	types    map[string]api.TypeDescriptor
	ops      map[string]api.Operation
	endpoint string
}

// ResolveType returns the descriptor for a schema type name.
func (s *Schema) ResolveType(name string) (api.TypeDescriptor, bool) {
	d, ok := s.types[name]
	return d, ok
}

// Operation returns the descriptor for a remote operation name.
func (s *Schema) Operation(name string) (api.Operation, bool) {
	op, ok := s.ops[name]
	return op, ok
}

// HasOperation reports whether the service declares the operation.
func (s *Schema) HasOperation(name string) bool {
	_, ok := s.ops[name]
	return ok
}

// Endpoint returns the SOAP endpoint address declared by the service,
// "" when the description carries none.
func (s *Schema) Endpoint() string {
	return s.endpoint
}

// Create builds an empty value of the named schema type: an *api.Entity
// for complex types, an *api.Array for array types. Unknown names are a
// TypeResolutionError.
func (s *Schema) Create(name string) (any, error) {
	d, ok := s.types[name]
	if !ok {
		return nil, &api.TypeResolutionError{TypeName: name}
	}
	if d.IsArray() {
		return api.NewArray(d.Name, d.Elem), nil
	}
	return api.NewEntity(d.Name), nil
}

type wsdlDoc struct {
	XMLName   xml.Name       `xml:"definitions"`
	Types     wsdlTypes      `xml:"types"`
	Messages  []wsdlMessage  `xml:"message"`
	PortTypes []wsdlPortType `xml:"portType"`
	Services  []wsdlService  `xml:"service"`
}

type wsdlTypes struct {
	Schemas []xsdSchema `xml:"schema"`
}

type xsdSchema struct {
	ComplexTypes []xsdComplexType `xml:"complexType"`
}

type xsdComplexType struct {
	Name     string             `xml:"name,attr"`
	Sequence []xsdElement       `xml:"sequence>element"`
	All      []xsdElement       `xml:"all>element"`
	Content  *xsdComplexContent `xml:"complexContent"`
}

type xsdComplexContent struct {
	Extension   *xsdExtension   `xml:"extension"`
	Restriction *xsdRestriction `xml:"restriction"`
}

type xsdExtension struct {
	Base     string       `xml:"base,attr"`
	Sequence []xsdElement `xml:"sequence>element"`
	All      []xsdElement `xml:"all>element"`
}

type xsdRestriction struct {
	Base       string         `xml:"base,attr"`
	Attributes []xsdAttribute `xml:"attribute"`
}

type xsdAttribute struct {
	Ref       string `xml:"ref,attr"`
	ArrayType string `xml:"arrayType,attr"`
}

type xsdElement struct {
	Name string `xml:"name,attr"`
	Type string `xml:"type,attr"`
}

type wsdlMessage struct {
	Name  string     `xml:"name,attr"`
	Parts []wsdlPart `xml:"part"`
}

type wsdlPart struct {
	Name string `xml:"name,attr"`
	Type string `xml:"type,attr"`
}

type wsdlPortType struct {
	Operations []wsdlOperation `xml:"operation"`
}

type wsdlOperation struct {
	Name   string `xml:"name,attr"`
	Input  wsdlIO `xml:"input"`
	Output wsdlIO `xml:"output"`
}

type wsdlIO struct {
	Message string `xml:"message,attr"`
}

type wsdlService struct {
	Ports []wsdlServicePort `xml:"port"`
}

type wsdlServicePort struct {
	Address wsdlAddress `xml:"address"`
}

type wsdlAddress struct {
	Location string `xml:"location,attr"`
}

// Parse builds a Schema from a (patched) WSDL document.
func Parse(doc []byte) (*Schema, error) {
	var parsed wsdlDoc
	if err := xml.Unmarshal(doc, &parsed); err != nil {
		return nil, fmt.Errorf("wsdl: parse document: %w", err)
	}
	schema := &Schema{
		types: make(map[string]api.TypeDescriptor),
		ops:   make(map[string]api.Operation),
	}
	for _, xs := range parsed.Types.Schemas {
		for _, ct := range xs.ComplexTypes {
			schema.types[ct.Name] = descriptorFor(ct)
		}
	}
	messages := make(map[string]wsdlMessage, len(parsed.Messages))
	for _, m := range parsed.Messages {
		messages[m.Name] = m
	}
	for _, pt := range parsed.PortTypes {
		for _, op := range pt.Operations {
			schema.ops[op.Name] = operationFor(op, messages)
		}
	}
	for _, svc := range parsed.Services {
		for _, port := range svc.Ports {
			if port.Address.Location != "" {
				schema.endpoint = port.Address.Location
			}
		}
	}
	if len(schema.ops) == 0 {
		return nil, fmt.Errorf("wsdl: document declares no operations")
	}
	return schema, nil
}

func descriptorFor(ct xsdComplexType) api.TypeDescriptor {
	d := api.TypeDescriptor{Name: ct.Name}
	elements := ct.Sequence
	if len(elements) == 0 {
		elements = ct.All
	}
	if ct.Content != nil {
		if ext := ct.Content.Extension; ext != nil {
			d.Base = localName(ext.Base)
			elements = ext.Sequence
			if len(elements) == 0 {
				elements = ext.All
			}
		}
		if r := ct.Content.Restriction; r != nil && strings.EqualFold(localName(r.Base), "Array") {
			for _, attr := range r.Attributes {
				if attr.ArrayType != "" {
					d.Elem = localName(strings.TrimSuffix(attr.ArrayType, "[]"))
				}
			}
		}
	}
	for _, el := range elements {
		d.Fields = append(d.Fields, api.FieldDescriptor{Name: el.Name, Type: localName(el.Type)})
	}
	return d
}

func operationFor(op wsdlOperation, messages map[string]wsdlMessage) api.Operation {
	out := api.Operation{Name: op.Name}
	if in, ok := messages[localName(op.Input.Message)]; ok {
		for _, part := range in.Parts {
			out.Params = append(out.Params, api.Param{Name: part.Name, Type: localName(part.Type)})
		}
	}
	if resp, ok := messages[localName(op.Output.Message)]; ok && len(resp.Parts) > 0 {
		out.Result = localName(resp.Parts[0].Type)
	}
	return out
}

func localName(qname string) string {
	if i := strings.LastIndexByte(qname, ':'); i >= 0 {
		return qname[i+1:]
	}
	return qname
}
