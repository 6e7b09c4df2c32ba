package soap

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/dougn/testtrackpro/api"
)

// xmlNode is a generic element tree; RPC/encoded payloads are shaped by
// runtime xsi:type tags, not by a static document schema.
type xmlNode struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Nodes   []xmlNode  `xml:",any"`
	Text    string     `xml:",chardata"`
}

func (n *xmlNode) attr(local string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func (n *xmlNode) child(local string) *xmlNode {
	for i := range n.Nodes {
		if n.Nodes[i].XMLName.Local == local {
			return &n.Nodes[i]
		}
	}
	return nil
}

func (t *Transport) decodeResponse(op string, body []byte) (any, error) {
	var env xmlNode
	if err := xml.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("soap: parse response for %s: %w", op, err)
	}
	bodyNode := env.child("Body")
	if bodyNode == nil {
		return nil, fmt.Errorf("soap: response for %s has no body", op)
	}
	if fault := bodyNode.child("Fault"); fault != nil {
		return nil, faultFrom(op, fault)
	}
	if len(bodyNode.Nodes) == 0 {
		return nil, nil
	}
	respNode := &bodyNode.Nodes[0]
	if len(respNode.Nodes) == 0 {
		return nil, nil
	}
	resultType := ""
	if opDesc, ok := t.resolver.Operation(op); ok {
		resultType = opDesc.Result
	}
	return t.decodeValue(&respNode.Nodes[0], resultType)
}

// faultFrom maps a SOAP fault element to an api.Fault. The service puts
// its machine-readable code in the fault detail text.
func faultFrom(op string, fault *xmlNode) *api.Fault {
	f := &api.Fault{Op: op}
	if fs := fault.child("faultstring"); fs != nil {
		f.Message = strings.TrimSpace(fs.Text)
	}
	if detail := fault.child("detail"); detail != nil {
		f.Code = strings.TrimSpace(detail.Text)
	}
	return f
}

func (t *Transport) decodeValue(n *xmlNode, hint string) (any, error) {
	if n.attr("nil") == "true" {
		return nil, nil
	}
	xsiType := localName(n.attr("type"))
	if arrayType := n.attr("arrayType"); arrayType != "" || strings.EqualFold(xsiType, "Array") {
		return t.decodeArray(n, localName(trimArraySuffix(n.attr("arrayType"))), hint)
	}
	effective := xsiType
	if effective == "" {
		effective = hint
	}
	if d, ok := t.resolver.ResolveType(effective); ok && d.IsArray() {
		return t.decodeArray(n, d.Elem, effective)
	}
	switch effective {
	case "string", "date", "dateTime", "time", "anyURI":
		return n.Text, nil
	case "int", "long", "short", "integer", "unsignedLong", "unsignedInt":
		v, err := strconv.ParseInt(strings.TrimSpace(n.Text), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("soap: element %s: bad %s value %q", n.XMLName.Local, effective, n.Text)
		}
		return v, nil
	case "boolean":
		text := strings.TrimSpace(n.Text)
		return text == "true" || text == "1", nil
	case "double", "float", "decimal":
		v, err := strconv.ParseFloat(strings.TrimSpace(n.Text), 64)
		if err != nil {
			return nil, fmt.Errorf("soap: element %s: bad %s value %q", n.XMLName.Local, effective, n.Text)
		}
		return v, nil
	}
	if len(n.Nodes) > 0 || effective != "" {
		return t.decodeEntity(n, effective)
	}
	return n.Text, nil
}

func (t *Transport) decodeArray(n *xmlNode, elemType, typeName string) (any, error) {
	if elemType == "" {
		if d, ok := t.resolver.ResolveType(typeName); ok {
			elemType = d.Elem
		}
	}
	if typeName == "" && elemType != "" {
		typeName = "ArrayOf" + elemType
	}
	arr := api.NewArray(typeName, elemType)
	for i := range n.Nodes {
		item, err := t.decodeValue(&n.Nodes[i], elemType)
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
	return arr, nil
}

func (t *Transport) decodeEntity(n *xmlNode, typeName string) (any, error) {
	e := api.NewEntity(typeName)
	for i := range n.Nodes {
		field := &n.Nodes[i]
		value, err := t.decodeValue(field, t.fieldType(typeName, field.XMLName.Local))
		if err != nil {
			return nil, err
		}
		e.Set(field.XMLName.Local, value)
	}
	return e, nil
}

// fieldType resolves a field's declared type, walking the base-type
// chain. "" when the schema does not know the field.
func (t *Transport) fieldType(typeName, fieldName string) string {
	for typeName != "" {
		d, ok := t.resolver.ResolveType(typeName)
		if !ok {
			return ""
		}
		for _, f := range d.Fields {
			if f.Name == fieldName {
				return f.Type
			}
		}
		typeName = d.Base
	}
	return ""
}

func trimArraySuffix(s string) string {
	if i := strings.IndexByte(s, '['); i >= 0 {
		return s[:i]
	}
	return s
}

func localName(qname string) string {
	if i := strings.LastIndexByte(qname, ':'); i >= 0 {
		return qname[i+1:]
	}
	return qname
}
