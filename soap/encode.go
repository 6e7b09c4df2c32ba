package soap

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dougn/testtrackpro/api"
)

const (
	envelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"
	encodingNS = "http://schemas.xmlsoap.org/soap/encoding/"
	xsiNS      = "http://www.w3.org/2001/XMLSchema-instance"
	xsdNS      = "http://www.w3.org/2001/XMLSchema"
	serviceNS  = "urn:TestTrack"
)

func (t *Transport) encodeRequest(op string, args []any) ([]byte, error) {
	var params []api.Param
	if opDesc, ok := t.resolver.Operation(op); ok {
		params = opDesc.Params
	}
	buf := new(bytes.Buffer)
	buf.WriteString(xml.Header)
	fmt.Fprintf(buf, `<SOAP-ENV:Envelope xmlns:SOAP-ENV=%q xmlns:SOAP-ENC=%q xmlns:xsi=%q xmlns:xsd=%q xmlns:ns1=%q>`,
		envelopeNS, encodingNS, xsiNS, xsdNS, serviceNS)
	fmt.Fprintf(buf, `<SOAP-ENV:Body SOAP-ENV:encodingStyle=%q>`, encodingNS)
	fmt.Fprintf(buf, "<ns1:%s>", op)
	for i, arg := range args {
		name := fmt.Sprintf("arg%d", i)
		if i < len(params) && params[i].Name != "" {
			name = params[i].Name
		}
		if err := t.encodeValue(buf, name, arg, ""); err != nil {
			return nil, err
		}
	}
	fmt.Fprintf(buf, "</ns1:%s>", op)
	buf.WriteString(`</SOAP-ENV:Body></SOAP-ENV:Envelope>`)
	return buf.Bytes(), nil
}

// encodeValue writes one encoded value element. tag overrides the
// xsi:type emitted for entity values; the array corrector uses it to
// re-tag polymorphic elements.
func (t *Transport) encodeValue(buf *bytes.Buffer, name string, value any, tag string) error {
	switch v := value.(type) {
	case nil:
		fmt.Fprintf(buf, `<%s xsi:nil="true"/>`, name)
	case *api.Entity:
		return t.encodeEntity(buf, name, v, tag)
	case *api.Array:
		return t.encodeArray(buf, name, v)
	case string:
		writeScalar(buf, name, "xsd:string", v)
	case bool:
		writeScalar(buf, name, "xsd:boolean", strconv.FormatBool(v))
	case int:
		writeScalar(buf, name, "xsd:long", strconv.FormatInt(int64(v), 10))
	case int64:
		writeScalar(buf, name, "xsd:long", strconv.FormatInt(v, 10))
	case float64:
		writeScalar(buf, name, "xsd:double", strconv.FormatFloat(v, 'g', -1, 64))
	case time.Time:
		writeScalar(buf, name, "xsd:dateTime", v.Format("2006-01-02T15:04:05"))
	default:
		return fmt.Errorf("soap: cannot encode %T value for %s", value, name)
	}
	return nil
}

func (t *Transport) encodeEntity(buf *bytes.Buffer, name string, e *api.Entity, tag string) error {
	if tag == "" {
		tag = e.TypeName
	}
	if tag == "" {
		return fmt.Errorf("soap: entity for %s has no type", name)
	}
	fmt.Fprintf(buf, `<%s xsi:type="ns1:%s">`, name, tag)
	for _, field := range t.fieldOrder(e) {
		if err := t.encodeValue(buf, field, e.Fields[field], ""); err != nil {
			return err
		}
	}
	fmt.Fprintf(buf, "</%s>", name)
	return nil
}

// fieldOrder yields an entity's populated fields in schema declaration
// order, with fields unknown to the schema appended alphabetically.
func (t *Transport) fieldOrder(e *api.Entity) []string {
	seen := make(map[string]bool, len(e.Fields))
	var ordered []string
	for typeName := e.TypeName; typeName != ""; {
		d, ok := t.resolver.ResolveType(typeName)
		if !ok {
			break
		}
		declared := make([]string, 0, len(d.Fields))
		for _, f := range d.Fields {
			if _, populated := e.Fields[f.Name]; populated && !seen[f.Name] {
				seen[f.Name] = true
				declared = append(declared, f.Name)
			}
		}
		// Base type fields are encoded before the derived type's own.
		ordered = append(declared, ordered...)
		typeName = d.Base
	}
	var extra []string
	for name := range e.Fields {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(ordered, extra...)
}

func (t *Transport) encodeArray(buf *bytes.Buffer, name string, a *api.Array) error {
	items, err := retagItems(a, t.resolver)
	if err != nil {
		return err
	}
	fmt.Fprintf(buf, `<%s xsi:type="SOAP-ENC:Array" SOAP-ENC:arrayType="ns1:%s[%d]">`,
		name, a.ElemType, len(items))
	for _, item := range items {
		if err := t.encodeValue(buf, "item", item.value, item.tag); err != nil {
			return err
		}
	}
	fmt.Fprintf(buf, "</%s>", name)
	return nil
}

func writeScalar(buf *bytes.Buffer, name, xsiType, text string) {
	fmt.Fprintf(buf, `<%s xsi:type="%s">`, name, xsiType)
	xml.EscapeText(buf, []byte(text))
	fmt.Fprintf(buf, "</%s>", name)
}
