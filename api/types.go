// Package api defines the wire-level value model shared by the client,
// the WSDL schema loader, and the SOAP transport. The TestTrack SDK is a
// dynamically typed SOAP service, so entities are modeled as typed field
// maps rather than generated structs.
package api

// RecordIDField is the identity field carried by every TestTrack entity.
const RecordIDField = "recordid"

// Entity is one dynamically typed record, e.g. a CDefect.
type Entity struct {
	// TypeName is the concrete schema type of the record. On the wire it
	// becomes the element's xsi:type tag.
	TypeName string
	// Fields holds the record's field values keyed by schema field name.
	// Values are string, bool, int64, float64, *Entity, or *Array.
	Fields map[string]any
}

// NewEntity returns an empty record of the given type. All field reads
// return zero values until fields are set.
func NewEntity(typeName string) *Entity {
	return &Entity{TypeName: typeName, Fields: make(map[string]any)}
}

// Get returns the named field value, or nil when absent.
func (e *Entity) Get(name string) any {
	if e == nil || e.Fields == nil {
		return nil
	}
	return e.Fields[name]
}

// GetString returns the named field as a string, or "" when absent or
// not a string.
func (e *Entity) GetString(name string) string {
	s, _ := e.Get(name).(string)
	return s
}

// GetInt returns the named field as an int64, or 0 when absent. String
// values are not coerced.
func (e *Entity) GetInt(name string) int64 {
	v, _ := e.Get(name).(int64)
	return v
}

// Set stores a field value, allocating the field map when needed.
func (e *Entity) Set(name string, value any) {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[name] = value
}

// RecordID returns the entity's identity, or 0 when it has none. DENIED
// placeholder entities always report 0.
func (e *Entity) RecordID() int64 {
	return e.GetInt(RecordIDField)
}

// SetRecordID assigns the entity's identity.
func (e *Entity) SetRecordID(id int64) {
	e.Set(RecordIDField, id)
}

// Array is a SOAP-encoded array value. The service declares homogeneous
// arrays of a base entity type but legitimately returns heterogeneous
// concrete subtype elements in them; see the soap package for the
// outbound re-tagging this requires.
type Array struct {
	// TypeName is the array's own schema type, e.g. "ArrayOfCEntity".
	TypeName string
	// ElemType is the declared element type, e.g. "CEntity". It stays
	// untouched even when individual items carry subtypes of it.
	ElemType string
	// Items holds the element values: *Entity, map[string]any literals
	// awaiting promotion, or scalars.
	Items []any
}

// NewArray returns an empty array of the given array and element types.
func NewArray(typeName, elemType string) *Array {
	return &Array{TypeName: typeName, ElemType: elemType}
}

// Append adds items to the array.
func (a *Array) Append(items ...any) {
	a.Items = append(a.Items, items...)
}

// Len returns the number of elements.
func (a *Array) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Items)
}

// FieldDescriptor describes one field of a schema complex type.
type FieldDescriptor struct {
	// Name is the schema field name.
	Name string
	// Type is the field's schema or XSD type name.
	Type string
}

// TypeDescriptor describes one schema type: either an entity complex
// type (possibly derived from a base type) or a SOAP array type.
type TypeDescriptor struct {
	// Name is the schema type name, e.g. "CDefect" or "ArrayOfCEvent".
	Name string
	// Base is the parent type for derived entity types, "" otherwise.
	Base string
	// Elem is the declared element type when the descriptor names a SOAP
	// array type, "" otherwise.
	Elem string
	// Fields lists the type's own fields (not inherited ones).
	Fields []FieldDescriptor
}

// IsArray reports whether the descriptor names a SOAP array type.
func (d TypeDescriptor) IsArray() bool { return d.Elem != "" }

// Param describes one positional parameter of a remote operation.
type Param struct {
	// Name is the wire element name of the parameter.
	Name string
	// Type is the parameter's schema or XSD type name.
	Type string
}

// Operation describes one remote operation as declared by the WSDL.
type Operation struct {
	// Name is the operation name, e.g. "editDefect".
	Name string
	// Params are the declared input parameters in wire order, including
	// the leading session cookie where the service declares one.
	Params []Param
	// Result is the declared result type name, "" for void operations.
	Result string
}
