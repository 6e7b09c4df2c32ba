package soap

import (
	"github.com/dougn/testtrackpro/api"
)

// taggedItem pairs an array element with the wire type tag it must be
// encoded under.
type taggedItem struct {
	value any
	tag   string
}

// retagItems prepares an array's elements for encoding. The service
// declares homogeneous arrays of a base entity type but returns
// heterogeneous concrete subtype elements in them, so a naive encoder
// that trusts the declared element type for every element produces
// requests the service rejects. Each entity element is re-tagged with
// its own resolved concrete type; field-map literals are promoted to
// typed entities of the declared element type. The array's declared
// type itself is left untouched.
//
// A concrete type that cannot be resolved against the schema is fatal:
// guessing the wire type would silently corrupt the request.
func retagItems(a *api.Array, resolver Resolver) ([]taggedItem, error) {
	declared, ok := resolver.ResolveType(a.ElemType)
	if !ok {
		return nil, &api.TypeResolutionError{TypeName: a.ElemType}
	}
	items := make([]taggedItem, 0, len(a.Items))
	for _, raw := range a.Items {
		switch v := raw.(type) {
		case *api.Entity:
			tag := declared.Name
			if v.TypeName != "" && v.TypeName != declared.Name {
				concrete, ok := resolver.ResolveType(v.TypeName)
				if !ok {
					return nil, &api.TypeResolutionError{TypeName: v.TypeName}
				}
				tag = concrete.Name
			}
			items = append(items, taggedItem{value: v, tag: tag})
		case map[string]any:
			promoted := api.NewEntity(declared.Name)
			for name, value := range v {
				promoted.Set(name, value)
			}
			items = append(items, taggedItem{value: promoted, tag: declared.Name})
		default:
			// Scalars and nested arrays encode under their own kind.
			items = append(items, taggedItem{value: raw})
		}
	}
	return items, nil
}
