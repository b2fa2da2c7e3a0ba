package postgres

import (
	"reflect"
	"sync"

	"registra/pkg/naming"
)

// ExtractDBColumns extracts all column names from struct "db" tags.
// Fields without a db tag fall back to the snake_case form of the field
// name; "-" excludes a field. Embedded structs (like entity.Business)
// are handled recursively.
//
// Called once at repository construction, so reflection overhead is
// acceptable.
func ExtractDBColumns[T any]() []string {
	var zero T
	t := reflect.TypeOf(zero)
	meta := getOrCreateTypeMetadata(t)
	return collectColumns(t, meta)
}

func collectColumns(t reflect.Type, meta *typeMetadata) []string {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	var cols []string
	for _, embIdx := range meta.embeddedIndices {
		embType := t.Field(embIdx).Type
		cols = append(cols, collectColumns(embType, getOrCreateTypeMetadata(embType))...)
	}
	for _, fi := range meta.fields {
		cols = append(cols, fi.column)
	}
	return cols
}

// fieldInfo contains pre-computed metadata about a struct field.
type fieldInfo struct {
	index  int    // Field index in the struct
	column string // Database column name
}

// typeMetadata contains cached reflection metadata for a type.
type typeMetadata struct {
	fields          []fieldInfo
	embeddedIndices []int // Indices of embedded fields for recursive processing
}

// typeCache holds metadata per type (thread-safe).
var typeCache sync.Map // map[reflect.Type]*typeMetadata

// getOrCreateTypeMetadata returns cached metadata or creates it if not exists.
func getOrCreateTypeMetadata(t reflect.Type) *typeMetadata {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if cached, ok := typeCache.Load(t); ok {
		return cached.(*typeMetadata)
	}

	meta := &typeMetadata{}

	if t.Kind() != reflect.Struct {
		typeCache.Store(t, meta)
		return meta
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Anonymous {
			meta.embeddedIndices = append(meta.embeddedIndices, i)
			continue
		}
		if !field.IsExported() {
			continue
		}

		tag := field.Tag.Get("db")
		if tag == "-" {
			continue
		}
		column := tag
		if column == "" {
			column = naming.ToSnake(field.Name)
		}

		meta.fields = append(meta.fields, fieldInfo{index: i, column: column})
	}

	typeCache.Store(t, meta)
	return meta
}

// StructToMap converts a struct to a column->value map for INSERT/UPDATE
// building. Uses cached type metadata to avoid repeated reflection.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}

	if rv.Kind() != reflect.Struct {
		return nil
	}

	meta := getOrCreateTypeMetadata(rv.Type())

	res := make(map[string]any, len(meta.fields))

	// Embedded structs first so outer fields win on collision.
	for _, embIdx := range meta.embeddedIndices {
		for k, val := range StructToMap(rv.Field(embIdx).Interface()) {
			res[k] = val
		}
	}

	for _, fi := range meta.fields {
		res[fi.column] = rv.Field(fi.index).Interface()
	}

	return res
}
