package metadata

import (
	"reflect"
	"strings"

	"github.com/shopspring/decimal"

	"txcalc/internal/core/types"
	"txcalc/internal/domain/transaction"
)

var (
	decimalType = reflect.TypeOf(decimal.Decimal{})
	checkType   = reflect.TypeOf(types.Check(false))
	rowRefType  = reflect.TypeOf(types.RowRef(0))
	rateMapType = reflect.TypeOf(types.RateMap(nil))
)

// inspect walks the JSON fields of a document struct. Slices of structs
// become table parts, everything else a header field. Field metadata from
// the transaction field table marks what users may edit.
func inspect(v any) ([]FieldDef, []TablePartDef) {
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	var fields []FieldDef
	var parts []TablePartDef
	inspectStruct(t, transaction.TableHeader, &fields, &parts)
	return fields, parts
}

func inspectStruct(t reflect.Type, table transaction.Table, fields *[]FieldDef, parts *[]TablePartDef) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" {
			continue
		}
		if field.Anonymous {
			inspectStruct(field.Type, table, fields, parts)
			continue
		}

		name := jsonName(field)
		if name == "" {
			continue
		}

		if field.Type.Kind() == reflect.Slice && field.Type.Elem().Kind() == reflect.Struct {
			var cols []FieldDef
			inspectStruct(field.Type.Elem(), transaction.Table(name), &cols, parts)
			*parts = append(*parts, TablePartDef{
				Name:    name,
				Label:   label(name),
				Columns: cols,
			})
			continue
		}

		f := transaction.NewField(table, name)
		def := FieldDef{
			Name:          name,
			Label:         label(name),
			Type:          fieldType(field.Type),
			ReadOnly:      !f.Known(),
			AllowOnSubmit: f.AllowOnSubmit(),
		}
		if def.Type == TypeString && (strings.HasSuffix(name, "_date") || name == "due_date") {
			def.Type = TypeDate
		}
		*fields = append(*fields, def)
	}
}

func fieldType(t reflect.Type) FieldType {
	switch t {
	case decimalType:
		return TypeNumber
	case checkType:
		return TypeBoolean
	case rowRefType:
		return TypeReference
	case rateMapType:
		return TypeJSON
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return TypeInteger
	case reflect.Bool:
		return TypeBoolean
	case reflect.Map:
		return TypeJSON
	default:
		return TypeString
	}
}

func jsonName(field reflect.StructField) string {
	tag, ok := field.Tag.Lookup("json")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "-" {
		return ""
	}
	return name
}

// label turns a snake_case name into "Snake Case".
func label(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		switch w {
		case "uom", "plc":
			words[i] = strings.ToUpper(w)
		case "":
		default:
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
