package hostapi

import (
	"reflect"
	"strings"

	"github.com/iancoleman/strcase"
)

// Methods that are part of common Go interfaces rather than of the API.
var methodBlacklist = []string{
	"String",
	"Error",
	"GoString",
	"MarshalJSON",
	"MarshalText",
	"UnmarshalJSON",
	"UnmarshalText",
}

func typeShouldIgnoreField(field reflect.StructField) bool {
	if field.PkgPath != "" || field.Tag.Get("alias") == "-" {
		// Unexported or ignored field
		return true
	} else if field.Tag.Get("json") == "-" || field.Type.Kind() == reflect.Func {
		return true
	}
	return false
}

func typeShouldIgnoreMethod(method reflect.Method) bool {
	if method.PkgPath != "" {
		return true
	}
	for _, badName := range methodBlacklist {
		if method.Name == badName {
			return true
		}
	}
	return false
}

func typeMethodName(method reflect.Method) string {
	return strcase.ToSnake(method.Name)
}

func typeFieldName(field reflect.StructField) string {
	if tag := field.Tag.Get("alias"); tag != "" {
		return tag
	}
	if tag := field.Tag.Get("json"); len(tag) > 0 {
		if name := strings.Split(tag, ",")[0]; name != "" {
			return name
		}
	}
	return strcase.ToSnake(field.Name)
}
