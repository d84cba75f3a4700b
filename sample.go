package freshet

import (
	"fmt"
	"reflect"
)

// Samples cross process boundaries as raw bytes, so a sample type
// must have a fixed size and contain no indirections: a pointer
// copied into another process's address space is garbage.
//
// sampleSize validates T and returns its in-memory size. A violating
// type is a programmer error, caught the moment an endpoint is
// constructed.
func sampleSize[T any]() uint64 {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		panic("BUG: sample type must be concrete, not an interface")
	}
	if path := indirectionIn(t, t.String()); path != "" {
		panic(fmt.Sprintf(
			"BUG: sample type %s is not shareable: %s cannot cross a process boundary",
			t, path,
		))
	}
	if t.Size() == 0 {
		panic(fmt.Sprintf("BUG: sample type %s has zero size", t))
	}
	return uint64(t.Size())
}

// indirectionIn walks t and returns the path to the first field that
// would embed a process-local reference, or "" if t is plain data.
func indirectionIn(t reflect.Type, path string) string {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return ""

	case reflect.Array:
		return indirectionIn(t.Elem(), path+"[...]")

	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if p := indirectionIn(f.Type, path+"."+f.Name); p != "" {
				return p
			}
		}
		return ""

	default:
		// Pointers, slices, maps, strings, chans, funcs,
		// interfaces, unsafe pointers.
		return fmt.Sprintf("%s (%s)", path, t.Kind())
	}
}
