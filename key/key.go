// Package key canonicalizes message type references into stable routing keys.
//
// A Key identifies a message type to the routing core. Keys come from three
// input categories: a type token (via Of), a live instance (via For), or a
// textual name (via Named). All three agree for the same logical type, and
// pointer indirection is erased, so registering a handler against a type and
// dispatching a pointer to an instance of that type land on the same key.
package key

import (
	"fmt"
	"reflect"
	"strings"
)

// Key is the canonical identifier for a message type.
type Key string

// String returns the key as a plain string.
func (k Key) String() string {
	return string(k)
}

// Resolver converts a message type reference into a canonical Key.
// Implementations must be deterministic: the same input category always
// yields the same key, and a type token, a live instance, and a pointer to
// an instance of one type must all agree.
type Resolver interface {
	Resolve(v any) Key
}

// TypeResolver is the default Resolver. The zero value is ready to use.
//
// Resolution rules, in order:
//   - nil resolves to the empty Key
//   - a Key passes through unchanged
//   - a string resolves via Named
//   - a reflect.Type resolves to its qualified type name
//   - anything else resolves via For on its dynamic type
type TypeResolver struct{}

// Resolve implements Resolver.
func (TypeResolver) Resolve(v any) Key {
	switch t := v.(type) {
	case nil:
		return ""
	case Key:
		return t
	case string:
		return Named(t)
	case reflect.Type:
		return typeKey(t)
	default:
		return For(v)
	}
}

// Of returns the Key for a type token. Of[T]() agrees with For(T{}) and
// For(&T{}).
func Of[T any]() Key {
	return typeKey(reflect.TypeOf((*T)(nil)).Elem())
}

// For returns the Key for a live instance, erasing pointer indirection so
// *T and T resolve identically.
func For(v any) Key {
	if v == nil {
		return ""
	}
	name := fmt.Sprintf("%T", v)
	return Key(strings.TrimLeft(name, "*"))
}

// Named returns the Key for a textual type name.
func Named(s string) Key {
	return Key(strings.TrimLeft(s, "*"))
}

// typeKey names a reflect.Type, dereferencing pointer types first.
func typeKey(t reflect.Type) Key {
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return Key(t.String())
}
