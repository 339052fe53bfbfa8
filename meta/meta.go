// Package meta models attribute-driven registration as a stream of
// (tag, params, target) tuples — the core takes no position on any
// language-level macro or attribute system, only on the stream those
// systems would emit. A Builder accumulates tuples produced by scanning
// source (however that scan is performed) and replays them against
// whatever registries care about a given tag.
package meta

import (
	"errors"
	"reflect"

	"github.com/corehostfw/corehost/typehierarchy"
)

// Tuple is one attribute-driven declaration: Tag names the kind of
// declaration ("route", "typetag", "ability", ...), Params carries
// tag-specific data, and Target identifies what the declaration applies to
// (a type name, a field name, a service id).
type Tuple struct {
	Tag    string
	Params map[string]any
	Target string
}

// Builder accumulates Tuples. It is copy-on-write: Add never mutates a
// Builder another goroutine might be reading, it returns a new one.
type Builder struct {
	tuples []Tuple
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Add returns a new Builder with tuple appended, leaving b unmodified.
func (b *Builder) Add(tuple Tuple) *Builder {
	next := make([]Tuple, len(b.tuples), len(b.tuples)+1)
	copy(next, b.tuples)
	next = append(next, tuple)
	return &Builder{tuples: next}
}

// All returns every accumulated tuple, in the order Add was called.
func (b *Builder) All() []Tuple {
	out := make([]Tuple, len(b.tuples))
	copy(out, b.tuples)
	return out
}

// ForTag returns only the tuples whose Tag matches tag, preserving order.
func (b *Builder) ForTag(tag string) []Tuple {
	var out []Tuple
	for _, t := range b.tuples {
		if t.Tag == tag {
			out = append(out, t)
		}
	}
	return out
}

// Param reads a typed parameter from a Tuple, attempting a reflect-based
// conversion when the stored value isn't already assignable to T (params
// routinely arrive as whatever a config decoder or scanner produced, e.g.
// float64 where an int is wanted).
func Param[T any](t Tuple, key string) (T, error) {
	var zero T
	if t.Params == nil {
		return zero, errors.New("tuple has no params")
	}
	value, ok := t.Params[key]
	if !ok {
		return zero, errors.New("param key not found: " + key)
	}
	if result, ok := value.(T); ok {
		return result, nil
	}

	sourceValue := reflect.ValueOf(value)
	targetType := reflect.TypeOf((*T)(nil)).Elem()
	if sourceValue.IsValid() && sourceValue.Type().ConvertibleTo(targetType) {
		return sourceValue.Convert(targetType).Interface().(T), nil
	}
	return zero, errors.New("param " + key + " cannot be converted to the requested type")
}

// ApplyTypeTags replays every "typetag" tuple accumulated in b against reg:
// each tuple's Target becomes a declared type tag, with its "parent"
// (string) and "interfaces" ([]string) params supplying the Declaration
// registered via reg.Declare. This is the concrete registry SPEC_FULL.md's
// metadata tuple stream describes replaying against "whatever registries
// care about a given tag" — the type hierarchy walker is that registry for
// the "typetag" tag.
func ApplyTypeTags(b *Builder, reg *typehierarchy.Registry) error {
	for _, t := range b.ForTag("typetag") {
		if t.Target == "" {
			return errors.New("typetag tuple missing a target")
		}
		parent, _ := Param[string](t, "parent")
		reg.Declare(t.Target, typehierarchy.Declaration{
			Parent:     parent,
			Interfaces: stringSliceParam(t, "interfaces"),
		})
	}
	return nil
}

// stringSliceParam reads a []string param, tolerating the []any shape a
// generic decoder (JSON, TOML) produces instead of a literal []string.
func stringSliceParam(t Tuple, key string) []string {
	raw, ok := t.Params[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
