// Package enums defines the closed vocabularies of the job record: job type,
// execution mode, lifecycle state, release state, resource origin and the
// checkpoint failure action, plus a few supporting value sets.
//
// Persisted enums are integer codes. Every lookup is total over the declared
// set and rejects anything else with ErrUnknownEnumValue; there is no
// fallback value.
package enums

import (
	"fmt"
	"strings"
)

// table backs the lookups of a single enum type.
type table[T ~int] struct {
	typeName string
	values   []T
	names    map[T]string
	byName   map[string]T
}

func newTable[T ~int](typeName string, entries ...entry[T]) table[T] {
	t := table[T]{
		typeName: typeName,
		values:   make([]T, 0, len(entries)),
		names:    make(map[T]string, len(entries)),
		byName:   make(map[string]T, len(entries)),
	}
	for _, e := range entries {
		if _, dup := t.names[e.value]; dup {
			panic(fmt.Sprintf("enums: duplicate %s code %d", typeName, int(e.value)))
		}
		t.values = append(t.values, e.value)
		t.names[e.value] = e.name
		t.byName[strings.ToUpper(e.name)] = e.value
	}
	return t
}

type entry[T ~int] struct {
	value T
	name  string
}

func (t table[T]) of(code int) (T, error) {
	v := T(code)
	if _, ok := t.names[v]; !ok {
		return v, &UnknownValueError{Type: t.typeName, Code: code}
	}
	return v, nil
}

func (t table[T]) parse(name string) (T, error) {
	v, ok := t.byName[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return 0, &UnknownValueError{Type: t.typeName, Name: name}
	}
	return v, nil
}

func (t table[T]) valid(v T) bool {
	_, ok := t.names[v]
	return ok
}

func (t table[T]) name(v T) string {
	if n, ok := t.names[v]; ok {
		return n
	}
	return fmt.Sprintf("%s(%d)", t.typeName, int(v))
}

func (t table[T]) all() []T {
	out := make([]T, len(t.values))
	copy(out, t.values)
	return out
}
