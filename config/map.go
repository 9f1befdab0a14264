// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"fmt"
	"strings"
)

// Map is an ordinary map[string]any which is both a [Source] and a [Store].
type Map map[string]any

// Apply implements the [Source] interface. It recursively walks the
// map and sets every leaf value on the store.
func (m Map) Apply(store Store) error {
	return walkMap(m, store, nil)
}

func walkMap(m map[string]any, store Store, key []string) error {
	for k, v := range m {
		path := append(append([]string(nil), key...), k)

		switch x := v.(type) {
		case map[string]any:
			err := walkMap(x, store, path)
			if err != nil {
				return err
			}
		case Map:
			err := walkMap(x, store, path)
			if err != nil {
				return err
			}
		default:
			err := store.Set(path, x)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// EmptyKeyError occurs when a value is set without a key.
type EmptyKeyError struct {
	Value any
}

// Error implements the error interface.
func (e EmptyKeyError) Error() string {
	return fmt.Sprintf("attempted to set value to an empty key: %v", e.Value)
}

// UnexpectedKeyValueTypeError represents the situation when
// a user tries nesting a key below a value which is not a map.
type UnexpectedKeyValueTypeError struct {
	Key          string
	ExpectedType string
}

// Error implements the error interface.
func (e UnexpectedKeyValueTypeError) Error() string {
	return fmt.Sprintf("expected key value to be a %s: %s", e.ExpectedType, e.Key)
}

// Set implements the [Store] interface.
func (m Map) Set(key []string, v any) error {
	if len(key) == 0 {
		return EmptyKeyError{Value: v}
	}

	cur := map[string]any(m)
	for i, name := range key[:len(key)-1] {
		old, ok := cur[name]
		if !ok {
			next := make(map[string]any)
			cur[name] = next
			cur = next
			continue
		}

		next, ok := old.(map[string]any)
		if !ok {
			return UnexpectedKeyValueTypeError{
				Key:          strings.Join(key[:i+1], "."),
				ExpectedType: "map[string]any",
			}
		}
		cur = next
	}
	cur[key[len(key)-1]] = v
	return nil
}
