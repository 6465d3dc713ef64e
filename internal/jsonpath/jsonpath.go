// Package jsonpath converts dotted/bracketed field paths ("items[2].price")
// into ordered segments and applies them to decoded JSON documents.
package jsonpath

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrEmptyPath is returned when a path has no segments.
var ErrEmptyPath = errors.New("empty path")

// Split converts a path like "items[2].price" into ["items", "2", "price"].
// Brackets are treated as separators, and empty segments are dropped.
func Split(path string) []string {
	normalized := strings.NewReplacer("[", ".", "]", ".").Replace(path)
	parts := strings.Split(normalized, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Join returns the normalized dotted form of segments.
func Join(segments []string) string {
	return strings.Join(segments, ".")
}

// Set writes value at segments, creating intermediate objects as needed.
// Numeric segments index into arrays; an index past the end appends.
func Set(doc map[string]any, segments []string, value any) (map[string]any, error) {
	if len(segments) == 0 {
		return doc, ErrEmptyPath
	}
	if doc == nil {
		doc = map[string]any{}
	}
	updated, err := setIn(doc, segments, value)
	if err != nil {
		return doc, err
	}
	out, ok := updated.(map[string]any)
	if !ok {
		return doc, fmt.Errorf("set %s: root is not an object", Join(segments))
	}
	return out, nil
}

func setIn(node any, segments []string, value any) (any, error) {
	key := segments[0]
	last := len(segments) == 1

	switch container := node.(type) {
	case map[string]any:
		if last {
			container[key] = value
			return container, nil
		}
		child, ok := container[key]
		if !isContainer(child) || !ok {
			child = map[string]any{}
		}
		updated, err := setIn(child, segments[1:], value)
		if err != nil {
			return nil, err
		}
		container[key] = updated
		return container, nil
	case []any:
		idx, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("segment %q is not an array index", key)
		}
		if idx < 0 {
			idx += len(container)
		}
		if idx < 0 || idx >= len(container) {
			if !last {
				return nil, fmt.Errorf("array index %q out of range", key)
			}
			return append(container, value), nil
		}
		if last {
			container[idx] = value
			return container, nil
		}
		child := container[idx]
		if !isContainer(child) {
			child = map[string]any{}
		}
		updated, err := setIn(child, segments[1:], value)
		if err != nil {
			return nil, err
		}
		container[idx] = updated
		return container, nil
	default:
		return nil, fmt.Errorf("cannot descend into %T at %q", node, key)
	}
}

// Delete removes the value at segments. Missing paths are a no-op.
func Delete(doc map[string]any, segments []string) (map[string]any, bool) {
	if len(segments) == 0 || doc == nil {
		return doc, false
	}
	updated, removed := deleteIn(doc, segments)
	out, ok := updated.(map[string]any)
	if !ok {
		return doc, false
	}
	return out, removed
}

func deleteIn(node any, segments []string) (any, bool) {
	key := segments[0]
	last := len(segments) == 1

	switch container := node.(type) {
	case map[string]any:
		child, ok := container[key]
		if !ok {
			return container, false
		}
		if last {
			delete(container, key)
			return container, true
		}
		updated, removed := deleteIn(child, segments[1:])
		container[key] = updated
		return container, removed
	case []any:
		idx, err := strconv.Atoi(key)
		if err != nil {
			return container, false
		}
		if idx < 0 {
			idx += len(container)
		}
		if idx < 0 || idx >= len(container) {
			return container, false
		}
		if last {
			out := make([]any, 0, len(container)-1)
			out = append(out, container[:idx]...)
			out = append(out, container[idx+1:]...)
			return out, true
		}
		updated, removed := deleteIn(container[idx], segments[1:])
		container[idx] = updated
		return container, removed
	default:
		return node, false
	}
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	default:
		return false
	}
}

// Leaf is a scalar value and its dotted path.
type Leaf struct {
	Path  string
	Value any
}

// Flatten lists every scalar leaf in doc, ordered by path.
func Flatten(doc map[string]any) []Leaf {
	var out []Leaf
	flatten("", doc, &out)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func flatten(prefix string, node any, out *[]Leaf) {
	switch v := node.(type) {
	case map[string]any:
		if len(v) == 0 && prefix != "" {
			*out = append(*out, Leaf{Path: prefix, Value: v})
			return
		}
		for k, child := range v {
			flatten(joinPrefix(prefix, k), child, out)
		}
	case []any:
		if len(v) == 0 {
			*out = append(*out, Leaf{Path: prefix, Value: v})
			return
		}
		for i, child := range v {
			flatten(joinPrefix(prefix, strconv.Itoa(i)), child, out)
		}
	default:
		*out = append(*out, Leaf{Path: prefix, Value: v})
	}
}

func joinPrefix(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
