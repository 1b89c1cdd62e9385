package attrs

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Limits applied to flattened attribute paths.
const (
	MaxPathDepth  = 10
	MaxArrayIndex = 100
)

var (
	ErrInvalidPath   = errors.New("invalid attribute path")
	ErrPathTooDeep   = errors.New("attribute path too deep")
	ErrIndexTooLarge = errors.New("attribute path index too large")
	ErrPathConflict  = errors.New("attribute path conflicts with existing value")
)

// hole fills array positions that no flattened key has written.
type hole struct{}

// SetField writes value at a dot separated path under target and returns the
// (possibly new) root. Numeric segments address array elements. Intermediate
// arrays and objects are created as needed.
func SetField(target any, path string, value any) (any, error) {
	segments := strings.Split(path, ".")
	if len(segments) > MaxPathDepth {
		return target, fmt.Errorf("%w: %q has %d segments (max %d)", ErrPathTooDeep, path, len(segments), MaxPathDepth)
	}
	for _, segment := range segments {
		if segment == "" {
			return target, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}

	root, err := setPath(target, segments, value)
	if err != nil {
		return target, fmt.Errorf("set %q: %w", path, err)
	}
	return root, nil
}

func setPath(node any, segments []string, value any) (any, error) {
	if len(segments) == 0 {
		return value, nil
	}
	segment := segments[0]

	if index, ok := arrayIndex(segment); ok {
		if index > MaxArrayIndex {
			return nil, fmt.Errorf("%w: %d (max %d)", ErrIndexTooLarge, index, MaxArrayIndex)
		}
		var items []any
		switch typed := node.(type) {
		case nil, hole:
		case []any:
			items = typed
		default:
			return nil, fmt.Errorf("%w: index %d on %T", ErrPathConflict, index, node)
		}
		for len(items) <= index {
			items = append(items, hole{})
		}
		child, err := setPath(items[index], segments[1:], value)
		if err != nil {
			return nil, err
		}
		items[index] = child
		return items, nil
	}

	var fields map[string]any
	switch typed := node.(type) {
	case nil, hole:
		fields = make(map[string]any)
	case map[string]any:
		fields = typed
	default:
		return nil, fmt.Errorf("%w: field %q on %T", ErrPathConflict, segment, node)
	}
	child, err := setPath(fields[segment], segments[1:], value)
	if err != nil {
		return nil, err
	}
	fields[segment] = child
	return fields, nil
}

func arrayIndex(segment string) (int, bool) {
	for _, r := range segment {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	index, err := strconv.Atoi(segment)
	if err != nil {
		// Too many digits for an int is still an index, just an oversized one.
		return MaxArrayIndex + 1, true
	}
	return index, true
}

// Unflatten rebuilds a nested value from every key in bag. Keys are applied in
// sorted order so the result does not depend on map iteration.
func Unflatten(bag Bag) (any, error) {
	if len(bag) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(bag))
	for key := range bag {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var root any
	for _, key := range keys {
		next, err := SetField(root, key, bag[key])
		if err != nil {
			return nil, err
		}
		root = next
	}
	return root, nil
}

// ValidateHoles reports whether value is free of unfilled array positions.
func ValidateHoles(value any) bool {
	switch typed := value.(type) {
	case hole:
		return false
	case []any:
		for _, item := range typed {
			if !ValidateHoles(item) {
				return false
			}
		}
	case map[string]any:
		for _, item := range typed {
			if !ValidateHoles(item) {
				return false
			}
		}
	}
	return true
}
