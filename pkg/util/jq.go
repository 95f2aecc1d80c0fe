package util

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	errInvalidInput = errors.New("invalid input or empty path")
	errNoWildcard   = errors.New("no matching elements found for wildcard path")
)

// Jq extracts a value from decoded JSON with a jq-like dotted path:
// "meta.error.status", "data[0].queueName", "data[].queueName". A "[]" or "[*]"
// segment collects the rest of the path from every element.
func Jq(input map[string]any, path string) (any, error) {
	if input == nil || path == "" {
		return nil, errInvalidInput
	}
	keys := strings.FieldsFunc(path, func(r rune) bool { return r == '.' })
	if len(keys) == 0 {
		return nil, errInvalidInput
	}
	return walk(input, keys)
}

func walk(current any, keys []string) (any, error) {
	for i, key := range keys {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected map at path segment: %s", key)
		}

		name, index, indexed, err := splitIndex(key)
		if err != nil {
			return nil, err
		}
		value, exists := m[name]
		if !exists {
			return nil, fmt.Errorf("key not found: %s", name)
		}
		if !indexed {
			current = value
			continue
		}

		array, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("expected array at key: %s", name)
		}
		if index == "" || index == "*" {
			return collect(array, keys[i+1:])
		}
		n, err := strconv.Atoi(index)
		if err != nil || n < 0 || n >= len(array) {
			return nil, fmt.Errorf("invalid index %s at key: %s", index, name)
		}
		current = array[n]
	}
	return current, nil
}

func splitIndex(key string) (name, index string, indexed bool, err error) {
	open := strings.IndexByte(key, '[')
	if open == -1 {
		return key, "", false, nil
	}
	if !strings.HasSuffix(key, "]") {
		return "", "", false, fmt.Errorf("malformed array syntax in key: %s", key)
	}
	return key[:open], key[open+1 : len(key)-1], true, nil
}

func collect(array []any, rest []string) (any, error) {
	if len(rest) == 0 {
		return array, nil
	}
	results := make([]any, 0, len(array))
	for _, item := range array {
		v, err := walk(item, rest)
		if err != nil {
			continue
		}
		if nested, ok := v.([]any); ok {
			results = append(results, nested...)
		} else {
			results = append(results, v)
		}
	}
	if len(results) == 0 {
		return nil, errNoWildcard
	}
	return results, nil
}
