// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
)

// Fixture returns the raw bytes of testdata/<name>.
func Fixture(name string) ([]byte, error) {
	_, currentFile, _, _ := runtime.Caller(0)
	return os.ReadFile(filepath.Join(filepath.Dir(currentFile), "testdata", name))
}

// LoadJSON reads and unmarshals a fixture. If target is provided, it also unmarshals into target.
func LoadJSON(name string, target ...any) (map[string]any, error) {
	data, err := Fixture(name)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	if len(target) > 0 && target[0] != nil {
		if err := json.Unmarshal(data, target[0]); err != nil {
			return nil, err
		}
	}

	return result, nil
}
