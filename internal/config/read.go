package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// LocalName returns the machine-specific companion of a config file:
// harvester.json5 becomes harvester.local.json5.
func LocalName(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + ".local" + ext
}

// ReadConfig layers LocalName(name) over name. Either file may be missing,
// and an empty file counts as missing. It returns os.ErrNotExist when
// neither file has content.
func ReadConfig[T any](name string) (T, error) {
	var out T
	found := false
	for _, path := range []string{name, LocalName(name)} {
		var layer T
		ok, err := decodeFile(path, &layer)
		if err != nil {
			return out, err
		}
		if !ok {
			continue
		}
		if !found {
			out, found = layer, true
			continue
		}
		if err := mergo.Merge(&out, layer, mergo.WithOverride); err != nil {
			return out, fmt.Errorf("merge %s: %w", path, err)
		}
		slog.Debug("config layered", "path", path)
	}
	if !found {
		return out, os.ErrNotExist
	}
	return out, nil
}

// decodeFile reads json5 at path into v, reporting whether there was
// anything to read.
func decodeFile(path string, v any) (bool, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return false, nil
	}
	if err := json5.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}
