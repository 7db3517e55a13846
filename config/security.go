package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Limits applied to configuration input before it is decoded.
const (
	maxConfigSize = 1 << 20
	maxNesting    = 32
	maxEnvVarLen  = 4096
	maxPathLen    = 4096
)

// format is the serialization of a configuration layer, chosen by extension.
type format int

const (
	formatJSON format = iota
	formatYAML
)

func formatOf(path string) (format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return formatJSON, nil
	case ".yaml", ".yml":
		return formatYAML, nil
	default:
		return 0, fmt.Errorf("config layer %q: extension %q is not .json, .yaml or .yml", path, ext)
	}
}

// resolveLayerPath checks a layer path and returns its format. Relative
// paths must stay below the working directory; absolute paths must not climb.
func resolveLayerPath(path string) (format, error) {
	switch {
	case path == "":
		return 0, errors.New("config layer path is empty")
	case len(path) > maxPathLen:
		return 0, fmt.Errorf("config layer path exceeds %d bytes", maxPathLen)
	}

	if filepath.IsAbs(path) {
		if strings.Contains(filepath.ToSlash(path), "/../") {
			return 0, fmt.Errorf("config layer %q climbs out of its directory", path)
		}
	} else {
		clean := filepath.Clean(path)
		if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return 0, fmt.Errorf("config layer %q escapes the working directory", path)
		}
	}
	return formatOf(path)
}

// readLayer loads one layer file, refusing anything that is not a regular
// file or is larger than maxConfigSize.
func readLayer(path string) ([]byte, format, error) {
	f, err := resolveLayerPath(path)
	if err != nil {
		return nil, 0, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, 0, err
	}
	if !info.Mode().IsRegular() {
		return nil, 0, fmt.Errorf("config layer %q is not a regular file", path)
	}

	data, err := io.ReadAll(io.LimitReader(file, maxConfigSize+1))
	if err != nil {
		return nil, 0, err
	}
	if len(data) > maxConfigSize {
		return nil, 0, fmt.Errorf("config layer %q is larger than %d bytes", path, maxConfigSize)
	}
	return data, f, nil
}

// persistLayer writes data owner-readable only.
func persistLayer(path string, data []byte) error {
	if _, err := resolveLayerPath(path); err != nil {
		return err
	}
	if len(data) > maxConfigSize {
		return fmt.Errorf("encoded config is larger than %d bytes", maxConfigSize)
	}
	return os.WriteFile(path, data, 0o600)
}

func checkEnvValue(key, value string) error {
	if len(value) > maxEnvVarLen {
		return fmt.Errorf("%s is longer than %d bytes", key, maxEnvVarLen)
	}
	if bytes.IndexByte([]byte(value), 0) >= 0 {
		return fmt.Errorf("%s contains a NUL byte", key)
	}
	return nil
}

// validateNesting bounds the bracket depth of a JSON document before it is
// decoded. Brackets inside strings do not count.
func validateNesting(data []byte) error {
	var depth int
	for i := 0; i < len(data); i++ {
		switch data[i] {
		case '"':
			// Skip to the closing quote, honouring escapes.
			for i++; i < len(data) && data[i] != '"'; i++ {
				if data[i] == '\\' {
					i++
				}
			}
		case '{', '[':
			if depth++; depth > maxNesting {
				return fmt.Errorf("config nests deeper than %d levels", maxNesting)
			}
		case '}', ']':
			if depth--; depth < 0 {
				return errors.New("config has a closing bracket without an opener")
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("config ends with %d unclosed brackets", depth)
	}
	return nil
}
