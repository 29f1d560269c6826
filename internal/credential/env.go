package credential

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// ReadEnvFile parses a dotenv file without touching the process environment.
// A missing file yields an empty map.
func ReadEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}

	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
	}

	return values, nil
}

// FromEnvironment returns the value of the first key set in lookup
func FromEnvironment(keys []string, lookup func(string) (string, bool)) string {
	for _, key := range keys {
		if value, ok := lookup(key); ok && value != "" {
			return value
		}
	}
	return ""
}

// InjectedLayer covers credentials supplied at deploy time: an explicit
// configured key, then the process environment, then the dotenv values.
func InjectedLayer(configured string, keys []string, dotenv map[string]string) Layer {
	return Layer{
		Origin: OriginInjected,
		Lookup: func() (string, error) {
			if configured != "" {
				return configured, nil
			}

			if value := FromEnvironment(keys, os.LookupEnv); value != "" {
				return value, nil
			}

			return FromEnvironment(keys, func(key string) (string, bool) {
				value, ok := dotenv[key]
				return value, ok
			}), nil
		},
	}
}
