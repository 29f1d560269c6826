// Package credential resolves the API key used for transcription from an
// ordered list of sources: deploy-time injection, a saved key, and explicit
// user entry. The first source with a non-blank value wins.
package credential

import (
	"errors"
	"fmt"
	"strings"
)

// Origin identifies which source supplied a credential
type Origin string

const (
	OriginInjected Origin = "injected"
	OriginSaved    Origin = "saved"
	OriginEntered  Origin = "entered"
)

// ErrMissing is returned when no layer yields a credential
var ErrMissing = errors.New("no API key available")

// Credential is a resolved API key and where it came from
type Credential struct {
	Value  string
	Origin Origin
}

// Layer is one source in the lookup order. Lookup is only called when
// every earlier layer came up empty.
type Layer struct {
	Origin Origin
	Lookup func() (string, error)
}

// Static returns a layer with a fixed value
func Static(origin Origin, value string) Layer {
	return Layer{
		Origin: origin,
		Lookup: func() (string, error) { return value, nil },
	}
}

// Resolve walks layers in order and returns the first non-blank value
func Resolve(layers ...Layer) (Credential, error) {
	for _, layer := range layers {
		if layer.Lookup == nil {
			continue
		}

		value, err := layer.Lookup()
		if err != nil {
			return Credential{}, fmt.Errorf("failed to read %s credential: %w", layer.Origin, err)
		}

		if value = strings.TrimSpace(value); value != "" {
			return Credential{Value: value, Origin: layer.Origin}, nil
		}
	}

	return Credential{}, ErrMissing
}

// Mask hides all but the last four characters of a key
func Mask(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	return strings.Repeat("*", 4) + value[len(value)-4:]
}
