// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads provider API keys from a directory of plain-text
// files. The filename is the key name and the trimmed file contents are the
// value.
//
// Recognized key files: anthropic-api-key, openai-api-key.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/lecture-engine/pkg/types"
	"go.uber.org/zap"
)

// DefaultDir is where the CLI looks for key files.
const DefaultDir = ".secrets"

const (
	AnthropicKey = "anthropic-api-key"
	OpenAIKey    = "openai-api-key"
)

// Store maps key file names to their values.
type Store map[string]string

// Load reads all regular, non-hidden files in dir. A missing directory is
// not an error and yields an empty Store. Unreadable files are logged and
// skipped.
func Load(dir string, log *zap.Logger) (Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Store{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	store := make(Store)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Warn("could not read secret", zap.String("name", name), zap.Error(err))
			continue
		}

		if value := strings.TrimSpace(string(data)); value != "" {
			store[name] = value
		}
	}
	return store, nil
}

// KeyFor returns the API key for provider, or "" when none is stored.
func (s Store) KeyFor(provider types.Provider) string {
	switch provider {
	case types.ProviderAnthropic:
		return s[AnthropicKey]
	case types.ProviderOpenAI:
		return s[OpenAIKey]
	}
	return ""
}
