// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pdiddy/lecture-engine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
		want  Store
	}{
		{
			name: "reads key files and trims whitespace",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, AnthropicKey, "  sk-ant-abc  \n")
				writeFile(t, dir, OpenAIKey, "sk-xyz")
				return dir
			},
			want: Store{AnthropicKey: "sk-ant-abc", OpenAIKey: "sk-xyz"},
		},
		{
			name: "missing directory yields empty store",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "does-not-exist")
			},
			want: Store{},
		},
		{
			name: "skips empty files, dotfiles and directories",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, AnthropicKey, "valid")
				writeFile(t, dir, "empty-key", "")
				writeFile(t, dir, "whitespace-only", "  \n\t ")
				writeFile(t, dir, ".hidden", "secret")
				require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))
				return dir
			},
			want: Store{AnthropicKey: "valid"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.setup(t), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKeyFor(t *testing.T) {
	s := Store{AnthropicKey: "a", OpenAIKey: "o"}
	assert.Equal(t, "a", s.KeyFor(types.ProviderAnthropic))
	assert.Equal(t, "o", s.KeyFor(types.ProviderOpenAI))
	assert.Equal(t, "", s.KeyFor(types.ProviderMock))
	assert.Equal(t, "", Store{}.KeyFor(types.ProviderAnthropic))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
