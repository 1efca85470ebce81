package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name: "all required vars set",
			env: map[string]string{
				"GITHUB_APP_ID":         "12345",
				"GITHUB_WEBHOOK_SECRET": "s3cret",
				"DB_PASSWORD":           "pw",
			},
		},
		{
			name: "missing app id",
			env: map[string]string{
				"GITHUB_WEBHOOK_SECRET": "s3cret",
				"DB_PASSWORD":           "pw",
			},
			wantErr: "GITHUB_APP_ID",
		},
		{
			name: "missing webhook secret",
			env: map[string]string{
				"GITHUB_APP_ID": "12345",
				"DB_PASSWORD":   "pw",
			},
			wantErr: "GITHUB_WEBHOOK_SECRET",
		},
		{
			name: "missing db password",
			env: map[string]string{
				"GITHUB_APP_ID":         "12345",
				"GITHUB_WEBHOOK_SECRET": "s3cret",
			},
			wantErr: "DB_PASSWORD",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := LoadConfig()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "8080", cfg.ServerPort)
			assert.Equal(t, 5, cfg.MaxWorkers)
			assert.Equal(t, ".codesentry.yml", cfg.RulesetPath)
			assert.Equal(t, int64(12345), cfg.GitHub.AppID)
			assert.Equal(t, "s3cret", cfg.GitHub.WebhookSecret)
			assert.Equal(t, "codesentry", cfg.Database.Database)
			assert.Equal(t, "pw", cfg.Database.Password)
		})
	}
}

func TestLoadRuleset(t *testing.T) {
	t.Run("missing file returns defaults", func(t *testing.T) {
		ruleset, err := LoadRuleset(filepath.Join(t.TempDir(), "nope.yml"))
		require.ErrorIs(t, err, ErrRulesetNotFound)
		require.NotNil(t, ruleset)
		assert.Empty(t, ruleset.ExcludeDirs)
		assert.Empty(t, ruleset.DisabledRules)
	})

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".codesentry.yml")
		content := "exclude_dirs:\n  - dist\nexclude_exts:\n  - md\ndisabled_rules:\n  - todo-marker\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		ruleset, err := LoadRuleset(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"dist"}, ruleset.ExcludeDirs)
		assert.Equal(t, []string{"md"}, ruleset.ExcludeExts)
		assert.Equal(t, []string{"todo-marker"}, ruleset.DisabledRules)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".codesentry.yml")
		require.NoError(t, os.WriteFile(path, []byte("exclude_dirs: [unclosed"), 0o600))

		_, err := LoadRuleset(path)
		assert.True(t, errors.Is(err, ErrRulesetParsing))
	})
}

func TestNormalizeExt(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"md", ".md"},
		{".MD", ".md"},
		{"  lock ", ".lock"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeExt(tt.in))
	}
}
