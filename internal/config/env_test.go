package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantEnv map[string]string
	}{
		{
			name: "valid .env file",
			content: `
# Comment line
OUTREACH_T_KEY1=value1
OUTREACH_T_KEY2 = value2

OUTREACH_T_KEY3=value with spaces
`,
			wantEnv: map[string]string{
				"OUTREACH_T_KEY1": "value1",
				"OUTREACH_T_KEY2": "value2",
				"OUTREACH_T_KEY3": "value with spaces",
			},
		},
		{
			name:    "quotes and export",
			content: "export OUTREACH_T_Q1=\"quoted value\"\nOUTREACH_T_Q2='single'\n",
			wantEnv: map[string]string{
				"OUTREACH_T_Q1": "quoted value",
				"OUTREACH_T_Q2": "single",
			},
		},
		{
			name:    "value containing equals",
			content: "OUTREACH_T_COOKIE=sid=abc==\n",
			wantEnv: map[string]string{"OUTREACH_T_COOKIE": "sid=abc=="},
		},
		{
			name:    "malformed lines skipped",
			content: "no separator here\n=novalue\nOUTREACH_T_OK=1\n",
			wantEnv: map[string]string{"OUTREACH_T_OK": "1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), ".env")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			for key := range tt.wantEnv {
				unsetForTest(t, key)
			}

			require.NoError(t, LoadEnv(path))

			for key, want := range tt.wantEnv {
				assert.Equal(t, want, os.Getenv(key), key)
			}
		})
	}
}

func TestLoadEnv_DoesNotOverrideExisting(t *testing.T) {
	t.Setenv("OUTREACH_T_EXISTING", "from-shell")
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("OUTREACH_T_EXISTING=from-file\n"), 0644))

	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "from-shell", os.Getenv("OUTREACH_T_EXISTING"))
}

func TestLoadEnv_MissingFile(t *testing.T) {
	assert.Error(t, LoadEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestLoadEnvOptional(t *testing.T) {
	assert.NoError(t, LoadEnvOptional(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("OUTREACH_T_OPTIONAL=yes\n"), 0644))
	unsetForTest(t, "OUTREACH_T_OPTIONAL")

	require.NoError(t, LoadEnvOptional(path))
	assert.Equal(t, "yes", os.Getenv("OUTREACH_T_OPTIONAL"))
}

// unsetForTest clears key and restores the environment after the test.
func unsetForTest(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}
