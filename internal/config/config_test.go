package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOptionalMissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
	assert.False(t, cfg.Workflow.StrictTransitions)
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
api:
  base_url: https://collab.example.com/api
  timeout: 3s
workflow:
  strict_transitions: true
server:
  token_ttl: 2h
`))
	require.NoError(t, err)
	assert.Equal(t, "https://collab.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.API.Timeout)
	assert.True(t, cfg.Workflow.StrictTransitions)
	assert.Equal(t, 2*time.Hour, cfg.Server.TokenTTL)
	assert.Equal(t, "/api", cfg.Server.BasePath, "untouched keys keep their default")
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"scheme":   "api:\n  base_url: ftp://x\n",
		"timeout":  "api:\n  timeout: 0s\n",
		"level":    "log:\n  level: loud\n",
		"encoding": "log:\n  encoding: xml\n",
		"basepath": "server:\n  base_path: api\n",
	}
	for name, doc := range cases {
		_, err := FromYAML([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestFromFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Log.Level = "debug"
	out, err := cfg.YAML()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(out), 0o644))

	loaded, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestWebhooks(t *testing.T) {
	cfg, err := FromYAML([]byte(`
server:
  webhooks:
    - url: https://hooks.example.com/collab
      events: [task.created]
      timeout: 2s
    - url: http://127.0.0.1:9000/
      enabled: false
`))
	require.NoError(t, err)
	require.Len(t, cfg.Server.Webhooks, 2)
	assert.True(t, cfg.Server.Webhooks[0].Active())
	assert.Equal(t, 2*time.Second, cfg.Server.Webhooks[0].Timeout)
	assert.False(t, cfg.Server.Webhooks[1].Active())

	_, err = FromYAML([]byte("server:\n  webhooks:\n    - url: not-a-url\n"))
	assert.Error(t, err)
}
