package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:3001", cfg.Server.Addr)
	assert.Equal(t, "profile_id", cfg.Auth.ProfileHeader)
	assert.True(t, cfg.Auth.AllowProfileHeader)
	assert.Equal(t, 2, cfg.Reports.DefaultClientLimit)
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
server:
  addr: 0.0.0.0:8080
log:
  level: debug
webhooks:
  - url: https://hooks.example.com/ledger
    events: [job.paid]
    secret: abc
  - url: http://localhost:9000/all
    enabled: false
`))
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr)
	assert.Equal(t, "profile_id", cfg.Auth.ProfileHeader, "untouched keys keep defaults")
	assert.Equal(t, "debug", cfg.LogOptions().Level)
	require.Len(t, cfg.Webhooks, 2)
	assert.True(t, cfg.Webhooks[0].IsEnabled())
	assert.True(t, cfg.Webhooks[0].Wants("job.paid"))
	assert.False(t, cfg.Webhooks[0].Wants("balance.deposited"))
	assert.False(t, cfg.Webhooks[1].IsEnabled())
	assert.True(t, cfg.Webhooks[1].Wants("anything"))
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"no auth":      "auth:\n  allow_profile_header: false\n",
		"bad limit":    "reports:\n  default_client_limit: 0\n",
		"bad base":     "server:\n  base_path: api\n",
		"bad level":    "log:\n  level: loud\n",
		"bad webhook":  "webhooks:\n  - url: ftp://x\n",
		"empty header": "auth:\n  profile_header: \"\"\n",
	}
	for name, doc := range cases {
		_, err := FromYAML([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(dir)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(Path(dir), []byte("server:\n  addr: :9999\n"), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
}
