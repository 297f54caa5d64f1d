package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	RegisterDefaults(v)

	c, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, c.MangaDex.Throttle)
	assert.Equal(t, 1100*time.Millisecond, c.MangaUpdates.Throttle)
	assert.Equal(t, ".", c.Output.Dir)
	assert.Empty(t, c.DB.Path)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".mdsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mangadex:
  username: reader
  client_id: personal-client
  throttle: 2s
mangaupdates:
  username: mu-reader
  mappings: /tmp/mangaupdates.json
`), 0o600))
	t.Setenv("MDSYNC_MANGAUPDATES_PASSWORD", "from-env")

	v := viper.New()
	RegisterDefaults(v)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	c, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "reader", c.MangaDex.Username)
	assert.Equal(t, "personal-client", c.MangaDex.ClientID)
	assert.Equal(t, 2*time.Second, c.MangaDex.Throttle)
	assert.Equal(t, "from-env", c.MangaUpdates.Password)
	assert.Equal(t, "/tmp/mangaupdates.json", c.MangaUpdates.Mappings)
	assert.NoError(t, c.MangaUpdates.Validate())
}

func TestValidate(t *testing.T) {
	md := MangaDex{Username: "u", Password: "p"}
	err := md.Validate()
	require.Error(t, err)
	assert.Equal(t, "missing configuration: mangadex.client_id, mangadex.client_secret", err.Error())

	md.ClientID, md.ClientSecret = "id", "secret"
	assert.NoError(t, md.Validate())

	md.Throttle = -time.Second
	assert.Error(t, md.Validate())

	assert.EqualError(t, MangaUpdates{}.Validate(), "missing configuration: mangaupdates.password, mangaupdates.username")
}
