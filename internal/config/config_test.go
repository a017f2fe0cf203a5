package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_DSN", "postgres://localhost/chat")

	c, err := Parse(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "8083", c.Server.Port)
	assert.Equal(t, StoreDriverPostgres, c.Store.Driver)
	assert.Equal(t, 500, c.Store.ReadBatchSize)
	assert.Equal(t, []string{"CEO", "ADMIN"}, c.Auth.PrivilegedRoles)
	assert.Equal(t, 1024, c.Events.QueueSize)
	assert.Equal(t, 5*time.Second, c.Events.PublishTimeout)
	assert.Equal(t, 10*time.Second, c.Server.RequestTimeout)
	assert.Equal(t, "json", c.Logger.Format)
}

func TestParseEnvironmentOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("PRIVILEGED_ROLES", " OWNER , ,SUPPORT")
	t.Setenv("EVENT_WORKERS", "8")
	t.Setenv("EVENT_PUBLISH_TIMEOUT", "250ms")
	t.Setenv("LOG_FORMAT", "text")

	c, err := Parse(viper.New())
	require.NoError(t, err)

	assert.Equal(t, StoreDriverMemory, c.Store.Driver)
	assert.Equal(t, []string{"OWNER", "SUPPORT"}, c.Auth.PrivilegedRoles)
	assert.Equal(t, 8, c.Events.Workers)
	assert.Equal(t, 250*time.Millisecond, c.Events.PublishTimeout)
	assert.Equal(t, "text", c.Logger.Format)
}

func TestParseYAMLBelowEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", "9999")

	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader("store_driver: memory\nport: \"7000\"\nread_batch_size: 50\n")))

	c, err := Parse(v)
	require.NoError(t, err)
	assert.Equal(t, StoreDriverMemory, c.Store.Driver)
	assert.Equal(t, "9999", c.Server.Port)
	assert.Equal(t, 50, c.Store.ReadBatchSize)
}

func TestParseValidation(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret": {"STORE_DRIVER": "memory"},
		"missing dsn":    {"JWT_SECRET": "x"},
		"unknown driver": {"JWT_SECRET": "x", "STORE_DRIVER": "mongo"},
		"unknown format": {"JWT_SECRET": "x", "STORE_DRIVER": "memory", "LOG_FORMAT": "xml"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, val := range env {
				t.Setenv(k, val)
			}
			_, err := Parse(viper.New())
			assert.Error(t, err)
		})
	}
}
