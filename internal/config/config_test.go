package config_test

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/config"
)

type testConfig struct {
	Name string
	HTTP struct {
		Port int32
	}
	Cache struct {
		Addrs []string
		TTL   time.Duration
	}
}

func (c testConfig) Validate() error {
	if c.Name == "" {
		return stderrors.New("name is required")
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func defaults() testConfig {
	var c testConfig
	c.Name = "quiz"
	c.HTTP.Port = 8080
	c.Cache.TTL = time.Minute
	return c
}

func TestLoad(t *testing.T) {
	tests := map[string]struct {
		file   string
		env    map[string]string
		opts   []config.Option
		assert func(t *testing.T, c testConfig, err error)
	}{
		"defaults only": {
			assert: func(t *testing.T, c testConfig, err error) {
				require.NoError(t, err)
				assert.Equal(t, "quiz", c.Name)
				assert.Equal(t, int32(8080), c.HTTP.Port)
				assert.Empty(t, c.Cache.Addrs)
				assert.Equal(t, time.Minute, c.Cache.TTL)
			},
		},
		"file overrides defaults": {
			file: "http:\n  port: 9090\ncache:\n  addrs: [\"localhost:6379\"]\n  ttl: 30s\n",
			assert: func(t *testing.T, c testConfig, err error) {
				require.NoError(t, err)
				assert.Equal(t, "quiz", c.Name)
				assert.Equal(t, int32(9090), c.HTTP.Port)
				assert.Equal(t, []string{"localhost:6379"}, c.Cache.Addrs)
				assert.Equal(t, 30*time.Second, c.Cache.TTL)
			},
		},
		"env overrides file": {
			file: "http:\n  port: 9090\n",
			env:  map[string]string{"HTTP_PORT": "7070"},
			assert: func(t *testing.T, c testConfig, err error) {
				require.NoError(t, err)
				assert.Equal(t, int32(7070), c.HTTP.Port)
			},
		},
		"env prefix": {
			env:  map[string]string{"QUIZTEST_HTTP_PORT": "6060", "HTTP_PORT": "1"},
			opts: []config.Option{config.WithEnvPrefix("QUIZTEST")},
			assert: func(t *testing.T, c testConfig, err error) {
				require.NoError(t, err)
				assert.Equal(t, int32(6060), c.HTTP.Port)
			},
		},
		"validation runs last": {
			file: "name: \"\"\n",
			assert: func(t *testing.T, c testConfig, err error) {
				require.ErrorContains(t, err, "name is required")
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			var file string
			if tt.file != "" {
				file = writeFile(t, tt.file)
			}

			c := defaults()
			err := config.Load(file, &c, tt.opts...)
			tt.assert(t, c, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	c := defaults()
	err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"), &c)
	require.Error(t, err)
}
