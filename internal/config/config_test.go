package config

import (
	"cacheprobe/internal/probe"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		forceHTTP bool
		want      string
	}{
		{"bare host", "example.com", false, "https://example.com"},
		{"bare host forced", "example.com", true, "http://example.com"},
		{"https forced", "https://example.com", true, "http://example.com"},
		{"https kept", "https://example.com", false, "https://example.com"},
		{"http kept", "http://example.com/a", false, "http://example.com/a"},
		{"http forced", "http://example.com/a", true, "http://example.com/a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeURL(tt.raw, tt.forceHTTP))
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "probe.yaml")
	data := []byte(`
output: out.json
method: POST
retries: 1
concurrency: 4
forceHttp: true
urls:
  - example.com
store:
  driver: sqlite
  path: findings.db
`)
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "out.json", cfg.Output)
	assert.Equal(t, probe.MethodPost, cfg.ProbeMethod())
	assert.Equal(t, uint(1), cfg.Retries)
	assert.Equal(t, uint(4), cfg.Concurrency)
	assert.Equal(t, uint(20), cfg.Timeout) // default kept
	assert.Equal(t, DefaultHeaders, cfg.Headers)
	assert.NoError(t, cfg.Validate())

	reqs := cfg.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, probe.Request{URL: "http://example.com", Method: probe.MethodPost}, reqs[0])
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.Output = "out.json"
		cfg.URLs = []string{"example.com"}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"no output", func(c *Config) { c.Output = "" }, true},
		{"no urls", func(c *Config) { c.URLs = nil }, true},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, true},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, true},
		{"unknown store", func(c *Config) { c.Store.Driver = "redis" }, true},
		{"store without path", func(c *Config) { c.Store.Driver = "leveldb" }, true},
		{"store with path", func(c *Config) { c.Store.Driver = "leveldb"; c.Store.Path = "db" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestReadURLs(t *testing.T) {
	dir := t.TempDir()

	txt := filepath.Join(dir, "urls.txt")
	require.NoError(t, os.WriteFile(txt, []byte("example.com\n\nhttps://example.org/a\n"), 0644))
	urls, err := ReadURLs(txt)
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com", "https://example.org/a"}, urls)

	js := filepath.Join(dir, "urls.json")
	require.NoError(t, os.WriteFile(js, []byte(`{"urls": ["a.example", "b.example"]}`), 0644))
	urls, err = ReadURLs(js)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.example", "b.example"}, urls)

	_, err = ReadURLs(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestReadHeaders(t *testing.T) {
	headers, err := ReadHeaders("")
	require.NoError(t, err)
	assert.Equal(t, DefaultHeaders, headers)

	headers, err = ReadHeaders("Age, X-Cache,,")
	require.NoError(t, err)
	assert.Equal(t, []string{"Age", "X-Cache"}, headers)

	path := filepath.Join(t.TempDir(), "headers.txt")
	require.NoError(t, os.WriteFile(path, []byte("CF-Cache-Status\nVia\n"), 0644))
	headers, err = ReadHeaders(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"CF-Cache-Status", "Via"}, headers)
}
