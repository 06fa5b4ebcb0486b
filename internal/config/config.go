package config

import (
	"cacheprobe/internal/probe"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultHeaders is the header set checked when none is configured.
var DefaultHeaders = []string{
	"Cache-Control",
	"Expires",
	"ETag",
	"Last-Modified",
	"Age",
	"Pragma",
	"Vary",
	"Server-Timing",
	"CF-Cache-Status",
	"CF-Ray",
	"X-Cache",
	"X-Cache-Lookup",
	"X-Varnish",
	"X-Cache-Remote",
}

type Config struct {
	URLs        []string `yaml:"urls"`
	Output      string   `yaml:"output"`
	Method      string   `yaml:"method"`
	Timeout     uint     `yaml:"timeout"` // seconds
	Retries     uint     `yaml:"retries"`
	Verbose     bool     `yaml:"verbose"`
	ForceHTTP   bool     `yaml:"forceHttp"`
	Concurrency uint     `yaml:"concurrency"`
	Headers     []string `yaml:"headers"`

	// Graceful cancels in-flight probes on interrupt instead of exiting at once.
	Graceful bool `yaml:"graceful"`

	Store struct {
		Driver string `yaml:"driver"` // "", "sqlite" or "leveldb"
		Path   string `yaml:"path"`
	} `yaml:"store"`

	Status struct {
		HTTP string `yaml:"http"`
		GRPC string `yaml:"grpc"`
	} `yaml:"status"`
}

func Default() Config {
	cfg := Config{
		Method:      "GET",
		Timeout:     20,
		Retries:     3,
		Concurrency: 10,
	}
	cfg.Headers = append([]string(nil), DefaultHeaders...)
	return cfg
}

// LoadFile reads a YAML config on top of Default.
func LoadFile(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(cfg.Headers) == 0 {
		cfg.Headers = append([]string(nil), DefaultHeaders...)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Output) == "" {
		return errors.New("output path is required")
	}
	if len(c.URLs) == 0 {
		return errors.New("at least one url is required")
	}
	if c.Concurrency < 1 {
		return errors.New("concurrency must be at least 1")
	}
	if c.Timeout < 1 {
		return errors.New("timeout must be at least 1 second")
	}
	switch c.Store.Driver {
	case "":
	case "sqlite", "leveldb":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}
	return nil
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

func (c Config) ProbeMethod() probe.Method {
	return probe.ParseMethod(c.Method)
}

// Requests normalizes every configured URL into a probe request.
func (c Config) Requests() []probe.Request {
	method := c.ProbeMethod()
	reqs := make([]probe.Request, 0, len(c.URLs))
	for _, u := range c.URLs {
		reqs = append(reqs, probe.Request{URL: NormalizeURL(u, c.ForceHTTP), Method: method})
	}
	return reqs
}

// NormalizeURL prepends a scheme to bare hosts and downgrades https when
// forceHTTP is set.
func NormalizeURL(raw string, forceHTTP bool) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		if forceHTTP {
			return strings.Replace(raw, "https://", "http://", 1)
		}
		return raw
	}
	if forceHTTP {
		return "http://" + raw
	}
	return "https://" + raw
}
