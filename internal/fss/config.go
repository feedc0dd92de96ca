package fss

import (
	"net/url"
	"strings"
	"time"

	"github.com/exchangesets/fsstransfer/internal/errors"
	"github.com/exchangesets/fsstransfer/internal/options"
)

// Config contains all configuration necessary to connect to a File Share
// Service.
type Config struct {
	URL          *url.URL
	Connections  uint          `option:"connections" help:"set a limit for the number of concurrent connections (default: 5)"`
	MaxRetries   uint          `option:"max-retries" help:"number of retries for transient failures (default: 5)"`
	RetryTimeout time.Duration `option:"retry-timeout" help:"give up retrying a request after this duration (default: 2m)"`
}

func init() {
	options.Register("fss", Config{})
}

// NewConfig returns a new Config with the default values filled in.
func NewConfig() Config {
	return Config{
		Connections:  5,
		MaxRetries:   5,
		RetryTimeout: 2 * time.Minute,
	}
}

// ParseConfig parses the base URL of the service, e.g.
// "https://fss.example.org/api". The trailing slash is optional.
func ParseConfig(s string) (Config, error) {
	if s == "" {
		return Config{}, errors.Fatal("no File Share Service URL specified")
	}

	u, err := url.Parse(strings.TrimSuffix(s, "/"))
	if err != nil {
		return Config{}, errors.Fatalf("invalid File Share Service URL %q: %v", s, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return Config{}, errors.Fatalf("invalid File Share Service URL %q: scheme must be http or https", s)
	}

	cfg := NewConfig()
	cfg.URL = u
	return cfg, nil
}
