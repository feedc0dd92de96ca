package s3

import (
	"net/url"
	"strings"

	"github.com/exchangesets/fsstransfer/internal/errors"
	"github.com/exchangesets/fsstransfer/internal/options"
)

// Config contains all configuration necessary to store committed files on
// an S3 compatible server.
type Config struct {
	Endpoint string
	UseHTTP  bool
	KeyID    string
	Secret   options.SecretString
	Bucket   string
	Prefix   string

	Region       string `option:"region" help:"set region"`
	BucketLookup string `option:"bucket-lookup" help:"bucket lookup style: 'auto', 'dns', or 'path'"`
	MaxRetries   uint   `option:"retries" help:"set the number of retries attempted"`
}

// NewConfig returns a new Config with the default values filled in.
func NewConfig() Config {
	return Config{}
}

func init() {
	options.Register("s3", Config{})
}

// ParseConfig parses the string s and extracts the s3 config. The supported
// formats are s3:host/bucket/prefix and s3:https://host/bucket/prefix. If
// no prefix is given, "S100-ExchangeSets" is used.
func ParseConfig(s string) (Config, error) {
	if !strings.HasPrefix(s, "s3:") {
		return Config{}, errors.New("s3: invalid format")
	}
	s = s[3:]

	useHTTP := false
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		u, err := url.Parse(s)
		if err != nil {
			return Config{}, errors.Wrap(err, "url.Parse")
		}
		useHTTP = u.Scheme == "http"
		s = u.Host + u.Path
	}

	parts := strings.SplitN(strings.TrimPrefix(s, "/"), "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Config{}, errors.New("s3: bucket name not found")
	}

	cfg := NewConfig()
	cfg.Endpoint = parts[0]
	cfg.Bucket = parts[1]
	cfg.UseHTTP = useHTTP
	cfg.Prefix = "S100-ExchangeSets"
	if len(parts) == 3 && strings.Trim(parts[2], "/") != "" {
		cfg.Prefix = strings.Trim(parts[2], "/")
	}
	return cfg, nil
}
