package gs

import (
	"strings"

	"github.com/exchangesets/fsstransfer/internal/errors"
	"github.com/exchangesets/fsstransfer/internal/options"
)

// Config contains all configuration necessary to store committed files in a
// Google Cloud Storage bucket. Google's default application credentials are
// used to acquire an access token.
type Config struct {
	Bucket string
	Prefix string

	ChunkSize int `option:"chunk-size" help:"upload buffer size in bytes, 0 disables resumable uploads (default: 16777216)"`
}

// NewConfig returns a new Config with the default values filled in.
func NewConfig() Config {
	return Config{
		ChunkSize: 16 * 1024 * 1024,
	}
}

func init() {
	options.Register("gs", Config{})
}

// ParseConfig parses the string s and extracts the gcs config. The
// configuration format is gs:bucketName:/[prefix].
func ParseConfig(s string) (Config, error) {
	if !strings.HasPrefix(s, "gs:") {
		return Config{}, errors.New("gs: invalid format")
	}

	// strip prefix "gs:"
	s = s[3:]

	bucket, prefix, colon := strings.Cut(s, ":")
	if !colon || bucket == "" {
		return Config{}, errors.New("gs: invalid format: bucket name or path not found")
	}

	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "S100-ExchangeSets"
	}

	cfg := NewConfig()
	cfg.Bucket = bucket
	cfg.Prefix = prefix
	return cfg, nil
}
