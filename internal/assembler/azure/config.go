package azure

import (
	"os"
	"strings"

	"github.com/exchangesets/fsstransfer/internal/errors"
	"github.com/exchangesets/fsstransfer/internal/options"
)

// Config contains all configuration necessary to store committed files in
// an Azure blob container.
type Config struct {
	AccountName    string
	AccountKey     options.SecretString
	AccountSAS     options.SecretString
	Container      string
	Prefix         string
	EndpointSuffix string `option:"endpoint-suffix" help:"set a custom endpoint suffix (default: core.windows.net)"`
}

// NewConfig returns a new Config with the default values filled in.
func NewConfig() Config {
	return Config{}
}

func init() {
	options.Register("azure", Config{})
}

// ParseConfig parses the string s and extracts the azure config. The
// configuration format is azure:containerName:/[prefix].
func ParseConfig(s string) (Config, error) {
	if !strings.HasPrefix(s, "azure:") {
		return Config{}, errors.New("azure: invalid format")
	}

	// strip prefix "azure:"
	s = s[6:]

	// use the first entry of the path as the container name and the
	// remainder as prefix
	container, prefix, colon := strings.Cut(s, ":")
	if !colon || container == "" {
		return Config{}, errors.New("azure: invalid format: container name or prefix not found")
	}

	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "S100-ExchangeSets"
	}

	cfg := NewConfig()
	cfg.Container = container
	cfg.Prefix = prefix
	return cfg, nil
}

// ApplyEnvironment fills in the account settings from AZURE_ACCOUNT_NAME,
// AZURE_ACCOUNT_KEY, AZURE_ACCOUNT_SAS and AZURE_ENDPOINT_SUFFIX.
func (cfg *Config) ApplyEnvironment() {
	if cfg.AccountName == "" {
		cfg.AccountName = os.Getenv("AZURE_ACCOUNT_NAME")
	}
	if cfg.AccountKey.String() == "" {
		cfg.AccountKey = options.NewSecretString(os.Getenv("AZURE_ACCOUNT_KEY"))
	}
	if cfg.AccountSAS.String() == "" {
		cfg.AccountSAS = options.NewSecretString(os.Getenv("AZURE_ACCOUNT_SAS"))
	}
	if cfg.EndpointSuffix == "" {
		cfg.EndpointSuffix = os.Getenv("AZURE_ENDPOINT_SUFFIX")
	}
}
