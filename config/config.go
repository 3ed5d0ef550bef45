package config

import (
	"flag"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"

	"github.com/aquasecurity/vulndb-mirror/utils"
	"github.com/aquasecurity/vulndb-mirror/vulndb"
)

const (
	AuthOAuth1 = "oauth1"
	AuthOAuth2 = "oauth2"

	defaultTimeout = 60 * time.Second
)

// Config is the effective configuration of a run. Each layer overrides the
// previous one: defaults, YAML file, environment, flags.
type Config struct {
	ConsumerKey    string `yaml:"consumer_key"`
	ConsumerSecret string `yaml:"consumer_secret"`
	Auth           string `yaml:"auth"`
	OutputDir      string `yaml:"output_dir"`
	BaseURL        string `yaml:"base_url"`
	TokenURL       string `yaml:"token_url"`

	MirrorVendors         bool `yaml:"mirror_vendors"`
	MirrorProducts        bool `yaml:"mirror_products"`
	MirrorVulnerabilities bool `yaml:"mirror_vulnerabilities"`
	StatusOnly            bool `yaml:"status_only"`
	ProductVersions       int  `yaml:"product_versions"`

	Retry       int           `yaml:"retry"`
	Timeout     time.Duration `yaml:"timeout"`
	RateLimit   float64       `yaml:"rate_limit"`
	MetricsFile string        `yaml:"metrics_file"`
	Debug       bool          `yaml:"debug"`
}

func defaults() Config {
	return Config{
		Auth:      AuthOAuth1,
		OutputDir: utils.DefaultOutputDir(),
		BaseURL:   vulndb.DefaultBaseURL,
		Timeout:   defaultTimeout,
	}
}

var envVars = map[string]func(c *Config, v string){
	"VULNDB_CONSUMER_KEY":    func(c *Config, v string) { c.ConsumerKey = v },
	"VULNDB_CONSUMER_SECRET": func(c *Config, v string) { c.ConsumerSecret = v },
	"VULNDB_AUTH":            func(c *Config, v string) { c.Auth = v },
	"VULNDB_OUTPUT_DIR":      func(c *Config, v string) { c.OutputDir = v },
	"VULNDB_BASE_URL":        func(c *Config, v string) { c.BaseURL = v },
	"VULNDB_TOKEN_URL":       func(c *Config, v string) { c.TokenURL = v },
}

// Load builds the configuration from the optional YAML file named by
// --config, the VULNDB_* environment and the command line flags. Usage is
// written to stderr on --help and on invalid flags.
func Load(fs afero.Fs, stderr io.Writer, args []string) (Config, error) {
	flags := flag.NewFlagSet("vulndb-mirror", flag.ContinueOnError)
	flags.SetOutput(stderr)

	var (
		configFile = flags.String("config", "", "path to a YAML config file")
		f          = defaults()
	)
	flags.StringVar(&f.ConsumerKey, "consumer-key", "", "VulnDB consumer key")
	flags.StringVar(&f.ConsumerSecret, "consumer-secret", "", "VulnDB consumer secret")
	flags.StringVar(&f.Auth, "auth", f.Auth, "authentication scheme (oauth1, oauth2)")
	flags.StringVar(&f.OutputDir, "dir", f.OutputDir, "directory the pages and the checkpoint file are written to")
	flags.StringVar(&f.BaseURL, "base-url", f.BaseURL, "VulnDB API base URL")
	flags.StringVar(&f.TokenURL, "token-url", "", "OAuth2 token URL (default <base-url>/oauth/token)")
	flags.BoolVar(&f.MirrorVendors, "mirror-vendors", false, "mirror the vendors feed")
	flags.BoolVar(&f.MirrorProducts, "mirror-products", false, "mirror the products feed")
	flags.BoolVar(&f.MirrorVulnerabilities, "mirror-vulnerabilities", false, "mirror the vulnerabilities feed")
	flags.BoolVar(&f.StatusOnly, "status-only", false, "print the account status and exit")
	flags.IntVar(&f.ProductVersions, "product-versions", 0, "also mirror the versions of this product id")
	flags.IntVar(&f.Retry, "retry", 0, "number of retries for transport errors, 429 and 5xx responses")
	flags.DurationVar(&f.Timeout, "timeout", f.Timeout, "timeout of a single request")
	flags.Float64Var(&f.RateLimit, "rate-limit", 0, "maximum requests per second (0 means unlimited)")
	flags.StringVar(&f.MetricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
	flags.BoolVar(&f.Debug, "debug", false, "debug mode")

	if err := flags.Parse(args); err != nil {
		return Config{}, xerrors.Errorf("invalid arguments: %w", err)
	}
	if flags.NArg() > 0 {
		return Config{}, xerrors.Errorf("unexpected arguments: %s", strings.Join(flags.Args(), " "))
	}

	c := defaults()
	if *configFile != "" {
		if err := c.loadFile(fs, *configFile); err != nil {
			return Config{}, err
		}
	}
	for key, set := range envVars {
		if v := utils.LookupEnv(key, ""); v != "" {
			set(&c, v)
		}
	}
	flags.Visit(func(fl *flag.Flag) {
		c.applyFlag(fl.Name, f)
	})

	if c.TokenURL == "" {
		c.TokenURL = strings.TrimSuffix(c.BaseURL, "/") + "/oauth/token"
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) loadFile(fs afero.Fs, path string) error {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return xerrors.Errorf("unable to read config file: %w", err)
	}
	if err = yaml.UnmarshalStrict(b, c); err != nil {
		return xerrors.Errorf("unable to decode config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyFlag(name string, f Config) {
	switch name {
	case "consumer-key":
		c.ConsumerKey = f.ConsumerKey
	case "consumer-secret":
		c.ConsumerSecret = f.ConsumerSecret
	case "auth":
		c.Auth = f.Auth
	case "dir":
		c.OutputDir = f.OutputDir
	case "base-url":
		c.BaseURL = f.BaseURL
	case "token-url":
		c.TokenURL = f.TokenURL
	case "mirror-vendors":
		c.MirrorVendors = f.MirrorVendors
	case "mirror-products":
		c.MirrorProducts = f.MirrorProducts
	case "mirror-vulnerabilities":
		c.MirrorVulnerabilities = f.MirrorVulnerabilities
	case "status-only":
		c.StatusOnly = f.StatusOnly
	case "product-versions":
		c.ProductVersions = f.ProductVersions
	case "retry":
		c.Retry = f.Retry
	case "timeout":
		c.Timeout = f.Timeout
	case "rate-limit":
		c.RateLimit = f.RateLimit
	case "metrics-file":
		c.MetricsFile = f.MetricsFile
	case "debug":
		c.Debug = f.Debug
	}
}

func (c Config) Validate() error {
	switch {
	case c.ConsumerKey == "":
		return xerrors.New("consumer key is required (--consumer-key or VULNDB_CONSUMER_KEY)")
	case c.ConsumerSecret == "":
		return xerrors.New("consumer secret is required (--consumer-secret or VULNDB_CONSUMER_SECRET)")
	case c.Auth != AuthOAuth1 && c.Auth != AuthOAuth2:
		return xerrors.Errorf("unknown auth %q (expected %s or %s)", c.Auth, AuthOAuth1, AuthOAuth2)
	case c.OutputDir == "":
		return xerrors.New("output directory is required")
	case c.ProductVersions < 0:
		return xerrors.Errorf("product id must not be negative: %d", c.ProductVersions)
	case c.Retry < 0:
		return xerrors.Errorf("retry must not be negative: %d", c.Retry)
	case c.Timeout <= 0:
		return xerrors.Errorf("timeout must be positive: %s", c.Timeout)
	case c.RateLimit < 0:
		return xerrors.Errorf("rate limit must not be negative: %s", strconv.FormatFloat(c.RateLimit, 'f', -1, 64))
	}
	for _, u := range []struct{ name, raw string }{
		{"base URL", c.BaseURL},
		{"token URL", c.TokenURL},
	} {
		if parsed, err := url.Parse(u.raw); err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return xerrors.Errorf("invalid %s %q", u.name, u.raw)
		}
	}
	return nil
}

// Feeds returns the selected feeds in mirroring order. No selection means all feeds.
func (c Config) Feeds() []vulndb.Feed {
	selected := map[vulndb.Feed]bool{
		vulndb.Vendors:         c.MirrorVendors,
		vulndb.Products:        c.MirrorProducts,
		vulndb.Vulnerabilities: c.MirrorVulnerabilities,
	}
	feeds := lo.Filter(vulndb.AllFeeds, func(f vulndb.Feed, _ int) bool {
		return selected[f]
	})
	if len(feeds) == 0 {
		return vulndb.AllFeeds
	}
	return feeds
}

func (c Config) ParsedBaseURL() *url.URL {
	u, _ := url.Parse(c.BaseURL)
	return u
}
