package config

import (
	"io/ioutil"
	"os"
	"strconv"
	"time"

	"github.com/gobwas/glob"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	DefaultDirectoryURL     = "https://script.google.com/macros/s/AKfycbzEmmqeoUyRjNGQYferubel0azlRBJIA2fsWijhbqC-WMpz-Llwoxxh75lKGHOZUFcJ/exec"
	DefaultDirectoryTimeout = 10 * time.Second
	DefaultTwilioBaseURL    = "https://api.twilio.com"
	DefaultCallTimeout      = 30 * time.Second
	DefaultGatherTimeout    = 15 * time.Second
	DefaultUserAgent        = "AWS Lambda Server Monitor"
)

var c = newDefault()

type Config struct {
	Debug     bool   `yaml:"debug"`
	UserAgent string `yaml:"user_agent"`

	Directory struct {
		URL     string        `yaml:"url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"directory"`

	Twilio Twilio `yaml:"twilio"`

	Slack struct {
		APIToken        string `yaml:"api_token"`
		Channel         string `yaml:"channel"`
		Username        string `yaml:"username"`
		IconURL         string `yaml:"icon_url"`
		AttachmentColor string `yaml:"attachment_color"`
	} `yaml:"slack"`

	AWS struct {
		Region      string `yaml:"region"`
		AlarmSqsURL string `yaml:"alarm_sqs_url"`
	} `yaml:"aws"`

	// Ignore holds glob patterns of resource names that never trigger calls.
	Ignore []string `yaml:"ignore"`

	ignore []glob.Glob
}

type Twilio struct {
	AccountSID         string        `yaml:"account_sid"`
	AuthToken          string        `yaml:"auth_token"`
	AuthTokenParameter string        `yaml:"auth_token_parameter"`
	FromNumber         string        `yaml:"from_number"`
	BaseURL            string        `yaml:"base_url"`
	Timeout            time.Duration `yaml:"timeout"`
	GatherTimeout      time.Duration `yaml:"gather_timeout"`
	StatusCallback     string        `yaml:"status_callback"`
}

// HasCredentials reports whether all three provider values are set.
func (t *Twilio) HasCredentials() bool {
	return t.AccountSID != "" && t.AuthToken != "" && t.FromNumber != ""
}

func newDefault() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// Load reads the optional YAML file, applies environment overrides and
// fills defaults. An empty filename skips the file.
func Load(filename string) error {
	cfg, err := Parse(filename, os.LookupEnv)
	if err != nil {
		return err
	}
	c = cfg
	return nil
}

// Parse is Load without touching the process config.
func Parse(filename string, lookupEnv func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	if filename != "" {
		data, err := ioutil.ReadFile(filename)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	if err := cfg.applyEnv(lookupEnv); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	for _, p := range cfg.Ignore {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid ignore pattern %q", p)
		}
		cfg.ignore = append(cfg.ignore, g)
	}

	return cfg, nil
}

func Get() *Config {
	return c
}

// Ignored reports whether resource matches one of the ignore patterns.
func (cfg *Config) Ignored(resource string) bool {
	for _, g := range cfg.ignore {
		if g.Match(resource) {
			return true
		}
	}
	return false
}

func (cfg *Config) applyEnv(lookupEnv func(string) (string, bool)) error {
	set := func(dst *string, key string) {
		if v, ok := lookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	set(&cfg.Twilio.AccountSID, "TWILIO_ACCOUNT_SID")
	set(&cfg.Twilio.AuthToken, "TWILIO_AUTH_TOKEN")
	set(&cfg.Twilio.FromNumber, "TWILIO_FROM_NUMBER")
	set(&cfg.Twilio.AuthTokenParameter, "TWILIO_AUTH_TOKEN_PARAMETER")
	set(&cfg.Directory.URL, "DIRECTORY_URL")
	set(&cfg.Slack.APIToken, "SLACK_API_TOKEN")
	set(&cfg.Slack.Channel, "SLACK_CHANNEL")
	set(&cfg.AWS.AlarmSqsURL, "ALARM_SQS_URL")
	set(&cfg.AWS.Region, "AWS_REGION")

	if v, ok := lookupEnv("DEBUG"); ok && v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, "invalid DEBUG value")
		}
		cfg.Debug = debug
	}
	return nil
}

func (cfg *Config) setDefaults() {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Directory.URL == "" {
		cfg.Directory.URL = DefaultDirectoryURL
	}
	if cfg.Directory.Timeout <= 0 {
		cfg.Directory.Timeout = DefaultDirectoryTimeout
	}
	if cfg.Twilio.BaseURL == "" {
		cfg.Twilio.BaseURL = DefaultTwilioBaseURL
	}
	if cfg.Twilio.Timeout <= 0 {
		cfg.Twilio.Timeout = DefaultCallTimeout
	}
	if cfg.Twilio.GatherTimeout <= 0 {
		cfg.Twilio.GatherTimeout = DefaultGatherTimeout
	}
}
