package reachkit

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/optimode/reachkit/cache"
	"github.com/optimode/reachkit/types"
)

// Config is the YAML deployment shape. Every field is optional; nil
// pointers mean "keep the built-in default", so an explicit false (or
// an explicit maxRetries: 0) survives the round trip.
//
//	verifySmtp: true
//	smtpOptions:
//	  ports: [25, 587]
//	  maxRetries: 0
//	  tls:
//	    minVersion: TLSv1.3
//	cache:
//	  mx:
//	    ttl: 10m
type Config struct {
	VerifyMX                    *bool                        `yaml:"verifyMx"`
	VerifySMTP                  *bool                        `yaml:"verifySmtp"`
	CheckDisposable             *bool                        `yaml:"checkDisposable"`
	CheckFree                   *bool                        `yaml:"checkFree"`
	SuggestDomain               *bool                        `yaml:"suggestDomain"`
	DetectName                  *bool                        `yaml:"detectName"`
	SpamCheck                   *bool                        `yaml:"spamCheck"`
	EnableProviderOptimizations *bool                        `yaml:"enableProviderOptimizations"`
	UseYahooAPI                 *bool                        `yaml:"useYahooApi"`
	Timeout                     Duration                     `yaml:"timeout"`
	Debug                       *bool                        `yaml:"debug"`
	Proxy                       string                       `yaml:"proxy"`
	SMTP                        *SMTPConfig                  `yaml:"smtpOptions"`
	Yahoo                       *YahooConfig                 `yaml:"yahooApiOptions"`
	Suggestions                 *SuggestConfig               `yaml:"suggestOptions"`
	Cache                       map[string]CachePolicyConfig `yaml:"cache"`
}

// SMTPConfig is the YAML shape of SMTPOptions.
type SMTPConfig struct {
	Ports             []int           `yaml:"ports"`
	Timeout           Duration        `yaml:"timeout"`
	MaxRetries        *int            `yaml:"maxRetries"`
	TLS               *TLSConfig      `yaml:"tls"`
	Hostname          string          `yaml:"hostname"`
	UseVRFY           *bool           `yaml:"useVRFY"`
	CatchAll          *bool           `yaml:"catchAll"`
	Cache             *bool           `yaml:"cache"`
	Debug             *bool           `yaml:"debug"`
	Proxy             string          `yaml:"proxy"`
	MaxConcurrent     int             `yaml:"maxConcurrent"`
	PerDomainInterval Duration        `yaml:"perDomainInterval"`
	Sequence          *SequenceConfig `yaml:"sequence"`
}

// TLSConfig accepts either a bare boolean ("tls: false" disables TLS)
// or the object form with rejectUnauthorized and minVersion.
type TLSConfig struct {
	Enabled            bool
	RejectUnauthorized bool   `yaml:"rejectUnauthorized"`
	MinVersion         string `yaml:"minVersion"`
}

// UnmarshalYAML implements the bool-or-object union.
func (c *TLSConfig) UnmarshalYAML(node *yaml.Node) error {
	var enabled bool
	if err := node.Decode(&enabled); err == nil {
		c.Enabled = enabled
		return nil
	}
	type plain TLSConfig
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*c = TLSConfig(p)
	c.Enabled = true
	return nil
}

// SequenceConfig is the YAML shape of Sequence. Steps use the wire
// names: greeting, ehlo, starttls, mail_from, rcpt_to, vrfy, quit.
type SequenceConfig struct {
	Steps      []string `yaml:"steps"`
	From       string   `yaml:"from"`
	VrfyTarget string   `yaml:"vrfyTarget"`
}

// YahooConfig is the YAML shape of YahooAPIOptions.
type YahooConfig struct {
	SignupURL   string   `yaml:"signupUrl"`
	ValidateURL string   `yaml:"validateUrl"`
	UserAgent   string   `yaml:"userAgent"`
	Timeout     Duration `yaml:"timeout"`
}

// SuggestConfig is the YAML shape of SuggestOptions.
type SuggestConfig struct {
	Threshold    int      `yaml:"threshold"`
	ExtraDomains []string `yaml:"extraDomains"`
}

// CachePolicyConfig is a per-namespace eviction override.
type CachePolicyConfig struct {
	MaxSize int      `yaml:"maxSize"`
	TTL     Duration `yaml:"ttl"`
}

// Duration decodes either a Go duration string ("3s", "250ms") or an
// integer nanosecond count.
type Duration time.Duration

// UnmarshalYAML implements the string-or-int union.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var n int64
	if err := node.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reachkit: reading config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config bytes. Unknown keys are rejected so
// typos in deployment files fail loudly.
func ParseConfig(data []byte) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("reachkit: parsing config: %w", err)
	}
	return &c, nil
}

// Verifier builds a Verifier from the config. Invalid values (unknown
// TLS version, unknown step name) are recorded the same way builder
// misuse is: the first Verify call returns them.
func (c *Config) Verifier() *Verifier {
	v := New()

	if c.VerifyMX != nil && !*c.VerifyMX {
		v.WithoutMX()
	}
	if c.CheckDisposable != nil && !*c.CheckDisposable {
		v.WithoutDisposable()
	}
	if c.CheckFree != nil && !*c.CheckFree {
		v.WithoutFree()
	}
	if c.SuggestDomain != nil && *c.SuggestDomain {
		opts := SuggestOptions{}
		if c.Suggestions != nil {
			opts.Threshold = c.Suggestions.Threshold
			opts.ExtraDomains = c.Suggestions.ExtraDomains
		}
		v.WithSuggestions(opts)
	}
	if c.DetectName != nil && *c.DetectName {
		v.WithNameDetection()
	}
	if c.SpamCheck != nil && *c.SpamCheck {
		v.WithSpamCheck()
	}
	if c.EnableProviderOptimizations != nil && *c.EnableProviderOptimizations {
		v.WithProviderOptimizations()
	}
	if c.Timeout > 0 {
		v.WithTimeout(time.Duration(c.Timeout))
	}
	if c.Debug != nil && *c.Debug {
		v.WithDebug()
	}
	if c.Proxy != "" {
		v.WithProxy(c.Proxy)
	}
	if c.UseYahooAPI != nil && *c.UseYahooAPI {
		opts := YahooAPIOptions{}
		if c.Yahoo != nil {
			opts.SignupURL = c.Yahoo.SignupURL
			opts.ValidateURL = c.Yahoo.ValidateURL
			opts.UserAgent = c.Yahoo.UserAgent
			opts.Timeout = time.Duration(c.Yahoo.Timeout)
		}
		v.WithYahooAPI(opts)
	}
	if c.VerifySMTP != nil && *c.VerifySMTP {
		opts, err := c.smtpOptions()
		if err != nil {
			v.fail(err)
		} else {
			v.WithSMTP(opts)
		}
	}
	if len(c.Cache) > 0 {
		policies := make(map[cache.Namespace]cache.Policy, len(c.Cache))
		for ns, p := range c.Cache {
			policies[cache.Namespace(ns)] = cache.Policy{
				MaxSize: p.MaxSize,
				TTL:     time.Duration(p.TTL),
			}
		}
		v.WithCache(CacheOptions{Policies: policies})
	}

	return v
}

func (c *Config) smtpOptions() (SMTPOptions, error) {
	opts := SMTPOptions{}
	s := c.SMTP
	if s == nil {
		return opts, nil
	}

	opts.Ports = s.Ports
	opts.Timeout = time.Duration(s.Timeout)
	opts.MaxRetries = s.MaxRetries
	opts.HelloName = s.Hostname
	opts.Proxy = s.Proxy
	opts.MaxConcurrent = s.MaxConcurrent
	opts.PerDomainInterval = time.Duration(s.PerDomainInterval)
	if s.UseVRFY != nil {
		opts.DisableVRFY = !*s.UseVRFY
	}
	if s.CatchAll != nil {
		opts.DisableCatchAll = !*s.CatchAll
	}
	if s.Cache != nil {
		opts.DisableCache = !*s.Cache
	}
	if s.Debug != nil {
		opts.Debug = *s.Debug
	}

	if s.TLS != nil {
		tlsOpts := TLSOptions{
			Disabled:           !s.TLS.Enabled,
			RejectUnauthorized: s.TLS.RejectUnauthorized,
		}
		switch s.TLS.MinVersion {
		case "":
		case "TLSv1.2":
			tlsOpts.MinVersion = tls.VersionTLS12
		case "TLSv1.3":
			tlsOpts.MinVersion = tls.VersionTLS13
		default:
			return opts, fmt.Errorf("%w: unknown TLS version %q", ErrInvalidSMTPOptions, s.TLS.MinVersion)
		}
		opts.TLS = &tlsOpts
	}

	if s.Sequence != nil {
		seq := Sequence{From: s.Sequence.From, VrfyTarget: s.Sequence.VrfyTarget}
		for _, step := range s.Sequence.Steps {
			seq.Steps = append(seq.Steps, types.Step(step))
		}
		opts.Sequence = &seq
	}

	return opts, nil
}
