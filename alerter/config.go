package alerter

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// InputsConfig lists the cohort tables, one or more CSV paths per kind
// (typically one file per institute, in precedence order).
type InputsConfig struct {
	Roster     []string `yaml:"roster"`
	Scores     []string `yaml:"scores"`
	Attendance []string `yaml:"attendance"`
	Mentors    []string `yaml:"mentors"`
	Parents    []string `yaml:"parents"`
	Fees       []string `yaml:"fees"`
	// Alerts is optional: when absent, alerts are composed from the risk
	// records instead of read from a prepared table.
	Alerts []string `yaml:"alerts"`
}

// CredentialsConfig holds delivery credentials from the config file. Empty
// values fall back to the conventional environment variables, so secrets can
// stay out of the file entirely.
type CredentialsConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	User          string `yaml:"user"`
	Secret        string `yaml:"secret"`
	ProviderSID   string `yaml:"provider_id"`
	ProviderToken string `yaml:"provider_token"`
	SenderID      string `yaml:"sender_id"`
}

// Environment fallbacks for credentials left out of the config file.
const (
	envSMTPHost   = "SMTP_HOST"
	envSMTPPort   = "SMTP_PORT"
	envSMTPUser   = "SMTP_USER"
	envSMTPPass   = "SMTP_PASS"
	envTwilioSID  = "TWILIO_SID"
	envTwilioAuth = "TWILIO_AUTH"
	envTwilioFrom = "TWILIO_FROM"
)

// Resolve merges the file values with environment fallbacks into the
// explicit credentials struct the dispatcher takes.
func (c CredentialsConfig) Resolve() ChannelCredentials {
	creds := ChannelCredentials{
		Host:          fallbackEnv(c.Host, envSMTPHost),
		Port:          c.Port,
		User:          fallbackEnv(c.User, envSMTPUser),
		Secret:        fallbackEnv(c.Secret, envSMTPPass),
		ProviderSID:   fallbackEnv(c.ProviderSID, envTwilioSID),
		ProviderToken: fallbackEnv(c.ProviderToken, envTwilioAuth),
		SenderID:      fallbackEnv(c.SenderID, envTwilioFrom),
	}
	if creds.Port == 0 {
		if p, err := strconv.Atoi(os.Getenv(envSMTPPort)); err == nil {
			creds.Port = p
		}
	}
	return creds
}

func fallbackEnv(v, envKey string) string {
	if v != "" {
		return v
	}
	return os.Getenv(envKey)
}

// ThresholdsConfig overrides the tier cut points. Pointers distinguish "not
// set" from an explicit zero.
type ThresholdsConfig struct {
	High   *float64 `yaml:"high"`
	Medium *float64 `yaml:"medium"`
}

func (t ThresholdsConfig) Resolve() TierThresholds {
	out := DefaultTierThresholds
	if t.High != nil {
		out.High = *t.High
	}
	if t.Medium != nil {
		out.Medium = *t.Medium
	}
	return out
}

// FileConfig is the YAML pipeline configuration. CLI flags override
// individual fields; see cmd/risk-alerter.
type FileConfig struct {
	Store     string `yaml:"store"`
	Artifacts string `yaml:"artifacts"`
	ErrorDir  string `yaml:"error_dir"`
	Debug     bool   `yaml:"debug"`

	// Strategy selects the risk evaluator: rules, logistic or tree.
	Strategy string `yaml:"strategy"`

	// NotifyTier is the minimum tier that triggers notification under the
	// classifier strategies (the rule engine has its own score>0 rule).
	NotifyTier string `yaml:"notify_tier"`

	// Channels is the ordered fallback chain, attempted left to right.
	Channels []string `yaml:"channels"`

	Thresholds  ThresholdsConfig  `yaml:"thresholds"`
	Inputs      InputsConfig      `yaml:"inputs"`
	Credentials CredentialsConfig `yaml:"credentials"`
}

func LoadConfig(path string) (*FileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
