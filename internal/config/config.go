package config

import (
	"encoding/base64"
	"io/fs"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrConfiguration marks every error that must abort the process before the
// first booking attempt.
var ErrConfiguration = errors.New("configuration error")

// Applicant holds the raw profile values as configured.
type Applicant struct {
	LastName  string
	FirstName string
	Birthdate string
	Phone     string
	Email     string
}

type Config struct {
	TargetURL string
	Applicant Applicant

	// scheduler
	Budget      time.Duration
	PauseMin    time.Duration
	PauseMax    time.Duration
	SettleDelay time.Duration
	WaitTimeout time.Duration

	// browser
	Headless    bool
	BrowserURL  string
	MarkersFile string

	// deactivation
	GitHubToken  string
	GitHubRepo   string
	WorkflowName string
	GitHubAPIURL string

	// journal + dashboard
	DatabaseURL    string
	ListenAddr     string
	CookieHashKey  []byte
	CookieBlockKey []byte

	LogLevel string
	LogJSON  bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("appointment_url", "")
	v.SetDefault("my_last_name", "Surname")
	v.SetDefault("my_first_name", "FirstName")
	v.SetDefault("my_birthdate", "01.01.1990")
	v.SetDefault("my_phone", "0123456789")
	v.SetDefault("my_email", "your_email@example.com")

	v.SetDefault("booker_budget", "280s")
	v.SetDefault("booker_pause_min", "55s")
	v.SetDefault("booker_pause_max", "65s")
	v.SetDefault("booker_settle_delay", "5s")
	v.SetDefault("booker_wait_timeout", "15s")
	v.SetDefault("booker_headless", true)
	v.SetDefault("booker_browser_url", "")
	v.SetDefault("booker_markers_file", "")

	v.SetDefault("github_token", "")
	v.SetDefault("github_repository", "")
	v.SetDefault("booker_workflow_name", "Appointment Bot")
	v.SetDefault("github_api_url", "https://api.github.com")

	v.SetDefault("database_url", "")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("cookie_hash_key", "")
	v.SetDefault("cookie_block_key", "")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// Load reads configuration from the environment, an optional .env file in the
// working directory and an optional config file. Only the shape of the values
// is checked here; commands call the Require* methods for what they need.
func Load(configFile string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, errors.Mark(errors.Wrap(err, "load .env"), ErrConfiguration)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Mark(errors.Wrapf(err, "read config %s", configFile), ErrConfiguration)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		TargetURL: strings.TrimSpace(v.GetString("appointment_url")),
		Applicant: Applicant{
			LastName:  v.GetString("my_last_name"),
			FirstName: v.GetString("my_first_name"),
			Birthdate: v.GetString("my_birthdate"),
			Phone:     v.GetString("my_phone"),
			Email:     v.GetString("my_email"),
		},
		Headless:     v.GetBool("booker_headless"),
		BrowserURL:   strings.TrimSpace(v.GetString("booker_browser_url")),
		MarkersFile:  strings.TrimSpace(v.GetString("booker_markers_file")),
		GitHubToken:  strings.TrimSpace(v.GetString("github_token")),
		GitHubRepo:   strings.TrimSpace(v.GetString("github_repository")),
		WorkflowName: v.GetString("booker_workflow_name"),
		GitHubAPIURL: strings.TrimRight(v.GetString("github_api_url"), "/"),
		DatabaseURL:  strings.TrimSpace(v.GetString("database_url")),
		ListenAddr:   v.GetString("listen_addr"),
		LogLevel:     v.GetString("log_level"),
		LogJSON:      v.GetBool("log_json"),
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"booker_budget", &cfg.Budget},
		{"booker_pause_min", &cfg.PauseMin},
		{"booker_pause_max", &cfg.PauseMax},
		{"booker_settle_delay", &cfg.SettleDelay},
		{"booker_wait_timeout", &cfg.WaitTimeout},
	}
	for _, d := range durations {
		val, err := parseDuration(v.GetString(d.key))
		if err != nil {
			return Config{}, errors.Mark(errors.Wrap(err, strings.ToUpper(d.key)), ErrConfiguration)
		}
		*d.dst = val
	}

	if cfg.Budget <= 0 {
		return Config{}, errors.Mark(errors.Newf("BOOKER_BUDGET must be positive (got %s)", cfg.Budget), ErrConfiguration)
	}
	if cfg.PauseMin <= 0 || cfg.PauseMax < cfg.PauseMin {
		return Config{}, errors.Mark(errors.Newf("invalid pause band %s..%s", cfg.PauseMin, cfg.PauseMax), ErrConfiguration)
	}
	if cfg.WaitTimeout <= 0 {
		return Config{}, errors.Mark(errors.New("BOOKER_WAIT_TIMEOUT must be positive"), ErrConfiguration)
	}

	var err error
	if cfg.CookieHashKey, err = decodeB64(v.GetString("cookie_hash_key")); err != nil {
		return Config{}, errors.Mark(errors.Wrap(err, "COOKIE_HASH_KEY"), ErrConfiguration)
	}
	if cfg.CookieBlockKey, err = decodeB64(v.GetString("cookie_block_key")); err != nil {
		return Config{}, errors.Mark(errors.Wrap(err, "COOKIE_BLOCK_KEY"), ErrConfiguration)
	}
	return cfg, nil
}

// RequireTarget checks the values a booking run cannot start without.
func (c Config) RequireTarget() error {
	if c.TargetURL == "" {
		return errors.WithHint(
			errors.Mark(errors.New("APPOINTMENT_URL is required"), ErrConfiguration),
			"export APPOINTMENT_URL with the booking page of the office",
		)
	}
	u, err := url.Parse(c.TargetURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Mark(errors.Newf("APPOINTMENT_URL %q is not an http(s) URL", c.TargetURL), ErrConfiguration)
	}
	return nil
}

// RequireDatabase is used by commands that only make sense with a journal.
func (c Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return errors.Mark(errors.New("DATABASE_URL is required"), ErrConfiguration)
	}
	return nil
}

func (c Config) RequireCookieKeys() error {
	if len(c.CookieHashKey) == 0 || len(c.CookieBlockKey) == 0 {
		return errors.WithHint(
			errors.Mark(errors.New("COOKIE_HASH_KEY and COOKIE_BLOCK_KEY are required"), ErrConfiguration),
			"generate them with `slotbooker keys`",
		)
	}
	switch len(c.CookieBlockKey) {
	case 16, 24, 32:
	default:
		return errors.Mark(errors.Newf("COOKIE_BLOCK_KEY must decode to 16, 24 or 32 bytes (got %d)", len(c.CookieBlockKey)), ErrConfiguration)
	}
	return nil
}

// parseDuration accepts Go duration strings ("280s", "4m40s"). A bare
// integer is a number of seconds.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.Newf("invalid duration %q (use 280s, 4m40s or a number of seconds)", s)
	}
	return d, nil
}

func decodeB64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
