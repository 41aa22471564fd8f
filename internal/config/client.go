package config

import (
	"flag"
	"os"
	"time"
)

// ClientOptions holds the configuration values for the node terminal.
type ClientOptions struct {
	// URL is the authority base URL.
	URL string

	// CA is an optional PEM bundle trusted for HTTPS authorities.
	CA string

	// StateDir holds the persisted session of every terminal instance.
	StateDir string

	// Instance scopes the persisted session, so two terminals sharing a
	// state directory do not share a session.
	Instance string

	// Poll is the status polling period.
	Poll time.Duration

	// HintCooldown is the wait between two hint reveals.
	HintCooldown time.Duration

	// TypeDelay is the pause after each line of a typed sequence.
	TypeDelay time.Duration

	// Timeout bounds each authority request; 0 means no limit.
	Timeout time.Duration

	// NoColor disables ANSI colors.
	NoColor bool

	LogFile  string
	LogLevel string

	// Config is the path to the Config file.
	Config string
}

type clientFile struct {
	URL          *string `json:"url" yaml:"url"`
	CA           *string `json:"ca" yaml:"ca"`
	StateDir     *string `json:"state_dir" yaml:"state_dir"`
	Instance     *string `json:"instance" yaml:"instance"`
	Poll         *string `json:"poll" yaml:"poll"`
	HintCooldown *string `json:"hint_cooldown" yaml:"hint_cooldown"`
	TypeDelay    *string `json:"type_delay" yaml:"type_delay"`
	Timeout      *string `json:"request_timeout" yaml:"request_timeout"`
	NoColor      *bool   `json:"no_color" yaml:"no_color"`
	LogFile      *string `json:"log_file" yaml:"log_file"`
	LogLevel     *string `json:"log_level" yaml:"log_level"`
}

// ParseClient parses args (without the program name), the config file and
// the environment into ClientOptions.
func ParseClient(args []string) (*ClientOptions, error) {
	options := &ClientOptions{}

	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.StringVar(&options.URL, "url", "http://localhost:8080", "authority base URL")
	fs.StringVar(&options.CA, "ca", "", "path to CA cert for HTTPS authorities")
	fs.StringVar(&options.StateDir, "state-dir", ".twinlock", "directory for persisted sessions")
	fs.StringVar(&options.Instance, "instance", "default", "terminal instance name")
	fs.DurationVar(&options.Poll, "poll", 2500*time.Millisecond, "status poll interval")
	fs.DurationVar(&options.HintCooldown, "hint-cooldown", 5*time.Minute, "wait between hint reveals")
	fs.DurationVar(&options.TypeDelay, "type-delay", 40*time.Millisecond, "delay between typed lines")
	fs.DurationVar(&options.Timeout, "timeout", 0, "authority request timeout (0 = none)")
	fs.BoolVar(&options.NoColor, "no-color", false, "disable colors")
	fs.StringVar(&options.LogFile, "log-file", "twinlock.log", "log file (empty disables logging)")
	fs.StringVar(&options.LogLevel, "log-level", "info", "log level")
	fs.StringVar(&options.Config, "config", "", "path to config file")
	fs.StringVar(&options.Config, "c", "", "path to config file (shorthand)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	if configPath := os.Getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	var file clientFile
	if err := readFile(options.Config, &file); err != nil {
		return nil, err
	}
	setString(&options.URL, file.URL)
	setString(&options.CA, file.CA)
	setString(&options.StateDir, file.StateDir)
	setString(&options.Instance, file.Instance)
	setString(&options.LogFile, file.LogFile)
	setString(&options.LogLevel, file.LogLevel)
	if file.NoColor != nil {
		options.NoColor = *file.NoColor
	}
	for _, d := range []struct {
		dst  *time.Duration
		src  *string
		name string
	}{
		{&options.Poll, file.Poll, "poll"},
		{&options.HintCooldown, file.HintCooldown, "hint_cooldown"},
		{&options.TypeDelay, file.TypeDelay, "type_delay"},
		{&options.Timeout, file.Timeout, "request_timeout"},
	} {
		if err := setDuration(d.dst, d.src, d.name); err != nil {
			return nil, err
		}
	}

	envString("TWINLOCK_URL", &options.URL)
	envString("TWINLOCK_CA", &options.CA)
	envString("TWINLOCK_STATE_DIR", &options.StateDir)
	envString("TWINLOCK_INSTANCE", &options.Instance)
	if err := envDuration("TWINLOCK_HINT_COOLDOWN", &options.HintCooldown); err != nil {
		return nil, err
	}

	return options, nil
}
