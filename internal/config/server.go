package config

import (
	"flag"
	"os"
	"time"
)

// ServerOptions holds the configuration values for the authority server.
type ServerOptions struct {
	// Port defines the server's listening address (ip:port).
	Port string

	// DatabaseDSN holds the database connection string for the application.
	DatabaseDSN string

	// AdminKey is the value expected in the X-Admin-Key header.
	AdminKey string

	// Puzzles is the path to the YAML file the nodes are seeded from.
	Puzzles string

	// Window is the length of a decryption window started without an
	// explicit duration.
	Window time.Duration

	// CORSOrigins lists the origins allowed to call the API from a browser.
	CORSOrigins []string

	// LogLevel is the minimum level written to the log.
	LogLevel string

	// TLSCert and TLSKey switch the server to HTTPS when both are set.
	TLSCert string
	TLSKey  string

	// Config is the path to the Config file.
	Config string
}

type serverFile struct {
	Address     *string  `json:"address" yaml:"address"`
	DatabaseDSN *string  `json:"database_dsn" yaml:"database_dsn"`
	AdminKey    *string  `json:"admin_key" yaml:"admin_key"`
	Puzzles     *string  `json:"puzzles" yaml:"puzzles"`
	Window      *string  `json:"window" yaml:"window"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins"`
	LogLevel    *string  `json:"log_level" yaml:"log_level"`
	TLSCert     *string  `json:"tls_cert" yaml:"tls_cert"`
	TLSKey      *string  `json:"tls_key" yaml:"tls_key"`
}

// ParseServer parses args (without the program name), the config file and
// the environment into ServerOptions.
func ParseServer(args []string) (*ServerOptions, error) {
	options := &ServerOptions{}
	var origins string

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.StringVar(&options.Port, "a", "localhost:8080", "run on ip:port server")
	fs.StringVar(&options.DatabaseDSN, "d", "", "db address")
	fs.StringVar(&options.AdminKey, "admin-key", "", "admin API key")
	fs.StringVar(&options.Puzzles, "puzzles", "puzzles.yaml", "path to puzzle seed file")
	fs.DurationVar(&options.Window, "window", 60*time.Minute, "default decryption window")
	fs.StringVar(&origins, "cors-origins", "", "comma-separated allowed CORS origins")
	fs.StringVar(&options.LogLevel, "log-level", "info", "log level")
	fs.StringVar(&options.TLSCert, "tls-cert", "", "path to server TLS certificate")
	fs.StringVar(&options.TLSKey, "tls-key", "", "path to server TLS key")
	fs.StringVar(&options.Config, "config", "config.json", "path to config file")
	fs.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	options.CORSOrigins = splitList(origins)

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	// Override flags with environment variables if set
	if configPath := os.Getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	var file serverFile
	if err := readFile(options.Config, &file); err != nil {
		return nil, err
	}
	setString(&options.Port, file.Address)
	setString(&options.DatabaseDSN, file.DatabaseDSN)
	setString(&options.AdminKey, file.AdminKey)
	setString(&options.Puzzles, file.Puzzles)
	setString(&options.LogLevel, file.LogLevel)
	setString(&options.TLSCert, file.TLSCert)
	setString(&options.TLSKey, file.TLSKey)
	if file.CORSOrigins != nil {
		options.CORSOrigins = file.CORSOrigins
	}
	if err := setDuration(&options.Window, file.Window, "window"); err != nil {
		return nil, err
	}

	envString("SERVER_ADDRESS", &options.Port)
	envString("DATABASE_DSN", &options.DatabaseDSN)
	envString("ADMIN_KEY", &options.AdminKey)
	envString("PUZZLES", &options.Puzzles)
	envString("LOG_LEVEL", &options.LogLevel)
	envString("TLS_CERT", &options.TLSCert)
	envString("TLS_KEY", &options.TLSKey)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		options.CORSOrigins = splitList(v)
	}
	if err := envDuration("EVENT_WINDOW", &options.Window); err != nil {
		return nil, err
	}

	return options, nil
}
