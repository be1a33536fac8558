package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

const EnvPrefix = "PBPD"

type Config struct {
	Mode     Mode
	HTTPAddr string

	DBDriver string
	DBDSN    string

	BlobBasePath string

	ModelsDir          string
	ModelsRemoteURL    string
	ModelsTimeout      time.Duration
	ModelsTokenURL     string // client-credentials token endpoint for the remote model server
	ModelsClientID     string
	ModelsClientSecret string

	EnableAuth    bool
	HMACSecret    string
	AdminUser     string
	AdminPassHash string // bcrypt

	CORSOrigins []string

	LogLevel  string
	LogFormat string
}

// defaults per key. auth.enabled has none: it follows mode unless set.
var defaults = map[string]any{
	"mode":                 string(ModeOffline),
	"http.addr":            ":8080",
	"db.driver":            "sqlite",
	"db.dsn":               "",
	"blob.base_path":       "./data",
	"models.dir":           "./models",
	"models.remote_url":    "",
	"models.timeout":       "10s",
	"models.token_url":     "",
	"models.client_id":     "",
	"models.client_secret": "",
	"auth.hmac_secret":     "dev-secret-change-me",
	"auth.admin_user":      "admin",
	"auth.admin_pass_hash": "$2y$12$pyZAiWaTfVtM7UElIRStvOC3gNbnp70nmQU4eYopLGBfCJr1DOvji",
	"cors.origins":         []string{"http://localhost:3000", "http://localhost:8501"},
	"log.level":            "info",
	"log.format":           "json",
}

// New returns a viper instance with defaults and PBPD_* environment binding.
// PBPD_HTTP_ADDR sets http.addr.
func New() *viper.Viper {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads an optional config file, then environment, then flags (highest
// precedence). flags may be nil.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, err
		}
	}
	return FromViper(v)
}

func FromViper(v *viper.Viper) (Config, error) {
	mode := Mode(strings.ToLower(v.GetString("mode")))
	switch mode {
	case ModeOffline, ModeOnline:
	default:
		return Config{}, fmt.Errorf("mode: unknown %q (want offline|online)", mode)
	}
	driver := strings.ToLower(v.GetString("db.driver"))
	if driver != "sqlite" && driver != "postgres" {
		return Config{}, fmt.Errorf("db.driver: unknown %q (want sqlite|postgres)", driver)
	}
	timeout := v.GetDuration("models.timeout")
	if timeout <= 0 {
		return Config{}, errors.New("models.timeout must be positive")
	}

	cfg := Config{
		Mode:               mode,
		HTTPAddr:           v.GetString("http.addr"),
		DBDriver:           driver,
		DBDSN:              v.GetString("db.dsn"),
		BlobBasePath:       v.GetString("blob.base_path"),
		ModelsDir:          v.GetString("models.dir"),
		ModelsRemoteURL:    strings.TrimSuffix(v.GetString("models.remote_url"), "/"),
		ModelsTimeout:      timeout,
		ModelsTokenURL:     v.GetString("models.token_url"),
		ModelsClientID:     v.GetString("models.client_id"),
		ModelsClientSecret: v.GetString("models.client_secret"),
		EnableAuth:         mode == ModeOnline,
		HMACSecret:         v.GetString("auth.hmac_secret"),
		AdminUser:          v.GetString("auth.admin_user"),
		AdminPassHash:      v.GetString("auth.admin_pass_hash"),
		CORSOrigins:        cleanList(v.GetStringSlice("cors.origins")),
		LogLevel:           v.GetString("log.level"),
		LogFormat:          v.GetString("log.format"),
	}
	if v.IsSet("auth.enabled") {
		cfg.EnableAuth = v.GetBool("auth.enabled")
	}
	if cfg.EnableAuth && cfg.Mode == ModeOnline && cfg.HMACSecret == defaults["auth.hmac_secret"] {
		return Config{}, errors.New("auth.hmac_secret must be set in online mode")
	}
	return cfg, nil
}

// cleanList also splits comma-joined entries, which is what a single
// PBPD_CORS_ORIGINS variable yields.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, p := range strings.Split(item, ",") {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
