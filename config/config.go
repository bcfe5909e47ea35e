package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds everything the server needs at start up.
type Config struct {
	Port             int
	DBDriver         string
	DBDSN            string
	DBTimeout        time.Duration
	JWTSecret        string
	LogLevel         string
	StorageDir       string
	StoragePublicURL string
	RingTimeout      time.Duration
	PushPingInterval time.Duration
	PushPongTimeout  time.Duration
	CORSOrigins      []string
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app_port", 8082)
	v.SetDefault("db_driver", "mysql")
	v.SetDefault("db_dsn", "")
	v.SetDefault("db_timeout", 5*time.Second)
	v.SetDefault("jwt_secret", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("storage_dir", "./data")
	v.SetDefault("storage_public_url", "http://localhost:8082/files")
	v.SetDefault("ring_timeout", 45*time.Second)
	v.SetDefault("push_ping_interval", 10*time.Second)
	v.SetDefault("push_pong_timeout", 15*time.Second)
	v.SetDefault("cors_origins", "*")
}

// BindEnv reads .env (if present) into the environment and makes v resolve
// keys from environment variables named by the upper-case key, e.g. DB_DSN.
func BindEnv(v *viper.Viper) {
	_ = godotenv.Load()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load builds a Config from v after binding the environment.
func Load(v *viper.Viper) Config {
	SetDefaults(v)
	BindEnv(v)

	var origins []string
	for _, o := range strings.Split(v.GetString("cors_origins"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return Config{
		Port:             v.GetInt("app_port"),
		DBDriver:         strings.ToLower(v.GetString("db_driver")),
		DBDSN:            v.GetString("db_dsn"),
		DBTimeout:        v.GetDuration("db_timeout"),
		JWTSecret:        v.GetString("jwt_secret"),
		LogLevel:         v.GetString("log_level"),
		StorageDir:       v.GetString("storage_dir"),
		StoragePublicURL: strings.TrimRight(v.GetString("storage_public_url"), "/"),
		RingTimeout:      v.GetDuration("ring_timeout"),
		PushPingInterval: v.GetDuration("push_ping_interval"),
		PushPongTimeout:  v.GetDuration("push_pong_timeout"),
		CORSOrigins:      origins,
	}
}
