package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load(viper.New())
	assert.Equal(t, 8082, cfg.Port)
	assert.Equal(t, "mysql", cfg.DBDriver)
	assert.Equal(t, 45*time.Second, cfg.RingTimeout)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("APP_PORT", "9000")
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("RING_TIMEOUT", "30s")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("STORAGE_PUBLIC_URL", "https://cdn.example/files/")

	cfg := Load(viper.New())
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 30*time.Second, cfg.RingTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, "https://cdn.example/files", cfg.StoragePublicURL)
}

func TestInitDBRejectsUnknownDriver(t *testing.T) {
	_, err := InitDB(Config{DBDriver: "postgres"})
	assert.Error(t, err)
}

func TestInitDBSqlite(t *testing.T) {
	db, err := InitDB(Config{DBDriver: "sqlite", DBDSN: "file::memory:"})
	if assert.NoError(t, err) {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	}
}
