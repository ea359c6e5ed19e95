package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var keys = []string{
	"HOST", "PORT", "LOG_LEVEL", "LOG_FORMAT", "STORE_DRIVER", "STORE_DSN", "STATIC_DIR",
	"ALLOWED_ORIGINS", "BCRYPT_COST", "HISTORY_DEFAULT_LIMIT", "HISTORY_MAX_LIMIT",
	"MAX_CONTENT_LENGTH", "SEND_TIMEOUT", "SEND_BUFFER_SIZE", "WS_MAX_MESSAGE_SIZE", "SHUTDOWN_TIMEOUT",
}

// clearEnv unsets every config key for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			require.NoError(t, os.Unsetenv(k))
			t.Cleanup(func() { _ = os.Setenv(k, v) })
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	req := require.New(t)
	clearEnv(t)
	t.Setenv("STORE_DSN", "chat.db")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	req.Error(err)

	cfg, err := Load("")
	req.NoError(err)
	req.Equal("0.0.0.0:3000", cfg.Addr())
	req.Equal("sqlite", cfg.StoreDriver)
	req.Equal("info", cfg.LogLevel)
	req.Equal(10, cfg.BcryptCost)
	req.Equal(30, cfg.HistoryDefaultLimit)
	req.Equal(100, cfg.HistoryMaxLimit)
	req.Equal(2000, cfg.MaxContentLength)
	req.Equal(5*time.Second, cfg.SendTimeout)
	req.Equal(64, cfg.SendBufferSize)
	req.Equal(int64(65536), cfg.WSMaxMessageSize)
	req.Equal(10*time.Second, cfg.ShutdownTimeout)
	req.Equal([]string{"*"}, cfg.Origins())
}

func TestLoad_Requires_DSN(t *testing.T) {
	clearEnv(t)

	_, err := Load("")

	require.Error(t, err)
}

func TestLoad_Rejects_Invalid_Values(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"weak bcrypt", "BCRYPT_COST", "4"},
		{"unknown driver", "STORE_DRIVER", "postgres"},
		{"unknown level", "LOG_LEVEL", "verbose"},
		{"max below default", "HISTORY_MAX_LIMIT", "10"},
		{"zero timeout", "SEND_TIMEOUT", "0s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("STORE_DSN", "chat.db")
			t.Setenv(tt.key, tt.value)

			_, err := Load("")

			require.Error(t, err)
		})
	}
}

func TestLoad_Env_File_Fills_Missing_Keys(t *testing.T) {
	req := require.New(t)
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	req.NoError(os.WriteFile(path, []byte("STORE_DSN=from-file.db\nLOG_FORMAT=json\nALLOWED_ORIGINS=https://a.example, https://b.example\n"), 0o600))
	t.Setenv("STORE_DSN", "from-env.db")

	cfg, err := Load(path)

	req.NoError(err)
	req.Equal("from-env.db", cfg.StoreDSN)
	req.Equal("json", cfg.LogFormat)
	req.Equal([]string{"https://a.example", "https://b.example"}, cfg.Origins())
}

func TestNewLogger_Formats_And_Levels(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	log := NewLogger("warn", "json", &buf)
	log.Info("hidden")
	log.Warn("shown", "k", "v")

	req.NotContains(buf.String(), "hidden")
	req.Contains(buf.String(), `"msg":"shown"`)

	buf.Reset()
	NewLogger("nonsense", "text", &buf).Info("fallback")
	req.Contains(buf.String(), "msg=fallback")
}
