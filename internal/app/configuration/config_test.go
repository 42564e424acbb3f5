package configuration

import (
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/form3tech-oss/pact-mock/internal/app/mockserver"
)

func TestConfigDefaults(t *testing.T) {
	config, err := newFromLookuper(envconfig.MapLookuper(map[string]string{}))
	require.NoError(t, err)

	assert.Equal(t, Config{
		AdminPort:    8080,
		MockHost:     "127.0.0.1",
		PactDir:      "./pacts",
		LogLevel:     LogLevelInfo,
		WaitDelay:    500 * time.Millisecond,
		WaitDuration: 15 * time.Second,
	}, config)
}

func TestConfigFromEnv(t *testing.T) {
	config, err := newFromLookuper(envconfig.MapLookuper(map[string]string{
		"ADMIN_PORT":    "9090",
		"MOCK_HOST":     "0.0.0.0",
		"PACT_DIR":      "/tmp/pacts",
		"LOG_LEVEL":     "DEBUG",
		"WAIT_DELAY":    "10ms",
		"WAIT_DURATION": "1s",
		"CORS":          "true",
		"TLS_CERT_FILE": "cert.pem",
		"TLS_KEY_FILE":  "key.pem",
	}))
	require.NoError(t, err)

	assert.Equal(t, 9090, config.AdminPort)
	assert.Equal(t, "0.0.0.0", config.MockHost)
	assert.Equal(t, "/tmp/pacts", config.PactDir)
	assert.Equal(t, LogLevelDebug, config.LogLevel)
	assert.Equal(t, mockserver.Options{
		CORS:         true,
		TLSCertFile:  "cert.pem",
		TLSKeyFile:   "key.pem",
		WaitDelay:    10 * time.Millisecond,
		WaitDuration: time.Second,
	}, config.MockOptions())
}

func TestConfigRejectsUnknownLogLevel(t *testing.T) {
	_, err := newFromLookuper(envconfig.MapLookuper(map[string]string{"LOG_LEVEL": "loud"}))
	assert.Error(t, err)
}
