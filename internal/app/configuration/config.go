package configuration

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sethvargo/go-envconfig"

	"github.com/form3tech-oss/pact-mock/internal/app/mockserver"
)

type Config struct {
	AdminPort    int           `env:"ADMIN_PORT,default=8080"`     // Port of the admin API
	MockHost     string        `env:"MOCK_HOST,default=127.0.0.1"` // Host mock servers bind to unless a request names one
	PactDir      string        `env:"PACT_DIR,default=./pacts"`    // Default directory pact files are written to
	LogLevel     LogLevel      `env:"LOG_LEVEL,default=info"`      // trace, debug, info, warn, error or off
	LogFile      string        `env:"LOG_FILE"`                    // Log to this file instead of stderr
	WaitDelay    time.Duration `env:"WAIT_DELAY,default=500ms"`    // Default Delay for the wait endpoint
	WaitDuration time.Duration `env:"WAIT_DURATION,default=15s"`   // Default Duration for the wait endpoint
	CORS         bool          `env:"CORS,default=false"`          // Answer CORS preflight requests on mock servers
	TLSCertFile  string        `env:"TLS_CERT_FILE"`               // Serve mock servers over HTTPS with this certificate
	TLSKeyFile   string        `env:"TLS_KEY_FILE"`                // and this key
}

func NewFromEnv() (Config, error) {
	return newFromLookuper(envconfig.OsLookuper())
}

func newFromLookuper(l envconfig.Lookuper) (Config, error) {
	var config Config
	err := envconfig.ProcessWith(context.Background(), &config, l)
	if err != nil {
		return config, errors.Wrap(err, "process env config")
	}
	return config, nil
}

// MockOptions are the mock server options the configuration describes.
func (c Config) MockOptions() mockserver.Options {
	return mockserver.Options{
		CORS:         c.CORS,
		TLSCertFile:  c.TLSCertFile,
		TLSKeyFile:   c.TLSKeyFile,
		WaitDelay:    c.WaitDelay,
		WaitDuration: c.WaitDuration,
	}
}
