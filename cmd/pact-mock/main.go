package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/form3tech-oss/pact-mock/internal/app/configuration"
	"github.com/form3tech-oss/pact-mock/internal/app/metrics"
	"github.com/form3tech-oss/pact-mock/internal/app/mockserver"
)

const shutdownTimeout = 10 * time.Second

var (
	adminPort int
	mockHost  string
	pactDir   string
	logLevel  string
	logFile   string
	cors      bool
)

var rootCmd = &cobra.Command{
	Use:           "pact-mock",
	Short:         "Mock providers from pact contracts",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin API that creates and verifies mock servers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, closer, err := setup(cmd)
		if err != nil {
			return err
		}
		defer closer()

		m := metrics.New()
		manager := mockserver.NewManager(m)
		adminServer := configuration.ServeAdminAPI(config, manager, m)
		log.WithField("port", config.AdminPort).Info("admin API started")

		waitForSignal()

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := adminServer.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("stopping admin API")
		}
		return manager.CleanupAll(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&mockHost, "host", "", "Host mock servers bind to (MOCK_HOST)")
	rootCmd.PersistentFlags().StringVar(&pactDir, "pact-dir", "", "Directory pact files are written to (PACT_DIR)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "trace, debug, info, warn, error or off (LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Log to this file instead of stderr (LOG_FILE)")
	rootCmd.PersistentFlags().BoolVar(&cors, "cors", false, "Answer CORS preflight requests (CORS)")
	serveCmd.Flags().IntVar(&adminPort, "admin-port", 0, "Port of the admin API (ADMIN_PORT)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mockCmd)
}

// setup reads the configuration from the environment, applies the flags set on
// the command line and initialises logging.
func setup(cmd *cobra.Command) (configuration.Config, func(), error) {
	config, err := configuration.NewFromEnv()
	if err != nil {
		return config, nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("admin-port") {
		config.AdminPort = adminPort
	}
	if flags.Changed("host") {
		config.MockHost = mockHost
	}
	if flags.Changed("pact-dir") {
		config.PactDir = pactDir
	}
	if flags.Changed("log-file") {
		config.LogFile = logFile
	}
	if flags.Changed("cors") {
		config.CORS = cors
	}
	if flags.Changed("log-level") {
		level, err := configuration.ParseLogLevel(logLevel)
		if err != nil {
			return config, nil, err
		}
		config.LogLevel = level
	}

	closer, err := configuration.InitLogging(config.LogLevel, config.LogFile)
	if err != nil {
		return config, nil, err
	}
	return config, func() {
		if err := closer.Close(); err != nil {
			log.WithError(err).Warn("closing log file")
		}
	}, nil
}

func waitForSignal() {
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
