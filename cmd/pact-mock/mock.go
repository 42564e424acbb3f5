package main

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/form3tech-oss/pact-mock/internal/app/metrics"
	"github.com/form3tech-oss/pact-mock/internal/app/mockserver"
	"github.com/form3tech-oss/pact-mock/internal/app/pactfile"
)

var (
	mockPort  int
	writePact bool
)

var mockCmd = &cobra.Command{
	Use:   "mock <pact-file>",
	Short: "Serve the interactions of a pact file until interrupted",
	Long: `Serve the interactions of a JSON or YAML pact file on a mock server until
interrupted, then log the verification result.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, closer, err := setup(cmd)
		if err != nil {
			return err
		}
		defer closer()

		doc, err := pactfile.Load(args[0])
		if err != nil {
			return err
		}

		manager := mockserver.NewManager(metrics.New())
		port, err := manager.Create(doc, config.MockHost, mockPort, config.MockOptions())
		if err != nil {
			return err
		}
		s, err := manager.Get(port)
		if err != nil {
			return err
		}

		waitForSignal()

		logger := log.WithField("port", port)
		if s.MatchedSuccessfully() {
			logger.Info("all interactions matched")
		} else {
			for _, r := range s.Mismatches() {
				logger.WithFields(log.Fields{
					"type":        r.Type,
					"interaction": r.Interaction,
				}).Warnf("%s %s", r.Method, r.Path)
			}
		}

		if writePact {
			path, err := manager.WritePactFile(port, config.PactDir, false)
			if err != nil {
				return err
			}
			logger.WithField("path", path).Info("pact file written")
		}

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return manager.Cleanup(ctx, port)
	},
}

func init() {
	mockCmd.Flags().IntVar(&mockPort, "port", 0, "Port to serve on, 0 picks a free port")
	mockCmd.Flags().BoolVar(&writePact, "write-pact", false, "Write the pact to the pact directory on exit")
}
