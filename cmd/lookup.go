package cmd

import (
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jiandanzhineng/easysmart-tools/internal/operations/discovery"
	"github.com/jiandanzhineng/easysmart-tools/pkg/logger"
	"github.com/jiandanzhineng/easysmart-tools/pkg/tools"
	"github.com/spf13/cobra"
)

var (
	lookupType    string
	lookupTimeout time.Duration
	lookupJSON    bool
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <instance>",
	Short: "Show the details of one announced service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.NewLogger("lookup")

		serviceType := Cfg.Discovery.Service
		if cmd.Flags().Changed("type") {
			serviceType = lookupType
		}
		timeout := Cfg.Discovery.LookupTimeout
		if cmd.Flags().Changed("timeout") {
			timeout = lookupTimeout
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := discovery.NewLookup().Find(ctx, args[0], serviceType, Cfg.Discovery.Domain, timeout)
		if errors.Is(err, discovery.ErrServiceNotFound) {
			log.Warn(err.Error())
			return &ExitError{Code: 1, Err: err}
		}
		if err != nil {
			return err
		}

		if lookupJSON {
			return tools.PrettyPrint(cmd.OutOrStdout(), svc)
		}
		return printService(cmd.OutOrStdout(), svc)
	},
}

func init() {
	lookupCmd.Flags().StringVar(&lookupType, "type", "", "service type (default: config discovery.service)")
	lookupCmd.Flags().DurationVar(&lookupTimeout, "timeout", 0, "query timeout (default: config lookup_timeout)")
	lookupCmd.Flags().BoolVar(&lookupJSON, "json", false, "print the result as JSON")
	RootCmd.AddCommand(lookupCmd)
}
