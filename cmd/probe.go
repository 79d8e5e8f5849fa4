package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jiandanzhineng/easysmart-tools/pkg/logger"
	"github.com/jiandanzhineng/easysmart-tools/pkg/ping"
	"github.com/spf13/cobra"
)

var (
	probeHost    string
	probePort    int
	probeTimeout time.Duration
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check that the MQTT broker accepts connections",
	Long: `Open one MQTT connection to the broker and wait for its CONNACK.
Exit codes: 0 accepted, 1 connection failed, 2 rejected, 3 timed out.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.NewLogger("probe")

		cfg := ping.Config{
			Host:      Cfg.Broker.Host,
			Port:      Cfg.Broker.Port,
			Timeout:   Cfg.Broker.Timeout,
			KeepAlive: Cfg.Broker.KeepAlive,
		}
		if cmd.Flags().Changed("host") {
			cfg.Host = probeHost
		}
		if cmd.Flags().Changed("port") {
			cfg.Port = probePort
		}
		if cmd.Flags().Changed("timeout") {
			cfg.Timeout = probeTimeout
		}

		ping.RouteClientLogs(log.Entry())

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		prober := ping.NewProber(cfg, log)
		log.Infof("Connecting to %s ...", prober.Broker())
		result := prober.Probe(ctx)

		entry := log.WithFields(logger.Fields{
			"outcome": result.Outcome.String(),
			"elapsed": result.Elapsed.Round(time.Millisecond).String(),
		})
		switch result.Outcome {
		case ping.Accepted:
			entry.Info("✓ Broker accepted the connection")
		case ping.Rejected:
			entry.WithField("return_code", result.ReturnCode).Errorf("✗ Broker rejected the connection: %v", result.Err)
		case ping.Timeout:
			entry.Errorf("✗ No answer from broker: %v", result.Err)
		default:
			entry.Errorf("✗ Could not connect to broker: %v", result.Err)
		}

		if code := result.Outcome.ExitCode(); code != 0 {
			return &ExitError{Code: code, Err: result.Err}
		}
		return nil
	},
}

func init() {
	probeCmd.Flags().StringVar(&probeHost, "host", "", "broker host (default: config broker.host)")
	probeCmd.Flags().IntVar(&probePort, "port", 0, "broker port (default: config broker.port)")
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 0, "CONNACK timeout (default: config broker.timeout)")
	RootCmd.AddCommand(probeCmd)
}
