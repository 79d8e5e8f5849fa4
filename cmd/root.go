package cmd

import (
	"fmt"
	"os"

	"github.com/jiandanzhineng/easysmart-tools/internal/config"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
	Cfg      *config.Config
	Version  string
)

var RootCmd = &cobra.Command{
	Use:   "easysmart",
	Short: "EasySmart operational tools",
	Long: `EasySmart operational tools: mirror the latest client releases, advertise
the EasySmart server over mDNS, browse the local network and probe the MQTT broker.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute(version string) error {
	Version = version
	return RootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides config file)")
}

func initConfig() {
	var err error

	Cfg, err = config.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: Configuration could not be loaded: %v\n", err)
		os.Exit(1)
	}

	if logLevel != "" {
		Cfg.Logging.Level = logLevel
	}

	if err := config.InitLogger(&Cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: Logger could not be initialized: %v\n", err)
		os.Exit(1)
	}
}
