package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jiandanzhineng/easysmart-tools/internal/operations/mirror"
	"github.com/jiandanzhineng/easysmart-tools/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	mirrorOutput  string
	mirrorVerify  bool
	mirrorTimeout time.Duration
)

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Mirror the latest client releases into a local directory",
	Long: `Fetch latest.yml and the installer it names for every configured project,
create EasySmart-Setup.exe and EasySmart-Setup.zip next to it and download the
control panel archive. Exits non-zero when any project fails.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.NewLogger("mirror")

		output := Cfg.Mirror.Output
		if cmd.Flags().Changed("output") {
			output = mirrorOutput
		}
		verify := Cfg.Mirror.VerifyChecksum
		if cmd.Flags().Changed("verify-checksum") {
			verify = mirrorVerify
		}
		timeout := Cfg.Mirror.Timeout
		if cmd.Flags().Changed("timeout") {
			timeout = mirrorTimeout
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		downloader := mirror.NewDownloader(timeout, mirror.WithProgress(cmd.OutOrStdout()))
		pipeline := mirror.NewPipeline(downloader, mirror.WithChecksumVerification(verify))
		projects := mirror.ProjectsFromConfig(output, Cfg.Mirror.Projects)

		results := mirror.NewManager(pipeline).RunAll(ctx, projects)

		for _, r := range results {
			fields := logger.Fields{"project": r.Project, "output": r.OutputDir}
			if r.Manifest != nil {
				fields["version"] = r.Manifest.Version
			}
			if r.Success {
				log.WithFields(fields).Infof("✓ %s mirrored (%d files)", r.Project, len(r.Files))
			} else {
				fields["step"] = r.FailedStep
				log.WithFields(fields).Errorf("✗ %s failed: %v", r.Project, r.Err)
			}
		}

		if !mirror.AllSucceeded(results) {
			return &ExitError{Code: 1}
		}
		return nil
	},
}

func init() {
	mirrorCmd.Flags().StringVarP(&mirrorOutput, "output", "o", "", "output directory (overrides config file)")
	mirrorCmd.Flags().BoolVar(&mirrorVerify, "verify-checksum", false, "verify the installer sha512 against latest.yml")
	mirrorCmd.Flags().DurationVar(&mirrorTimeout, "timeout", 0, "HTTP timeout per request, 0 for none")
	RootCmd.AddCommand(mirrorCmd)
}
