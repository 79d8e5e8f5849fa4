package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/jiandanzhineng/easysmart-tools/internal/operations/discovery"
	"github.com/jiandanzhineng/easysmart-tools/pkg/logger"
	"github.com/jiandanzhineng/easysmart-tools/pkg/template"
	"github.com/jiandanzhineng/easysmart-tools/pkg/tools"
	"github.com/spf13/cobra"
)

var (
	announceIP          string
	announceSystemdUnit bool
)

var announceCmd = &cobra.Command{
	Use:   "announce",
	Short: "Advertise the EasySmart server over mDNS",
	Long: `Register the EasySmart HTTP service on the local network using the address
of the interface holding the default route, and keep it registered until
interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnnounce(cmd, "")
	},
}

var announceIPCmd = &cobra.Command{
	Use:   "announce-ip",
	Short: "Advertise the EasySmart server over mDNS at a given address",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := tools.ParseIPv4(announceIP); err != nil {
			return err
		}
		return runAnnounce(cmd, announceIP)
	},
}

func runAnnounce(cmd *cobra.Command, ip string) error {
	log := logger.NewLogger("announce")

	if announceSystemdUnit {
		return printAnnounceUnit(cmd, ip)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if ip == "" {
		detected, err := discovery.LocalIPv4(ctx)
		if err != nil {
			return err
		}
		ip = detected
		log.Infof("Using local address %s", ip)
	}

	d := Cfg.Discovery
	announcer, err := discovery.NewAnnouncer(discovery.AnnouncerConfig{
		Instance:   d.Instance,
		Service:    d.Service,
		Domain:     d.Domain,
		Host:       d.Host,
		Port:       d.Port,
		IP:         ip,
		Properties: d.Properties,
		HostTTL:    d.HostTTL,
		OtherTTL:   d.OtherTTL,
	})
	if err != nil {
		return err
	}

	if err := announcer.Start(); err != nil {
		return err
	}
	defer announcer.Shutdown()

	notifySystemd(log, daemon.SdNotifyReady)
	log.Info("Announcing service, press Ctrl+C to stop")

	<-ctx.Done()

	notifySystemd(log, daemon.SdNotifyStopping)
	log.Info("Shutting down announcer")
	return nil
}

func notifySystemd(log *logger.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.WithError(err).Warn("Failed to notify systemd")
		return
	}
	if sent {
		log.Debugf("Notified systemd: %s", state)
	}
}

func printAnnounceUnit(cmd *cobra.Command, ip string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to resolve executable path: %w", err)
	}

	args := []string{exe}
	if cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	description := "autodetected address"
	if ip != "" {
		args = append(args, "announce-ip", "--ip", ip)
		description = ip
	} else {
		args = append(args, "announce")
	}

	_, err = fmt.Fprint(cmd.OutOrStdout(), template.AnnounceUnit(description, strings.Join(args, " ")))
	return err
}

func init() {
	for _, c := range []*cobra.Command{announceCmd, announceIPCmd} {
		c.Flags().BoolVar(&announceSystemdUnit, "systemd-unit", false, "print a systemd unit for this command and exit")
		RootCmd.AddCommand(c)
	}

	announceIPCmd.Flags().StringVar(&announceIP, "ip", "", "IPv4 address to advertise")
	_ = announceIPCmd.MarkFlagRequired("ip")
}
