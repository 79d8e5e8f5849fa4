package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jiandanzhineng/easysmart-tools/internal/operations/discovery"
	"github.com/jiandanzhineng/easysmart-tools/pkg/tools"
	"github.com/spf13/cobra"
)

var (
	browseJSON    bool
	browseTypes   []string
	browseTimeout time.Duration
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "List services announced on the local network",
	Long: `Listen for well-known DNS-SD service types for a few seconds and print every
service instance that was announced.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		types := Cfg.Discovery.BrowseTypes
		if cmd.Flags().Changed("type") {
			types = browseTypes
		}
		window := Cfg.Discovery.BrowseTimeout
		if cmd.Flags().Changed("timeout") {
			window = browseTimeout
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		browser := discovery.NewBrowser(discovery.WithDomain(Cfg.Discovery.Domain))
		services, err := browser.Browse(ctx, types, window)
		if err != nil {
			return err
		}

		if browseJSON {
			return tools.PrettyPrint(cmd.OutOrStdout(), services)
		}
		return printServices(cmd.OutOrStdout(), services)
	},
}

func printServices(w io.Writer, services map[string]*discovery.Service) error {
	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)

	if _, err := fmt.Fprintf(w, "Found %d service(s)\n", len(names)); err != nil {
		return err
	}
	for _, name := range names {
		if err := printService(w, services[name]); err != nil {
			return err
		}
	}
	return nil
}

func printService(w io.Writer, s *discovery.Service) error {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", s.Name)
	fmt.Fprintf(&b, "  type:      %s\n", s.Type)
	fmt.Fprintf(&b, "  host:      %s\n", s.Host)
	fmt.Fprintf(&b, "  addresses: %s\n", strings.Join(s.Addresses(), ", "))
	fmt.Fprintf(&b, "  port:      %d\n", s.Port)

	if len(s.Properties) > 0 {
		keys := make([]string, 0, len(s.Properties))
		for k := range s.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("  properties:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "    %s=%s\n", k, s.Properties[k])
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func init() {
	browseCmd.Flags().BoolVar(&browseJSON, "json", false, "print the result as JSON")
	browseCmd.Flags().StringSliceVar(&browseTypes, "type", nil, "service type to browse, repeatable (default: config browse_types)")
	browseCmd.Flags().DurationVar(&browseTimeout, "timeout", 0, "how long to listen (default: config browse_timeout)")
	RootCmd.AddCommand(browseCmd)
}
