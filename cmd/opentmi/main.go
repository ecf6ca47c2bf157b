package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/opentmi/opentmi-go/internal/cliconfig"
	"github.com/opentmi/opentmi-go/pkg/log"
	"github.com/opentmi/opentmi-go/pkg/opentmi"
	"github.com/opentmi/opentmi-go/pkg/watcher"
)

const helpDescription = `
Command line client for the OpenTMI test management server.

Highlights:
  - List test cases and campaigns, upload results from JSON files.
  - Watch a directory and ship result files as CI runners drop them.
  - Configure via file ($HOME/.opentmi/config.toml), OPENTMI_* env, or flags.
  - Logs in automatically from OPENTMI_USERNAME/OPENTMI_PASSWORD or
    OPENTMI_GITHUB_ACCESS_TOKEN when no token is configured.
`

var exampleUsage = strings.TrimSpace(`
  opentmi --host opentmi.example.com --port 3000 list testcases
  opentmi list campaigns --json
  opentmi upload result.json
  opentmi watch ./results
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	zlog := cliconfig.Logger()

	newClient := func() *opentmi.Client {
		logger := log.NewZerologAdapterWithLogger(zlog)
		client := opentmi.New(cfg.Host, cfg.Port,
			opentmi.WithLogger(logger),
			opentmi.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
		if cfg.Token != "" {
			client.SetToken(cfg.Token)
		}
		return client
	}

	root := &cobra.Command{
		Use:     "opentmi",
		Short:   "Command line client for the OpenTMI test management server",
		Long:    strings.TrimSpace(helpDescription),
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load config file first (default $HOME/.opentmi/config.toml),
			// then env, then flag overrides.
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			// Build set of changed flags
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}

			// Apply environment variables (OPENTMI_*)
			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}

			return cfg.Validate()
		},
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.opentmi/config.toml)")
	root.PersistentFlags().StringVar(&cfg.Host, "host", cfg.Host, "OpenTMI host")
	root.PersistentFlags().IntVarP(&cfg.Port, "port", "p", cfg.Port, "OpenTMI port")
	root.PersistentFlags().StringVar(&cfg.Token, "token", cfg.Token, "authentication token")
	root.PersistentFlags().DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP timeout")
	root.PersistentFlags().BoolVar(&cfg.JSON, "json", cfg.JSON, "print raw JSON documents")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List documents stored on the server",
	}

	var testcaseFilters []string
	listTestcases := &cobra.Command{
		Use:   "testcases",
		Short: "List test cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			filters, err := parseFilters(testcaseFilters)
			if err != nil {
				return err
			}
			testcases, err := client.Testcases(cmd.Context(), filters)
			if err != nil {
				return err
			}
			if cfg.JSON {
				return printJSON(testcases)
			}
			for _, tc := range testcases {
				fmt.Println(tc.TcID)
			}
			return nil
		},
	}
	listTestcases.Flags().StringArrayVar(&testcaseFilters, "filter", nil, "filter as key=value (repeatable)")

	listCampaigns := &cobra.Command{
		Use:   "campaigns",
		Short: "List campaign names",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			if cfg.JSON {
				campaigns, err := client.Campaigns(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(campaigns)
			}
			names, err := client.CampaignNames(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}

	listCmd.AddCommand(listTestcases, listCampaigns)

	uploadCmd := &cobra.Command{
		Use:   "upload <result.json>",
		Short: "Upload a result file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read result: %w", err)
			}
			var result opentmi.Result
			if err := json.Unmarshal(data, &result); err != nil {
				return fmt.Errorf("parse result: %w", err)
			}

			client := newClient()
			stored, err := client.PostResult(cmd.Context(), result)
			if err != nil {
				return err
			}
			zlog.Info().Str("_id", stored.ID).Msg("result uploaded")
			return nil
		},
	}

	watchCmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Watch a directory and upload result files as they appear",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			logger := log.NewZerologAdapterWithLogger(zlog)
			w := watcher.New(client, args[0], watcher.DefaultConfig(),
				watcher.WithLogger(logger))

			// Run until interrupted.
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				zlog.Info().Msg("received signal, stopping...")
				cancel()
			}()

			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	root.AddCommand(listCmd, uploadCmd, watchCmd)

	if err := root.Execute(); err != nil {
		zlog.Error().Err(err).Msg("opentmi")
		os.Exit(1)
	}
}

// parseFilters converts repeated key=value flags into a filter map.
func parseFilters(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filters := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q, want key=value", pair)
		}
		filters[key] = value
	}
	return filters, nil
}

// printJSON writes a document to stdout as indented JSON.
func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
