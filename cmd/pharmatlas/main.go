// Command pharmatlas resolves genes, queries the Translator knowledge graph
// for related diseases and drugs, and serves the results over MCP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pharmatlas/internal/config"
	"pharmatlas/internal/logging"
	"pharmatlas/util"
)

var version = "dev"

// serveMetrics starts the /metrics endpoint for long-running commands.
// Replaced in tests.
var serveMetrics = func(ctx context.Context, a *app) { a.startMetrics(ctx) }

type globalFlags struct {
	configPath  string
	logMode     string
	logLevel    string
	metricsAddr string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "pharmatlas:", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "pharmatlas",
		Short:         "Gene to disease and drug associations from the NCATS Translator knowledge graph",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to a YAML config file")
	pf.StringVar(&flags.logMode, "log-mode", "", "log mode: development or production")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&flags.metricsAddr, "metrics-addr", "", "listen address for the Prometheus /metrics endpoint")

	root.AddCommand(
		newServeCmd(flags),
		newGeneCmd(flags, out),
		newInteractionsCmd(flags, out),
		newDiseasesCmd(flags, out),
		newAnalyzeCmd(flags, out),
	)
	return root
}

// loadConfig applies command-line overrides on top of config.Load.
func loadConfig(cmd *cobra.Command, flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	pf := cmd.Flags()
	if pf.Changed("log-mode") {
		cfg.Log.Mode = flags.logMode
	}
	if pf.Changed("log-level") {
		cfg.Log.Level = flags.logLevel
	}
	if pf.Changed("metrics-addr") {
		cfg.Metrics.Addr = flags.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bootstrap loads configuration and wires the application for one command.
func bootstrap(cmd *cobra.Command, flags *globalFlags) (*app, error) {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	a, err := newApp(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio or streamable HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			serveMetrics(ctx, a)
			srv := a.mcpServer()
			if httpAddr != "" {
				a.logger.Info("serving MCP over streamable HTTP", zap.String("addr", httpAddr))
				return serveHTTP(ctx, httpAddr, srv.HTTPHandler())
			}

			err = srv.Run(ctx, &mcp.StdioTransport{})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", "", "serve streamable HTTP on this address instead of stdio")
	return cmd
}

func newGeneCmd(flags *globalFlags, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "gene SYMBOL",
		Short: "Resolve a gene symbol to its NCBI Gene identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			return printJSON(out, a.engine.LookupGene(cmd.Context(), util.NormalizeSymbol(args[0])))
		},
	}
}

func newInteractionsCmd(flags *globalFlags, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "interactions SYMBOL",
		Short: "Find diseases and drugs associated with a gene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			summary, err := a.engine.FindInteractions(cmd.Context(), util.NormalizeSymbol(args[0]))
			if err != nil {
				return err
			}
			return printJSON(out, summary)
		},
	}
}

func newDiseasesCmd(flags *globalFlags, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "diseases SYMBOL",
		Short: "Find diseases associated with a gene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.engine.FindDiseases(cmd.Context(), util.NormalizeSymbol(args[0]))
			if err != nil {
				return err
			}
			return printJSON(out, report)
		},
	}
}

func newAnalyzeCmd(flags *globalFlags, out io.Writer) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "analyze SYMBOL...",
		Short: "Find diseases shared across a list of genes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			n := a.cfg.Engine.DefaultLimit
			if cmd.Flags().Changed("limit") {
				n = limit
			}
			return printJSON(out, a.engine.Aggregate(cmd.Context(), util.NormalizeSymbols(args), n))
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of genes to analyze (default from config)")
	return cmd
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
