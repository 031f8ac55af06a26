package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marketlens/client/config"
	"github.com/marketlens/client/internal/infrastructure/gateway"
	"github.com/marketlens/client/internal/usecase"
)

// globalFlags are shared by every subcommand
type globalFlags struct {
	host      string
	scheme    string
	apiBase   string
	mediaBase string
	verbose   bool
}

// app wires the client components for one command invocation
type app struct {
	cfg        *config.Config
	deployment config.Deployment
	client     *gateway.Client
	resolver   *usecase.ResourceResolver
	drops      *usecase.DropResolver
	analysis   *usecase.AnalysisService
}

func newApp(flags *globalFlags) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	deployment := config.ResolveDeployment(cfg, flags.host, flags.scheme)
	if flags.apiBase != "" {
		deployment.APIBase = flags.apiBase
	}
	if flags.mediaBase != "" {
		deployment.MediaBase = flags.mediaBase
	}
	if flags.verbose {
		log.Printf("[CLI] API base: %s (local=%v)", deployment.APIBase, deployment.IsLocal)
	}

	client := gateway.NewClient(deployment.APIBase, gateway.ClientConfig{
		Timeout:       cfg.API.Timeout,
		RateLimit:     cfg.API.RateLimit,
		Burst:         cfg.API.Burst,
		MaxImageBytes: cfg.Upload.MaxBytes,
	})
	resolver := usecase.NewResourceResolver(usecase.ResolverConfig{
		APIBase:    deployment.APIBase,
		Override:   deployment.MediaBase,
		StrictBlob: cfg.Storage.StrictBlob,
		CacheSize:  cfg.Storage.CacheSize,
	}, client)

	return &app{
		cfg:        cfg,
		deployment: deployment,
		client:     client,
		resolver:   resolver,
		drops:      usecase.NewDropResolver(client, cfg.Upload.MaxBytes),
		analysis:   usecase.NewAnalysisService(client, resolver),
	}, nil
}

func (a *app) monitorConfig() usecase.MonitorConfig {
	return usecase.MonitorConfig{
		ProbeTimeout: a.cfg.Connectivity.ProbeTimeout,
		Throttle:     a.cfg.Connectivity.Throttle,
		Interval:     a.cfg.Connectivity.Interval,
	}
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "marketlens",
		Short: "Marketplace image analysis client",
		Long: `marketlens submits product images to the marketplace analysis backend
for duplicate detection, fraud analysis and semantic search.

Examples:
  marketlens probe                              # Check backend reachability
  marketlens dedup ./mug.jpg --top-k 5          # Find duplicates of a local file
  marketlens fraud https://cdn.example.com/a.jpg
  marketlens search "red running shoes"
  marketlens samples --download ./samples`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if !flags.verbose {
				log.SetOutput(cmd.ErrOrStderr())
				log.SetFlags(0)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&flags.host, "host", "localhost", "hostname the client is considered to run on")
	rootCmd.PersistentFlags().StringVar(&flags.scheme, "scheme", "http", "URL scheme of the client context")
	rootCmd.PersistentFlags().StringVar(&flags.apiBase, "api-base", "", "analysis backend base URL (overrides deployment)")
	rootCmd.PersistentFlags().StringVar(&flags.mediaBase, "media-base", "", "blob base for image URLs (skips storage detection)")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(
		newProbeCommand(flags),
		newWatchCommand(flags),
		newResolveCommand(flags),
		newDedupCommand(flags),
		newFraudCommand(flags),
		newSearchCommand(flags),
		newSamplesCommand(flags),
	)

	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	// Set log flags for better debugging
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.SetOutput(os.Stdout)
}
