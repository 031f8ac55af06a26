package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/marketlens/client/internal/domain"
	"github.com/marketlens/client/internal/infrastructure/metrics"
	"github.com/marketlens/client/internal/usecase"
)

// userError converts err into the message shown to the user
func userError(err error) error {
	if err == nil {
		return nil
	}
	return errors.New(domain.UserMessage(err))
}

func newProbeCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check whether the analysis backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}

			monitor := usecase.NewConnectivityMonitor(a.client, nil, a.monitorConfig())
			monitor.ForceProbe(cmd.Context())

			state := monitor.State()
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", a.deployment.APIBase, state.Status)
			if !state.Online() {
				return fmt.Errorf("backend is %s", state.Status)
			}
			return nil
		},
	}
}

func newWatchCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Probe the backend on a schedule and report status changes",
		Long: `Probe the backend immediately and then on every connectivity interval.
With metrics enabled, probe outcomes are exported on the metrics address.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			var observer domain.ProbeObserver
			if a.cfg.Metrics.Enabled {
				promObserver, err := metrics.NewObserver("", nil)
				if err != nil {
					return err
				}
				observer = promObserver
			}

			monitor := usecase.NewConnectivityMonitor(a.client, observer, a.monitorConfig())
			last := domain.StatusUnknown
			monitor.OnChange(func(state domain.ConnectivityState) {
				if state.Status != last {
					fmt.Fprintf(out, "%s %s: %s\n", time.Now().Format(time.RFC3339), a.deployment.APIBase, state.Status)
					last = state.Status
				}
			})

			g, ctx := errgroup.WithContext(ctx)
			if a.cfg.Metrics.Enabled {
				server := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: promhttp.Handler()}
				g.Go(func() error {
					log.Printf("[Metrics] Listening on %s", a.cfg.Metrics.Addr)
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return fmt.Errorf("metrics server: %w", err)
					}
					return nil
				})
				g.Go(func() error {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return server.Shutdown(shutdownCtx)
				})
			}

			monitor.Start(ctx)
			g.Go(func() error {
				<-ctx.Done()
				monitor.Stop()
				return nil
			})

			return g.Wait()
		},
	}
}

func newResolveCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <identifier>...",
		Short: "Resolve image identifiers into fetchable URLs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			mode := a.resolver.Detect(ctx)
			if flags.verbose {
				log.Printf("[CLI] Storage mode: %s %s", mode.Kind, mode.Base)
			}

			for _, id := range args {
				url, ok := a.resolver.Resolve(ctx, id)
				if !ok {
					url = "-"
				}
				fmt.Fprintf(out, "%s\t%s\n", id, url)
			}
			return nil
		},
	}
}

// inputFlags select the image to submit
type inputFlags struct {
	html      string
	sampleURL string
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.html, "html", "", "HTML fragment containing an <img> element")
	cmd.Flags().StringVar(&f.sampleURL, "sample", "", "URL of a sample image from the selector")
}

// event builds the drop event for args: an existing path is a local file,
// anything else is the text payload.
func (f *inputFlags) event(args []string) (usecase.DropEvent, error) {
	event := usecase.DropEvent{HTML: f.html}

	if f.sampleURL != "" {
		event.Sample = &domain.SampleImageDescriptor{
			Name: usecase.DisplayNameFromURL(f.sampleURL),
			URL:  f.sampleURL,
		}
	}

	if len(args) == 0 {
		return event, nil
	}
	if info, err := os.Stat(args[0]); err == nil && !info.IsDir() {
		file, err := usecase.OpenLocalFile(args[0])
		if err != nil {
			return event, err
		}
		event.Files = []usecase.LocalFile{file}
		return event, nil
	}
	event.Text = strings.Join(args, " ")
	return event, nil
}

func newDedupCommand(flags *globalFlags) *cobra.Command {
	input := &inputFlags{}
	var topK int

	cmd := &cobra.Command{
		Use:   "dedup [file|url]",
		Short: "Find catalog listings that duplicate an image",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			event, err := input.event(args)
			if err != nil {
				return err
			}
			res, err := a.drops.Resolve(ctx, event)
			if err != nil {
				return userError(err)
			}

			matches, err := a.analysis.FindDuplicates(ctx, res, topK)
			if err != nil {
				return userError(err)
			}

			out := cmd.OutOrStdout()
			if len(matches) == 0 {
				fmt.Fprintln(out, "No duplicates found")
				return nil
			}
			for _, m := range matches {
				fmt.Fprintf(out, "%.3f\t%s\t%s\t%s\n", m.Score, m.Meta.PostingID, m.Meta.Title, m.ImageURL)
			}
			return nil
		},
	}
	input.register(cmd)
	cmd.Flags().IntVar(&topK, "top-k", 0, "maximum number of matches (backend default when 0)")
	return cmd
}

func newFraudCommand(flags *globalFlags) *cobra.Command {
	input := &inputFlags{}

	cmd := &cobra.Command{
		Use:   "fraud [file|url]",
		Short: "Score an image for listing fraud",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			event, err := input.event(args)
			if err != nil {
				return err
			}
			res, err := a.drops.Resolve(ctx, event)
			if err != nil {
				return userError(err)
			}

			analysis, err := a.analysis.AnalyzeFraud(ctx, res)
			if err != nil {
				return userError(err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Risk level:        %s\n", analysis.RiskLevel)
			fmt.Fprintf(out, "Fraud score:       %.3f\n", analysis.FraudScore)
			fmt.Fprintf(out, "Fraud probability: %.1f%%\n", analysis.FraudProbability*100)
			fmt.Fprintf(out, "Confidence:        %.1f%%\n", analysis.Confidence*100)
			for k, v := range analysis.AnalysisDetails {
				fmt.Fprintf(out, "  %s: %v\n", k, v)
			}
			return nil
		},
	}
	input.register(cmd)
	return cmd
}

func newSearchCommand(flags *globalFlags) *cobra.Command {
	var byImage bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Semantic search over the catalog",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}

			kind := domain.SearchText
			if byImage {
				kind = domain.SearchImage
			}

			hits, err := a.analysis.Search(cmd.Context(), kind, strings.Join(args, " "))
			if err != nil {
				return userError(err)
			}

			out := cmd.OutOrStdout()
			if len(hits) == 0 {
				fmt.Fprintln(out, "No results")
				return nil
			}
			for _, h := range hits {
				fmt.Fprintf(out, "%.3f\t%s\t%s\t%s\n", h.Score, h.PostingID, h.Title, h.ImageURL)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&byImage, "image", false, "search image embeddings instead of text")
	return cmd
}

func newSamplesCommand(flags *globalFlags) *cobra.Command {
	var (
		count       int
		downloadDir string
		workers     int
	)

	cmd := &cobra.Command{
		Use:   "samples",
		Short: "List sample images, optionally downloading them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			samples := a.analysis.RandomSamples(ctx, count)
			for _, s := range samples {
				fmt.Fprintf(out, "%s\t%s\t%s\n", s.ID, s.Name, s.URL)
			}
			if downloadDir == "" {
				return nil
			}
			if err := os.MkdirAll(downloadDir, 0o755); err != nil {
				return err
			}
			return downloadSamples(ctx, a.drops, samples, downloadDir, workers, out)
		},
	}
	cmd.Flags().IntVar(&count, "count", usecase.DefaultSampleCount, "number of samples")
	cmd.Flags().StringVar(&downloadDir, "download", "", "directory to save validated sample images into")
	cmd.Flags().IntVar(&workers, "workers", 4, "concurrent downloads")
	return cmd
}

// downloadSamples fetches and validates each sample concurrently and writes it
// into dir. The first failure cancels the remaining downloads.
func downloadSamples(ctx context.Context, drops *usecase.DropResolver, samples []domain.SampleImageDescriptor, dir string, workers int, out io.Writer) error {
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}

	for i, sample := range samples {
		g.Go(func() error {
			res, err := drops.ResolveSample(ctx, sample)
			if err != nil {
				return fmt.Errorf("%s: %w", sample.Name, userError(err))
			}
			name := fmt.Sprintf("%02d-%s", i+1, filepath.Base(res.Name))
			if err := os.WriteFile(filepath.Join(dir, name), res.Data, 0o644); err != nil {
				return err
			}
			log.Printf("[Samples] Saved %s (%d bytes, %s)", name, res.Size, res.MediaType)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved %d samples to %s\n", len(samples), dir)
	return nil
}
