package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/thesyncim/transcode"
	"github.com/thesyncim/transcode/internal/config"
)

type runOptions struct {
	outputDir string
	baseName  string
	label     string
	preview   bool
	metrics   bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <input.ivf>",
		Short: "Transcode one input file and upload its segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			opts.apply(cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := runPipeline(runCtx, cfg, args[0], opts, logger)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.outputDir, "output", "o", "", "Write segments to this directory (overrides [upload])")
	cmd.Flags().StringVar(&opts.baseName, "name", "", "Segment base name (default: input file name without extension)")
	cmd.Flags().StringVar(&opts.label, "label", "", "Segment resolution label (default: target height, e.g. 240p for 320x240; use 144p to keep names from older uploads of the same target)")
	cmd.Flags().BoolVar(&opts.preview, "preview", false, "Write preview snapshots (overrides [preview].enabled)")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "Serve Prometheus metrics (overrides [metrics].enabled)")
	return cmd
}

func (o runOptions) apply(cfg *config.Config) {
	if dir := strings.TrimSpace(o.outputDir); dir != "" {
		cfg.Upload.Target = "dir"
		cfg.Upload.Dir.Path = dir
	}
	if label := strings.TrimSpace(o.label); label != "" {
		cfg.Segment.Label = label
	}
	if o.preview {
		cfg.Preview.Enabled = true
	}
	if o.metrics {
		cfg.Metrics.Enabled = true
	}
}

func runPipeline(ctx context.Context, cfg *config.Config, input string, opts runOptions, logger *zap.Logger) (*transcode.Result, error) {
	enc, err := cfg.EncoderConfig()
	if err != nil {
		return nil, err
	}
	decProvider, encProvider, err := cfg.Providers()
	if err != nil {
		return nil, err
	}
	scaleMode, err := cfg.ScaleMode()
	if err != nil {
		return nil, err
	}

	baseName := strings.TrimSpace(opts.baseName)
	if baseName == "" {
		baseName = transcode.BaseName(input)
	}

	uploader, destination, err := newUploader(ctx, cfg)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := transcode.NewMetrics(reg)
	if cfg.Metrics.Enabled {
		srv, err := startMetricsServer(cfg.Metrics.Bind, reg, logger)
		if err != nil {
			return nil, fmt.Errorf("metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var render transcode.RenderFunc
	if cfg.Preview.Enabled {
		r, err := transcode.NewSnapshotRenderer(cfg.Preview.Path, cfg.Preview.Every)
		if err != nil {
			return nil, err
		}
		r.MaxWidth = cfg.Preview.MaxWidth
		r.MaxHeight = cfg.Preview.MaxHeight
		r.Quality = cfg.Preview.Quality
		render = r.Render
	}

	p, err := transcode.New(transcode.PipelineConfig{
		NewDecoder:    transcode.DecoderFactoryFor(decProvider),
		NewEncoder:    transcode.EncoderFactoryFor(encProvider),
		Encoder:       enc,
		ScaleMode:     scaleMode,
		Render:        render,
		Uploader:      uploader,
		Segment:       cfg.SegmentConfig(baseName),
		ChannelDepth:  cfg.Pipeline.ChannelDepth,
		FramePoolSize: cfg.Pipeline.FramePoolSize,
		Logger:        logger,
		Metrics:       metrics,
	})
	if err != nil {
		return nil, err
	}

	f, err := os.Open(input)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	logger.Info("transcoding",
		zap.String("input", input),
		zap.String("destination", destination),
		zap.Stringer("encoder", &enc))
	return p.Run(ctx, bufio.NewReaderSize(f, 1<<20))
}

func printResult(out io.Writer, res *transcode.Result) {
	segments := tableSpec{
		header:  table.Row{"#", "Segment", "Size"},
		numeric: []int{1, 3},
	}
	var total uint64
	for _, s := range res.Segments {
		segments.rows = append(segments.rows, table.Row{s.Sequence, s.Name, humanize.Bytes(uint64(s.Size))})
		total += uint64(s.Size)
	}
	segments.footer = table.Row{"", "Total", humanize.Bytes(total)}
	fmt.Fprintln(out, segments.render())

	st := res.Stats
	fmt.Fprintf(out, "Run %s: %s frames encoded, %s uploaded in %d segments, %s elapsed\n",
		res.RunID,
		humanize.Comma(int64(st.FramesEncoded)),
		humanize.Bytes(st.BytesUploaded),
		len(res.Segments),
		res.Elapsed.Round(time.Millisecond))
	if st.RenderFailures > 0 {
		fmt.Fprintf(out, "Preview: %d of %d frames failed to render\n", st.RenderFailures, st.PreviewFrames)
	}
}
