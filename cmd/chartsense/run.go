package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"chartsense/backend-go/internal/config"
	"chartsense/backend-go/internal/ingest"
	"chartsense/backend-go/internal/models"
	"chartsense/backend-go/internal/services"
	"chartsense/backend-go/internal/workspace"
)

type toolkit struct {
	cfg      config.Config
	gate     *services.Gate
	analyzer *services.Analyzer
	ingestor *ingest.Ingestor
}

func newToolkit() (*toolkit, error) {
	if cfgFile != "" {
		if err := os.Setenv("CONFIG_FILE", cfgFile); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	gemini := services.NewGemini(cfg)
	return &toolkit{
		cfg:      cfg,
		gate:     services.NewGate(gemini, services.NewCache(cfg), cfg.CacheTTLVerify, cfg.VerifyFailClosed),
		analyzer: services.NewAnalyzer(gemini),
		ingestor: ingest.NewIngestor(ingest.NewPreviews(), cfg.MaxUploadBytes),
	}, nil
}

func (k *toolkit) load(path string) (models.UploadedImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.UploadedImage{}, err
	}
	defer f.Close()
	img, err := k.ingestor.FromReader(f, "", ingest.SourceDrop)
	if err != nil {
		return models.UploadedImage{}, fmt.Errorf("%s: %w", path, err)
	}
	return img.Uploaded(), nil
}

func (k *toolkit) verify(ctx context.Context, img models.UploadedImage, tf models.Timeframe) error {
	v, degraded := k.gate.Verify(ctx, img, tf)
	if degraded {
		fmt.Fprintf(os.Stderr, "warning: %s\n", v.Reason)
	}
	if !v.IsValid {
		return &workspace.RejectedError{Timeframe: tf, Reason: v.Reason}
	}
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	tf, err := models.ParseTimeframe(slot)
	if err != nil {
		return err
	}
	k, err := newToolkit()
	if err != nil {
		return err
	}
	img, err := k.load(args[0])
	if err != nil {
		return err
	}

	done := spin("Verifying " + tf.ShortLabel() + " chart")
	v, degraded := k.gate.Verify(cmd.Context(), img, tf)
	done()

	renderVerification(os.Stdout, tf, v, degraded)
	if !v.IsValid {
		return &workspace.RejectedError{Timeframe: tf, Reason: v.Reason}
	}
	return nil
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	if format != "table" && format != "json" {
		return fmt.Errorf("unknown format %q", format)
	}
	k, err := newToolkit()
	if err != nil {
		return err
	}

	store := workspace.NewStore(k.ingestor.Previews())
	defer store.ReleaseAll()
	for _, tf := range models.AllTimeframes {
		path := *chartPaths[strings.ToLower(string(tf))]
		if path == "" {
			continue
		}
		img, err := k.load(path)
		if err != nil {
			return err
		}
		if !skipVerify {
			done := spin("Verifying " + tf.ShortLabel() + " chart")
			err = k.verify(cmd.Context(), img, tf)
			done()
			if err != nil {
				return err
			}
		}
		if _, err := store.Upload(tf, img); err != nil {
			return err
		}
	}
	if err := store.ValidateCompleteness(); err != nil {
		return err
	}

	done := spin("ChartSense is analyzing")
	res, err := k.analyzer.Analyze(cmd.Context(), store.Images())
	done()
	if err != nil {
		return fmt.Errorf("%s", services.UserMessage(err, "An error occurred during analysis."))
	}

	if format == "json" {
		return renderJSON(os.Stdout, res)
	}
	renderAnalysis(os.Stdout, res)
	return nil
}

// spin shows an indeterminate spinner on a terminal and returns its stop
// function.
func spin(desc string) func() {
	if !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return func() {}
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionClearOnFinish(),
	)
	stop := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		t := time.NewTicker(100 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-stop:
				_ = bar.Finish()
				return
			case <-t.C:
				_ = bar.Add(1)
			}
		}
	}()
	return func() {
		close(stop)
		<-finished
	}
}
