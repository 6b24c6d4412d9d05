package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	overlayeditor "github.com/menta2k/overlay-editor"
	"github.com/menta2k/overlay-editor/internal/config"
	"github.com/menta2k/overlay-editor/internal/logging"
	"github.com/menta2k/overlay-editor/internal/metrics"
	"github.com/menta2k/overlay-editor/internal/utils"
	"github.com/menta2k/overlay-editor/pkg/client"
	"github.com/menta2k/overlay-editor/pkg/ingest"
	"github.com/menta2k/overlay-editor/pkg/raster"
	"github.com/menta2k/overlay-editor/pkg/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type job struct {
	image   string
	payload string
	out     string
}

func main() {
	var cfgPath, in, payload, model, outDir, ext, mode, logLevel, metricsAddr string
	var quality, width, height, parallel int
	var threshold float64
	var lossless, dump, dev, writeConfig bool

	flag.StringVar(&cfgPath, "config", "", "config file (yaml or json); defaults to "+config.GetConfigPath()+" when present")
	flag.StringVar(&in, "in", "", "input image path, URL, or directory of images")
	flag.StringVar(&payload, "payload", "", "inference payload JSON (default: <image>.json next to each image)")
	flag.StringVar(&model, "model", "", "model id or hosted model URL recorded in the session")
	flag.StringVar(&outDir, "out", "", "output directory")
	flag.StringVar(&ext, "ext", "", "output format: png|jpg|webp")
	flag.IntVar(&quality, "quality", 0, "JPEG/WebP output quality (1-100)")
	flag.BoolVar(&lossless, "lossless", false, "WebP output lossless mode")
	flag.IntVar(&width, "width", 0, "output width (0 = image width)")
	flag.IntVar(&height, "height", 0, "output height (0 = image height)")
	flag.Float64Var(&threshold, "threshold", -1, "confidence threshold 0..1")
	flag.StringVar(&mode, "mode", "", "display mode: labels+confidence|boxes|labels|shapes")
	flag.BoolVar(&dump, "dump", false, "write the parsed annotations next to each output")
	flag.IntVar(&parallel, "parallel", runtime.GOMAXPROCS(0), "images processed concurrently")
	flag.StringVar(&logLevel, "log-level", "", "debug|info|warn|error")
	flag.BoolVar(&dev, "dev", false, "development (console) logging")
	flag.StringVar(&metricsAddr, "metrics", "", "serve Prometheus metrics on this address, e.g. :9090")
	flag.BoolVar(&writeConfig, "write-config", false, "write the effective configuration to -config and exit")
	flag.Parse()

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	applyFlags(cfg, outDir, ext, quality, lossless, threshold, mode, logLevel, dev, metricsAddr)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if writeConfig {
		if cfgPath == "" {
			cfgPath = config.GetConfigPath()
		}
		if err := cfg.SaveToFile(cfgPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println("wrote", cfgPath)
		return
	}

	if in == "" {
		fmt.Fprintf(os.Stderr, "usage: %s -in image.jpg|URL|dir [-payload preds.json] [-out outdir] [-ext png|jpg|webp] [-mode boxes] [-threshold 0.5]\n", filepath.Base(os.Args[0]))
		os.Exit(2)
	}

	if err := logging.Init(cfg.Logging.Level, cfg.Logging.Development); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logging.Sync()
	logger := logging.Log()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorder := metrics.New()
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := recorder.Serve(ctx, cfg.Metrics.Addr, logger); err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	jobs, err := plan(in, payload, cfg)
	if err != nil {
		logger.Fatal("no work", zap.Error(err))
	}
	if err := utils.EnsureDir(cfg.Output.Dir); err != nil {
		logger.Fatal("output directory", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, parallel))
	failed := 0
	results := make([]error, len(jobs))
	for i, j := range jobs {
		g.Go(func() error {
			results[i] = run(gctx, cfg, j, model, width, height, dump, recorder, logger)
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range results {
		if err != nil {
			failed++
			logger.Error("render failed", zap.String("image", jobs[i].image), zap.Error(err))
		}
	}
	logger.Info("done", zap.Int("images", len(jobs)), zap.Int("failed", failed))
	if failed > 0 {
		logging.Sync()
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = config.GetConfigPath()
	}
	if !utils.FileExists(path) {
		return config.Default(), nil
	}
	return config.LoadFromFile(path)
}

func applyFlags(cfg *config.Config, outDir, ext string, quality int, lossless bool, threshold float64, mode, logLevel string, dev bool, metricsAddr string) {
	if outDir != "" {
		cfg.Output.Dir = outDir
	}
	if ext != "" {
		cfg.Output.Format = strings.ToLower(ext)
		if cfg.Output.Format == "jpeg" {
			cfg.Output.Format = "jpg"
		}
	}
	if quality > 0 {
		cfg.Output.Quality = quality
	}
	if lossless {
		cfg.Output.Lossless = true
	}
	if threshold >= 0 {
		cfg.Session.Threshold = threshold
	}
	if mode != "" {
		if m, err := types.ParseDisplayMode(mode); err == nil {
			cfg.Session.DisplayMode = m.String()
		} else {
			cfg.Session.DisplayMode = mode
		}
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if dev {
		cfg.Logging.Development = true
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
}

// plan pairs each input image with its payload and output path.
func plan(in, payload string, cfg *config.Config) ([]job, error) {
	var images []string
	if utils.DirExists(in) {
		files, err := utils.ListImageFiles(in)
		if err != nil {
			return nil, err
		}
		images = files
	} else {
		images = []string{in}
	}

	var jobs []job
	for _, img := range images {
		p := payload
		if p == "" && !strings.Contains(img, "://") {
			p = utils.PayloadFor(img)
		}
		if p == "" {
			return nil, fmt.Errorf("%s: no payload given and no sidecar .json found", img)
		}
		jobs = append(jobs, job{
			image:   img,
			payload: p,
			out:     utils.OutputPath(img, cfg.Output.Dir, cfg.Output.Suffix, cfg.Output.Format),
		})
	}
	if len(jobs) == 0 {
		return nil, errors.New("no images found")
	}
	return jobs, nil
}

func run(ctx context.Context, cfg *config.Config, j job, model string, width, height int, dump bool, recorder *metrics.Recorder, logger *zap.Logger) error {
	logger = logger.With(zap.String("image", j.image))
	ov := overlayeditor.New(
		overlayeditor.WithLogger(logger),
		overlayeditor.WithRecorder(recorder),
		overlayeditor.WithEditorConfig(cfg.EditorConfig()),
		overlayeditor.WithCompositorConfig(cfg.CompositorConfig()),
		overlayeditor.WithRenderConfig(cfg.RenderConfig()),
		overlayeditor.WithSkeletonConfig(cfg.SkeletonConfig()),
		overlayeditor.WithView(cfg.Session.Threshold, cfg.DisplayMode()),
	)

	if model == "" {
		model = cfg.Session.Model
	}
	media := client.FileMedia{Source: j.image, MinSize: cfg.Session.MinImageSize}
	payloads := client.FilePayloads{Default: j.payload}
	if model != "" {
		model = ingest.ModelID(model)
	}
	if err := ov.Load(ctx, media, payloads, model); err != nil {
		return err
	}

	img, err := ov.Render(ctx, width, height)
	if err != nil {
		return err
	}
	if err := raster.Save(img, j.out, cfg.Output.Format, cfg.Output.Quality, cfg.Output.Lossless); err != nil {
		return err
	}
	logger.Info("wrote overlay", zap.String("path", j.out))

	if dump {
		path := strings.TrimSuffix(j.out, filepath.Ext(j.out)) + ".annotations.json"
		data, err := json.MarshalIndent(ov.Annotations(), "", "  ")
		if err != nil {
			return fmt.Errorf("marshal annotations: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write annotations: %w", err)
		}
		logger.Info("wrote annotations", zap.String("path", path))
	}
	return nil
}
