// cmd/meal-footprint/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	jsonhandler "github.com/apex/log/handlers/json"

	"meal-footprint/internal/config"
	"meal-footprint/internal/dataset"
	"meal-footprint/internal/footprint"
	"meal-footprint/internal/metrics"
	"meal-footprint/internal/recognition"
	"meal-footprint/internal/report"
	"meal-footprint/internal/server"
	"meal-footprint/internal/storage"
)

var (
	envFile     = flag.String("env", ".env", "Path to a .env file")
	datasetPath = flag.String("dataset", "", "Reference dataset CSV (overrides DATASET_PATH)")
	dbPath      = flag.String("db-path", "", "Database path (overrides DB_PATH)")
	host        = flag.String("host", "", "Host address (overrides HOST)")
	port        = flag.Int("port", 0, "Port for HTTP transport (overrides PORT)")
	imagePath   = flag.String("image", "", "Analyze a single meal photo and exit")
	payloadPath = flag.String("payload", "", "Analyze a recognition response file and exit (- reads stdin)")
	format      = flag.String("format", "text", "Report format for single analyses: text or json")
	version     = flag.Bool("version", false, "Show version")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Println("meal-footprint version 1.0.0")
		os.Exit(0)
	}

	oneShot := *imagePath != "" || *payloadPath != ""
	if oneShot {
		log.SetHandler(cli.New(os.Stderr))
	} else {
		log.SetHandler(jsonhandler.New(os.Stderr))
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	applyFlags(cfg)

	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.Warnf("Unknown log level %q, using info", cfg.LogLevel)
	}

	if *format != "text" && *format != "json" {
		log.Fatalf("Unknown report format %q", *format)
	}

	metrics.Register()

	ds, err := dataset.Load(cfg.DatasetPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load reference dataset")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec, err := newRecognizer(ctx, cfg, ds.Names())
	if err != nil {
		log.WithError(err).Fatal("Failed to create recognizer")
	}
	analyzer := footprint.NewAnalyzer(ds, rec)

	if oneShot {
		if err := runOnce(ctx, analyzer, os.Stdout); err != nil {
			log.WithError(err).Fatal("Analysis failed")
		}
		return
	}

	store, err := storage.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize storage")
	}
	defer store.Close()

	srv, err := server.NewFootprintServer(&server.Config{Host: cfg.Host, Port: cfg.Port}, analyzer, ds, store)
	if err != nil {
		log.WithError(err).Fatal("Failed to create server")
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(ctx); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-sigCh:
		log.Info("Received shutdown signal")
	case err := <-errCh:
		log.WithError(err).Error("Server error")
	}

	log.Info("Shutting down...")
	cancel()
	if err := srv.Stop(); err != nil {
		log.WithError(err).Error("Error during shutdown")
	}
}

func applyFlags(cfg *config.Config) {
	if *datasetPath != "" {
		cfg.DatasetPath = *datasetPath
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *port != 0 {
		cfg.Port = *port
	}
}

// newRecognizer returns nil when no API key is configured; image analysis
// then fails with footprint.ErrNoRecognizer.
func newRecognizer(ctx context.Context, cfg *config.Config, foodNames []string) (recognition.Recognizer, error) {
	if cfg.GeminiAPIKey == "" {
		log.Warn("No Gemini API key configured, image recognition disabled")
		return nil, nil
	}

	gemini, err := recognition.NewGeminiRecognizer(ctx, recognition.GeminiConfig{
		APIKey:    cfg.GeminiAPIKey,
		Model:     cfg.GeminiModel,
		Timeout:   cfg.RecognitionTimeout,
		FoodNames: foodNames,
	})
	if err != nil {
		return nil, err
	}
	cached, err := recognition.NewCachingRecognizer(gemini, cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	return cached, nil
}

func runOnce(ctx context.Context, analyzer *footprint.Analyzer, out io.Writer) error {
	var (
		res *footprint.Result
		err error
	)

	if *payloadPath != "" {
		payload, err := readInput(*payloadPath)
		if err != nil {
			return fmt.Errorf("failed to read payload: %w", err)
		}
		res, err = analyzer.AnalyzePayload(string(payload))
		if err != nil {
			return err
		}
	} else {
		image, err := os.ReadFile(*imagePath)
		if err != nil {
			return fmt.Errorf("failed to read image: %w", err)
		}
		res, err = analyzer.Analyze(ctx, image, mime.TypeByExtension(filepath.Ext(*imagePath)))
		if err != nil {
			return err
		}
	}

	if *format == "json" {
		body, err := report.JSON(res.Summary())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(body))
		return err
	}
	_, err = fmt.Fprint(out, report.Text(res.Summary()))
	return err
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
