package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"radiology-worklist/internal/blob"
	"radiology-worklist/internal/config"
	"radiology-worklist/internal/dicomweb"
	"radiology-worklist/internal/extension"
	"radiology-worklist/internal/ingest"
	"radiology-worklist/internal/loader"
	"radiology-worklist/internal/logging"
	"radiology-worklist/internal/metrics"
	"radiology-worklist/internal/models"
	"radiology-worklist/internal/store"
)

var (
	Version   = "v0.1.0-dev"
	BuildTime = "unknown"
)

var (
	cfgFile  string
	logLevel string
	listen   string

	logger zerolog.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "worklist",
		Short:        "Radiology study worklist and local DICOM viewer hand-off",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.New(logging.Options{Level: logLevel, Format: "console"})
		},
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")
	rootCmd.Version = Version + " (" + BuildTime + ")"

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newIngestCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// loadConfig reads the config file and applies command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if listen != "" {
		cfg.ListenAddress = listen
	}
	logger = logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	return cfg, nil
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the worklist and local ingestion screens",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address (overrides config)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	storage, err := store.Open(cfg.Storage.Driver, cfg.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer storage.Close()

	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	source := dicomweb.NewClient(dicomweb.Config{
		BaseURL:       cfg.DICOMWeb.BaseURL,
		Timeout:       cfg.DICOMWeb.Timeout,
		RetryMax:      cfg.DICOMWeb.RetryMax,
		UploadEnabled: cfg.DICOMWeb.UploadEnabled,
		Limit:         cfg.Worklist.StudiesLimit,
	}, logging.Component(logger, "dicomweb"))

	srv, err := NewServer(Deps{
		Config:  cfg,
		Log:     logger,
		Metrics: metrics.New(),
		Source:  source,
		Storage: storage,
		Blobs:   blobs,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.ListenAddress).
			Str("dicomweb", cfg.DICOMWeb.BaseURL).
			Str("blob_driver", string(blobs.Driver())).
			Str("storage_driver", cfg.Storage.Driver).
			Msg("API/UI server started")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// printNavigator writes navigation targets instead of following them.
type printNavigator struct {
	out io.Writer
}

func (p printNavigator) Navigate(_ context.Context, targets []string) {
	for _, t := range targets {
		fmt.Fprintln(p.out, t)
	}
}

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Load local DICOM files and print the viewer routes that open them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			files, err := readFiles(args)
			if err != nil {
				return err
			}
			meta := loader.NewMetadataStore()
			pipeline := ingest.New(loader.New(meta), meta, extension.NewRegistry(cfg.Local.Extensions...), cfg.Local.ModePath,
				ingest.WithLogger(logging.Component(logger, "ingest")),
				ingest.WithNavigator(printNavigator{out: cmd.OutOrStdout()}),
			)
			res, err := pipeline.Ingest(cmd.Context(), files)
			if err != nil {
				return err
			}
			if len(res.Studies) == 0 {
				return errors.New("no studies found")
			}
			return nil
		},
	}
}

// readFiles expands directories one level deep, the way a folder picker
// hands over its contents.
func readFiles(paths []string) ([]models.LocalFile, error) {
	var files []models.LocalFile
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		names := []string{p}
		if info.IsDir() {
			entries, err := os.ReadDir(p)
			if err != nil {
				return nil, err
			}
			names = names[:0]
			for _, e := range entries {
				if !e.IsDir() {
					names = append(names, filepath.Join(p, e.Name()))
				}
			}
		}
		for _, name := range names {
			data, err := os.ReadFile(name)
			if err != nil {
				return nil, err
			}
			files = append(files, models.LocalFile{Name: name, Data: data})
		}
	}
	return files, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "worklist "+Version+" ("+BuildTime+")")
		},
	}
}
