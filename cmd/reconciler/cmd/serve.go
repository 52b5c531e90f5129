package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"semantic-reconciliation-service/cmd/reconciler/config"
	"semantic-reconciliation-service/internal/api"
	"semantic-reconciliation-service/internal/converter"
	"semantic-reconciliation-service/internal/embedding"
	"semantic-reconciliation-service/internal/reconciler"
	"semantic-reconciliation-service/pkg/logger"
)

// Flags for the serve command
var (
	servePort    int
	servePDFMode string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP matching API",
	Long: `Serve exposes the matcher over HTTP:

  GET  /health          liveness and embedding provider state
  POST /api/match       {"record1": [...], "record2": [...]}
  POST /api/convert     {"data": [...]}
  POST /api/match-pdf   multipart: file (PDF) and record1 (JSON array)

When started with --config, changes to the log level and the matching
thresholds in that file are applied without a restart.

Examples:
  reconciler serve
  reconciler serve --port 8080 --pdf-mode local
  PORT=8080 OPENAI_API_KEY=sk-... reconciler serve`,

	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&servePort, "port", "p", 3005, "port to listen on")
	serveCmd.Flags().StringVar(&servePDFMode, "pdf-mode", api.PDFModeForward, "PDF handling: forward (external service) or local (text extraction)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cmd.Flags().Changed("port") {
		appConfig.Server.Port = servePort
	}
	if cmd.Flags().Changed("pdf-mode") {
		appConfig.Server.PDFMode = servePDFMode
	}

	fs := afero.NewOsFs()

	service, err := newReconciliationService(appConfig, fs)
	if err != nil {
		return err
	}

	conv, err := newConverter(ctx, appConfig, fs)
	if err != nil {
		return err
	}
	if conv == nil {
		log.Warn("No converter API key configured, /api/convert and /api/match-pdf will fail")
	}

	serverConfig := appConfig.ServerConfig()
	var fwd *converter.Forwarder
	if serverConfig.PDFMode == api.PDFModeForward {
		fwd = converter.NewForwarder(appConfig.ForwarderConfig(), log)
	}

	server, err := api.NewServer(service, conv, fwd, serverConfig, log)
	if err != nil {
		return err
	}

	if viper.ConfigFileUsed() != "" {
		watchConfig(viper.GetViper(), service)
	}

	// Surface credential problems at startup; a failed load is retried on first use
	if lazy, ok := service.Provider().(*embedding.Lazy); ok {
		go func() {
			if err := lazy.Warm(ctx); err != nil {
				log.WithError(err).Warn("Embedding provider is not available yet")
			}
		}()
	}

	log.WithFields(logger.Fields{
		"port":     serverConfig.Port,
		"pdf_mode": serverConfig.PDFMode,
		"provider": service.Provider().Name(),
	}).Info("Starting API server")

	return server.Run(ctx)
}

// watchConfig reloads the log level and matching thresholds when the config
// file changes. Other settings need a restart.
func watchConfig(v *viper.Viper, service *reconciler.ReconciliationService) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		reloadConfig(v, service, e.Name)
	})
	v.WatchConfig()
}

func reloadConfig(v *viper.Viper, service *reconciler.ReconciliationService, file string) {
	entry := log.WithField("file", file)

	cfg, err := config.Load(v)
	if err != nil {
		entry.WithError(err).Warn("Ignoring invalid configuration change")
		return
	}

	if err := logger.GetGlobalLogger().SetLevel(cfg.Log.Level); err != nil {
		entry.WithError(err).Warn("Could not apply log level")
	}

	rc := service.GetConfiguration()
	rc.Matching = cfg.MatchingConfig()
	if err := service.UpdateConfiguration(rc); err != nil {
		entry.WithError(err).Warn("Could not apply matching configuration")
		return
	}

	entry.WithFields(logger.Fields{
		"log_level":            cfg.Log.Level,
		"date_tolerance_days":  rc.Matching.DateToleranceDays,
		"min_similarity_score": rc.Matching.MinSimilarityScore,
	}).Info("Configuration reloaded")
}
