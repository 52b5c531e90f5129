// Package api exposes the reconciliation service over HTTP.
//
// Routes:
//
//	GET  /health          provider status
//	POST /api/match       {record1, record2} -> {report, summary}
//	POST /api/convert     {data} -> {records, count}
//	POST /api/match-pdf   multipart record1 + file -> {report, summary}
//
// Every /api response uses the Response envelope.
package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"semantic-reconciliation-service/internal/converter"
	"semantic-reconciliation-service/internal/reconciler"
	"semantic-reconciliation-service/pkg/errors"
	"semantic-reconciliation-service/pkg/logger"
)

// PDF handling modes for /api/match-pdf
const (
	PDFModeForward = "forward"
	PDFModeLocal   = "local"
)

// MaxUploadSize is the largest PDF accepted by /api/match-pdf
const MaxUploadSize = 10 << 20

// Config holds the HTTP server settings
type Config struct {
	Port            int           `mapstructure:"port"`
	PDFMode         string        `mapstructure:"pdf_mode"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	Debug           bool          `mapstructure:"debug"`
}

// DefaultConfig returns the server defaults: port 3005, forwarded PDFs
func DefaultConfig() *Config {
	return &Config{
		Port:            3005,
		PDFMode:         PDFModeForward,
		RequestTimeout:  5 * time.Minute,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "server.port", c.Port, nil)
	}
	switch c.PDFMode {
	case PDFModeForward, PDFModeLocal:
	default:
		return errors.ConfigurationError(errors.CodeInvalidConfig, "server.pdf_mode", c.PDFMode, nil).
			WithSuggestion("use forward or local")
	}
	if c.RequestTimeout < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "server.request_timeout", c.RequestTimeout, nil)
	}
	return nil
}

// Server handles the HTTP API
type Server struct {
	reconciler *reconciler.ReconciliationService
	converter  *converter.Converter
	forwarder  *converter.Forwarder
	config     *Config
	log        logger.Logger
}

// NewServer creates a server. conv may be nil, in which case the conversion
// routes answer with a configuration error; fwd is only needed in forward mode.
func NewServer(rs *reconciler.ReconciliationService, conv *converter.Converter, fwd *converter.Forwarder, config *Config, log logger.Logger) (*Server, error) {
	if rs == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "reconciler", nil, nil)
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.PDFMode == PDFModeForward && fwd == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "pdf.convert_url", nil, nil).
			WithSuggestion("configure EXTERNAL_CONVERT_URL or set pdf mode to local")
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &Server{
		reconciler: rs,
		converter:  conv,
		forwarder:  fwd,
		config:     config,
		log:        log.WithComponent("api"),
	}, nil
}

// Reconciler returns the service behind the match routes
func (s *Server) Reconciler() *reconciler.ReconciliationService {
	return s.reconciler
}

// SetupRouter builds the gin engine with middleware and routes
func (s *Server) SetupRouter() *gin.Engine {
	if s.config.Debug {
		gin.SetMode(gin.DebugMode)
	} else if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.MaxMultipartMemory = MaxUploadSize
	router.Use(requestID())
	router.Use(recovery(s.log))
	router.Use(accessLog(s.log, "/health"))
	router.Use(cors.New(s.corsConfig()))

	router.GET("/health", s.Health)

	api := router.Group("/api")
	{
		api.POST("/match", s.Match)
		api.POST("/convert", s.Convert)
		api.POST("/match-pdf", s.MatchPDF)
	}

	router.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "Not found", "no route for "+c.Request.Method+" "+c.Request.URL.Path)
	})

	return router
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", requestIDHeader},
		ExposeHeaders: []string{"Content-Length", requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(s.config.AllowedOrigins) == 0 || (len(s.config.AllowedOrigins) == 1 && strings.TrimSpace(s.config.AllowedOrigins[0]) == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = s.config.AllowedOrigins
	}
	return cfg
}

// Run serves on the configured port until ctx is cancelled, then shuts down
// gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(s.config.Port),
		Handler:           s.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("port", s.config.Port).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return errors.NetworkError(errors.CodeServiceUnavailable, srv.Addr, err).
				WithSuggestion("check that the port is free")
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "server shutdown", err)
	}
	return nil
}

// requestContext bounds a handler's work by the configured timeout
func (s *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if s.config.RequestTimeout > 0 {
		return context.WithTimeout(c.Request.Context(), s.config.RequestTimeout)
	}
	return context.WithCancel(c.Request.Context())
}
