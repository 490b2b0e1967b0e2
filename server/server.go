package server

import (
	"context"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// DefaultMaxBodyBytes bounds the size of an uploaded image.
const DefaultMaxBodyBytes = 32 << 20

const shutdownTimeout = 5 * time.Second

// Detector runs detection on a decoded image. *inference.Engine implements it.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]postprocess.Detection, error)
}

// Options configures a Server.
type Options struct {
	// Addr is the listen address, e.g. ":8080".
	Addr     string
	Detector Detector
	// Store keeps results for GET /v1/detections/:id. Nil disables lookups.
	Store Store
	// Publisher receives every result. Nil disables publishing.
	Publisher    Publisher
	Logger       *zap.Logger
	MaxBodyBytes int64
}

// Server exposes a Detector over HTTP.
type Server struct {
	addr      string
	detector  Detector
	store     Store
	publisher Publisher
	logger    *zap.Logger
	maxBody   int64
	api       *gin.Engine
}

// New creates a Server.
//
// Arguments:
//   - opts: The server options. Detector is required.
//
// Returns:
//   - *Server: The server.
//   - error: An error if no detector is given.
func New(opts Options) (*Server, error) {
	if opts.Detector == nil {
		return nil, errors.New("server requires a detector")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	s := &Server{
		addr:      opts.Addr,
		detector:  opts.Detector,
		store:     opts.Store,
		publisher: opts.Publisher,
		logger:    logger.Named("server"),
		maxBody:   maxBody,
	}
	s.api = s.newAPI()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.api
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("listening", zap.String("addr", s.addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "serving")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down")
		return errors.Wrap(srv.Shutdown(shutdownCtx), "shutting down")
	}
}

func (s *Server) newAPI() *gin.Engine {
	eng := gin.New()
	eng.Use(gin.Recovery(), s.logRequests)

	eng.GET("/health", s.health)

	apiV1 := eng.Group("/v1")
	apiV1.POST("/detect", s.detect)
	apiV1.GET("/detections/:id", s.getDetections)

	return eng
}

func (s *Server) logRequests(ctx *gin.Context) {
	start := time.Now()
	ctx.Next()
	s.logger.Debug("request",
		zap.String("method", ctx.Request.Method),
		zap.String("path", ctx.Request.URL.Path),
		zap.Int("status", ctx.Writer.Status()),
		zap.Duration("elapsed", time.Since(start)),
	)
}

func (s *Server) health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func abort(ctx *gin.Context, status int, err error) {
	ctx.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// detect takes an encoded JPEG, PNG or WebP image as the request body.
func (s *Server) detect(ctx *gin.Context) {
	data, err := io.ReadAll(http.MaxBytesReader(ctx.Writer, ctx.Request.Body, s.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abort(ctx, http.StatusRequestEntityTooLarge, err)
			return
		}
		abort(ctx, http.StatusBadRequest, err)
		return
	}

	img, meta, err := images.Decode(data)
	if err != nil {
		abort(ctx, http.StatusBadRequest, err)
		return
	}

	detections, err := s.detector.Detect(ctx.Request.Context(), img)
	if err != nil {
		s.logger.Error("detect failed", zap.Error(err))
		abort(ctx, http.StatusInternalServerError, err)
		return
	}

	result := Result{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UnixMilli(),
		Format:     meta.Format,
		Width:      meta.Width,
		Height:     meta.Height,
		Detections: detections,
	}

	if s.store != nil {
		if err := s.store.Put(ctx.Request.Context(), result); err != nil {
			s.logger.Error("store result failed", zap.String("id", result.ID), zap.Error(err))
			abort(ctx, http.StatusInternalServerError, err)
			return
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx.Request.Context(), result); err != nil {
			s.logger.Error("publish result failed", zap.String("id", result.ID), zap.Error(err))
		}
	}

	ctx.JSON(http.StatusOK, result)
}

func (s *Server) getDetections(ctx *gin.Context) {
	id := ctx.Param("id")
	if s.store == nil {
		abort(ctx, http.StatusNotFound, errors.Wrapf(ErrNotFound, "result %s", id))
		return
	}

	result, err := s.store.Get(ctx.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			abort(ctx, http.StatusNotFound, err)
			return
		}
		s.logger.Error("get result failed", zap.String("id", id), zap.Error(err))
		abort(ctx, http.StatusInternalServerError, err)
		return
	}

	ctx.JSON(http.StatusOK, result)
}
