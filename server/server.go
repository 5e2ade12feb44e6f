// Package server exposes a chat session over HTTP and websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xhad/docuchat/internal/logger"
	"github.com/xhad/docuchat/internal/models"
	"github.com/xhad/docuchat/pkg/conversation"
	"github.com/xhad/docuchat/pkg/errs"
	"github.com/xhad/docuchat/pkg/ingest"
)

type Config struct {
	Addr        string
	MaxUploadMB int
	// AutoPush uploads the index directory after each ingestion.
	AutoPush bool
}

// Archiver copies the index directory to remote storage.
type Archiver interface {
	Push(ctx context.Context, localDir string) (int, error)
	Pull(ctx context.Context, localDir string) (int, error)
}

type Server struct {
	config   Config
	session  *conversation.Session
	pipeline *ingest.Pipeline
	archive  Archiver
	echo     *echo.Echo
	upgrader websocket.Upgrader
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Answer string `json:"answer"`
}

type urlRequest struct {
	URL string `json:"url"`
}

type ingestResponse struct {
	Results []ingest.Result `json:"results"`
	Pushed  int             `json:"pushed,omitempty"`
}

// New builds the server. archive may be nil.
func New(config Config, session *conversation.Session, pipeline *ingest.Pipeline, archive Archiver) (*Server, error) {
	if session == nil {
		return nil, errors.New("session is required")
	}
	if pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.MaxUploadMB <= 0 {
		config.MaxUploadMB = 32
	}

	s := &Server{
		config:   config,
		session:  session,
		pipeline: pipeline,
		archive:  archive,
		echo:     echo.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.BodyLimit(fmt.Sprintf("%dM", config.MaxUploadMB)))

	s.echo.GET("/health", s.health)
	s.echo.POST("/documents", s.uploadDocument)
	s.echo.POST("/documents/url", s.ingestURL)
	s.echo.POST("/ask", s.ask)
	s.echo.GET("/history", s.history)
	s.echo.DELETE("/history", s.clearHistory)
	s.echo.GET("/ws", s.handleWebSocket)

	return s, nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) Start() error {
	logger.Info("starting server", "addr", s.config.Addr)
	if err := s.echo.Start(s.config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func errorJSON(c echo.Context, code int, err error) error {
	return c.JSON(code, echo.Map{"error": err.Error()})
}

// statusFor maps core errors to HTTP status codes.
func statusFor(err error) int {
	var (
		notFound     *errs.IndexNotFoundError
		incompatible *errs.IncompatibleIndexError
		embErr       *errs.EmbeddingError
	)
	switch {
	case errors.Is(err, errs.ErrNotReady):
		return http.StatusConflict
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &incompatible):
		return http.StatusUnprocessableEntity
	case errors.As(err, &embErr):
		if embErr.Retryable() {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// health never waits on the session lock, so it answers during ingestion.
func (s *Server) health(c echo.Context) error {
	status := echo.Map{"status": "ok", "session": s.session.State().String()}
	if idx := s.session.Index(); idx != nil {
		status["records"] = idx.Count()
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) uploadDocument(c echo.Context) error {
	if s.session.State() != conversation.StateReady {
		return errorJSON(c, http.StatusConflict, errs.ErrNotReady)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, fmt.Errorf("missing file: %v", err))
	}
	f, err := fh.Open()
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}

	format := models.Format(strings.ToLower(strings.TrimSpace(c.FormValue("format"))))
	doc := models.NewDocument(filepath.Base(fh.Filename), format, data)
	if !doc.Format.Supported() {
		return errorJSON(c, http.StatusUnsupportedMediaType, fmt.Errorf("unsupported file type: %s", fh.Filename))
	}

	result, err := s.pipeline.ProcessDocument(c.Request().Context(), doc)
	if err != nil {
		logger.Error("Error processing document", "document", doc.Filename, "error", err)
		return errorJSON(c, statusFor(err), fmt.Errorf("Error processing document: %w", err))
	}

	return c.JSON(http.StatusCreated, ingestResponse{
		Results: []ingest.Result{result},
		Pushed:  s.autoPush(c.Request().Context()),
	})
}

func (s *Server) ingestURL(c echo.Context) error {
	if s.session.State() != conversation.StateReady {
		return errorJSON(c, http.StatusConflict, errs.ErrNotReady)
	}

	var in urlRequest
	if err := c.Bind(&in); err != nil || in.URL == "" {
		return errorJSON(c, http.StatusBadRequest, errors.New("url is required"))
	}

	results, err := s.pipeline.ProcessURL(c.Request().Context(), in.URL)
	if err != nil {
		logger.Error("Error processing url", "url", in.URL, "error", err)
		return errorJSON(c, statusFor(err), err)
	}

	return c.JSON(http.StatusCreated, ingestResponse{
		Results: results,
		Pushed:  s.autoPush(c.Request().Context()),
	})
}

// autoPush uploads the index directory when configured. Failures are
// logged, not returned: the local index is already persisted.
func (s *Server) autoPush(ctx context.Context) int {
	if !s.config.AutoPush || s.archive == nil {
		return 0
	}
	idx := s.session.Index()
	if idx == nil {
		return 0
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	// Holding the session lock keeps ingestion from writing the index
	// files while they are uploaded.
	lock := s.session.Locker()
	lock.Lock()
	defer lock.Unlock()

	n, err := s.archive.Push(ctx, idx.Path())
	if err != nil {
		logger.Warn("failed to push index", "path", idx.Path(), "error", err)
	}
	return n
}

func (s *Server) ask(c echo.Context) error {
	var in askRequest
	if err := c.Bind(&in); err != nil || in.Question == "" {
		return errorJSON(c, http.StatusBadRequest, errors.New("question is required"))
	}

	answer, err := s.session.Ask(c.Request().Context(), in.Question)
	if err != nil {
		return errorJSON(c, statusFor(err), err)
	}
	return c.JSON(http.StatusOK, askResponse{Answer: answer})
}

func (s *Server) history(c echo.Context) error {
	history := s.session.History()
	if history == nil {
		history = models.History{}
	}
	return c.JSON(http.StatusOK, history)
}

func (s *Server) clearHistory(c echo.Context) error {
	s.session.ClearHistory()
	return c.NoContent(http.StatusNoContent)
}
