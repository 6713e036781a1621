// Package server exposes the trained liver-cancer model over HTTP.
//
// The preprocessor and the network are loaded once at start-up. When loading
// fails the server still starts; /health reports model_loaded=false and
// /predict answers 500 until the process is restarted with valid artifacts.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/liverrisk/dataset"
	"github.com/YuminosukeSato/liverrisk/pkg/errors"
	"github.com/YuminosukeSato/liverrisk/pkg/log"
)

// 応答メッセージ
const (
	MsgUnavailable = "Modelo o preprocesador no están disponibles."
	MsgEmptyBody   = "No se recibieron datos (JSON vacío)."
	MsgFollowUp    = "Recomendación de seguimiento/chequeos."
	MsgAlert       = "Alerta: Cita clínica inmediata."

	serverErrorPrefix = "Error en el servidor: "
	invalidJSONPrefix = "JSON inválido: "
)

// maxBodyBytes bounds the /predict request body.
const maxBodyBytes = 8 << 10

// RiskThreshold is the percentage above which an immediate appointment is
// recommended.
const RiskThreshold = 50.0

// Preprocessor turns raw feature rows into the model's input matrix.
type Preprocessor interface {
	Transform(f *dataset.Frame) (*mat.Dense, error)
}

// Model returns the positive-class probability of each row.
type Model interface {
	Predict(X mat.Matrix) (*mat.Dense, error)
}

// Config holds the HTTP settings.
type Config struct {
	Port            int
	AllowedOrigin   string
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
}

// DefaultConfig mirrors the defaults of internal/config.
func DefaultConfig() Config {
	return Config{
		Port:            5000,
		AllowedOrigin:   "*",
		ShutdownTimeout: 10 * time.Second,
		ReadTimeout:     15 * time.Second,
	}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and lifecycle logger.
func WithLogger(l log.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithArtifacts sets the loaded preprocessor and model.
func WithArtifacts(p Preprocessor, m Model) Option {
	return func(s *Server) {
		s.prep = p
		s.model = m
	}
}

// WithLoadError records why the artifacts could not be loaded. It is only
// reported in logs; clients see MsgUnavailable.
func WithLoadError(err error) Option {
	return func(s *Server) { s.loadErr = err }
}

// WithFeatures sets the raw columns of the frame built for every request.
// The default is the liver-cancer schema's feature list.
func WithFeatures(names []string) Option {
	return func(s *Server) { s.features = append([]string(nil), names...) }
}

// Server serves /predict and /health.
type Server struct {
	cfg      Config
	logger   log.Logger
	prep     Preprocessor
	model    Model
	loadErr  error
	features []string
	engine   *gin.Engine
}

// New builds the gin engine and registers the routes.
func New(cfg Config, opts ...Option) *Server {
	if cfg.AllowedOrigin == "" {
		cfg.AllowedOrigin = "*"
	}
	s := &Server{
		cfg:      cfg,
		logger:   log.Nop(),
		features: dataset.LiverCancerSchema().Features(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(log.ComponentKey, "server")
	if s.loadErr != nil {
		s.logger.Error("artifacts unavailable, /predict will answer 500", log.ErrAttrKey, s.loadErr)
	}

	r := gin.New()
	r.Use(s.requestLogger(), gin.CustomRecovery(s.recovered), s.cors())
	r.GET("/health", s.health)
	r.POST("/predict", s.predict)
	s.engine = r
	return s
}

// Handler returns the http.Handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Ready reports whether both artifacts are loaded.
func (s *Server) Ready() bool {
	return s.prep != nil && s.model != nil
}

// Run listens on the configured port until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return errors.Wrapf(err, "listen on port %d", s.cfg.Port)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully within ShutdownTimeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("listening", "addr", ln.Addr().String(), "model_loaded", s.Ready())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "serve")
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().ShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("shutting down", "timeout", timeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serve")
	}
	return nil
}

func (s *Server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", s.cfg.AllowedOrigin)
		c.Header("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			log.DurationMsKey, time.Since(start).Milliseconds(),
		)
	}
}

func (s *Server) recovered(c *gin.Context, v any) {
	err := errors.NewPanicError(c.Request.URL.Path, v)
	s.logger.Error("panic in handler", log.ErrAttrKey, err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": serverErrorPrefix + err.Error()})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "alive",
		"model_loaded": s.Ready(),
	})
}

func (s *Server) predict(c *gin.Context) {
	if !s.Ready() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": MsgUnavailable})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	body, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = fmt.Errorf("el cuerpo supera %d bytes", tooLarge.Limit)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": invalidJSONPrefix + err.Error()})
		return
	}
	payload, err := decodePayload(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": invalidJSONPrefix + err.Error()})
		return
	}
	if len(payload) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": MsgEmptyBody})
		return
	}

	row, err := s.row(payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": invalidJSONPrefix + err.Error()})
		return
	}

	var p float64
	err = errors.SafeExecute("server.predict", func() error {
		var perr error
		p, perr = s.probability(row)
		return perr
	})
	if err != nil {
		s.logger.Error("prediction failed", log.ErrAttrKey, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": serverErrorPrefix + err.Error()})
		return
	}

	risk := RiskPercent(p)
	s.logger.Debug("prediction", log.ConfidenceKey, p, "risk", risk)
	c.JSON(http.StatusOK, gin.H{
		"porcentaje_riesgo": risk,
		"mensaje_accion":    ActionMessage(risk),
	})
}

// RiskPercent converts a probability to a percentage rounded to two decimals.
func RiskPercent(p float64) float64 {
	return math.Round(p*10000) / 100
}

// ActionMessage returns the recommendation for a risk percentage.
func ActionMessage(risk float64) string {
	if risk <= RiskThreshold {
		return MsgFollowUp
	}
	return MsgAlert
}

func decodePayload(body []byte) (map[string]any, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON object")
	}
	return payload, nil
}

// row builds the single frame row for payload. Absent keys and null values
// become missing cells; keys outside the feature list are ignored.
func (s *Server) row(payload map[string]any) ([]string, error) {
	out := make([]string, len(s.features))
	for i, name := range s.features {
		v, ok := payload[name]
		if !ok {
			continue
		}
		cell, err := cellValue(v)
		if err != nil {
			return nil, errors.Wrapf(err, "feature %q", name)
		}
		out[i] = cell
	}
	return out, nil
}

func cellValue(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case json.Number:
		return x.String(), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case string:
		return x, nil
	case bool:
		if x {
			return "1", nil
		}
		return "0", nil
	default:
		return "", errors.Newf("unsupported value of type %T", v)
	}
}

func (s *Server) probability(row []string) (float64, error) {
	f := dataset.NewFrame(s.features)
	if err := f.AppendRow(row); err != nil {
		return 0, err
	}
	X, err := s.prep.Transform(f)
	if err != nil {
		return 0, errors.Wrap(err, "transform")
	}
	if r, _ := X.Dims(); r == 0 {
		return 0, errors.Wrap(errors.ErrEmptyData, "transform")
	}
	if err := errors.CheckFinite("server.transform", mat.Row(nil, 0, X), 0); err != nil {
		return 0, err
	}
	pred, err := s.model.Predict(X)
	if err != nil {
		return 0, errors.Wrap(err, "predict")
	}
	if r, _ := pred.Dims(); r == 0 {
		return 0, errors.Wrap(errors.ErrEmptyData, "predict")
	}
	p := pred.At(0, 0)
	if err := errors.CheckScalar("server.predict", p, 0); err != nil {
		return 0, err
	}
	return p, nil
}
