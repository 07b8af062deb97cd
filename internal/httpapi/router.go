// Package httpapi serves the operational HTTP surface: health, metrics,
// scheduler status and the latest feature row.
package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"crypto-feature-pipeline/internal/domain"
	"crypto-feature-pipeline/internal/logger"
	"crypto-feature-pipeline/internal/observability"
	"crypto-feature-pipeline/internal/scheduler"
	"crypto-feature-pipeline/internal/storage"
)

// StatusProvider reports the scheduler state.
type StatusProvider interface {
	Status() scheduler.Status
}

// Options for creating the router.
type Options struct {
	Gatherer prometheus.Gatherer // required

	Status   StatusProvider       // optional, /status reports only uptime without it
	Features storage.FeatureStore // optional, enables /features/latest
	Logger   logrus.FieldLogger
	Started  time.Time
}

type handlers struct {
	status   StatusProvider
	features storage.FeatureStore
	started  time.Time
}

// NewRouter builds the gin engine.
func NewRouter(opts Options) *gin.Engine {
	var log logrus.FieldLogger = logger.Discard()
	if opts.Logger != nil {
		log = opts.Logger
	}
	started := opts.Started
	if started.IsZero() {
		started = time.Now()
	}

	h := &handlers{status: opts.Status, features: opts.Features, started: started}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger.WithComponent(log, "http")))

	r.GET("/healthz", Health)
	r.HEAD("/healthz", Health)
	r.GET("/metrics", gin.WrapH(observability.Handler(opts.Gatherer)))
	r.GET("/status", h.handleStatus)
	if h.features != nil {
		r.GET("/features/latest", h.handleLatestFeature)
	}
	return r
}

// Health answers liveness probes.
func Health(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	if c.Request.Method == http.MethodHead {
		c.Status(http.StatusOK)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// StatusResponse is the JSON response for /status.
type StatusResponse struct {
	Status    string            `json:"status"`
	Uptime    string            `json:"uptime"`
	Started   time.Time         `json:"started"`
	Scheduler *scheduler.Status `json:"scheduler,omitempty"`
}

func (h *handlers) handleStatus(c *gin.Context) {
	resp := StatusResponse{
		Status:  "running",
		Uptime:  time.Since(h.started).Truncate(time.Second).String(),
		Started: h.started,
	}
	if h.status != nil {
		st := h.status.Status()
		resp.Scheduler = &st
	}
	c.JSON(http.StatusOK, resp)
}

// FeatureResponse mirrors a crypto_features row.
type FeatureResponse struct {
	Timestamp      time.Time `json:"timestamp"`
	Close          float64   `json:"close"`
	Lag1h          float64   `json:"lag_1h"`
	Lag2h          float64   `json:"lag_2h"`
	Lag3h          float64   `json:"lag_3h"`
	Lag6h          float64   `json:"lag_6h"`
	Lag12h         float64   `json:"lag_12h"`
	Lag24h         float64   `json:"lag_24h"`
	MA6h           float64   `json:"ma_6h"`
	MA12h          float64   `json:"ma_12h"`
	RSI            float64   `json:"rsi"`
	MACD           float64   `json:"macd"`
	MACDSignal     float64   `json:"macd_signal"`
	BollingerHBand float64   `json:"bollinger_hband"`
	BollingerLBand float64   `json:"bollinger_lband"`
}

func newFeatureResponse(r *domain.FeatureRow) FeatureResponse {
	return FeatureResponse{
		Timestamp:      r.Timestamp.UTC(),
		Close:          r.Close,
		Lag1h:          r.Lag1h,
		Lag2h:          r.Lag2h,
		Lag3h:          r.Lag3h,
		Lag6h:          r.Lag6h,
		Lag12h:         r.Lag12h,
		Lag24h:         r.Lag24h,
		MA6h:           r.MA6h,
		MA12h:          r.MA12h,
		RSI:            r.RSI,
		MACD:           r.MACD,
		MACDSignal:     r.MACDSignal,
		BollingerHBand: r.BollingerHBand,
		BollingerLBand: r.BollingerLBand,
	}
}

func (h *handlers) handleLatestFeature(c *gin.Context) {
	row, err := h.features.Latest(c.Request.Context())
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no features yet"})
		return
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read features"})
		return
	}
	c.JSON(http.StatusOK, newFeatureResponse(row))
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		})
		if len(c.Errors) > 0 {
			entry.WithError(c.Errors.Last()).Warn("request failed")
			return
		}
		entry.Debug("request served")
	}
}
