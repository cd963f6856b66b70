package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hyperview-gateway/internal/config"
	"hyperview-gateway/internal/dexscreener"
	"hyperview-gateway/internal/hyperliquid"
	"hyperview-gateway/internal/markets"
	"hyperview-gateway/internal/metrics"
	"hyperview-gateway/internal/models"
	"hyperview-gateway/internal/ratelimit"
	"hyperview-gateway/internal/synth"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server is the REST proxy layer: it normalizes upstream responses,
// applies the per-IP rate limiter and synthesizes fallback candles.
type Server struct {
	cfg     *config.Config
	hl      *hyperliquid.Client
	dex     *dexscreener.Client
	markets *markets.Service
	synth   *synth.Generator
	limiter *ratelimit.Limiter
	logger  *logrus.Logger
	started time.Time
}

func NewServer(
	cfg *config.Config,
	hl *hyperliquid.Client,
	dex *dexscreener.Client,
	marketsSvc *markets.Service,
	generator *synth.Generator,
	limiter *ratelimit.Limiter,
	logger *logrus.Logger,
) *Server {
	return &Server{
		cfg:     cfg,
		hl:      hl,
		dex:     dex,
		markets: marketsSvc,
		synth:   generator,
		limiter: limiter,
		logger:  logger,
		started: time.Now(),
	}
}

// Routes builds the full handler tree. gatewayHandler serves /ws; pass nil
// to run the REST surface alone (tests do).
func (s *Server) Routes(gatewayHandler http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/markets", s.handleMarkets)
	mux.HandleFunc("GET /api/spot/markets", s.handleSpotMarkets)
	mux.HandleFunc("GET /api/dexscreener/search/{query}", s.handleSearch)
	mux.HandleFunc("GET /api/dexscreener/token/{chainId}/{tokenAddress}", s.handleTokenPairs)
	mux.HandleFunc("POST /api/hyperliquid/positions", s.handlePositions)
	mux.HandleFunc("POST /api/info", s.rateLimited(s.handleInfo))
	mux.Handle("GET /metrics", promhttp.Handler())

	if gatewayHandler != nil {
		mux.Handle("/ws", gatewayHandler)
	}

	return s.recoverMiddleware(s.corsMiddleware(s.loggingMiddleware(mux)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeOK(w, map[string]interface{}{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	}, "")
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	data := s.markets.Markets(r.Context())
	s.writeOK(w, data, "dexscreener-api")
}

func (s *Server) handleSpotMarkets(w http.ResponseWriter, r *http.Request) {
	names, err := s.markets.SpotMarkets(r.Context())
	if err != nil {
		// Documented fail-open: an empty list, not an error.
		s.writeOK(w, []string{}, "error-fallback")
		return
	}
	s.writeOK(w, names, "hyperliquid-api")
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.PathValue("query")

	pairs, err := s.dex.Search(r.Context(), query)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "Failed to fetch DEX Screener data")
		return
	}

	source := "dexscreener-api"
	if len(pairs) == 0 {
		source = "dexscreener-api-empty"
	}
	s.writeOK(w, pairs, source)
}

func (s *Server) handleTokenPairs(w http.ResponseWriter, r *http.Request) {
	chainID := r.PathValue("chainId")
	tokenAddress := r.PathValue("tokenAddress")

	pairs, err := s.dex.TokenPairs(r.Context(), chainID, tokenAddress)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "Failed to fetch DEX Screener data")
		return
	}

	source := "dexscreener-api"
	if len(pairs) == 0 {
		source = "dexscreener-api-empty"
	}
	s.writeOK(w, pairs, source)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type string `json:"type"`
		User string `json:"user"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	raw, err := s.hl.ClearinghouseState(r.Context(), req.Type, req.User)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "Failed to fetch positions data: "+err.Error())
		return
	}

	s.writeOK(w, raw, "hyperliquid-real")
}

// rateLimited gates a handler on the per-IP fixed-window limiter.
func (s *Server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.limiter.Allow(ip) {
			metrics.RateLimitDenials.Inc()
			s.logger.Warnf("Rate limit exceeded for %s", ip)
			s.writeError(w, http.StatusTooManyRequests,
				"Rate limit exceeded. Please wait before making more requests.")
			return
		}
		next(w, r)
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// recoverMiddleware converts a panic inside any handler into an ok:false
// response instead of taking down the process or other connections.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Errorf("Recovered panic in %s %s: %v", r.Method, r.URL.Path, rec)
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.RESTRequests.WithLabelValues(route, strconv.Itoa(sw.status)).Inc()
		metrics.RESTLatency.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))

		s.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      sw.status,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("Request handled")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.written {
		w.status = status
		w.written = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

// Hijack delegates to the wrapped writer so the WebSocket upgrade on /ws
// still works behind the middleware chain.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (s *Server) writeOK(w http.ResponseWriter, data interface{}, source string) {
	s.writeJSON(w, http.StatusOK, models.Response{
		OK:        true,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		Source:    source,
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, models.Response{
		OK:        false,
		Error:     message,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, resp models.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.WithError(err).Debug("Failed to encode response")
	}
}
