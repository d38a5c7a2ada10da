package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ValentinKolb/dVol/lib/fault"
	"github.com/ValentinKolb/dVol/lib/shardstore"
	"github.com/ValentinKolb/dVol/rpc/client"
	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("gateway")

var rangeBytesServed = metrics.NewCounter("dvol_gateway_range_bytes_total")

// APIResponse is the body of every JSON response
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// server holds the dependencies of the handlers
type server struct {
	coordinator *client.Coordinator
	store       *shardstore.Store
}

// NewRouter returns the HTTP handler serving shards from store through c.
func NewRouter(c *client.Coordinator, store *shardstore.Store) http.Handler {
	s := &server{coordinator: c, store: store}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		sendJSON(w, http.StatusOK, "ok")
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		metrics.WritePrometheus(w, true)
	})
	r.Get("/shards", s.handleList)
	r.Get("/shards/{key}/range", s.handleRange)

	return r
}

// --------------------------------------------------------------------------
// Handlers
// --------------------------------------------------------------------------

func (s *server) handleList(w http.ResponseWriter, r *http.Request) {
	countRequest("list")
	keys, err := s.store.List(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		sendFailure(w, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	sendJSON(w, http.StatusOK, keys)
}

func (s *server) handleRange(w http.ResponseWriter, r *http.Request) {
	countRequest("range")

	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil || key == "" {
		sendError(w, "invalid shard key", http.StatusBadRequest)
		return
	}
	start, err := int64Param(r, "start")
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	end, err := int64Param(r, "end")
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var out []byte
	if r.URL.Query().Get("direct") == "true" {
		out, err = s.store.ReadRange(r.Context(), key, start, end)
	} else {
		out, err = s.extract(r.Context(), key, start, end)
	}
	if err != nil {
		sendFailure(w, err)
		return
	}

	Logger.Debugf("Served %d bytes of %s [%d, %d)", len(out), key, start, end)
	rangeBytesServed.Add(len(out))

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// extract fetches the whole shard and lets the coordinator slice it
func (s *server) extract(ctx context.Context, key string, start, end int64) ([]byte, error) {
	data, err := s.store.ReadShard(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.coordinator.DecodeShardEntry(ctx, data, start, end)
}

func countRequest(route string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`dvol_gateway_requests_total{route=%q}`, route)).Inc()
}

// int64Param parses a required integer query parameter
func int64Param(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, fmt.Errorf("missing query parameter %q", name)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("query parameter %q must be an integer", name)
	}
	return v, nil
}

// sendFailure maps an error to a status code
func sendFailure(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, shardstore.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, fault.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, client.ErrDisposed), errors.Is(err, fault.ErrCancelled):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		Logger.Errorf("Request failed: %v", err)
	}
	sendError(w, err.Error(), status)
}

func sendError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(APIResponse{Success: false, Error: message})
}

func sendJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data})
}
