package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ValentinKolb/dVol/lib/shardstore"
	"github.com/ValentinKolb/dVol/rpc/client"
)

func newTestRouter(t *testing.T) (http.Handler, *client.Coordinator) {
	t.Helper()
	ctx := context.Background()

	store, err := shardstore.Open(ctx, "mem://")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	for key, data := range map[string]string{
		"scale1/shard-0": "0123456789",
		"scale1/shard-1": "abcdef",
		"scale2/shard-0": "xy",
	} {
		if err := store.WriteShard(ctx, key, []byte(data)); err != nil {
			t.Fatalf("failed to write shard %s: %v", key, err)
		}
	}

	c := client.NewCoordinator(client.InProcFactory())
	t.Cleanup(c.Dispose)
	return NewRouter(c, store), c
}

func do(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestRange(t *testing.T) {
	h, _ := newTestRouter(t)

	testCases := []struct {
		name   string
		target string
		want   string
	}{
		{"inner", "/shards/scale1%2Fshard-0/range?start=2&end=5", "234"},
		{"whole", "/shards/scale1%2Fshard-1/range?start=0&end=6", "abcdef"},
		{"clamped", "/shards/scale1%2Fshard-0/range?start=-4&end=100", "0123456789"},
		{"inverted", "/shards/scale1%2Fshard-0/range?start=7&end=3", ""},
		{"past end", "/shards/scale2%2Fshard-0/range?start=10&end=20", ""},
	}

	for _, tc := range testCases {
		for _, direct := range []bool{false, true} {
			name, target := tc.name, tc.target
			if direct {
				name, target = name+" direct", target+"&direct=true"
			}
			t.Run(name, func(t *testing.T) {
				rec := do(h, target)
				if rec.Code != http.StatusOK {
					t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
				}
				if ct := rec.Header().Get("Content-Type"); ct != "application/octet-stream" {
					t.Errorf("Expected octet-stream, got %q", ct)
				}
				if !bytes.Equal(rec.Body.Bytes(), []byte(tc.want)) {
					t.Errorf("Expected body %q, got %q", tc.want, rec.Body.String())
				}
			})
		}
	}
}

func TestRangeErrors(t *testing.T) {
	h, _ := newTestRouter(t)

	testCases := []struct {
		name   string
		target string
		status int
	}{
		{"unknown shard", "/shards/missing/range?start=0&end=1", http.StatusNotFound},
		{"unknown shard direct", "/shards/missing/range?start=0&end=1&direct=true", http.StatusNotFound},
		{"missing start", "/shards/scale2%2Fshard-0/range?end=1", http.StatusBadRequest},
		{"missing end", "/shards/scale2%2Fshard-0/range?start=0", http.StatusBadRequest},
		{"non numeric", "/shards/scale2%2Fshard-0/range?start=a&end=1", http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(h, tc.target)
			if rec.Code != tc.status {
				t.Fatalf("Expected status %d, got %d", tc.status, rec.Code)
			}

			var resp APIResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("Expected JSON error body: %v", err)
			}
			if resp.Success || resp.Error == "" {
				t.Errorf("Expected failure with message, got %+v", resp)
			}
		})
	}
}

func TestRangeAfterDispose(t *testing.T) {
	h, c := newTestRouter(t)
	c.Dispose()

	rec := do(h, "/shards/scale2%2Fshard-0/range?start=0&end=1")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status 503, got %d", rec.Code)
	}
}

func TestList(t *testing.T) {
	h, _ := newTestRouter(t)

	testCases := []struct {
		prefix string
		want   []string
	}{
		{"scale1/", []string{"scale1/shard-0", "scale1/shard-1"}},
		{"scale2/", []string{"scale2/shard-0"}},
		{"scale3/", []string{}},
	}

	for _, tc := range testCases {
		t.Run(tc.prefix, func(t *testing.T) {
			rec := do(h, "/shards?prefix="+tc.prefix)
			if rec.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", rec.Code)
			}

			var resp struct {
				Success bool     `json:"success"`
				Data    []string `json:"data"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if !resp.Success {
				t.Fatalf("Expected success")
			}
			if strings.Join(resp.Data, ",") != strings.Join(tc.want, ",") {
				t.Errorf("Expected %v, got %v", tc.want, resp.Data)
			}
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h, _ := newTestRouter(t)

	if rec := do(h, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("Expected healthz 200, got %d", rec.Code)
	}

	do(h, "/shards/scale1%2Fshard-0/range?start=0&end=4")
	rec := do(h, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected metrics 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{"dvol_gateway_range_bytes_total", `dvol_gateway_requests_total{route="range"}`} {
		if !strings.Contains(body, name) {
			t.Errorf("Expected metric %s in output", name)
		}
	}
}
