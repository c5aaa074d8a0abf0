package httpapi

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/calls"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/config"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/geocode"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/pkg/json"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/recordings"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/store"
)

type testEnv struct {
	handler http.Handler
	cfg     config.Config
	calls   *calls.Registry
	recs    *recordings.Manager
}

func setupTest(t *testing.T, geocoderURL string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{
		CallLogPath:       filepath.Join(dir, "emergency_logs.json"),
		RecordingsDir:     filepath.Join(dir, "recordings"),
		LocationCachePath: filepath.Join(dir, "location_cache.json"),
		DBPath:            filepath.Join(dir, "test.db"),
		StaticDir:         filepath.Join(dir, "templates"),
		Geocoder:          config.DefaultGeocoderConfig(),
	}
	cfg.Geocoder.BaseURL = geocoderURL
	cfg.Geocoder.RequestsPerSec = 0

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	reg := calls.NewRegistry(cfg.CallLogPath, nil)
	recs, err := recordings.NewManager(cfg.RecordingsDir, nil)
	if err != nil {
		t.Fatal(err)
	}
	cache := geocode.NewCache(cfg.LocationCachePath, cfg.Geocoder.CacheCapacity, cfg.Geocoder.CacheRadiusKm)
	resolver := geocode.NewResolver(cache, geocode.NewClient(cfg.Geocoder))

	mux := http.NewServeMux()
	NewRouter(cfg, reg, recs, resolver, st).Register(mux)
	return &testEnv{handler: Handler(mux), cfg: cfg, calls: reg, recs: recs}
}

func unreachableURL() string {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()
	return url
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	var payload map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode response %q: %v", rr.Body.String(), err)
		}
	}
	return rr, payload
}

const scenarioCall = `{"phone":"555-0100","name":"A. Test","latitude":37.0,"longitude":-122.0,"emergency_type":"fire","description":"smoke"}`

func TestEmergencyCallScenario(t *testing.T) {
	env := setupTest(t, unreachableURL())
	for want := 0; want < 2; want++ {
		rr, payload := env.do(t, http.MethodPost, "/api/emergency-call", scenarioCall)
		if rr.Code != http.StatusOK {
			t.Fatalf("unexpected status %d: %s", rr.Code, rr.Body.String())
		}
		if payload["success"] != true || payload["message"] != "Emergency call recorded" {
			t.Fatalf("unexpected payload %v", payload)
		}
		if payload["call_id"] != float64(want) {
			t.Fatalf("expected call_id %d, got %v", want, payload["call_id"])
		}
	}
	data, err := os.ReadFile(env.cfg.CallLogPath)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "\n"); n != 2 {
		t.Fatalf("expected 2 log lines, got %d", n)
	}
}

func TestEmergencyCallRejectsBadBody(t *testing.T) {
	env := setupTest(t, unreachableURL())
	for _, body := range []string{"", "not json", "[1,2]", `{"phone":`} {
		rr, payload := env.do(t, http.MethodPost, "/api/emergency-call", body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rr.Code)
		}
		if payload["success"] != false || payload["error"] == "" {
			t.Fatalf("body %q: unexpected payload %v", body, payload)
		}
	}
	if _, total := env.calls.List(); total != 0 {
		t.Fatalf("rejected bodies must not be recorded")
	}
}

func TestEmergencyCallAcceptsLooseFieldTypes(t *testing.T) {
	env := setupTest(t, unreachableURL())
	bodies := []string{
		`{"phone":5550100,"name":"A"}`,
		`{"phone":"555-0100","latitude":"37.7749","longitude":"-122.4194"}`,
		`{"phone":"555-0101","is_offline":"true"}`,
	}
	for _, body := range bodies {
		rr, payload := env.do(t, http.MethodPost, "/api/emergency-call", body)
		if rr.Code != http.StatusOK || payload["success"] != true {
			t.Fatalf("body %s: expected 200, got %d %v", body, rr.Code, payload)
		}
	}

	_, payload := env.do(t, http.MethodGet, "/api/calls", "")
	list := payload["calls"].([]any)
	if len(list) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(list))
	}
	first := list[0].(map[string]any)
	second := list[1].(map[string]any)
	third := list[2].(map[string]any)
	if first["phone"] != float64(5550100) || first["is_offline"] != false {
		t.Fatalf("numeric phone not kept: %v", first)
	}
	if second["latitude"] != "37.7749" || second["longitude"] != "-122.4194" {
		t.Fatalf("string coordinates not kept: %v", second)
	}
	if third["is_offline"] != "true" {
		t.Fatalf("is_offline not kept as sent: %v", third)
	}
}

func TestEmergencyCallLogFailureIs400(t *testing.T) {
	env := setupTest(t, unreachableURL())
	if err := os.Mkdir(env.cfg.CallLogPath, 0o755); err != nil {
		t.Fatal(err)
	}
	rr, payload := env.do(t, http.MethodPost, "/api/emergency-call", scenarioCall)
	if rr.Code != http.StatusBadRequest || payload["success"] != false {
		t.Fatalf("expected 400 on log failure, got %d %v", rr.Code, payload)
	}
}

func TestListCallsTotalsMatch(t *testing.T) {
	env := setupTest(t, unreachableURL())
	rr, payload := env.do(t, http.MethodGet, "/api/calls", "")
	if rr.Code != http.StatusOK || payload["total"] != float64(0) {
		t.Fatalf("unexpected empty listing %d %v", rr.Code, payload)
	}
	if list, ok := payload["calls"].([]any); !ok || len(list) != 0 {
		t.Fatalf("expected empty calls array, got %v", payload["calls"])
	}

	for i := 0; i < 3; i++ {
		env.do(t, http.MethodPost, "/api/emergency-call", scenarioCall)
	}
	env.do(t, http.MethodPost, "/api/emergency-call", `{"name":"partial"}`)

	_, payload = env.do(t, http.MethodGet, "/api/calls", "")
	list := payload["calls"].([]any)
	if payload["total"] != float64(len(list)) || len(list) != 4 {
		t.Fatalf("total %v does not match %d calls", payload["total"], len(list))
	}
	last := list[3].(map[string]any)
	if last["name"] != "partial" || last["phone"] != nil || last["is_offline"] != false {
		t.Fatalf("unexpected partial record %v", last)
	}
}

func TestLocationUnreachableServiceScenario(t *testing.T) {
	env := setupTest(t, unreachableURL())
	rr, payload := env.do(t, http.MethodPost, "/api/location", `{"latitude":0,"longitude":0}`)
	if rr.Code != http.StatusOK || payload["success"] != true {
		t.Fatalf("expected 200 success, got %d %v", rr.Code, payload)
	}
	loc := payload["location"].(map[string]any)
	if loc["latitude"] != float64(0) || loc["longitude"] != float64(0) {
		t.Fatalf("unexpected coordinates %v", loc)
	}
	if loc["display_name"] != "Location (0, 0)" || loc["accuracy"] != "High" {
		t.Fatalf("unexpected degraded location %v", loc)
	}
	if msg, _ := loc["error"].(string); msg == "" {
		t.Fatalf("expected error message, got %v", loc)
	}
	if _, ok := loc["offline"]; ok {
		t.Fatalf("degraded location must not carry the offline flag")
	}
}

func TestLocationResolvedThenCached(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`{"osm_type":"node","osm_id":9,"display_name":"Somewhere","address":{"city":"X"}}`))
	}))
	defer srv.Close()

	env := setupTest(t, srv.URL)
	_, first := env.do(t, http.MethodPost, "/api/location", `{"latitude":40.0,"longitude":-75.0}`)
	_, second := env.do(t, http.MethodPost, "/api/location", `{"latitude":40.0003,"longitude":-75.0}`)
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("expected one upstream call, got %d", n)
	}
	a := first["location"].(map[string]any)
	b := second["location"].(map[string]any)
	if a["display_name"] != "Somewhere" || a["accuracy"] != "High (GPS)" || a["osm_id"] != float64(9) {
		t.Fatalf("unexpected resolved location %v", a)
	}
	if b["timestamp"] != a["timestamp"] || b["latitude"] != a["latitude"] {
		t.Fatalf("expected cached entry, got %v", b)
	}
}

func TestLocationMissingCoordinates(t *testing.T) {
	env := setupTest(t, unreachableURL())
	rr, payload := env.do(t, http.MethodPost, "/api/location", `{"latitude":1}`)
	if rr.Code != http.StatusBadRequest || payload["success"] != false {
		t.Fatalf("expected 400, got %d %v", rr.Code, payload)
	}
}

func TestRecordingStartStop(t *testing.T) {
	env := setupTest(t, unreachableURL())
	rr, payload := env.do(t, http.MethodPost, "/api/recording/start", "")
	if rr.Code != http.StatusOK || payload["success"] != true {
		t.Fatalf("unexpected start response %d %v", rr.Code, payload)
	}
	id, _ := payload["recording_id"].(string)
	if !strings.HasPrefix(id, "rec_") {
		t.Fatalf("unexpected recording id %q", id)
	}

	rr, payload = env.do(t, http.MethodPost, "/api/recording/stop/"+id, "")
	if rr.Code != http.StatusOK || payload["message"] != "Recording saved" {
		t.Fatalf("unexpected stop response %d %v", rr.Code, payload)
	}
	data, err := os.ReadFile(filepath.Join(env.cfg.RecordingsDir, id+".json"))
	if err != nil {
		t.Fatalf("expected persisted recording: %v", err)
	}
	var saved map[string]any
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatal(err)
	}
	session, _ := env.recs.Get(id)
	if saved["duration"] != float64(0) || saved["started_at"] != session.StartedAt || saved["stopped_at"] != *session.StoppedAt {
		t.Fatalf("persisted session mismatch %s", data)
	}

	rr, _ = env.do(t, http.MethodPost, "/api/recording/stop/"+id, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("second stop should succeed, got %d", rr.Code)
	}
}

func TestRecordingStopUnknown(t *testing.T) {
	env := setupTest(t, unreachableURL())
	rr, payload := env.do(t, http.MethodPost, "/api/recording/stop/rec_123.4", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if payload["success"] != false || payload["error"] != "Recording not found" {
		t.Fatalf("unexpected payload %v", payload)
	}
	entries, _ := os.ReadDir(env.cfg.RecordingsDir)
	if len(entries) != 0 {
		t.Fatalf("unknown stop must not create files")
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := setupTest(t, unreachableURL())
	rr, payload := env.do(t, http.MethodGet, "/api/health", "")
	if rr.Code != http.StatusOK || payload["status"] != "healthy" {
		t.Fatalf("unexpected health %d %v", rr.Code, payload)
	}
	if ts, _ := payload["timestamp"].(string); len(ts) != len(config.TimestampLayout) {
		t.Fatalf("unexpected timestamp %v", payload["timestamp"])
	}
}

func TestOpsEndpoints(t *testing.T) {
	env := setupTest(t, unreachableURL())
	rr, _ := env.do(t, http.MethodGet, "/ops/health", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	rr, payload := env.do(t, http.MethodGet, "/ops/status", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	if _, ok := payload["metrics"].(map[string]any); !ok {
		t.Fatalf("expected metrics in status, got %v", payload)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := setupTest(t, unreachableURL())
	rr, _ := env.do(t, http.MethodGet, "/api/emergency-call", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestMiddlewareHeaders(t *testing.T) {
	env := setupTest(t, unreachableURL())
	rr, _ := env.do(t, http.MethodOptions, "/api/emergency-call", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected preflight 204, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	out := httptest.NewRecorder()
	env.handler.ServeHTTP(out, req)
	if out.Header().Get("X-Request-ID") != "abc-123" {
		t.Fatalf("expected request id echoed, got %q", out.Header().Get("X-Request-ID"))
	}
}

func TestStaticIndexServed(t *testing.T) {
	env := setupTest(t, unreachableURL())
	if err := os.MkdirAll(env.cfg.StaticDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(env.cfg.StaticDir, "index.html"), []byte("<h1>SOS</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}
	// static dir is checked at registration time
	mux := http.NewServeMux()
	NewRouter(env.cfg, env.calls, env.recs, stubResolver{}, nil).Register(mux)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "SOS") {
		t.Fatalf("expected index page, got %d %q", rr.Code, rr.Body.String())
	}
}

type stubResolver struct{}

func (stubResolver) Resolve(ctx context.Context, lat, lon float64) geocode.LocationResult {
	return geocode.LocationResult{Latitude: lat, Longitude: lon, DisplayName: "stub"}
}
