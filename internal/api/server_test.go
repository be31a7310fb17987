package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/avclink-core/internal/alert"
	"github.com/nerrad567/avclink-core/internal/connection"
	"github.com/nerrad567/avclink-core/internal/device"
	"github.com/nerrad567/avclink-core/internal/history"
	"github.com/nerrad567/avclink-core/internal/infrastructure/config"
	"github.com/nerrad567/avclink-core/internal/infrastructure/database"
	"github.com/nerrad567/avclink-core/internal/infrastructure/logging"
	"github.com/nerrad567/avclink-core/internal/session"
	_ "github.com/nerrad567/avclink-core/migrations"
)

type testEnv struct {
	srv      *Server
	http     *httptest.Server
	registry *device.Registry
	sim      *connection.Simulator
	alerts   *alert.Service
}

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		Host:     "127.0.0.1",
		Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
	}
}

// newTestEnv wires the full stack over in-memory SQLite with millisecond
// simulator timings and serves it from an httptest server.
func newTestEnv(t *testing.T, apiCfg config.APIConfig, failureRate float64) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	db, err := database.Open(database.Config{Path: database.MemoryPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	wsCfg := config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	sim := connection.New(registry, connection.Options{
		Seed:            3,
		ScanStep:        5 * time.Millisecond,
		ScanJitter:      time.Millisecond,
		ScanTimeout:     500 * time.Millisecond,
		HandshakeDelay:  20 * time.Millisecond,
		MonitorInterval: 10 * time.Millisecond,
		FailureRate:     failureRate,
	})
	t.Cleanup(sim.Close)

	alerts := alert.NewService(alert.NewSQLiteRepository(db.DB))
	hist := history.NewService(history.NewSQLiteRepository(db.DB))
	hub := NewHub(wsCfg, log)
	go hub.Run(ctx)

	mgr, err := session.New(session.Deps{
		Registry:  registry,
		Simulator: sim,
		Alerts:    alerts,
		History:   hist,
		Settings:  device.NewSQLiteSettingsStore(db.DB),
		Hub:       hub,
	})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}

	srv, err := New(Deps{
		Config:    apiCfg,
		WS:        wsCfg,
		Logger:    log,
		Registry:  registry,
		Simulator: sim,
		Session:   mgr,
		Alerts:    alerts,
		History:   hist,
		Hub:       hub,
		DB:        db.DB,
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ts := httptest.NewServer(srv.Handler(ctx))
	t.Cleanup(ts.Close)

	return &testEnv{srv: srv, http: ts, registry: registry, sim: sim, alerts: alerts}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.http.URL+path, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body) //nolint:errcheck // diagnostic only
		t.Fatalf("%s %s status = %d, want %d (body %s)",
			resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want, body)
	}
}

// =============================================================================
// Middleware and health
// =============================================================================

func TestHealth(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)

	resp := env.do(t, http.MethodGet, "/api/v1/health", "")
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := decode[map[string]any](t, resp)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)

	resp := env.do(t, http.MethodGet, "/api/v1/health", "")
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not generated")
	}

	req, _ := http.NewRequest(http.MethodGet, env.http.URL+"/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "dash-42")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if got := resp2.Header.Get("X-Request-ID"); got != "dash-42" {
		t.Errorf("X-Request-ID = %q, want dash-42", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	cfg := testAPIConfig()
	cfg.CORS.AllowedOrigins = []string{"http://dash.local"}
	env := newTestEnv(t, cfg, 0)

	req, _ := http.NewRequest(http.MethodOptions, env.http.URL+"/api/v1/devices", nil)
	req.Header.Set("Origin", "http://dash.local")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://dash.local" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Methods"); !strings.Contains(got, "PUT") {
		t.Errorf("Allow-Methods = %q, want PUT for config saves", got)
	}
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)

	resp := env.do(t, http.MethodGet, "/api/v1/nope", "")
	expectStatus(t, resp, http.StatusNotFound)
	if e := decode[Error](t, resp); e.Code != ErrCodeNotFound {
		t.Errorf("code = %q", e.Code)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testAPIConfig()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 2}
	env := newTestEnv(t, cfg, 0)

	for i := range 2 {
		resp := env.do(t, http.MethodGet, "/api/v1/health", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d status = %d", i, resp.StatusCode)
		}
	}
	resp := env.do(t, http.MethodGet, "/api/v1/health", "")
	expectStatus(t, resp, http.StatusTooManyRequests)
	if e := decode[Error](t, resp); e.Code != ErrCodeRateLimited {
		t.Errorf("code = %q", e.Code)
	}
}

func TestBodySizeLimit(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)

	huge := `{"name":"` + strings.Repeat("x", maxRequestBodySize) + `"}`
	resp := env.do(t, http.MethodPost, "/api/v1/devices", huge)
	expectStatus(t, resp, http.StatusBadRequest)
}

// =============================================================================
// Devices
// =============================================================================

func TestDevices_CreateListGetDelete(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)

	resp := env.do(t, http.MethodPost, "/api/v1/devices",
		`{"name":"Lab Mask","category":"avc-mask","identifier":"aa:bb:cc:00:11:22"}`)
	expectStatus(t, resp, http.StatusCreated)
	created := decode[device.Device](t, resp)
	if !strings.HasPrefix(created.ID, "dev-") {
		t.Errorf("ID = %q", created.ID)
	}
	if created.MACAddress != "AA:BB:CC:00:11:22" || created.Status != device.StatusConnected {
		t.Errorf("created = %+v", created)
	}

	list := decode[struct {
		Devices []device.Device `json:"devices"`
		Count   int             `json:"count"`
	}](t, env.do(t, http.MethodGet, "/api/v1/devices?q=lab", ""))
	if list.Count != 1 || list.Devices[0].ID != created.ID {
		t.Errorf("filtered list = %+v", list)
	}

	resp = env.do(t, http.MethodGet, "/api/v1/devices/"+created.ID, "")
	expectStatus(t, resp, http.StatusOK)

	resp = env.do(t, http.MethodDelete, "/api/v1/devices/"+created.ID, "")
	expectStatus(t, resp, http.StatusNoContent)

	resp = env.do(t, http.MethodGet, "/api/v1/devices/"+created.ID, "")
	expectStatus(t, resp, http.StatusNotFound)
}

func TestDevices_CreateValidation(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"bad json", `{`, ErrCodeBadRequest},
		{"empty name", `{"name":"","category":"wifi","identifier":"10.0.0.1"}`, ErrCodeValidation},
		{"bad category", `{"name":"X","category":"toaster","identifier":"10.0.0.1"}`, ErrCodeValidation},
		{"bad identifier", `{"name":"X","category":"wifi","identifier":"not-an-address"}`, ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/v1/devices", tt.body)
			expectStatus(t, resp, http.StatusBadRequest)
			if e := decode[Error](t, resp); e.Code != tt.code {
				t.Errorf("code = %q, want %q", e.Code, tt.code)
			}
		})
	}
}

func TestDevices_CategoryFilterAndStats(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)
	if _, err := env.registry.SeedDemoDevices(context.Background()); err != nil {
		t.Fatal(err)
	}

	list := decode[struct {
		Count int `json:"count"`
	}](t, env.do(t, http.MethodGet, "/api/v1/devices?category=speaker", ""))
	if list.Count != 1 {
		t.Errorf("speaker count = %d, want 1", list.Count)
	}

	resp := env.do(t, http.MethodGet, "/api/v1/devices?category=toaster", "")
	expectStatus(t, resp, http.StatusBadRequest)

	stats := decode[device.Stats](t, env.do(t, http.MethodGet, "/api/v1/devices/stats", ""))
	if stats.Total != 3 || stats.Disconnected != 3 || stats.AverageAccuracy != 96 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestCandidates(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)

	list := decode[struct {
		Devices []device.Device `json:"devices"`
	}](t, env.do(t, http.MethodGet, "/api/v1/candidates", ""))
	if len(list.Devices) != 4 || list.Devices[0].ID != "avc-beryl-01" {
		t.Errorf("candidates = %+v", list.Devices)
	}
}

// =============================================================================
// Connection
// =============================================================================

func TestDeviceConfig_SaveAndReset(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)
	dev := decode[device.Device](t, env.do(t, http.MethodPost, "/api/v1/devices",
		`{"name":"Desk Mask","category":"avc-mask","identifier":"AA:BB:CC:DD:EE:10"}`))
	path := "/api/v1/devices/" + dev.ID + "/config"

	got := decode[device.Settings](t, env.do(t, http.MethodGet, path, ""))
	if got != device.DefaultSettings(dev.ID) {
		t.Errorf("initial config = %+v, want defaults", got)
	}

	resp := env.do(t, http.MethodPut, path,
		`{"signal_tuning":60,"harmonic_gain":55,"neural_smoothing":false,"adaptive_noise":true,"vocal_clarity":90}`)
	expectStatus(t, resp, http.StatusOK)
	saved := decode[device.Settings](t, resp)
	if saved.DeviceID != dev.ID || saved.HarmonicGain != 55 || saved.NeuralSmoothing || saved.UpdatedAt == nil {
		t.Errorf("saved = %+v", saved)
	}
	if got := decode[device.Settings](t, env.do(t, http.MethodGet, path, "")); got.SignalTuning != 60 {
		t.Errorf("after save = %+v", got)
	}

	events := decode[history.ListResult](t, env.do(t, http.MethodGet,
		"/api/v1/events?device_id="+dev.ID+"&type=config_change", ""))
	if len(events.Events) == 0 || !strings.HasPrefix(events.Events[0].Details, "Tuned Desk Mask") {
		t.Errorf("config events = %+v", events.Events)
	}

	reset := decode[device.Settings](t, env.do(t, http.MethodDelete, path, ""))
	if reset != device.DefaultSettings(dev.ID) {
		t.Errorf("reset = %+v", reset)
	}
}

func TestDeviceConfig_Errors(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)

	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/devices/ghost/config", ""), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodDelete, "/api/v1/devices/ghost/config", ""), http.StatusNotFound)

	dev := decode[device.Device](t, env.do(t, http.MethodPost, "/api/v1/devices",
		`{"name":"Desk Mask","category":"avc-mask","identifier":"AA:BB:CC:DD:EE:10"}`))
	path := "/api/v1/devices/" + dev.ID + "/config"

	expectStatus(t, env.do(t, http.MethodPut, path, `{"signal_tuning":`), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodPut, path,
		`{"signal_tuning":75,"harmonic_gain":61,"vocal_clarity":85}`), http.StatusBadRequest)
}

func TestWebSocket_ConfigSavedNotification(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)
	dev := decode[device.Device](t, env.do(t, http.MethodPost, "/api/v1/devices",
		`{"name":"Desk Mask","category":"avc-mask","identifier":"AA:BB:CC:DD:EE:10"}`))

	ws := dialWS(t, env)
	subscribe(t, ws, session.ChannelNotification)
	expectStatus(t, env.do(t, http.MethodDelete, "/api/v1/devices/"+dev.ID+"/config", ""), http.StatusOK)

	msg := readWS(t, ws)
	payload, _ := msg.Payload.(map[string]any)
	if payload["title"] != "Settings Reset" {
		t.Errorf("notification = %v", payload)
	}
}

func TestConnect_WaitForOutcome(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)

	resp := env.do(t, http.MethodPost, "/api/v1/devices/avc-pro-02/connect?wait=true", "")
	expectStatus(t, resp, http.StatusOK)
	if got := decode[connectResponse](t, resp); got.Outcome != OutcomeConnected {
		t.Fatalf("outcome = %+v", got)
	}

	snap := decode[connection.Snapshot](t, env.do(t, http.MethodGet, "/api/v1/connection", ""))
	if !snap.Connected || snap.ConnectedDevice.ID != "avc-pro-02" {
		t.Errorf("snapshot = %+v", snap)
	}

	// The connected candidate joined the known list.
	resp = env.do(t, http.MethodGet, "/api/v1/devices/avc-pro-02", "")
	expectStatus(t, resp, http.StatusOK)

	snap = decode[connection.Snapshot](t, env.do(t, http.MethodPost, "/api/v1/connection/disconnect", ""))
	if snap.Connected || snap.SignalStrength != 0 {
		t.Errorf("after disconnect = %+v", snap)
	}

	events := decode[history.ListResult](t, env.do(t, http.MethodGet, "/api/v1/events?device_id=avc-pro-02", ""))
	if events.Total != 2 {
		t.Errorf("events total = %d, want 2", events.Total)
	}
}

func TestAwaitOutcome_ResolvedBeatsExpiredDeadline(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)
	target := env.registry.ListCandidates()[0]

	attempt, err := env.sim.Connect(target)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	if err := attempt.Wait(waitCtx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	expired, cancel := context.WithCancel(context.Background())
	cancel()
	for range 50 {
		got, resolved := awaitOutcome(expired, target.ID, attempt)
		if !resolved || got.Outcome != OutcomeConnected {
			t.Fatalf("awaitOutcome() = %+v, %v; want connected", got, resolved)
		}
	}
}

func TestAwaitOutcome_PendingTimesOut(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)
	slow := connection.New(env.registry, connection.Options{Seed: 1, HandshakeDelay: time.Hour})
	t.Cleanup(slow.Close)

	attempt, err := slow.Connect(env.registry.ListCandidates()[1])
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	got, resolved := awaitOutcome(ctx, "avc-pro-02", attempt)
	if resolved || got.Outcome != OutcomePending {
		t.Errorf("awaitOutcome() = %+v, %v; want pending", got, resolved)
	}
}

func TestConnect_Async(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)

	resp := env.do(t, http.MethodPost, "/api/v1/devices/avc-beryl-01/connect", "")
	expectStatus(t, resp, http.StatusAccepted)
	if got := decode[connectResponse](t, resp); got.Outcome != OutcomePending {
		t.Errorf("outcome = %q", got.Outcome)
	}
	if !env.sim.Snapshot().Connecting {
		t.Error("simulator not connecting")
	}
}

func TestConnect_Failure(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 1)

	resp := env.do(t, http.MethodPost, "/api/v1/devices/avc-audio-03/connect?wait=1", "")
	expectStatus(t, resp, http.StatusOK)
	got := decode[connectResponse](t, resp)
	if got.Outcome != OutcomeFailed || got.Error == "" {
		t.Errorf("outcome = %+v", got)
	}
}

func TestConnect_UnknownDevice(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)

	resp := env.do(t, http.MethodPost, "/api/v1/devices/ghost/connect", "")
	expectStatus(t, resp, http.StatusNotFound)
}

func TestScan_StartStop(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)

	resp := env.do(t, http.MethodPost, "/api/v1/connection/scan", "")
	expectStatus(t, resp, http.StatusAccepted)
	if snap := decode[connection.Snapshot](t, resp); !snap.Scanning {
		t.Error("scan not started")
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(env.sim.Snapshot().ScannedDevices) < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	snap := decode[connection.Snapshot](t, env.do(t, http.MethodDelete, "/api/v1/connection/scan", ""))
	if snap.Scanning {
		t.Error("scan still running")
	}
	if len(snap.ScannedDevices) == 0 {
		t.Error("discovered devices dropped on stop")
	}
}

// =============================================================================
// Alerts and events
// =============================================================================

func TestAlerts_Lifecycle(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)

	resp := env.do(t, http.MethodPost, "/api/v1/alerts",
		`{"device_id":"dev-006","type":"warning","title":"Low battery","message":"Battery at 23%"}`)
	expectStatus(t, resp, http.StatusCreated)
	created := decode[alert.Alert](t, resp)
	if created.ID == "" || created.Read {
		t.Fatalf("created = %+v", created)
	}

	resp = env.do(t, http.MethodPost, "/api/v1/alerts", `{"device_id":"dev-006","type":"bogus","title":"x"}`)
	expectStatus(t, resp, http.StatusBadRequest)

	resp = env.do(t, http.MethodPost, "/api/v1/alerts/"+created.ID+"/read", "")
	expectStatus(t, resp, http.StatusNoContent)
	resp = env.do(t, http.MethodPost, "/api/v1/alerts/missing/read", "")
	expectStatus(t, resp, http.StatusNotFound)

	list := decode[struct {
		Count  int `json:"count"`
		Unread int `json:"unread"`
	}](t, env.do(t, http.MethodGet, "/api/v1/alerts?unread=true", ""))
	if list.Count != 0 || list.Unread != 0 {
		t.Errorf("unread list = %+v", list)
	}

	cleared := decode[map[string]int](t, env.do(t, http.MethodDelete, "/api/v1/alerts", ""))
	if cleared["deleted"] != 1 {
		t.Errorf("deleted = %d", cleared["deleted"])
	}
}

func TestEvents_QueryValidation(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)

	for _, q := range []string{"type=reboot", "since=yesterday", "limit=-1", "offset=x"} {
		resp := env.do(t, http.MethodGet, "/api/v1/events?"+q, "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("?%s status = %d, want 400", q, resp.StatusCode)
		}
	}

	result := decode[history.ListResult](t, env.do(t, http.MethodGet, "/api/v1/events?type=connect&limit=10", ""))
	if result.Limit != 10 || len(result.Events) != 0 {
		t.Errorf("result = %+v", result)
	}
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)

	m := decode[SystemMetrics](t, env.do(t, http.MethodGet, "/api/v1/metrics", ""))
	if m.Version != "test" || m.Connection.State != connection.StateIdle {
		t.Errorf("metrics = %+v", m)
	}
	if m.Database == nil || m.MQTT != nil {
		t.Errorf("database=%v mqtt=%v", m.Database, m.MQTT)
	}
}

// =============================================================================
// WebSocket
// =============================================================================

func dialWS(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/api/v1/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readWS(t *testing.T, ws *websocket.Conn) WSMessage {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // test deadline
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read websocket: %v", err)
	}
	return msg
}

func subscribe(t *testing.T, ws *websocket.Conn, channels ...string) WSMessage {
	t.Helper()
	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: channels},
	}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	return readWS(t, ws)
}

func TestWebSocket_NotificationOnManualAdd(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)
	ws := dialWS(t, env)

	if resp := subscribe(t, ws, session.ChannelNotification); resp.Type != WSTypeResponse {
		t.Fatalf("subscribe response = %+v", resp)
	}

	resp := env.do(t, http.MethodPost, "/api/v1/devices",
		`{"name":"Desk Speaker","category":"speaker","identifier":"192.168.1.77"}`)
	expectStatus(t, resp, http.StatusCreated)

	msg := readWS(t, ws)
	if msg.Type != WSTypeEvent || msg.EventType != session.ChannelNotification {
		t.Fatalf("message = %+v", msg)
	}
	payload, _ := msg.Payload.(map[string]any)
	if payload["title"] != "Device Added" || payload["description"] != "Desk Speaker has been added successfully." {
		t.Errorf("payload = %v", payload)
	}
}

func TestWebSocket_AlertCreated(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)
	ws := dialWS(t, env)
	subscribe(t, ws, session.ChannelAlertCreated)

	if _, err := env.alerts.Ingest(context.Background(), alert.Alert{
		DeviceID: "dev-001", Type: alert.TypeError, Title: "Sensor fault",
	}); err != nil {
		t.Fatal(err)
	}

	msg := readWS(t, ws)
	if msg.EventType != session.ChannelAlertCreated {
		t.Errorf("event type = %q", msg.EventType)
	}
}

func TestWebSocket_UnknownChannelRejected(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)
	ws := dialWS(t, env)

	resp := subscribe(t, ws, "device.state_changed")
	if resp.Type != WSTypeError {
		t.Errorf("response type = %q, want error", resp.Type)
	}
}

func TestWebSocket_Ping(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)
	ws := dialWS(t, env)

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatal(err)
	}
	if msg := readWS(t, ws); msg.Type != WSTypePong || msg.ID != "p1" {
		t.Errorf("pong = %+v", msg)
	}
}

func TestHub_ClientCount(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)
	dialWS(t, env)

	deadline := time.Now().Add(time.Second)
	for env.srv.Hub().ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := env.srv.Hub().ClientCount(); got != 1 {
		t.Errorf("ClientCount() = %d, want 1", got)
	}
}

func TestWebSocket_ConnectionStateReplayedOnSubscribe(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)
	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/devices/avc-pro-02/connect?wait=true", ""), http.StatusOK)

	ws := dialWS(t, env)
	if resp := subscribe(t, ws, session.ChannelConnectionState); resp.Type != WSTypeResponse {
		t.Fatalf("subscribe response = %+v", resp)
	}

	msg := readWS(t, ws)
	if msg.Type != WSTypeEvent || msg.EventType != session.ChannelConnectionState || !msg.Replay {
		t.Fatalf("first message = %+v", msg)
	}
	if msg.Seq == 0 {
		t.Error("replay should carry the sequence of the events it reflects")
	}
	payload, _ := msg.Payload.(map[string]any)
	snap, _ := payload["snapshot"].(map[string]any)
	dev, _ := payload["device"].(map[string]any)
	if payload["type"] != string(connection.EventSnapshot) || snap["is_connected"] != true || dev["id"] != "avc-pro-02" {
		t.Errorf("payload = %v", payload)
	}
}

func TestWebSocket_ResubscribeDoesNotReplay(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)
	ws := dialWS(t, env)

	subscribe(t, ws, session.ChannelConnectionState)
	if msg := readWS(t, ws); !msg.Replay {
		t.Fatalf("expected idle replay, got %+v", msg)
	}

	if resp := subscribe(t, ws, session.ChannelConnectionState); resp.Type != WSTypeResponse {
		t.Fatalf("second subscribe = %+v", resp)
	}
	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "p2"}); err != nil {
		t.Fatal(err)
	}
	if msg := readWS(t, ws); msg.Type != WSTypePong {
		t.Errorf("next message = %+v, want pong", msg)
	}
}

func TestWebSocket_DiscoveriesReplayedInOrder(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)
	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/connection/scan", ""), http.StatusAccepted)

	deadline := time.Now().Add(2 * time.Second)
	for len(env.sim.Snapshot().ScannedDevices) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	snap := decode[connection.Snapshot](t, env.do(t, http.MethodDelete, "/api/v1/connection/scan", ""))
	if len(snap.ScannedDevices) < 2 {
		t.Fatalf("scanned = %d devices", len(snap.ScannedDevices))
	}

	ws := dialWS(t, env)
	subscribe(t, ws, session.ChannelDeviceDiscovered)
	for i, want := range snap.ScannedDevices {
		msg := readWS(t, ws)
		payload, _ := msg.Payload.(map[string]any)
		if !msg.Replay || msg.EventType != session.ChannelDeviceDiscovered || payload["id"] != want.ID {
			t.Errorf("replay %d = %+v, want device %s", i, msg, want.ID)
		}
	}
}

func TestWebSocket_ChannelsListing(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)
	ws := dialWS(t, env)
	subscribe(t, ws, session.ChannelAlertCreated)

	if err := ws.WriteJSON(WSMessage{Type: WSTypeChannels, ID: "c1"}); err != nil {
		t.Fatal(err)
	}
	msg := readWS(t, ws)
	payload, _ := msg.Payload.(map[string]any)
	all, _ := payload["channels"].([]any)
	subscribed, _ := payload["subscribed"].([]any)
	if msg.ID != "c1" || len(all) != 4 {
		t.Errorf("channels = %+v", msg)
	}
	if len(subscribed) != 1 || subscribed[0] != session.ChannelAlertCreated {
		t.Errorf("subscribed = %v", subscribed)
	}
}

func TestWebSocket_EmptySubscribeRejected(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)
	ws := dialWS(t, env)

	if resp := subscribe(t, ws); resp.Type != WSTypeError {
		t.Errorf("response = %+v, want error", resp)
	}
}

func TestWebSocket_SequenceIncreases(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)
	ws := dialWS(t, env)
	subscribe(t, ws, session.ChannelNotification)

	hub := env.srv.Hub()
	hub.Broadcast(session.ChannelNotification, connection.Notification{Title: "one"})
	hub.Broadcast(session.ChannelNotification, connection.Notification{Title: "two"})

	first, second := readWS(t, ws), readWS(t, ws)
	if first.Seq == 0 || second.Seq != first.Seq+1 {
		t.Errorf("seq = %d, %d", first.Seq, second.Seq)
	}
	if first.Replay || second.Replay {
		t.Error("live events marked as replay")
	}
}

func TestMetrics_WebSocketSubscribers(t *testing.T) {
	env := newTestEnv(t, testAPIConfig(), 0)
	ws := dialWS(t, env)
	subscribe(t, ws, session.ChannelNotification)

	m := decode[SystemMetrics](t, env.do(t, http.MethodGet, "/api/v1/metrics", ""))
	if m.WebSocket.ConnectedClients != 1 {
		t.Errorf("clients = %d", m.WebSocket.ConnectedClients)
	}
	if m.WebSocket.Subscribers[session.ChannelNotification] != 1 || m.WebSocket.Subscribers[session.ChannelAlertCreated] != 0 {
		t.Errorf("subscribers = %v", m.WebSocket.Subscribers)
	}
}

func TestHub_UnknownChannelDropped(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	hub := NewHub(config.WebSocketConfig{}, log)

	hub.Broadcast("device.state_changed", map[string]string{"id": "x"})
	if got := hub.Stats().LastSeq; got != 0 {
		t.Errorf("LastSeq after unknown channel = %d, want 0", got)
	}
	hub.Broadcast(session.ChannelNotification, connection.Notification{Title: "ok"})
	if got := hub.Stats().LastSeq; got != 1 {
		t.Errorf("LastSeq = %d, want 1", got)
	}
}

func TestHub_CountsDroppedMessages(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	hub := NewHub(config.WebSocketConfig{}, log)

	client := &WSClient{hub: hub, send: make(chan []byte, 1), subscriptions: make(map[string]struct{})}
	hub.Register(client)
	client.addSubscriptions([]string{session.ChannelNotification})

	hub.Broadcast(session.ChannelNotification, connection.Notification{Title: "fits"})
	hub.Broadcast(session.ChannelNotification, connection.Notification{Title: "overflow"})

	stats := hub.Stats()
	if stats.Delivered != 1 || stats.Dropped != 1 {
		t.Errorf("delivered=%d dropped=%d", stats.Delivered, stats.Dropped)
	}
	if stats.Subscribers[session.ChannelNotification] != 1 {
		t.Errorf("subscribers = %v", stats.Subscribers)
	}

	hub.Unregister(client)
	if client.trySend([]byte("late")) {
		t.Error("send after unregister should fail")
	}
}
