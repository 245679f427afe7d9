package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rmxlab/flashdash/internal/config"
	"github.com/rmxlab/flashdash/internal/control"
	"github.com/rmxlab/flashdash/internal/state"
	"github.com/rmxlab/flashdash/internal/ws"
	"github.com/rmxlab/flashdash/pkg/models"
)

func newTestServer() (*Server, *state.Store) {
	cfg := &config.Config{
		Backend: config.Backend{URL: "ws://localhost:1/ws", MaxRetries: 1},
		Web:     config.Web{Host: "localhost", Port: 8090},
	}
	store := state.New(state.Options{})
	client := ws.New(cfg.Backend.URL, ws.Options{})
	ctrl := control.New(client, store)
	return NewServer(cfg, store, ctrl), store
}

func TestGetState(t *testing.T) {
	srv, store := newTestServer()
	store.UpdateStatus(models.StatusFlashing)
	store.AddLatencyPoint(7.5)

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	rr := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var snap models.AppState
	if err := json.NewDecoder(rr.Body).Decode(&snap); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if snap.Status != models.StatusFlashing {
		t.Errorf("expected flashing, got %s", snap.Status)
	}
	if len(snap.Latency) != 1 || snap.Latency[0].LatencyMs != 7.5 {
		t.Errorf("unexpected latency data: %+v", snap.Latency)
	}
}

func TestCommandUnknown(t *testing.T) {
	srv, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/command",
		strings.NewReader(`{"cmd":"reboot","data":{}}`))
	rr := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown command, got %d", rr.Code)
	}
}

func TestCommandBackendOffline(t *testing.T) {
	srv, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/command",
		strings.NewReader(`{"cmd":"relay_start","data":{}}`))
	rr := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Errorf("expected 502 while backend offline, got %d", rr.Code)
	}
}

func TestThemeToggle(t *testing.T) {
	srv, store := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/theme", nil)
	rr := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !store.Snapshot().DarkTheme {
		t.Error("expected dark theme after toggle")
	}

	var resp map[string]bool
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !resp["dark_theme"] {
		t.Error("response must reflect the new theme")
	}
}

func TestBrowserPushConcurrentWithInitialSnapshot(t *testing.T) {
	srv, store := newTestServer()
	store.AddListener(state.TopicAll, "web-broadcast", func(ev state.Event) {
		srv.broadcast(frame{Type: string(ev.Topic), Payload: ev.State})
	})

	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	// Hammer the store so broadcasts race the initial snapshot write for
	// the connecting client; every frame on the wire must stay intact.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
				store.AddLatencyPoint(float64(i))
			}
		}
	}()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	// First frame proves the client is registered; only then can a marker
	// log be relied on to reach this connection.
	var first frame
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("first frame broke: %v", err)
	}

	store.AddLog("info", "push intact", "test")
	close(stop)
	wg.Wait()

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("push stream broke: %v", err)
		}
		if f.Type != string(state.TopicLogs) {
			continue
		}
		logs := f.Payload.Logs
		if len(logs) == 0 || logs[len(logs)-1].Message != "push intact" {
			t.Errorf("unexpected logs frame: %+v", logs)
		}
		return
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer()

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/state"},
		{http.MethodGet, "/api/command"},
		{http.MethodGet, "/api/theme"},
	}

	for _, tc := range tests {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rr := httptest.NewRecorder()
		srv.Routes().ServeHTTP(rr, req)
		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: expected 405, got %d", tc.method, tc.path, rr.Code)
		}
	}
}
