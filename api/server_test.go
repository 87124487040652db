package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wricardo/tiltroom/game/service"
)

// MockRelayService implements service.RelayService for testing
type MockRelayService struct {
	ListRoomsFunc func(ctx context.Context) ([]*service.RoomInfo, error)
	GetRoomFunc   func(ctx context.Context, roomCode string) (*service.RoomInfo, error)
	StatsFunc     func(ctx context.Context) (*service.Stats, error)
}

func (m *MockRelayService) HandleEvent(ctx context.Context, connID string, msg service.Inbound) error {
	return nil
}

func (m *MockRelayService) CreateRoom(ctx context.Context, connID string) (string, error) {
	return "TEST", nil
}

func (m *MockRelayService) JoinRoom(ctx context.Context, connID string, req service.JoinRequest) (*service.JoinedRoom, error) {
	return &service.JoinedRoom{RoomCode: req.RoomCode}, nil
}

func (m *MockRelayService) StartGame(ctx context.Context, connID, roomCode string) error {
	return nil
}

func (m *MockRelayService) TransmitMap(ctx context.Context, connID string, req service.MapRequest) error {
	return nil
}

func (m *MockRelayService) GyroscopeData(ctx context.Context, connID string, req service.GyroscopeRequest) error {
	return nil
}

func (m *MockRelayService) LeaveRoom(ctx context.Context, connID, roomCode string) error {
	return nil
}

func (m *MockRelayService) Disconnect(ctx context.Context, connID string) error {
	return nil
}

func (m *MockRelayService) ListRooms(ctx context.Context) ([]*service.RoomInfo, error) {
	if m.ListRoomsFunc != nil {
		return m.ListRoomsFunc(ctx)
	}
	return []*service.RoomInfo{}, nil
}

func (m *MockRelayService) GetRoom(ctx context.Context, roomCode string) (*service.RoomInfo, error) {
	if m.GetRoomFunc != nil {
		return m.GetRoomFunc(ctx, roomCode)
	}
	return &service.RoomInfo{Code: roomCode, MaxPlayers: 4}, nil
}

func (m *MockRelayService) Stats(ctx context.Context) (*service.Stats, error) {
	if m.StatsFunc != nil {
		return m.StatsFunc(ctx)
	}
	return &service.Stats{}, nil
}

// MockGateway implements Gateway for testing
type MockGateway struct {
	connections int
	served      int
}

func (g *MockGateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	g.served++
	w.WriteHeader(http.StatusSwitchingProtocols)
}

func (g *MockGateway) ConnectionCount() int {
	return g.connections
}

// Test helpers
func setupTestServer(mock *MockRelayService, opts Options) (*Server, *MockGateway) {
	gw := &MockGateway{connections: 3}
	return NewServer(mock, gw, opts), gw
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder, target interface{}) {
	if err := json.Unmarshal(w.Body.Bytes(), target); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
}

func TestListRooms(t *testing.T) {
	tests := []struct {
		name           string
		setupMock      func(*MockRelayService)
		expectedStatus int
		expectedCount  int
	}{
		{
			name:           "No rooms",
			setupMock:      func(m *MockRelayService) {},
			expectedStatus: http.StatusOK,
			expectedCount:  0,
		},
		{
			name: "Two rooms",
			setupMock: func(m *MockRelayService) {
				m.ListRoomsFunc = func(ctx context.Context) ([]*service.RoomInfo, error) {
					return []*service.RoomInfo{
						{Code: "AAAA", Host: "h1", MaxPlayers: 4, CreatedAt: time.Now()},
						{Code: "BBBB", Host: "h2", PlayerCount: 4, MaxPlayers: 4, Full: true},
					}, nil
				}
			},
			expectedStatus: http.StatusOK,
			expectedCount:  2,
		},
		{
			name: "Service error",
			setupMock: func(m *MockRelayService) {
				m.ListRoomsFunc = func(ctx context.Context) ([]*service.RoomInfo, error) {
					return nil, errors.New("boom")
				}
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockRelayService{}
			tt.setupMock(mock)
			server, _ := setupTestServer(mock, Options{})

			w := httptest.NewRecorder()
			server.ServeHTTP(w, httptest.NewRequest("GET", "/api/rooms", nil))

			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.expectedStatus != http.StatusOK {
				return
			}

			var resp struct {
				Count int                 `json:"count"`
				Rooms []*service.RoomInfo `json:"rooms"`
			}
			parseResponse(t, w, &resp)
			if resp.Count != tt.expectedCount || len(resp.Rooms) != tt.expectedCount {
				t.Errorf("Expected %d rooms, got count=%d len=%d", tt.expectedCount, resp.Count, len(resp.Rooms))
			}
		})
	}
}

func TestGetRoom(t *testing.T) {
	mock := &MockRelayService{
		GetRoomFunc: func(ctx context.Context, roomCode string) (*service.RoomInfo, error) {
			if roomCode != "AB12" {
				return nil, fmt.Errorf("get room %s: %w", roomCode, service.ErrRoomNotFound)
			}
			return &service.RoomInfo{
				Code:        "AB12",
				Host:        "host",
				Players:     []service.Player{{ConnectionID: "p0", Name: "alice", Seat: 0}},
				PlayerCount: 1,
				MaxPlayers:  4,
			}, nil
		},
	}
	server, _ := setupTestServer(mock, Options{})

	t.Run("Known room", func(t *testing.T) {
		w := httptest.NewRecorder()
		server.ServeHTTP(w, httptest.NewRequest("GET", "/api/rooms/AB12", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		var info service.RoomInfo
		parseResponse(t, w, &info)
		if info.Code != "AB12" || len(info.Players) != 1 || info.Players[0].Name != "alice" {
			t.Errorf("Unexpected room %+v", info)
		}
		if !strings.Contains(w.Body.String(), `"pid":0`) {
			t.Errorf("Players should use wire field names, got %s", w.Body.String())
		}
	})

	t.Run("Unknown room", func(t *testing.T) {
		w := httptest.NewRecorder()
		server.ServeHTTP(w, httptest.NewRequest("GET", "/api/rooms/ZZZZ", nil))

		if w.Code != http.StatusNotFound {
			t.Fatalf("Expected status 404, got %d", w.Code)
		}
		var resp map[string]string
		parseResponse(t, w, &resp)
		if resp["error"] != "Room not found" {
			t.Errorf("Expected 'Room not found', got %q", resp["error"])
		}
	})
}

func TestStats(t *testing.T) {
	mock := &MockRelayService{
		StatsFunc: func(ctx context.Context) (*service.Stats, error) {
			return &service.Stats{
				Rooms:             2,
				Players:           5,
				Samples:           7,
				PreviousAggregate: service.Sample{Gamma: 1.5, Beta: -3},
			}, nil
		},
	}
	server, _ := setupTestServer(mock, Options{})

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest("GET", "/api/stats", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp struct {
		Rooms       int            `json:"rooms"`
		Players     int            `json:"players"`
		Samples     int            `json:"samples"`
		Previous    service.Sample `json:"previous_aggregate"`
		Connections int            `json:"connections"`
	}
	parseResponse(t, w, &resp)
	if resp.Rooms != 2 || resp.Players != 5 || resp.Samples != 7 {
		t.Errorf("Unexpected stats %+v", resp)
	}
	if resp.Previous.Gamma != 1.5 || resp.Previous.Beta != -3 {
		t.Errorf("Unexpected previous aggregate %+v", resp.Previous)
	}
	if resp.Connections != 3 {
		t.Errorf("Expected 3 connections from the gateway, got %d", resp.Connections)
	}
}

func TestHealth(t *testing.T) {
	server, _ := setupTestServer(&MockRelayService{}, Options{})

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp map[string]string
	parseResponse(t, w, &resp)
	if resp["status"] != "healthy" {
		t.Errorf("Expected healthy, got %v", resp)
	}
}

func TestWebSocketRoute(t *testing.T) {
	server, gw := setupTestServer(&MockRelayService{}, Options{})

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest("GET", "/ws", nil))

	if gw.served != 1 {
		t.Errorf("Expected /ws to reach the gateway once, got %d", gw.served)
	}
}

func TestMCPRoute(t *testing.T) {
	called := false
	mcp := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusAccepted)
	})

	t.Run("Mounted", func(t *testing.T) {
		server, _ := setupTestServer(&MockRelayService{}, Options{MCP: mcp})
		w := httptest.NewRecorder()
		server.ServeHTTP(w, httptest.NewRequest("POST", "/mcp", strings.NewReader(`{}`)))

		if !called || w.Code != http.StatusAccepted {
			t.Errorf("Expected MCP handler to run, called=%v status=%d", called, w.Code)
		}
	})

	t.Run("Not mounted", func(t *testing.T) {
		server, _ := setupTestServer(&MockRelayService{}, Options{})
		w := httptest.NewRecorder()
		server.ServeHTTP(w, httptest.NewRequest("POST", "/mcp", nil))

		if w.Code == http.StatusAccepted {
			t.Error("MCP route should not exist without a handler")
		}
	})
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>tilt</h1>"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	server, _ := setupTestServer(&MockRelayService{}, Options{StaticDir: dir})

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "tilt") {
		t.Errorf("Expected index.html content, got %q", w.Body.String())
	}
}

func TestCORSHeaders(t *testing.T) {
	tests := []struct {
		name       string
		origins    []string
		origin     string
		wantHeader string
	}{
		{name: "Default allows all", origin: "http://example.com", wantHeader: "*"},
		{name: "Allowed origin", origins: []string{"http://game.local"}, origin: "http://game.local", wantHeader: "http://game.local"},
		{name: "Rejected origin", origins: []string{"http://game.local"}, origin: "http://evil.local", wantHeader: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := setupTestServer(&MockRelayService{}, Options{CORSOrigins: tt.origins})

			req := httptest.NewRequest("GET", "/health", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			server.ServeHTTP(w, req)

			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantHeader {
				t.Errorf("Expected Access-Control-Allow-Origin %q, got %q", tt.wantHeader, got)
			}
		})
	}
}
