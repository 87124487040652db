package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/tiltroom/game/config"
	"github.com/wricardo/tiltroom/game/sensor"
	"github.com/wricardo/tiltroom/game/service"
)

func TestConstants(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
	if AppName != "Tiltroom Relay" {
		t.Errorf("Unexpected app name %s", AppName)
	}
}

func TestFlagOverrides(t *testing.T) {
	var got map[string]any
	app := newApp()
	app.Action = func(ctx context.Context, cmd *cli.Command) error {
		got = flagOverrides(cmd)
		return nil
	}

	args := []string{"tiltroom", "--port", "4000", "--aggregate-scope", "room", "--cors-origin", "http://a.local", "--cors-origin", "http://b.local", "--debug"}
	if err := app.Run(context.Background(), args); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got["port"] != 4000 {
		t.Errorf("Expected port 4000, got %v", got["port"])
	}
	if got["aggregate_scope"] != "room" {
		t.Errorf("Expected room scope, got %v", got["aggregate_scope"])
	}
	if origins, _ := got["cors_origins"].([]string); len(origins) != 2 {
		t.Errorf("Expected 2 origins, got %v", got["cors_origins"])
	}
	if got["debug"] != true {
		t.Errorf("Expected debug, got %v", got["debug"])
	}
	if _, ok := got["host"]; ok {
		t.Error("Unset flags must not override config")
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		want    bool
	}{
		{name: "Empty list allows all", origin: "http://evil.local", want: true},
		{name: "Wildcard allows all", origins: []string{"*"}, origin: "http://evil.local", want: true},
		{name: "Listed origin", origins: []string{"http://game.local"}, origin: "http://game.local", want: true},
		{name: "Unlisted origin", origins: []string{"http://game.local"}, origin: "http://evil.local", want: false},
		{name: "No origin header", origins: []string{"http://game.local"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := originChecker(tt.origins)(req); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestLocalBaseURL(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{host: "", want: "http://127.0.0.1:3000"},
		{host: "0.0.0.0", want: "http://127.0.0.1:3000"},
		{host: "relay.local", want: "http://relay.local:3000"},
		{host: "::1", want: "http://[::1]:3000"},
	}

	for _, tt := range tests {
		if got := localBaseURL(&config.Config{Host: tt.host, Port: 3000}); got != tt.want {
			t.Errorf("localBaseURL(%q) = %s, want %s", tt.host, got, tt.want)
		}
	}
}

func TestRelayStack(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := config.Load("", map[string]any{"max_players": 2, "aggregate_scope": "room"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	r, err := newRelay(cfg)
	if err != nil {
		t.Fatalf("newRelay failed: %v", err)
	}
	defer r.close()

	if r.store.MaxPlayers() != 2 {
		t.Errorf("Expected 2 seats, got %d", r.store.MaxPlayers())
	}
	if r.sensors.Scope() != sensor.ScopeRoom {
		t.Errorf("Expected room scope, got %s", r.sensors.Scope())
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	r.start(ctx, &wg)
	defer func() {
		cancel()
		wg.Wait()
	}()

	server := httptest.NewUnstartedServer(nil)
	server.Config.Handler = r.handler(cfg, "http://"+server.Listener.Addr().String())
	server.Start()
	defer server.Close()

	conn, _, err := gorillaws.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"event": service.EventCreateRoom}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var created struct {
		Event string `json:"event"`
		Data  string `json:"data"`
	}
	if err := conn.ReadJSON(&created); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if created.Event != service.EventRoomCreated || created.Data == "" {
		t.Fatalf("Unexpected frame %+v", created)
	}

	resp, err := http.Get(server.URL + "/api/rooms/" + created.Data)
	if err != nil {
		t.Fatalf("GET room failed: %v", err)
	}
	defer resp.Body.Close()
	var info service.RoomInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if info.Code != created.Data || info.MaxPlayers != 2 {
		t.Errorf("Unexpected room %+v", info)
	}

	mcpBody := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"relay_stats","arguments":{}}}`
	mresp, err := http.Post(server.URL+"/mcp", "application/json", strings.NewReader(mcpBody))
	if err != nil {
		t.Fatalf("POST /mcp failed: %v", err)
	}
	defer mresp.Body.Close()
	var rpc map[string]any
	json.NewDecoder(mresp.Body).Decode(&rpc)
	raw, _ := json.Marshal(rpc["result"])
	if !strings.Contains(string(raw), "Rooms: 1") {
		t.Errorf("Expected relay_stats to report one room, got %s", raw)
	}
}
