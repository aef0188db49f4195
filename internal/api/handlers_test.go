package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/sketchwave/server/internal/action"
	"github.com/sketchwave/server/internal/db"
	"github.com/sketchwave/server/internal/relay"
	"github.com/sketchwave/server/internal/room"
)

// Stand-in for a websocket connection when tests need live members.
type stubOutbox struct {
	id     string
	frames [][]byte
}

func (s *stubOutbox) ID() string { return s.id }
func (s *stubOutbox) Deliver(data []byte) bool {
	s.frames = append(s.frames, data)
	return true
}
func (s *stubOutbox) Close() {}

func setupTestAPI(t *testing.T) (*API, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "sketchwave-api-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	database, err := db.New(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create database: %v", err)
	}

	store := room.NewStore(time.Minute)
	engine := relay.New(store, database)
	api := New(engine, store, database)

	cleanup := func() {
		database.Close()
		os.RemoveAll(tmpDir)
	}

	return api, cleanup
}

func TestHealthHandler(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	api.HealthHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]any
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response["status"] != "ok" {
		t.Errorf("Expected status 'ok', got '%v'", response["status"])
	}
}

func TestStatsHandler(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	api.store.Create()

	req := httptest.NewRequest("GET", "/api/stats", nil)
	w := httptest.NewRecorder()

	api.StatsHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]any
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response["rooms"] != float64(1) {
		t.Errorf("Expected 1 room, got %v", response["rooms"])
	}
	if _, ok := response["active_connections"]; !ok {
		t.Error("Response should contain 'active_connections'")
	}
}

func TestCreateRoom(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	req := httptest.NewRequest("POST", "/api/rooms", nil)
	w := httptest.NewRecorder()

	api.CreateRoomHandler(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", w.Code)
	}

	var response map[string]string
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	code := response["code"]
	if len(code) != 6 {
		t.Errorf("Expected 6-character room code, got %q", code)
	}
	if !api.store.Exists(code) {
		t.Error("Created room should exist in the store")
	}
}

func TestGetRoom(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	code := api.store.Create().Code()

	req := httptest.NewRequest("GET", "/api/rooms/"+code, nil)
	w := httptest.NewRecorder()

	api.GetRoomHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response RoomResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response.Code != code {
		t.Errorf("Expected room code '%s', got '%s'", code, response.Code)
	}
	if response.ActiveUsers != 0 {
		t.Errorf("Expected 0 active users, got %d", response.ActiveUsers)
	}
}

func TestGetRoomNotFound(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	req := httptest.NewRequest("GET", "/api/rooms/NOROOM", nil)
	w := httptest.NewRecorder()

	api.GetRoomHandler(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestQuickPlayCreatesWhenEmpty(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	req := httptest.NewRequest("GET", "/api/quickplay", nil)
	w := httptest.NewRecorder()

	api.QuickPlayHandler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response map[string]string
	json.NewDecoder(w.Body).Decode(&response)
	if !api.store.Exists(response["code"]) {
		t.Error("Quick play should hand out an existing room")
	}
}

func TestQuickPlayPrefersOccupiedRoom(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	api.store.Create() // empty, should be skipped
	occupied := api.store.Create().Code()
	if _, err := api.engine.Join(&stubOutbox{id: "member"}, occupied); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/quickplay", nil)
	w := httptest.NewRecorder()

	api.QuickPlayHandler(w, req)

	var response map[string]string
	json.NewDecoder(w.Body).Decode(&response)
	if response["code"] != occupied {
		t.Errorf("Expected the occupied room %s, got %s", occupied, response["code"])
	}
}

func TestCreateSnapshot(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	code := api.store.Create().Code()
	if _, err := api.engine.Join(&stubOutbox{id: "painter"}, code); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	stroke := action.Action{Type: action.KindStroke, Stroke: &action.Stroke{
		To: action.Point{X: 10, Y: 10}, Color: "#000000", Width: 3,
	}}
	if err := api.engine.Submit("painter", stroke); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	body, _ := json.Marshal(CreateSnapshotRequest{RoomCode: code, Name: "wip"})
	req := httptest.NewRequest("POST", "/api/snapshots", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	api.CreateSnapshotHandler(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var snapshot db.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&snapshot); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if snapshot.ActionCount != 1 {
		t.Errorf("Expected 1 action in snapshot, got %d", snapshot.ActionCount)
	}
	if snapshot.RoomCode != code {
		t.Errorf("Expected room %s, got %s", code, snapshot.RoomCode)
	}
}

func TestCreateSnapshotUnknownRoom(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	body, _ := json.Marshal(CreateSnapshotRequest{RoomCode: "NOROOM"})
	req := httptest.NewRequest("POST", "/api/snapshots", bytes.NewReader(body))
	w := httptest.NewRecorder()

	api.CreateSnapshotHandler(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestRestoreSnapshot(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	code := api.store.Create().Code()
	member := &stubOutbox{id: "viewer"}
	if _, err := api.engine.Join(member, code); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	history := `[{"type":"stroke","stroke":{"from":{"x":1,"y":1},"to":{"x":2,"y":2},"color":"#000000","width":3}}]`
	saved, err := api.database.SaveSnapshot(code, "restore me", history, 1)
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	req := httptest.NewRequest("POST", "/api/snapshots/"+strconv.Itoa(saved.ID)+"/restore", nil)
	w := httptest.NewRecorder()

	api.RestoreSnapshotHandler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	rm, _ := api.store.Get(code)
	if rm.HistoryLen() != 1 {
		t.Errorf("Expected restored history of 1, got %d", rm.HistoryLen())
	}
	if len(member.frames) < 2 {
		t.Errorf("Member should be pushed the restored history, got %d frames", len(member.frames))
	}
}

func TestDeleteSnapshot(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	saved, err := api.database.SaveSnapshot("AB12CD", "bye", "[]", 0)
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	req := httptest.NewRequest("DELETE", "/api/snapshots/"+strconv.Itoa(saved.ID), nil)
	w := httptest.NewRecorder()

	api.DeleteSnapshotHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	got, _ := api.database.GetSnapshot(saved.ID)
	if got != nil {
		t.Error("Snapshot should have been deleted")
	}
}

func TestInvalidJSON(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	req := httptest.NewRequest("POST", "/api/snapshots", bytes.NewReader([]byte("invalid json")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	api.CreateSnapshotHandler(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestRoomsRouter(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	code := api.store.Create().Code()

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{
			name:           "POST /api/rooms - create",
			method:         "POST",
			path:           "/api/rooms",
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "GET /api/rooms - not allowed",
			method:         "GET",
			path:           "/api/rooms",
			expectedStatus: http.StatusMethodNotAllowed,
		},
		{
			name:           "GET /api/rooms/{code}",
			method:         "GET",
			path:           "/api/rooms/" + code,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "DELETE /api/rooms/{code} - not allowed",
			method:         "DELETE",
			path:           "/api/rooms/" + code,
			expectedStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()

			api.RoomsRouter(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}
