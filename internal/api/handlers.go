package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sketchwave/server/internal/action"
	"github.com/sketchwave/server/internal/db"
	"github.com/sketchwave/server/internal/relay"
	"github.com/sketchwave/server/internal/room"
)

type API struct {
	engine   *relay.Engine
	store    *room.Store
	database *db.Database
}

func New(engine *relay.Engine, store *room.Store, database *db.Database) *API {
	return &API{
		engine:   engine,
		store:    store,
		database: database,
	}
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"rooms":              a.store.Count(),
		"active_connections": a.engine.SessionCount(),
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
	}

	if a.database != nil {
		dbStats, err := a.database.GetStats()
		if err == nil {
			stats["archived_actions"] = dbStats["archived_actions"]
			stats["snapshots"] = dbStats["snapshots"]
		}
	}

	jsonResponse(w, http.StatusOK, stats)
}

// Room handlers

type RoomResponse struct {
	Code          string    `json:"code"`
	ActiveUsers   int       `json:"active_users"`
	HistoryLength int       `json:"history_length"`
	CreatedAt     time.Time `json:"created_at"`
}

// CreateRoomHandler mints a fresh room and returns its code. This is the
// landing page's "generate code" button.
func (a *API) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	rm := a.store.Create()
	log.Printf("Room %s created", rm.Code())

	jsonResponse(w, http.StatusCreated, map[string]string{"code": rm.Code()})
}

func (a *API) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// Extract room code from path: /api/rooms/{code}
	path := strings.TrimPrefix(r.URL.Path, "/api/rooms/")
	code := strings.TrimSuffix(path, "/")

	if code == "" {
		errorResponse(w, http.StatusBadRequest, "Room code is required")
		return
	}

	rm, err := a.store.Get(code)
	if err != nil {
		errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	jsonResponse(w, http.StatusOK, RoomResponse{
		Code:          rm.Code(),
		ActiveUsers:   rm.MemberCount(),
		HistoryLength: rm.HistoryLen(),
		CreatedAt:     rm.CreatedAt(),
	})
}

// QuickPlayHandler hands back some room that already has company, or a
// fresh one when nobody is around.
func (a *API) QuickPlayHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	rm, ok := a.store.FindOpen()
	if !ok {
		rm = a.store.Create()
		log.Printf("Room %s created for quick play", rm.Code())
	}

	jsonResponse(w, http.StatusOK, map[string]string{"code": rm.Code()})
}

func (a *API) RoomsRouter(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/rooms")

	// /api/rooms or /api/rooms/
	if path == "" || path == "/" {
		if r.Method == http.MethodPost {
			a.CreateRoomHandler(w, r)
		} else {
			errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	// /api/rooms/{code}
	a.GetRoomHandler(w, r)
}

// Snapshot handlers

type CreateSnapshotRequest struct {
	RoomCode string `json:"room_code"`
	Name     string `json:"name"`
}

func (a *API) ListSnapshotsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	code := room.Normalize(r.URL.Query().Get("room_code"))
	if code == "" {
		errorResponse(w, http.StatusBadRequest, "room_code is required")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	snapshots, err := a.database.ListSnapshots(code, limit, offset)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to list snapshots")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"snapshots": snapshots,
		"limit":     limit,
		"offset":    offset,
	})
}

// CreateSnapshotHandler freezes a room's current canvas under a name.
func (a *API) CreateSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req CreateSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.RoomCode == "" {
		errorResponse(w, http.StatusBadRequest, "room_code is required")
		return
	}

	rm, err := a.store.Get(req.RoomCode)
	if err != nil {
		errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	if req.Name == "" {
		req.Name = fmt.Sprintf("Snapshot %s", time.Now().Format("Jan 2, 3:04 PM"))
	}

	history := action.Compact(rm.Snapshot())
	data, err := json.Marshal(history)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to encode history")
		return
	}

	snapshot, err := a.database.SaveSnapshot(rm.Code(), req.Name, string(data), len(history))
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to save snapshot")
		return
	}

	jsonResponse(w, http.StatusCreated, snapshot)
}

func (a *API) GetSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/snapshots/")
	id, err := strconv.Atoi(strings.TrimSuffix(path, "/"))
	if err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid snapshot ID")
		return
	}

	snapshot, err := a.database.GetSnapshot(id)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to get snapshot")
		return
	}

	if snapshot == nil {
		errorResponse(w, http.StatusNotFound, "Snapshot not found")
		return
	}

	jsonResponse(w, http.StatusOK, snapshot)
}

func (a *API) DeleteSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/snapshots/")
	id, err := strconv.Atoi(strings.TrimSuffix(path, "/"))
	if err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid snapshot ID")
		return
	}

	if err := a.database.DeleteSnapshot(id); err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to delete snapshot")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "Snapshot deleted"})
}

// RestoreSnapshotHandler pushes a saved snapshot back onto a live room.
// Every member receives the restored history as a drawingHistory frame.
func (a *API) RestoreSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// Extract snapshot ID from path: /api/snapshots/{id}/restore
	path := strings.TrimPrefix(r.URL.Path, "/api/snapshots/")
	path = strings.TrimSuffix(path, "/restore")
	id, err := strconv.Atoi(path)
	if err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid snapshot ID")
		return
	}

	snapshot, err := a.database.GetSnapshot(id)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to get snapshot")
		return
	}

	if snapshot == nil {
		errorResponse(w, http.StatusNotFound, "Snapshot not found")
		return
	}

	var history []action.Action
	if err := json.Unmarshal([]byte(snapshot.History), &history); err != nil {
		errorResponse(w, http.StatusInternalServerError, "Corrupt snapshot history")
		return
	}

	if err := a.engine.RestoreHistory(snapshot.RoomCode, history); err != nil {
		errorResponse(w, http.StatusNotFound, "Room no longer exists")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"message":      "Snapshot restored",
		"snapshot_id":  snapshot.ID,
		"room_code":    snapshot.RoomCode,
		"action_count": snapshot.ActionCount,
	})
}

func (a *API) SnapshotsRouter(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/snapshots")

	// /api/snapshots or /api/snapshots/
	if path == "" || path == "/" {
		switch r.Method {
		case http.MethodGet:
			a.ListSnapshotsHandler(w, r)
		case http.MethodPost:
			a.CreateSnapshotHandler(w, r)
		default:
			errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	// /api/snapshots/{id}/restore
	if strings.HasSuffix(path, "/restore") {
		a.RestoreSnapshotHandler(w, r)
		return
	}

	// /api/snapshots/{id}
	switch r.Method {
	case http.MethodGet:
		a.GetSnapshotHandler(w, r)
	case http.MethodDelete:
		a.DeleteSnapshotHandler(w, r)
	default:
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
