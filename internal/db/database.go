package db

import (
	"database/sql"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Database is a write-behind archive. Live rooms are authoritative and
// in-memory only; nothing here is replayed at startup, so a restart always
// begins with empty rooms. The archive exists for the snapshot endpoints
// and the stats surface.
type Database struct {
	db *sql.DB
}

// Snapshot is a named, frozen copy of a room's action history.
type Snapshot struct {
	ID          int       `json:"id"`
	RoomCode    string    `json:"room_code"`
	Name        string    `json:"name"`
	History     string    `json:"history,omitempty"` // JSON array of actions
	ActionCount int       `json:"action_count"`
	CreatedAt   time.Time `json:"created_at"`
}

func New(dbPath string) (*Database, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// WAL keeps readers off the writers' backs
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	log.Printf("Database initialized at %s", dbPath)
	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS actions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_code TEXT NOT NULL,
		kind TEXT NOT NULL,
		data BLOB NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_actions_room_code ON actions(room_code);

	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_code TEXT NOT NULL,
		name TEXT NOT NULL,
		history TEXT NOT NULL,
		action_count INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_room_code ON snapshots(room_code, created_at DESC);
	`

	_, err := db.Exec(schema)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Action archive

func (d *Database) SaveAction(roomCode, kind string, data []byte) error {
	_, err := d.db.Exec(
		"INSERT INTO actions (room_code, kind, data) VALUES (?, ?, ?)",
		roomCode, kind, data,
	)
	return err
}

// ClearActions drops the archived actions for a room. Called when the room
// itself is cleared: history before a clear is void in the archive too.
func (d *Database) ClearActions(roomCode string) error {
	_, err := d.db.Exec("DELETE FROM actions WHERE room_code = ?", roomCode)
	return err
}

func (d *Database) CountActions(roomCode string) (int, error) {
	var count int
	err := d.db.QueryRow(
		"SELECT COUNT(*) FROM actions WHERE room_code = ?",
		roomCode,
	).Scan(&count)
	return count, err
}

// ArchivedRooms lists the room codes that have archived actions.
func (d *Database) ArchivedRooms() ([]string, error) {
	rows, err := d.db.Query("SELECT DISTINCT room_code FROM actions")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// TrimActions keeps only the most recent keepCount archived actions for a
// room. The pruner uses this to bound archive growth.
func (d *Database) TrimActions(roomCode string, keepCount int) error {
	_, err := d.db.Exec(`
		DELETE FROM actions
		WHERE room_code = ? AND id NOT IN (
			SELECT id FROM actions
			WHERE room_code = ?
			ORDER BY id DESC
			LIMIT ?
		)
	`, roomCode, roomCode, keepCount)
	return err
}

// Snapshots

func (d *Database) SaveSnapshot(roomCode, name, history string, actionCount int) (*Snapshot, error) {
	result, err := d.db.Exec(
		"INSERT INTO snapshots (room_code, name, history, action_count) VALUES (?, ?, ?, ?)",
		roomCode, name, history, actionCount,
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return d.GetSnapshot(int(id))
}

func (d *Database) GetSnapshot(id int) (*Snapshot, error) {
	row := d.db.QueryRow(
		"SELECT id, room_code, name, history, action_count, created_at FROM snapshots WHERE id = ?",
		id,
	)

	var s Snapshot
	err := row.Scan(&s.ID, &s.RoomCode, &s.Name, &s.History, &s.ActionCount, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSnapshots returns a room's snapshots newest first, history omitted.
func (d *Database) ListSnapshots(roomCode string, limit, offset int) ([]Snapshot, error) {
	rows, err := d.db.Query(`
		SELECT id, room_code, name, action_count, created_at
		FROM snapshots
		WHERE room_code = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, roomCode, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(&s.ID, &s.RoomCode, &s.Name, &s.ActionCount, &s.CreatedAt); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

func (d *Database) DeleteSnapshot(id int) error {
	_, err := d.db.Exec("DELETE FROM snapshots WHERE id = ?", id)
	return err
}

// Stats

func (d *Database) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var actionCount int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM actions").Scan(&actionCount); err != nil {
		return nil, err
	}
	stats["archived_actions"] = actionCount

	var snapshotCount int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM snapshots").Scan(&snapshotCount); err != nil {
		return nil, err
	}
	stats["snapshots"] = snapshotCount

	return stats, nil
}
