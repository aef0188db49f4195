package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sketchwave/server/internal/api"
	"github.com/sketchwave/server/internal/archive"
	"github.com/sketchwave/server/internal/db"
	"github.com/sketchwave/server/internal/relay"
	"github.com/sketchwave/server/internal/room"
	"github.com/sketchwave/server/internal/ws"
)

func main() {
	dbPath := os.Getenv("SKETCHWAVE_DB_PATH")
	if dbPath == "" {
		dbPath = "./data/sketchwave.db"
	}

	clearCooldown := room.DefaultClearCooldown
	if v := os.Getenv("SKETCHWAVE_CLEAR_COOLDOWN"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Fatalf("Invalid SKETCHWAVE_CLEAR_COOLDOWN: %v", err)
		}
		clearCooldown = d
	}

	database, err := db.New(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	store := room.NewStore(clearCooldown)
	engine := relay.New(store, database)

	pruner := archive.New(database, archive.DefaultConfig())
	pruner.Start()

	apiHandler := api.New(engine, store, database)

	// WebSocket endpoint
	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(engine, w, r)
	})

	http.HandleFunc("/health", apiHandler.HealthHandler)
	http.HandleFunc("/api/stats", apiHandler.StatsHandler)
	http.HandleFunc("/api/quickplay", apiHandler.QuickPlayHandler)
	http.HandleFunc("/api/rooms", apiHandler.RoomsRouter)
	http.HandleFunc("/api/rooms/", apiHandler.RoomsRouter)
	http.HandleFunc("/api/snapshots", apiHandler.SnapshotsRouter)
	http.HandleFunc("/api/snapshots/", apiHandler.SnapshotsRouter)

	// Apply CORS middleware
	handler := corsMiddleware(http.DefaultServeMux)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		pruner.Stop()
		database.Close()
		os.Exit(0)
	}()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("🎨 Sketchwave server starting on :%s", port)
	log.Printf("📁 Database: %s", dbPath)
	log.Printf("⏱️ Clear cooldown: %v", clearCooldown)
	log.Println("Endpoints:")
	log.Println("  - WebSocket:  /ws?room={code}")
	log.Println("  - Health:     GET /health")
	log.Println("  - Stats:      GET /api/stats")
	log.Println("  - Quick play: GET /api/quickplay")
	log.Println("  - Rooms:      POST /api/rooms, GET /api/rooms/{code}")
	log.Println("  - Snapshots:  GET/POST /api/snapshots")
	log.Println("  - Snapshot:   GET/DELETE /api/snapshots/{id}")
	log.Println("  - Restore:    POST /api/snapshots/{id}/restore")

	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatal("ListenAndServe: ", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
