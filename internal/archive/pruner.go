package archive

import (
	"log"
	"sync"
	"time"

	"github.com/sketchwave/server/internal/db"
)

type Config struct {
	Interval          time.Duration
	MaxActionsPerRoom int
}

func DefaultConfig() Config {
	return Config{
		Interval:          5 * time.Minute,
		MaxActionsPerRoom: 5000,
	}
}

// Pruner bounds the action archive: rooms never expire, so without it the
// archive grows for the life of the process and beyond. It trims each
// room's archived actions down to the configured cap on a fixed interval.
type Pruner struct {
	database *db.Database
	config   Config
	stop     chan struct{}
	wg       sync.WaitGroup
}

func New(database *db.Database, config Config) *Pruner {
	return &Pruner{
		database: database,
		config:   config,
		stop:     make(chan struct{}),
	}
}

func (p *Pruner) Start() {
	p.wg.Add(1)
	go p.run()
	log.Printf("🗜️ Archive pruner started (interval: %v, cap: %d actions/room)",
		p.config.Interval, p.config.MaxActionsPerRoom)
}

func (p *Pruner) Stop() {
	close(p.stop)
	p.wg.Wait()
	log.Println("🗜️ Archive pruner stopped")
}

func (p *Pruner) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.PruneNow()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.PruneNow()
		}
	}
}

// PruneNow runs one pass over every archived room.
func (p *Pruner) PruneNow() {
	codes, err := p.database.ArchivedRooms()
	if err != nil {
		log.Printf("Pruner: failed to list archived rooms: %v", err)
		return
	}

	pruned := 0
	for _, code := range codes {
		count, err := p.database.CountActions(code)
		if err != nil || count <= p.config.MaxActionsPerRoom {
			continue
		}
		if err := p.database.TrimActions(code, p.config.MaxActionsPerRoom); err != nil {
			log.Printf("Pruner: failed for room %s: %v", code, err)
			continue
		}
		pruned++
	}

	if pruned > 0 {
		log.Printf("🗜️ Pruned archive for %d rooms", pruned)
	}
}
