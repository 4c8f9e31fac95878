package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"deduction/config"
	"deduction/contradiction"
	"deduction/db"
	"deduction/engine"
	"deduction/handlers"
	"deduction/knowledge"
	"deduction/middleware"
	"deduction/phase"
	"deduction/reasoning"
	"deduction/scheduler"
	"deduction/summary"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load(os.Getenv("DEDUCTION_CONFIG"))
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	if cfg.Gemini.APIKey == "" {
		cfg.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	ctx := context.Background()

	store, err := db.Connect(ctx, cfg.Mongo, nil)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer store.Close(ctx)

	if err := store.EnsureIndexes(ctx); err != nil {
		log.Fatal("Failed to create indexes:", err)
	}

	reasoner, err := reasoning.NewClient(ctx, cfg.Gemini, nil)
	if err != nil {
		log.Fatal("Failed to create reasoning client:", err)
	}

	eng := engine.New(cfg, store,
		knowledge.NewStore(store, cfg.Relationship, nil),
		contradiction.NewEngine(reasoner, cfg.Contradiction, nil),
		scheduler.New(reasoner, store, cfg.Scheduler, nil),
		phase.NewMachine(store, cfg.Phases, cfg.Exploration, nil),
		summary.New(store, reasoner, cfg.Summary, nil),
		reasoner, nil)

	go heartbeatLoop(ctx, store, eng, cfg.Server.Heartbeat)

	h := handlers.New(eng, nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/games", h.CreateGame)
	mux.HandleFunc("/think", h.Think)
	mux.HandleFunc("/vote", h.Vote)
	mux.HandleFunc("/advance-phase", h.AdvancePhase)
	mux.HandleFunc("/exploration-action", h.ExplorationAction)

	fmt.Println("Server running on", cfg.Server.Address)
	log.Fatal(http.ListenAndServe(cfg.Server.Address,
		middleware.CORS(cfg.Server.AllowedOrigins, mux)))
}

// heartbeatLoop ticks every active game. Games are independent; one slow
// game must not starve the rest, so each tick fans out.
func heartbeatLoop(ctx context.Context, store *db.Store, eng *engine.Engine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		games, err := store.ActiveGames(ctx)
		if err != nil {
			log.Printf("[HEARTBEAT] listing active games: %v", err)
			continue
		}
		for _, gameID := range games {
			go eng.Heartbeat(ctx, gameID)
		}
	}
}
