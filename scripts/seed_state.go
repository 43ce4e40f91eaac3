package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/store"
)

// Seed a SQLite store with a plausible learner snapshot and journal rows,
// so the HTTP API has data to show before the first live cycle completes.
// Usage: go run scripts/seed_state.go [db_path]
// Default db_path: data/cynic.db
func main() {
	dbPath := "data/cynic.db"
	if len(os.Args) > 1 && strings.TrimSpace(os.Args[1]) != "" {
		dbPath = strings.TrimSpace(os.Args[1])
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		panic(err)
	}

	gw, err := store.NewSQLiteGateway(dbPath)
	if err != nil {
		panic(err)
	}
	defer gw.Close()

	ctx := context.Background()
	if err := gw.Save(ctx, seedState()); err != nil {
		panic(err)
	}
	if err := seedJournal(ctx, gw); err != nil {
		panic(err)
	}

	fmt.Printf("✓ learner state seeded into %s\n", dbPath)
}

func seedState() store.State {
	return store.State{
		Version:   store.CurrentVersion,
		UpdatedAt: time.Now().UnixMilli(),
		DimensionAdjustments: map[string]float64{
			"sentiment": -0.05,
			"momentum":  0.05,
		},
		ActionReliability: map[string]store.ReliabilityCounters{
			"BUY":  {Successes: 7, Failures: 4},
			"SELL": {Successes: 2, Failures: 3},
		},
		Metrics: store.Metrics{
			Wins:           9,
			Losses:         7,
			WinRate:        0.5625,
			TotalPnL:       0.0840,
			LessonsLearned: 5,
		},
	}
}

func seedJournal(ctx context.Context, gw *store.SQLiteGateway) error {
	now := time.Now()
	decisions := []store.DecisionRecord{
		{
			ID:         "seed-dec-pepe",
			JudgmentID: "seed-jdg-pepe",
			Token:      "PEPE",
			VenueID:    "raydium",
			Action:     "BUY",
			Confidence: 0.52,
			Size:       0.0412,
			QScore:     66,
			Verdict:    "buy",
			Reason:     "Q=66 conf=0.52 top=[sentiment momentum liquidity]",
			At:         now.Add(-45 * time.Minute).UnixMilli(),
		},
		{
			ID:         "seed-dec-wif",
			JudgmentID: "seed-jdg-wif",
			Token:      "WIF",
			VenueID:    "raydium",
			Action:     "HOLD",
			Confidence: 0,
			Size:       0,
			QScore:     44,
			Verdict:    "neutral",
			Reason:     "判断为 neutral，观望",
			At:         now.Add(-30 * time.Minute).UnixMilli(),
		},
	}
	for _, rec := range decisions {
		if err := gw.AppendDecision(ctx, rec); err != nil {
			return err
		}
	}
	lesson := store.LessonRecord{
		ID:           "seed-lesson-pepe",
		DecisionID:   "seed-dec-pepe",
		Outcome:      "loss",
		PnL:          -0.034,
		Contributors: `[{"dimension":"sentiment","kind":"false_positive","score":0.82}]`,
		At:           now.Add(-10 * time.Minute).UnixMilli(),
	}
	return gw.AppendLesson(ctx, lesson)
}
