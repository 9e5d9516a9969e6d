package database

import (
	"context"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/Alias1177/signalwatch/internal/config"
	"github.com/Alias1177/signalwatch/internal/patterns"
	"github.com/Alias1177/signalwatch/internal/signalstate"
	"github.com/Alias1177/signalwatch/models"
)

func TestNewUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := New(ctx, "host=127.0.0.1 port=1 user=x dbname=x sslmode=disable connect_timeout=1")
	if err == nil {
		db.Close()
		t.Fatal("expected ping error for unreachable server")
	}
}

// openTestDB connects to the server named by STATE_POSTGRES_DSN and empties
// signal_records before and after the test.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("STATE_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("STATE_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	reset := func() {
		if _, err := db.ExecContext(context.Background(), `DELETE FROM signal_records`); err != nil {
			t.Errorf("clear signal_records: %v", err)
		}
	}
	reset()
	t.Cleanup(func() {
		reset()
		db.Close()
	})
	return db
}

func gapRecord(ts time.Time, count int) models.SignalRecord {
	return models.SignalRecord{
		Timestamp: models.EpochSeconds(ts),
		Finding: models.Finding{
			Indicator:  patterns.FVGIndicator,
			SignalType: "Bullish Reversal Confirmation",
			Attributes: map[string]any{
				"fvg_top":             "105.00",
				"fvg_bottom":          "100.00",
				"confirmation_candle": "Hammer",
				"bars":                3,
			},
		},
		TriggerCount: count,
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	key := "BTCUSDT-" + patterns.FVGIndicator + "-Bullish Reversal Confirmation"
	if err := db.Save(ctx, map[string]models.SignalRecord{
		key:                    gapRecord(ts, 2),
		"ETHUSDT-Other-Signal": gapRecord(ts, 1),
	}); err != nil {
		t.Fatalf("first Save() error = %v", err)
	}
	// The second save replaces the table, so ETHUSDT must disappear.
	if err := db.Save(ctx, map[string]models.SignalRecord{key: gapRecord(ts, 3)}); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	records, err := db.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %v, want only %s", records, key)
	}
	rec, ok := records[key]
	if !ok {
		t.Fatalf("key %q missing from %v", key, records)
	}
	if !rec.Time().Equal(ts) {
		t.Errorf("timestamp = %v, want %v", rec.Time(), ts)
	}
	if rec.TriggerCount != 3 {
		t.Errorf("trigger_count = %d, want 3", rec.TriggerCount)
	}
	if rec.Finding.Attributes["fvg_top"] != "105.00" {
		t.Errorf("fvg_top = %#v", rec.Finding.Attributes["fvg_top"])
	}
	if bars, ok := rec.Finding.Attributes["bars"].(float64); !ok || bars != 3 {
		t.Errorf("bars = %#v, want float64 3", rec.Finding.Attributes["bars"])
	}
}

func TestEngineRestartWithPostgres(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	cfg := config.SignalStateConfig{
		FVGCooldownMinutes:       60,
		BackoffFactor:            2,
		MaxCooldownMinutes:       240,
		FVGPriceTolerancePercent: 0.05,
		ZScoreChangeThreshold:    0.5,
		PercentChangeThreshold:   0.05,
	}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	f := gapRecord(now, 1).Finding
	first := signalstate.NewEngine(ctx, cfg, db, signalstate.WithClock(clock))
	if d := first.ShouldSend(ctx, "BTCUSDT", f); !d.Admit {
		t.Fatalf("first finding should be admitted: %+v", d)
	}

	now = now.Add(10 * time.Minute)
	restarted := signalstate.NewEngine(ctx, cfg, db, signalstate.WithClock(clock))
	rec, ok := restarted.Record(f.Key("BTCUSDT"))
	if !ok {
		t.Fatal("record not reloaded")
	}
	if rec.TriggerCount != 1 || !rec.Time().Equal(now.Add(-10*time.Minute)) {
		t.Errorf("reloaded record = %+v", rec)
	}
	if d := restarted.ShouldSend(ctx, "BTCUSDT", f); d.Admit {
		t.Errorf("similar finding inside cooldown should stay suppressed after restart")
	}
}
