package signalstate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Alias1177/signalwatch/internal/config"
	"github.com/Alias1177/signalwatch/internal/patterns"
	"github.com/Alias1177/signalwatch/models"
)

func testConfig() config.SignalStateConfig {
	return config.SignalStateConfig{
		FVGCooldownMinutes:       60,
		BackoffFactor:            2,
		MaxCooldownMinutes:       240,
		FVGPriceTolerancePercent: 0.05,
		SignalCooldownMinutes:    0,
		ZScoreChangeThreshold:    0.5,
		PercentChangeThreshold:   0.05,
	}
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func minutes(m float64) time.Duration { return time.Duration(m * float64(time.Minute)) }

func newTestEngine(cfg config.SignalStateConfig, store Store, c *fakeClock) *Engine {
	return NewEngine(context.Background(), cfg, store, WithClock(c.now))
}

func gapFinding(top, bottom, shape string) models.Finding {
	return models.Finding{
		Indicator:  patterns.FVGIndicator,
		SignalType: "Bullish Reversal Confirmation",
		Attributes: map[string]any{
			"fvg_top":             top,
			"fvg_bottom":          bottom,
			"confirmation_candle": shape,
		},
	}
}

func TestFirstSightingAdmits(t *testing.T) {
	store := NewMemoryStore()
	e := newTestEngine(testConfig(), store, newClock())

	d := e.ShouldSend(context.Background(), "BTCUSDT", gapFinding("105.00", "100.00", "Hammer"))
	if !d.Admit || d.Previous != nil || d.TriggerCount != 1 || d.Reason != ReasonFirstSeen {
		t.Fatalf("unexpected decision %+v", d)
	}
	if store.Saves() != 1 {
		t.Errorf("saves = %d, want 1", store.Saves())
	}
}

func TestAdaptiveCooldown(t *testing.T) {
	clock := newClock()
	e := newTestEngine(testConfig(), NewMemoryStore(), clock)
	ctx := context.Background()
	f := gapFinding("105.00", "100.00", "Hammer")
	key := f.Key("BTCUSDT")

	steps := []struct {
		name      string
		advance   float64
		wantAdmit bool
		wantCount int
	}{
		{"first", 0, true, 1},
		{"before base cooldown", 30, false, 1},
		{"after base cooldown", 31, true, 2},
		{"before doubled cooldown", 100, false, 2},
		{"after doubled cooldown", 21, true, 3},
		{"before capped cooldown", 239, false, 3},
		{"after capped cooldown", 1, true, 4},
		{"cap holds for count four", 240, true, 5},
	}

	for _, st := range steps {
		clock.advance(minutes(st.advance))
		before, _ := e.Record(key)

		d := e.ShouldSend(ctx, "BTCUSDT", f)
		if d.Admit != st.wantAdmit || d.TriggerCount != st.wantCount {
			t.Fatalf("%s: admit=%v count=%d, want %v %d (cooldown %v elapsed %v)",
				st.name, d.Admit, d.TriggerCount, st.wantAdmit, st.wantCount, d.Cooldown, d.Elapsed)
		}

		after, _ := e.Record(key)
		if !st.wantAdmit && (after.Timestamp != before.Timestamp || after.TriggerCount != before.TriggerCount) {
			t.Errorf("%s: suppression must not mutate state: %+v -> %+v", st.name, before, after)
		}
		if st.wantAdmit && after.TriggerCount != st.wantCount {
			t.Errorf("%s: stored count %d", st.name, after.TriggerCount)
		}
		if d.Previous == nil && st.name != "first" {
			t.Errorf("%s: previous finding missing", st.name)
		}
	}
}

func TestMateriallyDifferentResetsCount(t *testing.T) {
	clock := newClock()
	e := newTestEngine(testConfig(), NewMemoryStore(), clock)
	ctx := context.Background()

	e.ShouldSend(ctx, "BTCUSDT", gapFinding("105.00", "100.00", "Hammer"))
	clock.advance(minutes(61))
	if d := e.ShouldSend(ctx, "BTCUSDT", gapFinding("105.00", "100.00", "Hammer")); d.TriggerCount != 2 {
		t.Fatalf("count = %d, want 2", d.TriggerCount)
	}

	tests := []struct {
		name string
		f    models.Finding
	}{
		{"midpoint moved", gapFinding("110.00", "104.00", "Hammer")},
		{"confirmation shape changed", gapFinding("110.00", "104.00", "Shooting Star")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock.advance(time.Minute)
			d := e.ShouldSend(ctx, "BTCUSDT", tt.f)
			if !d.Admit || d.TriggerCount != 1 || d.Reason != ReasonChanged {
				t.Errorf("unexpected decision %+v", d)
			}
			if d.Previous == nil {
				t.Errorf("previous finding missing")
			}
		})
	}
}

func TestToleranceBoundaryIsStrict(t *testing.T) {
	cfg := testConfig()
	cfg.FVGPriceTolerancePercent = 50

	prev := gapFinding("110", "90", "Hammer") // midpoint 100
	tests := []struct {
		name string
		cur  models.Finding
		want Similarity
	}{
		{"exactly at tolerance", gapFinding("160", "140", "Hammer"), Different},
		{"just inside tolerance", gapFinding("159", "139", "Hammer"), Similar},
		{"unchanged", gapFinding("110", "90", "Hammer"), Similar},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(prev, tt.cur, cfg); got != tt.want {
				t.Errorf("Compare() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompareEdgeCases(t *testing.T) {
	cfg := testConfig()
	zero := gapFinding("0", "0", "Hammer")

	generic := func(attrs map[string]any) models.Finding {
		return models.Finding{Indicator: "Volume Spike", SignalType: "Bullish Volume Spike", Attributes: attrs}
	}

	tests := []struct {
		name string
		prev models.Finding
		cur  models.Finding
		want Similarity
	}{
		{"zero baselines", zero, gapFinding("0", "0", "Hammer"), Similar},
		{"zero to non-zero", zero, gapFinding("2", "1", "Hammer"), Different},
		{"non-numeric field", gapFinding("n/a", "100", "Hammer"), gapFinding("105", "100", "Hammer"), Inconclusive},
		{"missing field", models.Finding{Indicator: patterns.FVGIndicator}, gapFinding("105", "100", "Hammer"), Inconclusive},
		{"json numbers", gapFinding("105.00", "100.00", "Hammer"), models.Finding{
			Indicator:  patterns.FVGIndicator,
			Attributes: map[string]any{"fvg_top": 105.0, "fvg_bottom": 100.0, "confirmation_candle": "Hammer"},
		}, Similar},
		{"z score small move", generic(map[string]any{"z_score": 2.0}), generic(map[string]any{"z_score": 2.3}), Similar},
		{"z score large move", generic(map[string]any{"z_score": 2.0}), generic(map[string]any{"z_score": 2.6}), Different},
		{"24h percent small move", generic(map[string]any{"price_change_24h": "+3.00%"}), generic(map[string]any{"price_change_24h": "+4.00%"}), Similar},
		{"24h percent large move", generic(map[string]any{"price_change_24h": "+3.00%"}), generic(map[string]any{"price_change_24h": "+9.00%"}), Different},
		{"24h fraction", generic(map[string]any{"oi_change_24h": 0.01}), generic(map[string]any{"oi_change_24h": 0.02}), Similar},
		{"nothing comparable", generic(map[string]any{"volume": "10"}), generic(map[string]any{"volume": "99"}), Inconclusive},
		{"garbage z score", generic(map[string]any{"z_score": "high"}), generic(map[string]any{"z_score": 2.0}), Inconclusive},
		{"nil attributes", generic(nil), generic(nil), Inconclusive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(tt.prev, tt.cur, cfg); got != tt.want {
				t.Errorf("Compare() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInconclusiveUsesGenericCooldown(t *testing.T) {
	ctx := context.Background()
	bad := gapFinding("n/a", "100", "Hammer")

	t.Run("zero generic cooldown admits", func(t *testing.T) {
		clock := newClock()
		e := newTestEngine(testConfig(), NewMemoryStore(), clock)
		e.ShouldSend(ctx, "ETHUSDT", bad)
		clock.advance(time.Second)
		d := e.ShouldSend(ctx, "ETHUSDT", bad)
		if !d.Admit || d.TriggerCount != 1 || d.Similarity != Inconclusive {
			t.Errorf("unexpected decision %+v", d)
		}
	})

	t.Run("generic cooldown suppresses", func(t *testing.T) {
		cfg := testConfig()
		cfg.SignalCooldownMinutes = 30
		clock := newClock()
		e := newTestEngine(cfg, NewMemoryStore(), clock)
		e.ShouldSend(ctx, "ETHUSDT", bad)

		clock.advance(minutes(10))
		if d := e.ShouldSend(ctx, "ETHUSDT", bad); d.Admit {
			t.Errorf("expected suppression inside generic cooldown, got %+v", d)
		}
		clock.advance(minutes(25))
		if d := e.ShouldSend(ctx, "ETHUSDT", bad); !d.Admit {
			t.Errorf("expected admission after generic cooldown, got %+v", d)
		}
	})
}

func TestKeysAreIndependent(t *testing.T) {
	clock := newClock()
	e := newTestEngine(testConfig(), NewMemoryStore(), clock)
	ctx := context.Background()
	f := gapFinding("105.00", "100.00", "Hammer")

	e.ShouldSend(ctx, "BTCUSDT", f)
	if d := e.ShouldSend(ctx, "ETHUSDT", f); !d.Admit || d.Reason != ReasonFirstSeen {
		t.Errorf("different symbol should be a new key, got %+v", d)
	}
	if e.Len() != 2 {
		t.Errorf("Len() = %d, want 2", e.Len())
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signal_state.json")
	clock := newClock()
	ctx := context.Background()

	f := gapFinding("105.00", "100.00", "Hammer")
	f.Attributes["bars"] = 3
	first := newTestEngine(testConfig(), NewFileStore(path), clock)
	first.ShouldSend(ctx, "BTCUSDT", f)

	clock.advance(minutes(10))
	restarted := newTestEngine(testConfig(), NewFileStore(path), clock)
	rec, ok := restarted.Record(f.Key("BTCUSDT"))
	if !ok {
		t.Fatal("record not reloaded")
	}
	if rec.TriggerCount != 1 || rec.Finding.Attributes["fvg_top"] != "105.00" {
		t.Errorf("reloaded record = %+v", rec)
	}
	if !rec.Time().Equal(clock.t.Add(-minutes(10))) {
		t.Errorf("timestamp = %v", rec.Time())
	}

	if d := restarted.ShouldSend(ctx, "BTCUSDT", f); d.Admit {
		t.Errorf("similar finding inside cooldown should stay suppressed after restart")
	}
}

func TestFileStoreLoad(t *testing.T) {
	dir := t.TempDir()

	records, err := NewFileStore(filepath.Join(dir, "missing.json")).Load(context.Background())
	if err != nil || len(records) != 0 {
		t.Errorf("missing file: %v %v", records, err)
	}

	corrupt := filepath.Join(dir, "corrupt.json")
	if err := os.WriteFile(corrupt, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(corrupt).Load(context.Background()); err == nil {
		t.Errorf("expected a decode error")
	}

	e := newTestEngine(testConfig(), NewFileStore(corrupt), newClock())
	if e.Len() != 0 {
		t.Errorf("engine should start empty on a corrupt file")
	}
}

type failingStore struct{ MemoryStore }

func (f *failingStore) Save(context.Context, map[string]models.SignalRecord) error {
	return errors.New("disk full")
}

func TestPersistenceFailureDoesNotBlock(t *testing.T) {
	clock := newClock()
	e := newTestEngine(testConfig(), &failingStore{}, clock)
	ctx := context.Background()
	f := gapFinding("105.00", "100.00", "Hammer")

	if d := e.ShouldSend(ctx, "BTCUSDT", f); !d.Admit {
		t.Fatalf("write failure must not block admission")
	}
	clock.advance(minutes(5))
	if d := e.ShouldSend(ctx, "BTCUSDT", f); d.Admit {
		t.Errorf("in-memory state should still suppress the repeat")
	}
}

func TestCooldown(t *testing.T) {
	tests := []struct {
		count   int
		ceiling float64
		want    time.Duration
	}{
		{1, 240, 60 * time.Minute},
		{2, 240, 120 * time.Minute},
		{3, 240, 240 * time.Minute},
		{4, 240, 240 * time.Minute},
		{4, 0, 480 * time.Minute},
		{0, 240, 60 * time.Minute},
	}

	for _, tt := range tests {
		if got := Cooldown(60, 2, tt.ceiling, tt.count); got != tt.want {
			t.Errorf("Cooldown(count=%d, ceiling=%v) = %v, want %v", tt.count, tt.ceiling, got, tt.want)
		}
	}
}
