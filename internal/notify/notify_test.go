package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	httpClient "github.com/Alias1177/signalwatch/internal/platform/http"
	"github.com/Alias1177/signalwatch/models"
)

func testAlert() Alert {
	return Alert{
		Symbol:    "ETHUSDT",
		Timeframe: "15m",
		Finding: models.Finding{
			Indicator:  "Fair Value Gap Rebalance",
			SignalType: "Bullish Reversal Confirmation",
			Attributes: map[string]any{"fvg_top": "105.00", "fvg_bottom": "100.00", "confirmation_candle": "Hammer"},
		},
		Narrative: "【Signal & Structure】 gap filled\n【Action Plan】 watch 100",
		Model:     "gemini-2.5-flash",
		Timestamp: time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
	}
}

type stubSink struct {
	name  string
	err   error
	block bool
	got   []Alert
	mu    sync.Mutex
}

func (s *stubSink) Name() string { return s.name }

func (s *stubSink) Send(ctx context.Context, a Alert) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	s.mu.Lock()
	s.got = append(s.got, a)
	s.mu.Unlock()
	return s.err
}

func TestDispatch(t *testing.T) {
	ok := &stubSink{name: "ok"}
	bad := &stubSink{name: "bad", err: errors.New("boom")}
	slow := &stubSink{name: "slow", block: true}

	var (
		mu      sync.Mutex
		results = map[string]error{}
	)
	d := NewDispatcher(20*time.Millisecond, func(sink string, err error) {
		mu.Lock()
		results[sink] = err
		mu.Unlock()
	}, ok, bad, slow)

	if got := d.Dispatch(context.Background(), testAlert()); got != 1 {
		t.Errorf("delivered = %d, want 1", got)
	}
	if len(ok.got) != 1 || ok.got[0].Symbol != "ETHUSDT" {
		t.Errorf("ok sink got %+v", ok.got)
	}
	if results["ok"] != nil || results["bad"] == nil || !errors.Is(results["slow"], context.DeadlineExceeded) {
		t.Errorf("results = %v", results)
	}
	if strings.Join(d.Sinks(), ",") != "ok,bad,slow" {
		t.Errorf("sinks = %v", d.Sinks())
	}
}

type panicSink struct{}

func (panicSink) Name() string { return "panicky" }

func (panicSink) Send(context.Context, Alert) error { panic("nil card") }

func TestDispatchSinkPanic(t *testing.T) {
	ok := &stubSink{name: "ok"}

	var (
		mu      sync.Mutex
		results = map[string]error{}
	)
	d := NewDispatcher(time.Second, func(sink string, err error) {
		mu.Lock()
		results[sink] = err
		mu.Unlock()
	}, panicSink{}, ok)

	if got := d.Dispatch(context.Background(), testAlert()); got != 1 {
		t.Errorf("delivered = %d, want 1", got)
	}
	if len(ok.got) != 1 {
		t.Errorf("ok sink got %d alerts", len(ok.got))
	}
	err, seen := results["panicky"]
	if !seen || err == nil || !strings.Contains(err.Error(), "nil card") {
		t.Errorf("panicking sink result = %v (seen %v)", err, seen)
	}
}

func TestHeaderTemplate(t *testing.T) {
	tests := map[string]string{
		"Fair Value Gap Rebalance": "violet",
		"Volume Spike":             "orange",
		"RSI Divergence":           "purple",
		"Bollinger Breakout":       "turquoise",
		"Order Block Retest":       "turquoise",
		"Price/OI Spike":           "blue",
	}
	for indicator, want := range tests {
		t.Run(indicator, func(t *testing.T) {
			if got := HeaderTemplate(indicator); got != want {
				t.Errorf("got %s, want %s", got, want)
			}
		})
	}
}

func TestSplitNarrative(t *testing.T) {
	got := SplitNarrative("intro\n【A】 one\n【B】two ")
	want := []NarrativeSection{{Body: "intro"}, {Title: "A", Body: "one"}, {Title: "B", Body: "two"}}
	if len(got) != len(want) {
		t.Fatalf("got %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("section %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if got := SplitNarrative("plain text"); len(got) != 1 || got[0].Body != "plain text" {
		t.Errorf("plain = %+v", got)
	}
}

func TestLarkSink(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		wantErr bool
	}{
		{"accepted", `{"code":0,"msg":"success"}`, false},
		{"rejected", `{"code":19021,"msg":"sign match fail"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var card map[string]any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewDecoder(r.Body).Decode(&card)
				_, _ = w.Write([]byte(tt.reply))
			}))
			defer srv.Close()

			sink := NewLarkSink(srv.URL, httpClient.NewClient(httpClient.ClientOptions{RequestsPerSec: 100}))
			err := sink.Send(context.Background(), testAlert())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if card["msg_type"] != "interactive" {
				t.Errorf("msg_type = %v", card["msg_type"])
			}
			header := card["card"].(map[string]any)["header"].(map[string]any)
			if header["template"] != "violet" {
				t.Errorf("template = %v", header["template"])
			}
		})
	}
}

func TestLarkCardContent(t *testing.T) {
	b, err := json.Marshal(LarkCard(testAlert()))
	if err != nil {
		t.Fatal(err)
	}
	body := string(b)
	for _, want := range []string{
		"🚨 ETHUSDT market alert",
		"**Confirmation Candle:** Hammer",
		"**🤖 Signal \u0026 Structure**",
		"15m | gemini-2.5-flash | 2024-05-01 12:30:00 UTC",
	} {
		if !strings.Contains(body, jsonEscape(want)) {
			t.Errorf("card missing %q:\n%s", want, body)
		}
	}
}

func jsonEscape(s string) string {
	b, _ := json.Marshal(s)
	return strings.Trim(string(b), `"`)
}

func TestWebhookSink(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, httpClient.NewClient(httpClient.ClientOptions{RequestsPerSec: 100}))
	if err := sink.Send(context.Background(), testAlert()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if payload["symbol"] != "ETHUSDT" || payload["ts"] != "2024-05-01T12:30:00Z" {
		t.Errorf("payload = %v", payload)
	}
}

type fakeBot struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		b.sent = append(b.sent, m)
	}
	return tgbotapi.Message{}, b.err
}

func TestTelegramSink(t *testing.T) {
	bot := &fakeBot{}
	sink := NewTelegramSinkWithSender(bot, 42)
	if err := sink.Send(context.Background(), testAlert()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(bot.sent) != 1 || bot.sent[0].ChatID != 42 {
		t.Fatalf("sent = %+v", bot.sent)
	}
	if !strings.Contains(bot.sent[0].Text, "Fvg Top: 105.00") || !strings.Contains(bot.sent[0].Text, "🤖 Action Plan") {
		t.Errorf("text = %s", bot.sent[0].Text)
	}

	bot.err = errors.New("forbidden")
	if err := sink.Send(context.Background(), testAlert()); err == nil {
		t.Error("expected error from bot")
	}
}
