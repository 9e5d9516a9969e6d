package notify

import (
	"context"
	"fmt"
	"strings"

	httpClient "github.com/Alias1177/signalwatch/internal/platform/http"
)

// LarkSink posts interactive cards to a Lark (Feishu) bot webhook.
type LarkSink struct {
	url    string
	client *httpClient.Client
}

// NewLarkSink creates a Lark sink.
func NewLarkSink(url string, client *httpClient.Client) *LarkSink {
	return &LarkSink{url: url, client: client}
}

func (s *LarkSink) Name() string { return "lark" }

type larkResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (s *LarkSink) Send(ctx context.Context, a Alert) error {
	var resp larkResponse
	if err := s.client.PostJSON(ctx, s.url, LarkCard(a), &resp); err != nil {
		return fmt.Errorf("lark: %w", err)
	}
	if resp.Code != 0 {
		return fmt.Errorf("lark: api code %d: %s", resp.Code, resp.Msg)
	}
	return nil
}

// HeaderTemplate picks the card colour for an indicator.
func HeaderTemplate(indicator string) string {
	switch {
	case strings.Contains(indicator, "Gap"):
		return "violet"
	case strings.Contains(indicator, "Volume"):
		return "orange"
	case strings.Contains(indicator, "Divergence"):
		return "purple"
	case strings.Contains(indicator, "Bollinger"), strings.Contains(indicator, "Order Block"):
		return "turquoise"
	default:
		return "blue"
	}
}

func mdDiv(content string) map[string]any {
	return map[string]any{
		"tag":  "div",
		"text": map[string]any{"tag": "lark_md", "content": content},
	}
}

// LarkCard builds the interactive message payload.
func LarkCard(a Alert) map[string]any {
	elements := []any{
		mdDiv(fmt.Sprintf("**Indicator:** %s\n**Type:** %s", a.Finding.Indicator, a.Finding.SignalType)),
		map[string]any{"tag": "hr"},
		mdDiv(strings.Join(attributeLines(a.Finding.Attributes, true), "\n")),
	}

	if a.Narrative != "" {
		var sb strings.Builder
		for _, sec := range SplitNarrative(a.Narrative) {
			if sec.Title != "" {
				fmt.Fprintf(&sb, "**🤖 %s**\n", sec.Title)
			}
			sb.WriteString(sec.Body + "\n\n")
		}
		elements = append(elements, map[string]any{"tag": "hr"}, mdDiv(strings.TrimSpace(sb.String())))
	}

	elements = append(elements, map[string]any{
		"tag": "note",
		"elements": []any{map[string]any{
			"tag":     "plain_text",
			"content": fmt.Sprintf("%s | %s | %s", a.Timeframe, a.Model, a.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC")),
		}},
	})

	return map[string]any{
		"msg_type": "interactive",
		"card": map[string]any{
			"header": map[string]any{
				"title":    map[string]any{"tag": "plain_text", "content": fmt.Sprintf("🚨 %s market alert", a.Symbol)},
				"template": HeaderTemplate(a.Finding.Indicator),
			},
			"elements": elements,
		},
	}
}
