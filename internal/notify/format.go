package notify

import (
	"fmt"
	"strconv"
	"strings"
)

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// NarrativeSection is one 【title】 block of a narrative.
type NarrativeSection struct {
	Title string
	Body  string
}

// SplitNarrative splits text on 【…】 headers. Text before the first header, or
// text without headers, becomes a section with an empty title.
func SplitNarrative(text string) []NarrativeSection {
	var out []NarrativeSection
	for _, part := range strings.Split(text, "【") {
		title, body, found := strings.Cut(part, "】")
		if !found {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, NarrativeSection{Body: s})
			}
			continue
		}
		out = append(out, NarrativeSection{Title: strings.TrimSpace(title), Body: strings.TrimSpace(body)})
	}
	return out
}

// PlainText renders an alert for channels without rich formatting.
func PlainText(a Alert) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🚨 %s market alert (%s)\n", a.Symbol, a.Timeframe)
	fmt.Fprintf(&sb, "Indicator: %s\nType: %s\n\n", a.Finding.Indicator, a.Finding.SignalType)
	for _, l := range attributeLines(a.Finding.Attributes, false) {
		sb.WriteString(l + "\n")
	}
	if a.Narrative != "" {
		sb.WriteString("\n")
		for _, s := range SplitNarrative(a.Narrative) {
			if s.Title != "" {
				fmt.Fprintf(&sb, "🤖 %s\n", s.Title)
			}
			sb.WriteString(s.Body + "\n\n")
		}
	}
	fmt.Fprintf(&sb, "%s | %s", a.Model, a.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"))
	return sb.String()
}
