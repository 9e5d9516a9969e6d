package narrative

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Alias1177/signalwatch/models"
)

// Section headers the model is asked to use. Sinks split on the brackets.
const (
	SectionSignal = "【Signal & Structure】"
	SectionIntent = "【Smart Money Intent】"
	SectionAction = "【Action Plan】"
)

// SystemPrompt frames the analyst role and the expected answer layout.
func SystemPrompt() string {
	return `You are a world-class crypto market analyst specializing in ICT (Inner Circle Trader) concepts (Smart Money Concepts). Your analysis is concise, data-driven and directly actionable.

Analyze the primary signal together with the market structure to identify institutional intent. Structure the answer in three sections:

` + SectionSignal + ` Place the signal (FVG, Order Block, divergence, breakout, spike) inside the market structure. Did price recently sweep the range high or low? Is it reacting to a key level?
` + SectionIntent + ` State the likely institutional goal: a liquidity sweep before a reversal, or a break of structure that continues the trend.
` + SectionAction + ` Give the levels to watch for entry and for invalidation.
`
}

// UserPrompt renders the finding, its context and the previous finding for the key.
func UserPrompt(symbol, timeframe string, f models.Finding, prev *models.Finding) string {
	var sb strings.Builder

	if prev != nil {
		sb.WriteString("**0. Previous Signal Context:**\n")
		sb.WriteString("This is an update to a previously triggered signal. Say whether the new signal is a continuation, an acceleration or a potential reversal.\n")
		sb.WriteString("Previous Signal:\n")
		writeJSON(&sb, primary(*prev))
	} else {
		sb.WriteString("**0. Context:**\nThis is a new signal alert.\n")
	}

	fmt.Fprintf(&sb, "\n**Asset:** %s\n**Timeframe:** %s\n\n", symbol, timeframe)
	sb.WriteString("**1. Primary Signal Detected:**\n")
	writeJSON(&sb, primary(f))

	sb.WriteString("\n**2. Market Context Snapshot:**\n")
	if f.Context == nil {
		sb.WriteString("Not available.\n")
		return sb.String()
	}
	sb.WriteString("* Market Structure:\n")
	writeJSON(&sb, f.Context.Structure)
	sb.WriteString("* Key Market Indicators:\n")
	writeJSON(&sb, f.Context.Key)
	sb.WriteString("* Key Technical Indicators:\n")
	writeJSON(&sb, f.Context.Technical)

	fmt.Fprintf(&sb, "* Recent Price Action (last %d periods, oldest first):\n", len(f.Context.RecentKlines))
	for _, k := range f.Context.RecentKlines {
		fmt.Fprintf(&sb, "  - O:%.2f H:%.2f L:%.2f C:%.2f V:%.0f\n", k.Open, k.High, k.Low, k.Close, k.Volume)
	}
	return sb.String()
}

// primary strips the market context so the prompt carries it only once.
func primary(f models.Finding) map[string]any {
	return map[string]any{
		"indicator":   f.Indicator,
		"signal_type": f.SignalType,
		"attributes":  f.Attributes,
	}
}

func writeJSON(sb *strings.Builder, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(sb, "%v\n", v)
		return
	}
	sb.WriteString("```json\n")
	sb.Write(b)
	sb.WriteString("\n```\n")
}
