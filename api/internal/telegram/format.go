package telegram

import (
	"fmt"
	"strings"

	"menulens/api/internal/menu/types"
	"menulens/api/internal/util"
)

const maxMessageBytes = 3900

// FormatResult renders a scan as a legacy-Markdown chat message.
func FormatResult(res types.ScanResult) string {
	var b strings.Builder
	if res.PipelineDiagnostics != nil && res.PipelineDiagnostics.Fallback {
		b.WriteString("⚠️ I could not read this menu. Try a closer, well-lit photo.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "🍽 %d dishes", len(res.Items))
	if t := res.DetectedType.Type; t != "" && t != "unknown" {
		fmt.Fprintf(&b, " (%s)", esc(t))
	}
	b.WriteString("\n\n")

	for i, it := range res.Items {
		fmt.Fprintf(&b, "%d. *%s*", i+1, esc(it.Preview.Title))
		if it.PriceText != nil && strings.TrimSpace(*it.PriceText) != "" {
			fmt.Fprintf(&b, " · %s", esc(*it.PriceText))
		}
		b.WriteString("\n")
		if s := strings.TrimSpace(it.SourceText); s != "" {
			fmt.Fprintf(&b, "   %s\n", esc(s))
		}
		if d := strings.TrimSpace(it.Preview.Description); d != "" {
			fmt.Fprintf(&b, "   _%s_\n", esc(d))
		}
		fmt.Fprintf(&b, "   %s", confidenceLabel(it.Confidence))
		if len(it.Preview.Tags) > 0 {
			fmt.Fprintf(&b, " · %s", esc(strings.Join(it.Preview.Tags, ", ")))
		}
		b.WriteString("\n")
		if len(it.Preview.Images) > 0 {
			fmt.Fprintf(&b, "   [photo](%s)\n", it.Preview.Images[0].URL)
		}
		b.WriteString("\n")
	}
	return util.Truncate(strings.TrimRight(b.String(), "\n"), maxMessageBytes)
}

func confidenceLabel(c float64) string {
	switch {
	case c >= 0.75:
		return fmt.Sprintf("✅ %d%%", int(c*100+0.5))
	case c >= 0.5:
		return fmt.Sprintf("🟡 %d%%", int(c*100+0.5))
	default:
		return fmt.Sprintf("❔ %d%%", int(c*100+0.5))
	}
}

// esc is light escaping for legacy Markdown.
func esc(s string) string {
	s = strings.ReplaceAll(s, "`", "'")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "[", "\\[")
	return s
}
