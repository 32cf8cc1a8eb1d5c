package score

import "strings"

// styleHints maps an English serving-style term to native-script tokens that
// would justify it.
var styleHints = map[string][]string{
	"nigiri":  {"握", "にぎり", "ニギリ"},
	"gunkan":  {"軍艦", "ぐんかん", "グンカン"},
	"maki":    {"巻", "まき", "マキ"},
	"roll":    {"巻", "ロール", "まき"},
	"sashimi": {"刺身", "刺", "さしみ", "サシミ", "造り", "お造り"},
}

// StyleRisk flags a title that contains a serving-style term the native text
// never mentions. Terms match anywhere in the title, so "temaki" and
// "handroll" count as maki and roll.
func StyleRisk(title, sourceText string) bool {
	lowered := strings.ToLower(title)
	for term, hints := range styleHints {
		if !strings.Contains(lowered, term) {
			continue
		}
		evidenced := false
		for _, h := range hints {
			if strings.Contains(sourceText, h) {
				evidenced = true
				break
			}
		}
		if !evidenced {
			return true
		}
	}
	return false
}
