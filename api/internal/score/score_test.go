package score

import (
	"math"
	"reflect"
	"testing"

	"menulens/api/internal/menu/types"
)

const sampleMenu = "醤油ラーメン 900円\n味噌ラーメン 950円\n餃子 400円\nTonkotsu Ramen 1000 yen"

func TestMatchScoreExactSubstring(t *testing.T) {
	t.Parallel()

	cases := []string{"醤油ラーメン", "醤油 ラーメン", "餃子", "ラーメン900円", "Tonkotsu Ramen"}
	for _, c := range cases {
		if got := MatchScore(c, sampleMenu); got != 1 {
			t.Fatalf("MatchScore(%q) = %v, want 1", c, got)
		}
	}
}

func TestMatchScoreCJKOverlap(t *testing.T) {
	t.Parallel()

	// 塩 is missing, ラ ー メ ン are present: 4 of 5 distinct characters.
	got := MatchScore("塩ラーメン", sampleMenu)
	if math.Abs(got-0.8) > 1e-9 {
		t.Fatalf("MatchScore = %v, want 0.8", got)
	}
	if got := MatchScore("寿司", sampleMenu); got != 0 {
		t.Fatalf("MatchScore for absent characters = %v, want 0", got)
	}
}

func TestMatchScoreRomanizedTokens(t *testing.T) {
	t.Parallel()

	got := MatchScore("Tonkotsu Udon", sampleMenu)
	if got != 0.5 {
		t.Fatalf("MatchScore = %v, want 0.5", got)
	}
	if got := MatchScore("!!!", sampleMenu); got != 0 {
		t.Fatalf("MatchScore without tokens = %v, want 0", got)
	}
	if got := MatchScore("醤油ラーメン", ""); got != 0 {
		t.Fatalf("MatchScore against empty source = %v, want 0", got)
	}
}

func TestSourceQuality(t *testing.T) {
	t.Parallel()

	cases := []struct {
		length  int
		changed bool
		want    float64
	}{
		{0, false, 0},
		{90, false, 0.5},
		{90, true, 0.55},
		{180, false, 1},
		{400, true, 1},
		{175, true, 1},
	}
	for _, tc := range cases {
		got := SourceQuality(tc.length, tc.changed)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("SourceQuality(%d,%v) = %v, want %v", tc.length, tc.changed, got, tc.want)
		}
	}
}

func TestFuseBoundedAndDeterministic(t *testing.T) {
	t.Parallel()

	values := []float64{0, 0.1, 0.34, 0.35, 0.49, 0.5, 0.74, 0.75, 0.9, 0.96, 1}
	for _, m := range values {
		for _, s := range values {
			for _, q := range values {
				for _, style := range []bool{false, true} {
					a := Fuse(m, s, q, style)
					b := Fuse(m, s, q, style)
					if a != b {
						t.Fatalf("Fuse not deterministic for %v %v %v %v", m, s, q, style)
					}
					if a < 0 || a > 1 {
						t.Fatalf("Fuse(%v,%v,%v,%v) = %v out of range", m, s, q, style, a)
					}
				}
			}
		}
	}
}

func TestFuseWeightsAndPenalties(t *testing.T) {
	t.Parallel()

	got := Fuse(0.8, 1, 1, false)
	want := 0.55*0.8 + 0.25 + 0.20
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("Fuse = %v, want %v", got, want)
	}

	got = Fuse(0.4, 0.2, 0.5, true)
	want = 0.55*0.4 + 0.25*0.2 + 0.20*0.5 - 0.12 - 0.08 - 0.06
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("Fuse with penalties = %v, want %v", got, want)
	}

	if got := Fuse(0, 0, 0, true); got != 0 {
		t.Fatalf("Fuse lower clamp = %v", got)
	}
}

func TestFuseDampening(t *testing.T) {
	t.Parallel()

	if got := Fuse(0.99, 0.99, 0.5, false); got > 0.93 {
		t.Fatalf("dampened Fuse = %v, want <= 0.93", got)
	}
	// 0.55 + 0.25 + 0.2*0.8 = 0.96 with enough source quality
	if got := Fuse(1, 1, 0.8, false); got <= 0.93 {
		t.Fatalf("Fuse with strong source = %v, want > 0.93", got)
	}
}

func TestStyleRisk(t *testing.T) {
	t.Parallel()

	cases := []struct {
		title, native string
		want          bool
	}{
		{"Salmon Nigiri", "サーモン", true},
		{"Salmon Nigiri", "サーモン握り", false},
		{"Tuna Sashimi", "まぐろ刺身", false},
		{"California Rolls", "カリフォルニア", true},
		{"California Roll", "カリフォルニアロール", false},
		{"Shoyu Ramen", "醤油ラーメン", false},
		{"Ikura Gunkan", "いくら軍艦", false},
		{"Salmon Temaki", "サーモン", true},
		{"Salmon Temaki", "サーモン手巻き", false},
		{"Makizushi platter", "盛り合わせ", true},
		{"Spicy tuna handroll", "スパイシーツナ", true},
		{"SASHIMI Moriawase", "刺身盛り合わせ", false},
	}
	for _, tc := range cases {
		if got := StyleRisk(tc.title, tc.native); got != tc.want {
			t.Fatalf("StyleRisk(%q,%q) = %v, want %v", tc.title, tc.native, got, tc.want)
		}
	}
}

func TestEvaluateWeakReasons(t *testing.T) {
	t.Parallel()

	s := Evaluate(Input{
		Item: types.CandidateItem{
			SourceText:      "特上",
			Title:           "Premium Nigiri",
			ModelConfidence: 0.3,
		},
		SourceText:    "寿司",
		RawTextLength: 2,
	})
	want := []string{
		types.WeakLowModelConfidence,
		types.WeakTextMatch,
		types.WeakShortOCRText,
		types.WeakStyleInference,
	}
	if !reflect.DeepEqual(s.WeakReasons, want) {
		t.Fatalf("WeakReasons = %v, want %v", s.WeakReasons, want)
	}
	if s.Final != 0 {
		t.Fatalf("Final = %v, want 0", s.Final)
	}

	clean := Evaluate(Input{
		Item:          types.CandidateItem{SourceText: "醤油ラーメン", Title: "Shoyu Ramen", ModelConfidence: 0.9},
		SourceText:    sampleMenu,
		RawTextLength: 200,
	})
	if len(clean.WeakReasons) != 0 {
		t.Fatalf("unexpected weak reasons: %v", clean.WeakReasons)
	}
	if clean.MatchScore != 1 || clean.SourceQuality != 1 {
		t.Fatalf("unexpected evidence: %+v", clean)
	}
}

func TestEvaluateClampsModelConfidence(t *testing.T) {
	t.Parallel()

	s := Evaluate(Input{
		Item:          types.CandidateItem{SourceText: "餃子", Title: "Gyoza", ModelConfidence: 7},
		SourceText:    sampleMenu,
		RawTextLength: 200,
	})
	if s.Final < 0 || s.Final > 1 {
		t.Fatalf("Final out of range: %v", s.Final)
	}
}
