package telegram

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"menulens/api/internal/menu/types"
	"menulens/api/internal/pipeline"
)

type fakeBot struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) GetFileDirectURL(fileID string) (string, error) {
	return "https://files.example/" + fileID, nil
}

func (f *fakeBot) last() tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

type fakeScanner struct {
	got pipeline.Request
	res types.ScanResult
	err error
}

func (f *fakeScanner) Scan(_ context.Context, req pipeline.Request) (types.ScanResult, error) {
	f.got = req
	return f.res, f.err
}

func newRouter(bot *fakeBot, sc *fakeScanner) *Router {
	return &Router{
		Bot:     bot,
		Scanner: sc,
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Fetch: func(_ context.Context, url string) ([]byte, error) {
			if !strings.HasPrefix(url, "https://files.example/") {
				return nil, errors.New("unexpected url " + url)
			}
			return []byte{0xFF, 0xD8, 0xFF}, nil
		},
	}
}

func photoUpdate(chatID int64, userLang string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:  &tgbotapi.Chat{ID: chatID},
		From:  &tgbotapi.User{LanguageCode: userLang},
		Photo: []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "big"}},
	}}
}

func commandUpdate(chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(strings.Fields(text)[0])}},
	}}
}

func TestPhotoRunsScan(t *testing.T) {
	price := "900円"
	sc := &fakeScanner{res: types.ScanResult{
		ScanID:       "s1",
		DetectedType: types.DetectedType{Type: "menu", Confidence: 0.9},
		Items: []types.ScoredItem{{
			SourceText: "醤油ラーメン",
			PriceText:  &price,
			Confidence: 0.82,
			Preview: types.Preview{
				Title:  "Shoyu Ramen",
				Tags:   []string{"pork_possible"},
				Images: []types.ImageCandidate{{URL: "https://img.example/a.jpg", Score: 0.9}},
			},
		}},
	}}
	bot := &fakeBot{}
	newRouter(bot, sc).HandleUpdate(photoUpdate(101, "de"))

	if sc.got.TargetLang != "de" || len(sc.got.Image) != 3 {
		t.Fatalf("scanner got %+v", sc.got)
	}
	msg := bot.last()
	if msg.ParseMode != tgbotapi.ModeMarkdown {
		t.Fatalf("parse mode = %q", msg.ParseMode)
	}
	for _, want := range []string{"*Shoyu Ramen*", "900円", "醤油ラーメン", "82%", `pork\_possible`, "(https://img.example/a.jpg)"} {
		if !strings.Contains(msg.Text, want) {
			t.Fatalf("reply %q missing %q", msg.Text, want)
		}
	}
}

func TestLangCommandOverridesClientLanguage(t *testing.T) {
	sc := &fakeScanner{res: types.ScanResult{Items: []types.ScoredItem{{}}}}
	bot := &fakeBot{}
	r := newRouter(bot, sc)

	r.HandleUpdate(commandUpdate(202, "/lang ja"))
	if !strings.Contains(bot.last().Text, "ja") {
		t.Fatalf("reply = %q", bot.last().Text)
	}
	r.HandleUpdate(photoUpdate(202, "de"))
	if sc.got.TargetLang != "ja" {
		t.Fatalf("target lang = %q, want ja", sc.got.TargetLang)
	}

	r.HandleUpdate(commandUpdate(202, "/lang !!"))
	if !strings.Contains(bot.last().Text, "Unknown language") {
		t.Fatalf("reply = %q", bot.last().Text)
	}
}

func TestScanErrorIsReported(t *testing.T) {
	sc := &fakeScanner{err: types.Errorf(types.KindUpstreamTransport, "ocr.recognize", "timeout")}
	bot := &fakeBot{}
	newRouter(bot, sc).HandleUpdate(photoUpdate(303, ""))

	if sc.got.TargetLang != "en" {
		t.Fatalf("target lang = %q, want en", sc.got.TargetLang)
	}
	if !strings.Contains(bot.last().Text, "try again") {
		t.Fatalf("reply = %q", bot.last().Text)
	}
}

func TestFormatFallback(t *testing.T) {
	t.Parallel()

	out := FormatResult(types.ScanResult{
		Items:               []types.ScoredItem{{Preview: types.Preview{Title: "Menu text could not be read"}}},
		PipelineDiagnostics: &types.PipelineDiagnostics{Fallback: true},
	})
	if !strings.Contains(out, "could not read") {
		t.Fatalf("fallback text = %q", out)
	}
}

func TestCombineAsOne(t *testing.T) {
	t.Parallel()

	page := func(w, h int) []byte {
		var buf bytes.Buffer
		if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
			t.Fatal(err)
		}
		return buf.Bytes()
	}
	out, err := combineAsOne([][]byte{page(40, 10), page(20, 30)})
	if err != nil {
		t.Fatalf("combineAsOne: %v", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil || format != "jpeg" || cfg.Width != 40 || cfg.Height != 40 {
		t.Fatalf("merged = %+v %q %v", cfg, format, err)
	}

	if _, err := combineAsOne([][]byte{[]byte("not an image")}); err == nil {
		t.Fatalf("expected decode error")
	}
}
