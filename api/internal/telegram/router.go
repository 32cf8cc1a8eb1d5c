// Package telegram is the chat front end: a user sends a menu photo (or an
// album of menu pages) and gets the translated dish list back.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/text/language"

	"menulens/api/internal/menu/types"
	"menulens/api/internal/pipeline"
)

// Bot is the part of tgbotapi.BotAPI the router uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Scanner interface {
	Scan(ctx context.Context, req pipeline.Request) (types.ScanResult, error)
}

type Router struct {
	Bot     Bot
	Scanner Scanner
	Log     *slog.Logger

	// Debounce groups album pages; zero processes every photo at once.
	Debounce    time.Duration
	ScanTimeout time.Duration
	// Fetch downloads a Telegram file; nil uses plain HTTP.
	Fetch func(ctx context.Context, url string) ([]byte, error)
}

func (r *Router) HandleCommand(upd tgbotapi.Update) {
	cid := upd.Message.Chat.ID
	switch upd.Message.Command() {
	case "start", "help":
		r.send(cid, "Send a photo of a menu and I will list the dishes with translations.\n"+
			"Several pages? Send them as one album.\nCommands: /lang <code>, /health")
	case "health":
		r.send(cid, "✅ OK")
	case "lang":
		arg := strings.TrimSpace(upd.Message.CommandArguments())
		if arg == "" {
			r.send(cid, "Current language: "+r.chatLanguage(cid, upd.Message.From)+"\nUsage: /lang ja")
			return
		}
		tag, err := parseLang(arg)
		if err != nil {
			r.send(cid, fmt.Sprintf("Unknown language %q", arg))
			return
		}
		chatLang.Store(cid, tag)
		r.send(cid, "✅ Translations will be in: "+tag)
	default:
		r.send(cid, "Unknown command")
	}
}

func (r *Router) HandleUpdate(upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	if upd.Message.IsCommand() {
		r.HandleCommand(upd)
		return
	}
	if len(upd.Message.Photo) > 0 {
		r.acceptPhoto(*upd.Message)
		return
	}
	if upd.Message.Document != nil && strings.HasPrefix(upd.Message.Document.MimeType, "image/") {
		r.acceptFile(*upd.Message, upd.Message.Document.FileID)
	}
}

// chatLanguage is the /lang override, then the user's client language.
func (r *Router) chatLanguage(chatID int64, from *tgbotapi.User) string {
	if v, ok := chatLang.Load(chatID); ok {
		return v.(string)
	}
	if from != nil {
		if tag, err := parseLang(from.LanguageCode); err == nil {
			return tag
		}
	}
	return "en"
}

func parseLang(s string) (string, error) {
	tag, err := language.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", err
	}
	if tag == language.Und {
		return "", fmt.Errorf("undetermined language %q", s)
	}
	return tag.String(), nil
}

func (r *Router) logger() *slog.Logger {
	if r.Log == nil {
		return slog.Default()
	}
	return r.Log
}

func (r *Router) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := r.Bot.Send(msg); err != nil {
		r.logger().Warn("telegram send failed", "chat_id", chatID, "error", err)
	}
}

func (r *Router) sendMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true
	if _, err := r.Bot.Send(msg); err != nil {
		r.logger().Warn("telegram send failed", "chat_id", chatID, "error", err)
	}
}

func (r *Router) SendError(chatID int64, err error) {
	switch types.KindOf(err) {
	case types.KindUpstreamTransport, types.KindUpstreamFormat:
		r.send(chatID, "The recognition service is not answering right now. Please try again in a minute.")
	case types.KindEmptyInput, types.KindInvalidInput:
		r.send(chatID, "I could not use that picture. Please send a photo of the menu.")
	default:
		r.send(chatID, "Something went wrong while reading the menu.")
	}
	r.logger().Warn("scan failed", "chat_id", chatID, "kind", types.KindOf(err), "error", err)
}
