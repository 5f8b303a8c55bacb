// Package telegram is the chat surface: users send a photo of an item and
// get its waste category and disposal guidance back.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"wasteiq/api/internal/classify"
	"wasteiq/api/internal/store"
	"wasteiq/api/internal/util"
)

// maxMessageRunes keeps replies under Telegram's 4096 character limit.
const maxMessageRunes = 3900

// Bot is the subset of *tgbotapi.BotAPI the router needs.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Service interface {
	ClassifyAndSave(ctx context.Context, req classify.Request) classify.LogEntry
}

type LogReader interface {
	History(ctx context.Context, uid string, limit int) ([]classify.LogEntry, error)
	Stats(ctx context.Context, uid string) (store.Stats, error)
}

type ProfileReader interface {
	Profile(ctx context.Context, uid string) (store.Profile, error)
}

const historyLimit = 10

type Router struct {
	Bot     Bot
	Service Service
	Logs    LogReader     // optional
	Points  ProfileReader // optional

	HTTP    *http.Client
	Timeout time.Duration // per photo, download included
}

func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	msg := upd.Message
	if msg.IsCommand() {
		r.HandleCommand(ctx, msg)
		return
	}
	switch {
	case len(msg.Photo) > 0:
		r.acceptPhoto(ctx, msg)
	case msg.Document != nil && strings.HasPrefix(strings.ToLower(msg.Document.MimeType), "image/"):
		r.acceptDocument(ctx, msg)
	case msg.Text != "":
		r.send(msg.Chat.ID, helpText)
	}
}

const helpText = "Send me a photo of a single item and I will tell you which bin it goes in.\n" +
	"Commands: /history, /stats, /points, /health"

func (r *Router) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	uid := userID(msg)
	switch msg.Command() {
	case "start", "help":
		r.send(cid, helpText)
	case "health":
		r.send(cid, "✅ OK")
	case "history":
		if r.Logs == nil {
			r.send(cid, "History is not available right now.")
			return
		}
		logs, err := r.Logs.History(ctx, uid, historyLimit)
		if err != nil {
			r.SendError(cid, err)
			return
		}
		r.sendMarkdown(cid, FormatHistory(logs))
	case "stats":
		if r.Logs == nil {
			r.send(cid, "Stats are not available right now.")
			return
		}
		st, err := r.Logs.Stats(ctx, uid)
		if err != nil {
			r.SendError(cid, err)
			return
		}
		r.sendMarkdown(cid, FormatStats(st))
	case "points":
		if r.Points == nil {
			r.send(cid, "Points are not available right now.")
			return
		}
		p, err := r.Points.Profile(ctx, uid)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			r.SendError(cid, err)
			return
		}
		if errors.Is(err, store.ErrNotFound) {
			p = store.Profile{UserID: uid, Level: store.LevelFor(0)}
		}
		r.sendMarkdown(cid, FormatProfile(p))
	default:
		r.send(cid, "Unknown command. "+helpText)
	}
}

// userID namespaces Telegram users so they never collide with HTTP callers.
func userID(msg *tgbotapi.Message) string {
	if msg.From != nil {
		return "tg:" + strconv.FormatInt(msg.From.ID, 10)
	}
	return "tg:" + strconv.FormatInt(msg.Chat.ID, 10)
}

func (r *Router) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := r.Bot.Send(msg); err != nil {
		slog.Warn("telegram: send failed", "chat_id", chatID, "err", err)
	}
}

func (r *Router) sendMarkdown(chatID int64, text string) {
	if cut := util.Truncate(text, maxMessageRunes); cut != text {
		text = cut + "…"
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := r.Bot.Send(msg); err != nil {
		slog.Warn("telegram: send failed", "chat_id", chatID, "err", err)
	}
}

func (r *Router) SendError(chatID int64, err error) {
	r.send(chatID, fmt.Sprintf("❌ Error: %v", err))
}
