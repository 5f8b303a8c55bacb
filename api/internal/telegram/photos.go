package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"wasteiq/api/internal/classify"
	"wasteiq/api/internal/imagenorm"
)

var errTooLarge = fmt.Errorf("image too large (max %dMB)", imagenorm.MaxInputBytes>>20)

func (r *Router) acceptPhoto(ctx context.Context, msg *tgbotapi.Message) {
	// Telegram lists sizes ascending; the last one is the original
	ph := msg.Photo[len(msg.Photo)-1]
	if ph.FileSize > imagenorm.MaxInputBytes {
		r.SendError(msg.Chat.ID, errTooLarge)
		return
	}
	r.classifyFile(ctx, msg, ph.FileID)
}

func (r *Router) acceptDocument(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Document.FileSize > imagenorm.MaxInputBytes {
		r.SendError(msg.Chat.ID, errTooLarge)
		return
	}
	r.classifyFile(ctx, msg, msg.Document.FileID)
}

func (r *Router) classifyFile(ctx context.Context, msg *tgbotapi.Message, fileID string) {
	cid := msg.Chat.ID
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	link, err := r.Bot.GetFileDirectURL(fileID)
	if err != nil {
		r.SendError(cid, err)
		return
	}
	img, err := r.download(ctx, link)
	if err != nil {
		r.SendError(cid, err)
		return
	}

	r.send(cid, "📷 Photo received, analysing…")
	// the direct URL embeds the bot token and is never stored
	entry := r.Service.ClassifyAndSave(ctx, classify.Request{Image: img, UserID: userID(msg)})
	r.sendMarkdown(cid, FormatEntry(entry))
}

func (r *Router) download(ctx context.Context, link string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.httpClient().Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			// url.Error repeats the token-bearing URL
			return nil, fmt.Errorf("download: %w", uerr.Err)
		}
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("download: status %d: %s", resp.StatusCode, string(b))
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, imagenorm.MaxInputBytes+1))
	if err != nil {
		return nil, err
	}
	if len(b) > imagenorm.MaxInputBytes {
		return nil, errTooLarge
	}
	return b, nil
}

func (r *Router) httpClient() *http.Client {
	if r.HTTP != nil {
		return r.HTTP
	}
	return &http.Client{Timeout: 60 * time.Second}
}
