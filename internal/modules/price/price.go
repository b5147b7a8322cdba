// Package price — поиск токена на Dexscreener (!t, !price и $SYMBOL).
package price

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/flybasist/gcbot/internal/core"
	"github.com/flybasist/gcbot/internal/metrics"
	"github.com/flybasist/gcbot/internal/modules/limiter"
)

// CommandPrice — команда, которой диспетчер передаёт запросы через сигил.
const CommandPrice = "price"

const (
	msgUsage    = "Usage: !t <token_contract_or_address>"
	msgFetching = "⏳ Fetching token data…"
	msgNotFound = "❔ Token not found on Dexscreener."
	msgFailed   = "⚠️ Error fetching token. Check address and try again."
)

// Module — модуль цен.
type Module struct {
	client  *Client
	limiter *limiter.Limiter
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New создаёт модуль. lim может быть nil (без дневного лимита).
func New(client *Client, lim *limiter.Limiter, m *metrics.Metrics, logger *zap.Logger) *Module {
	return &Module{client: client, limiter: lim, metrics: m, logger: logger}
}

func (m *Module) Name() string { return "price" }

func (m *Module) Commands() []core.BotCommand {
	return []core.BotCommand{
		{Command: "t", Description: "<contract> – Token info", Handler: m.handleLookup},
		{Command: CommandPrice, Description: "<contract|symbol> – Token info", Handler: m.handleLookup},
	}
}

func (m *Module) Shutdown() error { return nil }

func (m *Module) handleLookup(mc *core.MessageContext) error {
	query, _, _ := strings.Cut(strings.TrimSpace(mc.Args), " ")
	if query == "" {
		return mc.Quote(msgUsage)
	}

	ctx := mc.Context()
	log := m.logger.With(
		zap.String("chat_id", mc.Message.GroupID),
		zap.String("user_id", mc.Message.SenderID),
		zap.String("query", query))

	if m.limiter != nil {
		d, err := m.limiter.Allow(ctx, mc.Message.GroupID, mc.Message.SenderID)
		if err != nil {
			return fmt.Errorf("check daily limit: %w", err)
		}
		if !d.Allowed {
			m.metrics.ObservePrice("limited")
			return mc.Quote(d.RefusalText())
		}
	}

	if err := mc.Quote(msgFetching); err != nil {
		log.Warn("failed to send progress message", zap.Error(err))
	}

	info, err := m.client.Lookup(ctx, query)
	if errors.Is(err, ErrNotFound) {
		m.metrics.ObservePrice("not_found")
		return mc.Quote(msgNotFound)
	}
	if err != nil {
		log.Error("token fetch failed", zap.Error(err))
		m.metrics.ObservePrice("error")
		return mc.Quote(msgFailed)
	}

	m.metrics.ObservePrice("ok")
	caption := Caption(info)

	if info.ImageURL != "" {
		image, err := m.client.FetchImage(ctx, info.ImageURL)
		if err == nil {
			err = mc.Transport.SendImage(ctx, mc.Message.GroupID, image, caption)
		}
		if err == nil {
			return nil
		}
		// Картинка не обязательна: отвечаем текстом
		log.Warn("image send failed, falling back to text", zap.Error(err))
	}
	return mc.Quote(caption)
}
