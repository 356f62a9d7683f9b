package discord

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"discord-qotd-bot/internal/domain"
	"discord-qotd-bot/internal/infra/metrics"
	"discord-qotd-bot/internal/usecase/tracker"
)

// Gateway переводит события шлюза Discord в вызовы трекера кандидатов.
// Стадия приёма добирает недостающие факты (актуальные счётчики реакций
// на сообщении) и передаёт их в серверную критическую секцию трекера.
type Gateway struct {
	client  *Client
	tracker *tracker.Service
	log     zerolog.Logger
}

// NewGateway создаёт обработчик событий.
func NewGateway(client *Client, trk *tracker.Service, log zerolog.Logger) *Gateway {
	return &Gateway{client: client, tracker: trk, log: log}
}

// Register подписывает обработчики на сессию.
func (g *Gateway) Register(session *discordgo.Session) {
	session.AddHandler(g.onReactionAdd)
	session.AddHandler(g.onReactionRemove)
	session.AddHandler(g.onMessageDelete)
}

func (g *Gateway) onReactionAdd(s *discordgo.Session, e *discordgo.MessageReactionAdd) {
	metrics.IncGatewayEvent("reaction_add")
	if e.GuildID == "" {
		metrics.IncGatewayDropped("reaction_add", "no_guild")
		return
	}
	if s.State.User != nil && e.UserID == s.State.User.ID {
		metrics.IncGatewayDropped("reaction_add", "self")
		return
	}

	ctx := context.Background()
	msg, err := g.client.FetchMessage(ctx, e.ChannelID, e.MessageID)
	if err != nil {
		if !errors.Is(err, domain.ErrMessageNotFound) {
			g.log.Error().Err(err).Str("message", e.MessageID).Msg("gateway: не удалось получить сообщение для реакции")
		}
		metrics.IncGatewayDropped("reaction_add", "fetch_failed")
		return
	}
	if msg.GuildID == "" {
		msg.GuildID = e.GuildID
	}
	g.tracker.ReactionObserved(ctx, msg)
}

func (g *Gateway) onReactionRemove(s *discordgo.Session, e *discordgo.MessageReactionRemove) {
	metrics.IncGatewayEvent("reaction_remove")
	if e.GuildID == "" {
		metrics.IncGatewayDropped("reaction_remove", "no_guild")
		return
	}

	ctx := context.Background()
	msg, err := g.client.FetchMessage(ctx, e.ChannelID, e.MessageID)
	if err != nil {
		if !errors.Is(err, domain.ErrMessageNotFound) {
			g.log.Error().Err(err).Str("message", e.MessageID).Msg("gateway: не удалось получить сообщение для снятия реакции")
		}
		metrics.IncGatewayDropped("reaction_remove", "fetch_failed")
		return
	}
	g.tracker.ReactionWithdrawn(ctx, e.GuildID, e.MessageID, msg.MaxReactionCount())
}

func (g *Gateway) onMessageDelete(s *discordgo.Session, e *discordgo.MessageDelete) {
	metrics.IncGatewayEvent("message_delete")
	if e.GuildID == "" {
		metrics.IncGatewayDropped("message_delete", "no_guild")
		return
	}
	g.tracker.MessageDeleted(context.Background(), e.GuildID, e.ID)
}
