package discord

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"discord-qotd-bot/internal/domain"
	"discord-qotd-bot/internal/infra/metrics"
)

// Client реализует domain.Transport поверх сессии Discord.
type Client struct {
	session *discordgo.Session
	log     zerolog.Logger
}

var _ domain.Transport = (*Client)(nil)

// NewClient создаёт транспортный адаптер.
func NewClient(session *discordgo.Session, log zerolog.Logger) *Client {
	return &Client{session: session, log: log}
}

// FetchMessage запрашивает сообщение по каналу и идентификатору.
func (c *Client) FetchMessage(ctx context.Context, channelID, messageID string) (domain.Message, error) {
	start := time.Now()
	msg, err := c.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	metrics.ObserveNetworkRequest("discord", "message_fetch", channelID, start, err)
	if err != nil {
		if isNotFound(err) {
			return domain.Message{}, domain.ErrMessageNotFound
		}
		return domain.Message{}, err
	}
	return messageFromDiscord(msg), nil
}

// SendQuote отправляет оформленную цитату в канал.
func (c *Client) SendQuote(ctx context.Context, channelID string, msg domain.Message) (string, error) {
	embed := renderQuoteEmbed(msg)
	start := time.Now()
	sent, err := c.session.ChannelMessageSendEmbed(channelID, embed, discordgo.WithContext(ctx))
	metrics.ObserveNetworkRequest("discord", "message_send", channelID, start, err)
	if err != nil {
		return "", err
	}
	return sent.ID, nil
}

// OpenThread открывает обсуждение под отправленным сообщением и кладёт
// в него затравочное сообщение, чтобы тред не считался пустым.
func (c *Client) OpenThread(ctx context.Context, channelID, messageID, name string) error {
	start := time.Now()
	thread, err := c.session.MessageThreadStart(channelID, messageID, name, 1440, discordgo.WithContext(ctx))
	metrics.ObserveNetworkRequest("discord", "thread_start", channelID, start, err)
	if err != nil {
		return err
	}

	start = time.Now()
	_, err = c.session.ChannelMessageSend(thread.ID, ".", discordgo.WithContext(ctx))
	metrics.ObserveNetworkRequest("discord", "thread_seed", thread.ID, start, err)
	return err
}

// isNotFound распознаёт исчезнувшее сообщение или канал.
func isNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeUnknownMessage, discordgo.ErrCodeUnknownChannel:
			return true
		}
	}
	return restErr.Response != nil && restErr.Response.StatusCode == 404
}

// messageFromDiscord переводит сообщение Discord в транспортно-независимую форму.
func messageFromDiscord(m *discordgo.Message) domain.Message {
	msg := domain.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
		CreatedAt: m.Timestamp,
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
		msg.AuthorName = m.Author.Username
		if m.Member != nil && m.Member.Nick != "" {
			msg.AuthorName = m.Member.Nick
		}
		if m.Author.Avatar != "" {
			msg.AuthorAvatarURL = m.Author.AvatarURL("")
		}
	}
	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		msg.Attachments = append(msg.Attachments, domain.Attachment{Filename: a.Filename, URL: a.URL})
	}
	for _, r := range m.Reactions {
		if r == nil || r.Emoji == nil {
			continue
		}
		msg.Reactions = append(msg.Reactions, domain.ReactionTally{
			Emoji: r.Emoji.MessageFormat(),
			Count: r.Count,
		})
	}
	return msg
}
