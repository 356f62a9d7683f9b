package domain

import (
	"context"
	"errors"
	"time"
)

// ErrGuildNotFound возвращается, если сервер не настроен.
var ErrGuildNotFound = errors.New("сервер не настроен")

// ErrQuoteNotFound возвращается, если кандидата на цитату нет.
var ErrQuoteNotFound = errors.New("кандидат на цитату не найден")

// ErrMessageNotFound возвращается транспортом, если сообщение удалено или недоступно.
var ErrMessageNotFound = errors.New("сообщение не найдено")

// GuildRepo управляет настройками серверов.
type GuildRepo interface {
	UpsertGuild(ctx context.Context, guildID, channelID string) (Guild, error)
	GetGuild(ctx context.Context, guildID string) (Guild, error)
	SetThreads(ctx context.Context, guildID string, enabled bool) error
	ListConfigured(ctx context.Context) ([]Guild, error)
	DeleteGuild(ctx context.Context, guildID string) error
}

// QuoteRepo хранит кандидатов на цитату дня, по одному на сервер.
type QuoteRepo interface {
	GetQuote(ctx context.Context, guildID string) (Quote, error)
	UpsertQuote(ctx context.Context, quote Quote) error
	UpdateReactionCount(ctx context.Context, guildID, messageID string, count int) error
	DeleteQuote(ctx context.Context, guildID string) error
	DeleteQuoteIfMessage(ctx context.Context, guildID, messageID string) error
}

// Transport абстрагирует чат-платформу: получение, отправка и треды.
type Transport interface {
	FetchMessage(ctx context.Context, channelID, messageID string) (Message, error)
	SendQuote(ctx context.Context, channelID string, msg Message) (sentMessageID string, err error)
	OpenThread(ctx context.Context, channelID, messageID, name string) error
}

// Cache — разделяемая TTL-защёлка: fn выполняется, только если ключ
// ещё не был задан, при ошибке ключ снимается.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
}
