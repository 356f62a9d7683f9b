package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"discord-qotd-bot/internal/domain"
	"discord-qotd-bot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
//
// Схема:
//
//	guilds(guild_id TEXT PRIMARY KEY, channel_id TEXT NOT NULL,
//	       threads BOOLEAN NOT NULL DEFAULT TRUE,
//	       created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//	       updated_at TIMESTAMPTZ NOT NULL DEFAULT now())
//	quotes(guild_id TEXT PRIMARY KEY, channel_id TEXT NOT NULL,
//	       message_id TEXT NOT NULL, reaction_count INT NOT NULL,
//	       created_at TIMESTAMPTZ NOT NULL)
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.GuildRepo = (*Postgres)(nil)
var _ domain.QuoteRepo = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// UpsertGuild сохраняет сервер и канал публикаций. Треды при первой
// настройке включены, повторная настройка их состояние не трогает.
func (p *Postgres) UpsertGuild(ctx context.Context, guildID, channelID string) (domain.Guild, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var guild domain.Guild
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO guilds (guild_id, channel_id, threads)
VALUES ($1, $2, TRUE)
ON CONFLICT (guild_id) DO UPDATE SET channel_id = EXCLUDED.channel_id, updated_at = now()
RETURNING guild_id, channel_id, threads, created_at, updated_at
`, guildID, channelID).Scan(&guild.ID, &guild.ChannelID, &guild.ThreadsEnabled, &guild.CreatedAt, &guild.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "guilds_upsert", "guilds", start, err)
	if err != nil {
		return domain.Guild{}, err
	}
	return guild, nil
}

// GetGuild возвращает настройки сервера.
func (p *Postgres) GetGuild(ctx context.Context, guildID string) (domain.Guild, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var guild domain.Guild
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT guild_id, channel_id, threads, created_at, updated_at
FROM guilds WHERE guild_id = $1
`, guildID).Scan(&guild.ID, &guild.ChannelID, &guild.ThreadsEnabled, &guild.CreatedAt, &guild.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "guilds_get", "guilds", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Guild{}, domain.ErrGuildNotFound
	}
	if err != nil {
		return domain.Guild{}, err
	}
	return guild, nil
}

// SetThreads переключает открытие тредов у сервера.
func (p *Postgres) SetThreads(ctx context.Context, guildID string, enabled bool) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE guilds SET threads = $2, updated_at = now() WHERE guild_id = $1
`, guildID, enabled)
	metrics.ObserveNetworkRequest("postgres", "guilds_set_threads", "guilds", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrGuildNotFound
	}
	return nil
}

// ListConfigured возвращает серверы с заданным каналом публикаций.
func (p *Postgres) ListConfigured(ctx context.Context) ([]domain.Guild, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT guild_id, channel_id, threads, created_at, updated_at
FROM guilds WHERE channel_id <> ''
ORDER BY guild_id
`)
	metrics.ObserveNetworkRequest("postgres", "guilds_list", "guilds", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var guilds []domain.Guild
	for rows.Next() {
		var guild domain.Guild
		if err := rows.Scan(&guild.ID, &guild.ChannelID, &guild.ThreadsEnabled, &guild.CreatedAt, &guild.UpdatedAt); err != nil {
			return nil, err
		}
		guilds = append(guilds, guild)
	}
	return guilds, rows.Err()
}

// DeleteGuild удаляет настройки сервера вместе с его кандидатом.
func (p *Postgres) DeleteGuild(ctx context.Context, guildID string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM quotes WHERE guild_id = $1`, guildID)
	metrics.ObserveNetworkRequest("postgres", "quotes_delete", "quotes", start, err)
	if err != nil {
		return err
	}
	start = time.Now()
	_, err = p.pool.Exec(ctx, `DELETE FROM guilds WHERE guild_id = $1`, guildID)
	metrics.ObserveNetworkRequest("postgres", "guilds_delete", "guilds", start, err)
	return err
}

// GetQuote возвращает кандидата сервера.
func (p *Postgres) GetQuote(ctx context.Context, guildID string) (domain.Quote, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var quote domain.Quote
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT guild_id, channel_id, message_id, reaction_count, created_at
FROM quotes WHERE guild_id = $1
`, guildID).Scan(&quote.GuildID, &quote.ChannelID, &quote.MessageID, &quote.ReactionCount, &quote.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "quotes_get", "quotes", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quote{}, domain.ErrQuoteNotFound
	}
	if err != nil {
		return domain.Quote{}, err
	}
	return quote, nil
}

// UpsertQuote сохраняет кандидата, целиком заменяя прежнюю запись сервера.
func (p *Postgres) UpsertQuote(ctx context.Context, quote domain.Quote) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO quotes (guild_id, channel_id, message_id, reaction_count, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (guild_id) DO UPDATE SET channel_id = EXCLUDED.channel_id,
	message_id = EXCLUDED.message_id,
	reaction_count = EXCLUDED.reaction_count,
	created_at = EXCLUDED.created_at
`, quote.GuildID, quote.ChannelID, quote.MessageID, quote.ReactionCount, quote.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "quotes_upsert", "quotes", start, err)
	return err
}

// UpdateReactionCount обновляет счётчик у записи конкретного сообщения.
func (p *Postgres) UpdateReactionCount(ctx context.Context, guildID, messageID string, count int) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE quotes SET reaction_count = $3 WHERE guild_id = $1 AND message_id = $2
`, guildID, messageID, count)
	metrics.ObserveNetworkRequest("postgres", "quotes_update_count", "quotes", start, err)
	return err
}

// DeleteQuote удаляет кандидата сервера.
func (p *Postgres) DeleteQuote(ctx context.Context, guildID string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM quotes WHERE guild_id = $1`, guildID)
	metrics.ObserveNetworkRequest("postgres", "quotes_delete", "quotes", start, err)
	return err
}

// DeleteQuoteIfMessage удаляет кандидата, только если он ссылается на
// указанное сообщение.
func (p *Postgres) DeleteQuoteIfMessage(ctx context.Context, guildID, messageID string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
DELETE FROM quotes WHERE guild_id = $1 AND message_id = $2
`, guildID, messageID)
	metrics.ObserveNetworkRequest("postgres", "quotes_delete_if_message", "quotes", start, err)
	return err
}
