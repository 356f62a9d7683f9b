package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"discord-qotd-bot/internal/domain"
	"discord-qotd-bot/internal/infra/clock"
	"discord-qotd-bot/internal/infra/metrics"
)

const (
	threadName   = "Discussion"
	dedupeKeyTTL = 48 * time.Hour
)

// errNothingPublished помечает срабатывание, не дошедшее до отправки.
// Защёлка дня в этом случае снимается: кандидат, появившийся позже в тот
// же день, всё ещё должен быть опубликован вручную или разовым заданием.
var errNothingPublished = errors.New("публиковать нечего")

// CandidateSource — трекер кандидатов с точки зрения публикации.
type CandidateSource interface {
	Current(ctx context.Context, guildID string) (domain.Quote, error)
	Consume(ctx context.Context, guildID string) error
	DropIfMessage(ctx context.Context, guildID, messageID string) error
}

// Service публикует цитату дня: по расписанию из хранилища кандидатов
// либо вручную для явно указанного сообщения.
type Service struct {
	guilds     domain.GuildRepo
	candidates CandidateSource
	transport  domain.Transport
	cache      domain.Cache
	local      *clock.Local
	log        zerolog.Logger
}

// NewService создаёт сервис публикации.
func NewService(guilds domain.GuildRepo, candidates CandidateSource, transport domain.Transport, cache domain.Cache, local *clock.Local, log zerolog.Logger) *Service {
	return &Service{
		guilds:     guilds,
		candidates: candidates,
		transport:  transport,
		cache:      cache,
		local:      local,
		log:        log,
	}
}

// PublishScheduled публикует кандидата сервера в указанный канал.
// Redis-защёлка на локальную дату не даёт разовому отладочному заданию
// и ежедневному сработать в один день дважды.
func (s *Service) PublishScheduled(ctx context.Context, guildID, channelID string) error {
	key := "qotd:published:" + guildID + ":" + s.local.Now().Format("2006-01-02")
	err := s.cache.Once(key, dedupeKeyTTL, func() error {
		return s.publishFromStore(ctx, guildID, channelID)
	})
	if errors.Is(err, errNothingPublished) {
		err = nil
	}
	metrics.IncPublish("scheduled", err)
	if err != nil {
		s.log.Error().Err(err).Str("guild", guildID).Msg("publish: публикация по расписанию не удалась")
	}
	return err
}

func (s *Service) publishFromStore(ctx context.Context, guildID, channelID string) error {
	quote, err := s.candidates.Current(ctx, guildID)
	if errors.Is(err, domain.ErrQuoteNotFound) {
		s.log.Info().Str("guild", guildID).Msg("publish: кандидата нет, публиковать нечего")
		return errNothingPublished
	}
	if err != nil {
		return fmt.Errorf("чтение кандидата: %w", err)
	}

	// Сообщение запрашивается вне серверного мьютекса: блокировка не
	// должна переживать сетевые вызовы.
	msg, err := s.transport.FetchMessage(ctx, quote.ChannelID, quote.MessageID)
	if errors.Is(err, domain.ErrMessageNotFound) {
		if dropErr := s.candidates.DropIfMessage(ctx, guildID, quote.MessageID); dropErr != nil {
			s.log.Error().Err(dropErr).Str("guild", guildID).Msg("publish: не удалось удалить устаревшего кандидата")
		}
		return errNothingPublished
	}
	if err != nil {
		return fmt.Errorf("получение сообщения: %w", err)
	}

	// Кандидат потребляется после попытки отправки независимо от её
	// исхода: публикация выполняется не более одного раза за срабатывание.
	defer func() {
		if consumeErr := s.candidates.Consume(ctx, guildID); consumeErr != nil {
			s.log.Error().Err(consumeErr).Str("guild", guildID).Msg("publish: не удалось потребить кандидата")
		}
	}()

	if _, err := s.deliver(ctx, guildID, channelID, msg); err != nil {
		return err
	}
	return nil
}

// PublishMessage публикует явно указанное сообщение, минуя хранилище кандидатов.
func (s *Service) PublishMessage(ctx context.Context, channelID string, msg domain.Message) error {
	_, err := s.deliver(ctx, msg.GuildID, channelID, msg)
	metrics.IncPublish("manual", err)
	return err
}

// deliver отправляет оформленную цитату и при включённых тредах
// открывает обсуждение. Неудача с тредом не считается ошибкой публикации.
func (s *Service) deliver(ctx context.Context, guildID, channelID string, msg domain.Message) (string, error) {
	sentID, err := s.transport.SendQuote(ctx, channelID, msg)
	if err != nil {
		return "", fmt.Errorf("отправка цитаты: %w", err)
	}

	guild, err := s.guilds.GetGuild(ctx, guildID)
	if err != nil {
		if !errors.Is(err, domain.ErrGuildNotFound) {
			s.log.Error().Err(err).Str("guild", guildID).Msg("publish: не удалось прочитать настройки сервера")
		}
		return sentID, nil
	}
	if guild.ThreadsEnabled {
		if err := s.transport.OpenThread(ctx, channelID, sentID, threadName); err != nil {
			s.log.Warn().Err(err).Str("guild", guildID).Msg("publish: не удалось открыть тред")
		}
	}
	return sentID, nil
}
