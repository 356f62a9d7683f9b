package tracker

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"discord-qotd-bot/internal/domain"
	"discord-qotd-bot/internal/infra/clock"
	"discord-qotd-bot/internal/infra/metrics"
)

// Service — машина состояний кандидата на цитату дня. Решения
// читай-реши-запиши выполняются под мьютексом конкретного сервера,
// события разных серверов обрабатываются параллельно.
type Service struct {
	quotes domain.QuoteRepo
	local  *clock.Local
	log    zerolog.Logger
	selfID string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService создаёт трекер. selfID — идентификатор самого бота,
// его сообщения и реакции игнорируются.
func NewService(quotes domain.QuoteRepo, local *clock.Local, log zerolog.Logger, selfID string) *Service {
	return &Service{
		quotes: quotes,
		local:  local,
		log:    log,
		selfID: selfID,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (s *Service) guildLock(guildID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.locks[guildID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[guildID] = mu
	}
	return mu
}

// currentLocked возвращает кандидата с ленивой проверкой устаревания.
// Запись вчерашнего дня удаляется и считается отсутствующей.
// Вызывается только под мьютексом сервера.
func (s *Service) currentLocked(ctx context.Context, guildID string) (domain.Quote, error) {
	quote, err := s.quotes.GetQuote(ctx, guildID)
	if err != nil {
		return domain.Quote{}, err
	}
	if !s.local.IsToday(quote.CreatedAt) {
		if err := s.quotes.DeleteQuote(ctx, guildID); err != nil {
			return domain.Quote{}, err
		}
		return domain.Quote{}, domain.ErrQuoteNotFound
	}
	return quote, nil
}

// ReactionObserved обрабатывает добавление реакции к сообщению.
// Сообщения бота, пустые сообщения и сообщения не за сегодня игнорируются.
func (s *Service) ReactionObserved(ctx context.Context, msg domain.Message) {
	if msg.GuildID == "" || msg.ID == "" {
		return
	}
	if msg.AuthorID == s.selfID {
		return
	}
	if msg.Content == "" {
		return
	}
	if !s.local.IsToday(msg.CreatedAt) {
		return
	}

	count := msg.MaxReactionCount()

	mu := s.guildLock(msg.GuildID)
	mu.Lock()
	defer mu.Unlock()

	current, err := s.currentLocked(ctx, msg.GuildID)
	if err != nil && !errors.Is(err, domain.ErrQuoteNotFound) {
		s.log.Error().Err(err).Str("guild", msg.GuildID).Msg("tracker: не удалось прочитать кандидата")
		return
	}
	exists := err == nil

	if exists && current.MessageID == msg.ID {
		// Для текущего кандидата этот путь только растит счётчик,
		// снижение возможно лишь через ReactionWithdrawn.
		if count > current.ReactionCount {
			if err := s.quotes.UpdateReactionCount(ctx, msg.GuildID, msg.ID, count); err != nil {
				s.log.Error().Err(err).Str("guild", msg.GuildID).Msg("tracker: не удалось обновить счётчик")
			}
		}
		return
	}

	// Строго больше: при равенстве остаётся более ранний кандидат.
	if exists && count <= current.ReactionCount {
		return
	}

	quote := domain.Quote{
		GuildID:       msg.GuildID,
		ChannelID:     msg.ChannelID,
		MessageID:     msg.ID,
		ReactionCount: count,
		CreatedAt:     msg.CreatedAt,
	}
	if err := s.quotes.UpsertQuote(ctx, quote); err != nil {
		s.log.Error().Err(err).Str("guild", msg.GuildID).Msg("tracker: не удалось сохранить кандидата")
		return
	}
	metrics.QuoteCandidateSwaps.Inc()
}

// ReactionWithdrawn обрабатывает снятие реакции. Единственный путь,
// которому разрешено снижать счётчик, и только для текущего кандидата.
func (s *Service) ReactionWithdrawn(ctx context.Context, guildID, messageID string, newCount int) {
	if guildID == "" || messageID == "" {
		return
	}

	mu := s.guildLock(guildID)
	mu.Lock()
	defer mu.Unlock()

	current, err := s.currentLocked(ctx, guildID)
	if err != nil {
		if !errors.Is(err, domain.ErrQuoteNotFound) {
			s.log.Error().Err(err).Str("guild", guildID).Msg("tracker: не удалось прочитать кандидата")
		}
		return
	}
	if current.MessageID != messageID {
		return
	}
	if newCount >= current.ReactionCount {
		return
	}
	if newCount == 0 {
		if err := s.quotes.DeleteQuote(ctx, guildID); err != nil {
			s.log.Error().Err(err).Str("guild", guildID).Msg("tracker: не удалось удалить кандидата")
		}
		return
	}
	if err := s.quotes.UpdateReactionCount(ctx, guildID, messageID, newCount); err != nil {
		s.log.Error().Err(err).Str("guild", guildID).Msg("tracker: не удалось снизить счётчик")
	}
}

// MessageDeleted удаляет кандидата, если удалено именно его сообщение.
func (s *Service) MessageDeleted(ctx context.Context, guildID, messageID string) {
	if guildID == "" || messageID == "" {
		return
	}

	mu := s.guildLock(guildID)
	mu.Lock()
	defer mu.Unlock()

	if err := s.quotes.DeleteQuoteIfMessage(ctx, guildID, messageID); err != nil {
		s.log.Error().Err(err).Str("guild", guildID).Msg("tracker: не удалось удалить кандидата")
	}
}

// Current возвращает актуального кандидата, не потребляя его.
func (s *Service) Current(ctx context.Context, guildID string) (domain.Quote, error) {
	mu := s.guildLock(guildID)
	mu.Lock()
	defer mu.Unlock()
	return s.currentLocked(ctx, guildID)
}

// Consume удаляет кандидата после публикации.
func (s *Service) Consume(ctx context.Context, guildID string) error {
	mu := s.guildLock(guildID)
	mu.Lock()
	defer mu.Unlock()
	return s.quotes.DeleteQuote(ctx, guildID)
}

// DropIfMessage удаляет кандидата, ссылающегося на исчезнувшее сообщение.
func (s *Service) DropIfMessage(ctx context.Context, guildID, messageID string) error {
	mu := s.guildLock(guildID)
	mu.Lock()
	defer mu.Unlock()
	return s.quotes.DeleteQuoteIfMessage(ctx, guildID, messageID)
}
