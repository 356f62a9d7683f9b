package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"discord-qotd-bot/internal/domain"
	"discord-qotd-bot/internal/infra/clock"
)

const testTZ = "Australia/Sydney"

type memQuotes struct {
	mu     sync.Mutex
	quotes map[string]domain.Quote
}

func newMemQuotes() *memQuotes {
	return &memQuotes{quotes: make(map[string]domain.Quote)}
}

func (m *memQuotes) GetQuote(_ context.Context, guildID string) (domain.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	quote, ok := m.quotes[guildID]
	if !ok {
		return domain.Quote{}, domain.ErrQuoteNotFound
	}
	return quote, nil
}

func (m *memQuotes) UpsertQuote(_ context.Context, quote domain.Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[quote.GuildID] = quote
	return nil
}

func (m *memQuotes) UpdateReactionCount(_ context.Context, guildID, messageID string, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	quote, ok := m.quotes[guildID]
	if !ok || quote.MessageID != messageID {
		return nil
	}
	quote.ReactionCount = count
	m.quotes[guildID] = quote
	return nil
}

func (m *memQuotes) DeleteQuote(_ context.Context, guildID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.quotes, guildID)
	return nil
}

func (m *memQuotes) DeleteQuoteIfMessage(_ context.Context, guildID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if quote, ok := m.quotes[guildID]; ok && quote.MessageID == messageID {
		delete(m.quotes, guildID)
	}
	return nil
}

func newTestService(t *testing.T, now time.Time) (*Service, *memQuotes, *clock.Fixed) {
	t.Helper()
	fixed := &clock.Fixed{Current: now}
	local, err := clock.NewLocalWithClock(testTZ, fixed)
	if err != nil {
		t.Fatalf("не удалось создать часы: %v", err)
	}
	quotes := newMemQuotes()
	return NewService(quotes, local, zerolog.Nop(), "bot-self"), quotes, fixed
}

func testMessage(id string, count int, createdAt time.Time) domain.Message {
	return domain.Message{
		ID:        id,
		ChannelID: "chan-1",
		GuildID:   "guild-1",
		AuthorID:  "author-1",
		Content:   "привет",
		CreatedAt: createdAt,
		Reactions: []domain.ReactionTally{{Emoji: "👍", Count: count}},
	}
}

func TestReactionObservedCreatesCandidate(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, quotes, _ := newTestService(t, now)

	svc.ReactionObserved(context.Background(), testMessage("m1", 3, now))

	quote, ok := quotes.quotes["guild-1"]
	if !ok {
		t.Fatalf("ожидали сохранённого кандидата")
	}
	if quote.MessageID != "m1" || quote.ReactionCount != 3 {
		t.Fatalf("неожиданный кандидат: %+v", quote)
	}
}

func TestGreaterCountReplacesCandidate(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, quotes, _ := newTestService(t, now)
	ctx := context.Background()

	svc.ReactionObserved(ctx, testMessage("m1", 3, now))
	svc.ReactionObserved(ctx, testMessage("m2", 5, now))

	if quotes.quotes["guild-1"].MessageID != "m2" {
		t.Fatalf("ожидали замену кандидата на m2")
	}
	if quotes.quotes["guild-1"].ReactionCount != 5 {
		t.Fatalf("ожидали счётчик 5")
	}
}

func TestEqualCountKeepsIncumbent(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, quotes, _ := newTestService(t, now)
	ctx := context.Background()

	svc.ReactionObserved(ctx, testMessage("m1", 3, now))
	svc.ReactionObserved(ctx, testMessage("m2", 3, now))

	if quotes.quotes["guild-1"].MessageID != "m1" {
		t.Fatalf("при равном счёте должен оставаться более ранний кандидат")
	}
}

func TestLowerCountDoesNotReplace(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, quotes, _ := newTestService(t, now)
	ctx := context.Background()

	svc.ReactionObserved(ctx, testMessage("m1", 5, now))
	svc.ReactionObserved(ctx, testMessage("m2", 2, now))

	if quotes.quotes["guild-1"].MessageID != "m1" {
		t.Fatalf("кандидат с меньшим счётчиком не должен побеждать")
	}
}

func TestSameMessageGrowsButNeverShrinksOnObserve(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, quotes, _ := newTestService(t, now)
	ctx := context.Background()

	svc.ReactionObserved(ctx, testMessage("m1", 3, now))
	svc.ReactionObserved(ctx, testMessage("m1", 7, now))
	if quotes.quotes["guild-1"].ReactionCount != 7 {
		t.Fatalf("ожидали рост счётчика до 7")
	}

	svc.ReactionObserved(ctx, testMessage("m1", 2, now))
	if quotes.quotes["guild-1"].ReactionCount != 7 {
		t.Fatalf("путь добавления реакции не должен снижать счётчик")
	}
}

func TestMaxAcrossEmojiNotSum(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, quotes, _ := newTestService(t, now)

	msg := testMessage("m1", 4, now)
	msg.Reactions = []domain.ReactionTally{{Emoji: "👍", Count: 4}, {Emoji: "🔥", Count: 2}}
	svc.ReactionObserved(context.Background(), msg)

	if quotes.quotes["guild-1"].ReactionCount != 4 {
		t.Fatalf("счётчик должен быть максимумом по эмодзи, а не суммой")
	}
}

func TestIgnoresSelfEmptyAndNotToday(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, quotes, _ := newTestService(t, now)
	ctx := context.Background()

	self := testMessage("m1", 3, now)
	self.AuthorID = "bot-self"
	svc.ReactionObserved(ctx, self)

	empty := testMessage("m2", 3, now)
	empty.Content = ""
	svc.ReactionObserved(ctx, empty)

	yesterday := testMessage("m3", 3, now.Add(-24*time.Hour))
	svc.ReactionObserved(ctx, yesterday)

	if len(quotes.quotes) != 0 {
		t.Fatalf("ни одно из сообщений не должно было стать кандидатом")
	}
}

func TestWithdrawnOtherMessageIsNoop(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, quotes, _ := newTestService(t, now)
	ctx := context.Background()

	svc.ReactionObserved(ctx, testMessage("m1", 3, now))
	svc.ReactionWithdrawn(ctx, "guild-1", "other", 0)

	quote := quotes.quotes["guild-1"]
	if quote.MessageID != "m1" || quote.ReactionCount != 3 {
		t.Fatalf("снятие реакции с чужого сообщения не должно менять состояние")
	}
}

func TestWithdrawnLowersCount(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, quotes, _ := newTestService(t, now)
	ctx := context.Background()

	svc.ReactionObserved(ctx, testMessage("m1", 5, now))
	svc.ReactionWithdrawn(ctx, "guild-1", "m1", 4)

	if quotes.quotes["guild-1"].ReactionCount != 4 {
		t.Fatalf("ожидали снижение счётчика до 4")
	}
}

func TestWithdrawnToZeroDeletes(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, quotes, _ := newTestService(t, now)
	ctx := context.Background()

	svc.ReactionObserved(ctx, testMessage("m1", 1, now))
	svc.ReactionWithdrawn(ctx, "guild-1", "m1", 0)

	if len(quotes.quotes) != 0 {
		t.Fatalf("при нулевом счётчике кандидат должен удаляться")
	}
}

func TestMessageDeletedClearsCandidate(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, quotes, _ := newTestService(t, now)
	ctx := context.Background()

	svc.ReactionObserved(ctx, testMessage("m1", 3, now))
	svc.MessageDeleted(ctx, "guild-1", "other")
	if len(quotes.quotes) != 1 {
		t.Fatalf("удаление чужого сообщения не должно трогать кандидата")
	}

	svc.MessageDeleted(ctx, "guild-1", "m1")
	if len(quotes.quotes) != 0 {
		t.Fatalf("удаление сообщения кандидата должно очищать запись")
	}
}

func TestStaleCandidateTreatedAsAbsent(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, quotes, fixed := newTestService(t, now)
	ctx := context.Background()

	svc.ReactionObserved(ctx, testMessage("m1", 3, now))

	// Следующий локальный день: вчерашняя запись считается отсутствующей.
	fixed.Advance(24 * time.Hour)

	if _, err := svc.Current(ctx, "guild-1"); !errors.Is(err, domain.ErrQuoteNotFound) {
		t.Fatalf("ожидали ErrQuoteNotFound, получили %v", err)
	}
	if len(quotes.quotes) != 0 {
		t.Fatalf("устаревшая запись должна удаляться при чтении")
	}
}

func TestStaleCandidateReplacedByTodayMessage(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, quotes, fixed := newTestService(t, now)
	ctx := context.Background()

	svc.ReactionObserved(ctx, testMessage("m1", 10, now))
	fixed.Advance(24 * time.Hour)

	// Новое сообщение с меньшим счётчиком выигрывает: вчерашний
	// кандидат устарел и удаляется до сравнения.
	svc.ReactionObserved(ctx, testMessage("m2", 1, fixed.Current))

	quote := quotes.quotes["guild-1"]
	if quote.MessageID != "m2" || quote.ReactionCount != 1 {
		t.Fatalf("ожидали нового кандидата m2, получили %+v", quote)
	}
}

func TestConsumeRemovesCandidate(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, quotes, _ := newTestService(t, now)
	ctx := context.Background()

	svc.ReactionObserved(ctx, testMessage("m1", 3, now))
	if err := svc.Consume(ctx, "guild-1"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(quotes.quotes) != 0 {
		t.Fatalf("после потребления кандидат должен отсутствовать")
	}
}

func TestGuildsAreIndependent(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, quotes, _ := newTestService(t, now)
	ctx := context.Background()

	first := testMessage("m1", 3, now)
	second := testMessage("m2", 5, now)
	second.GuildID = "guild-2"
	svc.ReactionObserved(ctx, first)
	svc.ReactionObserved(ctx, second)

	if quotes.quotes["guild-1"].MessageID != "m1" || quotes.quotes["guild-2"].MessageID != "m2" {
		t.Fatalf("состояние серверов должно быть независимым")
	}
}
