package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"discord-qotd-bot/internal/domain"
	"discord-qotd-bot/internal/infra/clock"
)

type fireRecorder struct {
	mu    sync.Mutex
	calls []string
	done  chan struct{}
}

func newFireRecorder() *fireRecorder {
	return &fireRecorder{done: make(chan struct{}, 16)}
}

func (f *fireRecorder) publish(_ context.Context, guildID, channelID string) {
	f.mu.Lock()
	f.calls = append(f.calls, guildID+":"+channelID)
	f.mu.Unlock()
	f.done <- struct{}{}
}

func (f *fireRecorder) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newTestRegistry(t *testing.T, rec *fireRecorder) *Registry {
	t.Helper()
	local, err := clock.NewLocal("Australia/Sydney")
	if err != nil {
		t.Fatalf("не удалось создать часы: %v", err)
	}
	return NewRegistry(local, 21, 0, time.Second, rec.publish, zerolog.Nop())
}

func dailyJobs(jobs []domain.ScheduledJob) []domain.ScheduledJob {
	var daily []domain.ScheduledJob
	for _, j := range jobs {
		if j.Kind == domain.TriggerDaily {
			daily = append(daily, j)
		}
	}
	return daily
}

func TestRegisterDailyReplacesExisting(t *testing.T) {
	rec := newFireRecorder()
	registry := newTestRegistry(t, rec)

	registry.RegisterDaily("guild-1", "chan-old")
	registry.RegisterDaily("guild-1", "chan-new")

	daily := dailyJobs(registry.Jobs())
	if len(daily) != 1 {
		t.Fatalf("ожидали ровно одно ежедневное задание, получили %d", len(daily))
	}
	if daily[0].ChannelID != "chan-new" {
		t.Fatalf("задание должно указывать на новый канал, получили %s", daily[0].ChannelID)
	}
}

func TestCancelRemovesDailyJob(t *testing.T) {
	rec := newFireRecorder()
	registry := newTestRegistry(t, rec)

	registry.RegisterDaily("guild-1", "chan-1")
	registry.Cancel("guild-1")

	if len(dailyJobs(registry.Jobs())) != 0 {
		t.Fatalf("после Cancel заданий быть не должно")
	}
}

func TestOneOffFiresExactlyOnceAndSelfRemoves(t *testing.T) {
	rec := newFireRecorder()
	registry := newTestRegistry(t, rec)
	registry.Start()
	defer registry.Stop()

	registry.RegisterOneOff("guild-1", "chan-1", time.Now().Add(30*time.Millisecond))

	select {
	case <-rec.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("разовое задание не сработало")
	}

	// Задание не должно повториться и обязано убрать себя из реестра.
	select {
	case <-rec.done:
		t.Fatalf("разовое задание сработало повторно")
	case <-time.After(150 * time.Millisecond):
	}

	calls := rec.snapshot()
	if len(calls) != 1 || calls[0] != "guild-1:chan-1" {
		t.Fatalf("неожиданные вызовы публикации: %v", calls)
	}
	if len(registry.Jobs()) != 0 {
		t.Fatalf("разовое задание должно удаляться после срабатывания")
	}
}

func TestOneOffRegisteredBeforeStartFiresAfterStart(t *testing.T) {
	rec := newFireRecorder()
	registry := newTestRegistry(t, rec)

	registry.RegisterOneOff("guild-1", "chan-1", time.Now().Add(10*time.Millisecond))

	// До Start ничего не стреляет.
	select {
	case <-rec.done:
		t.Fatalf("задание не должно срабатывать до Start")
	case <-time.After(100 * time.Millisecond):
	}

	registry.Start()
	defer registry.Stop()

	select {
	case <-rec.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("задание не сработало после Start")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	rec := newFireRecorder()
	registry := newTestRegistry(t, rec)
	registry.RegisterDaily("guild-1", "chan-1")

	registry.Start()
	registry.Start()
	defer registry.Stop()

	if len(dailyJobs(registry.Jobs())) != 1 {
		t.Fatalf("повторный Start не должен дублировать задания")
	}
}

func TestStopPreventsFiring(t *testing.T) {
	rec := newFireRecorder()
	registry := newTestRegistry(t, rec)
	registry.Start()

	registry.RegisterOneOff("guild-1", "chan-1", time.Now().Add(100*time.Millisecond))
	registry.Stop()

	select {
	case <-rec.done:
		t.Fatalf("после Stop задания срабатывать не должны")
	case <-time.After(250 * time.Millisecond):
	}
}

func TestFireSurvivesPanic(t *testing.T) {
	local, err := clock.NewLocal("Australia/Sydney")
	if err != nil {
		t.Fatalf("не удалось создать часы: %v", err)
	}
	fired := make(chan struct{}, 2)
	registry := NewRegistry(local, 21, 0, time.Second, func(context.Context, string, string) {
		fired <- struct{}{}
		panic("боль")
	}, zerolog.Nop())
	registry.Start()
	defer registry.Stop()

	registry.RegisterOneOff("guild-1", "chan-1", time.Now().Add(10*time.Millisecond))
	registry.RegisterOneOff("guild-2", "chan-2", time.Now().Add(20*time.Millisecond))

	for i := 0; i < 2; i++ {
		select {
		case <-fired:
		case <-time.After(2 * time.Second):
			t.Fatalf("паника одного задания не должна мешать другим")
		}
	}
}
