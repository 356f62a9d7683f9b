package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"discord-qotd-bot/internal/domain"
	"discord-qotd-bot/internal/infra/clock"
	"discord-qotd-bot/internal/infra/metrics"
)

// PublishFunc вызывается при срабатывании задания планировщика.
type PublishFunc func(ctx context.Context, guildID, channelID string)

type job struct {
	id        string
	guildID   string
	channelID string
	kind      domain.TriggerKind
	fireAt    time.Time
	stop      chan struct{}
}

// Registry хранит задания планировщика: одно ежедневное на сервер
// плюс разовые отладочные. Повторная регистрация по ключу сервера
// атомарно заменяет прежнее задание.
type Registry struct {
	local       *clock.Local
	publish     PublishFunc
	log         zerolog.Logger
	hour        int
	minute      int
	fireTimeout time.Duration

	mu      sync.Mutex
	daily   map[string]*job
	oneOff  map[string]*job
	started bool
}

// NewRegistry создаёт реестр заданий. hour и minute — локальное время
// ежедневной публикации, общее для всех серверов.
func NewRegistry(local *clock.Local, hour, minute int, fireTimeout time.Duration, publish PublishFunc, log zerolog.Logger) *Registry {
	return &Registry{
		local:       local,
		publish:     publish,
		log:         log,
		hour:        hour,
		minute:      minute,
		fireTimeout: fireTimeout,
		daily:       make(map[string]*job),
		oneOff:      make(map[string]*job),
	}
}

// RegisterDaily регистрирует ежедневное задание сервера, заменяя прежнее.
// Старое задание останавливается до запуска нового, чтобы заменённое
// расписание не стреляло в прежний канал.
func (r *Registry) RegisterDaily(guildID, channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.daily[guildID]; ok {
		r.stopLocked(old)
	}
	j := &job{
		id:        guildID,
		guildID:   guildID,
		channelID: channelID,
		kind:      domain.TriggerDaily,
	}
	r.daily[guildID] = j
	if r.started {
		r.spawnLocked(j)
	}
}

// RegisterOneOff регистрирует разовое задание и возвращает его идентификатор.
// Задание удаляется из реестра после срабатывания.
func (r *Registry) RegisterOneOff(guildID, channelID string, fireAt time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	j := &job{
		id:        uuid.NewString(),
		guildID:   guildID,
		channelID: channelID,
		kind:      domain.TriggerOneOff,
		fireAt:    fireAt,
	}
	r.oneOff[j.id] = j
	if r.started {
		r.spawnLocked(j)
	}
	return j.id
}

// Cancel снимает ежедневное задание сервера.
func (r *Registry) Cancel(guildID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.daily[guildID]; ok {
		r.stopLocked(old)
		delete(r.daily, guildID)
	}
}

// Start запускает все зарегистрированные задания. Повторный вызов — no-op.
func (r *Registry) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return
	}
	r.started = true
	for _, j := range r.daily {
		r.spawnLocked(j)
	}
	for _, j := range r.oneOff {
		r.spawnLocked(j)
	}
	r.log.Info().Int("daily", len(r.daily)).Msg("scheduler: запущен")
}

// Stop останавливает все задания. Повторный вызов — no-op.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return
	}
	r.started = false
	for _, j := range r.daily {
		r.stopLocked(j)
	}
	for _, j := range r.oneOff {
		r.stopLocked(j)
	}
	r.log.Info().Msg("scheduler: остановлен")
}

// Jobs возвращает снимок активных заданий.
func (r *Registry) Jobs() []domain.ScheduledJob {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs := make([]domain.ScheduledJob, 0, len(r.daily)+len(r.oneOff))
	for _, j := range r.daily {
		jobs = append(jobs, domain.ScheduledJob{ID: j.id, GuildID: j.guildID, ChannelID: j.channelID, Kind: j.kind})
	}
	for _, j := range r.oneOff {
		jobs = append(jobs, domain.ScheduledJob{ID: j.id, GuildID: j.guildID, ChannelID: j.channelID, Kind: j.kind, FireAt: j.fireAt})
	}
	return jobs
}

func (r *Registry) spawnLocked(j *job) {
	stop := make(chan struct{})
	j.stop = stop
	switch j.kind {
	case domain.TriggerOneOff:
		go r.runOneOff(j, stop)
	default:
		go r.runDaily(j, stop)
	}
}

func (r *Registry) stopLocked(j *job) {
	if j.stop != nil {
		close(j.stop)
		j.stop = nil
	}
}

// runDaily ждёт ближайшего наступления локального времени публикации.
// Пропущенные за время простоя процесса моменты не навёрстываются:
// следующий расчёт всегда идёт от текущего времени.
func (r *Registry) runDaily(j *job, stop <-chan struct{}) {
	for {
		next := r.local.NextDaily(r.local.Now(), r.hour, r.minute)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
			r.fire(j)
		case <-stop:
			timer.Stop()
			return
		}
	}
}

func (r *Registry) runOneOff(j *job, stop <-chan struct{}) {
	timer := time.NewTimer(time.Until(j.fireAt))
	select {
	case <-timer.C:
		r.fire(j)
	case <-stop:
		timer.Stop()
	}
	r.mu.Lock()
	delete(r.oneOff, j.id)
	r.mu.Unlock()
}

// fire выполняет задание. Паника или ошибка одного сервера не должна
// останавливать задания остальных.
func (r *Registry) fire(j *job) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Str("guild", j.guildID).Msg("scheduler: паника в задании")
		}
	}()

	metrics.SchedulerFires.WithLabelValues(string(j.kind)).Inc()
	ctx, cancel := context.WithTimeout(context.Background(), r.fireTimeout)
	defer cancel()
	r.publish(ctx, j.guildID, j.channelID)
}
