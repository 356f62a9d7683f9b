package clock

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidTimezone возвращается, если указан некорректный часовой пояс.
var ErrInvalidTimezone = errors.New("invalid timezone")

// Clock отдаёт текущее время; в тестах подменяется на Fixed.
type Clock interface {
	Now() time.Time
}

// Local — часы с фиксированным часовым поясом. Все решения о границе
// суток принимаются через этот тип, для всех серверов пояс один.
type Local struct {
	loc   *time.Location
	clock Clock
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// NewLocal создаёт часы для указанного пояса.
func NewLocal(timezone string) (*Local, error) {
	name := strings.TrimSpace(timezone)
	if name == "" {
		return nil, ErrInvalidTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, ErrInvalidTimezone
	}
	return &Local{loc: loc, clock: systemClock{}}, nil
}

// NewLocalWithClock создаёт часы с подменяемым источником времени.
func NewLocalWithClock(timezone string, clk Clock) (*Local, error) {
	local, err := NewLocal(timezone)
	if err != nil {
		return nil, err
	}
	local.clock = clk
	return local, nil
}

// Now возвращает текущее время в локальном поясе.
func (l *Local) Now() time.Time {
	return l.clock.Now().In(l.loc)
}

// SameDay сообщает, приходятся ли оба момента на один локальный календарный день.
func (l *Local) SameDay(a, b time.Time) bool {
	ay, am, ad := a.In(l.loc).Date()
	by, bm, bd := b.In(l.loc).Date()
	return ay == by && am == bm && ad == bd
}

// IsToday сообщает, приходится ли момент на текущий локальный день.
func (l *Local) IsToday(t time.Time) bool {
	return l.SameDay(t, l.Now())
}

// NextDaily возвращает ближайшее будущее наступление локального времени
// hour:minute строго после after.
func (l *Local) NextDaily(after time.Time, hour, minute int) time.Time {
	local := after.In(l.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, l.loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Fixed — источник времени для тестов.
type Fixed struct {
	Current time.Time
}

// Now возвращает заданный момент.
func (f *Fixed) Now() time.Time { return f.Current }

// Advance сдвигает часы вперёд.
func (f *Fixed) Advance(d time.Duration) { f.Current = f.Current.Add(d) }
