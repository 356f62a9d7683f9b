package guildcfg

import (
	"context"
	"errors"
	"fmt"

	"discord-qotd-bot/internal/domain"
)

// ErrNotConfigured возвращается, если для сервера не задан канал публикаций.
var ErrNotConfigured = errors.New("канал публикаций не настроен")

// Scheduler — реестр заданий с точки зрения настройки серверов.
type Scheduler interface {
	RegisterDaily(guildID, channelID string)
	Cancel(guildID string)
}

// Service управляет настройками серверов и их расписаниями.
type Service struct {
	guilds    domain.GuildRepo
	scheduler Scheduler
}

// NewService создаёт сервис настройки.
func NewService(guilds domain.GuildRepo, scheduler Scheduler) *Service {
	return &Service{guilds: guilds, scheduler: scheduler}
}

// Setup задаёт канал публикаций и перерегистрирует ежедневное задание.
// Повторный вызов заменяет прежнее расписание, дубликата не остаётся.
func (s *Service) Setup(ctx context.Context, guildID, channelID string) (domain.Guild, error) {
	guild, err := s.guilds.UpsertGuild(ctx, guildID, channelID)
	if err != nil {
		return domain.Guild{}, fmt.Errorf("сохранение сервера: %w", err)
	}
	s.scheduler.RegisterDaily(guild.ID, guild.ChannelID)
	return guild, nil
}

// ToggleThreads включает или выключает открытие тредов. Требует
// предварительной настройки канала.
func (s *Service) ToggleThreads(ctx context.Context, guildID string, enabled bool) error {
	if _, err := s.Get(ctx, guildID); err != nil {
		return err
	}
	if err := s.guilds.SetThreads(ctx, guildID, enabled); err != nil {
		return fmt.Errorf("переключение тредов: %w", err)
	}
	return nil
}

// Get возвращает настройки сервера.
func (s *Service) Get(ctx context.Context, guildID string) (domain.Guild, error) {
	guild, err := s.guilds.GetGuild(ctx, guildID)
	if errors.Is(err, domain.ErrGuildNotFound) {
		return domain.Guild{}, ErrNotConfigured
	}
	if err != nil {
		return domain.Guild{}, fmt.Errorf("получение сервера: %w", err)
	}
	if !guild.Configured() {
		return domain.Guild{}, ErrNotConfigured
	}
	return guild, nil
}

// Remove удаляет настройки сервера и снимает его расписание.
func (s *Service) Remove(ctx context.Context, guildID string) error {
	if err := s.guilds.DeleteGuild(ctx, guildID); err != nil {
		return fmt.Errorf("удаление сервера: %w", err)
	}
	s.scheduler.Cancel(guildID)
	return nil
}

// RestoreSchedules восстанавливает ежедневные задания всех настроенных
// серверов при старте процесса.
func (s *Service) RestoreSchedules(ctx context.Context) (int, error) {
	guilds, err := s.guilds.ListConfigured(ctx)
	if err != nil {
		return 0, fmt.Errorf("список серверов: %w", err)
	}
	for _, guild := range guilds {
		s.scheduler.RegisterDaily(guild.ID, guild.ChannelID)
	}
	return len(guilds), nil
}
