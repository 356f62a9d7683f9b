package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"discord-qotd-bot/internal/adapters/discord"
	"discord-qotd-bot/internal/adapters/repo"
	"discord-qotd-bot/internal/infra/cache"
	"discord-qotd-bot/internal/infra/clock"
	"discord-qotd-bot/internal/infra/config"
	"discord-qotd-bot/internal/infra/db"
	"discord-qotd-bot/internal/infra/log"
	"discord-qotd-bot/internal/infra/metrics"
	"discord-qotd-bot/internal/usecase/guildcfg"
	"discord-qotd-bot/internal/usecase/publish"
	"discord-qotd-bot/internal/usecase/schedule"
	"discord-qotd-bot/internal/usecase/tracker"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	local, err := clock.NewLocal(cfg.TZ)
	if err != nil {
		logger.Fatal().Err(err).Str("tz", cfg.TZ).Msg("некорректный часовой пояс")
	}

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось подключиться к БД")
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	dedupe := cache.NewRedis(redisClient)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	repoAdapter := repo.NewPostgres(pool)

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать сессию Discord")
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentMessageContent

	self, err := session.User("@me")
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось получить учётную запись бота")
	}

	transport := discord.NewClient(session, logger)
	trackerService := tracker.NewService(repoAdapter, local, logger, self.ID)
	publisher := publish.NewService(repoAdapter, trackerService, transport, dedupe, local, logger)

	sendTimeout := time.Duration(cfg.Post.SendTimeout) * time.Second
	registry := schedule.NewRegistry(local, cfg.Post.Hour, cfg.Post.Minute, sendTimeout, func(ctx context.Context, guildID, channelID string) {
		_ = publisher.PublishScheduled(ctx, guildID, channelID)
	}, logger)
	cfgService := guildcfg.NewService(repoAdapter, registry)

	commands := discord.NewCommands(transport, cfgService, publisher, trackerService, registry, logger)
	// Без зарегистрированных команд бот бесполезен: ошибка фатальна.
	if err := commands.Sync(session, self.ID); err != nil {
		logger.Fatal().Err(err).Msg("не удалось синхронизировать команды")
	}

	// Обработчики подписываются до открытия шлюза, чтобы не терять
	// события, пришедшие сразу после подключения.
	commands.Register(session)
	discord.NewGateway(transport, trackerService, logger).Register(session)

	if err := session.Open(); err != nil {
		logger.Fatal().Err(err).Msg("не удалось открыть шлюз Discord")
	}
	defer session.Close()
	logger.Info().Str("user", self.Username).Msg("бот авторизован")

	startCtx, startCancel := context.WithTimeout(context.Background(), 10*time.Second)
	restored, err := cfgService.RestoreSchedules(startCtx)
	startCancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось восстановить расписания")
	}
	logger.Info().Int("guilds", restored).Msg("расписания восстановлены")

	registry.Start()
	defer registry.Stop()

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: r}
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("сервисный HTTP запущен")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Info().Msg("остановка бота")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
