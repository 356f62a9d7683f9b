package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"discord-qotd-bot/internal/domain"
	"discord-qotd-bot/internal/usecase/guildcfg"
	"discord-qotd-bot/internal/usecase/publish"
	"discord-qotd-bot/internal/usecase/tracker"
)

const commandTimeout = 30 * time.Second

// OneOffScheduler — реестр заданий с точки зрения отладочной команды.
type OneOffScheduler interface {
	RegisterOneOff(guildID, channelID string, fireAt time.Time) string
}

// Commands обслуживает slash-команды администраторов.
type Commands struct {
	client     *Client
	cfg        *guildcfg.Service
	publisher  *publish.Service
	candidates *tracker.Service
	scheduler  OneOffScheduler
	log        zerolog.Logger
}

// NewCommands создаёт обработчик команд.
func NewCommands(client *Client, cfg *guildcfg.Service, publisher *publish.Service, candidates *tracker.Service, scheduler OneOffScheduler, log zerolog.Logger) *Commands {
	return &Commands{
		client:     client,
		cfg:        cfg,
		publisher:  publisher,
		candidates: candidates,
		scheduler:  scheduler,
		log:        log,
	}
}

var commandDefinitions = []*discordgo.ApplicationCommand{
	{
		Name:        "setup",
		Description: "Set channel to post quotes in",
		Options: []*discordgo.ApplicationCommandOption{{
			Type:         discordgo.ApplicationCommandOptionChannel,
			Name:         "channel",
			Description:  "Channel for daily quotes",
			ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
			Required:     true,
		}},
	},
	{
		Name:        "toggle_threads",
		Description: "Toggle threads",
		Options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionBoolean,
			Name:        "toggle",
			Description: "Open a discussion thread under each quote",
			Required:    true,
		}},
	},
	{
		Name:        "quote",
		Description: "Quote a message",
		Options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "message_id",
			Description: "Message to quote",
			Required:    true,
		}},
	},
	{
		Name:        "force_quote",
		Description: "Force scheduled quote",
	},
	{
		Name:        "next_quote",
		Description: "See next quote",
	},
	{
		Name:        "debug_schedule",
		Description: "Schedule quote",
		Options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "seconds",
			Description: "Delay before the one-off post",
			Required:    true,
		}},
	},
}

// Sync перезаписывает дерево команд приложения. Ошибка фатальна для
// запуска: без зарегистрированных команд бот бесполезен.
func (c *Commands) Sync(session *discordgo.Session, appID string) error {
	if _, err := session.ApplicationCommandBulkOverwrite(appID, "", commandDefinitions); err != nil {
		return fmt.Errorf("синхронизация команд: %w", err)
	}
	return nil
}

// Register подписывает диспетчер команд на сессию.
func (c *Commands) Register(session *discordgo.Session) {
	session.AddHandler(c.onInteraction)
}

func (c *Commands) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch i.ApplicationCommandData().Name {
	case "setup":
		c.handleSetup(ctx, s, i)
	case "toggle_threads":
		c.handleToggleThreads(ctx, s, i)
	case "quote":
		c.handleQuote(ctx, s, i)
	case "force_quote":
		c.handleForceQuote(ctx, s, i)
	case "next_quote":
		c.handleNextQuote(ctx, s, i)
	case "debug_schedule":
		c.handleDebugSchedule(ctx, s, i)
	}
}

func (c *Commands) handleSetup(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !c.requireAdmin(s, i) {
		return
	}
	opts := i.ApplicationCommandData().Options
	if len(opts) == 0 {
		c.replyEphemeral(s, i, "Invalid channel")
		return
	}
	channel := opts[0].ChannelValue(s)
	if channel == nil || channel.Type != discordgo.ChannelTypeGuildText {
		c.replyEphemeral(s, i, "Invalid channel")
		return
	}
	if channel.GuildID != i.GuildID {
		c.replyEphemeral(s, i, "Channel must be in the same server as the bot")
		return
	}
	if !c.botCanSend(s, channel.ID) {
		c.replyEphemeral(s, i, "I don't have permission to send messages in that channel")
		return
	}

	if _, err := c.cfg.Setup(ctx, i.GuildID, channel.ID); err != nil {
		c.log.Error().Err(err).Str("guild", i.GuildID).Msg("commands: setup не удался")
		c.replyEphemeral(s, i, "Failed to save settings")
		return
	}
	c.reply(s, i, fmt.Sprintf("Set channel to <#%s>", channel.ID))
}

func (c *Commands) handleToggleThreads(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !c.requireAdmin(s, i) {
		return
	}
	opts := i.ApplicationCommandData().Options
	if len(opts) == 0 {
		return
	}
	toggle := opts[0].BoolValue()

	err := c.cfg.ToggleThreads(ctx, i.GuildID, toggle)
	if errors.Is(err, guildcfg.ErrNotConfigured) {
		c.replyEphemeral(s, i, "Channel not set")
		return
	}
	if err != nil {
		c.log.Error().Err(err).Str("guild", i.GuildID).Msg("commands: toggle_threads не удался")
		c.replyEphemeral(s, i, "Failed to save settings")
		return
	}
	c.reply(s, i, fmt.Sprintf("Threads set to %t", toggle))
}

func (c *Commands) handleQuote(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !c.requireAdmin(s, i) {
		return
	}
	opts := i.ApplicationCommandData().Options
	if len(opts) == 0 {
		c.replyEphemeral(s, i, "Message not found")
		return
	}
	messageID := opts[0].StringValue()

	guild, ok := c.requireConfigured(ctx, s, i)
	if !ok {
		return
	}
	if !c.botCanSend(s, guild.ChannelID) {
		c.replyEphemeral(s, i, "I don't have permission to send messages in that channel")
		return
	}

	msg, err := c.client.FetchMessage(ctx, i.ChannelID, messageID)
	if err != nil {
		c.replyEphemeral(s, i, "Message not found")
		return
	}

	c.deferReply(s, i)
	if err := c.publisher.PublishMessage(ctx, guild.ChannelID, msg); err != nil {
		c.followup(s, i, "Failed to quote message")
		return
	}
	c.followup(s, i, "Quoted message")
}

func (c *Commands) handleForceQuote(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !c.requireAdmin(s, i) {
		return
	}
	guild, ok := c.requireConfigured(ctx, s, i)
	if !ok {
		return
	}

	c.deferReply(s, i)
	if err := c.publisher.PublishScheduled(ctx, guild.ID, guild.ChannelID); err != nil {
		c.followup(s, i, "Failed to post quote")
		return
	}
	c.followup(s, i, "Forced quote")
}

func (c *Commands) handleNextQuote(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	quote, err := c.candidates.Current(ctx, i.GuildID)
	if errors.Is(err, domain.ErrQuoteNotFound) {
		c.replyEphemeral(s, i, "No quotes found")
		return
	}
	if err != nil {
		c.log.Error().Err(err).Str("guild", i.GuildID).Msg("commands: next_quote не удался")
		c.replyEphemeral(s, i, "No quotes found")
		return
	}

	msg, err := c.client.FetchMessage(ctx, quote.ChannelID, quote.MessageID)
	if err != nil {
		c.replyEphemeral(s, i, "Message not found for this quote")
		return
	}

	// Предпросмотр не потребляет кандидата: публикация идёт ручным путём.
	c.deferReply(s, i)
	if err := c.publisher.PublishMessage(ctx, quote.ChannelID, msg); err != nil {
		c.followup(s, i, "Failed to post quote")
		return
	}
	c.followup(s, i, "Next quote posted")
}

func (c *Commands) handleDebugSchedule(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !c.requireAdmin(s, i) {
		return
	}
	opts := i.ApplicationCommandData().Options
	if len(opts) == 0 {
		return
	}
	seconds := opts[0].IntValue()

	guild, ok := c.requireConfigured(ctx, s, i)
	if !ok {
		return
	}
	c.scheduler.RegisterOneOff(guild.ID, guild.ChannelID, time.Now().Add(time.Duration(seconds)*time.Second))
	c.reply(s, i, "Scheduled quote")
}

func (c *Commands) requireAdmin(s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	if i.Member == nil || i.Member.Permissions&discordgo.PermissionAdministrator == 0 {
		c.replyEphemeral(s, i, "You need to be an administrator to run this command")
		return false
	}
	return true
}

func (c *Commands) requireConfigured(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) (domain.Guild, bool) {
	guild, err := c.cfg.Get(ctx, i.GuildID)
	if errors.Is(err, guildcfg.ErrNotConfigured) {
		c.replyEphemeral(s, i, "Channel not set")
		return domain.Guild{}, false
	}
	if err != nil {
		c.log.Error().Err(err).Str("guild", i.GuildID).Msg("commands: не удалось прочитать настройки сервера")
		c.replyEphemeral(s, i, "Channel not set")
		return domain.Guild{}, false
	}
	return guild, true
}

func (c *Commands) botCanSend(s *discordgo.Session, channelID string) bool {
	if s.State == nil || s.State.User == nil {
		return false
	}
	perms, err := s.UserChannelPermissions(s.State.User.ID, channelID)
	if err != nil {
		return false
	}
	return perms&discordgo.PermissionSendMessages != 0
}

func (c *Commands) reply(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
	if err != nil {
		c.log.Error().Err(err).Msg("commands: не удалось ответить")
	}
}

func (c *Commands) replyEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content, Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		c.log.Error().Err(err).Msg("commands: не удалось ответить")
	}
}

func (c *Commands) deferReply(s *discordgo.Session, i *discordgo.InteractionCreate) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		c.log.Error().Err(err).Msg("commands: не удалось отложить ответ")
	}
}

func (c *Commands) followup(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if _, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{Content: content}); err != nil {
		c.log.Error().Err(err).Msg("commands: не удалось отправить followup")
	}
}
