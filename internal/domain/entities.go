package domain

import "time"

// Guild описывает сервер Discord, подключивший бота.
type Guild struct {
	ID             string
	ChannelID      string
	ThreadsEnabled bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Configured сообщает, задан ли канал для публикаций.
func (g Guild) Configured() bool {
	return g.ChannelID != ""
}

// Quote — кандидат на цитату дня: не более одной записи на сервер.
// CreatedAt — время создания исходного сообщения, не записи.
type Quote struct {
	GuildID       string
	ChannelID     string
	MessageID     string
	ReactionCount int
	CreatedAt     time.Time
}

// ReactionTally — счётчик одной эмодзи-реакции на сообщении.
type ReactionTally struct {
	Emoji string
	Count int
}

// Attachment описывает вложение сообщения.
type Attachment struct {
	Filename string
	URL      string
}

// Message — транспортно-независимое представление сообщения.
type Message struct {
	ID              string
	ChannelID       string
	GuildID         string
	AuthorID        string
	AuthorName      string
	AuthorAvatarURL string
	Content         string
	CreatedAt       time.Time
	Attachments     []Attachment
	Reactions       []ReactionTally
}

// JumpURL возвращает ссылку на исходное сообщение.
func (m Message) JumpURL() string {
	return "https://discord.com/channels/" + m.GuildID + "/" + m.ChannelID + "/" + m.ID
}

// MaxReactionCount возвращает максимум среди счётчиков отдельных эмодзи.
// Счётчики не суммируются: сравнивается самая популярная реакция.
func (m Message) MaxReactionCount() int {
	max := 0
	for _, r := range m.Reactions {
		if r.Count > max {
			max = r.Count
		}
	}
	return max
}

// TriggerKind — тип задания планировщика.
type TriggerKind string

const (
	// TriggerDaily — ежедневное задание на фиксированное локальное время.
	TriggerDaily TriggerKind = "daily"
	// TriggerOneOff — разовое задание, удаляющееся после срабатывания.
	TriggerOneOff TriggerKind = "one_off"
)

// ScheduledJob описывает активное задание планировщика.
type ScheduledJob struct {
	ID        string
	GuildID   string
	ChannelID string
	Kind      TriggerKind
	FireAt    time.Time
}
