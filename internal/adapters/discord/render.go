package discord

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"

	"discord-qotd-bot/internal/domain"
)

const embedColorBlue = 0x3498db

var imageRegex = regexp.MustCompile(`(?i)(https?://[^\s]+\.(?:png|jpg|jpeg|gif|webp)(?:\?[^\s]*)?)`)

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif"}

// renderQuoteEmbed собирает embed цитаты дня: текст, ссылка на исходное
// сообщение, автор, разбивка реакций по убыванию и картинка, если она есть.
func renderQuoteEmbed(msg domain.Message) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       "Quote of the day",
		Description: fmt.Sprintf("%s\n[Jump to message](%s)", msg.Content, msg.JumpURL()),
		Color:       embedColorBlue,
	}

	tallies := append([]domain.ReactionTally(nil), msg.Reactions...)
	sort.SliceStable(tallies, func(i, j int) bool { return tallies[i].Count > tallies[j].Count })
	for _, tally := range tallies {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   tally.Emoji,
			Value:  fmt.Sprintf("%d", tally.Count),
			Inline: true,
		})
	}

	embed.Author = &discordgo.MessageEmbedAuthor{
		Name:    msg.AuthorName,
		IconURL: msg.AuthorAvatarURL,
	}

	if url := pickImageURL(msg); url != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: url}
	}
	return embed
}

// pickImageURL выбирает картинку: сперва вложение, затем ссылка в тексте.
func pickImageURL(msg domain.Message) string {
	if len(msg.Attachments) > 0 {
		name := strings.ToLower(msg.Attachments[0].Filename)
		for _, ext := range imageExtensions {
			if strings.HasSuffix(name, ext) {
				return msg.Attachments[0].URL
			}
		}
	}
	if match := imageRegex.FindString(msg.Content); match != "" {
		return match
	}
	return ""
}
