package discord

import (
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"

	"github.com/john/gmodrelay/internal/status"
)

var commands = []*discordgo.ApplicationCommand{
	{
		Name:        "ping",
		Description: "Ping test!",
	},
	{
		Name:        "status",
		Description: "Gets the current state of the server (players, round information, etc)",
	},
}

// registerCommands registers the slash commands in every guild the bot is in.
func (c *Connector) registerCommands(s *discordgo.Session, r *discordgo.Ready) error {
	for _, guild := range r.Guilds {
		if _, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, guild.ID, commands); err != nil {
			return fmt.Errorf("register commands in guild %s: %w", guild.ID, err)
		}
	}
	return nil
}

func (c *Connector) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" || i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	var err error
	switch i.ApplicationCommandData().Name {
	case "ping":
		err = c.respondPing(s, i)
	case "status":
		err = c.respondStatus(s, i)
	default:
		return
	}
	if err != nil {
		log.Printf("Error responding to /%s: %v", i.ApplicationCommandData().Name, err)
	}
}

func (c *Connector) respondPing(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: fmt.Sprintf("📡 %dms", s.HeartbeatLatency().Milliseconds()),
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

func (c *Connector) respondStatus(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	snapshot, ok := c.statuses.Get()
	if !ok {
		return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: "The server has not reported its status yet.",
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		})
	}

	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: status.Format(snapshot),
		},
	})
}
