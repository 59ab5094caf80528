package discord

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/john/gmodrelay/internal/message"
	"github.com/john/gmodrelay/internal/status"
)

// webhookName identifies the relay's webhook in the channel so it can be
// reused across restarts.
const webhookName = "GDR"

// webhookExecutor is the slice of the discordgo session the outbound send
// path needs.
type webhookExecutor interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Connector manages the Discord side of the bridge: it forwards channel
// messages into the relay and posts game chat back through a provisioned
// webhook.
type Connector struct {
	token     string
	channelID string
	statuses  *status.Store

	session *discordgo.Session
	exec    webhookExecutor

	mu      sync.RWMutex
	webhook *discordgo.Webhook // nil until provisioning completes

	readyErr chan error
}

// New creates a new Discord connector
func New(token, channelID string, statuses *status.Store) *Connector {
	return &Connector{
		token:     token,
		channelID: channelID,
		statuses:  statuses,
		readyErr:  make(chan error, 1),
	}
}

// Start connects to the Discord gateway, provisions the relay webhook and
// forwards channel messages to events until ctx is cancelled. It returns a
// provisioning failure as an error; the caller should treat that as fatal.
func (c *Connector) Start(ctx context.Context, events chan<- message.Event) error {
	session, err := discordgo.New("Bot " + c.token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildWebhooks |
		discordgo.IntentsMessageContent

	c.session = session
	c.exec = session

	session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		log.Printf("Connected to Discord as %s", r.User.Username)
		var result error
		if err := c.provision(s); err != nil {
			result = fmt.Errorf("provision webhook: %w", err)
		} else if err := c.registerCommands(s, r); err != nil {
			log.Printf("Warning: failed to register slash commands: %v", err)
		}
		// Ready fires again on gateway reconnects; only the first result
		// matters to Start.
		select {
		case c.readyErr <- result:
		default:
		}
	})

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		c.onMessageCreate(ctx, s, m, events)
	})

	session.AddHandler(c.onInteractionCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}

	// Wait for provisioning before declaring the connector healthy.
	select {
	case err := <-c.readyErr:
		if err != nil {
			session.Close()
			return err
		}
	case <-ctx.Done():
		session.Close()
		return ctx.Err()
	}

	<-ctx.Done()

	log.Println("Disconnecting from Discord...")
	if err := session.Close(); err != nil {
		log.Printf("Error closing Discord session: %v", err)
	}
	return ctx.Err()
}

// provision fetches the relay channel, verifies permissions and obtains the
// named webhook, creating it when absent.
func (c *Connector) provision(s *discordgo.Session) error {
	channel, err := s.Channel(c.channelID)
	if err != nil {
		return fmt.Errorf("fetch channel %s: %w", c.channelID, err)
	}
	if channel.Type != discordgo.ChannelTypeGuildText {
		return fmt.Errorf("channel %s is not a guild text channel", c.channelID)
	}

	perms, err := s.UserChannelPermissions(s.State.User.ID, c.channelID)
	if err != nil {
		return fmt.Errorf("fetch channel permissions: %w", err)
	}
	for _, p := range []struct {
		bit  int64
		name string
	}{
		{discordgo.PermissionViewChannel, "View Channel"},
		{discordgo.PermissionManageWebhooks, "Manage Webhooks"},
		{discordgo.PermissionSendMessages, "Send Messages"},
	} {
		if perms&p.bit == 0 {
			return fmt.Errorf("missing %q permission on channel %s", p.name, channel.Name)
		}
	}

	hooks, err := s.ChannelWebhooks(c.channelID)
	if err != nil {
		return fmt.Errorf("list channel webhooks: %w", err)
	}
	var hook *discordgo.Webhook
	for _, h := range hooks {
		if h.Name == webhookName {
			hook = h
			break
		}
	}
	if hook == nil {
		log.Println("Relay webhook not found, creating a new one")
		hook, err = s.WebhookCreate(c.channelID, webhookName, "")
		if err != nil {
			return fmt.Errorf("create webhook: %w", err)
		}
	}

	c.mu.Lock()
	c.webhook = hook
	c.mu.Unlock()

	log.Printf("Relaying messages for channel: %s", channel.Name)
	return nil
}

// onMessageCreate forwards channel messages into the relay buffer.
func (c *Connector) onMessageCreate(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, events chan<- message.Event) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if m.ChannelID != c.channelID {
		return
	}

	ev := message.Event{
		Username: displayName(m),
		Content:  m.Content,
		MediaURL: mediaURL(m.Message),
	}

	log.Printf("[Chat] %s: %s", ev.Username, ev.Content)

	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

// SendWebhook posts a message to the relay channel under the given display
// name and avatar. Empty content is suppressed; sends before the webhook is
// provisioned are dropped.
func (c *Connector) SendWebhook(avatarURL, username, content string) {
	if content == "" {
		return
	}

	c.mu.RLock()
	hook := c.webhook
	c.mu.RUnlock()
	if hook == nil {
		log.Printf("Webhook not provisioned yet, dropping message from %s", username)
		return
	}

	_, err := c.exec.WebhookExecute(hook.ID, hook.Token, false, &discordgo.WebhookParams{
		Username:  username,
		Content:   content,
		AvatarURL: avatarURL,
	})
	if err != nil {
		log.Printf("Error sending webhook message from %s: %v", username, err)
	}
}

// displayName prefers the member nickname, falling back to the global and
// account names.
func displayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

// mediaURL returns the first attachment or sticker URL on a message.
func mediaURL(m *discordgo.Message) string {
	if len(m.Attachments) > 0 && m.Attachments[0] != nil {
		return m.Attachments[0].URL
	}
	if len(m.StickerItems) > 0 && m.StickerItems[0] != nil {
		return stickerURL(m.StickerItems[0].ID)
	}
	return ""
}

func stickerURL(id string) string {
	return fmt.Sprintf("https://media.discordapp.net/stickers/%s.png", id)
}
