package alert

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Notifier pushes operator-facing alerts, typically for orders that entered
// the Failed state and need a manual retry.
type Notifier interface {
	Notify(message string) error
}

type noop struct{}

// NewNoop returns a Notifier that drops every alert. Used when no alert
// channel is configured.
func NewNoop() Notifier {
	return noop{}
}

func (noop) Notify(string) error { return nil }

type discordNotifier struct {
	session   *discordgo.Session
	channelID string
}

// NewDiscord posts alerts to a discord channel using a bot token.
func NewDiscord(token, channelID string) (Notifier, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return &discordNotifier{
		session:   session,
		channelID: channelID,
	}, nil
}

func (d *discordNotifier) Notify(message string) error {
	_, err := d.session.ChannelMessageSend(d.channelID, message)
	return err
}
