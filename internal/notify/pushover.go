package notify

import (
	"context"

	"github.com/gregdel/pushover"
	"github.com/rs/zerolog/log"
)

type messageSender interface {
	SendMessage(message *pushover.Message, recipient *pushover.Recipient) (*pushover.Response, error)
}

// Pushover sends a push message when a timer finishes. Countdown updates
// are not forwarded.
type Pushover struct {
	app       messageSender
	recipient *pushover.Recipient
}

// NewPushover creates a Pushover sink.
func NewPushover(token, recipient string) *Pushover {
	return &Pushover{
		app:       pushover.New(token),
		recipient: pushover.NewRecipient(recipient),
	}
}

func (p *Pushover) Name() string { return "pushover" }

// Post sends the completed notification in the background.
func (p *Pushover) Post(ctx context.Context, d Descriptor) error {
	if d.Ongoing {
		return nil
	}
	message := &pushover.Message{
		Message:  d.Body,
		Title:    d.Title,
		Priority: pushover.PriorityNormal,
	}
	go func() {
		if _, err := p.app.SendMessage(message, p.recipient); err != nil {
			log.Error().Err(err).Msg("notify: pushover send failed")
			return
		}
		log.Debug().Str("title", message.Title).Msg("notify: pushover sent")
	}()
	return nil
}

func (p *Pushover) Cancel(ctx context.Context, id int) error {
	return nil
}
