package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/VladKvetkin/keyflow/internal/notifier"
	tele "gopkg.in/telebot.v3"
)

// Sender delivers notifier messages as Telegram chat messages.
type Sender struct {
	bot *tele.Bot
}

func NewSender(bot *tele.Bot) *Sender {
	return &Sender{bot: bot}
}

func (s *Sender) Notify(ctx context.Context, recipientID int64, message notifier.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := s.bot.Send(tele.ChatID(recipientID), message.Text, options(message)...); err != nil {
		return sendError(err)
	}

	return nil
}

func sendError(err error) error {
	switch {
	case errors.Is(err, tele.ErrBlockedByUser),
		errors.Is(err, tele.ErrUserIsDeactivated),
		errors.Is(err, tele.ErrChatNotFound),
		errors.Is(err, tele.ErrNotStartedByUser):
		return fmt.Errorf("%w: %v", notifier.ErrUnreachable, err)
	default:
		return fmt.Errorf("error send telegram message: %w", err)
	}
}

// Markup turns button rows into an inline keyboard. Action buttons are routed
// back to the bot by their action name with the arguments as callback data.
func Markup(buttons [][]notifier.Button) *tele.ReplyMarkup {
	if len(buttons) == 0 {
		return nil
	}

	markup := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(buttons))

	for _, line := range buttons {
		row := make(tele.Row, 0, len(line))

		for _, button := range line {
			switch {
			case button.WebApp != "":
				row = append(row, markup.WebApp(button.Text, &tele.WebApp{URL: button.WebApp}))
			case button.URL != "":
				row = append(row, markup.URL(button.Text, button.URL))
			default:
				row = append(row, markup.Data(button.Text, button.Action, button.Args...))
			}
		}

		rows = append(rows, row)
	}

	markup.Inline(rows...)

	return markup
}
