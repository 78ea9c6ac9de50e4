package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

var errNoRecipientEmail = errors.New("recipient has no email address")

// EmailChannel mails notifications through SendGrid.
type EmailChannel struct {
	client *sendgrid.Client
	from   *mail.Email
}

// NewEmailChannel returns nil when apiKey is empty.
func NewEmailChannel(apiKey, from string) *EmailChannel {
	if apiKey == "" || from == "" {
		return nil
	}
	return &EmailChannel{
		client: sendgrid.NewSendClient(apiKey),
		from:   mail.NewEmail("Ticket Desk", from),
	}
}

func (e *EmailChannel) Name() string { return "email" }

func (e *EmailChannel) Send(ctx context.Context, msg Message) error {
	if msg.RecipientEmail == "" {
		return errNoRecipientEmail
	}
	email := BuildEmail(e.from, msg)
	resp, err := e.client.SendWithContext(ctx, email)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// BuildEmail renders msg as a plain-text SendGrid message.
func BuildEmail(from *mail.Email, msg Message) *mail.SGMailV3 {
	to := mail.NewEmail(msg.RecipientName, msg.RecipientEmail)
	body := msg.Notification.Message
	if msg.Notification.TicketID != nil {
		body = fmt.Sprintf("%s\n\nTicket: %s", body, *msg.Notification.TicketID)
	}
	return mail.NewV3MailInit(from, msg.Notification.Title, to, mail.NewContent("text/plain", body))
}
