package domain

import "context"

//go:generate mockgen -source=sender.go -destination=../mocks/mock_sender.go -package=mocks

// SMSSender delivers a text message to a phone number.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// EmailSender delivers an HTML email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, htmlBody string) error
}
