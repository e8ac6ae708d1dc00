package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/finagent/identity/pkg/logger"
)

// EmailService defines the interface for sending security notifications
type EmailService interface {
	SendLockoutAlert(ctx context.Context, email, username string, lockedUntil time.Time) error
	SendPasswordChangedNotice(ctx context.Context, email, username string) error
}

// AWSSESEmailService sends security notifications using AWS SES
type AWSSESEmailService struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(region, fromAddress string, log *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      log,
	}, nil
}

// SendLockoutAlert notifies the account owner that repeated failed logins
// locked the account.
func (s *AWSSESEmailService) SendLockoutAlert(ctx context.Context, email, username string, lockedUntil time.Time) error {
	until := lockedUntil.UTC().Format(time.RFC1123)

	textBody := fmt.Sprintf(`Hello %s,

Your account has been temporarily locked after several failed sign-in attempts.

The lock will lift automatically at %s. You do not need to take any action to sign in after that.

If these attempts were not made by you, we recommend changing your password once the lock lifts.

This is an automated message. Please do not reply to this email.
`, username, until)

	return s.send(ctx, email, "Your account has been temporarily locked", textBody)
}

// SendPasswordChangedNotice notifies the account owner that the password was
// changed and all existing sessions were signed out.
func (s *AWSSESEmailService) SendPasswordChangedNotice(ctx context.Context, email, username string) error {
	textBody := fmt.Sprintf(`Hello %s,

The password for your account was just changed. All existing sessions have been signed out.

If you made this change, no further action is needed.

If you did not change your password, contact support immediately.

This is an automated message. Please do not reply to this email.
`, username)

	return s.send(ctx, email, "Your password was changed", textBody)
}

func (s *AWSSESEmailService) send(ctx context.Context, email, subject, textBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email via SES",
			slog.String("email", logger.SanitizedEmail(email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("security notification sent",
		slog.String("email", logger.SanitizedEmail(email)),
		slog.String("message_id", *result.MessageId))

	return nil
}

// NoopEmailService discards all notifications. Used when email delivery is
// disabled in configuration.
type NoopEmailService struct{}

func (NoopEmailService) SendLockoutAlert(ctx context.Context, email, username string, lockedUntil time.Time) error {
	return nil
}

func (NoopEmailService) SendPasswordChangedNotice(ctx context.Context, email, username string) error {
	return nil
}
