package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/jpillora/backoff"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/outreachloop/followup/config"
	"github.com/outreachloop/followup/interfaces"
	"github.com/outreachloop/followup/internal/logger"
	"github.com/outreachloop/followup/internal/tracing"
	"github.com/outreachloop/followup/internal/utils"
)

const maxSendAttempts = 3

// ErrAuthFailed marks SMTP authentication rejections. Retrying with the
// same credentials cannot succeed.
var ErrAuthFailed = errors.New("smtp authentication failed")

type senderService struct {
	smtpConfig *config.SMTPConfig
	accounts   *config.AccountsConfig
	log        logger.Logger
}

func NewSenderService(smtpConfig *config.SMTPConfig, accounts *config.AccountsConfig, log logger.Logger) interfaces.SenderService {
	return &senderService{
		smtpConfig: smtpConfig,
		accounts:   accounts,
		log:        log,
	}
}

// Send delivers the message with up to 3 attempts at 1s/2s backoff.
// Authentication failures short-circuit.
func (s *senderService) Send(ctx context.Context, message *interfaces.OutboundMessage) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "senderService.Send")
	defer span.Finish()
	tracing.TagComponentService(span)

	if err := s.validate(message); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	span.SetTag("from", message.FromEmail)
	span.SetTag("to", message.ToEmail)

	password := s.accounts.PasswordFor(message.FromEmail)
	if password == "" {
		err := errors.Errorf("no credentials configured for account %s", message.FromEmail)
		tracing.TraceErr(span, err)
		return err
	}

	messageID := utils.GenerateMessageID(utils.EmailDomain(message.FromEmail))
	buffer := buildMessage(message, messageID, utils.Now())

	b := &backoff.Backoff{
		Min:    1 * time.Second,
		Max:    2 * time.Second,
		Factor: 2,
		Jitter: false,
	}

	var lastErr error
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		lastErr = s.sendWithSTARTTLS(ctx, message.FromEmail, password, message.ToEmail, buffer)
		if lastErr == nil {
			return nil
		}
		tracing.TraceErr(span, lastErr)

		if errors.Is(lastErr, ErrAuthFailed) {
			s.log.Errorf("smtp auth failed for %s, not retrying", message.FromEmail)
			return lastErr
		}
		if attempt < maxSendAttempts {
			wait := b.Duration()
			s.log.Warnf("smtp send attempt %d failed for %s, retrying in %s: %v", attempt, message.ToEmail, wait, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}

	return lastErr
}

func (s *senderService) validate(message *interfaces.OutboundMessage) error {
	if message == nil {
		return errors.New("message cannot be nil")
	}
	if message.FromEmail == "" {
		return errors.New("from address is required")
	}
	if message.Body == "" {
		return errors.New("message body is required")
	}
	validation := mailvalidate.ValidateEmailSyntax(message.ToEmail)
	if !validation.IsValid {
		return errors.Errorf("recipient address %s is not valid", message.ToEmail)
	}
	return nil
}

func (s *senderService) sendWithSTARTTLS(ctx context.Context, from, password, to string, buffer *bytes.Buffer) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "senderService.sendWithSTARTTLS")
	defer span.Finish()
	tracing.TagComponentService(span)

	addr := fmt.Sprintf("%s:%d", s.smtpConfig.Server, s.smtpConfig.Port)
	auth := smtp.PlainAuth("", from, password, s.smtpConfig.Server)

	conn, err := net.DialTimeout("tcp", addr, 30*time.Second)
	if err != nil {
		return errors.Wrap(err, "failed to connect to SMTP server")
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.smtpConfig.Server)
	if err != nil {
		return errors.Wrap(err, "failed to create SMTP client")
	}
	defer client.Close()

	tlsConfig := &tls.Config{
		ServerName: s.smtpConfig.Server,
	}
	if err = client.StartTLS(tlsConfig); err != nil {
		return errors.Wrap(err, "failed to start TLS")
	}

	if err = client.Auth(auth); err != nil {
		if isAuthRejection(err) {
			return errors.Wrap(ErrAuthFailed, err.Error())
		}
		return errors.Wrap(err, "SMTP AUTH command failed")
	}

	if err = client.Mail(from); err != nil {
		return errors.Wrap(err, "SMTP MAIL command failed")
	}
	if err = client.Rcpt(to); err != nil {
		return errors.Wrapf(err, "SMTP RCPT command failed for %s", to)
	}

	dataWriter, err := client.Data()
	if err != nil {
		return errors.Wrap(err, "SMTP DATA command failed")
	}
	if _, err = dataWriter.Write(buffer.Bytes()); err != nil {
		return errors.Wrap(err, "failed to write message data")
	}
	if err = dataWriter.Close(); err != nil {
		return errors.Wrap(err, "failed to close data writer")
	}

	return client.Quit()
}

// isAuthRejection inspects the server reply for credential rejections
// (535 and friends) as opposed to transient transport errors.
func isAuthRejection(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "535") ||
		strings.Contains(msg, "auth") ||
		strings.Contains(msg, "username and password not accepted")
}
