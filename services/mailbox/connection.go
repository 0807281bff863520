package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/jpillora/backoff"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/outreachloop/followup/config"
	"github.com/outreachloop/followup/internal/tracing"
)

const maxReconnectAttempts = 5

// ErrAuthFailed marks IMAP credential rejections. The account is skipped
// for the rest of the tick; retrying cannot help without human action.
var ErrAuthFailed = errors.New("imap authentication failed")

// getClient returns a live connection for the account, verifying an
// existing one with NOOP and reconnecting with backoff otherwise.
func (s *mailboxService) getClient(ctx context.Context, account config.MailAccountConfig) (*client.Client, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailboxService.getClient")
	defer span.Finish()
	tracing.TagComponentMailbox(span)
	span.SetTag("account", account.Email)

	s.clientsMutex.RLock()
	c, exists := s.clients[account.Email]
	s.clientsMutex.RUnlock()

	if exists {
		if err := c.Noop(); err == nil {
			return c, nil
		}
		s.log.Warnf("existing connection for %s is broken, reconnecting", account.Email)
		s.clientsMutex.Lock()
		delete(s.clients, account.Email)
		s.clientsMutex.Unlock()
	}

	return s.reconnect(ctx, account)
}

func (s *mailboxService) reconnect(ctx context.Context, account config.MailAccountConfig) (*client.Client, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailboxService.reconnect")
	defer span.Finish()
	tracing.TagComponentMailbox(span)
	span.SetTag("account", account.Email)

	b := &backoff.Backoff{
		Min:    1 * time.Second,
		Max:    30 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		c, err := s.connect(ctx, account)
		if err == nil {
			s.clientsMutex.Lock()
			s.clients[account.Email] = c
			s.clientsMutex.Unlock()
			s.updateStatus(account.Email, true, nil)
			return c, nil
		}

		lastErr = err
		tracing.TraceErr(span, err)
		if errors.Is(err, ErrAuthFailed) {
			s.updateStatus(account.Email, false, err)
			return nil, err
		}

		if attempt < maxReconnectAttempts {
			wait := b.Duration()
			s.log.Warnf("connect attempt %d/%d failed for %s, retrying in %s: %v",
				attempt, maxReconnectAttempts, account.Email, wait, err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
	}

	s.updateStatus(account.Email, false, lastErr)
	return nil, lastErr
}

func (s *mailboxService) connect(ctx context.Context, account config.MailAccountConfig) (*client.Client, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "mailboxService.connect")
	defer span.Finish()
	tracing.TagComponentMailbox(span)
	span.SetTag("server", s.imapConfig.Server)
	span.SetTag("port", s.imapConfig.Port)

	serverAddr := fmt.Sprintf("%s:%d", s.imapConfig.Server, s.imapConfig.Port)
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	tlsConfig := &tls.Config{
		ServerName: s.imapConfig.Server,
	}

	c, err := client.DialWithDialerTLS(dialer, serverAddr, tlsConfig)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", serverAddr)
	}

	c.Timeout = 30 * time.Second
	if err := c.Login(account.Email, account.Password); err != nil {
		c.Logout()
		if isAuthRejection(err) {
			return nil, errors.Wrap(ErrAuthFailed, err.Error())
		}
		return nil, errors.Wrapf(err, "failed to login as %s", account.Email)
	}
	c.Timeout = 0

	s.log.Infof("connected to %s as %s", serverAddr, account.Email)
	return c, nil
}

func isAuthRejection(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "authenticationfailed") ||
		strings.Contains(msg, "invalid credentials") ||
		strings.Contains(msg, "authentication failed")
}
