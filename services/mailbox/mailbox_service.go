package mailbox

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/outreachloop/followup/config"
	"github.com/outreachloop/followup/interfaces"
	"github.com/outreachloop/followup/internal/logger"
	"github.com/outreachloop/followup/internal/tracing"
)

type mailboxService struct {
	imapConfig *config.IMAPConfig
	accounts   []config.MailAccountConfig
	log        logger.Logger

	handler interfaces.InboundHandler

	clientsMutex sync.RWMutex
	clients      map[string]*client.Client

	statusMutex sync.RWMutex
	statuses    map[string]*accountStatus

	pollInterval time.Duration
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	started      bool
}

type accountStatus struct {
	connected        bool
	lastError        string
	lastChecked      time.Time
	consecutiveFails int
	emptyBodyCount   atomic.Int64
}

func NewMailboxService(imapConfig *config.IMAPConfig, appConfig *config.AppConfig, accounts []config.MailAccountConfig, log logger.Logger) interfaces.MailboxService {
	statuses := make(map[string]*accountStatus, len(accounts))
	for _, account := range accounts {
		statuses[account.Email] = &accountStatus{}
	}

	return &mailboxService{
		imapConfig:   imapConfig,
		accounts:     accounts,
		log:          log,
		clients:      make(map[string]*client.Client),
		statuses:     statuses,
		pollInterval: time.Duration(appConfig.PollingInterval) * time.Second,
	}
}

func (s *mailboxService) SetHandler(handler interfaces.InboundHandler) {
	s.handler = handler
}

func (s *mailboxService) Start(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailboxService.Start")
	defer span.Finish()
	tracing.TagComponentMailbox(span)

	if s.handler == nil {
		err := errors.New("inbound handler must be set before start")
		tracing.TraceErr(span, err)
		return err
	}
	if s.started {
		return errors.New("mailbox service already started")
	}
	s.started = true

	pollCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.pollLoop(pollCtx)

	s.log.Infof("mailbox poller started for %d accounts, interval %s", len(s.accounts), s.pollInterval)
	return nil
}

func (s *mailboxService) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.disconnectAll()
	s.started = false
	s.log.Info("mailbox poller stopped")
	return nil
}

func (s *mailboxService) pollLoop(ctx context.Context) {
	defer s.wg.Done()

	// First tick immediately, then on the interval.
	s.pollAll(ctx)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollAll(ctx)
		}
	}
}

func (s *mailboxService) pollAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, account := range s.accounts {
		wg.Add(1)
		go func(account config.MailAccountConfig) {
			defer wg.Done()
			s.pollAccount(ctx, account)
		}(account)
	}
	wg.Wait()
}

func (s *mailboxService) Statuses() map[string]interfaces.MailboxStatus {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()

	out := make(map[string]interfaces.MailboxStatus, len(s.statuses))
	for email, status := range s.statuses {
		out[email] = interfaces.MailboxStatus{
			Connected:        status.connected,
			LastError:        status.lastError,
			LastChecked:      status.lastChecked,
			ConsecutiveFails: status.consecutiveFails,
			EmptyBodyCount:   status.emptyBodyCount.Load(),
		}
	}
	return out
}

func (s *mailboxService) updateStatus(accountEmail string, connected bool, lastErr error) {
	s.statusMutex.Lock()
	defer s.statusMutex.Unlock()

	status, ok := s.statuses[accountEmail]
	if !ok {
		status = &accountStatus{}
		s.statuses[accountEmail] = status
	}
	status.connected = connected
	status.lastChecked = time.Now().UTC()
	if lastErr != nil {
		status.lastError = lastErr.Error()
		status.consecutiveFails++
	} else {
		status.lastError = ""
		status.consecutiveFails = 0
	}
}

func (s *mailboxService) countEmptyBody(accountEmail string) {
	s.statusMutex.RLock()
	status, ok := s.statuses[accountEmail]
	s.statusMutex.RUnlock()
	if ok {
		status.emptyBodyCount.Add(1)
	}
}

func (s *mailboxService) disconnectAll() {
	s.clientsMutex.Lock()
	clients := s.clients
	s.clients = make(map[string]*client.Client)
	s.clientsMutex.Unlock()

	for email, c := range clients {
		if err := logoutWithTimeout(c, 5*time.Second); err != nil {
			s.log.Warnf("logout failed for %s: %v", email, err)
		}
	}
}

func logoutWithTimeout(c *client.Client, timeout time.Duration) error {
	c.Timeout = timeout
	done := make(chan error, 1)
	go func() {
		done <- c.Logout()
	}()
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return errors.New("logout timed out")
	}
}
