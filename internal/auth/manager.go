package auth

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MrSnakeDoc/bountyboard/internal/api"
	"github.com/MrSnakeDoc/bountyboard/internal/domain"
	"github.com/MrSnakeDoc/bountyboard/internal/logger"
	"github.com/MrSnakeDoc/bountyboard/internal/metrics"
	"github.com/MrSnakeDoc/bountyboard/internal/utils"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultLoginTimeout = 5 * time.Minute
	DefaultAliasLength  = 7

	profileTimeout = 5 * time.Second
)

// Options tunes a Manager.
type Options struct {
	PollInterval time.Duration
	LoginTimeout time.Duration
	AliasLength  int
	// LoginURLBase, when set, is the LNURL-auth endpoint the challenge is
	// appended to for QR encoding.
	LoginURLBase string
	Now          func() time.Time
}

// Manager owns the session. It is safe for concurrent use.
type Manager struct {
	client api.Client
	logger logger.Logger
	opts   Options

	mu      sync.RWMutex
	session Session
	task    *Task
	seq     uint64

	events *utils.Broadcaster[Session]
}

// NewManager builds an idle Manager.
func NewManager(client api.Client, log logger.Logger, opts Options) *Manager {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.LoginTimeout <= 0 {
		opts.LoginTimeout = DefaultLoginTimeout
	}
	if opts.AliasLength <= 0 {
		opts.AliasLength = DefaultAliasLength
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		client: client,
		logger: log.Component("auth"),
		opts:   opts,
		events: utils.NewBroadcaster[Session](16),
	}
}

// Session returns the current session.
func (m *Manager) Session() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// Stage returns the current stage.
func (m *Manager) Stage() Stage {
	return m.Session().Stage
}

// Identity returns the authenticated person. It implements domain.Gate.
func (m *Manager) Identity() (domain.Person, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.session.live(m.opts.Now()) {
		return domain.Person{}, false
	}
	return m.session.Person.Clone(), true
}

// Token returns the bearer token of a live session, or "".
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.session.live(m.opts.Now()) {
		return ""
	}
	return m.session.Token
}

// Subscribe returns a channel of session changes, closed when ctx ends.
func (m *Manager) Subscribe(ctx context.Context) <-chan Session {
	return m.events.Subscribe(ctx)
}

// BeginLogin cancels any live login, issues a fresh challenge, and starts
// polling it. Only one challenge is ever live.
func (m *Manager) BeginLogin(ctx context.Context) (api.Challenge, *Task, error) {
	const op = "begin_login"

	m.mu.Lock()
	if m.session.live(m.opts.Now()) {
		m.mu.Unlock()
		return api.Challenge{}, nil, domain.Failf(domain.KindInvalidTransition, op, "already authenticated")
	}
	m.cancelTaskLocked()
	m.seq++
	seq := m.seq
	m.mu.Unlock()

	ch, err := m.client.IssueChallenge(ctx)
	if err != nil {
		metrics.Logins.WithLabelValues("challenge_error").Inc()
		m.logger.Warn("challenge request failed", logger.Error(err))
		return api.Challenge{}, nil, err
	}

	deadline := m.opts.Now().Add(m.opts.LoginTimeout)
	if !ch.ExpiresAt.IsZero() && ch.ExpiresAt.Before(deadline) {
		deadline = ch.ExpiresAt
	}

	m.mu.Lock()
	if m.seq != seq {
		m.mu.Unlock()
		return api.Challenge{}, nil, domain.Failf(domain.KindInvalidTransition, op, "superseded by a newer login")
	}
	m.session = Session{
		Stage:     ChallengeIssued,
		Challenge: ch.Token,
		LoginURL:  m.loginURL(ch.Token),
		ExpiresAt: deadline,
	}
	issued := m.session

	task := newTask(ch.Token)
	m.task = task
	m.session.Stage = Polling
	polling := m.session
	m.mu.Unlock()

	m.events.Publish(issued)
	m.events.Publish(polling)
	m.logger.Info("login challenge issued", logger.Time("deadline", deadline))

	go m.poll(task, deadline)
	return ch, task, nil
}

// CancelLogin stops a pending login and returns to Idle. It does nothing
// once authenticated.
func (m *Manager) CancelLogin() {
	m.mu.Lock()
	if m.session.Stage == Authenticated {
		m.mu.Unlock()
		return
	}
	m.cancelTaskLocked()
	m.seq++
	m.session = Session{Stage: Idle}
	s := m.session
	m.mu.Unlock()

	m.events.Publish(s)
}

// Reset drops any login and session locally, without telling the server.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.cancelTaskLocked()
	m.seq++
	m.session = Session{Stage: Idle}
	s := m.session
	m.mu.Unlock()

	m.events.Publish(s)
}

// Logout clears the local session first, then asks the server to
// invalidate it. The session is Idle whatever the server answers; the
// remote error is only returned for reporting.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.cancelTaskLocked()
	m.seq++
	alias := m.session.Alias
	m.session = Session{Stage: Idle}
	s := m.session
	m.mu.Unlock()

	m.events.Publish(s)
	m.logger.Info("logged out", logger.String("alias", alias))

	if alias == "" {
		return nil
	}
	if err := m.client.InvalidateSession(ctx, alias); err != nil {
		m.logger.Warn("remote session invalidation failed", logger.String("alias", alias), logger.Error(err))
		return err
	}
	return nil
}

func (m *Manager) cancelTaskLocked() {
	if m.task != nil {
		m.task.Cancel()
		m.task = nil
	}
}

func (m *Manager) loginURL(token string) string {
	if m.opts.LoginURLBase == "" {
		return ""
	}
	u, err := url.Parse(m.opts.LoginURLBase)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("tag", "login")
	q.Set("k1", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// poll runs until the challenge is signed, the deadline passes, or the
// task is cancelled.
func (m *Manager) poll(task *Task, deadline time.Time) {
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()
	timer := time.NewTimer(deadline.Sub(m.opts.Now()))
	defer timer.Stop()

	for {
		select {
		case <-task.ctx.Done():
			task.finish(context.Canceled)
			return
		case <-timer.C:
			task.finish(m.expire(task))
			return
		case <-ticker.C:
		}

		if task.Cancelled() {
			task.finish(context.Canceled)
			return
		}

		pollCtx, cancel := context.WithTimeout(task.ctx, deadline.Sub(m.opts.Now()))
		st, err := m.client.PollChallenge(pollCtx, task.token)
		cancel()
		if task.Cancelled() {
			task.finish(context.Canceled)
			return
		}
		// A signature that lands after the deadline does not count.
		if !m.opts.Now().Before(deadline) {
			task.finish(m.expire(task))
			return
		}
		if err != nil {
			m.logger.Debug("poll failed, retrying", logger.Error(err))
			continue
		}
		if !st.Signed {
			continue
		}
		if st.PubKey == "" {
			m.logger.Warn("signed challenge without pubkey, retrying")
			continue
		}

		task.finish(m.authenticate(task, st))
		return
	}
}

func (m *Manager) authenticate(task *Task, st api.ChallengeStatus) error {
	alias := domain.AliasFromPubKey(st.PubKey, m.opts.AliasLength)
	person := m.profile(task.ctx, st.PubKey)
	if person.Alias == "" {
		person.Alias = alias
	}

	var expiresAt time.Time
	if st.JWT != "" {
		exp, err := tokenExpiry(st.JWT)
		if err != nil {
			m.logger.Warn("unreadable session token", logger.Error(err))
		}
		expiresAt = exp
	}

	m.mu.Lock()
	if m.task != task || task.Cancelled() {
		m.mu.Unlock()
		return context.Canceled
	}
	m.task = nil
	m.session = Session{
		Stage:     Authenticated,
		Person:    person,
		Alias:     alias,
		ExpiresAt: expiresAt,
		Token:     st.JWT,
	}
	s := m.session
	m.mu.Unlock()

	metrics.Logins.WithLabelValues("ok").Inc()
	m.events.Publish(s)
	m.logger.Info("authenticated", logger.String("alias", alias))
	return nil
}

func (m *Manager) expire(task *Task) error {
	err := domain.Failf(domain.KindAuthExpired, "poll_challenge", "challenge was not signed in time")

	m.mu.Lock()
	if m.task != task {
		m.mu.Unlock()
		return context.Canceled
	}
	m.task = nil
	m.session.Stage = Expired
	m.session.Challenge = ""
	m.session.LoginURL = ""
	s := m.session
	m.mu.Unlock()

	metrics.Logins.WithLabelValues("expired").Inc()
	m.events.Publish(s)
	m.logger.Info("login expired")
	return err
}

// profile fetches the person record of pubkey, best effort.
func (m *Manager) profile(ctx context.Context, pubkey string) domain.Person {
	ctx, cancel := context.WithTimeout(ctx, profileTimeout)
	defer cancel()

	p, err := m.client.FetchPerson(ctx, pubkey)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			m.logger.Debug("profile unavailable", logger.String("pubkey", pubkey), logger.Error(err))
		}
		return domain.Person{PubKey: pubkey}
	}
	p.PubKey = pubkey
	return p
}

// tokenExpiry reads the exp claim without verifying the signature; the
// server is the verifier.
func tokenExpiry(raw string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, err
	}
	return exp.Time, nil
}
