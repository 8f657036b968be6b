package marketplace

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Credentials are the seller's marketplace login details
type Credentials struct {
	Login        string
	PasswordHash string
	WebapiKey    string
}

// Options tune the client
type Options struct {
	CountryCode      int
	SessionTTL       time.Duration
	JournalPageSize  int
	FeedbackPageSize int
	SellItemsPage    int
}

func (o Options) withDefaults() Options {
	if o.CountryCode == 0 {
		o.CountryCode = 1
	}
	if o.SessionTTL == 0 {
		o.SessionTTL = 55 * time.Minute
	}
	if o.JournalPageSize == 0 {
		o.JournalPageSize = 100
	}
	if o.FeedbackPageSize == 0 {
		o.FeedbackPageSize = 25
	}
	if o.SellItemsPage == 0 {
		o.SellItemsPage = 100
	}
	return o
}

// Client talks to the marketplace on behalf of many sellers. Sessions are
// cached per seller, logins for the same seller are collapsed into one
// handshake, and a call that hits an invalid session re-authenticates and is
// retried exactly once.
type Client struct {
	transport Transport
	sessions  SessionStore
	opts      Options
	logins    singleflight.Group
	now       func() time.Time

	mu    sync.RWMutex
	creds map[uint]Credentials
}

// NewClient creates a marketplace client
func NewClient(transport Transport, sessions SessionStore, opts Options) *Client {
	if sessions == nil {
		sessions = NewMemorySessionStore()
	}
	return &Client{
		transport: transport,
		sessions:  sessions,
		opts:      opts.withDefaults(),
		now:       time.Now,
		creds:     make(map[uint]Credentials),
	}
}

// Login makes sure userID has a valid session, performing the handshake when needed
func (c *Client) Login(ctx context.Context, userID uint, creds Credentials) error {
	c.mu.Lock()
	c.creds[userID] = creds
	c.mu.Unlock()

	if _, ok := c.validSession(ctx, userID); ok {
		return nil
	}

	_, err, shared := c.logins.Do(strconv.FormatUint(uint64(userID), 10), func() (interface{}, error) {
		if s, ok := c.validSession(ctx, userID); ok {
			return s, nil
		}
		return c.handshake(ctx, userID, creds)
	})
	if err != nil {
		return errors.Wrapf(err, "login for user %d", userID)
	}

	log.Debug().Uint("user_id", userID).Bool("shared", shared).Msg("Marketplace session ready")
	return nil
}

// IsLoginRequired reports whether userID lacks a valid cached session
func (c *Client) IsLoginRequired(ctx context.Context, userID uint) bool {
	_, ok := c.validSession(ctx, userID)
	return !ok
}

func (c *Client) handshake(ctx context.Context, userID uint, creds Credentials) (Session, error) {
	var status sysStatusResponse
	err := c.transport.Call(ctx, opQuerySysStatus, sysStatusRequest{
		SysVar:    sysVarAPIVersion,
		CountryID: c.opts.CountryCode,
		WebapiKey: creds.WebapiKey,
	}, &status)
	if err != nil {
		return Session{}, errors.Wrap(err, "querying version key")
	}

	var login loginResponse
	err = c.transport.Call(ctx, opLoginEnc, loginRequest{
		UserLogin:        creds.Login,
		UserHashPassword: creds.PasswordHash,
		CountryCode:      c.opts.CountryCode,
		WebapiKey:        creds.WebapiKey,
		LocalVersion:     status.VerKey,
	}, &login)
	if err != nil {
		return Session{}, errors.Wrap(err, "logging in")
	}

	session := Session{
		Handle:        login.SessionHandlePart,
		AllegroUserID: login.UserID,
		ExpiresAt:     c.now().Add(c.opts.SessionTTL),
	}
	if err := c.sessions.Set(ctx, userID, session); err != nil {
		return Session{}, errors.Wrap(err, "storing session")
	}

	log.Info().Uint("user_id", userID).Str("login", creds.Login).Msg("Logged in to marketplace")
	return session, nil
}

func (c *Client) validSession(ctx context.Context, userID uint) (Session, bool) {
	s, ok, err := c.sessions.Get(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Uint("user_id", userID).Msg("Failed to read marketplace session")
		return Session{}, false
	}
	if !ok || !s.Valid(c.now()) {
		return Session{}, false
	}
	return s, true
}

// call runs one session-bound operation. build receives the session handle.
func (c *Client) call(ctx context.Context, userID uint, op string, build func(handle string) interface{}, response interface{}) error {
	session, ok := c.validSession(ctx, userID)
	if !ok {
		return errors.Wrapf(ErrNotLoggedIn, "%s for user %d", op, userID)
	}

	err := c.transport.Call(ctx, op, build(session.Handle), response)
	if !isSessionFault(err) {
		return err
	}

	log.Warn().Err(err).Uint("user_id", userID).Str("op", op).Msg("Marketplace session rejected, logging in again")

	if err := c.sessions.Delete(ctx, userID); err != nil {
		log.Warn().Err(err).Uint("user_id", userID).Msg("Failed to evict marketplace session")
	}

	c.mu.RLock()
	creds, known := c.creds[userID]
	c.mu.RUnlock()
	if !known {
		return errors.Wrapf(ErrNotLoggedIn, "%s for user %d", op, userID)
	}

	if err := c.Login(ctx, userID, creds); err != nil {
		return err
	}

	session, ok = c.validSession(ctx, userID)
	if !ok {
		return errors.Wrapf(ErrNotLoggedIn, "%s for user %d", op, userID)
	}
	return c.transport.Call(ctx, op, build(session.Handle), response)
}
