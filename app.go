package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"prism-board/config"
	"prism-board/credential"
	"prism-board/domain"
	"prism-board/session"
	"prism-board/taskapi"
)

// app holds the wired components for one CLI invocation.
type app struct {
	cfg     *config.Config
	logger  *log.Logger
	session *session.Manager
	tasks   *taskapi.Client
	closers []func() error
}

func newApp(cfg *config.Config, stderr io.Writer) (*app, error) {
	a := &app{cfg: cfg, logger: cfg.NewLogger(stderr)}

	store, err := a.credentialStore()
	if err != nil {
		a.Close()
		return nil, err
	}
	decoder, err := a.decoder()
	if err != nil {
		a.Close()
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	auth := session.NewHTTPAuthenticator(cfg.APIURL, httpClient)
	a.session = session.NewManager(store, decoder, auth, session.WithLogger(a.logger))
	a.tasks = taskapi.New(cfg.APIURL, a.session, httpClient, a.logger)
	return a, nil
}

func (a *app) credentialStore() (credential.Store, error) {
	c := a.cfg.Credential
	switch c.Backend {
	case config.BackendFile:
		return credential.NewFileStore(c.Path), nil
	case config.BackendRedis:
		rc := redis.NewClient(config.RedisOptions(c.RedisConnectionString))
		a.closers = append(a.closers, rc.Close)
		return credential.NewRedisStore(rc, c.Slot), nil
	case config.BackendSQLite:
		s, err := credential.NewSQLiteStore(c.SQLitePath, c.Slot)
		if err != nil {
			return nil, fmt.Errorf("sqlite credential store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case config.BackendMemory:
		return credential.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unsupported credential backend %q", c.Backend)
}

func (a *app) decoder() (*session.Decoder, error) {
	t := a.cfg.Token
	opts := session.DecoderOptions{
		Verification: session.Verification(t.Verification),
		Secret:       []byte(t.Secret),
		Audience:     t.Audience,
		Issuer:       t.Issuer,
	}
	if opts.Verification == session.VerifyJWKS {
		jwks, err := keyfunc.Get(t.JWKSURL, keyfunc.Options{
			RefreshInterval: time.Hour,
			RefreshTimeout:  a.cfg.RequestTimeout,
			RefreshErrorHandler: func(err error) {
				a.logger.WithError(err).Warn("jwks.refresh_failed")
			},
		})
		if err != nil {
			return nil, fmt.Errorf("jwks: %w", err)
		}
		a.closers = append(a.closers, func() error { jwks.EndBackground(); return nil })
		opts.JWKS = jwks
	}
	return session.NewDecoder(opts)
}

// authenticated restores the session and fails when nobody is signed in.
func (a *app) authenticated(ctx context.Context) (session.Session, error) {
	s, err := a.session.Initialize(ctx)
	if err != nil {
		return s, err
	}
	if s.State != session.Authenticated {
		return s, &domain.AuthError{Reason: domain.Unauthenticated}
	}
	return s, nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
