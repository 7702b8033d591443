// Package app assembles the gateway, caches and services from a Config.
package app

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/and161185/sociallink/internal/changefeed"
	"github.com/and161185/sociallink/internal/config"
	"github.com/and161185/sociallink/internal/limiter"
	"github.com/and161185/sociallink/internal/model"
	"github.com/and161185/sociallink/internal/profilecache"
	"github.com/and161185/sociallink/internal/repository/postgres"
	"github.com/and161185/sociallink/internal/service"
	"github.com/and161185/sociallink/internal/session"
	"github.com/and161185/sociallink/internal/storage/s3"
)

// App holds every long-lived component.
type App struct {
	Cfg *config.Config
	Log *zap.Logger

	DB       *postgres.DB
	Accounts *postgres.AccountRepo
	Profiles *postgres.ProfileRepo
	Chats    *postgres.ChatRepo
	Messages *postgres.MessageRepo
	Posts    *postgres.PostRepo

	Summaries *profilecache.Cache
	Limiter   *limiter.PG

	Auth    *service.AuthServiceImpl
	Profile *service.ProfileServiceImpl
	Janitor *service.Janitor

	rdb *redis.Client

	dialFeed  func(ctx context.Context, dsn string) (feedSource, error)
	feedMu    sync.Mutex
	feedSrc   feedSource
	hub       *changefeed.Hub
	hubCancel context.CancelFunc
	hubDone   chan struct{}
}

// feedSource is the LISTEN side of the change feed.
type feedSource interface {
	changefeed.Source
	Close(ctx context.Context) error
}

func dialListener(ctx context.Context, dsn string) (feedSource, error) {
	l, err := postgres.NewListener(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Option customizes New.
type Option func(*options)

type options struct {
	mailer service.Mailer
}

// WithMailer replaces the default reset-token mailer, which prints to stderr.
func WithMailer(m service.Mailer) Option {
	return func(o *options) { o.mailer = m }
}

// New connects to PostgreSQL, optional Redis and the optional avatar bucket
// and wires the services. Close releases everything New acquired.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	o := options{mailer: service.WriterMailer{W: os.Stderr}}
	for _, fn := range opts {
		fn(&o)
	}

	db, err := postgres.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a := &App{
		Cfg:      cfg,
		Log:      log,
		DB:       db,
		Accounts: postgres.NewAccountRepo(db),
		Profiles: postgres.NewProfileRepo(db),
		Chats:    postgres.NewChatRepo(db),
		Messages: postgres.NewMessageRepo(db),
		Posts:    postgres.NewPostRepo(db),
	}

	a.rdb, err = profilecache.Dial(ctx, cfg.RedisAddr)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if a.rdb == nil {
		log.Info("profile cache disabled")
	}
	a.Summaries = profilecache.New(a.rdb, a.Profiles, cfg.ProfileTTL, log.Named("profilecache"))

	var avatars service.AvatarUploader
	if cfg.S3.Endpoint != "" || cfg.S3.AccessKey != "" {
		store, err := s3.New(ctx, s3.Config{
			Region:        cfg.S3.Region,
			Endpoint:      cfg.S3.Endpoint,
			AccessKey:     cfg.S3.AccessKey,
			SecretKey:     cfg.S3.SecretKey,
			Bucket:        cfg.S3.Bucket,
			PublicBaseURL: cfg.S3.PublicBaseURL,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		avatars = store
	} else {
		log.Info("avatar uploads disabled")
	}

	a.Limiter = limiter.NewPG(db.Pool, limiter.Policy{
		Window:   cfg.LimiterWindow,
		MaxFails: cfg.LimiterMaxFails,
		BlockFor: cfg.LimiterBlockFor,
	})

	a.Auth = service.NewAuthService(a.Accounts, a.Accounts, a.Profiles, a.Limiter, o.mailer, service.AuthConfig{
		SignKey:   []byte(cfg.JWTKey),
		AccessTTL: cfg.AccessTTL,
		ResetTTL:  cfg.ResetTTL,
	}, log.Named("auth"))
	a.Profile = service.NewProfileService(a.Profiles, a.Summaries, avatars, log.Named("profiles"))
	a.Janitor = service.NewJanitor(a.Accounts, a.Limiter, log.Named("janitor"))
	return a, nil
}

// Feed returns the shared change-feed hub, opening the LISTEN connection and
// starting the pump on first use. A failed open is not remembered, and a hub
// that stopped is replaced by a fresh one on the next call. ctx bounds only
// the connect; the pump runs until Close.
func (a *App) Feed(ctx context.Context) (*changefeed.Hub, error) {
	a.feedMu.Lock()
	defer a.feedMu.Unlock()
	if a.hub != nil && !a.hub.Closed() {
		return a.hub, nil
	}
	a.stopFeedLocked()

	dial := a.dialFeed
	if dial == nil {
		dial = dialListener
	}
	src, err := dial(ctx, a.Cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open change feed: %w", err)
	}
	hub := changefeed.NewHub(src, a.Log.Named("changefeed"), a.Cfg.FeedBuffer)
	hctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := hub.Run(hctx); err != nil {
			a.Log.Error("change feed stopped", zap.Error(err))
		}
	}()
	a.feedSrc, a.hub, a.hubCancel, a.hubDone = src, hub, cancel, done
	return hub, nil
}

func (a *App) stopFeedLocked() {
	if a.hubCancel != nil {
		a.hubCancel()
		<-a.hubDone
	}
	if a.feedSrc != nil {
		_ = a.feedSrc.Close(context.Background())
	}
	a.feedSrc, a.hub, a.hubCancel, a.hubDone = nil, nil, nil, nil
}

// StartSession begins live sync for an authenticated user.
func (a *App) StartSession(ctx context.Context, auth model.Session, opts ...session.Option) (*session.Session, error) {
	hub, err := a.Feed(ctx)
	if err != nil {
		return nil, err
	}
	return session.Start(ctx, session.Deps{
		Chats:    a.Chats,
		Messages: a.Messages,
		Posts:    a.Posts,
		Profiles: a.Summaries,
		Hub:      hub,
		Log:      a.Log.Named("session"),
	}, auth, opts...)
}

// Close stops the change feed and releases connections.
func (a *App) Close() {
	a.feedMu.Lock()
	a.stopFeedLocked()
	a.feedMu.Unlock()
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
