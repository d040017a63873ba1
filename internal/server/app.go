// Package server wires configuration, storage, identity resolution and the
// messaging services into the HTTP, websocket and gRPC transports, and runs
// them until the process is signalled.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/carenest/internal/cachex"
	"github.com/dmitrijs2005/carenest/internal/logging"
	"github.com/dmitrijs2005/carenest/internal/server/auth"
	"github.com/dmitrijs2005/carenest/internal/server/blobstore"
	"github.com/dmitrijs2005/carenest/internal/server/config"
	"github.com/dmitrijs2005/carenest/internal/server/httpapi"
	"github.com/dmitrijs2005/carenest/internal/server/metrics"
	"github.com/dmitrijs2005/carenest/internal/server/mirror"
	"github.com/dmitrijs2005/carenest/internal/server/models"
	"github.com/dmitrijs2005/carenest/internal/server/notify"
	"github.com/dmitrijs2005/carenest/internal/server/presence"
	"github.com/dmitrijs2005/carenest/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/carenest/internal/server/services"
	"github.com/dmitrijs2005/carenest/internal/server/ws"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/carenest/internal/server/grpc"
)

const (
	userCacheMaxEntries = 10000
	tokenPurgeInterval  = time.Hour
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	redis    *redis.Client
	nats     *nats.Conn
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	resolver *auth.Resolver
	hub      *presence.Hub
	users    *services.UserService
	messages *services.MessageService
}

// NewApp opens the database, runs migrations and builds every collaborator.
// Optional backends (S3, Redis, NATS) that cannot be reached are logged and
// left out; the database is required.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSON(os.Stdout, c.LogLevel)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	app := &App{config: c, logger: logger, db: db, registry: prometheus.NewRegistry()}
	app.metrics = metrics.New(app.registry)

	app.resolver = auth.NewResolver(rm.Users(db), []byte(c.SecretKey),
		auth.WithClassifier(auth.Classifier{Strict: c.StrictTokenClassification}),
		auth.WithExternalIssuer(c.ExternalIssuer),
		auth.WithUserCache(cachex.NewTTL[string, *models.User](c.UserCacheTTL, userCacheMaxEntries)),
		auth.WithLogger(logger),
	)

	opts := []services.MessageOption{
		services.WithMetrics(app.metrics),
		services.WithMessageLogger(logger),
	}

	blobs, err := blobstore.NewS3Store(ctx, blobstore.Options{
		Region:       c.S3Region,
		AccessKey:    c.S3RootUser,
		SecretKey:    c.S3RootPassword,
		BaseEndpoint: c.S3BaseEndpoint,
		Bucket:       c.S3Bucket,
	})
	if err != nil {
		logger.Warn(ctx, "blob store disabled", "error", err)
	} else {
		opts = append(opts, services.WithBlobStore(blobs))
	}

	var hubOpts []presence.Option
	if c.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB})
		if c.MirrorEnabled {
			opts = append(opts, services.WithMirror(mirror.NewRedisMirror(app.redis, c.MirrorMaxLen)))
		}
		if c.PresenceRelayEnabled {
			hubOpts = append(hubOpts, presence.WithRelay(presence.NewRedisRelay(app.redis, presence.DefaultRelayChannel, logger)))
		}
	}
	hubOpts = append(hubOpts, presence.WithLogger(logger))
	app.hub = presence.NewHub(hubOpts...)
	opts = append(opts, services.WithEmitter(app.hub))

	var notifier notify.Notifier = notify.Noop{}
	if c.NATSURL != "" {
		if conn, err := notify.Connect(c.NATSURL); err != nil {
			logger.Warn(ctx, "notifications disabled", "error", err)
		} else {
			app.nats = conn
			notifier = notify.NewNATSNotifier(conn, c.NATSSubject)
		}
	}
	opts = append(opts, services.WithNotifier(notifier))

	app.messages = services.NewMessageService(db, rm, c, opts...)
	app.users = services.NewUserService(db, rm, c)

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) httpHandler() *httpapi.Server {
	socket := ws.NewHandler(app.resolver, app.messages, app.hub, app.metrics, app.logger)
	h := httpapi.NewHandler(httpapi.Deps{
		Resolver:       app.resolver,
		Messages:       app.messages,
		Accounts:       app.users,
		Socket:         socket,
		Metrics:        app.metrics,
		MetricsHandler: metrics.Handler(app.registry),
		Logger:         app.logger,
		RateLimitRPS:   app.config.RateLimitRPS,
		RateLimitBurst: app.config.RateLimitBurst,
	})
	return httpapi.NewServer(app.config.HTTPAddr, h, app.logger)
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.httpHandler().Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.resolver, app.users, app.messages, app.metrics)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHub(ctx context.Context) {
	if err := app.hub.Run(ctx); err != nil && ctx.Err() == nil {
		app.logger.Error(ctx, "presence relay stopped", "error", err)
	}
}

// purgeTokens removes expired refresh tokens periodically.
func (app *App) purgeTokens(ctx context.Context) {
	ticker := time.NewTicker(tokenPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.users.PurgeExpiredTokens(ctx)
			if err != nil {
				app.logger.Warn(ctx, "refresh token purge failed", "error", err)
				continue
			}
			app.logger.Debug(ctx, "purged refresh tokens", "count", n)
		}
	}
}

func (app *App) close() {
	if app.nats != nil {
		app.nats.Close()
	}
	if app.redis != nil {
		_ = app.redis.Close()
	}
	_ = app.db.Close()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	for _, run := range []func(){
		func() { app.startHTTPServer(ctx, cancelFunc) },
		func() { app.startGRPCServer(ctx, cancelFunc) },
		func() { app.startHub(ctx) },
		func() { app.purgeTokens(ctx) },
	} {
		run := run
		wg.Add(1)
		go func() {
			defer wg.Done()
			run()
		}()
	}

	wg.Wait()
	app.close()
	app.logger.Info(context.Background(), "App stopped")
}
