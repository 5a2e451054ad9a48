package daemon

import (
	"context"

	"github.com/matheus3301/achat/internal/api"
	"github.com/matheus3301/achat/internal/bus"
	"github.com/matheus3301/achat/internal/config"
	"github.com/matheus3301/achat/internal/history"
	"github.com/matheus3301/achat/internal/identity"
	"github.com/matheus3301/achat/internal/ingest"
	"github.com/matheus3301/achat/internal/lock"
	"github.com/matheus3301/achat/internal/logging"
	"github.com/matheus3301/achat/internal/outbox"
	"github.com/matheus3301/achat/internal/profile"
	"github.com/matheus3301/achat/internal/session"
	"github.com/matheus3301/achat/internal/settings"
	"github.com/matheus3301/achat/internal/status"
	"github.com/matheus3301/achat/internal/store"
	"github.com/matheus3301/achat/internal/summary"
	"github.com/matheus3301/achat/internal/transfer"
	"github.com/matheus3301/achat/internal/transport"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	Config      *config.Config
	SocketPath  string // optional override for testing; empty = use default
}

// TransferProgress is the payload of transfer.progress events.
type TransferProgress struct {
	FileName string `json:"file_name"`
	Done     int64  `json:"done"`
	Total    int64  `json:"total"`
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	if p.Config == nil {
		p.Config = config.Default()
	}
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideSessionContext,
			provideHubClient,
			identity.NewResolver,
			providePager,
			provideBuilder,
			profile.NewService,
			settings.New,
			provideIngestEngine,
			provideSender,
			provideTransfers,
			provideSessionService,
			provideChatService,
			provideMessageService,
			api.NewContactService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName, logging.Options{
		Level:      p.Config.Log.Level,
		MaxSizeMB:  p.Config.Log.MaxSizeMB,
		MaxBackups: p.Config.Log.MaxBackups,
		MaxAgeDays: p.Config.Log.MaxAgeDays,
	})
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName), p.SessionName)
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired", zap.Int("pid", l.Owner().PID))
	return l, nil
}

// provideStore opens the session database. It takes the lock so the database
// is never opened by a second daemon.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.AppDBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

// provideSessionContext derives the signed-in user from the hub token. A
// missing or unreadable token yields a context without a user; the daemon
// then reports AUTH_REQUIRED instead of failing to start.
func provideSessionContext(p Params, logger *zap.Logger) session.Context {
	sess, err := session.FromToken(p.SessionName, p.Config.Hub.Token)
	if err != nil {
		logger.Warn("no usable hub token", zap.Error(err))
		return session.Context{Name: p.SessionName}
	}
	logger.Info("session user resolved", zap.String("user_id", sess.UserID))
	return sess
}

func provideHubClient(p Params, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *transport.Client {
	return transport.NewClient(p.Config.Hub.URL, p.Config.Hub.Token, machine, b, logger)
}

func providePager(db *store.DB, b *bus.Bus, logger *zap.Logger) *history.Pager {
	return history.NewPager(db, b, logger)
}

func provideBuilder(db *store.DB, resolver *identity.Resolver, logger *zap.Logger) *summary.Builder {
	return summary.NewBuilder(db, resolver, logger)
}

func provideIngestEngine(db *store.DB, resolver *identity.Resolver, b *bus.Bus, logger *zap.Logger) *ingest.Engine {
	return ingest.NewEngine(db, resolver, b, logger)
}

func provideSender(db *store.DB, hub *transport.Client, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, hub, b, logger)
}

func provideTransfers(p Params, db *store.DB, pager *history.Pager, b *bus.Bus, logger *zap.Logger) *transfer.Service {
	progress := func(name string, done, total int64) {
		b.Emit("transfer.progress", TransferProgress{FileName: name, Done: done, Total: total})
	}
	files := transfer.NewHTTPClient(p.Config.Hub.FilesURL, p.Config.Hub.Token, session.FilesDir(p.SessionName), progress)
	return transfer.NewService(db, files, pager, logger)
}

func provideSessionService(p Params, sess session.Context, machine *status.Machine, db *store.DB, prefs *settings.Store, engine *ingest.Engine, b *bus.Bus, logger *zap.Logger) *api.SessionService {
	return api.NewSessionService(api.SessionDeps{
		Session:  sess,
		Machine:  machine,
		DB:       db,
		Settings: prefs,
		Ingest:   engine,
		PageSize: p.Config.History.PageSize,
		Bus:      b,
		Logger:   logger,
	})
}

func provideChatService(resolver *identity.Resolver, builder *summary.Builder, prefs *settings.Store, b *bus.Bus, logger *zap.Logger) *api.ChatService {
	return api.NewChatService(resolver, builder, prefs, b, logger)
}

func provideMessageService(p Params, sess session.Context, db *store.DB, pager *history.Pager, sender *outbox.Sender, transfers *transfer.Service, prefs *settings.Store, b *bus.Bus, logger *zap.Logger) *api.MessageService {
	return api.NewMessageService(api.MessageDeps{
		Session:   sess,
		DB:        db,
		Pager:     pager,
		Sender:    sender,
		Transfers: transfers,
		Settings:  prefs,
		PageSize:  p.Config.History.PageSize,
		Bus:       b,
		Logger:    logger,
	})
}

type lifecycleParams struct {
	fx.In

	Server  *Server
	Lock    *lock.Lock
	DB      *store.DB
	Session session.Context
	Hub     *transport.Client
	Engine  *ingest.Engine
	Sender  *outbox.Sender
	Machine *status.Machine
	Logger  *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, lp lifecycleParams) {
	runCtx, cancel := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	logger := lp.Logger

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Ingestion subscribes to transport.* bus events.
			lp.Engine.Start(runCtx)

			go func() {
				if err := lp.Server.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			lp.Sender.Start(runCtx)

			if lp.Session.UserID == "" {
				logger.Info("no signed-in user, auth required")
				_ = lp.Machine.Transition(status.AuthRequired)
				close(hubDone)
				return nil
			}
			go func() {
				defer close(hubDone)
				if err := lp.Hub.Run(runCtx); err != nil {
					logger.Error("hub connection stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			_ = lp.Hub.Close()
			<-hubDone
			lp.Sender.Stop()
			lp.Engine.Stop()
			lp.Server.Stop(ctx)
			if err := lp.DB.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lp.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
