// Package server orchestrates all components: editor host, registry, dispatcher,
// agent transport, event fan-out, NATS mirror, audit sink and admin HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/morezero/agent-link/internal/config"
	"github.com/morezero/agent-link/pkg/audit"
	"github.com/morezero/agent-link/pkg/commsutil"
	"github.com/morezero/agent-link/pkg/dispatcher"
	"github.com/morezero/agent-link/pkg/events"
	"github.com/morezero/agent-link/pkg/extensions"
	"github.com/morezero/agent-link/pkg/host"
	"github.com/morezero/agent-link/pkg/mainloop"
	"github.com/morezero/agent-link/pkg/metrics"
	"github.com/morezero/agent-link/pkg/project"
	"github.com/morezero/agent-link/pkg/registry"
	"github.com/morezero/agent-link/pkg/session"
	"github.com/morezero/agent-link/pkg/transport"
)

const logPrefix = "server:server"

// Version is reported by system.ping and the admin endpoints.
var Version = "0.1.0"

const shutdownTimeout = 10 * time.Second

// Server is the agent-link orchestrator.
type Server struct {
	cfg *config.Config

	editor   *host.Editor
	reg      *registry.Registry
	sessions *session.Manager
	queue    *mainloop.Queue
	metrics  *metrics.Metrics
	tm       *transport.Manager
	hub      *events.Hub
	disp     *dispatcher.Dispatcher

	nc      *comms.Conn
	inbound *comms.Subscription

	pool     *pgxpool.Pool
	repo     *audit.Repository
	recorder *audit.BatchRecorder
	auditing bool

	httpServer *http.Server
	ready      atomic.Bool
	startedAt  time.Time
}

// Run loads config, starts the server, blocks until a shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%s - Starting agent-link %s", logPrefix, Version))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := New(ctx, cfg)
	if err != nil {
		return err
	}

	agentLn, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		s.Close()
		return fmt.Errorf("%s - failed to listen on %s: %w", logPrefix, cfg.ListenAddr, err)
	}
	httpLn, err := net.Listen("tcp", cfg.HTTPListenAddr())
	if err != nil {
		_ = agentLn.Close()
		s.Close()
		return fmt.Errorf("%s - failed to listen on %s: %w", logPrefix, cfg.HTTPListenAddr(), err)
	}
	return s.Serve(ctx, agentLn, httpLn)
}

// New builds every component from cfg. NATS and Postgres are only
// contacted when COMMS_URL and DATABASE_URL are set.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{cfg: cfg, metrics: metrics.New()}

	// Step 1: Load project manifest and start the editor host
	var paths []string
	if cfg.ProjectFile != "" {
		paths = append(paths, cfg.ProjectFile)
	}
	manifest, err := project.LoadManifest(paths...)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to load project manifest: %w", logPrefix, err)
	}
	s.editor = host.New(manifest, nil)
	slog.Info(fmt.Sprintf("%s - Project %s (%d assets, %d plugins)",
		logPrefix, manifest.ProjectName, len(manifest.Assets), len(manifest.Plugins)))

	// Step 2: Register and seal commands
	s.reg = registry.New()
	if err := extensions.RegisterAll(s.reg, extensions.Deps{Editor: s.editor, Version: Version}); err != nil {
		return nil, fmt.Errorf("%s - failed to register commands: %w", logPrefix, err)
	}
	s.reg.Seal()
	slog.Info(fmt.Sprintf("%s - Registry sealed with %d commands", logPrefix, s.reg.Len()))

	// Step 3: Transport, mutation context and fan-out
	constraint, err := cfg.Constraint()
	if err != nil {
		return nil, err
	}
	s.sessions = session.NewManager()
	s.queue = mainloop.New(s.metrics)
	s.tm = transport.NewManager(s.sessions, transport.Options{
		ProtocolVersion:   cfg.ProtocolVersion,
		ClientConstraint:  constraint,
		HandshakeTimeout:  cfg.HandshakeTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
		HeartbeatTimeout:  cfg.HeartbeatTimeout,
		EventQueueSize:    cfg.EventQueueSize,
		Limits:            cfg.Limits(),
		ServerName:        "agent-link/" + Version,
		AllowedOrigins:    cfg.AllowedOrigins,
		Metrics:           s.metrics,
		OnOpen:            s.welcome,
	})
	s.hub = events.NewHub(s.sessions, s.tm, s.metrics)

	// Step 4: Optional NATS mirror and inbound bridge
	publishers := []events.EventPublisher{s.hub}
	if cfg.COMMSURL != "" {
		nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
		}
		s.nc = nc
		publishers = append(publishers, events.NewCommsPublisher(nc, &events.CommsPublisherOpts{SubjectPrefix: cfg.EventSubjectPrefix}))
	}
	publisher := events.NewMultiPublisher(publishers...)
	s.editor.SetPublisher(publisher)
	if s.nc != nil {
		sub, err := events.BridgeInbound(s.nc, cfg.EventSubjectPrefix, publisher)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("%s - failed to bridge inbound events: %w", logPrefix, err)
		}
		s.inbound = sub
	}

	// Step 5: Optional audit sink
	var recorder audit.Recorder = audit.NoOpRecorder{}
	if cfg.DatabaseURL != "" {
		if err := s.openAudit(ctx); err != nil {
			s.Close()
			return nil, err
		}
		recorder = s.recorder
	}

	// Step 6: Dispatcher
	s.disp, err = dispatcher.New(s.reg, s.sessions, s.queue, s.tm, dispatcher.Options{
		MaxInflight:    cfg.MaxInFlight,
		RequestTimeout: cfg.RequestTimeout,
		Dedupe:         cfg.DedupeIdempotent,
		Metrics:        s.metrics,
		Recorder:       recorder,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%s - failed to create dispatcher: %w", logPrefix, err)
	}
	s.tm.SetHandler(s.disp)
	return s, nil
}

func (s *Server) openAudit(ctx context.Context) error {
	pool, err := audit.NewPool(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	s.pool = pool

	if s.cfg.RunMigrations {
		migrations, err := audit.LoadMigrations(s.cfg.MigrationPath)
		if err != nil {
			return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if err := audit.RunMigrations(ctx, pool, migrations); err != nil {
			return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	} else if ok, err := audit.SchemaPresent(ctx, pool); err == nil && !ok {
		slog.Warn(fmt.Sprintf("%s - command_outcomes table missing; run `agentlink migrate up` or set RUN_MIGRATIONS=true", logPrefix))
	}

	s.repo = audit.NewRepository(pool)
	s.recorder = audit.NewBatchRecorder(s.repo, audit.BatchOptions{})
	slog.Info(fmt.Sprintf("%s - Audit sink enabled", logPrefix))
	return nil
}

// welcome sends project.info to a connection right after its handshake.
func (s *Server) welcome(sess *session.Session) {
	event := events.NewHostEvent(events.TopicProjectInfo, host.EventSource, s.editor.ProjectInfo())
	if err := s.hub.PublishTo(sess.ID(), event); err != nil {
		slog.Debug(fmt.Sprintf("%s - welcome for %s not sent: %v", logPrefix, sess.ID(), err))
	}
}

// Serve runs the mutation context, the agent listener and the admin HTTP
// server until ctx is done, then shuts everything down in order.
func (s *Server) Serve(ctx context.Context, agentLn, httpLn net.Listener) error {
	s.startedAt = time.Now()
	g, gctx := errgroup.WithContext(ctx)

	// The mutation context and the audit writer outlive the transport so
	// queued work is answered and recorded before they stop.
	queueCtx, stopQueue := context.WithCancel(context.Background())
	auditCtx, stopAudit := context.WithCancel(context.Background())
	defer stopQueue()
	defer stopAudit()

	g.Go(func() error { return s.queue.Run(queueCtx) })
	if s.recorder != nil {
		s.auditing = true
		g.Go(func() error { return s.recorder.Run(auditCtx) })
	}
	g.Go(func() error { return s.tm.Serve(gctx, agentLn) })

	s.httpServer = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	g.Go(func() error {
		slog.Info(fmt.Sprintf("%s - HTTP admin server listening on %s", logPrefix, httpLn.Addr()))
		if err := s.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s - HTTP server error: %w", logPrefix, err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.ready.Store(false)
		slog.Info(fmt.Sprintf("%s - Shutting down", logPrefix))
		s.shutdown()
		stopQueue()
		stopAudit()
		return nil
	})

	s.ready.Store(true)
	slog.Info(fmt.Sprintf("%s - agent-link is ready (agents on %s)", logPrefix, agentLn.Addr()))

	err := g.Wait()
	s.Close()
	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return err
}

func (s *Server) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.tm.Shutdown(ctx); err != nil {
		slog.Warn(err.Error())
	}
	if err := s.disp.Shutdown(ctx); err != nil {
		slog.Warn(err.Error())
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - HTTP shutdown: %v", logPrefix, err))
		}
	}
}

// Close releases external connections. It is safe to call more than once.
func (s *Server) Close() {
	if s.inbound != nil {
		_ = s.inbound.Unsubscribe()
		s.inbound = nil
	}
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			s.nc.Close()
		}
		s.nc = nil
	}
	if s.pool != nil {
		if s.auditing {
			select {
			case <-s.recorder.Done():
			case <-time.After(shutdownTimeout):
			}
		}
		s.pool.Close()
		s.pool = nil
	}
}

// Ready reports whether Serve is accepting agents.
func (s *Server) Ready() bool {
	return s.ready.Load()
}
