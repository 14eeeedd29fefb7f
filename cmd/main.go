package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc/reflection"

	grpcctx "github.com/dtroode/authz-server/internal/api/grpc/context"
	grpcRouter "github.com/dtroode/authz-server/internal/api/grpc/router"
	grpcServer "github.com/dtroode/authz-server/internal/api/grpc/server"
	"github.com/dtroode/authz-server/internal/api/http/handler"
	httpRouter "github.com/dtroode/authz-server/internal/api/http/router"
	httpServer "github.com/dtroode/authz-server/internal/api/http/server"
	"github.com/dtroode/authz-server/internal/audit"
	"github.com/dtroode/authz-server/internal/config"
	"github.com/dtroode/authz-server/internal/keys"
	"github.com/dtroode/authz-server/internal/logger"
	"github.com/dtroode/authz-server/internal/metrics"
	"github.com/dtroode/authz-server/internal/model"
	"github.com/dtroode/authz-server/internal/permission"
	"github.com/dtroode/authz-server/internal/repository/memory"
	"github.com/dtroode/authz-server/internal/repository/postgres"
	redisrepo "github.com/dtroode/authz-server/internal/repository/redis"
	"github.com/dtroode/authz-server/internal/server"
	"github.com/dtroode/authz-server/internal/service"
	storage "github.com/dtroode/authz-server/internal/storage/minio"
	"github.com/dtroode/authz-server/internal/token"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

// backend is the credential store behind the services.
type backend struct {
	clients     model.ClientStore
	users       model.UserStore
	scopes      model.ScopeStore
	consents    model.ConsentStore
	codes       model.CodeStore
	refresh     model.RefreshTokenStore
	revocations model.RevocationList
	attempts    model.LoginAttemptStore
	directory   model.DirectoryStore
	admin       model.DirectoryAdmin
	pinger      handler.Pinger
	close       func() error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.NewWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	store, err := openBackend(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialize storage", "backend", cfg.StorageBackend, "error", err)
	}
	defer store.close()

	m := metrics.New()
	var resolverOpts []permission.Option
	resolverOpts = append(resolverOpts, permission.WithMetrics(m))

	var broadcaster *permission.RedisBroadcaster
	if cfg.Redis.Enabled {
		client, err := redisrepo.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
		}
		defer client.Close()

		shared := redisrepo.New(client, cfg.Redis.Prefix)
		store.revocations = shared
		store.attempts = shared
		broadcaster = permission.NewRedisBroadcaster(client, cfg.Permissions.Channel, logger)
		resolverOpts = append(resolverOpts, permission.WithPublisher(broadcaster))
	}

	ring, err := keys.Load(cfg.Keys.CurrentPath, cfg.Keys.PreviousPath)
	if err != nil {
		logger.Fatal("failed to load signing keys", "error", err)
	}
	if cfg.Keys.CurrentPath == "" {
		logger.Warn("no signing key configured, using an ephemeral key")
	}
	jwt := token.NewJWT(ring, token.Config{
		Issuer:     cfg.OAuth.Issuer,
		Secret:     []byte(cfg.OAuth.SessionSecret),
		SessionTTL: cfg.OAuth.SessionTTL,
		ConsentTTL: cfg.OAuth.ConsentTTL,
		IDTokenTTL: cfg.OAuth.IDTokenTTL,
	})

	resolver := permission.NewResolver(store.directory, cfg.Permissions.CacheTTL, logger, resolverOpts...)

	var wg sync.WaitGroup
	if broadcaster != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := broadcaster.Listen(ctx, resolver); err != nil {
				logger.Error("permission invalidation listener stopped", "error", err)
			}
		}()
	}

	emitter, err := newAuditEmitter(ctx, cfg, logger, m)
	if err != nil {
		logger.Fatal("failed to initialize audit", "error", err)
	}

	obs := service.Observer{Logger: logger, Audit: emitter, Metrics: m}
	clients := service.NewClientAuthenticator(store.clients, obs)
	authorizer := service.NewAuthorizer(service.AuthorizerDeps{
		Clients:     store.clients,
		Users:       store.users,
		Scopes:      store.scopes,
		Consents:    store.consents,
		Codes:       store.codes,
		Attempts:    store.attempts,
		Permissions: resolver,
		Tokens:      jwt,
	}, service.AuthorizerConfig{
		LoginURL:   cfg.OAuth.LoginURL,
		ConsentURL: cfg.OAuth.ConsentURL,
		CodeTTL:    cfg.OAuth.CodeTTL,
		Lockout: service.LockoutPolicy{
			Threshold: cfg.Lockout.Threshold,
			Window:    cfg.Lockout.Window,
			Duration:  cfg.Lockout.Duration,
		},
	}, obs)
	tokens := service.NewTokenService(service.TokenServiceDeps{
		Clients:     clients,
		Users:       store.users,
		Scopes:      store.scopes,
		Codes:       store.codes,
		Refresh:     store.refresh,
		Revocations: store.revocations,
		Permissions: resolver,
		Tokens:      jwt,
	}, obs)
	directory := service.NewDirectory(store.admin, store.consents, resolver, obs)
	ctxMgr := grpcctx.NewManager()

	sweeper := service.NewSweeper(store.codes, store.refresh, store.revocations, cfg.OAuth.SweepInterval, obs)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	deps := handler.Deps{
		Authorizer:     authorizer,
		Tokens:         tokens,
		Clients:        clients,
		Users:          store.users,
		Keys:           ring,
		Store:          store.pinger,
		ContextManager: ctxMgr,
		Metrics:        m,
	}
	h := handler.New(deps, handler.Config{
		Issuer:        cfg.OAuth.Issuer,
		SecureCookies: cfg.HTTP.SecureCookies || cfg.HTTP.EnableHTTPS,
		SessionTTL:    cfg.OAuth.SessionTTL,
	}, logger)
	httpSrv := httpServer.NewHTTPServer(httpRouter.New(h, deps, logger).Register(), fmt.Sprintf(":%s", cfg.HTTP.Port))

	servers := []serverWithLayer{{
		server: httpSrv,
		layer:  securityLayer(cfg.HTTP.EnableHTTPS, cfg.HTTP.CertFileName, cfg.HTTP.PrivateKeyFileName),
	}}

	if cfg.GRPC.Enabled {
		r := grpcRouter.New(grpcRouter.Deps{
			Tokens:         tokens,
			Permissions:    resolver,
			Directory:      directory,
			ContextManager: ctxMgr,
		}, logger)
		s := r.Register()
		reflection.Register(s)
		servers = append(servers, serverWithLayer{
			server: grpcServer.NewGRPCServer(s, fmt.Sprintf(":%s", cfg.GRPC.Port)),
			layer:  securityLayer(cfg.GRPC.EnableHTTPS, cfg.GRPC.CertFileName, cfg.GRPC.PrivateKeyFileName),
		})
	}

	for _, s := range servers {
		wg.Add(1)
		go func(s serverWithLayer) {
			defer wg.Done()
			logger.Info("Starting server on", "address", s.server.Address())
			if err := s.server.Start(s.layer); err != nil {
				logger.Error("failed to start server", "error", err, "address", s.server.Address())
				stop()
			}
		}(s)
	}

	logAppVersion()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	for _, s := range servers {
		if err := s.server.Stop(shutdownCtx); err != nil {
			logger.Error("error during server shutdown", "error", err, "address", s.server.Address())
		}
	}

	wg.Wait()
	if err := emitter.Close(shutdownCtx); err != nil {
		logger.Error("failed to flush audit events", "error", err)
	}
	logger.Info("shutdown complete")
}

type serverWithLayer struct {
	server model.Server
	layer  model.SecurityLayer
}

func securityLayer(enableHTTPS bool, certFile, keyFile string) model.SecurityLayer {
	if enableHTTPS {
		return server.NewTLSListener(certFile, keyFile)
	}
	return server.NewPlainListener()
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	if cfg.StorageBackend == config.BackendMemory {
		s := memory.New()
		err := s.Seed(ctx, memory.SeedOptions{
			AdminPassword: cfg.Dev.AdminPassword,
			ServiceSecret: cfg.Dev.ServiceSecret,
			RedirectURI:   cfg.Dev.RedirectURI,
		})
		if err != nil {
			return nil, err
		}
		return &backend{
			clients:     s,
			users:       s,
			scopes:      s,
			consents:    s,
			codes:       s,
			refresh:     s,
			revocations: s,
			attempts:    s,
			directory:   s,
			admin:       s,
			pinger:      s,
			close:       func() error { return nil },
		}, nil
	}

	db, err := postgres.NewConnection(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
	if err != nil {
		return nil, err
	}
	dir := postgres.NewDirectoryRepository(db)
	return &backend{
		clients:     postgres.NewClientRepository(db),
		users:       postgres.NewUserRepository(db),
		scopes:      postgres.NewScopeRepository(db),
		consents:    postgres.NewConsentRepository(db),
		codes:       postgres.NewCodeRepository(db),
		refresh:     postgres.NewRefreshTokenRepository(db),
		revocations: postgres.NewRevocationRepository(db),
		attempts:    postgres.NewLoginAttemptRepository(db),
		directory:   dir,
		admin:       dir,
		pinger:      db,
		close:       db.Close,
	}, nil
}

func newAuditEmitter(ctx context.Context, cfg *config.Config, logger *logger.Logger, m *metrics.Metrics) (*audit.Emitter, error) {
	sinks := []audit.Sink{audit.NewLogSink(logger)}
	if cfg.Audit.ArchiveEnabled {
		objects, err := storage.New(ctx, storage.Options{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			UseSSL:    cfg.Storage.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, audit.NewObjectSink(objects, cfg.Audit.ArchivePrefix))
	}
	return audit.NewEmitter(cfg.Audit.BufferSize, logger, sinks, audit.WithMetrics(m)), nil
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}
