package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bank-risk-audit/internal/audit"
	"bank-risk-audit/internal/auth"
	"bank-risk-audit/internal/authz"
	"bank-risk-audit/internal/config"
	"bank-risk-audit/internal/httpapi"
	"bank-risk-audit/internal/metrics"
	"bank-risk-audit/internal/notify"
	"bank-risk-audit/internal/rbac"
	"bank-risk-audit/internal/reporting"
	"bank-risk-audit/internal/review"
	"bank-risk-audit/internal/workflow"
	"bank-risk-audit/pkg/logger"
	"bank-risk-audit/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, cfg.App.LogLevel)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(rootCtx, cfg, log); err != nil {
		log.Error("api stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return err
	}

	repo, db, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	opts := []review.Option{
		review.WithAuthorizer(authz.New(authz.Options{
			ExactStage: cfg.Review.Workflow.ExactStageEnabled(),
			Logger:     log,
		})),
		review.WithPolicy(workflow.Policy{MaxRechecksPerStage: cfg.Review.Workflow.MaxRechecksPerStage}),
		review.WithSLA(cfg.Review.Workflow.SLA(review.DefaultSLA())),
		review.WithClaimRankCheck(cfg.Review.Workflow.ClaimRankCheckEnabled()),
		review.WithMetrics(m),
		review.WithLogger(log),
	}

	if cfg.RedisEnabled() && cfg.Review.ClaimLimitPerAuditor > 0 {
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			return err
		}
		defer rdb.Close()
		limiter, err := review.NewRedisClaimLimiter(rdb, cfg.Review.ClaimLimitPerAuditor, 0)
		if err != nil {
			return err
		}
		opts = append(opts, review.WithClaimLimiter(limiter))
		log.Info("claim limit enabled", "per_auditor", cfg.Review.ClaimLimitPerAuditor)
	}

	var notifier notify.Notifier = notify.LogNotifier{Logger: log}
	if cfg.KafkaEnabled() {
		kn, err := notify.NewKafkaNotifier(notify.KafkaConfig{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.NotifyTopic,
			ClientID: cfg.Kafka.ClientID,
		}, log, m)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := kn.Close(closeCtx); err != nil {
				log.Warn("kafka flush failed", "err", err)
			}
		}()
		notifier = kn
	}
	history := notify.NewHistory(notifier, cfg.Review.NotificationHistory)
	opts = append(opts, review.WithNotifier(history))

	svc := review.NewService(repo, opts...)
	auditSvc := audit.NewService(audit.NewMemoryRepo())

	policy, err := rbac.NewPolicy(rbac.PolicyConfig{
		Logger: log,
		OnDeny: func(ctx context.Context, s auth.Session, action rbac.Action, reason string) {
			m.IncAccessDenial(string(action))
			if err := auditSvc.LogAccessDenied(ctx, s.UserID, s.Role, string(action), reason); err != nil {
				log.Warn("audit append failed", "err", err)
			}
		},
	})
	if err != nil {
		return err
	}

	r := newRouter(routeDeps{
		log:      log,
		auth:     authManager,
		policy:   policy,
		registry: reg,
		handlers: httpapi.Handlers{
			Auth:          authManager,
			Review:        svc,
			Reporting:     reporting.NewService(svc),
			Audit:         auditSvc,
			Notifications: history,
			IssueTokens:   !cfg.IsProduction(),
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sweepOverdue(gctx, svc, cfg.Review.OverdueSweepInterval, log)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openRepository(ctx context.Context, cfg config.Config) (review.Repository, *sql.DB, error) {
	if cfg.Storage.Driver != config.StoragePostgres {
		return review.NewMemoryRepo(), nil, nil
	}
	db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		return nil, nil, err
	}
	repo := review.NewPostgresRepo(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return repo, db, nil
}

// sweepOverdue publishes task.overdue events every interval until ctx ends.
func sweepOverdue(ctx context.Context, svc *review.Service, every time.Duration, log *slog.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := svc.NotifyOverdue(ctx)
			if err != nil {
				log.Warn("overdue sweep failed", "err", err)
				continue
			}
			if n > 0 {
				log.Info("overdue tasks reported", "count", n)
			}
		}
	}
}
