package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/sitepress/internal/auth"
	"github.com/hitoshi/sitepress/internal/config"
	"github.com/hitoshi/sitepress/internal/content"
	"github.com/hitoshi/sitepress/internal/database"
	"github.com/hitoshi/sitepress/internal/handler"
	"github.com/hitoshi/sitepress/internal/logger"
	"github.com/hitoshi/sitepress/internal/metrics"
	"github.com/hitoshi/sitepress/internal/middleware"
	"github.com/hitoshi/sitepress/internal/model"
	"github.com/hitoshi/sitepress/internal/repository"
	"github.com/hitoshi/sitepress/internal/security"
	"github.com/hitoshi/sitepress/internal/storage"
	"github.com/hitoshi/sitepress/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, "info")

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再セットアップ
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("env", cfg.AppEnv),
		slog.String("storage_backend", cfg.StorageBackend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandSeed:
		return runSeed(ctx, cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// openStore は設定されたバックエンドでリポジトリ群を開く。
func openStore(ctx context.Context, cfg *config.Config) (*repository.Store, error) {
	store, err := repository.Open(ctx, repository.Options{
		Backend:     cfg.StorageBackend,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		FileDir:     cfg.FileStoreDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.StorageBackend, err)
	}
	slog.Info("store opened", slog.String("backend", store.Backend))
	return store, nil
}

func newAuthService(cfg *config.Config, store *repository.Store) *auth.Service {
	return auth.NewService(store.Users, auth.ServiceConfig{
		JWTSecret:  cfg.JWTSecret,
		TokenTTL:   cfg.JWTExpiresIn,
		BcryptCost: cfg.BcryptCost,
	})
}

// server はAPIサーバーの依存関係一式。
type server struct {
	store   *repository.Store
	limiter *middleware.RateLimiter
	handler http.Handler
}

// newServer はストアを開き、全依存関係をワイヤリングしてルーターを構築する。
func newServer(ctx context.Context, cfg *config.Config) (*server, error) {
	// 1. ストア
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 3. 認証
	authService := newAuthService(cfg, store)
	authService.OnLoginFailure(collector.RecordLoginFailure)

	// 4. コンテンツサービス
	opts := content.Options{
		Users:           store.Users,
		Sanitizer:       security.NewContentSanitizer(),
		Recorder:        collector,
		FacetCacheSize:  cfg.FacetCacheSize,
		FacetCacheTTL:   cfg.FacetCacheTTL,
		UploadURLPrefix: cfg.UploadURLPrefix,
	}
	articles := content.NewArticleService(store.Articles, opts)
	caseStudies := content.NewCaseStudyService(store.CaseStudies, opts)
	whitepapers := content.NewWhitepaperService(
		store.Whitepapers, store.Leads, security.NewPDFProber(cfg.PDFProbeTimeout), opts,
	)

	// 5. アップロード先
	uploads, err := storage.New(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize upload storage: %w", err)
	}
	var staticDir, staticPrefix string
	if local, ok := uploads.(*storage.LocalStore); ok {
		staticDir, staticPrefix = local.Dir(), local.URLPrefix()
	}

	// 6. ルーター
	limiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitSensitive),
	)

	router := handler.NewRouter(&handler.RouterDeps{
		TokenVerifier:     authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       limiter,
		Logger:            slog.Default(),
		HTTPRecorder:      collector,

		AuthService: authService,
		UserService: authService,

		ArticleService:    articles,
		CaseStudyService:  caseStudies,
		WhitepaperService: whitepapers,
		Site:              handler.SiteInfo{Name: cfg.SiteName, BaseURL: cfg.SiteBaseURL},

		UploadStore:    uploads,
		UploadMaxBytes: cfg.UploadMaxBytes,
		StaticDir:      staticDir,
		StaticPrefix:   staticPrefix,

		Health:         store,
		Environment:    cfg.AppEnv,
		MetricsHandler: metrics.Handler(reg),
	})

	return &server{store: store, limiter: limiter, handler: router}, nil
}

// Close はレートリミッターを停止し、ストアを閉じる。
func (s *server) Close() error {
	s.limiter.Stop()
	return s.store.Close()
}

// runServe はAPIサーバーモードで起動する。
// コンテキストがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	srv, err := newServer(ctx, cfg)
	if err != nil {
		return err
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 保持期間を超過したリードの削除ジョブをスケジュール実行し、
// コンテキストがキャンセルされるまでブロックする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	job := cleanup.NewCleanupJob(store.Leads, slog.Default(), cfg.LeadRetentionDays)
	scheduler, err := cleanup.NewScheduler(job, slog.Default(), cfg.CleanupSchedule)
	if err != nil {
		return err
	}

	if err := scheduler.Start(ctx); err != nil {
		return err
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。fileバックエンドでは何もしない。
func runMigrate(cfg *config.Config) error {
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		slog.Info("running database migrations",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		)
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case config.BackendSQLite:
		slog.Info("running database migrations", slog.String("sqlite_path", cfg.SQLitePath))
		if err := database.RunSQLiteMigrations(cfg.SQLitePath); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	default:
		slog.Info("no migrations required", slog.String("backend", cfg.StorageBackend))
		return nil
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runSeed は環境変数で指定された管理者ユーザーを作成する。
// 同じメールアドレスのユーザーが既に存在する場合は何もしない。
func runSeed(ctx context.Context, cfg *config.Config) error {
	if cfg.SeedAdminEmail == "" || cfg.SeedAdminPassword == "" {
		return errors.New("SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD are required for seed")
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	created, err := newAuthService(cfg, store).EnsureUser(ctx, auth.RegisterInput{
		Email:     cfg.SeedAdminEmail,
		Password:  cfg.SeedAdminPassword,
		FirstName: cfg.SeedAdminFirstName,
		LastName:  cfg.SeedAdminLastName,
		Role:      model.RoleAdmin,
	})
	if err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	if created {
		slog.Info("admin user created", slog.String("email", cfg.SeedAdminEmail))
	} else {
		slog.Info("admin user already exists", slog.String("email", cfg.SeedAdminEmail))
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /api/health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/api/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
