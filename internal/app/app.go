package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/friendsplace/internal/auth"
	"github.com/hitoshi/friendsplace/internal/config"
	"github.com/hitoshi/friendsplace/internal/credential"
	"github.com/hitoshi/friendsplace/internal/database"
	"github.com/hitoshi/friendsplace/internal/handler"
	"github.com/hitoshi/friendsplace/internal/logger"
	"github.com/hitoshi/friendsplace/internal/mail"
	"github.com/hitoshi/friendsplace/internal/media"
	"github.com/hitoshi/friendsplace/internal/metrics"
	"github.com/hitoshi/friendsplace/internal/middleware"
	"github.com/hitoshi/friendsplace/internal/post"
	"github.com/hitoshi/friendsplace/internal/repository"
	"github.com/hitoshi/friendsplace/internal/security"
	"github.com/hitoshi/friendsplace/internal/social"
	"github.com/hitoshi/friendsplace/internal/user"
	"github.com/hitoshi/friendsplace/internal/worker/reconcile"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前のエラーもJSONで出せるようにする
	logger.SetupDefault(w, slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
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
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	registry, collector := newMetrics()

	// リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	friendRepo := repository.NewPostgresFriendRepo(db)
	postRepo := repository.NewPostgresPostRepo(db)
	commentRepo := repository.NewPostgresCommentRepo(db)
	reactRepo := repository.NewPostgresReactRepo(db)

	// 資格情報とセキュリティ
	hasher := credential.NewPasswordHasher(cfg.BcryptCost)
	tokens := credential.NewTokenIssuer(cfg.JWTSecret, credential.TokenConfig{
		SessionTTL: cfg.SessionTokenTTL,
		VerifyTTL:  cfg.VerifyTokenTTL,
		ResetTTL:   cfg.ResetTokenTTL,
	})
	urlGuard := security.NewURLGuard()
	sanitizer := security.NewTextSanitizer()

	// 外部依存
	mailer, err := newMailer(cfg, urlGuard, collector)
	if err != nil {
		return err
	}
	uploader, err := newUploader(cfg, collector)
	if err != nil {
		return err
	}

	// ドメインサービス
	userService := user.NewService(userRepo, postRepo, hasher, uploader, urlGuard)
	authService := auth.NewService(userRepo, userService, hasher, tokens, mailer, collector)
	friendService := social.NewFriendService(friendRepo, collector)
	reactService := social.NewReactService(reactRepo, postRepo, userRepo, collector)
	postService := post.NewService(postRepo, commentRepo, reactRepo, uploader, sanitizer)
	commentService := post.NewCommentService(commentRepo, postRepo, uploader, sanitizer)

	// レート制限（configはreq/min単位）
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitAuth),
	)
	defer rateLimiter.Stop()

	authLimiter, closeRedis, err := newAuthLimiter(cfg)
	if err != nil {
		return err
	}
	defer closeRedis()

	deps := &handler.RouterDeps{
		Authenticator:     auth.NewGuard(tokens, userRepo, collector),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		AuthLimiter:       authLimiter,
		Logger:            slog.Default(),
		Metrics:           collector,

		DB:             db,
		MetricsHandler: metrics.Handler(registry),

		AuthService:    authService,
		UserService:    userService,
		FriendService:  friendService,
		PostService:    postService,
		CommentService: commentService,
		ReactService:   reactService,

		MaxUploadSize: cfg.UploadMaxSize,
		ErrorDetail:   cfg.IsDevelopment(),
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handler.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// newMailer はMAIL_API_URLが設定されていればHTTPメールAPI経由、
// 未設定ならログ出力のみのMailerを返す。
func newMailer(cfg *config.Config, guard security.URLGuard, m metrics.MetricsCollector) (*mail.Mailer, error) {
	var sender mail.Sender = mail.LogSender{}
	if cfg.MailAPIURL != "" {
		api := mail.NewAPISender(mail.APIConfig{
			URL:      cfg.MailAPIURL,
			APIKey:   cfg.MailAPIKey,
			From:     cfg.MailFrom,
			FromName: cfg.MailFromName,
		}, guard.NewSafeClient(cfg.MailTimeout))
		sender = mail.NewBreakerSender(api, mail.DefaultBreakerConfig, m)
	} else {
		slog.Warn("MAIL_API_URL is not set; emails will only be logged")
	}

	mailer, err := mail.NewMailer(sender, cfg.BaseURL, cfg.VerifyTokenTTL, cfg.ResetTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to build mailer: %w", err)
	}
	return mailer, nil
}

// newUploader はS3_BUCKETが設定されていればS3への画像アップローダーを返す。
// 未設定の場合、画像付きリクエストはUPLOAD_FAILEDになる。
func newUploader(cfg *config.Config, m metrics.MetricsCollector) (media.Uploader, error) {
	if cfg.S3Bucket == "" {
		slog.Warn("S3_BUCKET is not set; image uploads are disabled")
		return media.DisabledUploader{}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := media.NewS3Store(ctx, media.S3Config{
		Bucket:        cfg.S3Bucket,
		Region:        cfg.S3Region,
		Endpoint:      cfg.S3Endpoint,
		PublicBaseURL: cfg.S3PublicBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init object storage: %w", err)
	}
	return media.NewImageUploader(media.NewBreakerStore(store, 5, 30*time.Second), cfg.UploadMaxSize, m), nil
}

// newAuthLimiter はREDIS_URLが設定されていれば複数インスタンスで共有する
// 認証エンドポイント用リミッターを返す。未設定の場合はnilを返し、インメモリ制限を使う。
func newAuthLimiter(cfg *config.Config) (middleware.AuthLimiter, func(), error) {
	if cfg.RedisURL == "" {
		return nil, func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	slog.Info("auth rate limit backed by redis", slog.String("addr", opts.Addr))

	limiter := middleware.NewRedisWindowLimiter(client, "friendsplace:auth", cfg.RateLimitAuth, time.Minute)
	return limiter, func() { client.Close() }, nil
}

// newMetrics はランタイムメトリクスを含むレジストリとアプリケーションのCollectorを生成する。
func newMetrics() (*prometheus.Registry, *metrics.Collector) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry, metrics.NewCollector(registry)
}

// newWorkerMetricsServer はworkerプロセスの/metricsと/healthを公開するサーバーを生成する。
func newWorkerMetricsServer(port string, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler(registry))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// runWorker はワーカーモードで起動する。
// フレンドグラフの整合性ジョブをRECONCILE_INTERVALごとに実行し、修復件数を/metricsで公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry, collector := newMetrics()
	metricsServer := newWorkerMetricsServer(cfg.WorkerMetricsPort, registry)
	go func() {
		slog.Info("worker metrics server starting", slog.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker metrics server error", slog.String("error", err.Error()))
		}
	}()

	job := reconcile.NewJob(repository.NewPostgresFriendRepo(db), collector, slog.Default())

	slog.Info("worker starting", slog.Duration("reconcile_interval", cfg.ReconcileInterval))
	job.Start(ctx, cfg.ReconcileInterval)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("worker metrics server shutdown failed", slog.String("error", err.Error()))
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
