package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/hitoshi/insighthub/internal/article"
	"github.com/hitoshi/insighthub/internal/client"
	"github.com/hitoshi/insighthub/internal/config"
	"github.com/hitoshi/insighthub/internal/database"
	"github.com/hitoshi/insighthub/internal/handler"
	"github.com/hitoshi/insighthub/internal/importer"
	"github.com/hitoshi/insighthub/internal/logger"
	"github.com/hitoshi/insighthub/internal/metrics"
	"github.com/hitoshi/insighthub/internal/middleware"
	"github.com/hitoshi/insighthub/internal/pagination"
	"github.com/hitoshi/insighthub/internal/repository"
	"github.com/hitoshi/insighthub/internal/security"
	"github.com/hitoshi/insighthub/internal/tui"
	"github.com/hitoshi/insighthub/internal/user"
	"github.com/hitoshi/insighthub/internal/worker/cleanup"
)

// Init はサーバー側コマンドの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. .envと環境変数から設定を読み込む
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでロガーを作り直す
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// InitClient はDB接続を必要としないコマンド（read, register, login）の初期化を行う。
func InitClient(w io.Writer) (*config.Config, error) {
	logger.SetupDefault(w, slog.LevelInfo)

	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg := config.LoadClient()
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(databaseURL)),
	)
	return db, nil
}

// newRegistry はアプリケーションのメトリクスに加えて、ランタイム・プロセス・
// DB接続プールのメトリクスを登録したレジストリを生成する。dbがnilの場合は
// DB接続プールのメトリクスを登録しない。
func newRegistry(db *sql.DB) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if db != nil {
		reg.MustRegister(collectors.NewDBStatsCollector(db, "insighthub"))
	}
	return reg
}

// newRouter はサーバーの依存関係をワイヤリングし、ルーターを構築する。
func newRouter(cfg *config.Config, db *sql.DB, reg *prometheus.Registry, collector *metrics.Collector, limiter *middleware.RateLimiter) http.Handler {
	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	articleRepo := repository.NewPostgresArticleRepo(db)

	// 2. ドメインサービスの初期化
	hasher := security.NewBcryptHasher(cfg.BcryptCost)
	userService := user.NewService(userRepo, hasher, collector)
	articleService := article.NewService(articleRepo, cfg.NewsPageSize, collector)

	// 3. ルーターの構築
	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       limiter,
		Metrics:           collector,

		NewsService:    handler.NewNewsServiceAdapter(articleService),
		AccountService: userService,

		DB:             db,
		MetricsHandler: metrics.Handler(reg),
	}

	return handler.NewRouter(deps)
}

// runServe はAPIサーバーを起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
// PruneRetentionDaysが正の場合、保持期間を過ぎた記事の定期削除も並行して実行する。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	reg := newRegistry(db)
	collector := metrics.NewCollector(reg)

	limiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral))
	defer limiter.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      newRouter(cfg, db, reg, collector, limiter),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.PruneRetentionDays > 0 {
		job := cleanup.NewCleanupJob(repository.NewPostgresArticleRepo(db), slog.Default(), collector)
		job.RetentionDays = cfg.PruneRetentionDays
		go job.Start(ctx, cfg.PruneInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.Int("page_size", cfg.NewsPageSize),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
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

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
	)
	return nil
}

// importOptions はimportコマンドの引数。
type importOptions struct {
	Sources     []string
	MaxAge      time.Duration
	Concurrency int
}

// runImport はフィードを読み込み、記事ストアに保存する。
// ソースごとの結果をoutに1行ずつ出力し、1件でも失敗した場合はエラーを返す。
func runImport(ctx context.Context, cfg *config.Config, out io.Writer, opts importOptions) error {
	db, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	guard := security.NewSSRFGuard()
	im := importer.NewImporter(
		repository.NewPostgresArticleRepo(db),
		security.NewSummarySanitizer(),
		guard.NewSafeClient(cfg.FetchTimeout),
		guard,
		collector,
		slog.Default(),
		cfg.FetchMaxSize,
	)

	results := im.ImportAll(ctx, opts.Sources, opts.MaxAge, opts.Concurrency)
	failed := writeImportResults(out, results)

	if err := pushMetrics(ctx, cfg.PushgatewayURL, "insighthub_import", reg); err != nil {
		slog.Warn("failed to push metrics", slog.String("error", err.Error()))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d sources failed to import", failed, len(results))
	}
	return nil
}

// writeImportResults はインポート結果を出力し、失敗したソース数を返す。
func writeImportResults(out io.Writer, results []importer.SourceResult) int {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(out, "%s: %v\n", r.Source, r.Err)
			continue
		}
		fmt.Fprintf(out, "%s: created=%d updated=%d unchanged=%d skipped=%d\n",
			r.Result.FeedURL, r.Result.Created, r.Result.Updated, r.Result.Unchanged, r.Result.Skipped)
	}
	return failed
}

// runPrune はretentionDays日より古い記事を1回だけ削除する。
func runPrune(ctx context.Context, cfg *config.Config, out io.Writer, retentionDays int) error {
	db, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	job := cleanup.NewCleanupJob(repository.NewPostgresArticleRepo(db), slog.Default(), collector)
	job.RetentionDays = retentionDays

	deleted, err := job.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Deleted %d articles older than %d days\n", deleted, retentionDays)

	if err := pushMetrics(ctx, cfg.PushgatewayURL, "insighthub_prune", reg); err != nil {
		slog.Warn("failed to push metrics", slog.String("error", err.Error()))
	}
	return nil
}

// pushMetrics はワンショットコマンドのメトリクスをPushgatewayに送る。
// pushURLが空の場合は何もしない。
func pushMetrics(ctx context.Context, pushURL, job string, g prometheus.Gatherer) error {
	if pushURL == "" {
		return nil
	}
	if err := push.New(pushURL, job).Gatherer(g).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push to %s: %w", pushURL, err)
	}
	return nil
}

// runRead はTUIでニュースを閲覧する。
func runRead(ctx context.Context, cfg *config.Config) error {
	c := client.New(cfg.APIBaseURL, nil, cfg.ClientTimeout)
	engine := pagination.NewEngine(c, cfg.ClientTimeout)

	slog.Debug("starting reader", slog.String("api_base_url", cfg.APIBaseURL))
	return tui.Run(ctx, engine)
}

// AccountClient はregister/loginコマンドが使うAPIクライアント。*client.Clientが満たす。
type AccountClient interface {
	Register(ctx context.Context, username, password string) (string, error)
	Login(ctx context.Context, username, password string) (string, error)
}

// runAccount は登録またはログインを実行し、サーバーのメッセージをそのまま出力する。
// 失敗時はサーバーのエラーメッセージをそのままエラーとして返す。
func runAccount(ctx context.Context, c AccountClient, out io.Writer, op, username, password string) error {
	var (
		msg string
		err error
	)
	switch op {
	case metrics.OpRegister:
		msg, err = c.Register(ctx, username, password)
	case metrics.OpLogin:
		msg, err = c.Login(ctx, username, password)
	default:
		return fmt.Errorf("unknown account operation: %s", op)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(out, msg)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	hc := &http.Client{Timeout: 5 * time.Second}

	resp, err := hc.Get(target)
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
// URLとして解釈できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
