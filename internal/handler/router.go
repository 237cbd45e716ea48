package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/sitepress/internal/content"
	"github.com/hitoshi/sitepress/internal/middleware"
	"github.com/hitoshi/sitepress/internal/model"
	"github.com/hitoshi/sitepress/internal/storage"
)

// 各ファミリーのサービスインターフェース。
type (
	ArticleServiceInterface   = ContentServiceInterface[*model.Article, *content.ArticleDetail, content.ArticleInput]
	CaseStudyServiceInterface = ContentServiceInterface[*model.CaseStudy, *content.CaseStudyDetail, content.CaseStudyInput]

	// WhitepaperServiceInterface はダウンロード受付を含むホワイトペーパーのサービスインターフェース。
	WhitepaperServiceInterface interface {
		ContentServiceInterface[*model.Whitepaper, *content.WhitepaperDetail, content.WhitepaperInput]
		DownloadServiceInterface
	}
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	HTTPRecorder      middleware.HTTPRecorder

	// 認証・ユーザー
	AuthService AuthServiceInterface
	UserService UserServiceInterface

	// コンテンツ
	ArticleService    ArticleServiceInterface
	CaseStudyService  CaseStudyServiceInterface
	WhitepaperService WhitepaperServiceInterface
	Site              SiteInfo

	// アップロード
	UploadStore    storage.Store
	UploadMaxBytes int64
	// StaticDir が空でない場合、StaticPrefix配下でアップロード済みファイルを配信する。
	StaticDir    string
	StaticPrefix string

	// 運用
	Health         Pinger
	Environment    string
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → RealIP → Logging → Metrics → RateLimit(General)
//
// 認証・ロール判定はルートグループ単位で適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.HTTPRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPRecorder))
	}
	r.Use(deps.RateLimiter.GeneralMiddleware())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, model.NewNotFoundError("Route"))
	})

	authHandler := NewAuthHandler(deps.AuthService)
	userHandler := NewUserHandler(deps.UserService)
	articleHandler := NewContentHandler(deps.ArticleService, "category")
	caseStudyHandler := NewContentHandler(deps.CaseStudyService, "industry")
	whitepaperHandler := NewContentHandler[*model.Whitepaper, *content.WhitepaperDetail, content.WhitepaperInput](deps.WhitepaperService, "topic")
	downloadHandler := NewDownloadHandler(deps.WhitepaperService)
	rssHandler := NewRSSHandler(deps.ArticleService, deps.Site)
	uploadHandler := NewUploadHandler(deps.UploadStore, deps.UploadMaxBytes)
	healthHandler := NewHealthHandler(deps.Health, deps.Environment)

	requireAuth := middleware.NewAuthMiddleware(deps.TokenVerifier)
	requireAdmin := middleware.RequireRole(model.RoleAdmin)
	requireStaff := middleware.RequireRole(model.RoleAdmin, model.RoleEditor)

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.Health)

		// 認証
		r.Route("/auth", func(r chi.Router) {
			r.With(deps.RateLimiter.SensitiveMiddleware()).Post("/login", authHandler.Login)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.With(requireAdmin).Post("/register", authHandler.Register)
				r.Get("/me", authHandler.Me)
				r.Put("/profile", authHandler.UpdateProfile)
				r.Put("/change-password", authHandler.ChangePassword)
			})
		})

		// ユーザー管理（管理者のみ）
		r.Route("/users", func(r chi.Router) {
			r.Use(requireAuth, requireAdmin)
			r.Get("/", userHandler.ListUsers)
			r.Put("/{id}", userHandler.UpdateUser)
			r.Delete("/{id}", userHandler.DeleteUser)
		})

		r.Route("/"+content.FamilyArticles, func(r chi.Router) {
			r.Get("/rss", rssHandler.Feed)
			articleHandler.routes(r, deps.TokenVerifier)
		})

		r.Route("/"+content.FamilyCaseStudies, func(r chi.Router) {
			caseStudyHandler.routes(r, deps.TokenVerifier)
		})

		r.Route("/"+content.FamilyWhitepapers, func(r chi.Router) {
			r.With(deps.RateLimiter.SensitiveMiddleware()).Post("/{slug}/download", downloadHandler.Download)
			whitepaperHandler.routes(r, deps.TokenVerifier)
		})

		r.With(requireAuth, requireStaff).Post("/uploads", uploadHandler.Upload)
	})

	if deps.StaticDir != "" {
		prefix := "/" + strings.Trim(deps.StaticPrefix, "/")
		r.Handle(prefix+"/*", http.StripPrefix(prefix, NewStaticHandler(deps.StaticDir)))
	}

	return r
}
