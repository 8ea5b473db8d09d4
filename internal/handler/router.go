package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/friendsplace/internal/metrics"
	"github.com/hitoshi/friendsplace/internal/middleware"
	"github.com/hitoshi/friendsplace/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Authenticator     middleware.Authenticator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	// AuthLimiter は公開認証エンドポイントのIP単位制限。nilの場合はRateLimiterを使う。
	AuthLimiter middleware.AuthLimiter
	Logger      *slog.Logger
	Metrics     metrics.MetricsCollector

	// 運用
	DB             Pinger
	MetricsHandler http.Handler

	// サービス
	AuthService    AuthServiceInterface
	UserService    UserServiceInterface
	FriendService  FriendServiceInterface
	PostService    PostServiceInterface
	CommentService CommentServiceInterface
	ReactService   ReactServiceInterface

	// MaxUploadSize はアップロード画像1枚あたりの上限バイト数。
	MaxUploadSize int64
	// ErrorDetail がtrueの場合、予期しないエラーの内容をレスポンスに含める（開発環境用）。
	ErrorDetail bool
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → Metrics → SecurityHeaders → CORS → (AuthRateLimit | Session → RateLimit(General) → RequireRole)
//
// サインアップやログインなどの公開認証ルートはセッションを要求せず、IP単位のレート制限のみ適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	m := deps.Metrics
	if m == nil {
		m = metrics.Nop{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	authLimiter := deps.AuthLimiter
	if authLimiter == nil {
		authLimiter = deps.RateLimiter
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(m))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     "ROUTE_NOT_FOUND",
			Message:  "指定されたURLは存在しません。",
			Category: "validation",
			Action:   "URLを確認してください。",
		})
	})

	authHandler := NewAuthHandler(deps.AuthService, deps.ErrorDetail)
	userHandler := NewUserHandler(deps.UserService, deps.MaxUploadSize, deps.ErrorDetail)
	friendHandler := NewFriendHandler(deps.FriendService, deps.ErrorDetail)
	postHandler := NewPostHandler(deps.PostService, deps.MaxUploadSize, deps.ErrorDetail)
	commentHandler := NewCommentHandler(deps.CommentService, deps.MaxUploadSize, deps.ErrorDetail)
	reactHandler := NewReactHandler(deps.ReactService, deps.ErrorDetail)

	// --- 運用エンドポイント ---
	r.Get("/health", Health(deps.DB))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	session := middleware.NewSessionMiddleware(deps.Authenticator)
	general := deps.RateLimiter.GeneralMiddleware()

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			// --- 認証不要のルート ---
			r.Group(func(r chi.Router) {
				r.Use(middleware.NewAuthRateLimitMiddleware(authLimiter, m))

				r.Post("/signup", authHandler.Signup)
				r.Patch("/verifyEmail/{token}", authHandler.VerifyEmail)
				r.Post("/login", authHandler.Login)
				r.Post("/forgotPassword", authHandler.ForgotPassword)
				r.Patch("/resetPassword/{token}", authHandler.ResetPassword)
			})

			// --- 認証が必要なルート ---
			// ミドルウェアスタック: Session → RateLimit(General)
			r.Group(func(r chi.Router) {
				r.Use(session, general)

				r.Patch("/updateMyPassword", authHandler.UpdateMyPassword)
				r.Get("/me", userHandler.Me)
				r.Patch("/updateMe", userHandler.UpdateMe)
				r.Patch("/updateMyDetails", userHandler.UpdateMyDetails)
				r.Delete("/deleteMe", userHandler.DeleteMe)
				r.Patch("/savePost/{postId}", userHandler.SavePost)

				// フレンド
				r.Get("/me/friends", friendHandler.Friends)
				r.Get("/me/requests", friendHandler.Requests)
				r.Patch("/sendFriendRequest/{receiverId}", friendHandler.SendFriendRequest)
				r.Patch("/acceptFriendRequest/{senderId}", friendHandler.AcceptFriendRequest)
				r.Patch("/deleteFriendRequest/{senderId}", friendHandler.DeleteFriendRequest)
				r.Patch("/removeFriend/{friendId}", friendHandler.RemoveFriend)

				// 管理者
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireRole(model.RoleAdmin))
					r.Get("/", userHandler.List)
					r.Post("/", userHandler.Create)
					r.Get("/{id}", userHandler.Get)
					r.Patch("/{id}", userHandler.Update)
					r.Delete("/{id}", userHandler.Delete)
				})
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(session, general)

			r.Route("/posts", func(r chi.Router) {
				r.Get("/", postHandler.List)
				r.Post("/", postHandler.Create)

				r.Route("/{postId}", func(r chi.Router) {
					r.Get("/", postHandler.Get)
					r.Patch("/", postHandler.Update)
					r.Delete("/", postHandler.Delete)

					r.Get("/reacts", reactHandler.ListByPost)
					r.Post("/reacts", reactHandler.React)
					r.Get("/comments", commentHandler.ListByPost)
					r.Post("/comments", commentHandler.Create)
				})
			})

			// 管理者
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(model.RoleAdmin))

				r.Route("/reacts", func(r chi.Router) {
					r.Get("/", reactHandler.List)
					r.Post("/", reactHandler.Create)
					r.Get("/{id}", reactHandler.Get)
					r.Patch("/{id}", reactHandler.Update)
					r.Delete("/{id}", reactHandler.Delete)
				})

				r.Route("/comments", func(r chi.Router) {
					r.Get("/", commentHandler.List)
					r.Get("/{id}", commentHandler.Get)
					r.Patch("/{id}", commentHandler.Update)
					r.Delete("/{id}", commentHandler.Delete)
				})
			})
		})
	})

	return r
}
