package api

import (
	"net/http"
	"time"

	"github.com/example/ec-shop/internal/api/middleware"
	"github.com/example/ec-shop/internal/auth"
	"github.com/example/ec-shop/internal/domain/user"
	"github.com/example/ec-shop/internal/metrics"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const defaultRequestTimeout = 30 * time.Second

// RouterDeps collects what NewRouter mounts. Metrics and Logger may be nil.
type RouterDeps struct {
	// RequestTimeout bounds each /api request. Zero means defaultRequestTimeout.
	RequestTimeout time.Duration

	Handlers   *Handlers
	Auth       *AuthHandlers
	Categories *CategoryHandlers
	Reviews    *ReviewHandlers
	JWT        *auth.JWTService
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP)
	r.Use(middleware.Observe(d.Logger, d.Metrics))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	requireAuth := middleware.AuthMiddleware(d.JWT)
	optionalAuth := middleware.OptionalAuthMiddleware(d.JWT)
	requireAdmin := middleware.RequireRole(user.RoleAdmin)
	h := d.Handlers
	requestTimeout := d.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(chimw.Timeout(requestTimeout))

		// Gateway callbacks authenticate by signature, not by token
		r.Post("/webhook/paystack", h.PaystackWebhook)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", d.Auth.Register)
			r.Post("/login", d.Auth.Login)
			r.Post("/logout", d.Auth.Logout)
			r.Post("/refresh", d.Auth.Refresh)
			r.Get("/verify-account", d.Auth.VerifyAccount)
			r.Post("/request-verification-link", d.Auth.RequestVerification)
			r.Post("/request-password-reset", d.Auth.RequestPasswordReset)
			r.Post("/reset-password", d.Auth.ResetPassword)
			r.With(requireAuth).Get("/me", d.Auth.Me)
			r.With(requireAuth).Put("/password", d.Auth.ChangePassword)
		})

		r.Route("/users/profile", func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/", d.Auth.GetProfile)
			r.Put("/", d.Auth.UpdateProfile)
			r.Delete("/", d.Auth.DeleteAccount)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.GetProducts)
			r.Get("/{id}", h.GetProduct)
			r.Group(func(r chi.Router) {
				r.Use(requireAuth, requireAdmin)
				r.Post("/", h.CreateProduct)
				r.Put("/{id}", h.UpdateProduct)
				r.Delete("/{id}", h.DeleteProduct)
				r.Put("/{id}/stock", h.SetProductStock)
			})
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", d.Categories.ListCategories)
			r.Get("/{id}", d.Categories.GetCategory)
			r.Group(func(r chi.Router) {
				r.Use(requireAuth, requireAdmin)
				r.Post("/", d.Categories.CreateCategory)
				r.Put("/{id}", d.Categories.UpdateCategory)
				r.Delete("/{id}", d.Categories.DeleteCategory)
			})
		})

		r.Route("/reviews", func(r chi.Router) {
			r.Get("/product/{productId}", d.Reviews.ListProductReviews)
			r.Get("/{id}", d.Reviews.GetReview)
			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", d.Reviews.CreateReview)
				r.Put("/{id}", d.Reviews.UpdateReview)
				r.Delete("/{id}", d.Reviews.DeleteReview)
			})
		})

		r.Route("/cart", func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/", h.GetCart)
			r.Post("/", h.AddToCart)
			r.Delete("/", h.ClearCart)
			r.Put("/items/{itemId}", h.UpdateCartItem)
			r.Delete("/items/{itemId}", h.RemoveFromCart)
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(optionalAuth).Post("/", h.PlaceOrder)
			r.With(optionalAuth).Get("/{id}", h.GetOrder)
			r.With(requireAuth).Get("/", h.GetOrders)
			r.With(requireAuth).Delete("/{id}", h.DeleteOrder)
		})

		r.Route("/admin/orders", func(r chi.Router) {
			r.Use(requireAuth, requireAdmin)
			r.Get("/", h.GetOrders)
			r.Get("/{id}", h.GetOrder)
			r.Put("/{id}/status", h.UpdateOrderStatus)
			r.Delete("/{id}", h.AdminDeleteOrder)
		})
	})

	return r
}
