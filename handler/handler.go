// Package handler exposes the storefront over HTTP.
package handler

import (
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	storefront "gofalre.io/storefront"
	"gofalre.io/storefront/models"
)

//go:embed templates/*.html
var templateFS embed.FS

type Handler struct {
	svc    storefront.Service
	tmpl   *template.Template
	logger *zap.Logger

	// secureCookies marks the session cookie Secure.
	secureCookies bool
}

type Option func(*Handler)

// WithSecureCookies sets the Secure flag on the session cookie.
func WithSecureCookies(secure bool) Option {
	return func(h *Handler) {
		h.secureCookies = secure
	}
}

func NewHandler(svc storefront.Service, logger *zap.Logger, opts ...Option) (*Handler, error) {
	tmpl, err := template.New("storefront").Funcs(template.FuncMap{
		"money": FormatMoney,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	h := &Handler{
		svc:    svc,
		tmpl:   tmpl,
		logger: logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Routes builds the storefront router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/api/products", h.listProducts)
	r.Get("/api/products/{productID}", h.productPage)
	r.Get("/api/search", h.search)
	r.Get("/api/search-suggestions", h.searchSuggestions)
	r.Get("/api/shops", h.listStores)
	r.Get("/api/shops/{store}", h.storePage)

	r.Group(func(r chi.Router) {
		r.Use(h.session)

		r.Get("/cart", h.cartPage)
		r.Get("/api/cart", h.getCart)
		r.Post("/add-to-cart/{productID}", h.addToCart)
		r.Post("/update-cart/{productID}", h.updateCart)
		r.Post("/remove-from-cart/{productID}", h.removeFromCart)
		r.Post("/clear-cart", h.clearCart)
	})

	return r
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("HTTP request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// FormatMoney renders a server amount in the cart page format.
func FormatMoney(d decimal.Decimal) string {
	return models.FormatAmount(models.Money(d))
}
