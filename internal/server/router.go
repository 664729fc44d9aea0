package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/customers"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/customization"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/orders"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/preview"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/templates"
)

const (
	customerIDContextKey     = "storefront_customer_id"
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingTemplatesService = errors.New("templates service dependency required")
	errMissingCatalogService   = errors.New("catalog service dependency required")
	errMissingOrdersService    = errors.New("orders service dependency required")
	errMissingPreviewRenderer  = errors.New("preview renderer dependency required")
)

// SessionValidator authenticates a request from its session cookie.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// PreviewRenderer draws a template with partial answers.
type PreviewRenderer interface {
	Render(ctx context.Context, input customization.Input) (preview.Image, error)
}

// CustomerDirectory records who signed in.
type CustomerDirectory interface {
	Remember(ctx context.Context, claims auth.SessionClaims) (string, error)
	Get(ctx context.Context, customerID string) (customers.View, error)
}

type Dependencies struct {
	Sessions       SessionValidator
	Customers      CustomerDirectory
	Templates      *templates.Service
	Catalog        *catalog.Service
	Orders         *orders.Service
	Previews       PreviewRenderer
	Realtime       *RealtimeDispatcher
	AllowedOrigins []string
	// HeartbeatInterval paces keep-alive events on the order stream.
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.Sessions == nil:
		return nil, errMissingSessionValidator
	case deps.Templates == nil:
		return nil, errMissingTemplatesService
	case deps.Catalog == nil:
		return nil, errMissingCatalogService
	case deps.Orders == nil:
		return nil, errMissingOrdersService
	case deps.Previews == nil:
		return nil, errMissingPreviewRenderer
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions:  deps.Sessions,
		customers: deps.Customers,
		templates: deps.Templates,
		catalog:   deps.Catalog,
		orders:    deps.Orders,
		previews:  deps.Previews,
		realtime:  realtime,
		heartbeat: heartbeat,
		logger:    logger,
	}

	router.GET("/categories", handler.handleListCategories)
	router.GET("/templates", handler.handleListTemplates)
	router.GET("/templates/:id", handler.handleGetTemplate)
	router.GET("/templates/:id/required-fields", handler.handleRequiredFields)
	router.GET("/products", handler.handleListProducts)
	router.GET("/products/:id", handler.handleGetProduct)
	router.GET("/products/:id/quote", handler.handleQuote)
	router.POST("/previews", handler.handleRenderPreview)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/me", handler.handleAccount)
	protected.GET("/cart", handler.handleListCart)
	protected.POST("/cart", handler.handleAddCartLine)
	protected.PUT("/cart/:lineID", handler.handleUpdateCartLine)
	protected.DELETE("/cart/:lineID", handler.handleRemoveCartLine)
	protected.POST("/orders", handler.handlePlaceOrder)
	protected.GET("/orders", handler.handleListOrders)
	protected.GET("/orders/events", handler.handleOrderEvents)
	protected.GET("/orders/:id", handler.handleGetOrder)

	admin := protected.Group("/admin")
	admin.GET("/categories", handler.handleListCategories)
	admin.POST("/categories", handler.handleCreateCategory)
	admin.POST("/templates", handler.handleCreateTemplate)
	admin.PUT("/templates/:id", handler.handleUpdateTemplate)
	admin.DELETE("/templates/:id", handler.handleDeleteTemplate)
	admin.POST("/products", handler.handleCreateProduct)
	admin.PUT("/products/:id/tiers", handler.handleReplaceTiers)
	admin.PUT("/orders/:id/status", handler.handleAdvanceOrderStatus)

	return router, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Accept", "Last-Event-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

type httpHandler struct {
	sessions  SessionValidator
	customers CustomerDirectory
	templates *templates.Service
	catalog   *catalog.Service
	orders    *orders.Service
	previews  PreviewRenderer
	realtime  *RealtimeDispatcher
	heartbeat time.Duration
	logger    *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, jwt.ErrTokenExpired) || errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if h.customers != nil {
		if _, err := h.customers.Remember(c.Request.Context(), claims); err != nil {
			h.logger.Warn("customer profile not recorded", zap.String("customer_id", claims.CustomerID()), zap.Error(err))
		}
	}
	c.Set(customerIDContextKey, claims.CustomerID())
	c.Next()
}

func (h *httpHandler) handleAccount(c *gin.Context) {
	if h.customers == nil {
		c.JSON(http.StatusOK, customers.View{ID: customerID(c)})
		return
	}
	profile, err := h.customers.Get(c.Request.Context(), customerID(c))
	if err != nil {
		h.respondError(c, "get_account", err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func customerID(c *gin.Context) string {
	return c.GetString(customerIDContextKey)
}
