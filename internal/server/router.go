package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rlee0/assistant-sub002/internal/auth"
	"github.com/rlee0/assistant-sub002/internal/chats"
	"github.com/rlee0/assistant-sub002/internal/metrics"
	"github.com/rlee0/assistant-sub002/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	ownerContextKey          = "chatsync_owner_id"
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingChatService = errors.New("chat service dependency required")
	errMissingIdentity    = errors.New("identity resolver dependency required")
)

// ChatService is the store-facing surface the handlers depend on.
type ChatService interface {
	ApplyUpdate(ctx context.Context, ownerID chats.OwnerID, request chats.UpdateRequest) (chats.UpdateResult, error)
	CreateChat(ctx context.Context, ownerID chats.OwnerID, title string) (chats.ChatSummary, error)
	GetChat(ctx context.Context, ownerID chats.OwnerID, chatID chats.ChatID) (chats.ChatDetail, error)
	ListChats(ctx context.Context, ownerID chats.OwnerID) ([]chats.ChatSummary, error)
	DeleteChat(ctx context.Context, ownerID chats.OwnerID, chatID chats.ChatID) error
}

type Dependencies struct {
	ChatService       ChatService
	Identity          IdentityResolver
	Realtime          *RealtimeDispatcher
	RateLimiter       *ratelimit.Limiter
	Logger            *zap.Logger
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.ChatService == nil {
		return nil, errMissingChatService
	}
	if deps.Identity == nil {
		return nil, errMissingIdentity
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
	router.Use(metrics.GinMiddleware())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		chatService: deps.ChatService,
		identity:    deps.Identity,
		realtime:    realtime,
		limiter:     deps.RateLimiter,
		logger:      logger,
		heartbeat:   heartbeat,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.Use(handler.authorizeRequest, handler.rateLimit)
	api.PATCH("/chat", handler.handleUpdateChat)
	api.PUT("/chat", handler.handleUpdateChat)
	api.POST("/chats", handler.handleCreateChat)
	api.GET("/chats", handler.handleListChats)
	api.GET("/chats/stream", handler.handleChatStream)
	api.GET("/chats/:id", handler.handleGetChat)
	api.DELETE("/chats/:id", handler.handleDeleteChat)

	return router, nil
}

type httpHandler struct {
	chatService ChatService
	identity    IdentityResolver
	realtime    *RealtimeDispatcher
	limiter     *ratelimit.Limiter
	logger      *zap.Logger
	heartbeat   time.Duration
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}
	return cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			if len(allowed) == 0 {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	ownerID, err := h.identity.ResolveRequest(c.Request)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingSessionToken), errors.Is(err, auth.ErrExpiredSessionToken):
			h.logger.Info("session validation failed", zap.Error(err))
		default:
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		abortWithError(c, http.StatusUnauthorized, errorCodeUnauthorized, "a valid session is required")
		return
	}
	c.Set(ownerContextKey, ownerID)
	c.Next()
}

func (h *httpHandler) rateLimit(c *gin.Context) {
	if h.limiter == nil {
		c.Next()
		return
	}
	ownerID, ok := ownerFromContext(c)
	if !ok {
		c.Next()
		return
	}
	if !h.limiter.Allow(ownerID.String()) {
		metrics.RateLimitedTotal.Inc()
		abortWithError(c, http.StatusTooManyRequests, errorCodeRateLimited, "too many requests")
		return
	}
	c.Next()
}

func ownerFromContext(c *gin.Context) (chats.OwnerID, bool) {
	value, ok := c.Get(ownerContextKey)
	if !ok {
		return "", false
	}
	ownerID, ok := value.(chats.OwnerID)
	if !ok || ownerID == "" {
		return "", false
	}
	return ownerID, true
}
