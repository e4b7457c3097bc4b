package commerce

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Minter issues ephemeral realtime keys.
type Minter interface {
	Mint(ctx context.Context, sessionID string) (string, error)
}

type ServerConfig struct {
	// CORSOrigins lists the allowed browser origins. "*" allows any origin.
	CORSOrigins []string
	// Metrics is served on GET /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

// Server exposes the service over HTTP.
type Server struct {
	service *Service
	minter  Minter
	logger  *slog.Logger
	engine  *gin.Engine
}

type ephemeralKeyRequest struct {
	SessionID string `json:"session_id"`
}

type ephemeralKeyResponse struct {
	SessionID    string `json:"session_id"`
	EphemeralKey string `json:"ephemeral_key"`
}

type functionCallRequest struct {
	Name      string         `json:"name" binding:"required"`
	Arguments map[string]any `json:"arguments"`
}

func NewServer(service *Service, minter Minter, config ServerConfig) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		service: service,
		minter:  minter,
		logger:  logger,
		engine:  gin.New(),
	}
	s.engine.Use(gin.Recovery(), s.logRequests)

	if len(config.CORSOrigins) > 0 {
		c := cors.Config{
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			AllowCredentials: true,
		}
		if slices.Contains(config.CORSOrigins, "*") {
			c.AllowAllOrigins = true
		} else {
			c.AllowOrigins = config.CORSOrigins
		}
		s.engine.Use(cors.New(c))
	}

	s.engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Restaurant Voice Ordering API"})
	})
	if config.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(config.Metrics))
	}

	api := s.engine.Group("/api/v1")
	api.GET("/products", s.products)
	api.GET("/cart/:session_id", s.cart)
	api.POST("/openai/ephemeral-key", s.ephemeralKey)
	api.POST("/openai/function-call", s.functionCall)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) logRequests(c *gin.Context) {
	c.Next()
	s.logger.Debug("http request",
		slog.String("method", c.Request.Method),
		slog.String("path", c.FullPath()),
		slog.Int("status", c.Writer.Status()),
	)
}

func (s *Server) products(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"products": s.service.Catalog()})
}

func (s *Server) cart(c *gin.Context) {
	cart, err := s.service.Cart(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		s.logger.Error("load cart", slog.Any("err", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load cart"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items":    cart.Items,
		"total":    cart.Total(),
		"customer": cart.Customer,
	})
}

func (s *Server) ephemeralKey(c *gin.Context) {
	var req ephemeralKeyRequest
	// the body is optional
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	key, err := s.minter.Mint(c.Request.Context(), req.SessionID)
	if err != nil {
		s.logger.Error("mint ephemeral key", slog.String("session_id", req.SessionID), slog.Any("err", err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, ephemeralKeyResponse{SessionID: req.SessionID, EphemeralKey: key})
}

func (s *Server) functionCall(c *gin.Context) {
	var req functionCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.service.Execute(c.Request.Context(), req.Name, req.Arguments)
	if err != nil {
		s.logger.Error("execute function", slog.String("function", req.Name), slog.Any("err", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, res)
}
