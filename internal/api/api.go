// Package api exposes the read-only HTTP surface over indexed transfers.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chainwatch/erc20-indexer/internal/store"
)

// TokenInfo describes the single token this indexer tracks.
type TokenInfo struct {
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
}

// TransfersResponse is the payload returned by GET /eth/transfers.
type TransfersResponse struct {
	Token     TokenInfo        `json:"token"`
	Transfers []store.Transfer `json:"transfers"`
}

// Handler serves the read API backed by a Store.
type Handler struct {
	store  store.Store
	token  TokenInfo
	logger *zap.Logger
}

// NewHandler constructs a Handler for st, describing the indexed token
// with the given decimals and symbol.
func NewHandler(st store.Store, decimals uint8, symbol string, logger *zap.Logger) *Handler {
	return &Handler{
		store:  st,
		token:  TokenInfo{Decimals: decimals, Symbol: symbol},
		logger: logger,
	}
}

// NewRouter builds the gin engine for the read API, with permissive CORS
// so any frontend can query it directly.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	r.GET("/eth/transfers", h.listTransfers)
	r.GET("/healthz", h.health)

	return r
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// listTransfers serves GET /eth/transfers?sender=&recipient=, filtering
// by either parameter when present.
func (h *Handler) listTransfers(c *gin.Context) {
	var sender, recipient *string
	if v := c.Query("sender"); v != "" {
		sender = &v
	}
	if v := c.Query("recipient"); v != "" {
		recipient = &v
	}

	transfers, err := h.store.Query(c.Request.Context(), sender, recipient)
	if err != nil {
		h.logger.Error("api: query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query transfers"})
		return
	}

	c.JSON(http.StatusOK, TransfersResponse{
		Token:     h.token,
		Transfers: transfers,
	})
}

// corsMiddleware allows any origin to read this API; it has no write
// endpoints and no credentials to protect.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
