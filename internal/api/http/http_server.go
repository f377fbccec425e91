package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/olyamironova/peer-exchange/internal/api/dto"
	"github.com/olyamironova/peer-exchange/internal/core"
	"github.com/olyamironova/peer-exchange/internal/domain"
	"github.com/olyamironova/peer-exchange/internal/middleware"
	"github.com/olyamironova/peer-exchange/internal/node"
	"github.com/olyamironova/peer-exchange/internal/port"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type HTTPServer struct {
	svc    *node.Service
	logger *zap.Logger
	router *gin.Engine
}

// NewHTTPServer wires the gateway routes. gatherer backs GET /metrics.
func NewHTTPServer(svc *node.Service, logger *zap.Logger, limiter *middleware.RateLimiter, gatherer prometheus.Gatherer) *HTTPServer {
	s := &HTTPServer{svc: svc, logger: logger}

	r := gin.New()
	r.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(logger, true))
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", middleware.ClientIDHeader},
		MaxAge:       12 * time.Hour,
	}))

	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	r.GET("/orders/:id", s.getOrder)
	r.GET("/orders/:id/trades", s.getTradesForOrder)
	r.GET("/orderbook", s.getOrderbook)
	r.GET("/trades", s.getTrades)

	mutating := r.Group("/")
	if limiter != nil {
		mutating.Use(limiter.Middleware())
	}
	mutating.POST("/orders", s.submitOrder)
	mutating.POST("/orders/cancel", s.cancelOrder)
	mutating.POST("/checkpoint", s.checkpoint)

	s.router = r
	return s
}

// Router returns the gin engine, mainly for tests.
func (s *HTTPServer) Router() *gin.Engine { return s.router }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http gateway listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) health(c *gin.Context) {
	eng := s.svc.Engine()
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"height":  eng.Height(),
		"pending": eng.PendingLen(),
	})
}

func (s *HTTPServer) submitOrder(c *gin.Context) {
	var req dto.SubmitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Field: "body"})
		return
	}
	o := req.ToDomain()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}

	blk, err := s.svc.Submit(c.Request.Context(), o)
	if err != nil {
		s.writeError(c, err)
		return
	}
	admitted, err := s.svc.Order(c.Request.Context(), o.ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.SubmitOrderResponse{
		Order: dto.FromOrder(&admitted),
		Block: dto.FromBlock(blk),
	})
}

func (s *HTTPServer) cancelOrder(c *gin.Context) {
	var req dto.CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Field: "order_id"})
		return
	}
	c.JSON(http.StatusOK, dto.CancelOrderResponse{
		OrderID:   req.OrderID,
		Cancelled: s.svc.Cancel(c.Request.Context(), req.OrderID),
	})
}

func (s *HTTPServer) checkpoint(c *gin.Context) {
	blk := s.svc.Checkpoint(c.Request.Context())
	c.JSON(http.StatusOK, dto.CheckpointResponse{Executed: blk != nil, Block: dto.FromBlock(blk)})
}

func (s *HTTPServer) getOrder(c *gin.Context) {
	o, err := s.svc.Order(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.GetOrderResponse{Order: dto.FromOrder(&o)})
}

func (s *HTTPServer) getTradesForOrder(c *gin.Context) {
	trades, err := s.svc.TradesForOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.GetTradesResponse{Trades: dto.FromTrades(trades)})
}

// getTrades lists the ledger, optionally narrowed with ?client_id=.
func (s *HTTPServer) getTrades(c *gin.Context) {
	trades := s.svc.Trades(c.Request.Context(), c.Query("client_id"))
	c.JSON(http.StatusOK, dto.GetTradesResponse{Trades: dto.FromTrades(trades)})
}

func (s *HTTPServer) getOrderbook(c *gin.Context) {
	var req dto.GetOrderbookRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Field: "symbol"})
		return
	}
	ob, err := s.svc.Orderbook(c.Request.Context(), req.Symbol)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.GetOrderbookResponse{
		Symbol:    ob.Symbol,
		Bids:      dto.FromOrders(ob.Bids),
		Asks:      dto.FromOrders(ob.Asks),
		Timestamp: ob.Timestamp,
	})
}

func (s *HTTPServer) writeError(c *gin.Context, err error) {
	var invalid *domain.InvalidOrderError
	switch {
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: invalid.Error(), Field: invalid.Field})
	case errors.Is(err, core.ErrDuplicateOrder):
		c.JSON(http.StatusConflict, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, port.ErrNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
	default:
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal error"})
	}
}
