package rest

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ferrylabs/ferry/pkg/model"
	"github.com/ferrylabs/ferry/pkg/relayer"
	"github.com/ferrylabs/ferry/pkg/store"
)

// Server exposes the relayer over HTTP. Makers use the public order routes,
// the resolver uses the intent, verify and settle routes which are protected
// by basic auth when credentials are configured.
type Server struct {
	relayer relayer.Relayer
	logger  *zap.Logger

	useAuth bool
	authsha [sha256.Size]byte
}

// NewServer wires the relayer behind the HTTP surface. Empty credentials
// disable auth, which is only sensible for tests and local runs.
func NewServer(relay relayer.Relayer, logger *zap.Logger, user, pass string) *Server {
	server := &Server{
		relayer: relay,
		logger:  logger,
	}
	if user != "" || pass != "" {
		login := "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
		server.useAuth = true
		server.authsha = sha256.Sum256([]byte(login))
	}
	return server
}

// Router builds the gin engine. Exposed separately from Run so tests can
// drive it through httptest.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	router.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/orders", s.submitOrder)
	router.GET("/orders/:id", s.getOrder)
	router.GET("/orders", s.listOrders)
	router.POST("/orders/:id/cancel", s.cancelOrder)
	router.POST("/secret", s.submitSecret)

	resolverRoutes := router.Group("/")
	if s.useAuth {
		resolverRoutes.Use(s.authenticate)
	}
	resolverRoutes.GET("/resolve-intent", s.resolveIntent)
	resolverRoutes.POST("/verify", s.verify)
	resolverRoutes.POST("/orders/:id/settle", s.settleOrder)

	return router
}

// Run blocks serving the API on the given address.
func (s *Server) Run(addr string) error {
	return s.Router().Run(addr)
}

func (s *Server) authenticate(ctx *gin.Context) {
	header := ctx.GetHeader("Authorization")
	if header == "" {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing credentials"})
		return
	}
	sum := sha256.Sum256([]byte(header))
	if subtle.ConstantTimeCompare(sum[:], s.authsha[:]) != 1 {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
		return
	}
}

func (s *Server) submitOrder(ctx *gin.Context) {
	var req SubmitOrderRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	receipt, err := s.relayer.Submit(relayer.SubmitRequest{
		Chain:   req.Chain,
		Payload: req.Payload,
		Proof:   req.Proof,
	})
	if err != nil {
		s.renderError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, SubmitOrderResponse{
		OrderID:                 receipt.OrderID,
		Status:                  receipt.Status,
		Fee:                     receipt.Fee,
		EstimatedProcessingTime: receipt.ETA.String(),
	})
}

func (s *Server) getOrder(ctx *gin.Context) {
	order, err := s.relayer.Order(ctx.Param("id"))
	if err != nil {
		s.renderError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, order)
}

func (s *Server) listOrders(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.Query("limit"))
	offset, _ := strconv.Atoi(ctx.Query("offset"))
	filter := store.OrderFilter{
		Status:   model.OrderStatus(ctx.Query("status")),
		Chain:    model.Chain(ctx.Query("chain")),
		Resolver: ctx.Query("resolver"),
		Limit:    limit,
		Offset:   offset,
	}
	orders, err := s.relayer.Orders(filter)
	if err != nil {
		s.renderError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, ListOrdersResponse{Orders: orders})
}

func (s *Server) resolveIntent(ctx *gin.Context) {
	intent, err := s.relayer.ResolveIntent(ctx.Query("orderId"), ctx.Query("resolverId"))
	if err != nil {
		s.renderError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, IntentResponse{
		OrderID:     intent.OrderID,
		TargetChain: intent.TargetChain,
		Order:       intent.Order,
	})
}

func (s *Server) verify(ctx *gin.Context) {
	var req VerifyRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	result, err := s.relayer.Verify(ctx.Request.Context(), req.OrderID, req.EscrowSrc, req.EscrowDst)
	if err != nil {
		s.renderError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, VerifyResponse{Verified: result.Verified, Issues: result.Issues})
}

func (s *Server) submitSecret(ctx *gin.Context) {
	var req SecretRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	status, err := s.relayer.SubmitSecret(req.OrderID, req.Secret)
	if err != nil {
		s.renderError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, SecretResponse{Success: true, Status: status})
}

func (s *Server) cancelOrder(ctx *gin.Context) {
	if err := s.relayer.Cancel(ctx.Param("id")); err != nil {
		s.renderError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, CancelResponse{Success: true, Message: "order cancelled"})
}

func (s *Server) settleOrder(ctx *gin.Context) {
	var req SettleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	err := s.relayer.Settle(ctx.Param("id"), relayer.Outcome{
		Success:   req.Success,
		Error:     req.Error,
		SrcTxHash: req.SrcTxHash,
		DstTxHash: req.DstTxHash,
	})
	if err != nil {
		s.renderError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true})
}

// renderError maps the error taxonomy onto HTTP status codes: 400 for
// validation and state conflicts, 403 for a non-assigned resolver, 404 for
// unknown orders and 500 for everything unexpected.
func (s *Server) renderError(ctx *gin.Context, err error) {
	var validationErr relayer.ValidationError
	var conflictErr relayer.StateConflictError
	var authErr relayer.AuthorizationError

	switch {
	case errors.As(err, &validationErr):
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.As(err, &conflictErr):
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.As(err, &authErr):
		ctx.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrOrderNotFound):
		ctx.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	default:
		s.logger.Error("internal error", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
