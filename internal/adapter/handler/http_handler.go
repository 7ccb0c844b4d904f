package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/auth"
	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/core/domain"
	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/core/service"
	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/metrics"
)

const idempotencyHeader = "Idempotency-Key"

// Services bundles what both transports call into.
type Services struct {
	Users  *service.UserService
	Auth   *service.AuthService
	Items  *service.ItemService
	Carts  *service.CartService
	Orders *service.OrderService
}

type HTTPHandler struct {
	svc     Services
	metrics *metrics.ServerMetrics
	log     *slog.Logger
}

func NewHTTPHandler(svc Services, m *metrics.ServerMetrics, log *slog.Logger) *HTTPHandler {
	return &HTTPHandler{svc: svc, metrics: m, log: log}
}

// Router wires every route. Everything under /api except user creation requires a bearer token.
func (h *HTTPHandler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(h.log), Metrics(h.metrics))

	r.GET("/health", h.HealthCheck)
	r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	r.POST("/login", h.Login)

	api := r.Group("/api")
	api.POST("/user/create", h.CreateUser)

	secured := api.Group("")
	secured.Use(BearerAuth(h.svc.Auth))
	{
		secured.GET("/user/id/:id", h.GetUserByID)
		secured.GET("/user/:username", h.GetUserByUsername)

		secured.GET("/item", h.ListItems)
		secured.GET("/item/:id", h.GetItem)
		secured.GET("/item/name/:name", h.FindItemsByName)

		secured.GET("/cart/:username", h.GetCart)
		secured.POST("/cart/addToCart", h.AddToCart)
		secured.POST("/cart/removeFromCart", h.RemoveFromCart)

		secured.POST("/order/submit/:username", h.SubmitOrder)
		secured.GET("/order/history/:username", h.OrderHistory)
	}

	return r
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.metrics.ObserveLogin(false)
		c.Status(http.StatusUnauthorized)
		return
	}

	token, err := h.svc.Auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.metrics.ObserveLogin(false)
		if !errors.Is(err, domain.ErrAuthentication) {
			h.writeError(c, err)
			return
		}
		c.Status(http.StatusUnauthorized)
		return
	}

	h.metrics.ObserveLogin(true)
	c.Header(auth.HeaderName, auth.TokenPrefix+token)
	c.Status(http.StatusOK)
}

func (h *HTTPHandler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, err := h.svc.Users.CreateUser(c.Request.Context(), req.Username, req.Password, req.ConfirmPassword)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

func (h *HTTPHandler) GetUserByID(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	user, err := h.svc.Users.GetUserByID(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

func (h *HTTPHandler) GetUserByUsername(c *gin.Context) {
	user, err := h.svc.Users.GetUserByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

func (h *HTTPHandler) ListItems(c *gin.Context) {
	items, err := h.svc.Items.ListItems(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toItemResponses(items))
}

func (h *HTTPHandler) GetItem(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	item, err := h.svc.Items.GetItem(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toItemResponse(item))
}

func (h *HTTPHandler) FindItemsByName(c *gin.Context) {
	items, err := h.svc.Items.FindByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toItemResponses(items))
}

func (h *HTTPHandler) GetCart(c *gin.Context) {
	cart, err := h.svc.Carts.GetCart(c.Request.Context(), c.Param("username"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(cart))
}

func (h *HTTPHandler) AddToCart(c *gin.Context) {
	var req modifyCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	cart, err := h.svc.Carts.AddToCart(c.Request.Context(), req.Username, req.ItemID, req.Quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(cart))
}

func (h *HTTPHandler) RemoveFromCart(c *gin.Context) {
	var req modifyCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	cart, err := h.svc.Carts.RemoveFromCart(c.Request.Context(), req.Username, req.ItemID, req.Quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(cart))
}

func (h *HTTPHandler) SubmitOrder(c *gin.Context) {
	order, err := h.svc.Orders.SubmitOrder(c.Request.Context(), c.Param("username"), c.GetHeader(idempotencyHeader))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

func (h *HTTPHandler) OrderHistory(c *gin.Context) {
	orders, err := h.svc.Orders.GetOrdersForUser(c.Request.Context(), c.Param("username"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponses(orders))
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	status, message := httpStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed",
			slog.String("method", c.Request.Method),
			slog.String("route", c.FullPath()),
			slog.Any("err", err),
		)
	}
	c.JSON(status, gin.H{"error": message})
}

func httpStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, domain.ErrItemNotFound):
		return http.StatusNotFound, "item not found"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrAuthentication):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrDuplicateUsername):
		return http.StatusBadRequest, "username already taken"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict, "duplicate request"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict, please retry"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
