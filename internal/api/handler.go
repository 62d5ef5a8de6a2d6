package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"storefront-core/internal/checkout"
	"storefront-core/internal/models"
	"storefront-core/internal/service"
	"storefront-core/internal/store"
	"storefront-core/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const userIDHeader = "X-User-ID"

// Handler contains HTTP handlers
type Handler struct {
	orderService *service.OrderService
	gateway      service.PaymentGateway
	store        *store.Store
	currency     string
}

// NewHandler creates a new HTTP handler
func NewHandler(orderService *service.OrderService, gateway service.PaymentGateway, st *store.Store, currency string) *Handler {
	return &Handler{
		orderService: orderService,
		gateway:      gateway,
		store:        st,
		currency:     currency,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/orders", h.createOrder)
	router.GET("/orders", h.listOrders)
	router.GET("/orders/:id", h.getOrder)
	router.GET("/orders/user/:userId", h.listUserOrders)
	router.PUT("/orders/:id/status", h.updateOrderStatus)

	router.POST("/checkout", h.submitCheckout)

	router.POST("/paypal/create-order", h.createGatewayOrder)
	router.POST("/paypal/capture-order/:id", h.captureGatewayOrder)

	router.POST("/notifications", h.createNotification)
	router.GET("/notifications", h.listNotifications)
	router.PUT("/notifications/:id/read", h.markNotificationRead)

	router.GET("/user-notifications", h.listUserNotifications)
	router.PUT("/user-notifications/read-all", h.markAllUserNotificationsRead)
	router.PUT("/user-notifications/:id/read", h.markUserNotificationRead)
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createOrder handles checkout submission
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.orderService.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// listOrders is the operator view of all orders.
func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orderService.ListAllOrders(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

// listUserOrders lists one user's orders.
func (h *Handler) listUserOrders(c *gin.Context) {
	orders, err := h.orderService.ListOrdersForUser(c.Request.Context(), c.Param("userId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

type updateStatusRequest struct {
	Status         models.OrderStatus `json:"status" binding:"required"`
	TrackingNumber string             `json:"tracking_number"`
}

// updateOrderStatus applies an operator status transition.
func (h *Handler) updateOrderStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, err := h.orderService.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, req.TrackingNumber)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type checkoutRequest struct {
	UserID          string                 `json:"user_id" binding:"required"`
	UserEmail       string                 `json:"user_email"`
	Items           []checkout.Item        `json:"items" binding:"required,min=1"`
	ShippingAddress models.ShippingAddress `json:"shipping_address"`
	PaymentMethod   string                 `json:"payment_method" binding:"required"`
	ShippingPrice   int64                  `json:"shipping_price"`
	TaxPrice        int64                  `json:"tax_price"`
}

// submitCheckout replays a completed client-side checkout flow and submits
// it. The flow validates each step transition; nothing is persisted before
// the final submit.
func (h *Handler) submitCheckout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	flow, err := checkout.New(req.Items, req.ShippingPrice, req.TaxPrice)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := flow.SetAddress(req.ShippingAddress); err != nil {
		respondError(c, err)
		return
	}
	if err := flow.SelectPaymentMethod(req.PaymentMethod); err != nil {
		respondError(c, err)
		return
	}

	order, err := flow.Submit(c.Request.Context(), h.orderService, h.gateway, req.UserID, req.UserEmail, h.currency)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

type createGatewayOrderRequest struct {
	Amount   int64  `json:"amount" binding:"required,min=1"`
	Currency string `json:"currency"`
}

// createGatewayOrder runs phase 1 of the card/wallet payment protocol.
func (h *Handler) createGatewayOrder(c *gin.Context) {
	var req createGatewayOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = h.currency
	}

	gatewayOrderID, err := h.gateway.CreateGatewayOrder(c.Request.Context(), req.Amount, currency)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": gatewayOrderID})
}

type captureGatewayOrderRequest struct {
	OrderID string `json:"order_id" binding:"required"`
}

// captureGatewayOrder runs phase 2 against the gateway order in the path and
// confirms the referenced order as paid. Confirmation is idempotent: a
// duplicate capture for an already-paid order is a no-op.
func (h *Handler) captureGatewayOrder(c *gin.Context) {
	var req captureGatewayOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	receipt, err := h.gateway.CaptureGatewayOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	order, err := h.orderService.ConfirmPayment(c.Request.Context(), req.OrderID, *receipt)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order, "receipt": receipt})
}

type createNotificationRequest struct {
	Type string                 `json:"type" binding:"required"`
	Data map[string]interface{} `json:"data"`
}

// createNotification appends an admin feed entry.
func (h *Handler) createNotification(c *gin.Context) {
	var req createNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	n := &models.Notification{
		Type: req.Type,
		Data: models.MarshalPayload(req.Data),
	}
	if err := h.store.InsertNotification(c.Request.Context(), n); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, n)
}

// listNotifications returns the admin feed.
func (h *Handler) listNotifications(c *gin.Context) {
	notifications, err := h.store.ListNotifications(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, notifications)
}

// markNotificationRead flips the read flag on an admin feed entry.
func (h *Handler) markNotificationRead(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid notification ID"})
		return
	}

	if err := h.store.MarkNotificationRead(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// listUserNotifications returns the caller's feed; the client polls this.
func (h *Handler) listUserNotifications(c *gin.Context) {
	userID := c.GetHeader(userIDHeader)
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing " + userIDHeader + " header"})
		return
	}

	notifications, err := h.store.ListUserNotifications(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, notifications)
}

// markUserNotificationRead flips the read flag on one of the caller's feed
// entries.
func (h *Handler) markUserNotificationRead(c *gin.Context) {
	userID := c.GetHeader(userIDHeader)
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing " + userIDHeader + " header"})
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid notification ID"})
		return
	}

	if err := h.store.MarkUserNotificationRead(c.Request.Context(), id, userID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// markAllUserNotificationsRead flips the read flag on every unread entry of
// the caller's feed.
func (h *Handler) markAllUserNotificationsRead(c *gin.Context) {
	userID := c.GetHeader(userIDHeader)
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing " + userIDHeader + " header"})
		return
	}

	count, err := h.store.MarkAllUserNotificationsRead(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": count})
}

// respondError maps the error taxonomy to HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, models.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrInsufficientStock):
		status = http.StatusConflict
	case errors.Is(err, models.ErrPaymentInit),
		errors.Is(err, models.ErrPaymentCapture):
		status = http.StatusBadGateway
	case errors.Is(err, models.ErrPaymentOutcomeUnknown):
		// The capture may have succeeded on the gateway's side; the
		// client must reconcile, not retry blindly.
		status = http.StatusGatewayTimeout
	}

	c.JSON(status, gin.H{"error": err.Error()})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
