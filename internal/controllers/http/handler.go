package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/domain"
	"storefront/internal/infra/xendit"
	"storefront/internal/repository"
	"storefront/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

type Handler struct {
	settlement *services.SettlementService
	orders     *services.OrderService
	rdb        *redis.Client
	log        *zap.Logger
}

func NewHandler(settlement *services.SettlementService, orders *services.OrderService, rdb *redis.Client, log *zap.Logger) *Handler {
	return &Handler{settlement: settlement, orders: orders, rdb: rdb, log: log}
}

func (h *Handler) RegisterRoutes(r *gin.Engine, simulateEnabled bool) {
	r.GET("/payment-methods", h.PaymentMethods)

	// Webhook stand-in for test/staging only; in production the
	// gateway webhook takes this role and the route does not exist.
	if simulateEnabled {
		r.POST("/payment/simulate/:invoice_id", h.SimulatePayment)
	}

	auth := r.Group("/", Identity())
	auth.GET("/orders", h.ListOrders)
	auth.POST("/orders", h.CreateOrder)
	auth.GET("/orders/:id", h.GetOrder)
	auth.DELETE("/orders/:id", h.DeleteOrder)
	auth.POST("/orders/:id/pay", h.PayOrder)
	auth.POST("/orders/:id/check-payment", h.CheckPayment)
	auth.GET("/orders/:id/status", h.OrderStatus)
	auth.GET("/user/balance", h.UserBalance)

	admin := auth.Group("/admin", RequireAdmin())
	admin.GET("/orders", h.AdminListOrders)
	admin.GET("/orders/:id", h.AdminGetOrder)
	admin.PUT("/orders/:id/status", h.AdminUpdateStatus)
	admin.DELETE("/orders/:id", h.AdminDeleteOrder)
}

func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "validation_failed", Message: err.Error()})
		return
	}

	items := make([]services.CreateOrderItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, services.CreateOrderItemInput{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	ctx := c.Request.Context()
	order, paymentURL, err := h.settlement.CreateOrder(ctx, userID(c), items, domain.PaymentMethod(req.PaymentMethod))
	if err != nil {
		// The gateway path commits the order before opening the
		// invoice; tell the caller the order survived and Pay can
		// retry invoicing.
		if order != nil && errors.Is(err, xendit.ErrUnavailable) {
			h.invalidateUserOrders(order.UserID)
			c.JSON(http.StatusBadGateway, gin.H{
				"code":    "gateway_unavailable",
				"message": "order created, payment gateway unavailable, retry payment later",
				"order":   order,
			})
			return
		}
		h.respondError(c, err)
		return
	}

	h.invalidateUserOrders(order.UserID)

	resp := gin.H{"message": "order created", "order": order}
	if paymentURL != "" {
		resp["payment_url"] = paymentURL
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) ListOrders(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)

	cacheKey := "orders:user:" + strconv.FormatUint(uid, 10)
	if h.rdb != nil && !isAdmin(c) {
		if cached, err := h.rdb.Get(ctx, cacheKey).Result(); err == nil {
			var orders []domain.Order
			if json.Unmarshal([]byte(cached), &orders) == nil {
				c.JSON(http.StatusOK, orders)
				return
			}
		}
	}

	orders, _, err := h.orders.List(ctx, uid, isAdmin(c), repository.OrderListFilter{Limit: 100})
	if err != nil {
		h.respondError(c, err)
		return
	}

	if h.rdb != nil && !isAdmin(c) {
		if data, err := json.Marshal(orders); err == nil {
			h.rdb.Set(ctx, cacheKey, data, 10*time.Second)
		}
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) GetOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	order, err := h.orders.Get(c.Request.Context(), userID(c), isAdmin(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) DeleteOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	if err := h.orders.Delete(c.Request.Context(), userID(c), isAdmin(c), id); err != nil {
		h.respondError(c, err)
		return
	}
	h.invalidateUserOrders(userID(c))
	c.JSON(http.StatusOK, gin.H{"message": "order deleted"})
}

func (h *Handler) PayOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var req PayOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "validation_failed", Message: err.Error()})
		return
	}

	order, paymentURL, err := h.settlement.Pay(c.Request.Context(), userID(c), isAdmin(c), id, req.Method)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.invalidateUserOrders(order.UserID)

	resp := gin.H{"success": true, "order": order}
	if paymentURL != "" {
		resp["message"] = "continue payment via invoice"
		resp["payment_url"] = paymentURL
	} else {
		resp["message"] = "payment successful"
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) CheckPayment(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	order, invoiceStatus, err := h.settlement.CheckPayment(c.Request.Context(), userID(c), isAdmin(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.invalidateUserOrders(order.UserID)

	c.JSON(http.StatusOK, gin.H{
		"order":          order,
		"invoice_status": invoiceStatus,
	})
}

func (h *Handler) OrderStatus(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	order, err := h.orders.GetStatus(c.Request.Context(), userID(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order":          order,
		"status":         order.Status,
		"payment_status": order.PaymentStatus,
		"paid_at":        order.PaidAt,
	})
}

func (h *Handler) SimulatePayment(c *gin.Context) {
	invoiceID := c.Param("invoice_id")

	order, err := h.settlement.Simulate(c.Request.Context(), invoiceID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.invalidateUserOrders(order.UserID)

	c.JSON(http.StatusCreated, gin.H{
		"message": "payment simulation successful",
		"order":   order,
	})
}

func (h *Handler) PaymentMethods(c *gin.Context) {
	ctx := c.Request.Context()
	const cacheKey = "payment-methods"

	if h.rdb != nil {
		if cached, err := h.rdb.Get(ctx, cacheKey).Result(); err == nil {
			c.Data(http.StatusOK, "application/json", []byte(cached))
			return
		}
	}

	catalog := services.PaymentMethods()
	if h.rdb != nil {
		if data, err := json.Marshal(catalog); err == nil {
			h.rdb.Set(ctx, cacheKey, data, time.Hour)
		}
	}
	c.JSON(http.StatusOK, catalog)
}

func (h *Handler) UserBalance(c *gin.Context) {
	balance, err := h.orders.GetBalance(c.Request.Context(), userID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"balance": balance,
		"user_id": userID(c),
	})
}

func (h *Handler) AdminListOrders(c *gin.Context) {
	f := repository.OrderListFilter{Search: c.Query("search")}

	if s := c.Query("status"); s != "" && s != "all" {
		st := domain.OrderStatus(s)
		f.Status = &st
	}
	if s := c.Query("payment_status"); s != "" && s != "all" {
		ps := domain.PaymentStatus(s)
		f.PaymentStatus = &ps
	}
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		f.Limit = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil {
		f.Offset = v
	}

	orders, total, err := h.orders.List(c.Request.Context(), userID(c), true, f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "total": total})
}

func (h *Handler) AdminGetOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	order, err := h.orders.Get(c.Request.Context(), userID(c), true, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (h *Handler) AdminUpdateStatus(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var req UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "validation_failed", Message: err.Error()})
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), id, domain.OrderStatus(req.Status))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.invalidateUserOrders(order.UserID)

	c.JSON(http.StatusOK, gin.H{"message": "order status updated", "order": order})
}

func (h *Handler) AdminDeleteOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	if err := h.orders.Delete(c.Request.Context(), userID(c), true, id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "order deleted"})
}

func orderID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "validation_failed", Message: "invalid order id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) invalidateUserOrders(uid uint64) {
	if h.rdb == nil {
		return
	}
	h.rdb.Del(context.Background(), "orders:user:"+strconv.FormatUint(uid, 10))
}

// respondError maps the service error taxonomy to HTTP statuses with
// stable codes, so clients can tell "nothing happened, retry is safe"
// from "unknown outcome".
func (h *Handler) respondError(c *gin.Context, err error) {
	type mapping struct {
		target error
		status int
		code   string
	}
	mappings := []mapping{
		{services.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
		{services.ErrInvoiceNotFound, http.StatusNotFound, "invoice_not_found"},
		{services.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
		{services.ErrForbidden, http.StatusForbidden, "forbidden"},
		{services.ErrOrderPaidImmutable, http.StatusConflict, "order_paid_immutable"},
		{services.ErrEmptyItems, http.StatusBadRequest, "empty_items"},
		{services.ErrQuantityInvalid, http.StatusBadRequest, "invalid_quantity"},
		{services.ErrProductNotFound, http.StatusBadRequest, "product_not_found"},
		{services.ErrInsufficientStock, http.StatusBadRequest, "insufficient_stock"},
		{services.ErrInsufficientBalance, http.StatusBadRequest, "insufficient_balance"},
		{services.ErrAlreadyPaid, http.StatusBadRequest, "already_paid"},
		{services.ErrInvalidPaymentMethod, http.StatusBadRequest, "invalid_payment_method"},
		{services.ErrNoInvoice, http.StatusBadRequest, "no_invoice"},
		{services.ErrInvalidStatus, http.StatusBadRequest, "invalid_status"},
		{xendit.ErrUnavailable, http.StatusBadGateway, "gateway_unavailable"},
	}
	for _, m := range mappings {
		if errors.Is(err, m.target) {
			c.JSON(m.status, ErrorResponse{Code: m.code, Message: err.Error()})
			return
		}
	}

	h.log.Error("request failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "internal", Message: "something went wrong, try again"})
}
