package http

type CreateOrderItemRequest struct {
	ProductID uint64 `json:"product_id" binding:"required"`
	Quantity  int64  `json:"quantity" binding:"required,min=1"`
}

type CreateOrderRequest struct {
	Items         []CreateOrderItemRequest `json:"items" binding:"required,min=1,dive"`
	PaymentMethod string                   `json:"payment_method" binding:"required,oneof=balance xendit"`
}

type PayOrderRequest struct {
	Method string `json:"method" binding:"required"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=pending processing completed cancelled"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
