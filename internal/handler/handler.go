// Package handler exposes the fulfillment services over HTTP.
package handler

import (
	"github.com/go-chi/chi/v5"

	"github.com/xenking/kart-fulfillment/internal/domain/cart"
	"github.com/xenking/kart-fulfillment/internal/domain/catalog"
	"github.com/xenking/kart-fulfillment/internal/domain/order"
	"github.com/xenking/kart-fulfillment/internal/domain/payment"
	"github.com/xenking/kart-fulfillment/internal/domain/user"
)

// Services holds the domain services the handlers delegate to.
type Services struct {
	Catalog  *catalog.Service
	Users    *user.Service
	Carts    *cart.Accumulator
	Orders   *order.Service
	Payments *payment.Tracker
	Receiver *payment.Receiver
}

// Handler serves the /api routes.
type Handler struct {
	catalog  *catalog.Service
	users    *user.Service
	carts    *cart.Accumulator
	orders   *order.Service
	payments *payment.Tracker
	receiver *payment.Receiver
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(s Services) *Handler {
	return &Handler{
		catalog:  s.Catalog,
		users:    s.Users,
		carts:    s.Carts,
		orders:   s.Orders,
		payments: s.Payments,
		receiver: s.Receiver,
	}
}

// Routes returns a router with every API route mounted under /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Post("/add", h.AddToCart)
			r.Delete("/item/{lineId}", h.RemoveCartLine)
			r.Get("/{userId}", h.GetCart)
			r.Delete("/{userId}/clear", h.ClearCart)
		})
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.CreateOrder)
			r.Get("/user/{userId}", h.ListUserOrders)
			r.Get("/{orderId}", h.GetOrder)
			r.Post("/{orderId}/cancel", h.CancelOrder)
		})
		r.Route("/payments", func(r chi.Router) {
			r.Post("/create", h.CreatePayment)
			r.Get("/order/{orderId}", h.GetOrderPayment)
			r.Get("/{intentId}", h.GetPayment)
		})
		r.Post("/webhooks/payment", h.PaymentWebhook)
		r.Route("/items", func(r chi.Router) {
			r.Get("/", h.ListItems)
			r.Post("/", h.CreateItem)
			r.Get("/search", h.SearchItems)
			r.Get("/{id}", h.GetItem)
			r.Put("/{id}", h.UpdateItem)
			r.Delete("/{id}", h.DeleteItem)
			r.Post("/{id}/restock", h.RestockItem)
		})
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Get("/{id}", h.GetUser)
			r.Delete("/{id}", h.DeleteUser)
		})
	})
	return r
}
