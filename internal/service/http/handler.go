// Package http реализует витринный HTTP API: корзина и оформление заказа.
// Идентичность сессии приходит в заголовке X-Session-ID; корзина
// восстанавливается из хранилища на каждый запрос и сохраняется после
// каждой мутации.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/leduyvuong/ban-hang/internal/cart"
	"github.com/leduyvuong/ban-hang/internal/checkout"
	"github.com/leduyvuong/ban-hang/internal/domain"
)

// HeaderSessionID — заголовок с ключом сессии покупателя.
const HeaderSessionID = "X-Session-ID"

// Пагинация списка заказов.
const (
	defaultOrdersLimit = 20
	maxOrdersLimit     = 100
)

// Handler обслуживает витринные маршруты.
type Handler struct {
	catalog   domain.ProductRepository
	carts     domain.CartStore
	orders    domain.OrderRepository
	processor *checkout.Processor
	logger    *log.Entry
}

// NewHandler создаёт HTTP-обработчик витрины.
func NewHandler(
	catalog domain.ProductRepository,
	carts domain.CartStore,
	orders domain.OrderRepository,
	processor *checkout.Processor,
	logger *log.Entry,
) *Handler {
	if logger == nil {
		logger = log.WithField("component", "http")
	}
	return &Handler{
		catalog:   catalog,
		carts:     carts,
		orders:    orders,
		processor: processor,
		logger:    logger,
	}
}

// Routes собирает маршрутизатор витрины.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.getCart)
		r.Delete("/", h.clearCart)
		r.Post("/items", h.addItem)
		r.Patch("/items/{productID}", h.updateItem)
		r.Delete("/items/{productID}", h.removeItem)
		r.Post("/merge", h.mergeCart)
	})
	r.Post("/checkout", h.checkout)
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Get("/{orderID}", h.getOrder)
	})

	return r
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	c, err := h.loadCart(r, sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := c.PreloadProducts(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	// Preload мог выбросить позиции исчезнувших товаров.
	if err := h.carts.Save(r.Context(), sessionID, c.Serialize()); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, cartResponseFrom(c))
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	var req struct {
		ProductID int64       `json:"product_id"`
		Quantity  json.Number `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, domain.ErrInvalidQuantity)
		return
	}
	quantity, err := parseQuantity(req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	c, err := h.loadCart(r, sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := c.AddItem(r.Context(), req.ProductID, quantity); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.saveAndPreload(r, sessionID, c); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, cartResponseFrom(c))
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	productID, err := parseProductID(chi.URLParam(r, "productID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req struct {
		Quantity json.Number `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, domain.ErrInvalidQuantity)
		return
	}
	quantity, err := parseQuantity(req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	c, err := h.loadCart(r, sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := c.UpdateItem(r.Context(), productID, quantity); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.saveAndPreload(r, sessionID, c); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, cartResponseFrom(c))
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	productID, err := parseProductID(chi.URLParam(r, "productID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	c, err := h.loadCart(r, sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	c.RemoveItem(productID)
	if err := h.saveAndPreload(r, sessionID, c); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, cartResponseFrom(c))
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	if err := h.carts.Delete(r.Context(), sessionID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) mergeCart(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	var req struct {
		Entries []domain.CartEntry `json:"entries"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, domain.ErrInvalidQuantity)
		return
	}

	c, err := h.loadCart(r, sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	guest := cart.FromEntries(h.catalog, req.Entries)
	mergeErr := c.Merge(r.Context(), guest)
	// Позиции до первой ошибки уже применены — сохраняем их в любом случае.
	if err := h.saveAndPreload(r, sessionID, c); err != nil {
		h.writeError(w, r, err)
		return
	}
	if mergeErr != nil {
		h.writeError(w, r, mergeErr)
		return
	}

	writeJSON(w, http.StatusOK, cartResponseFrom(c))
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorBody(w, http.StatusBadRequest, "malformed checkout request")
		return
	}
	if err := req.validate(); err != nil {
		writeErrorBody(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := h.loadCart(r, sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := c.PreloadProducts(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}

	shopID, err := resolveShop(c)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	order, err := h.processor.Process(r.Context(), checkout.Input{
		UserID:   sessionID,
		ShopID:   shopID,
		Cart:     c,
		Shipping: req.Shipping.toDomain(),
		Currency: req.Currency,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// Заказ уже закоммичен; потерянная здесь очистка корзины приведёт
	// максимум к повторному заказу руками пользователя, не к рассинхрону.
	if err := h.carts.Delete(r.Context(), sessionID); err != nil {
		h.logger.WithError(err).WithField("session_id", sessionID).Warn("failed to clear cart after checkout")
	}

	writeJSON(w, http.StatusCreated, orderResponseFrom(order))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "orderID")

	order, err := h.orders.Get(r.Context(), orderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		// Человекочитаемый номер заказа тоже принимается.
		order, err = h.orders.GetByNumber(r.Context(), orderID)
	}
	// Чужой заказ неотличим от несуществующего.
	if err == nil && order.UserID != sessionID {
		err = domain.ErrOrderNotFound
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, orderResponseFrom(order))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	limit := defaultOrdersLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeErrorBody(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = clampOrdersLimit(parsed)
	}

	orders, err := h.orders.ListByUser(r.Context(), sessionID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	responses := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		responses = append(responses, orderResponseFrom(order))
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": responses})
}

func clampOrdersLimit(limit int) int {
	if limit > maxOrdersLimit {
		return maxOrdersLimit
	}
	return limit
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID := r.Header.Get(HeaderSessionID)
	if sessionID == "" {
		writeErrorBody(w, http.StatusBadRequest, "X-Session-ID header is required")
		return "", false
	}
	return sessionID, true
}

func (h *Handler) loadCart(r *http.Request, sessionID string) (*cart.Cart, error) {
	entries, err := h.carts.Load(r.Context(), sessionID)
	if err != nil {
		return nil, err
	}
	return cart.FromEntries(h.catalog, entries), nil
}

// saveAndPreload сохраняет корзину и подтягивает снапшоты для ответа.
func (h *Handler) saveAndPreload(r *http.Request, sessionID string, c *cart.Cart) error {
	if err := h.carts.Save(r.Context(), sessionID, c.Serialize()); err != nil {
		return err
	}
	return c.PreloadProducts(r.Context())
}

// resolveShop определяет магазин-владелец корзины по снапшотам товаров.
func resolveShop(c *cart.Cart) (int64, error) {
	if c.Empty() {
		return 0, domain.ErrCartEmpty
	}

	var shopID int64
	for _, line := range c.Lines() {
		product, ok := c.Product(line.ProductID)
		if !ok {
			return 0, &domain.StockError{}
		}
		switch {
		case shopID == 0:
			shopID = product.ShopID
		case shopID != product.ShopID:
			return 0, domain.ErrMixedShopCart
		}
	}
	return shopID, nil
}

func parseProductID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrProductNotFound
	}
	return id, nil
}

// parseQuantity принимает только неотрицательные целые. Семантика нуля
// остаётся за операцией корзины: add игнорирует, update удаляет позицию.
func parseQuantity(raw json.Number) (int, error) {
	if raw == "" {
		return 0, domain.ErrInvalidQuantity
	}
	value, err := strconv.Atoi(raw.String())
	if err != nil || value < 0 {
		return 0, domain.ErrInvalidQuantity
	}
	return value, nil
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
		writeErrorBody(w, status, "internal error")
		return
	}
	writeErrorBody(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrProductNotFound), errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrStockContention):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrOutOfStock),
		errors.Is(err, domain.ErrStock),
		errors.Is(err, domain.ErrCartEmpty),
		errors.Is(err, domain.ErrMixedShopCart),
		errors.Is(err, domain.ErrConversion):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
