package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/leduyvuong/ban-hang/internal/cart"
	"github.com/leduyvuong/ban-hang/internal/domain"
)

// Денежные суммы сериализуются строками, чтобы не терять точность decimal.

type cartLineResponse struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

type cartResponse struct {
	Lines      []cartLineResponse `json:"lines"`
	TotalItems int                `json:"total_items"`
	Subtotal   string             `json:"subtotal"`
}

func cartResponseFrom(c *cart.Cart) cartResponse {
	lines := make([]cartLineResponse, 0, len(c.Lines()))
	for _, line := range c.Lines() {
		resp := cartLineResponse{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		}
		if product, ok := c.Product(line.ProductID); ok {
			resp.Name = product.Name
			resp.UnitPrice = product.Price.String()
			resp.LineTotal = product.Price.Mul(decimalFromInt(line.Quantity)).String()
		}
		lines = append(lines, resp)
	}
	return cartResponse{
		Lines:      lines,
		TotalItems: c.TotalItems(),
		Subtotal:   c.Subtotal().String(),
	}
}

type orderLineResponse struct {
	ProductID       int64  `json:"product_id"`
	ProductName     string `json:"product_name"`
	Quantity        int    `json:"quantity"`
	UnitPrice       string `json:"unit_price"`
	TotalPrice      string `json:"total_price"`
	UnitPriceLocal  string `json:"unit_price_local"`
	TotalPriceLocal string `json:"total_price_local"`
}

type orderResponse struct {
	ID           string              `json:"id"`
	OrderNumber  string              `json:"order_number"`
	Status       string              `json:"status"`
	Currency     string              `json:"currency"`
	ExchangeRate string              `json:"exchange_rate"`
	Total        string              `json:"total"`
	TotalLocal   string              `json:"total_local"`
	Shipping     domain.ShippingInfo `json:"shipping"`
	Lines        []orderLineResponse `json:"lines"`
	PlacedAt     time.Time           `json:"placed_at"`
}

func orderResponseFrom(order domain.Order) orderResponse {
	lines := make([]orderLineResponse, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, orderLineResponse{
			ProductID:       line.ProductID,
			ProductName:     line.ProductName,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice.String(),
			TotalPrice:      line.TotalPrice.String(),
			UnitPriceLocal:  line.UnitPriceLocal.String(),
			TotalPriceLocal: line.TotalPriceLocal.String(),
		})
	}
	return orderResponse{
		ID:           order.ID,
		OrderNumber:  order.OrderNumber,
		Status:       string(order.Status),
		Currency:     order.Currency,
		ExchangeRate: order.ExchangeRate.String(),
		Total:        order.Total.String(),
		TotalLocal:   order.TotalLocal.String(),
		Shipping:     order.Shipping,
		Lines:        lines,
		PlacedAt:     order.PlacedAt,
	}
}

type shippingRequest struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Phone      string `json:"phone"`
}

func (s shippingRequest) toDomain() domain.ShippingInfo {
	return domain.ShippingInfo{
		Name:       s.Name,
		Address:    s.Address,
		City:       s.City,
		PostalCode: s.PostalCode,
		Phone:      s.Phone,
	}
}

type checkoutRequest struct {
	Currency string          `json:"currency"`
	Shipping shippingRequest `json:"shipping"`
}

func (r checkoutRequest) validate() error {
	if r.Shipping.Name == "" {
		return errors.New("shipping name is required")
	}
	if r.Shipping.Address == "" {
		return errors.New("shipping address is required")
	}
	if r.Shipping.City == "" {
		return errors.New("shipping city is required")
	}
	return nil
}

func decimalFromInt(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeErrorBody(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
