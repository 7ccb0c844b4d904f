package handler

import (
	"time"

	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/core/domain"
)

// Request and response bodies shared by the HTTP and gRPC transports.
// Money is always rendered with two fraction digits.

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type createUserRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type modifyCartRequest struct {
	Username string `json:"username"`
	ItemID   int64  `json:"itemId"`
	Quantity int    `json:"quantity"`
}

type submitOrderRequest struct {
	Username       string `json:"username"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

type orderHistoryRequest struct {
	Username string `json:"username"`
}

type orderHistoryResponse struct {
	Orders []orderResponse `json:"orders"`
}

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type itemResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Price       string `json:"price"`
	Description string `json:"description"`
}

type cartResponse struct {
	ID    int64          `json:"id"`
	Items []itemResponse `json:"items"`
	Total string         `json:"total"`
}

type orderResponse struct {
	ID        int64          `json:"id"`
	User      userResponse   `json:"user"`
	Items     []itemResponse `json:"items"`
	Total     string         `json:"total"`
	CreatedAt time.Time      `json:"createdAt"`
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username}
}

func toItemResponse(it domain.Item) itemResponse {
	return itemResponse{
		ID:          it.ID,
		Name:        it.Name,
		Price:       it.Price.StringFixed(2),
		Description: it.Description,
	}
}

func toItemResponses(items []domain.Item) []itemResponse {
	out := make([]itemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, toItemResponse(it))
	}
	return out
}

func toCartResponse(c domain.Cart) cartResponse {
	return cartResponse{ID: c.ID, Items: toItemResponses(c.Items), Total: c.Total.StringFixed(2)}
}

func toOrderResponse(o domain.UserOrder) orderResponse {
	return orderResponse{
		ID:        o.ID,
		User:      userResponse{ID: o.User.ID, Username: o.User.Username},
		Items:     toItemResponses(o.Items),
		Total:     o.Total.StringFixed(2),
		CreatedAt: o.CreatedAt,
	}
}

func toOrderResponses(orders []domain.UserOrder) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out
}
