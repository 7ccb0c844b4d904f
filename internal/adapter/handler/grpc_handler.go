package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/auth"
	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/core/domain"
)

const (
	ShopServiceName = "shop.v1.ShopService"
	CodecName       = "json"

	loginMethod = "/" + ShopServiceName + "/Login"
)

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// ShopServer is the gRPC surface. Messages travel as JSON with content-subtype "json".
type ShopServer interface {
	Login(context.Context, *loginRequest) (*loginResponse, error)
	AddToCart(context.Context, *modifyCartRequest) (*cartResponse, error)
	RemoveFromCart(context.Context, *modifyCartRequest) (*cartResponse, error)
	SubmitOrder(context.Context, *submitOrderRequest) (*orderResponse, error)
	GetOrderHistory(context.Context, *orderHistoryRequest) (*orderHistoryResponse, error)
}

var shopServiceDesc = grpc.ServiceDesc{
	ServiceName: ShopServiceName,
	HandlerType: (*ShopServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Login", ShopServer.Login),
		unaryMethod("AddToCart", ShopServer.AddToCart),
		unaryMethod("RemoveFromCart", ShopServer.RemoveFromCart),
		unaryMethod("SubmitOrder", ShopServer.SubmitOrder),
		unaryMethod("GetOrderHistory", ShopServer.GetOrderHistory),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "shop/v1/shop.proto",
}

func unaryMethod[Req, Resp any](name string, call func(ShopServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(ShopServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}

			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ShopServiceName + "/" + name}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func RegisterShopServer(s grpc.ServiceRegistrar, srv ShopServer) {
	s.RegisterService(&shopServiceDesc, srv)
}

type GRPCHandler struct {
	svc Services
	log *slog.Logger
}

func NewGRPCHandler(svc Services, log *slog.Logger) *GRPCHandler {
	return &GRPCHandler{svc: svc, log: log}
}

func (h *GRPCHandler) Login(ctx context.Context, req *loginRequest) (*loginResponse, error) {
	token, err := h.svc.Auth.Login(ctx, req.Username, req.Password)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &loginResponse{Token: token}, nil
}

func (h *GRPCHandler) AddToCart(ctx context.Context, req *modifyCartRequest) (*cartResponse, error) {
	cart, err := h.svc.Carts.AddToCart(ctx, req.Username, req.ItemID, req.Quantity)
	if err != nil {
		return nil, h.toStatus(err)
	}
	resp := toCartResponse(cart)
	return &resp, nil
}

func (h *GRPCHandler) RemoveFromCart(ctx context.Context, req *modifyCartRequest) (*cartResponse, error) {
	cart, err := h.svc.Carts.RemoveFromCart(ctx, req.Username, req.ItemID, req.Quantity)
	if err != nil {
		return nil, h.toStatus(err)
	}
	resp := toCartResponse(cart)
	return &resp, nil
}

func (h *GRPCHandler) SubmitOrder(ctx context.Context, req *submitOrderRequest) (*orderResponse, error) {
	order, err := h.svc.Orders.SubmitOrder(ctx, req.Username, req.IdempotencyKey)
	if err != nil {
		return nil, h.toStatus(err)
	}
	resp := toOrderResponse(order)
	return &resp, nil
}

func (h *GRPCHandler) GetOrderHistory(ctx context.Context, req *orderHistoryRequest) (*orderHistoryResponse, error) {
	orders, err := h.svc.Orders.GetOrdersForUser(ctx, req.Username)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &orderHistoryResponse{Orders: toOrderResponses(orders)}, nil
}

// AuthInterceptor requires a bearer token in the "authorization" metadata for every method but Login.
func AuthInterceptor(verifier TokenVerifier) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if info.FullMethod == loginMethod {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get(strings.ToLower(auth.HeaderName))
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, "authorization metadata required")
		}

		token, ok := auth.BearerToken(values[0])
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "authorization metadata required")
		}
		if _, err := verifier.VerifyToken(token); err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
		}
		return handler(ctx, req)
	}
}

func (h *GRPCHandler) toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		_, msg := httpStatus(err)
		return status.Error(codes.NotFound, msg)
	case errors.Is(err, domain.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrAuthentication):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, domain.ErrDuplicateUsername), errors.Is(err, domain.ErrDuplicateRequest):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return status.Error(codes.Aborted, "conflict, please retry")
	default:
		h.log.Error("grpc request failed", slog.Any("err", err))
		return status.Error(codes.Internal, "internal error")
	}
}
