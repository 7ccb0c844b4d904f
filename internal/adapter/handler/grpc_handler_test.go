package handler

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/logger"
)

func newGRPCConn(t *testing.T, app *testApp) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(AuthInterceptor(app.svc.Auth)))
	RegisterShopServer(srv, NewGRPCHandler(app.svc, logger.Discard()))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func method(name string) string {
	return "/" + ShopServiceName + "/" + name
}

func withToken(token string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
}

func grpcLogin(t *testing.T, conn *grpc.ClientConn, username, password string) string {
	t.Helper()
	var resp loginResponse
	if err := conn.Invoke(context.Background(), method("Login"), &loginRequest{Username: username, Password: password}, &resp); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return resp.Token
}

func TestGRPC_Login(t *testing.T) {
	app := newTestApp(t)
	app.createUser(t, "test", "testPassword")
	conn := newGRPCConn(t, app)

	if token := grpcLogin(t, conn, "test", "testPassword"); token == "" {
		t.Fatal("expected token")
	}

	var resp loginResponse
	err := conn.Invoke(context.Background(), method("Login"), &loginRequest{Username: "test", Password: "wrongPassword"}, &resp)
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("expected Unauthenticated, got %v", err)
	}
}

func TestGRPC_RequiresToken(t *testing.T) {
	app := newTestApp(t)
	app.createUser(t, "test", "testPassword")
	conn := newGRPCConn(t, app)

	var cart cartResponse
	req := &modifyCartRequest{Username: "test", ItemID: 1, Quantity: 1}

	if err := conn.Invoke(context.Background(), method("AddToCart"), req, &cart); status.Code(err) != codes.Unauthenticated {
		t.Errorf("expected Unauthenticated without token, got %v", err)
	}
	if err := conn.Invoke(withToken("garbage"), method("AddToCart"), req, &cart); status.Code(err) != codes.Unauthenticated {
		t.Errorf("expected Unauthenticated with bad token, got %v", err)
	}
}

func TestGRPC_CartAndOrders(t *testing.T) {
	app := newTestApp(t)
	app.createUser(t, "test", "testPassword")
	conn := newGRPCConn(t, app)
	ctx := withToken(grpcLogin(t, conn, "test", "testPassword"))

	var cart cartResponse
	if err := conn.Invoke(ctx, method("AddToCart"), &modifyCartRequest{Username: "test", ItemID: 1, Quantity: 3}, &cart); err != nil {
		t.Fatalf("AddToCart failed: %v", err)
	}
	if cart.Total != "8.97" || len(cart.Items) != 3 {
		t.Errorf("unexpected cart: %+v", cart)
	}

	if err := conn.Invoke(ctx, method("RemoveFromCart"), &modifyCartRequest{Username: "test", ItemID: 1, Quantity: 5}, &cart); err != nil {
		t.Fatalf("RemoveFromCart failed: %v", err)
	}
	if cart.Total != "0.00" || len(cart.Items) != 0 {
		t.Errorf("expected empty cart, got %+v", cart)
	}

	errCases := []struct {
		name string
		req  *modifyCartRequest
		want codes.Code
	}{
		{"unknown item", &modifyCartRequest{Username: "test", ItemID: 99, Quantity: 1}, codes.NotFound},
		{"unknown user", &modifyCartRequest{Username: "nobody", ItemID: 1, Quantity: 1}, codes.NotFound},
		{"zero quantity", &modifyCartRequest{Username: "test", ItemID: 1, Quantity: 0}, codes.InvalidArgument},
	}
	for _, tt := range errCases {
		t.Run(tt.name, func(t *testing.T) {
			err := conn.Invoke(ctx, method("AddToCart"), tt.req, &cart)
			if status.Code(err) != tt.want {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	conn.Invoke(ctx, method("AddToCart"), &modifyCartRequest{Username: "test", ItemID: 2, Quantity: 1}, &cart)

	var order orderResponse
	submit := &submitOrderRequest{Username: "test", IdempotencyKey: "grpc-key"}
	if err := conn.Invoke(ctx, method("SubmitOrder"), submit, &order); err != nil {
		t.Fatalf("SubmitOrder failed: %v", err)
	}
	if order.Total != "1.99" || order.ID == 0 {
		t.Errorf("unexpected order: %+v", order)
	}
	if err := conn.Invoke(ctx, method("SubmitOrder"), submit, &order); status.Code(err) != codes.AlreadyExists {
		t.Errorf("expected AlreadyExists for reused key, got %v", err)
	}

	var history orderHistoryResponse
	if err := conn.Invoke(ctx, method("GetOrderHistory"), &orderHistoryRequest{Username: "test"}, &history); err != nil {
		t.Fatalf("GetOrderHistory failed: %v", err)
	}
	if len(history.Orders) != 1 {
		t.Errorf("expected 1 order, got %d", len(history.Orders))
	}

	err := conn.Invoke(ctx, method("GetOrderHistory"), &orderHistoryRequest{Username: "nobody"}, &history)
	if status.Code(err) != codes.NotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}
