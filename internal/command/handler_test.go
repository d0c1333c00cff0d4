package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/ec-shop/internal/apperror"
	"github.com/example/ec-shop/internal/auth"
	"github.com/example/ec-shop/internal/domain/inventory"
	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/infrastructure/store/mocks"
	"github.com/example/ec-shop/internal/payment/paystack"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const testSecret = "sk_test_secret"

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	handler   *Handler
	store     *mocks.MemoryStore
	gateway   *mocks.FakeGateway
	notifier  *mocks.FakeNotifier
	publisher *mocks.FakePublisher
	logs      *observer.ObservedLogs
	clock     *time.Time
}

func newTestHandler() *testEnv {
	memStore := mocks.NewMemoryStore()
	memStore.AddProduct("P1", "Linen Shirt", map[inventory.Size]int{inventory.SizeM: 5, inventory.SizeL: 1})
	memStore.AddProduct("P2", "Tote Bag", map[inventory.Size]int{inventory.SizeNone: 10})

	gateway := &mocks.FakeGateway{}
	notifier := &mocks.FakeNotifier{}
	publisher := &mocks.FakePublisher{}
	core, logs := observer.New(zap.InfoLevel)

	handler := NewHandler(memStore, memStore, gateway, notifier, publisher, Config{
		WebhookSecret: testSecret,
		CallbackURL:   "https://shop.example.com/checkout/success",
		CancelURL:     "https://shop.example.com/checkout?cancelled=true",
	}, zap.New(core), nil)

	clock := baseTime
	handler.now = func() time.Time { return clock }

	return &testEnv{
		handler:   handler,
		store:     memStore,
		gateway:   gateway,
		notifier:  notifier,
		publisher: publisher,
		logs:      logs,
		clock:     &clock,
	}
}

func testCustomer() order.Customer {
	return order.Customer{
		FirstName: "Ada",
		LastName:  "Obi",
		Email:     "ada@example.com",
		Phone:     "+2348000000000",
		Address:   "1 Marina",
		City:      "Lagos",
		State:     "Lagos",
	}
}

func placeCmd(items ...PlaceOrderItem) PlaceOrder {
	return PlaceOrder{Customer: testCustomer(), Items: items}
}

func item(productID, size string, qty int, price string) PlaceOrderItem {
	return PlaceOrderItem{ProductID: productID, Size: size, Quantity: qty, Price: decimal.RequireFromString(price)}
}

func chargeSuccess(orderID string) []byte {
	return []byte(fmt.Sprintf(
		`{"event":"charge.success","data":{"reference":"ref-1","amount":4000,"status":"success","metadata":{"order_id":%q}}}`,
		orderID))
}

func signed(payload []byte) string {
	return paystack.Signature(payload, testSecret)
}

// ============================================
// Place Order Tests
// ============================================

func TestHandler_PlaceOrder_Success(t *testing.T) {
	env := newTestHandler()
	ctx := context.Background()

	res, err := env.handler.PlaceOrder(ctx, nil, placeCmd(item("P1", "M", 2, "20.00")))

	require.NoError(t, err)
	assert.NotEmpty(t, res.OrderID)
	assert.True(t, strings.HasPrefix(res.Reference, "ORD-"))
	assert.Equal(t, "https://checkout.example.com/"+res.Reference, res.AuthorizationURL)

	assert.Equal(t, 3, env.store.Stock("P1", inventory.SizeM))

	o, err := env.store.Get(ctx, res.OrderID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("40.00").Equal(o.Total))
	assert.Equal(t, order.PaymentPending, o.PaymentStatus)
	assert.Equal(t, order.DeliveryPending, o.DeliveryStatus)
	assert.Empty(t, o.UserID)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "Linen Shirt", o.Items[0].ProductName)
	assert.Equal(t, inventory.SizeM, o.Items[0].Size)

	require.Equal(t, 1, env.gateway.CallCount())
	req := env.gateway.Calls[0]
	assert.Equal(t, int64(4000), req.Amount)
	assert.Equal(t, res.Reference, req.Reference)
	assert.Equal(t, "ada@example.com", req.Email)
	assert.Equal(t, res.OrderID, req.Metadata.OrderID)
	assert.Equal(t, "https://shop.example.com/checkout/success", req.CallbackURL)
	assert.Equal(t, "https://shop.example.com/checkout?cancelled=true", req.Metadata.CancelAction)
	assert.Equal(t, []string{"card", "bank"}, req.Channels)
	require.Len(t, req.Metadata.OrderItems, 1)
	assert.Equal(t, paystack.MetadataItem{ProductName: "Linen Shirt", Quantity: 2, Price: "20.00", Size: "M"}, req.Metadata.OrderItems[0])

	assert.Equal(t, []string{order.EventOrderCreated}, env.publisher.Types())
}

func TestHandler_PlaceOrder_AuthenticatedCaller(t *testing.T) {
	env := newTestHandler()
	ctx := context.Background()

	res, err := env.handler.PlaceOrder(ctx, &auth.Claims{UserID: "user-1", Role: "customer"},
		placeCmd(item("P2", "", 1, "15.50")))

	require.NoError(t, err)
	o, err := env.store.Get(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", o.UserID)
	assert.Equal(t, int64(1550), env.gateway.Calls[0].Amount)
	assert.Equal(t, 9, env.store.Stock("P2", inventory.SizeNone))
}

func TestHandler_PlaceOrder_MultipleItems(t *testing.T) {
	env := newTestHandler()

	res, err := env.handler.PlaceOrder(context.Background(), nil, placeCmd(
		item("P1", "m", 1, "20.00"),
		item("P2", "", 3, "5.25"),
	))

	require.NoError(t, err)
	o, err := env.store.Get(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("35.75").Equal(o.Total))
	assert.Equal(t, 4, env.store.Stock("P1", inventory.SizeM))
	assert.Equal(t, 7, env.store.Stock("P2", inventory.SizeNone))
}

func TestHandler_PlaceOrder_Validation(t *testing.T) {
	tests := []struct {
		name  string
		cmd   PlaceOrder
		field string
	}{
		{"no items", placeCmd(), "items"},
		{"zero quantity", placeCmd(item("P1", "M", 0, "20.00")), "items[0].quantity"},
		{"negative price", placeCmd(item("P1", "M", 1, "-1")), "items[0].price"},
		{"sub-kobo price", placeCmd(item("P1", "M", 1, "10.005")), "items[0].price"},
		{"missing product", placeCmd(item("", "M", 1, "20.00")), "items[0].product_id"},
		{"unknown size", placeCmd(item("P1", "XXXL", 1, "20.00")), "items[0].size"},
		{"missing email", PlaceOrder{Customer: order.Customer{FirstName: "Ada"}, Items: []PlaceOrderItem{item("P1", "M", 1, "20.00")}}, "email"},
		{"missing first name", PlaceOrder{Customer: order.Customer{Email: "ada@example.com"}, Items: []PlaceOrderItem{item("P1", "M", 1, "20.00")}}, "first_name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestHandler()

			res, err := env.handler.PlaceOrder(context.Background(), nil, tt.cmd)

			assert.Nil(t, res)
			require.ErrorIs(t, err, apperror.ErrValidation)
			assert.Contains(t, apperror.From(err).Details, tt.field)
			assert.Zero(t, env.store.BeginCalls)
			assert.Zero(t, env.gateway.CallCount())
		})
	}
}

func TestHandler_PlaceOrder_InsufficientStock(t *testing.T) {
	env := newTestHandler()

	res, err := env.handler.PlaceOrder(context.Background(), nil, placeCmd(
		item("P2", "", 1, "5.00"),
		item("P1", "L", 2, "20.00"),
	))

	assert.Nil(t, res)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	appErr := apperror.From(err)
	assert.Equal(t, "Insufficient stock for L of product", appErr.Message)
	assert.Equal(t, map[string]string{"product_id": "P1", "size": "L"}, appErr.Details)

	assert.Equal(t, 1, env.store.Stock("P1", inventory.SizeL))
	assert.Equal(t, 10, env.store.Stock("P2", inventory.SizeNone))
	assert.Empty(t, env.store.Orders())
	assert.Zero(t, env.gateway.CallCount())
	assert.Empty(t, env.publisher.Calls)
}

func TestHandler_PlaceOrder_RepeatedLinesShareStock(t *testing.T) {
	env := newTestHandler()

	res, err := env.handler.PlaceOrder(context.Background(), nil, placeCmd(
		item("P1", "M", 3, "20.00"),
		item("P1", "M", 3, "20.00"),
	))

	assert.Nil(t, res)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	assert.Equal(t, map[string]string{"product_id": "P1", "size": "M"}, apperror.From(err).Details)
	assert.Equal(t, 5, env.store.Stock("P1", inventory.SizeM))
	assert.Empty(t, env.store.Orders())
	assert.Zero(t, env.gateway.CallCount())
	assert.Equal(t, 1, env.store.RollbackCalls)
}

func TestHandler_PlaceOrder_RepeatedLinesWithinStock(t *testing.T) {
	env := newTestHandler()

	res, err := env.handler.PlaceOrder(context.Background(), nil, placeCmd(
		item("P1", "M", 3, "20.00"),
		item("P1", "m", 2, "20.00"),
	))

	require.NoError(t, err)
	assert.Zero(t, env.store.Stock("P1", inventory.SizeM))
	o, err := env.store.Get(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.Len(t, o.Items, 2)
	assert.True(t, decimal.RequireFromString("100.00").Equal(o.Total))
}

func TestHandler_PlaceOrder_MissingStockEntry(t *testing.T) {
	env := newTestHandler()

	_, err := env.handler.PlaceOrder(context.Background(), nil, placeCmd(item("P1", "XS", 1, "20.00")))

	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	assert.Equal(t, "XS", apperror.From(err).Details["size"])
	assert.Empty(t, env.store.Orders())
}

func TestHandler_PlaceOrder_CommitFailureRollsBack(t *testing.T) {
	env := newTestHandler()
	env.store.CommitErr = errors.New("connection reset")

	res, err := env.handler.PlaceOrder(context.Background(), nil, placeCmd(item("P1", "M", 2, "20.00")))

	assert.Nil(t, res)
	require.ErrorIs(t, err, apperror.ErrTransactionAborted)
	assert.Equal(t, 5, env.store.Stock("P1", inventory.SizeM))
	assert.Empty(t, env.store.Orders())
	assert.Zero(t, env.gateway.CallCount())
}

func TestHandler_PlaceOrder_InsertFailureRollsBack(t *testing.T) {
	env := newTestHandler()
	env.store.InsertErr = errors.New("disk full")

	_, err := env.handler.PlaceOrder(context.Background(), nil, placeCmd(item("P1", "M", 2, "20.00")))

	require.ErrorIs(t, err, apperror.ErrTransactionAborted)
	assert.Equal(t, 5, env.store.Stock("P1", inventory.SizeM))
	assert.Equal(t, 1, env.store.RollbackCalls)
}

func TestHandler_PlaceOrder_BeginFailure(t *testing.T) {
	env := newTestHandler()
	env.store.BeginErr = errors.New("too many connections")

	_, err := env.handler.PlaceOrder(context.Background(), nil, placeCmd(item("P1", "M", 1, "20.00")))

	require.ErrorIs(t, err, apperror.ErrTransactionAborted)
	assert.Equal(t, "transaction aborted", apperror.Public(err).Message)
}

func TestHandler_PlaceOrder_GatewayFailureKeepsOrder(t *testing.T) {
	env := newTestHandler()
	env.gateway.Err = apperror.Wrap(apperror.KindGatewayInitFailed, "failed to initialize payment", errors.New("status 503"))

	res, err := env.handler.PlaceOrder(context.Background(), nil, placeCmd(item("P1", "M", 2, "20.00")))

	assert.Nil(t, res)
	require.ErrorIs(t, err, apperror.ErrGatewayInitializationFailed)
	appErr := apperror.From(err)
	assert.Equal(t, 502, appErr.Status())

	orders := env.store.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, orders[0].ID, appErr.Details["order_id"])
	assert.Equal(t, order.PaymentUnpaid, orders[0].PaymentStatus)
	assert.Equal(t, 3, env.store.Stock("P1", inventory.SizeM))
	assert.Empty(t, env.store.MarkPendingCalls)
	assert.Equal(t, []string{order.EventOrderCreated, order.EventOrderPaymentInitFailed}, env.publisher.Types())
}

func TestHandler_PlaceOrder_PlainGatewayErrorIsWrapped(t *testing.T) {
	env := newTestHandler()
	env.gateway.Err = errors.New("dial tcp: i/o timeout")

	_, err := env.handler.PlaceOrder(context.Background(), nil, placeCmd(item("P1", "M", 1, "20.00")))

	require.ErrorIs(t, err, apperror.ErrGatewayInitializationFailed)
}

func TestHandler_PlaceOrder_MarkPendingFailureIsLogged(t *testing.T) {
	env := newTestHandler()
	env.store.MarkPendingErr = errors.New("timeout")

	res, err := env.handler.PlaceOrder(context.Background(), nil, placeCmd(item("P1", "M", 1, "20.00")))

	require.NoError(t, err)
	assert.NotEmpty(t, res.AuthorizationURL)
	assert.Equal(t, 1, env.logs.FilterMessage("mark order pending failed").Len())
}

func TestHandler_PlaceOrder_PublishFailureIsBestEffort(t *testing.T) {
	env := newTestHandler()
	env.publisher.Err = errors.New("broker down")

	res, err := env.handler.PlaceOrder(context.Background(), nil, placeCmd(item("P1", "M", 1, "20.00")))

	require.NoError(t, err)
	assert.NotEmpty(t, res.OrderID)
	assert.Equal(t, 1, env.logs.FilterMessage("publish event failed").Len())
}

func TestHandler_PlaceOrder_ConcurrentLastUnit(t *testing.T) {
	env := newTestHandler()
	const workers = 10

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		shortages int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.handler.PlaceOrder(context.Background(), nil, placeCmd(item("P1", "L", 1, "20.00")))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, inventory.ErrInsufficientStock):
				shortages++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, shortages)
	assert.Equal(t, 0, env.store.Stock("P1", inventory.SizeL))
	assert.Len(t, env.store.Orders(), 1)
}

// ============================================
// Payment Webhook Tests
// ============================================

func placeTestOrder(t *testing.T, env *testEnv) string {
	t.Helper()
	res, err := env.handler.PlaceOrder(context.Background(), nil, placeCmd(item("P1", "M", 2, "20.00")))
	require.NoError(t, err)
	return res.OrderID
}

func TestHandler_HandlePaymentWebhook_ChargeSuccess(t *testing.T) {
	env := newTestHandler()
	orderID := placeTestOrder(t, env)
	payload := chargeSuccess(orderID)

	ack, err := env.handler.HandlePaymentWebhook(context.Background(), payload, signed(payload))

	require.NoError(t, err)
	assert.Equal(t, AckPaymentProcessed, ack.Message)

	o, err := env.store.Get(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentPaid, o.PaymentStatus)
	require.NotNil(t, o.PaidAt)
	assert.Equal(t, baseTime, *o.PaidAt)
	assert.Equal(t, []string{orderID}, env.notifier.Calls)
}

func TestHandler_HandlePaymentWebhook_ReplayIsIdempotent(t *testing.T) {
	env := newTestHandler()
	orderID := placeTestOrder(t, env)
	payload := chargeSuccess(orderID)

	first, err := env.handler.HandlePaymentWebhook(context.Background(), payload, signed(payload))
	require.NoError(t, err)
	*env.clock = baseTime.Add(time.Minute)
	second, err := env.handler.HandlePaymentWebhook(context.Background(), payload, signed(payload))
	require.NoError(t, err)

	assert.Equal(t, AckPaymentProcessed, first.Message)
	assert.Equal(t, AckPaymentAlreadyProcessed, second.Message)
	assert.Equal(t, 1, env.notifier.CallCount())

	o, err := env.store.Get(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, baseTime, *o.PaidAt)
	assert.Equal(t, 3, env.store.Stock("P1", inventory.SizeM))
}

func TestHandler_HandlePaymentWebhook_ConcurrentReplays(t *testing.T) {
	env := newTestHandler()
	orderID := placeTestOrder(t, env)
	payload := chargeSuccess(orderID)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.handler.HandlePaymentWebhook(context.Background(), payload, signed(payload))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, env.notifier.CallCount())
}

func TestHandler_HandlePaymentWebhook_TamperedPayload(t *testing.T) {
	env := newTestHandler()
	orderID := placeTestOrder(t, env)
	payload := chargeSuccess(orderID)
	signature := signed(payload)
	tampered := []byte(strings.Replace(string(payload), "4000", "1", 1))

	ack, err := env.handler.HandlePaymentWebhook(context.Background(), tampered, signature)

	assert.Nil(t, ack)
	require.ErrorIs(t, err, apperror.ErrInvalidSignature)
	o, err := env.store.Get(context.Background(), orderID)
	require.NoError(t, err)
	assert.NotEqual(t, order.PaymentPaid, o.PaymentStatus)
	assert.Empty(t, env.store.MarkPaidCalls)
	assert.Zero(t, env.notifier.CallCount())
}

func TestHandler_HandlePaymentWebhook_Errors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    error
	}{
		{
			name:    "invalid json",
			payload: `{"event":`,
			want:    apperror.ErrValidation,
		},
		{
			name:    "missing order id",
			payload: `{"event":"charge.success","data":{"reference":"ref-1","metadata":{}}}`,
			want:    apperror.ErrMissingOrderID,
		},
		{
			name:    "metadata sent as empty string",
			payload: `{"event":"charge.success","data":{"reference":"ref-1","metadata":""}}`,
			want:    apperror.ErrMissingOrderID,
		},
		{
			name:    "unknown order",
			payload: string(chargeSuccess("missing-order")),
			want:    order.ErrOrderNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestHandler()
			payload := []byte(tt.payload)

			ack, err := env.handler.HandlePaymentWebhook(context.Background(), payload, signed(payload))

			assert.Nil(t, ack)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, env.notifier.CallCount())
		})
	}
}

func TestHandler_HandlePaymentWebhook_LegacyOrderIDKey(t *testing.T) {
	env := newTestHandler()
	orderID := placeTestOrder(t, env)
	payload := []byte(fmt.Sprintf(`{"event":"charge.success","data":{"metadata":{"orderId":%q}}}`, orderID))

	ack, err := env.handler.HandlePaymentWebhook(context.Background(), payload, signed(payload))

	require.NoError(t, err)
	assert.Equal(t, AckPaymentProcessed, ack.Message)
}

func TestHandler_HandlePaymentWebhook_OtherEventIgnored(t *testing.T) {
	env := newTestHandler()
	orderID := placeTestOrder(t, env)
	payload := []byte(fmt.Sprintf(`{"event":"transfer.success","data":{"metadata":{"order_id":%q}}}`, orderID))

	ack, err := env.handler.HandlePaymentWebhook(context.Background(), payload, signed(payload))

	require.NoError(t, err)
	assert.Equal(t, AckEventIgnored, ack.Message)
	assert.Empty(t, env.store.MarkPaidCalls)
}

func TestHandler_HandlePaymentWebhook_NotifierFailureStillAcks(t *testing.T) {
	env := newTestHandler()
	env.notifier.Err = errors.New("smtp down")
	orderID := placeTestOrder(t, env)
	payload := chargeSuccess(orderID)

	ack, err := env.handler.HandlePaymentWebhook(context.Background(), payload, signed(payload))

	require.NoError(t, err)
	assert.Equal(t, AckPaymentProcessed, ack.Message)
	assert.Equal(t, 1, env.logs.FilterMessage("notify customer failed").Len())
}

func TestHandler_HandlePaymentWebhook_StoreFailure(t *testing.T) {
	env := newTestHandler()
	orderID := placeTestOrder(t, env)
	env.store.MarkPaidErr = errors.New("connection refused")
	payload := chargeSuccess(orderID)

	_, err := env.handler.HandlePaymentWebhook(context.Background(), payload, signed(payload))

	require.ErrorIs(t, err, apperror.ErrInternal)
	assert.Equal(t, "Internal server error", apperror.Public(err).Message)
}

// ============================================
// Update Order Status Tests
// ============================================

func deliveryPtr(s order.DeliveryStatus) *order.DeliveryStatus { return &s }
func paymentPtr(s order.PaymentStatus) *order.PaymentStatus { return &s }

func TestHandler_UpdateOrderStatus_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		from    order.DeliveryStatus
		to      order.DeliveryStatus
		wantErr bool
	}{
		{"pending to shipped", order.DeliveryPending, order.DeliveryShipped, false},
		{"pending to cancelled", order.DeliveryPending, order.DeliveryCancelled, false},
		{"shipped to delivered", order.DeliveryShipped, order.DeliveryDelivered, false},
		{"pending to delivered", order.DeliveryPending, order.DeliveryDelivered, true},
		{"shipped to pending", order.DeliveryShipped, order.DeliveryPending, true},
		{"delivered to shipped", order.DeliveryDelivered, order.DeliveryShipped, true},
		{"cancelled to shipped", order.DeliveryCancelled, order.DeliveryShipped, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestHandler()
			env.store.PutOrder(order.Order{
				ID:             "order-1",
				PaymentStatus:  order.PaymentPaid,
				DeliveryStatus: tt.from,
				CreatedAt:      baseTime,
			})

			o, err := env.handler.UpdateOrderStatus(context.Background(), "order-1",
				order.StatusUpdate{DeliveryStatus: deliveryPtr(tt.to)})

			if tt.wantErr {
				require.ErrorIs(t, err, apperror.ErrValidation)
				stored, _ := env.store.Get(context.Background(), "order-1")
				assert.Equal(t, tt.from, stored.DeliveryStatus)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, o.DeliveryStatus)
			assert.Equal(t, order.PaymentPaid, o.PaymentStatus)
		})
	}
}

func TestHandler_UpdateOrderStatus_ManualPayment(t *testing.T) {
	env := newTestHandler()
	orderID := placeTestOrder(t, env)

	o, err := env.handler.UpdateOrderStatus(context.Background(), orderID,
		order.StatusUpdate{PaymentStatus: paymentPtr(order.PaymentPaid)})

	require.NoError(t, err)
	assert.Equal(t, order.PaymentPaid, o.PaymentStatus)
	assert.NotNil(t, o.PaidAt)
	assert.Equal(t, order.DeliveryPending, o.DeliveryStatus)
	assert.Zero(t, env.notifier.CallCount())
}

func TestHandler_UpdateOrderStatus_EmptyUpdate(t *testing.T) {
	env := newTestHandler()

	_, err := env.handler.UpdateOrderStatus(context.Background(), "order-1", order.StatusUpdate{})

	assert.ErrorIs(t, err, order.ErrEmptyStatusUpdate)
}

func TestHandler_UpdateOrderStatus_NotFound(t *testing.T) {
	env := newTestHandler()

	_, err := env.handler.UpdateOrderStatus(context.Background(), "missing",
		order.StatusUpdate{DeliveryStatus: deliveryPtr(order.DeliveryShipped)})

	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

// ============================================
// Delete Order Tests
// ============================================

func TestHandler_DeleteOrderForUser(t *testing.T) {
	env := newTestHandler()
	ctx := context.Background()
	res, err := env.handler.PlaceOrder(ctx, &auth.Claims{UserID: "user-1"}, placeCmd(item("P1", "M", 1, "20.00")))
	require.NoError(t, err)

	err = env.handler.DeleteOrderForUser(ctx, "user-2", res.OrderID)
	assert.ErrorIs(t, err, order.ErrOrderNotFound)

	err = env.handler.DeleteOrderForUser(ctx, "user-1", res.OrderID)
	require.NoError(t, err)

	o, err := env.store.Get(ctx, res.OrderID)
	require.NoError(t, err)
	assert.NotNil(t, o.DeletedAt)

	err = env.handler.DeleteOrderForUser(ctx, "user-1", res.OrderID)
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestHandler_DeleteOrderForAdmin(t *testing.T) {
	env := newTestHandler()
	ctx := context.Background()
	orderID := placeTestOrder(t, env)

	require.NoError(t, env.handler.DeleteOrderForAdmin(ctx, orderID))
	assert.Empty(t, env.store.Orders())
	assert.ErrorIs(t, env.handler.DeleteOrderForAdmin(ctx, orderID), order.ErrOrderNotFound)
}

// ============================================
// Release Expired Orders Tests
// ============================================

var testReleasePolicy = ReleasePolicy{UnpaidTTL: time.Hour, PendingTTL: 24 * time.Hour}

// placeUnpaidOrder leaves an Unpaid order holding 2 of P1/M, the state a
// failed gateway initialization leaves behind
func placeUnpaidOrder(t *testing.T, env *testEnv) string {
	t.Helper()
	env.gateway.Err = errors.New("status 503")
	_, err := env.handler.PlaceOrder(context.Background(), nil, placeCmd(item("P1", "M", 2, "20.00")))
	require.ErrorIs(t, err, apperror.ErrGatewayInitializationFailed)
	env.gateway.Err = nil

	orderID := apperror.From(err).Details["order_id"]
	require.NotEmpty(t, orderID)
	return orderID
}

func TestHandler_ReleaseExpiredOrders_Unpaid(t *testing.T) {
	env := newTestHandler()
	ctx := context.Background()
	orderID := placeUnpaidOrder(t, env)
	require.Equal(t, 3, env.store.Stock("P1", inventory.SizeM))

	*env.clock = baseTime.Add(30 * time.Minute)
	n, err := env.handler.ReleaseExpiredOrders(ctx, testReleasePolicy)
	require.NoError(t, err)
	assert.Zero(t, n)

	*env.clock = baseTime.Add(2 * time.Hour)
	n, err = env.handler.ReleaseExpiredOrders(ctx, testReleasePolicy)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 5, env.store.Stock("P1", inventory.SizeM))

	o, err := env.store.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, order.DeliveryCancelled, o.DeliveryStatus)
	assert.Contains(t, env.publisher.Types(), order.EventOrderReleased)

	n, err = env.handler.ReleaseExpiredOrders(ctx, testReleasePolicy)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 5, env.store.Stock("P1", inventory.SizeM))
}

func TestHandler_ReleaseExpiredOrders_PendingHoldsForLonger(t *testing.T) {
	env := newTestHandler()
	ctx := context.Background()
	orderID := placeTestOrder(t, env)
	o, err := env.store.Get(ctx, orderID)
	require.NoError(t, err)
	require.Equal(t, order.PaymentPending, o.PaymentStatus)

	// past the Unpaid TTL, the customer may still be on the checkout page
	*env.clock = baseTime.Add(2 * time.Hour)
	n, err := env.handler.ReleaseExpiredOrders(ctx, testReleasePolicy)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 3, env.store.Stock("P1", inventory.SizeM))

	*env.clock = baseTime.Add(25 * time.Hour)
	n, err = env.handler.ReleaseExpiredOrders(ctx, testReleasePolicy)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 5, env.store.Stock("P1", inventory.SizeM))
}

func TestHandler_ReleaseExpiredOrders_ZeroTTLNeverReleases(t *testing.T) {
	tests := []struct {
		name   string
		policy ReleasePolicy
		want   int
	}{
		{"both statuses", testReleasePolicy, 2},
		{"unpaid only", ReleasePolicy{UnpaidTTL: time.Hour}, 1},
		{"pending only", ReleasePolicy{PendingTTL: time.Hour}, 1},
		{"disabled", ReleasePolicy{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestHandler()
			placeUnpaidOrder(t, env)
			placeTestOrder(t, env)
			require.Equal(t, 1, env.store.Stock("P1", inventory.SizeM))

			*env.clock = baseTime.Add(48 * time.Hour)
			n, err := env.handler.ReleaseExpiredOrders(context.Background(), tt.policy)

			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
			assert.Equal(t, 1+2*tt.want, env.store.Stock("P1", inventory.SizeM))
		})
	}
}

func TestHandler_ReleaseExpiredOrders_SkipsPaid(t *testing.T) {
	env := newTestHandler()
	ctx := context.Background()
	orderID := placeTestOrder(t, env)
	payload := chargeSuccess(orderID)
	_, err := env.handler.HandlePaymentWebhook(ctx, payload, signed(payload))
	require.NoError(t, err)

	*env.clock = baseTime.Add(48 * time.Hour)
	n, err := env.handler.ReleaseExpiredOrders(ctx, testReleasePolicy)

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 3, env.store.Stock("P1", inventory.SizeM))
}

func TestHandler_ReleaseExpiredOrders_CancelGuardedByListedStatus(t *testing.T) {
	env := newTestHandler()
	ctx := context.Background()
	orderID := placeUnpaidOrder(t, env)

	// a slow initialize can move the order to Pending after it was listed as Unpaid
	changed, err := env.store.MarkPending(ctx, orderID)
	require.NoError(t, err)
	require.True(t, changed)

	tx, err := env.store.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	cancelled, err := tx.CancelUnpaid(ctx, orderID, order.PaymentUnpaid, baseTime)
	require.NoError(t, err)
	assert.False(t, cancelled)

	cancelled, err = tx.CancelUnpaid(ctx, orderID, order.PaymentPaid, baseTime)
	require.NoError(t, err)
	assert.False(t, cancelled, "paid orders are never cancelled")

	cancelled, err = tx.CancelUnpaid(ctx, orderID, order.PaymentPending, baseTime)
	require.NoError(t, err)
	assert.True(t, cancelled)
}

func TestHandler_ReleaseExpiredOrders_CommitFailureKeepsReservation(t *testing.T) {
	env := newTestHandler()
	ctx := context.Background()
	orderID := placeUnpaidOrder(t, env)
	env.store.CommitErr = errors.New("serialization failure")

	*env.clock = baseTime.Add(2 * time.Hour)
	n, err := env.handler.ReleaseExpiredOrders(ctx, testReleasePolicy)

	require.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 3, env.store.Stock("P1", inventory.SizeM))
	o, err := env.store.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, order.DeliveryPending, o.DeliveryStatus)
}

func TestHandler_LatePaymentAfterRelease(t *testing.T) {
	env := newTestHandler()
	ctx := context.Background()
	orderID := placeTestOrder(t, env)

	*env.clock = baseTime.Add(25 * time.Hour)
	_, err := env.handler.ReleaseExpiredOrders(ctx, testReleasePolicy)
	require.NoError(t, err)

	payload := chargeSuccess(orderID)
	ack, err := env.handler.HandlePaymentWebhook(ctx, payload, signed(payload))

	require.NoError(t, err)
	assert.Equal(t, AckPaymentProcessed, ack.Message)
	o, err := env.store.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, order.DeliveryCancelled, o.DeliveryStatus)
	assert.Equal(t, 5, env.store.Stock("P1", inventory.SizeM))
	assert.Equal(t, 1, env.logs.FilterMessage("payment received for a released order, stock was not re-reserved").Len())
}

func TestHandler_RunReleaser_Disabled(t *testing.T) {
	tests := []struct {
		name     string
		policy   ReleasePolicy
		interval time.Duration
	}{
		{"no ttl", ReleasePolicy{}, time.Minute},
		{"no interval", testReleasePolicy, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestHandler()

			done := make(chan struct{})
			go func() {
				env.handler.RunReleaser(context.Background(), tt.policy, tt.interval)
				close(done)
			}()

			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("RunReleaser should return immediately when disabled")
			}
		})
	}
}

func TestHandler_RunReleaser_StopsOnCancel(t *testing.T) {
	env := newTestHandler()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		env.handler.RunReleaser(ctx, testReleasePolicy, 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunReleaser did not stop after cancel")
	}
}
