package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/safar/go-shop-settlement/internal/apperr"
	"github.com/safar/go-shop-settlement/internal/database"
	"github.com/safar/go-shop-settlement/internal/models"
	"github.com/safar/go-shop-settlement/internal/service"
	"github.com/safar/go-shop-settlement/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cartMock struct {
	CartService
	view      *models.CartView
	err       error
	gotOwner  models.CartOwner
	gotOpts   []models.CartItemOption
	gotMerge  [2]interface{}
	removeCnt int
}

func (m *cartMock) Get(ctx context.Context, owner models.CartOwner) (*models.CartView, error) {
	m.gotOwner = owner
	return m.view, m.err
}

func (m *cartMock) AddItem(ctx context.Context, owner models.CartOwner, productID int64, quantity int, options []models.CartItemOption) (*models.CartView, error) {
	m.gotOwner = owner
	m.gotOpts = options
	return m.view, m.err
}

func (m *cartMock) RemoveItems(ctx context.Context, owner models.CartOwner, itemIDs []int64) (int, error) {
	m.gotOwner = owner
	return m.removeCnt, m.err
}

func (m *cartMock) Merge(ctx context.Context, userID int64, sessionToken string) (*models.CartView, error) {
	m.gotMerge = [2]interface{}{userID, sessionToken}
	return m.view, m.err
}

type orderMock struct {
	OrderService
	order *models.Order
	page  *store.OrderPage
	err   error
}

func (m *orderMock) CreateFromCart(ctx context.Context, userID int64, opts service.CheckoutOptions) (*models.Order, error) {
	return m.order, m.err
}

func (m *orderMock) Get(ctx context.Context, orderID, userID int64) (*models.Order, error) {
	return m.order, m.err
}

func (m *orderMock) ListByUser(ctx context.Context, userID int64, cursor string, limit int) (*store.OrderPage, error) {
	return m.page, m.err
}

type paymentMock struct {
	PaymentService
	payment  *models.Payment
	err      error
	gotReq   service.PaymentRequest
	gotTxID  string
	refunded decimal.Decimal
}

func (m *paymentMock) CreatePayment(ctx context.Context, userID int64, req service.PaymentRequest) (*models.Payment, error) {
	m.gotReq = req
	return m.payment, m.err
}

func (m *paymentMock) CancelPayment(ctx context.Context, transactionID string) (*models.Payment, error) {
	m.gotTxID = transactionID
	return m.payment, m.err
}

func (m *paymentMock) RefundPayment(ctx context.Context, transactionID string, amount decimal.Decimal) (*models.Payment, error) {
	m.gotTxID = transactionID
	m.refunded = amount
	return m.payment, m.err
}

type ledgerMock struct {
	LedgerService
	summary *models.BalanceSummary
	balance decimal.Decimal
	err     error
}

func (m *ledgerMock) Summary(ctx context.Context, userID int64) (*models.BalanceSummary, error) {
	return m.summary, m.err
}

func (m *ledgerMock) Balance(ctx context.Context, userID int64, kind models.LedgerKind) (decimal.Decimal, error) {
	return m.balance, m.err
}

type fixture struct {
	carts    *cartMock
	orders   *orderMock
	payments *paymentMock
	ledgers  *ledgerMock
	handler  http.Handler
}

func newFixture() *fixture {
	f := &fixture{
		carts:    &cartMock{},
		orders:   &orderMock{},
		payments: &paymentMock{},
		ledgers:  &ledgerMock{},
	}
	f.handler = NewRouter(Services{
		Carts:    f.carts,
		Orders:   f.orders,
		Payments: f.payments,
		Ledgers:  f.ledgers,
	}, 0)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func userHeader(id string) map[string]string {
	return map[string]string{HeaderUserID: id}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{database.ErrOrderNotFound, http.StatusNotFound},
		{service.ErrOrderNotOwned, http.StatusForbidden},
		{service.ErrNonPositiveAmount, http.StatusBadRequest},
		{database.ErrInsufficientStock, http.StatusBadRequest},
		{database.ErrInsufficientFunds, http.StatusBadRequest},
		{service.ErrEmptyCart, http.StatusBadRequest},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, statusFor(apperr.KindOf(c.err)), c.err.Error())
	}
}

func TestGetCart_SessionOwner(t *testing.T) {
	f := newFixture()
	token := "sess-1"
	f.carts.view = &models.CartView{ID: 4, SessionToken: &token, Items: []models.CartItemView{}}

	rec := f.do(t, http.MethodGet, "/api/v1/cart", nil, map[string]string{HeaderSessionToken: token})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.SessionOwner(token), f.carts.gotOwner)
	var view models.CartView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Equal(t, int64(4), view.ID)
}

func TestGetCart_UserWinsOverSession(t *testing.T) {
	f := newFixture()
	f.carts.view = &models.CartView{}

	rec := f.do(t, http.MethodGet, "/api/v1/cart", nil, map[string]string{HeaderUserID: "9", HeaderSessionToken: "s"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.UserOwner(9), f.carts.gotOwner)
}

func TestGetCart_Unauthorized(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/api/v1/cart", nil, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInvalidUserHeader(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/api/v1/cart", nil, userHeader("abc"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddItem_OutOfStock(t *testing.T) {
	f := newFixture()
	f.carts.err = database.ErrInsufficientStock

	rec := f.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{
		ProductID: 1,
		Quantity:  3,
		Options:   []models.CartItemOption{{OptionID: 2, Value: "L"}},
	}, userHeader("1"))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "out_of_stock", resp.Code)
	assert.Equal(t, []models.CartItemOption{{OptionID: 2, Value: "L"}}, f.carts.gotOpts)
}

func TestAddItem_InvalidBody(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", bytes.NewBufferString("{"))
	req.Header.Set(HeaderUserID, "1")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveItems_ReturnsCount(t *testing.T) {
	f := newFixture()
	f.carts.removeCnt = 2

	rec := f.do(t, http.MethodPost, "/api/v1/cart/items/remove", RemoveItemsRequestDTO{ItemIDs: []int64{1, 2, 99}}, userHeader("1"))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 2, resp["removed"])
}

func TestMerge_RequiresBothHeaders(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/v1/cart/merge", nil, userHeader("1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.carts.view = &models.CartView{}
	rec = f.do(t, http.MethodPost, "/api/v1/cart/merge", nil, map[string]string{HeaderUserID: "1", HeaderSessionToken: "s"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [2]interface{}{int64(1), "s"}, f.carts.gotMerge)
}

func TestGetOrder_Forbidden(t *testing.T) {
	f := newFixture()
	f.orders.err = service.ErrOrderNotOwned

	rec := f.do(t, http.MethodGet, "/api/v1/orders/5", nil, userHeader("1"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetOrder_BadID(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/api/v1/orders/x", nil, userHeader("1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckout_PaymentFailureKeepsOrder(t *testing.T) {
	f := newFixture()
	f.orders.order = &models.Order{ID: 3, Status: models.OrderStatusPaymentFailed}
	f.orders.err = database.ErrInsufficientFunds

	rec := f.do(t, http.MethodPost, "/api/v1/orders/checkout", CheckoutRequestDTO{PaymentMethod: "POINT"}, userHeader("1"))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp CheckoutResponseDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Order)
	assert.Equal(t, models.OrderStatusPaymentFailed, resp.Order.Status)
	assert.NotEmpty(t, resp.PaymentError)
}

func TestCheckout_EmptyBody(t *testing.T) {
	f := newFixture()
	f.orders.order = &models.Order{ID: 3, Status: models.OrderStatusPending}

	rec := f.do(t, http.MethodPost, "/api/v1/orders/checkout", nil, userHeader("1"))

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestListOrders(t *testing.T) {
	f := newFixture()
	f.orders.page = &store.OrderPage{Orders: []models.Order{{ID: 1}, {ID: 2}}, HasMore: true, NextCursor: "abc"}

	rec := f.do(t, http.MethodGet, "/api/v1/orders?limit=2", nil, userHeader("1"))

	require.Equal(t, http.StatusOK, rec.Code)
	var page store.OrderPage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	assert.Len(t, page.Orders, 2)
	assert.True(t, page.HasMore)
}

func TestCreatePayment_PassesRequest(t *testing.T) {
	f := newFixture()
	f.payments.payment = &models.Payment{ID: 1, Status: models.PaymentStatusCompleted}

	rec := f.do(t, http.MethodPost, "/api/v1/payments", map[string]interface{}{
		"order_id":       7,
		"amount":         "800",
		"method":         "PAYPAY",
		"transaction_id": "tx-1",
	}, userHeader("1"))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, int64(7), f.payments.gotReq.OrderID)
	assert.True(t, f.payments.gotReq.Amount.Equal(decimal.NewFromInt(800)))
	assert.Equal(t, "PAYPAY", f.payments.gotReq.Method)
}

func TestCreatePayment_RefusedReturnsPayment(t *testing.T) {
	f := newFixture()
	f.payments.payment = &models.Payment{ID: 1, Status: models.PaymentStatusFailed}
	f.payments.err = database.ErrInsufficientFunds

	rec := f.do(t, http.MethodPost, "/api/v1/payments", CreatePaymentRequestDTO{OrderID: 1, Amount: decimal.NewFromInt(5), Method: "POINT", TransactionID: "t"}, userHeader("1"))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp PaymentResponseDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, models.PaymentStatusFailed, resp.Payment.Status)
}

func TestRefundPayment_NotFound(t *testing.T) {
	f := newFixture()
	f.payments.err = database.ErrPaymentNotFound

	rec := f.do(t, http.MethodPost, "/api/v1/admin/payments/nope/refund", RefundRequestDTO{Amount: decimal.NewFromInt(1)}, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "nope", f.payments.gotTxID)
}

func TestPaymentReversal_NotOnCustomerRoutes(t *testing.T) {
	f := newFixture()
	f.payments.payment = &models.Payment{TransactionID: "tx-1", Status: models.PaymentStatusCanceled}

	for _, path := range []string{"/api/v1/payments/tx-1/cancel", "/api/v1/payments/tx-1/refund"} {
		rec := f.do(t, http.MethodPost, path, RefundRequestDTO{Amount: decimal.NewFromInt(1)}, userHeader("2"))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
	assert.Empty(t, f.payments.gotTxID)
}

func TestAdminCancelPayment(t *testing.T) {
	f := newFixture()
	f.payments.payment = &models.Payment{TransactionID: "tx-1", Status: models.PaymentStatusCanceled}

	rec := f.do(t, http.MethodPost, "/api/v1/admin/payments/tx-1/cancel", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tx-1", f.payments.gotTxID)
	var payment models.Payment
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&payment))
	assert.Equal(t, models.PaymentStatusCanceled, payment.Status)
}

func TestAdminRefundPayment(t *testing.T) {
	f := newFixture()
	f.payments.payment = &models.Payment{TransactionID: "tx-1", Status: models.PaymentStatusPartiallyRefunded}

	rec := f.do(t, http.MethodPost, "/api/v1/admin/payments/tx-1/refund", RefundRequestDTO{Amount: decimal.NewFromInt(300)}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.payments.refunded.Equal(decimal.NewFromInt(300)))
}

func TestBalance_UnknownKind(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/api/v1/balances/BITCOIN", nil, userHeader("1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBalance_Summary(t *testing.T) {
	f := newFixture()
	f.ledgers.summary = &models.BalanceSummary{UserID: 1, Wallet: decimal.NewFromInt(700)}

	rec := f.do(t, http.MethodGet, "/api/v1/balances", nil, userHeader("1"))

	require.Equal(t, http.StatusOK, rec.Code)
	var summary models.BalanceSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
	assert.True(t, summary.Wallet.Equal(decimal.NewFromInt(700)))
}

func TestInternalErrorHidesDetails(t *testing.T) {
	f := newFixture()
	f.ledgers.err = assert.AnError

	rec := f.do(t, http.MethodGet, "/api/v1/balances/POINT", nil, userHeader("1"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "internal server error", resp.Error)
}
