package orders_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/rudotcom/electron/internal/checkout"
	"github.com/rudotcom/electron/internal/orders"
	"github.com/rudotcom/electron/internal/params"
	"github.com/rudotcom/electron/internal/pricing"
	"github.com/rudotcom/electron/internal/stores/postgres"
)

type ordersSuite struct {
	suite.Suite

	db        *sql.DB
	conf      *orders.Conf
	container testcontainers.Container
}

func TestOrdersSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	suite.Run(t, new(ordersSuite))
}

func (s *ordersSuite) SetupSuite() {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("store"),
		tcpostgres.WithUsername("store"),
		tcpostgres.WithPassword("secret"),
		tcpostgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.db, err = sql.Open("pgx", connStr)
	s.Require().NoError(err)
	s.Require().NoError(postgres.RunMigrations(ctx, s.db))

	p, err := params.NewConf(s.db)
	s.Require().NoError(err)
	s.conf, err = orders.NewConf(s.db, p)
	s.Require().NoError(err)
}

func (s *ordersSuite) TearDownSuite() {
	ctx := context.Background()
	if s.db != nil {
		s.NoError(s.db.Close())
	}
	if s.container != nil {
		s.NoError(s.container.Terminate(ctx))
	}
}

func (s *ordersSuite) newCustomer() int64 {
	var id int64
	err := s.db.QueryRow(`
		INSERT INTO customers (session_token) VALUES ($1) RETURNING id
	`, gofakeit.LetterN(56)).Scan(&id)
	s.Require().NoError(err)
	return id
}

func (s *ordersSuite) newProduct(price string, qty int, gift bool) int64 {
	var id int64
	err := s.db.QueryRow(`
		INSERT INTO products (title, price, quantity, gift)
		VALUES ($1, $2, $3, $4) RETURNING id
	`, gofakeit.ProductName(), price, qty, gift).Scan(&id)
	s.Require().NoError(err)
	return id
}

func (s *ordersSuite) stockOf(productID int64) int {
	var qty int
	s.Require().NoError(s.db.QueryRow(`SELECT quantity FROM products WHERE id = $1`, productID).Scan(&qty))
	return qty
}

func selfPickupForm() checkout.Form {
	return checkout.Form{
		DeliveryType: pricing.DeliverySelf,
		PaymentType:  checkout.PaymentOnline,
		FirstName:    "Анна",
		LastName:     "Иванова",
		Email:        "anna@example.com",
	}
}

func (s *ordersSuite) TestSingleOpenCartPerCustomer() {
	t := s.T()
	ctx := context.Background()
	customerID := s.newCustomer()

	first, err := s.conf.GetOrCreateCart(ctx, customerID)
	require.NoError(t, err)
	require.Equal(t, orders.StatusCart, first.Status)

	second, err := s.conf.GetOrCreateCart(ctx, customerID)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func (s *ordersSuite) TestConcurrentFirstCartRequests() {
	t := s.T()
	ctx := context.Background()
	customerID := s.newCustomer()

	// two tabs fire the first cart request at the same time; both must
	// come back with the same cart instead of one tripping over the
	// unique index
	const attempts = 2
	results := make(chan int64, attempts)
	errs := make(chan error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cart, err := s.conf.GetOrCreateCart(ctx, customerID)
			results <- cart.ID
			errs <- err
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	ids := make(map[int64]struct{})
	for id := range results {
		ids[id] = struct{}{}
	}
	require.Len(t, ids, 1)
}

func (s *ordersSuite) TestAddItemClampsToStock() {
	t := s.T()
	ctx := context.Background()
	customerID := s.newCustomer()
	productID := s.newProduct("100.00", 5, false)

	res, err := s.conf.AddItem(ctx, customerID, productID, 6)
	require.NoError(t, err)
	require.True(t, res.Clamped)
	require.Equal(t, 5, res.Qty)
	require.True(t, res.Order.TotalNet.Equal(decimal.RequireFromString("500.00")))

	// adding more of the same product cannot exceed stock either
	res, err = s.conf.AddItem(ctx, customerID, productID, 3)
	require.NoError(t, err)
	require.True(t, res.Clamped)
	require.Equal(t, 5, res.Qty)
	require.Len(t, res.Order.Items, 1)
}

func (s *ordersSuite) TestDeliveryCostBelowAndAboveThreshold() {
	t := s.T()
	ctx := context.Background()
	customerID := s.newCustomer()
	cheap := s.newProduct("100.00", 50, false)

	_, err := s.conf.AddItem(ctx, customerID, cheap, 5)
	require.NoError(t, err)

	order, err := s.conf.SetDeliveryType(ctx, customerID, pricing.DeliveryCourier)
	require.NoError(t, err)
	require.True(t, order.DeliveryCost.Equal(decimal.RequireFromString("450.00")))
	require.True(t, order.TotalGross.Equal(decimal.RequireFromString("950.00")))

	// crossing the free-delivery threshold zeroes the courier cost
	res, err := s.conf.AddItem(ctx, customerID, cheap, 21)
	require.NoError(t, err)
	require.True(t, res.Order.TotalNet.Equal(decimal.RequireFromString("2600.00")))
	require.True(t, res.Order.DeliveryCost.IsZero())
	require.True(t, res.Order.TotalGross.Equal(res.Order.TotalNet))
}

func (s *ordersSuite) TestSetItemQuantityZeroRemovesLine() {
	t := s.T()
	ctx := context.Background()
	customerID := s.newCustomer()
	productID := s.newProduct("200.00", 10, false)

	_, err := s.conf.AddItem(ctx, customerID, productID, 2)
	require.NoError(t, err)

	res, err := s.conf.SetItemQuantity(ctx, customerID, productID, 0)
	require.NoError(t, err)
	require.Equal(t, 0, res.Qty)
	require.Empty(t, res.Order.Items)
	require.True(t, res.Order.TotalNet.IsZero())
}

func (s *ordersSuite) TestEmptyingCartResetsDelivery() {
	t := s.T()
	ctx := context.Background()
	customerID := s.newCustomer()
	productID := s.newProduct("300.00", 10, false)

	_, err := s.conf.AddItem(ctx, customerID, productID, 1)
	require.NoError(t, err)
	_, err = s.conf.SetDeliveryType(ctx, customerID, pricing.DeliveryCourier)
	require.NoError(t, err)

	res, err := s.conf.RemoveItem(ctx, customerID, productID)
	require.NoError(t, err)
	require.Empty(t, res.Order.Items)
	require.Empty(t, res.Order.Delivery)
	require.True(t, res.Order.DeliveryCost.IsZero())
	require.True(t, res.Order.TotalGross.IsZero())
}

func (s *ordersSuite) TestGiftEligibility() {
	t := s.T()
	ctx := context.Background()
	customerID := s.newCustomer()
	productID := s.newProduct("1000.00", 10, false)
	giftID := s.newProduct("500.00", 3, true)

	_, err := s.conf.AddItem(ctx, customerID, productID, 3)
	require.NoError(t, err)

	// 3000 is below the gift threshold
	_, err = s.conf.SelectGift(ctx, customerID, giftID)
	require.ErrorIs(t, err, orders.ErrGiftNotEligible)

	_, err = s.conf.AddItem(ctx, customerID, productID, 1)
	require.NoError(t, err)

	order, err := s.conf.SelectGift(ctx, customerID, giftID)
	require.NoError(t, err)
	require.NotNil(t, order.GiftProductID)
	require.Equal(t, giftID, *order.GiftProductID)

	// shrinking the order below the threshold drops the gift
	res, err := s.conf.SetItemQuantity(ctx, customerID, productID, 1)
	require.NoError(t, err)
	require.Nil(t, res.Order.GiftProductID)
}

func (s *ordersSuite) TestPlaceOrderEmptyCart() {
	ctx := context.Background()
	customerID := s.newCustomer()

	_, err := s.conf.GetOrCreateCart(ctx, customerID)
	s.Require().NoError(err)

	_, err = s.conf.PlaceOrder(ctx, customerID, selfPickupForm())
	s.Require().ErrorIs(err, orders.ErrEmptyCart)
}

func (s *ordersSuite) TestPaymentFlowIsIdempotent() {
	t := s.T()
	ctx := context.Background()
	customerID := s.newCustomer()
	productID := s.newProduct("700.00", 10, false)

	_, err := s.conf.AddItem(ctx, customerID, productID, 2)
	require.NoError(t, err)

	placed, err := s.conf.PlaceOrder(ctx, customerID, selfPickupForm())
	require.NoError(t, err)
	require.Equal(t, orders.StatusNew, placed.Status)

	review, err := s.conf.ReviewForPayment(ctx, placed.ID)
	require.NoError(t, err)
	require.True(t, review.Ready)

	paymentID := "cs_test_" + gofakeit.LetterN(24)
	require.NoError(t, s.conf.AttachPayment(ctx, placed.ID, paymentID))

	res, err := s.conf.RegisterPayment(ctx, paymentID, orders.PaymentSucceeded, time.Now())
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.Equal(t, orders.StatusPaid, res.Order.Status)
	require.Equal(t, 8, s.stockOf(productID))

	// a redelivered success event must not decrement stock again
	res, err = s.conf.RegisterPayment(ctx, paymentID, orders.PaymentSucceeded, time.Now())
	require.NoError(t, err)
	require.False(t, res.Applied)
	require.Equal(t, 8, s.stockOf(productID))

	// nor may a late cancellation undo a recorded success
	res, err = s.conf.RegisterPayment(ctx, paymentID, orders.PaymentCanceled, time.Now())
	require.NoError(t, err)
	require.False(t, res.Applied)
	require.Equal(t, orders.PaymentSucceeded, res.Order.PaymentStatus)
}

func (s *ordersSuite) TestLatePaymentAfterCancelDoesNotResurrect() {
	t := s.T()
	ctx := context.Background()
	customerID := s.newCustomer()
	productID := s.newProduct("600.00", 10, false)

	_, err := s.conf.AddItem(ctx, customerID, productID, 3)
	require.NoError(t, err)
	placed, err := s.conf.PlaceOrder(ctx, customerID, selfPickupForm())
	require.NoError(t, err)

	paymentID := "cs_test_" + gofakeit.LetterN(24)
	require.NoError(t, s.conf.AttachPayment(ctx, placed.ID, paymentID))

	// an operator cancels the order while the checkout session is open
	canceled, err := s.conf.Advance(ctx, placed.ID, orders.StatusCanceled, "", "")
	require.NoError(t, err)
	require.Equal(t, orders.StatusCanceled, canceled.Status)

	// the shopper still completes the payment
	res, err := s.conf.RegisterPayment(ctx, paymentID, orders.PaymentSucceeded, time.Now())
	require.NoError(t, err)
	require.False(t, res.Applied)
	require.Equal(t, orders.StatusCanceled, res.Order.Status)
	require.Equal(t, 10, s.stockOf(productID))

	// the capture itself is on record for reconciliation
	require.Equal(t, orders.PaymentSucceeded, res.Order.PaymentStatus)
	require.NotNil(t, res.Order.PaidAt)
}

func (s *ordersSuite) TestRegisterPaymentUnknownID() {
	ctx := context.Background()
	_, err := s.conf.RegisterPayment(ctx, "cs_test_unknown", orders.PaymentSucceeded, time.Now())
	s.Require().ErrorIs(err, orders.ErrPaymentNotFound)
}

func (s *ordersSuite) TestFailedPaymentKeepsOrderPayable() {
	t := s.T()
	ctx := context.Background()
	customerID := s.newCustomer()
	productID := s.newProduct("900.00", 5, false)

	_, err := s.conf.AddItem(ctx, customerID, productID, 1)
	require.NoError(t, err)
	placed, err := s.conf.PlaceOrder(ctx, customerID, selfPickupForm())
	require.NoError(t, err)

	paymentID := "cs_test_" + gofakeit.LetterN(24)
	require.NoError(t, s.conf.AttachPayment(ctx, placed.ID, paymentID))

	res, err := s.conf.RegisterPayment(ctx, paymentID, orders.PaymentFailed, time.Now())
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.Equal(t, orders.StatusNew, res.Order.Status)
	require.Equal(t, 5, s.stockOf(productID))

	// a new payment attempt replaces the failed session
	review, err := s.conf.ReviewForPayment(ctx, placed.ID)
	require.NoError(t, err)
	require.True(t, review.Ready)
	require.NoError(t, s.conf.AttachPayment(ctx, placed.ID, "cs_test_"+gofakeit.LetterN(24)))
}

func (s *ordersSuite) TestReviewForPaymentClampsOversoldLines() {
	t := s.T()
	ctx := context.Background()
	customerID := s.newCustomer()
	productID := s.newProduct("400.00", 10, false)

	_, err := s.conf.AddItem(ctx, customerID, productID, 4)
	require.NoError(t, err)
	placed, err := s.conf.PlaceOrder(ctx, customerID, selfPickupForm())
	require.NoError(t, err)

	// someone else bought most of the stock in the meantime
	_, err = s.db.Exec(`UPDATE products SET quantity = 1 WHERE id = $1`, productID)
	require.NoError(t, err)

	review, err := s.conf.ReviewForPayment(ctx, placed.ID)
	require.NoError(t, err)
	require.False(t, review.Ready)
	require.Len(t, review.Adjustments, 1)
	require.Equal(t, 1, review.Adjustments[0].NewQty)
	require.True(t, review.Order.TotalNet.Equal(decimal.RequireFromString("400.00")))

	// the second pass sees the adjusted order and is ready
	review, err = s.conf.ReviewForPayment(ctx, placed.ID)
	require.NoError(t, err)
	require.True(t, review.Ready)
}

func (s *ordersSuite) TestReviewForPaymentEmptiedOrder() {
	t := s.T()
	ctx := context.Background()
	customerID := s.newCustomer()
	productID := s.newProduct("400.00", 10, false)

	_, err := s.conf.AddItem(ctx, customerID, productID, 2)
	require.NoError(t, err)
	placed, err := s.conf.PlaceOrder(ctx, customerID, selfPickupForm())
	require.NoError(t, err)

	// the whole stock sold out before the shopper got to pay; an order
	// with nothing left must never reach the payment processor
	_, err = s.db.Exec(`UPDATE products SET quantity = 0 WHERE id = $1`, productID)
	require.NoError(t, err)

	_, err = s.conf.ReviewForPayment(ctx, placed.ID)
	require.ErrorIs(t, err, orders.ErrEmptyCart)
}

func (s *ordersSuite) TestAdvanceLifecycle() {
	t := s.T()
	ctx := context.Background()
	customerID := s.newCustomer()
	productID := s.newProduct("600.00", 5, false)

	_, err := s.conf.AddItem(ctx, customerID, productID, 1)
	require.NoError(t, err)
	placed, err := s.conf.PlaceOrder(ctx, customerID, selfPickupForm())
	require.NoError(t, err)

	paymentID := "cs_test_" + gofakeit.LetterN(24)
	require.NoError(t, s.conf.AttachPayment(ctx, placed.ID, paymentID))
	_, err = s.conf.RegisterPayment(ctx, paymentID, orders.PaymentSucceeded, time.Now())
	require.NoError(t, err)

	// skipping ahead is rejected
	_, err = s.conf.Advance(ctx, placed.ID, orders.StatusShipped, "", "")
	require.ErrorIs(t, err, orders.ErrInvalidTransition)

	_, err = s.conf.Advance(ctx, placed.ID, orders.StatusInProgress, "", "")
	require.NoError(t, err)
	_, err = s.conf.Advance(ctx, placed.ID, orders.StatusReady, "", "")
	require.NoError(t, err)

	shipped, err := s.conf.Advance(ctx, placed.ID, orders.StatusShipped, "RA123456789RU", "")
	require.NoError(t, err)
	require.Equal(t, "RA123456789RU", shipped.TrackingCode)
	require.NotNil(t, shipped.ShippedAt)

	// cancel works from any live status and does not restock
	_, err = s.conf.Advance(ctx, placed.ID, orders.StatusCanceled, "", "возврат оформит оператор")
	require.NoError(t, err)
	require.Equal(t, 4, s.stockOf(productID))

	_, err = s.conf.Advance(ctx, placed.ID, orders.StatusDelivered, "", "")
	require.ErrorIs(t, err, orders.ErrInvalidTransition)
}

func (s *ordersSuite) TestListByUserSpansSessions() {
	t := s.T()
	ctx := context.Background()

	// the same user shops from two browser sessions, each with its own
	// customer row, and their history must show both orders
	userID := "user-" + gofakeit.LetterN(12)
	firstSession := s.newCustomer()
	secondSession := s.newCustomer()
	_, err := s.db.Exec(`UPDATE customers SET user_id = $1 WHERE id IN ($2, $3)`,
		userID, firstSession, secondSession)
	require.NoError(t, err)

	productID := s.newProduct("250.00", 10, false)

	_, err = s.conf.AddItem(ctx, firstSession, productID, 1)
	require.NoError(t, err)
	first, err := s.conf.PlaceOrder(ctx, firstSession, selfPickupForm())
	require.NoError(t, err)

	_, err = s.conf.AddItem(ctx, secondSession, productID, 1)
	require.NoError(t, err)
	second, err := s.conf.PlaceOrder(ctx, secondSession, selfPickupForm())
	require.NoError(t, err)

	history, err := s.conf.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, history, 2)

	ids := []int64{history[0].ID, history[1].ID}
	require.Contains(t, ids, first.ID)
	require.Contains(t, ids, second.ID)
}

func (s *ordersSuite) TestStaleCartsArePurged() {
	t := s.T()
	ctx := context.Background()
	staleCustomer := s.newCustomer()

	stale, err := s.conf.GetOrCreateCart(ctx, staleCustomer)
	require.NoError(t, err)
	_, err = s.db.Exec(`UPDATE orders SET created_at = NOW() - INTERVAL '3 days' WHERE id = $1`, stale.ID)
	require.NoError(t, err)

	// creating a cart for another customer triggers the purge
	_, err = s.conf.GetOrCreateCart(ctx, s.newCustomer())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		var n int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM orders WHERE id = $1`, stale.ID).Scan(&n); err != nil {
			return false
		}
		return n == 0
	}, 5*time.Second, 100*time.Millisecond)
}
