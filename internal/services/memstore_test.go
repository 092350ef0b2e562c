package services

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/cloth-shop/api/internal/domain"
	"github.com/cloth-shop/api/internal/payments"
	"github.com/cloth-shop/api/internal/platform/pagination"
	"github.com/cloth-shop/api/internal/repositories"
)

type memRepoError struct {
	op       string
	notFound bool
	conflict bool
}

func (e *memRepoError) Error() string {
	switch {
	case e.notFound:
		return e.op + ": not found"
	case e.conflict:
		return e.op + ": conflict"
	default:
		return e.op + ": failed"
	}
}

func (e *memRepoError) IsNotFound() bool    { return e.notFound }
func (e *memRepoError) IsConflict() bool    { return e.conflict }
func (e *memRepoError) IsUnavailable() bool { return false }

func notFound(op string) error { return &memRepoError{op: op, notFound: true} }
func conflict(op string) error { return &memRepoError{op: op, conflict: true} }

// memStore is an in-memory stand-in for the postgres registry. RunInTx restores a snapshot when
// fn fails so all-or-nothing behaviour can be asserted.
type memStore struct {
	mu        sync.Mutex
	products  map[string]domain.Product
	variants  map[string]domain.ProductVariant
	addresses map[string]domain.Address
	carts     map[string]domain.Cart
	lines     map[string]domain.CartLine
	orders    map[string]domain.Order
	tracking  []domain.OrderTracking
	payments  map[string]domain.Payment
	refunds   map[string]domain.Refund

	appendErr error
	txCount   int
}

func newMemStore() *memStore {
	return &memStore{
		products:  map[string]domain.Product{},
		variants:  map[string]domain.ProductVariant{},
		addresses: map[string]domain.Address{},
		carts:     map[string]domain.Cart{},
		lines:     map[string]domain.CartLine{},
		orders:    map[string]domain.Order{},
		payments:  map[string]domain.Payment{},
		refunds:   map[string]domain.Refund{},
	}
}

type memSnapshot struct {
	carts    map[string]domain.Cart
	lines    map[string]domain.CartLine
	orders   map[string]domain.Order
	tracking []domain.OrderTracking
	payments map[string]domain.Payment
	refunds  map[string]domain.Refund
}

func (m *memStore) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	m.mu.Lock()
	m.txCount++
	snap := memSnapshot{
		carts:    maps.Clone(m.carts),
		lines:    maps.Clone(m.lines),
		orders:   maps.Clone(m.orders),
		tracking: slices.Clone(m.tracking),
		payments: maps.Clone(m.payments),
		refunds:  maps.Clone(m.refunds),
	}
	m.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.carts, m.lines, m.orders = snap.carts, snap.lines, snap.orders
		m.tracking, m.payments, m.refunds = snap.tracking, snap.payments, snap.refunds
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memStore) catalog() *memCatalog                { return &memCatalog{m} }
func (m *memStore) addressBook() *memAddresses          { return &memAddresses{m} }
func (m *memStore) cartRepo() *memCarts                 { return &memCarts{m} }
func (m *memStore) orderRepo() *memOrders               { return &memOrders{m} }
func (m *memStore) trackingRepo() *memTracking          { return &memTracking{m} }
func (m *memStore) paymentRepo() *memPayments           { return &memPayments{m} }
func (m *memStore) refundRepo() *memRefunds             { return &memRefunds{m} }
func (m *memStore) unitOfWork() repositories.UnitOfWork { return m }

func (m *memStore) addProduct(id, name, price string) {
	m.products[id] = domain.Product{ID: id, Name: name, BasePrice: decimal.RequireFromString(price), IsActive: true}
}

func (m *memStore) addVariant(productID, id, name, adjustment string, stock map[string]int) {
	m.variants[id] = domain.ProductVariant{
		ID:              id,
		ProductID:       productID,
		Name:            name,
		PriceAdjustment: decimal.RequireFromString(adjustment),
		SizeStock:       stock,
	}
}

func (m *memStore) addAddress(userID, id string) {
	m.addresses[id] = domain.Address{
		ID: id, UserID: userID, FullName: "Asha Rao", Phone: "9999999999",
		AddressLine1: "12 MG Road", City: "Pune", State: "MH", Pincode: "411001",
	}
}

func (m *memStore) trackingFor(orderID string) []domain.OrderTracking {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.OrderTracking
	for _, entry := range m.tracking {
		if entry.OrderID == orderID {
			out = append(out, entry)
		}
	}
	return out
}

func (m *memStore) cartLinesFor(userID string) []domain.CartLine {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart, ok := m.carts[userID]
	if !ok {
		return nil
	}
	return m.linesLocked(cart.ID)
}

func (m *memStore) linesLocked(cartID string) []domain.CartLine {
	var out []domain.CartLine
	for _, line := range m.lines {
		if line.CartID == cartID {
			out = append(out, line)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type memCatalog struct{ m *memStore }

func (r *memCatalog) FindProduct(_ context.Context, productID string) (domain.Product, error) {
	p, ok := r.m.products[productID]
	if !ok {
		return domain.Product{}, notFound("products.find")
	}
	return p, nil
}

func (r *memCatalog) FindVariant(_ context.Context, productID, variantID string) (domain.ProductVariant, error) {
	v, ok := r.m.variants[variantID]
	if !ok || v.ProductID != productID {
		return domain.ProductVariant{}, notFound("variants.find")
	}
	return v, nil
}

type memAddresses struct{ m *memStore }

func (r *memAddresses) FindByID(_ context.Context, userID, addressID string) (domain.Address, error) {
	a, ok := r.m.addresses[addressID]
	if !ok || a.UserID != userID {
		return domain.Address{}, notFound("addresses.find")
	}
	return a, nil
}

type memCarts struct{ m *memStore }

func (r *memCarts) GetOrCreate(_ context.Context, candidate domain.Cart) (domain.Cart, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cart, ok := r.m.carts[candidate.UserID]
	if !ok {
		cart = domain.Cart{ID: candidate.ID, UserID: candidate.UserID, CreatedAt: candidate.CreatedAt, UpdatedAt: candidate.UpdatedAt}
		r.m.carts[candidate.UserID] = cart
	}
	cart.Lines = r.m.linesLocked(cart.ID)
	return cart, nil
}

func (r *memCarts) FindByUser(_ context.Context, userID string) (domain.Cart, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cart, ok := r.m.carts[userID]
	if !ok {
		return domain.Cart{}, notFound("carts.get")
	}
	cart.Lines = r.m.linesLocked(cart.ID)
	return cart, nil
}

func (r *memCarts) FindLine(_ context.Context, cartID string, key repositories.CartLineKey) (domain.CartLine, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, line := range r.m.lines {
		if line.CartID == cartID && line.ProductID == key.ProductID && line.VariantID == key.VariantID && line.Size == key.Size {
			return line, nil
		}
	}
	return domain.CartLine{}, notFound("cart_lines.find")
}

func (r *memCarts) FindLineByID(_ context.Context, cartID, lineID string) (domain.CartLine, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	line, ok := r.m.lines[lineID]
	if !ok || line.CartID != cartID {
		return domain.CartLine{}, notFound("cart_lines.find_by_id")
	}
	return line, nil
}

func (r *memCarts) InsertLine(_ context.Context, line domain.CartLine) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.lines {
		if existing.CartID == line.CartID && existing.ProductID == line.ProductID && existing.VariantID == line.VariantID && existing.Size == line.Size {
			return conflict("cart_lines.insert")
		}
	}
	r.m.lines[line.ID] = line
	return nil
}

func (r *memCarts) UpdateLineQuantity(_ context.Context, line domain.CartLine) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	stored, ok := r.m.lines[line.ID]
	if !ok || stored.CartID != line.CartID {
		return notFound("cart_lines.update")
	}
	stored.Quantity = line.Quantity
	stored.UpdatedAt = line.UpdatedAt
	r.m.lines[line.ID] = stored
	return nil
}

func (r *memCarts) DeleteLine(_ context.Context, cartID, lineID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	stored, ok := r.m.lines[lineID]
	if !ok || stored.CartID != cartID {
		return notFound("cart_lines.delete")
	}
	delete(r.m.lines, lineID)
	return nil
}

func (r *memCarts) ListLines(_ context.Context, cartID string) ([]domain.CartLine, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.m.linesLocked(cartID), nil
}

func (r *memCarts) LockLines(ctx context.Context, cartID string) ([]domain.CartLine, error) {
	return r.ListLines(ctx, cartID)
}

func (r *memCarts) ClearLines(_ context.Context, cartID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for id, line := range r.m.lines {
		if line.CartID == cartID {
			delete(r.m.lines, id)
		}
	}
	return nil
}

type memOrders struct{ m *memStore }

func (r *memOrders) Insert(_ context.Context, order domain.Order) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.orders {
		if existing.OrderNumber == order.OrderNumber {
			return conflict("orders.insert")
		}
	}
	r.m.orders[order.ID] = order
	return nil
}

func (r *memOrders) Update(_ context.Context, order domain.Order) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	stored, ok := r.m.orders[order.ID]
	if !ok {
		return notFound("orders.update")
	}
	stored.Status = order.Status
	stored.PaymentStatus = order.PaymentStatus
	stored.TrackingNumber = order.TrackingNumber
	stored.Notes = order.Notes
	stored.PaymentDate = order.PaymentDate
	stored.UpdatedAt = order.UpdatedAt
	r.m.orders[order.ID] = stored
	return nil
}

func (r *memOrders) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	order, ok := r.m.orders[orderID]
	if !ok {
		return domain.Order{}, notFound("orders.find")
	}
	return order, nil
}

func (r *memOrders) FindByIDForUpdate(ctx context.Context, orderID string) (domain.Order, error) {
	return r.FindByID(ctx, orderID)
}

func (r *memOrders) ExistsByNumber(_ context.Context, orderNumber string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, order := range r.m.orders {
		if order.OrderNumber == orderNumber {
			return true, nil
		}
	}
	return false, nil
}

func (r *memOrders) ListByUser(_ context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	offset, err := pagination.DecodeOffset(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	var all []domain.Order
	for _, order := range r.m.orders {
		if order.UserID == userID {
			all = append(all, order)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	limit := pager.PageSize
	if limit <= 0 {
		limit = pagination.DefaultPageSize
	}
	page := domain.CursorPage[domain.Order]{}
	if offset >= len(all) {
		return page, nil
	}
	end := min(offset+limit, len(all))
	page.Items = all[offset:end]
	if end < len(all) {
		page.NextPageToken = pagination.EncodeOffset(end)
	}
	return page, nil
}

type memTracking struct{ m *memStore }

func (r *memTracking) Append(_ context.Context, entry domain.OrderTracking) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.appendErr != nil {
		return r.m.appendErr
	}
	r.m.tracking = append(r.m.tracking, entry)
	return nil
}

// ListByOrder mirrors the postgres repository: newest entry first.
func (r *memTracking) ListByOrder(_ context.Context, orderID string) ([]domain.OrderTracking, error) {
	entries := r.m.trackingFor(orderID)
	slices.Reverse(entries)
	return entries, nil
}

type memPayments struct{ m *memStore }

func (r *memPayments) Insert(_ context.Context, payment domain.Payment) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.payments {
		if existing.IntentID == payment.IntentID {
			return conflict("payments.insert")
		}
	}
	r.m.payments[payment.ID] = payment
	return nil
}

func (r *memPayments) Update(_ context.Context, payment domain.Payment) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.payments[payment.ID]; !ok {
		return notFound("payments.update")
	}
	if payment.Status == domain.PaymentStatusSucceeded {
		for _, other := range r.m.payments {
			if other.ID != payment.ID && other.OrderID == payment.OrderID && other.Status == domain.PaymentStatusSucceeded {
				return conflict("payments.update")
			}
		}
	}
	r.m.payments[payment.ID] = payment
	return nil
}

func (r *memPayments) find(op string, match func(domain.Payment) bool) (domain.Payment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, p := range r.m.payments {
		if match(p) {
			return p, nil
		}
	}
	return domain.Payment{}, notFound(op)
}

func (r *memPayments) FindByIntentID(_ context.Context, intentID string) (domain.Payment, error) {
	return r.find("payments.find_by_intent", func(p domain.Payment) bool { return p.IntentID == intentID })
}

func (r *memPayments) FindByIntentIDForUpdate(ctx context.Context, intentID string) (domain.Payment, error) {
	return r.FindByIntentID(ctx, intentID)
}

func (r *memPayments) FindByChargeID(_ context.Context, chargeID string) (domain.Payment, error) {
	return r.find("payments.find_by_charge", func(p domain.Payment) bool { return chargeID != "" && p.ChargeID == chargeID })
}

func (r *memPayments) FindByIDForUpdate(_ context.Context, paymentID string) (domain.Payment, error) {
	return r.find("payments.lock", func(p domain.Payment) bool { return p.ID == paymentID })
}

func (r *memPayments) ListByOrder(_ context.Context, orderID string) ([]domain.Payment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []domain.Payment
	for _, p := range r.m.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

type memRefunds struct{ m *memStore }

func (r *memRefunds) checkInFlight(refund domain.Refund, op string) error {
	if !refund.InFlight() {
		return nil
	}
	for _, other := range r.m.refunds {
		if other.ID != refund.ID && other.PaymentID == refund.PaymentID && other.InFlight() {
			return conflict(op)
		}
	}
	return nil
}

func (r *memRefunds) Insert(_ context.Context, refund domain.Refund) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.checkInFlight(refund, "refunds.insert"); err != nil {
		return err
	}
	r.m.refunds[refund.ID] = refund
	return nil
}

func (r *memRefunds) Update(_ context.Context, refund domain.Refund) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.refunds[refund.ID]; !ok {
		return notFound("refunds.update")
	}
	if err := r.checkInFlight(refund, "refunds.update"); err != nil {
		return err
	}
	r.m.refunds[refund.ID] = refund
	return nil
}

func (r *memRefunds) FindByID(_ context.Context, refundID string) (domain.Refund, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	refund, ok := r.m.refunds[refundID]
	if !ok {
		return domain.Refund{}, notFound("refunds.find")
	}
	return refund, nil
}

func (r *memRefunds) FindByGatewayID(_ context.Context, gatewayRefundID string) (domain.Refund, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, refund := range r.m.refunds {
		if gatewayRefundID != "" && refund.GatewayRefundID == gatewayRefundID {
			return refund, nil
		}
	}
	return domain.Refund{}, notFound("refunds.find_by_gateway")
}

func (r *memRefunds) ListByPayment(_ context.Context, paymentID string) ([]domain.Refund, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []domain.Refund
	for _, refund := range r.m.refunds {
		if refund.PaymentID == paymentID {
			out = append(out, refund)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// fakeGateway returns one intent per idempotency key, mirroring gateway-side key replay.
type fakeGateway struct {
	mu        sync.Mutex
	intents   map[string]payments.Intent
	byKey     map[string]string
	emails    map[string]string
	created   []payments.CreateIntentRequest
	refunds   []payments.RefundRequest
	createErr error
	refundErr error
	event     payments.Event
	parseErr  error
	seq       int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{intents: map[string]payments.Intent{}, byKey: map[string]string{}, emails: map[string]string{}}
}

func (g *fakeGateway) CreateIntent(_ context.Context, req payments.CreateIntentRequest) (payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.created = append(g.created, req)
	if g.createErr != nil {
		return payments.Intent{}, g.createErr
	}
	if id, ok := g.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		prior := g.intents[id]
		if prior.AmountMinor != req.AmountMinor || prior.Currency != req.Currency || g.emails[id] != req.ReceiptEmail {
			return payments.Intent{}, fmt.Errorf("idempotency key %s reused with different parameters", req.IdempotencyKey)
		}
		return prior, nil
	}
	g.seq++
	id := fmt.Sprintf("pi_%03d", g.seq)
	intent := payments.Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       payments.IntentStatusRequiresPaymentMethod,
		AmountMinor:  req.AmountMinor,
		Currency:     req.Currency,
	}
	g.intents[id] = intent
	g.emails[id] = req.ReceiptEmail
	g.byKey[req.IdempotencyKey] = id
	return intent, nil
}

func (g *fakeGateway) RetrieveIntent(_ context.Context, intentID string) (payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[intentID]
	if !ok {
		return payments.Intent{}, fmt.Errorf("no such intent %s", intentID)
	}
	return intent, nil
}

func (g *fakeGateway) setIntent(intentID string, status payments.IntentStatus, chargeID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent := g.intents[intentID]
	intent.ID = intentID
	intent.Status = status
	intent.LatestChargeID = chargeID
	g.intents[intentID] = intent
}

func (g *fakeGateway) IssueRefund(_ context.Context, req payments.RefundRequest) (payments.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, req)
	if g.refundErr != nil {
		return payments.Refund{}, g.refundErr
	}
	return payments.Refund{
		ID:          fmt.Sprintf("re_%03d", len(g.refunds)),
		Status:      payments.RefundStatusPending,
		ChargeID:    req.ChargeID,
		AmountMinor: req.AmountMinor,
	}, nil
}

func (g *fakeGateway) ParseEvent(_ context.Context, _ []byte, _ string) (payments.Event, error) {
	if g.parseErr != nil {
		return payments.Event{}, g.parseErr
	}
	return g.event, nil
}

type captureEvents struct {
	mu     sync.Mutex
	events []OrderEvent
}

func (c *captureEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureEvents) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}

func sequentialIDs() func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%06d", n)
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
