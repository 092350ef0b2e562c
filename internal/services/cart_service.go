package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/cloth-shop/api/internal/domain"
	"github.com/cloth-shop/api/internal/repositories"
)

const maxCartLineQuantity = 999

var (
	errCartRepositoryRequired = errors.New("cart service: repository is required")
	errCartCatalogRequired    = errors.New("cart service: catalog is required")
)

// CartServiceDeps wires the repository and pricing dependencies for cart operations.
type CartServiceDeps struct {
	Carts       repositories.CartRepository
	Catalog     CatalogService
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type cartService struct {
	carts   repositories.CartRepository
	catalog CatalogService
	unit    repositories.UnitOfWork
	now     func() time.Time
	newID   func() string
	logger  logFunc
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Catalog == nil {
		return nil, errCartCatalogRequired
	}
	return &cartService{
		carts:   deps.Carts,
		catalog: deps.Catalog,
		unit:    defaultUnitOfWork(deps.UnitOfWork),
		now:     defaultClock(deps.Clock),
		newID:   defaultIDGenerator(deps.IDGenerator),
		logger:  defaultLogger(deps.Logger),
	}, nil
}

// GetOrCreate loads the user's cart, creating an empty one when absent.
func (s *cartService) GetOrCreate(ctx context.Context, userID string) (CartView, error) {
	cart, err := s.loadCart(ctx, userID)
	if err != nil {
		return CartView{}, err
	}
	return s.view(ctx, cart), nil
}

// AddItem adds to the existing (product, variant, size) line or inserts a new one.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error) {
	if cmd.Quantity < 1 {
		return CartView{}, fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	}
	if cmd.Quantity > maxCartLineQuantity {
		return CartView{}, fmt.Errorf("%w: quantity must be %d or fewer", ErrValidation, maxCartLineQuantity)
	}
	key := repositories.CartLineKey{
		ProductID: strings.TrimSpace(cmd.ProductID),
		VariantID: strings.TrimSpace(cmd.VariantID),
		Size:      strings.TrimSpace(cmd.Size),
	}

	quote, err := s.catalog.ResolvePriceAndStock(ctx, key.ProductID, key.VariantID, key.Size)
	if err != nil {
		return CartView{}, err
	}
	if !quote.Allows(cmd.Quantity) {
		return CartView{}, insufficientStock(quote)
	}

	cart, err := s.loadCart(ctx, cmd.UserID)
	if err != nil {
		return CartView{}, err
	}

	now := s.now()
	err = s.unit.RunInTx(ctx, func(txCtx context.Context) error {
		existing, err := s.carts.FindLine(txCtx, cart.ID, key)
		switch {
		case err == nil:
			existing.Quantity += cmd.Quantity
			if existing.Quantity > maxCartLineQuantity {
				return fmt.Errorf("%w: quantity must be %d or fewer", ErrValidation, maxCartLineQuantity)
			}
			existing.UpdatedAt = now
			return mapRepositoryError(s.carts.UpdateLineQuantity(txCtx, existing), ErrCartLineNotFound)
		case isRepoNotFound(err):
			line := domain.CartLine{
				ID:        cartLineIDPrefix + s.newID(),
				CartID:    cart.ID,
				ProductID: key.ProductID,
				VariantID: key.VariantID,
				Size:      key.Size,
				Quantity:  cmd.Quantity,
				CreatedAt: now,
				UpdatedAt: now,
			}
			return mapRepositoryError(s.carts.InsertLine(txCtx, line), nil)
		default:
			return mapRepositoryError(err, nil)
		}
	})
	if err != nil {
		return CartView{}, err
	}

	s.logger(ctx, "cart.item.added", map[string]any{
		"userID":    cart.UserID,
		"productID": key.ProductID,
		"variantID": key.VariantID,
		"size":      key.Size,
		"quantity":  cmd.Quantity,
	})
	return s.GetOrCreate(ctx, cart.UserID)
}

// UpdateItem sets a line's quantity, deleting the line when the quantity is zero or less.
func (s *cartService) UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (CartView, error) {
	if cmd.Quantity > maxCartLineQuantity {
		return CartView{}, fmt.Errorf("%w: quantity must be %d or fewer", ErrValidation, maxCartLineQuantity)
	}
	cart, err := s.loadCart(ctx, cmd.UserID)
	if err != nil {
		return CartView{}, err
	}
	line, err := s.findLine(ctx, cart.ID, cmd.LineID)
	if err != nil {
		return CartView{}, err
	}

	if cmd.Quantity <= 0 {
		if err := s.carts.DeleteLine(ctx, cart.ID, line.ID); err != nil {
			return CartView{}, mapRepositoryError(err, ErrCartLineNotFound)
		}
		return s.GetOrCreate(ctx, cart.UserID)
	}

	quote, err := s.catalog.ResolvePriceAndStock(ctx, line.ProductID, line.VariantID, line.Size)
	if err != nil {
		return CartView{}, err
	}
	if !quote.Allows(cmd.Quantity) {
		return CartView{}, insufficientStock(quote)
	}

	line.Quantity = cmd.Quantity
	line.UpdatedAt = s.now()
	if err := s.carts.UpdateLineQuantity(ctx, line); err != nil {
		return CartView{}, mapRepositoryError(err, ErrCartLineNotFound)
	}
	return s.GetOrCreate(ctx, cart.UserID)
}

// RemoveItem deletes one of the user's lines.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (CartView, error) {
	cart, err := s.loadCart(ctx, cmd.UserID)
	if err != nil {
		return CartView{}, err
	}
	line, err := s.findLine(ctx, cart.ID, cmd.LineID)
	if err != nil {
		return CartView{}, err
	}
	if err := s.carts.DeleteLine(ctx, cart.ID, line.ID); err != nil {
		return CartView{}, mapRepositoryError(err, ErrCartLineNotFound)
	}
	return s.GetOrCreate(ctx, cart.UserID)
}

// Clear removes every line from the user's cart.
func (s *cartService) Clear(ctx context.Context, userID string) (CartView, error) {
	cart, err := s.loadCart(ctx, userID)
	if err != nil {
		return CartView{}, err
	}
	if err := s.carts.ClearLines(ctx, cart.ID); err != nil {
		return CartView{}, mapRepositoryError(err, nil)
	}
	cart.Lines = nil
	return s.view(ctx, cart), nil
}

func (s *cartService) loadCart(ctx context.Context, userID string) (Cart, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	now := s.now()
	cart, err := s.carts.GetOrCreate(ctx, domain.Cart{
		ID:        cartIDPrefix + s.newID(),
		UserID:    uid,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Cart{}, mapRepositoryError(err, nil)
	}
	return cart, nil
}

func (s *cartService) findLine(ctx context.Context, cartID, lineID string) (CartLine, error) {
	lineID = strings.TrimSpace(lineID)
	if lineID == "" {
		return CartLine{}, fmt.Errorf("%w: item id is required", ErrValidation)
	}
	line, err := s.carts.FindLineByID(ctx, cartID, lineID)
	if err != nil {
		return CartLine{}, mapRepositoryError(err, ErrCartLineNotFound)
	}
	return line, nil
}

// view prices every line with current catalog data. Lines whose product is no longer sold
// are shown at zero and rejected at checkout.
func (s *cartService) view(ctx context.Context, cart Cart) CartView {
	view := CartView{
		Cart:     cart,
		Lines:    make([]CartLineView, 0, len(cart.Lines)),
		Subtotal: decimal.Zero,
	}
	for _, line := range cart.Lines {
		item := CartLineView{CartLine: line, UnitPrice: decimal.Zero, LineTotal: decimal.Zero}
		quote, err := s.catalog.ResolvePriceAndStock(ctx, line.ProductID, line.VariantID, line.Size)
		if err != nil {
			s.logger(ctx, "cart.line.pricing_failed", map[string]any{
				"cartID": cart.ID,
				"lineID": line.ID,
				"error":  err.Error(),
			})
		} else {
			item.ProductName = quote.ProductName
			item.VariantName = quote.VariantName
			item.UnitPrice = quote.UnitPrice
			item.LineTotal = domain.LineTotal(quote.UnitPrice, line.Quantity)
		}
		view.Subtotal = view.Subtotal.Add(item.LineTotal)
		view.ItemCount += line.Quantity
		view.Lines = append(view.Lines, item)
	}
	return view
}

func insufficientStock(quote PriceQuote) error {
	if quote.Available <= 0 {
		return fmt.Errorf("%w: size %s not available for this variant", ErrInsufficientStock, quote.Size)
	}
	return fmt.Errorf("%w: only %d items available", ErrInsufficientStock, quote.Available)
}
