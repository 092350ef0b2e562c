package postgres

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	domain "github.com/cloth-shop/api/internal/domain"
)

type productModel struct {
	ID            string              `gorm:"primaryKey;size:64"`
	Name          string              `gorm:"not null"`
	BasePrice     decimal.Decimal     `gorm:"type:numeric(10,2);not null"`
	DiscountPrice decimal.NullDecimal `gorm:"type:numeric(10,2)"`
	IsActive      bool                `gorm:"not null;default:true"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (productModel) TableName() string { return "products" }

type productVariantModel struct {
	ID              string                  `gorm:"primaryKey;size:64"`
	ProductID       string                  `gorm:"size:64;not null;index"`
	Name            string                  `gorm:"not null"`
	PriceAdjustment decimal.Decimal         `gorm:"type:numeric(10,2);not null;default:0"`
	Sizes           []variantSizeStockModel `gorm:"foreignKey:VariantID;constraint:OnDelete:CASCADE"`
}

func (productVariantModel) TableName() string { return "product_variants" }

type variantSizeStockModel struct {
	VariantID string `gorm:"primaryKey;size:64"`
	Size      string `gorm:"primaryKey;size:16"`
	Quantity  int    `gorm:"not null;default:0"`
}

func (variantSizeStockModel) TableName() string { return "variant_size_stocks" }

type addressModel struct {
	ID           string `gorm:"primaryKey;size:64"`
	UserID       string `gorm:"size:128;not null;index"`
	FullName     string `gorm:"not null"`
	Phone        string `gorm:"size:32"`
	AddressLine1 string `gorm:"column:address_line1;not null"`
	AddressLine2 string `gorm:"column:address_line2"`
	City         string
	State        string
	Pincode      string `gorm:"size:16"`
	Landmark     string
	AddressType  string `gorm:"size:16"`
	IsDefault    bool
}

func (addressModel) TableName() string { return "user_addresses" }

type cartModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	UserID    string `gorm:"size:128;not null;uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (cartModel) TableName() string { return "carts" }

type cartLineModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	CartID    string `gorm:"size:64;not null;uniqueIndex:idx_cart_lines_key,priority:1"`
	ProductID string `gorm:"size:64;not null;uniqueIndex:idx_cart_lines_key,priority:2"`
	VariantID string `gorm:"size:64;not null;default:'';uniqueIndex:idx_cart_lines_key,priority:3"`
	Size      string `gorm:"size:16;not null;default:'';uniqueIndex:idx_cart_lines_key,priority:4"`
	Quantity  int    `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (cartLineModel) TableName() string { return "cart_lines" }

type shippingColumns struct {
	FullName     string
	Phone        string
	Email        string
	AddressLine1 string `gorm:"column:address_line1"`
	AddressLine2 string `gorm:"column:address_line2"`
	City         string
	State        string
	Pincode      string
	Landmark     string
}

type orderModel struct {
	ID             string               `gorm:"primaryKey;size:64"`
	OrderNumber    string               `gorm:"size:32;not null;uniqueIndex:idx_orders_number"`
	UserID         string               `gorm:"size:128;index:idx_orders_user_created,priority:1"`
	Shipping       shippingColumns      `gorm:"embedded;embeddedPrefix:shipping_"`
	Subtotal       decimal.Decimal      `gorm:"type:numeric(10,2);not null"`
	ShippingCharge decimal.Decimal      `gorm:"type:numeric(10,2);not null"`
	Tax            decimal.Decimal      `gorm:"type:numeric(10,2);not null"`
	Discount       decimal.Decimal      `gorm:"type:numeric(10,2);not null;default:0"`
	Total          decimal.Decimal      `gorm:"type:numeric(10,2);not null"`
	PaymentMethod  string               `gorm:"size:16;not null;default:'cod'"`
	PaymentStatus  string               `gorm:"size:16;not null;default:'pending'"`
	Status         string               `gorm:"size:16;not null;default:'pending';index"`
	TrackingNumber string               `gorm:"size:64"`
	Notes          string               `gorm:"type:text"`
	PaymentDate    *time.Time
	Items          []orderItemModel     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Tracking       []orderTrackingModel `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time            `gorm:"index:idx_orders_user_created,priority:2,sort:desc"`
	UpdatedAt      time.Time
}

func (orderModel) TableName() string { return "orders" }

type orderItemModel struct {
	ID          string          `gorm:"primaryKey;size:64"`
	OrderID     string          `gorm:"size:64;not null;index"`
	ProductID   string          `gorm:"size:64;not null"`
	ProductName string          `gorm:"not null"`
	VariantID   string          `gorm:"size:64"`
	VariantName string
	Size        string          `gorm:"size:16"`
	Quantity    int             `gorm:"not null"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Total       decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	CreatedAt   time.Time
}

func (orderItemModel) TableName() string { return "order_items" }

type orderTrackingModel struct {
	ID          string    `gorm:"primaryKey;size:64"`
	OrderID     string    `gorm:"size:64;not null;index:idx_order_tracking_order,priority:1"`
	Status      string    `gorm:"size:32;not null"`
	Description string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"index:idx_order_tracking_order,priority:2"`
}

func (orderTrackingModel) TableName() string { return "order_tracking" }

type paymentModel struct {
	ID              string          `gorm:"primaryKey;size:64"`
	OrderID         string          `gorm:"size:64;not null;index"`
	Order           *orderModel     `gorm:"foreignKey:OrderID;constraint:OnDelete:RESTRICT"`
	IntentID        string          `gorm:"size:255;not null;uniqueIndex"`
	Amount          decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Currency        string          `gorm:"size:3;not null"`
	Status          string          `gorm:"size:20;not null;index"`
	ClientSecret    string          `gorm:"size:255"`
	PaymentMethodID string          `gorm:"size:255"`
	ChargeID        string          `gorm:"size:255;index"`
	ReceiptEmail    string          `gorm:"size:255"`
	ErrorMessage    string          `gorm:"type:text"`
	Metadata        datatypes.JSON  `gorm:"type:jsonb;default:'{}'"`
	PaidAt          *time.Time
	FailedAt        *time.Time
	CreatedAt       time.Time `gorm:"index"`
	UpdatedAt       time.Time
}

func (paymentModel) TableName() string { return "payments" }

type refundModel struct {
	ID              string          `gorm:"primaryKey;size:64"`
	PaymentID       string          `gorm:"size:64;not null;index"`
	Payment         *paymentModel   `gorm:"foreignKey:PaymentID;constraint:OnDelete:RESTRICT"`
	OrderID         string          `gorm:"size:64;not null;index"`
	GatewayRefundID *string         `gorm:"size:255;uniqueIndex"`
	Amount          decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Status          string          `gorm:"size:20;not null"`
	Reason          string          `gorm:"size:32;not null"`
	Description     string          `gorm:"type:text"`
	Metadata        datatypes.JSON  `gorm:"type:jsonb;default:'{}'"`
	ErrorMessage    string          `gorm:"type:text"`
	CompletedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (refundModel) TableName() string { return "refunds" }

func encodeMetadata(values map[string]any) datatypes.JSON {
	if len(values) == 0 {
		return datatypes.JSON("{}")
	}
	data, err := json.Marshal(values)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(data)
}

func decodeMetadata(raw datatypes.JSON) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil || len(values) == 0 {
		return nil
	}
	return values
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func toDomainProduct(m productModel) domain.Product {
	product := domain.Product{
		ID:        m.ID,
		Name:      m.Name,
		BasePrice: m.BasePrice,
		IsActive:  m.IsActive,
	}
	if m.DiscountPrice.Valid {
		price := m.DiscountPrice.Decimal
		product.DiscountPrice = &price
	}
	return product
}

func toDomainVariant(m productVariantModel) domain.ProductVariant {
	variant := domain.ProductVariant{
		ID:              m.ID,
		ProductID:       m.ProductID,
		Name:            m.Name,
		PriceAdjustment: m.PriceAdjustment,
	}
	if len(m.Sizes) > 0 {
		variant.SizeStock = make(map[string]int, len(m.Sizes))
		for _, size := range m.Sizes {
			variant.SizeStock[size.Size] = size.Quantity
		}
	}
	return variant
}

func toDomainAddress(m addressModel) domain.Address {
	return domain.Address{
		ID:           m.ID,
		UserID:       m.UserID,
		FullName:     m.FullName,
		Phone:        m.Phone,
		AddressLine1: m.AddressLine1,
		AddressLine2: m.AddressLine2,
		City:         m.City,
		State:        m.State,
		Pincode:      m.Pincode,
		Landmark:     m.Landmark,
		AddressType:  m.AddressType,
		IsDefault:    m.IsDefault,
	}
}

func toDomainCartLine(m cartLineModel) domain.CartLine {
	return domain.CartLine{
		ID:        m.ID,
		CartID:    m.CartID,
		ProductID: m.ProductID,
		VariantID: m.VariantID,
		Size:      m.Size,
		Quantity:  m.Quantity,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

func fromDomainOrder(order domain.Order) orderModel {
	model := orderModel{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Shipping: shippingColumns{
			FullName:     order.Shipping.FullName,
			Phone:        order.Shipping.Phone,
			Email:        order.Shipping.Email,
			AddressLine1: order.Shipping.AddressLine1,
			AddressLine2: order.Shipping.AddressLine2,
			City:         order.Shipping.City,
			State:        order.Shipping.State,
			Pincode:      order.Shipping.Pincode,
			Landmark:     order.Shipping.Landmark,
		},
		Subtotal:       order.Subtotal,
		ShippingCharge: order.ShippingCharge,
		Tax:            order.Tax,
		Discount:       order.Discount,
		Total:          order.Total,
		PaymentMethod:  string(order.PaymentMethod),
		PaymentStatus:  string(order.PaymentStatus),
		Status:         string(order.Status),
		TrackingNumber: order.TrackingNumber,
		Notes:          order.Notes,
		PaymentDate:    cloneTime(order.PaymentDate),
		CreatedAt:      order.CreatedAt,
		UpdatedAt:      order.UpdatedAt,
	}
	for _, item := range order.Items {
		model.Items = append(model.Items, orderItemModel{
			ID:          item.ID,
			OrderID:     order.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			VariantID:   item.VariantID,
			VariantName: item.VariantName,
			Size:        item.Size,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Total:       item.Total,
			CreatedAt:   item.CreatedAt,
		})
	}
	return model
}

func toDomainOrder(m orderModel) domain.Order {
	order := domain.Order{
		ID:          m.ID,
		OrderNumber: m.OrderNumber,
		UserID:      m.UserID,
		Shipping: domain.ShippingSnapshot{
			FullName:     m.Shipping.FullName,
			Phone:        m.Shipping.Phone,
			Email:        m.Shipping.Email,
			AddressLine1: m.Shipping.AddressLine1,
			AddressLine2: m.Shipping.AddressLine2,
			City:         m.Shipping.City,
			State:        m.Shipping.State,
			Pincode:      m.Shipping.Pincode,
			Landmark:     m.Shipping.Landmark,
		},
		Subtotal:       m.Subtotal,
		ShippingCharge: m.ShippingCharge,
		Tax:            m.Tax,
		Discount:       m.Discount,
		Total:          m.Total,
		PaymentMethod:  domain.PaymentMethod(m.PaymentMethod),
		PaymentStatus:  domain.OrderPaymentStatus(m.PaymentStatus),
		Status:         domain.OrderStatus(m.Status),
		TrackingNumber: m.TrackingNumber,
		Notes:          m.Notes,
		PaymentDate:    cloneTime(m.PaymentDate),
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
	for _, item := range m.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ID:          item.ID,
			OrderID:     item.OrderID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			VariantID:   item.VariantID,
			VariantName: item.VariantName,
			Size:        item.Size,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Total:       item.Total,
			CreatedAt:   item.CreatedAt.UTC(),
		})
	}
	return order
}

func fromDomainPayment(p domain.Payment) paymentModel {
	return paymentModel{
		ID:              p.ID,
		OrderID:         p.OrderID,
		IntentID:        p.IntentID,
		Amount:          p.Amount,
		Currency:        p.Currency,
		Status:          string(p.Status),
		ClientSecret:    p.ClientSecret,
		PaymentMethodID: p.PaymentMethodID,
		ChargeID:        p.ChargeID,
		ReceiptEmail:    p.ReceiptEmail,
		ErrorMessage:    p.ErrorMessage,
		Metadata:        encodeMetadata(p.Metadata),
		PaidAt:          cloneTime(p.PaidAt),
		FailedAt:        cloneTime(p.FailedAt),
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func toDomainPayment(m paymentModel) domain.Payment {
	return domain.Payment{
		ID:              m.ID,
		OrderID:         m.OrderID,
		IntentID:        m.IntentID,
		Amount:          m.Amount,
		Currency:        m.Currency,
		Status:          domain.PaymentStatus(m.Status),
		ClientSecret:    m.ClientSecret,
		PaymentMethodID: m.PaymentMethodID,
		ChargeID:        m.ChargeID,
		ReceiptEmail:    m.ReceiptEmail,
		ErrorMessage:    m.ErrorMessage,
		Metadata:        decodeMetadata(m.Metadata),
		PaidAt:          cloneTime(m.PaidAt),
		FailedAt:        cloneTime(m.FailedAt),
		CreatedAt:       m.CreatedAt.UTC(),
		UpdatedAt:       m.UpdatedAt.UTC(),
	}
}

func fromDomainRefund(r domain.Refund) refundModel {
	return refundModel{
		ID:              r.ID,
		PaymentID:       r.PaymentID,
		OrderID:         r.OrderID,
		GatewayRefundID: optionalString(r.GatewayRefundID),
		Amount:          r.Amount,
		Status:          string(r.Status),
		Reason:          string(r.Reason),
		Description:     r.Description,
		Metadata:        encodeMetadata(r.Metadata),
		ErrorMessage:    r.ErrorMessage,
		CompletedAt:     cloneTime(r.CompletedAt),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func toDomainRefund(m refundModel) domain.Refund {
	return domain.Refund{
		ID:              m.ID,
		PaymentID:       m.PaymentID,
		OrderID:         m.OrderID,
		GatewayRefundID: derefString(m.GatewayRefundID),
		Amount:          m.Amount,
		Status:          domain.RefundStatus(m.Status),
		Reason:          domain.RefundReason(m.Reason),
		Description:     m.Description,
		Metadata:        decodeMetadata(m.Metadata),
		ErrorMessage:    m.ErrorMessage,
		CompletedAt:     cloneTime(m.CompletedAt),
		CreatedAt:       m.CreatedAt.UTC(),
		UpdatedAt:       m.UpdatedAt.UTC(),
	}
}
