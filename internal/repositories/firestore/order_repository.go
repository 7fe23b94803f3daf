package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/nuage-shop/api/internal/domain"
	pfirestore "github.com/nuage-shop/api/internal/platform/firestore"
	"github.com/nuage-shop/api/internal/repositories"
)

const ordersCollection = "orders"

type orderItemDocument struct {
	ProductID    string `firestore:"productId"`
	ProductName  string `firestore:"productName"`
	ProductImage string `firestore:"productImage,omitempty"`
	UnitPrice    int64  `firestore:"unitPrice"`
	Quantity     int64  `firestore:"quantity"`
}

type shippingAddressDocument struct {
	FirstName    string `firestore:"firstName"`
	LastName     string `firestore:"lastName"`
	Email        string `firestore:"email"`
	Phone        string `firestore:"phone,omitempty"`
	Address      string `firestore:"address"`
	AddressLine2 string `firestore:"addressLine2,omitempty"`
	City         string `firestore:"city"`
	PostalCode   string `firestore:"postalCode"`
	Country      string `firestore:"country"`
}

type orderDocument struct {
	OrderNumber       string                  `firestore:"orderNumber"`
	Items             []orderItemDocument     `firestore:"items"`
	Subtotal          int64                   `firestore:"subtotal"`
	Shipping          int64                   `firestore:"shipping"`
	Total             int64                   `firestore:"total"`
	Status            string                  `firestore:"status"`
	ShippingAddress   shippingAddressDocument `firestore:"shippingAddress"`
	Notes             string                  `firestore:"notes,omitempty"`
	TrackingNumber    string                  `firestore:"trackingNumber,omitempty"`
	TrackingURL       string                  `firestore:"trackingUrl,omitempty"`
	EstimatedDelivery string                  `firestore:"estimatedDelivery,omitempty"`
	PaymentSessionID  string                  `firestore:"paymentSessionId,omitempty"`
	PaymentIntentID   string                  `firestore:"paymentIntentId,omitempty"`
	ShippedAt         *time.Time              `firestore:"shippedAt,omitempty"`
	DeliveredAt       *time.Time              `firestore:"deliveredAt,omitempty"`
	CreatedAt         time.Time               `firestore:"createdAt"`
	UpdatedAt         time.Time               `firestore:"updatedAt"`
}

// OrderRepository persists order aggregates within Firestore.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection)
	return &OrderRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Insert stores a new order, failing when the document already exists.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}

	_, err := r.base.Create(ctx, orderID, encodeOrder(order))
	return err
}

// FindByID fetches the order with the given document identifier.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data), nil
}

// FindByOrderNumber fetches the order carrying the human-readable number.
func (r *OrderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	number := strings.TrimSpace(orderNumber)
	if number == "" {
		return domain.Order{}, pfirestore.WrapError("orders.getbynumber", grpcstatus.Error(codes.NotFound, "order number is empty"))
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderNumber", "==", number).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.WrapError("orders.getbynumber", grpcstatus.Errorf(codes.NotFound, "order %s not found", number))
	}
	return decodeOrder(docs[0].ID, docs[0].Data), nil
}

// List returns orders newest first, optionally filtered by customer email.
func (r *OrderRepository) List(ctx context.Context, filter repositories.ListOrdersFilter) ([]domain.Order, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if email := strings.TrimSpace(filter.Email); email != "" {
			q = q.Where("shippingAddress.email", "==", strings.ToLower(email))
		}
		q = q.OrderBy("createdAt", firestore.Desc)
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, decodeOrder(doc.ID, doc.Data))
	}
	return orders, nil
}

// ListOrderNumbers returns every order number starting with the prefix.
func (r *OrderRepository) ListOrderNumbers(ctx context.Context, prefix string) ([]string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, errors.New("order repository: prefix is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderNumber", ">=", prefix).
			Where("orderNumber", "<", prefix+"\uf8ff").
			Select("orderNumber")
	})
	if err != nil {
		return nil, err
	}

	numbers := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc.Data.OrderNumber != "" {
			numbers = append(numbers, doc.Data.OrderNumber)
		}
	}
	return numbers, nil
}

// SetPaymentSession records the checkout session identifier on the order.
func (r *OrderRepository) SetPaymentSession(ctx context.Context, orderID, sessionID string) error {
	_, err := r.base.Update(ctx, orderID, []firestore.Update{
		{Path: "paymentSessionId", Value: strings.TrimSpace(sessionID)},
		{Path: "updatedAt", Value: time.Now().UTC()},
	})
	return err
}

// UpdateTracking patches the provided shipment tracking fields without touching
// status; nil patch fields leave the stored values in place.
func (r *OrderRepository) UpdateTracking(ctx context.Context, orderID string, patch repositories.TrackingPatch) (domain.Order, error) {
	var updated domain.Order

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}
		doc, err := r.base.Decode(ctx, snapshot)
		if err != nil {
			return err
		}

		entity := doc.Data
		if patch.TrackingNumber != nil {
			entity.TrackingNumber = strings.TrimSpace(*patch.TrackingNumber)
		}
		if patch.TrackingURL != nil {
			entity.TrackingURL = strings.TrimSpace(*patch.TrackingURL)
		}
		if patch.EstimatedDelivery != nil {
			entity.EstimatedDelivery = strings.TrimSpace(*patch.EstimatedDelivery)
		}
		entity.UpdatedAt = time.Now().UTC()

		if err := tx.Set(ref, entity); err != nil {
			return err
		}
		updated = decodeOrder(doc.ID, entity)
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return updated, nil
}

// Transition performs a compare-and-swap status change guarded by the status
// stored at transaction time. Re-applying the current status is a no-op.
func (r *OrderRepository) Transition(ctx context.Context, req repositories.TransitionRequest) (repositories.TransitionResult, error) {
	var result repositories.TransitionResult

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, req.OrderID)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}
		doc, err := r.base.Decode(ctx, snapshot)
		if err != nil {
			return err
		}

		entity := doc.Data
		from := domain.OrderStatus(entity.Status)

		if from == req.To {
			result = repositories.TransitionResult{
				Order:        decodeOrder(doc.ID, entity),
				Transitioned: false,
				From:         from,
			}
			return nil
		}

		if !transitionAllowed(from, req) {
			return &repositories.TransitionError{OrderID: req.OrderID, From: from, To: req.To}
		}

		now := time.Now().UTC()
		entity.Status = string(req.To)
		entity.UpdatedAt = now
		if intent := strings.TrimSpace(req.PaymentIntentID); intent != "" {
			entity.PaymentIntentID = intent
		}
		if req.To == domain.OrderStatusShipped && entity.ShippedAt == nil {
			stamped := now
			entity.ShippedAt = &stamped
		}
		if req.To == domain.OrderStatusDelivered && entity.DeliveredAt == nil {
			stamped := now
			entity.DeliveredAt = &stamped
		}

		if err := tx.Set(ref, entity); err != nil {
			return err
		}
		result = repositories.TransitionResult{
			Order:        decodeOrder(doc.ID, entity),
			Transitioned: true,
			From:         from,
		}
		return nil
	})
	if err != nil {
		return repositories.TransitionResult{}, err
	}
	return result, nil
}

// CountByStatus tallies orders per lifecycle status.
func (r *OrderRepository) CountByStatus(ctx context.Context) (map[domain.OrderStatus]int64, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Select("status")
	})
	if err != nil {
		return nil, err
	}

	counts := make(map[domain.OrderStatus]int64)
	for _, doc := range docs {
		status := domain.OrderStatus(doc.Data.Status)
		if domain.ValidOrderStatus(status) {
			counts[status]++
		}
	}
	return counts, nil
}

func transitionAllowed(from domain.OrderStatus, req repositories.TransitionRequest) bool {
	if !domain.CanTransition(from, req.To) {
		return false
	}
	if len(req.AllowedFrom) == 0 {
		return true
	}
	for _, allowed := range req.AllowedFrom {
		if from == allowed {
			return true
		}
	}
	return false
}

func encodeOrder(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			ProductImage: item.ProductImage,
			UnitPrice:    item.UnitPrice,
			Quantity:     item.Quantity,
		})
	}

	createdAt := order.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := order.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	return orderDocument{
		OrderNumber: order.OrderNumber,
		Items:       items,
		Subtotal:    order.Subtotal,
		Shipping:    order.Shipping,
		Total:       order.Total,
		Status:      string(order.Status),
		ShippingAddress: shippingAddressDocument{
			FirstName:    order.ShippingAddress.FirstName,
			LastName:     order.ShippingAddress.LastName,
			Email:        strings.ToLower(strings.TrimSpace(order.ShippingAddress.Email)),
			Phone:        order.ShippingAddress.Phone,
			Address:      order.ShippingAddress.Address,
			AddressLine2: order.ShippingAddress.AddressLine2,
			City:         order.ShippingAddress.City,
			PostalCode:   order.ShippingAddress.PostalCode,
			Country:      order.ShippingAddress.Country,
		},
		Notes:             order.Notes,
		TrackingNumber:    order.TrackingNumber,
		TrackingURL:       order.TrackingURL,
		EstimatedDelivery: order.EstimatedDelivery,
		PaymentSessionID:  order.PaymentSessionID,
		PaymentIntentID:   order.PaymentIntentID,
		ShippedAt:         order.ShippedAt,
		DeliveredAt:       order.DeliveredAt,
		CreatedAt:         createdAt,
		UpdatedAt:         updatedAt,
	}
}

func decodeOrder(id string, doc orderDocument) domain.Order {
	items := make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.OrderItem{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			ProductImage: item.ProductImage,
			UnitPrice:    item.UnitPrice,
			Quantity:     item.Quantity,
		})
	}

	return domain.Order{
		ID:          id,
		OrderNumber: doc.OrderNumber,
		Items:       items,
		Subtotal:    doc.Subtotal,
		Shipping:    doc.Shipping,
		Total:       doc.Total,
		Status:      domain.OrderStatus(doc.Status),
		ShippingAddress: domain.ShippingAddress{
			FirstName:    doc.ShippingAddress.FirstName,
			LastName:     doc.ShippingAddress.LastName,
			Email:        doc.ShippingAddress.Email,
			Phone:        doc.ShippingAddress.Phone,
			Address:      doc.ShippingAddress.Address,
			AddressLine2: doc.ShippingAddress.AddressLine2,
			City:         doc.ShippingAddress.City,
			PostalCode:   doc.ShippingAddress.PostalCode,
			Country:      doc.ShippingAddress.Country,
		},
		Notes:             doc.Notes,
		TrackingNumber:    doc.TrackingNumber,
		TrackingURL:       doc.TrackingURL,
		EstimatedDelivery: doc.EstimatedDelivery,
		PaymentSessionID:  doc.PaymentSessionID,
		PaymentIntentID:   doc.PaymentIntentID,
		ShippedAt:         doc.ShippedAt,
		DeliveredAt:       doc.DeliveredAt,
		CreatedAt:         doc.CreatedAt,
		UpdatedAt:         doc.UpdatedAt,
	}
}
