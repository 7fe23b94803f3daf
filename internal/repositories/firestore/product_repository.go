package firestore

import (
	"context"
	"errors"

	"github.com/nuage-shop/api/internal/domain"
	pfirestore "github.com/nuage-shop/api/internal/platform/firestore"
)

const productsCollection = "products"

type productDocument struct {
	Name   string `firestore:"name"`
	Price  int64  `firestore:"price"`
	Image  string `firestore:"image,omitempty"`
	Active bool   `firestore:"active"`
}

// ProductRepository exposes read-only access to the product catalog.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product catalog reader.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		base: pfirestore.NewBaseRepository[productDocument](provider, productsCollection),
	}, nil
}

// FindByID fetches the catalog entry for the product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return domain.Product{
		ID:     doc.ID,
		Name:   doc.Data.Name,
		Price:  doc.Data.Price,
		Image:  doc.Data.Image,
		Active: doc.Data.Active,
	}, nil
}
