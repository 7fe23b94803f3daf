package domain

// Product is the catalog entry consulted when verifying cart prices. The
// catalog is read-only from this service's perspective.
type Product struct {
	ID     string
	Name   string
	Price  int64
	Image  string
	Active bool
}
