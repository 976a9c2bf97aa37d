package domain

type (
	Product struct {
		ID    int64   `json:"id"`
		Name  string  `json:"name"`
		Price float64 `json:"price"`
		Stock int     `json:"stock"`
		Cost  float64 `json:"cost,omitempty"`
	}

	// A Catalog is a snapshot of sellable products.
	Catalog []Product

	CartLine struct {
		ProductID int64 `json:"id"`
		Qty       int   `json:"qty"`
	}

	// An Item is a cart line joined with its product at order time.
	//
	// Price and Cost are copied so stored orders never depend on the live catalog.
	Item struct {
		ID    int64   `json:"id"`
		Name  string  `json:"name"`
		Price float64 `json:"price"`
		Cost  float64 `json:"cost"`
		Qty   int     `json:"qty"`
	}

	// A StockShortage names a cart line that asks for more than the catalog holds.
	StockShortage struct {
		ProductID      int64  `json:"id"`
		ProductName    string `json:"name"`
		AvailableStock int    `json:"availableStock"`
		Requested      int    `json:"requested"`
	}
)

func (c Catalog) ByID() map[int64]Product {
	m := make(map[int64]Product, len(c))
	for _, p := range c {
		m[p.ID] = p
	}
	return m
}

func (c Catalog) Find(id int64) (Product, bool) {
	for _, p := range c {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

func (p Product) Valid() bool {
	return p.ID > 0 && p.Price >= 0 && p.Stock >= 0 && p.Cost >= 0
}
