package domain

// An EffectResult reports the outcome of one best-effort side effect.
type EffectResult struct {
	OK      bool   `json:"ok,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

func EffectOK() EffectResult {
	return EffectResult{OK: true}
}

func EffectSkipped() EffectResult {
	return EffectResult{Skipped: true}
}

func EffectFailed(msg string, err error) EffectResult {
	r := EffectResult{Error: msg}
	if err != nil {
		r.Detail = err.Error()
	}
	return r
}

// SideEffects collects per-effect outcomes of a completed payment.
type SideEffects struct {
	Stock  EffectResult `json:"stock"`
	Email  EffectResult `json:"email"`
	Record EffectResult `json:"record"`
	Event  EffectResult `json:"event"`
}

// OrderPlaced is published once an order is captured and recorded.
type OrderPlaced struct {
	OrderID   string  `json:"orderId"`
	Provider  string  `json:"provider"`
	Currency  string  `json:"currency"`
	Total     float64 `json:"total"`
	Items     []Item  `json:"items"`
	CreatedAt int64   `json:"createdAt"`
}

type ProductSales struct {
	ProductID int64 `json:"id"`
	UnitsSold int64 `json:"unitsSold"`
}

type SalesSummary struct {
	Orders    int     `json:"orders"`
	Pending   int     `json:"pending"`
	Revenue   float64 `json:"revenue"`
	Profit    float64 `json:"profit"`
	UnitsSold int     `json:"unitsSold"`
}
