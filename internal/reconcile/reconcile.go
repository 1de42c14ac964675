// Package reconcile derives a trusted (user id, days) pair from an untrusted
// webhook payload by trying a fixed, ordered list of strategies.
package reconcile

import (
	"context"

	"subscription-bridge/internal/payload"
)

// Options configures the default strategy chain.
type Options struct {
	LinkSecret string
	PriceDays  map[int64]int
	NameUnits  map[string]int
}

// Reconciler runs strategies in order and stops at the first match.
type Reconciler struct {
	strategies []Strategy
}

// New builds a Reconciler over an explicit strategy list.
func New(strategies ...Strategy) *Reconciler {
	return &Reconciler{strategies: strategies}
}

// NewDefault builds the standard chain: token, persisted order, direct
// fields, price inference, name inference.
func NewDefault(opts Options, orders OrderFinder) *Reconciler {
	return New(
		TokenMatch{Secret: opts.LinkSecret, Fields: TokenFields},
		PersistedOrderMatch{Orders: orders, Fields: OrderFields},
		DirectFieldMatch{UserFields: UserFields, DaysFields: DaysFields},
		PriceInference{Table: opts.PriceDays, UserFields: UserFields, Fields: PriceFields},
		NameInference{Units: opts.NameUnits, UserFields: UserFields, Fields: NameFields},
	)
}

// Strategies returns the kinds in evaluation order.
func (r *Reconciler) Strategies() []Kind {
	kinds := make([]Kind, len(r.strategies))
	for i, s := range r.strategies {
		kinds[i] = s.Kind()
	}
	return kinds
}

// Reconcile returns the first match. ok is false when no strategy applies;
// err is only returned for infrastructure failures and stops the chain.
func (r *Reconciler) Reconcile(ctx context.Context, f payload.Fields) (Match, bool, error) {
	for _, s := range r.strategies {
		m, ok, err := s.Resolve(ctx, f)
		if err != nil {
			return Match{}, false, err
		}
		if ok {
			return m, true, nil
		}
	}
	return Match{}, false, nil
}
