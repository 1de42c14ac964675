package reconcile

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "subscription-bridge/internal/errors"
	"subscription-bridge/internal/linktoken"
	"subscription-bridge/internal/model"
	"subscription-bridge/internal/payload"
	"subscription-bridge/internal/repository"
)

// Kind tags which strategy produced a Match.
type Kind string

const (
	KindToken          Kind = "token"
	KindPersistedOrder Kind = "persisted_order"
	KindDirectField    Kind = "direct_field"
	KindPrice          Kind = "price_inference"
	KindName           Kind = "name_inference"
)

// Match is a trusted (user, duration) pair derived from a payload.
type Match struct {
	UserID   int64
	Days     int
	Strategy Kind
	// OrderID is set when a persisted order backed the match.
	OrderID string
}

// Strategy is one way of deriving a Match. ok is false when the strategy
// does not apply to the payload; err is reserved for infrastructure failures.
type Strategy interface {
	Kind() Kind
	Resolve(ctx context.Context, f payload.Fields) (m Match, ok bool, err error)
}

// Field names recognized by the default strategies.
var (
	TokenFields = []string{"order_num", "order_id"}
	OrderFields = []string{"order_id", "order_num"}
	UserFields  = []string{"customer_extra"}
	DaysFields  = []string{"days"}
	PriceFields = []string{"products.0.price", "sum", "amount", "price"}
	NameFields  = []string{"products.0.name", "product_name", "name"}
)

// TokenMatch reads the pair straight out of a signed order token.
type TokenMatch struct {
	Secret string
	Fields []string
}

func (TokenMatch) Kind() Kind { return KindToken }

func (s TokenMatch) Resolve(_ context.Context, f payload.Fields) (Match, bool, error) {
	for _, name := range s.Fields {
		claims, ok := linktoken.Parse(f.Get(name), s.Secret)
		if ok {
			return Match{UserID: claims.UserID, Days: claims.Days, Strategy: KindToken}, true, nil
		}
	}
	return Match{}, false, nil
}

// OrderFinder looks up orders created when a payment link was issued.
type OrderFinder interface {
	FindByOrderID(ctx context.Context, orderID string) (*model.Order, error)
}

// PersistedOrderMatch trusts only the stored order, never the provider's
// user or duration fields.
type PersistedOrderMatch struct {
	Orders OrderFinder
	Fields []string
}

func (PersistedOrderMatch) Kind() Kind { return KindPersistedOrder }

func (s PersistedOrderMatch) Resolve(ctx context.Context, f payload.Fields) (Match, bool, error) {
	for _, name := range s.Fields {
		id := f.Get(name)
		if id == "" || strings.HasPrefix(id, linktoken.Prefix+":") {
			continue
		}

		order, err := s.Orders.FindByOrderID(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return Match{}, false, apperrors.Transient("reconcile.persisted_order", fmt.Errorf("find order %s: %w", id, err))
		}
		if order.UserID <= 0 || order.Days <= 0 {
			continue
		}

		return Match{
			UserID:   order.UserID,
			Days:     order.Days,
			Strategy: KindPersistedOrder,
			OrderID:  order.OrderID,
		}, true, nil
	}
	return Match{}, false, nil
}

// DirectFieldMatch uses an explicit user reference and day count.
type DirectFieldMatch struct {
	UserFields []string
	DaysFields []string
}

func (DirectFieldMatch) Kind() Kind { return KindDirectField }

func (s DirectFieldMatch) Resolve(_ context.Context, f payload.Fields) (Match, bool, error) {
	uid, ok := positiveInt(f, s.UserFields)
	if !ok {
		return Match{}, false, nil
	}
	days, ok := positiveInt(f, s.DaysFields)
	if !ok || days > maxDays {
		return Match{}, false, nil
	}
	return Match{UserID: uid, Days: int(days), Strategy: KindDirectField}, true, nil
}

// PriceInference maps a paid price to a duration through a table.
type PriceInference struct {
	Table      map[int64]int
	UserFields []string
	Fields     []string
}

func (PriceInference) Kind() Kind { return KindPrice }

func (s PriceInference) Resolve(_ context.Context, f payload.Fields) (Match, bool, error) {
	uid, ok := positiveInt(f, s.UserFields)
	if !ok || len(s.Table) == 0 {
		return Match{}, false, nil
	}
	for _, name := range s.Fields {
		price, ok := ParsePrice(f.Get(name))
		if !ok {
			continue
		}
		if days, found := s.Table[price]; found && days > 0 {
			return Match{UserID: uid, Days: days, Strategy: KindPrice}, true, nil
		}
	}
	return Match{}, false, nil
}

var countUnit = regexp.MustCompile(`(\d+)\s*(\p{L}+)`)

// NameInference extracts "<count> <unit>" from a product name, e.g.
// "3 месяца" with месяца=30 gives 90 days.
type NameInference struct {
	Units      map[string]int
	UserFields []string
	Fields     []string
}

func (NameInference) Kind() Kind { return KindName }

func (s NameInference) Resolve(_ context.Context, f payload.Fields) (Match, bool, error) {
	uid, ok := positiveInt(f, s.UserFields)
	if !ok || len(s.Units) == 0 {
		return Match{}, false, nil
	}
	for _, name := range s.Fields {
		if days, ok := DaysFromName(f.Get(name), s.Units); ok {
			return Match{UserID: uid, Days: days, Strategy: KindName}, true, nil
		}
	}
	return Match{}, false, nil
}

// DaysFromName returns count*units[unit] for the first recognized pair in name.
func DaysFromName(name string, units map[string]int) (int, bool) {
	for _, m := range countUnit.FindAllStringSubmatch(name, -1) {
		perUnit, ok := units[strings.ToLower(m[2])]
		if !ok || perUnit <= 0 {
			continue
		}
		count, err := strconv.Atoi(m[1])
		if err != nil || count <= 0 || count > maxDays/perUnit {
			continue
		}
		return count * perUnit, true
	}
	return 0, false
}

// ParsePrice reads a human formatted price such as "1 299,00 ₽" or "12900".
// A trailing group of one or two digits after '.' or ',' is the fractional
// part and is dropped; any other separator is a thousands separator.
func ParsePrice(raw string) (int64, bool) {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == ',':
			b.WriteByte('.')
		}
	}
	clean := strings.Trim(b.String(), ".")
	if clean == "" {
		return 0, false
	}

	intPart, frac := clean, ""
	if i := strings.LastIndexByte(clean, '.'); i >= 0 && len(clean)-i-1 <= 2 {
		intPart, frac = clean[:i], clean[i+1:]
	}
	intPart = strings.ReplaceAll(intPart, ".", "")
	if intPart == "" {
		return 0, false
	}
	if frac != "" {
		intPart += "." + frac
	}

	d, err := decimal.NewFromString(intPart)
	if err != nil || d.IntPart() <= 0 {
		return 0, false
	}
	return d.IntPart(), true
}

// maxDays bounds day counts taken from untrusted fields.
const maxDays = 3660

func positiveInt(f payload.Fields, names []string) (int64, bool) {
	for _, name := range names {
		v := f.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err == nil && n > 0 {
			return n, true
		}
	}
	return 0, false
}
