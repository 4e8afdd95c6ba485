// Package planner expands a search intent into the concrete parameter maps a
// source understands: one map per year × price bucket so that each query stays
// under the site's result cap.
package planner

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrInvalidIntent is returned for intents that cannot be expanded.
var ErrInvalidIntent = errors.New("invalid search intent")

// IDKey is the synthetic search identifier added to every map.
const IDKey = "id"

// Search is one parameter map for a source. Key "id" identifies the bucket
// and is never sent to the site.
type Search map[string]string

// ID returns the synthetic search identifier.
func (s Search) ID() string { return s[IDKey] }

// Bucket is a price range. To == 0 means no upper bound.
type Bucket struct {
	From uint64 `yaml:"from"`
	To   uint64 `yaml:"to"`
}

// Open reports whether the bucket has no upper bound.
func (b Bucket) Open() bool { return b.To == 0 }

func (b Bucket) String() string {
	if b.Open() {
		return strconv.FormatUint(b.From, 10) + "-inf"
	}
	return strconv.FormatUint(b.From, 10) + "-" + strconv.FormatUint(b.To, 10)
}

// StandardPriceBuckets subdivides the market into ranges small enough for
// every supported site. 25000-30000 is not covered.
var StandardPriceBuckets = []Bucket{
	{1000, 2000}, {2000, 3000}, {3000, 5000}, {5000, 7000}, {7000, 9000},
	{9000, 11000}, {11000, 13000}, {13000, 15000}, {15000, 20000}, {20000, 25000},
	{30000, 40000}, {40000, 50000}, {50000, 90000}, {90000, 0},
}

// Intent is a high-level query: every year in [FromYear, ToYear] crossed with
// every price bucket. ToYear 0 means the current year.
type Intent struct {
	Name     string            `yaml:"name"`
	FromYear int               `yaml:"from_year"`
	ToYear   int               `yaml:"to_year"`
	Prices   []Bucket          `yaml:"prices"` // empty means StandardPriceBuckets
	Extra    map[string]string `yaml:"extra"`
}

// Dialect names a source's native parameters. Empty YearTo or PriceTo keys
// are not emitted.
type Dialect struct {
	YearFrom  string            `yaml:"year_from"`
	YearTo    string            `yaml:"year_to"`
	PriceFrom string            `yaml:"price_from"`
	PriceTo   string            `yaml:"price_to"`
	Fixed     map[string]string `yaml:"fixed"`
}

// Planner expands intents. The zero value uses the wall clock.
type Planner struct {
	Now func() time.Time
}

// Expand expands intent with the wall clock.
func Expand(intent Intent, d Dialect) ([]Search, error) {
	return Planner{}.Expand(intent, d)
}

// Expand returns the Cartesian product years × price buckets, years
// ascending, buckets in their configured order.
func (p Planner) Expand(intent Intent, d Dialect) ([]Search, error) {
	if err := p.validate(&intent, d); err != nil {
		return nil, err
	}
	years := p.YearBuckets(intent.FromYear, intent.ToYear)
	out := make([]Search, 0, len(years)*len(intent.Prices))
	for _, y := range years {
		for _, b := range intent.Prices {
			out = append(out, build(intent, d, y, b))
		}
	}
	return out, nil
}

// YearBuckets returns the single-year spans from..to inclusive. to == 0
// means the current year.
func (p Planner) YearBuckets(from, to int) []int {
	if to == 0 {
		to = p.now().Year()
	}
	if from > to {
		return nil
	}
	years := make([]int, 0, to-from+1)
	for y := from; y <= to; y++ {
		years = append(years, y)
	}
	return years
}

func (p Planner) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func build(intent Intent, d Dialect, year int, b Bucket) Search {
	s := make(Search, len(d.Fixed)+len(intent.Extra)+5)
	for k, v := range d.Fixed {
		s[k] = v
	}
	for k, v := range intent.Extra {
		s[k] = v
	}
	ys := strconv.Itoa(year)
	s[d.YearFrom] = ys
	if d.YearTo != "" {
		s[d.YearTo] = ys
	}
	s[d.PriceFrom] = strconv.FormatUint(b.From, 10)
	if d.PriceTo != "" && !b.Open() {
		s[d.PriceTo] = strconv.FormatUint(b.To, 10)
	}
	s[IDKey] = fmt.Sprintf("%s:%d-%d:%s", intent.Name, year, year, b)
	return s
}

func (p Planner) validate(intent *Intent, d Dialect) error {
	if intent.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidIntent)
	}
	if intent.FromYear <= 0 {
		return fmt.Errorf("%w: %s: from_year %d", ErrInvalidIntent, intent.Name, intent.FromYear)
	}
	to := intent.ToYear
	if to == 0 {
		to = p.now().Year()
	}
	if intent.FromYear > to {
		return fmt.Errorf("%w: %s: from_year %d after to_year %d", ErrInvalidIntent, intent.Name, intent.FromYear, to)
	}
	if len(intent.Prices) == 0 {
		intent.Prices = StandardPriceBuckets
	}
	if err := validateBuckets(intent.Prices); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidIntent, intent.Name, err)
	}
	if d.YearFrom == "" || d.PriceFrom == "" {
		return fmt.Errorf("%w: %s: dialect needs year_from and price_from", ErrInvalidIntent, intent.Name)
	}
	for _, k := range []string{d.YearFrom, d.YearTo, d.PriceFrom, d.PriceTo} {
		if k == IDKey {
			return fmt.Errorf("%w: %s: dialect key %q is reserved", ErrInvalidIntent, intent.Name, IDKey)
		}
	}
	if _, ok := d.Fixed[IDKey]; ok {
		return fmt.Errorf("%w: %s: fixed key %q is reserved", ErrInvalidIntent, intent.Name, IDKey)
	}
	if _, ok := intent.Extra[IDKey]; ok {
		return fmt.Errorf("%w: %s: extra key %q is reserved", ErrInvalidIntent, intent.Name, IDKey)
	}
	return nil
}

// validateBuckets requires non-empty, strictly increasing, non-overlapping
// ranges; only the last may be open-ended.
func validateBuckets(bs []Bucket) error {
	for i, b := range bs {
		if b.Open() {
			if i != len(bs)-1 {
				return fmt.Errorf("open bucket %s must be last", b)
			}
		} else if b.From >= b.To {
			return fmt.Errorf("empty bucket %s", b)
		}
		if i > 0 && b.From < bs[i-1].To {
			return fmt.Errorf("bucket %s overlaps %s", b, bs[i-1])
		}
	}
	return nil
}
