package planner

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var mobileDialect = Dialect{
	YearFrom:  "year",
	YearTo:    "year1",
	PriceFrom: "price",
	PriceTo:   "price1",
	Fixed:     map[string]string{"act": "3", "f10": "1"},
}

func TestExpand_TwoYearsStandardBuckets(t *testing.T) {
	out, err := Expand(Intent{Name: "all", FromYear: 2022, ToYear: 2023}, mobileDialect)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 28 {
		t.Fatalf("expected 28 maps, got %d", len(out))
	}
	ids := map[string]bool{}
	for _, s := range out {
		if ids[s.ID()] {
			t.Fatalf("duplicate id %q", s.ID())
		}
		ids[s.ID()] = true
	}
	for _, last := range []Search{out[13], out[27]} {
		if _, ok := last["price1"]; ok {
			t.Fatalf("last bucket per year should be open-ended: %v", last)
		}
		if last["price"] != "90000" || !strings.HasSuffix(last.ID(), ":90000-inf") {
			t.Fatalf("last bucket = %v", last)
		}
	}
	first := out[0]
	want := Search{"act": "3", "f10": "1", "year": "2022", "year1": "2022", "price": "1000", "price1": "2000", "id": "all:2022-2022:1000-2000"}
	if len(first) != len(want) {
		t.Fatalf("first = %v", first)
	}
	for k, v := range want {
		if first[k] != v {
			t.Fatalf("first[%s] = %q, want %q", k, first[k], v)
		}
	}
	if out[14]["year"] != "2023" {
		t.Fatalf("years should be the outer loop, got %v", out[14])
	}
}

func TestExpand_CurrentYear(t *testing.T) {
	p := Planner{Now: func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }}
	out, err := p.Expand(Intent{Name: "recent", FromYear: 2023, Prices: []Bucket{{0, 5000}, {5000, 0}}}, Dialect{YearFrom: "y", PriceFrom: "p", PriceTo: "p2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 4 {
		t.Fatalf("got %d maps", len(out))
	}
	if out[3]["y"] != "2024" || out[3].ID() != "recent:2024-2024:5000-inf" {
		t.Fatalf("last = %v", out[3])
	}
	if _, ok := out[0]["y2"]; ok {
		t.Fatal("empty dialect key should not be emitted")
	}
}

func TestExpand_ExtraParams(t *testing.T) {
	out, err := Expand(Intent{Name: "bmw", FromYear: 2020, ToYear: 2020, Prices: []Bucket{{1, 2}}, Extra: map[string]string{"marka": "BMW"}}, mobileDialect)
	if err != nil {
		t.Fatal(err)
	}
	if out[0]["marka"] != "BMW" || out[0]["act"] != "3" {
		t.Fatalf("got %v", out[0])
	}
}

func TestExpand_Invalid(t *testing.T) {
	cases := map[string]struct {
		intent  Intent
		dialect Dialect
	}{
		"no name":        {Intent{FromYear: 2020, ToYear: 2021}, mobileDialect},
		"reversed years": {Intent{Name: "x", FromYear: 2023, ToYear: 2020}, mobileDialect},
		"no from year":   {Intent{Name: "x", ToYear: 2020}, mobileDialect},
		"empty bucket":   {Intent{Name: "x", FromYear: 2020, ToYear: 2020, Prices: []Bucket{{5, 5}}}, mobileDialect},
		"overlap":        {Intent{Name: "x", FromYear: 2020, ToYear: 2020, Prices: []Bucket{{1, 10}, {5, 20}}}, mobileDialect},
		"open not last":  {Intent{Name: "x", FromYear: 2020, ToYear: 2020, Prices: []Bucket{{1, 0}, {5, 20}}}, mobileDialect},
		"bare dialect":   {Intent{Name: "x", FromYear: 2020, ToYear: 2020}, Dialect{}},
		"reserved key":   {Intent{Name: "x", FromYear: 2020, ToYear: 2020}, Dialect{YearFrom: "id", PriceFrom: "p"}},
		"reserved extra": {Intent{Name: "x", FromYear: 2020, ToYear: 2020, Extra: map[string]string{"id": "1"}}, mobileDialect},
	}
	for name, tc := range cases {
		if _, err := Expand(tc.intent, tc.dialect); !errors.Is(err, ErrInvalidIntent) {
			t.Errorf("%s: expected ErrInvalidIntent, got %v", name, err)
		}
	}
}

func TestStandardPriceBuckets(t *testing.T) {
	if len(StandardPriceBuckets) != 14 {
		t.Fatalf("got %d buckets", len(StandardPriceBuckets))
	}
	if err := validateBuckets(StandardPriceBuckets); err != nil {
		t.Fatal(err)
	}
	if !StandardPriceBuckets[13].Open() {
		t.Fatal("last bucket should be open-ended")
	}
}

func TestYearBuckets(t *testing.T) {
	p := Planner{}
	if got := p.YearBuckets(2019, 2021); len(got) != 3 || got[0] != 2019 || got[2] != 2021 {
		t.Fatalf("got %v", got)
	}
	if got := p.YearBuckets(2021, 2019); got != nil {
		t.Fatalf("reversed range should be empty, got %v", got)
	}
}
