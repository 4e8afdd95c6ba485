package source

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/WessleyAI/autocrawl/engine/record"
)

type fakeFetcher struct {
	pages   map[string]string
	charset []string
}

func (f *fakeFetcher) Get(_ context.Context, rawURL, charset string) (string, error) {
	f.charset = append(f.charset, charset)
	body, ok := f.pages[rawURL]
	if !ok {
		return "", errors.New("not found: " + rawURL)
	}
	return body, nil
}

type fakeParser struct {
	total   int
	listing Listing
	detail  record.Record
	err     error
}

func (p fakeParser) TotalNumber(string) (int, error) { return p.total, p.err }
func (p fakeParser) ParseListing(string) Listing     { return p.listing }
func (p fakeParser) ParseDetail(LinkRef, string) (record.Record, error) {
	return p.detail, p.err
}

func newAdapter(t *testing.T, cfg Config, p Parser, f Fetcher) *Adapter {
	t.Helper()
	a, err := New(cfg, p, f)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func testConfig() Config {
	return Config{Name: "x.test", BaseURL: "https://x.test/?", PageParam: "pg", PageSize: 20}
}

func TestSearchURL_Example(t *testing.T) {
	a := newAdapter(t, testConfig(), fakeParser{}, &fakeFetcher{})
	params := map[string]string{"a": "1", "b": "2"}

	got := a.SearchURL(params, 3)
	if got != "https://x.test/?a=1&b=2&pg=3" && got != "https://x.test/?b=2&a=1&pg=3" {
		t.Fatalf("SearchURL = %q", got)
	}
	got = a.SearchURL(params, 0)
	if got != "https://x.test/?a=1&b=2" && got != "https://x.test/?b=2&a=1" {
		t.Fatalf("page 0 should drop the trailing &, got %q", got)
	}
}

func TestSearchURL_EveryPairOnce(t *testing.T) {
	params := map[string]string{
		"marka":   "BMW",
		"price":   "5000",
		"price1":  "7000",
		"year":    "2019",
		"id":      "bmw:2019-2019:5000-7000",
		"topmenu": "1",
	}
	for _, page := range []int{0, 1, 7, 150} {
		u := testConfig().SearchURL(params, page)
		query := strings.TrimPrefix(u, "https://x.test/?")
		pairs := strings.Split(query, "&")
		count := map[string]int{}
		for _, p := range pairs {
			count[p]++
		}
		for k, v := range params {
			if k == SearchIDKey {
				if strings.Contains(u, "id=") {
					t.Fatalf("id key leaked into %q", u)
				}
				continue
			}
			if count[k+"="+v] != 1 {
				t.Fatalf("page %d: %s=%s appears %d times in %q", page, k, v, count[k+"="+v], u)
			}
		}
		hasPage := strings.HasSuffix(u, "&pg="+strconv.Itoa(page))
		if hasPage != (page != 0) {
			t.Fatalf("page %d: page suffix = %v in %q", page, hasPage, u)
		}
		if strings.HasSuffix(u, "&") {
			t.Fatalf("trailing & in %q", u)
		}
	}
}

func TestSearchURL_BracketExpansion(t *testing.T) {
	got := testConfig().SearchURL(map[string]string{"fuel": "[1, 2,3]"}, 0)
	if got != "https://x.test/?fuel=1&fuel=2&fuel=3" {
		t.Fatalf("got %q", got)
	}
}

func TestSearchURL_Escaping(t *testing.T) {
	got := testConfig().SearchURL(map[string]string{"marka": "Land Rover"}, 2)
	if got != "https://x.test/?marka=Land+Rover&pg=2" {
		t.Fatalf("got %q", got)
	}
}

func TestSearchURL_Charset(t *testing.T) {
	params := map[string]string{"f9": "лв.", "a": "x y"}
	tests := []struct {
		charset string
		want    string
	}{
		{"", "https://x.test/?a=x+y&f9=%D0%BB%D0%B2.&pg=2"},
		{"utf-8", "https://x.test/?a=x+y&f9=%D0%BB%D0%B2.&pg=2"},
		{"windows-1251", "https://x.test/?a=x+y&f9=%EB%E2.&pg=2"},
		{"windows-1252", "https://x.test/?a=x+y&f9=%D0%BB%D0%B2.&pg=2"},
	}
	for _, tt := range tests {
		cfg := testConfig()
		cfg.Charset = tt.charset
		if got := cfg.SearchURL(params, 2); got != tt.want {
			t.Errorf("charset %q:\n got %q\nwant %q", tt.charset, got, tt.want)
		}
	}
}

func TestNumberOfPages(t *testing.T) {
	for _, size := range []int{20, 25} {
		cfg := testConfig()
		cfg.PageSize = size
		a := newAdapter(t, cfg, fakeParser{}, &fakeFetcher{})
		for total := 0; total <= 1000; total++ {
			want := (total + size - 1) / size
			if got := a.NumberOfPages(total); got != want {
				t.Fatalf("size %d total %d: got %d want %d", size, total, got, want)
			}
		}
	}

	cfg := testConfig()
	cfg.MaxPages = 150
	a := newAdapter(t, cfg, fakeParser{}, &fakeFetcher{})
	if got := a.NumberOfPages(47); got != 3 {
		t.Fatalf("47 adverts at 20 per page = %d pages", got)
	}
	if got := a.NumberOfPages(1_000_000); got != 150 {
		t.Fatalf("cap not applied, got %d", got)
	}
	if got := a.NumberOfPages(-3); got != 0 {
		t.Fatalf("negative total, got %d", got)
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	bad := []func(*Config){
		func(c *Config) { c.Name = "" },
		func(c *Config) { c.BaseURL = "" },
		func(c *Config) { c.PageParam = "" },
		func(c *Config) { c.PageSize = 0 },
		func(c *Config) { c.MaxPages = -1 },
		func(c *Config) { c.Charset = "koi9" },
	}
	for i, mutate := range bad {
		cfg := testConfig()
		mutate(&cfg)
		if _, err := New(cfg, fakeParser{}, &fakeFetcher{}); !errors.Is(err, ErrConfig) {
			t.Errorf("case %d: expected ErrConfig, got %v", i, err)
		}
	}
	if _, err := New(testConfig(), nil, &fakeFetcher{}); !errors.Is(err, ErrConfig) {
		t.Error("nil parser should be rejected")
	}
}

func TestListedIDs_CanonicalAndDeduped(t *testing.T) {
	cfg := testConfig()
	cfg.Charset = "windows-1251"
	f := &fakeFetcher{pages: map[string]string{"https://x.test/?q=1&pg=2": "<html/>"}}
	p := fakeParser{listing: Values(
		LinkRef{ID: "11", URL: "https://x.test/a/11"},
		LinkRef{ID: "x.test-11", URL: "https://x.test/a/11?dup"},
		LinkRef{ID: "", URL: "https://x.test/a/none"},
		LinkRef{ID: "12", URL: " "},
		LinkRef{ID: "13", URL: "https://x.test/a/13"},
	)}
	a := newAdapter(t, cfg, p, f)

	l := a.ListedIDs(context.Background(), map[string]string{"q": "1"}, 2)
	if l.Kind != KindValues {
		t.Fatalf("kind = %v, err = %v", l.Kind, l.Err)
	}
	if len(l.Links) != 2 || l.Links[0].ID != "x.test-11" || l.Links[1].ID != "x.test-13" {
		t.Fatalf("links = %+v", l.Links)
	}
	if len(f.charset) != 1 || f.charset[0] != "windows-1251" {
		t.Fatalf("charset not passed: %v", f.charset)
	}
}

func TestListedIDs_FetchFailure(t *testing.T) {
	a := newAdapter(t, testConfig(), fakeParser{}, &fakeFetcher{})
	l := a.ListedIDs(context.Background(), map[string]string{"q": "1"}, 1)
	if l.Kind != KindError || l.Err == nil || l.Refs() != nil {
		t.Fatalf("expected error listing, got %+v", l)
	}
}

func TestParseListing_Single(t *testing.T) {
	a := newAdapter(t, testConfig(), fakeParser{listing: Single(LinkRef{ID: "77", URL: "https://x.test/a/77"})}, &fakeFetcher{})
	l := a.ParseListing("")
	if l.Kind != KindSingle || l.Link.ID != "x.test-77" {
		t.Fatalf("got %+v", l)
	}
	if refs := l.Refs(); len(refs) != 1 || refs[0] != l.Link {
		t.Fatalf("Refs = %+v", refs)
	}

	a = newAdapter(t, testConfig(), fakeParser{listing: Single(LinkRef{URL: "https://x.test/a/77"})}, &fakeFetcher{})
	if l := a.ParseListing(""); l.Kind != KindError || !errors.Is(l.Err, ErrParse) {
		t.Fatalf("single without id should fail, got %+v", l)
	}
}

func TestTotalNumber(t *testing.T) {
	a := newAdapter(t, testConfig(), fakeParser{total: -1}, &fakeFetcher{})
	if _, err := a.TotalNumber(""); !errors.Is(err, ErrParse) {
		t.Fatalf("negative total should be a parse error, got %v", err)
	}
	a = newAdapter(t, testConfig(), fakeParser{total: 47}, &fakeFetcher{})
	if n, err := a.TotalNumber(""); err != nil || n != 47 {
		t.Fatalf("got %d, %v", n, err)
	}
}

func TestHandleRequest_StampsIdentity(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{"https://x.test/a/5": "<html/>"}}
	a := newAdapter(t, testConfig(), fakeParser{detail: record.Record{Make: "Audi", Price: 100}}, f)

	r, err := a.HandleRequest(context.Background(), LinkRef{ID: "x.test-5", URL: "https://x.test/a/5"})
	if err != nil {
		t.Fatal(err)
	}
	if r.ID != "x.test-5" || r.Source != "x.test" || r.URL != "https://x.test/a/5" || r.Make != "Audi" {
		t.Fatalf("record = %+v", r)
	}
}

func TestHandleRequest_CardHints(t *testing.T) {
	tests := []struct {
		name        string
		detail      record.Record
		wantYear    uint16
		wantMileage uint64
	}{
		{"detail missing both", record.Record{}, 2016, 185000},
		{"detail wins", record.Record{Year: 2017, Mileage: 90000}, 2017, 90000},
		{"detail missing mileage", record.Record{Year: 2017}, 2017, 185000},
	}
	f := &fakeFetcher{pages: map[string]string{"https://x.test/a/5": "<html/>"}}
	for _, tt := range tests {
		a := newAdapter(t, testConfig(), fakeParser{detail: tt.detail}, f)
		link := LinkRef{ID: "x.test-5", URL: "https://x.test/a/5", Year: 2016, Mileage: 185000}
		r, err := a.HandleRequest(context.Background(), link)
		if err != nil {
			t.Fatal(err)
		}
		if r.Year != tt.wantYear || r.Mileage != tt.wantMileage {
			t.Errorf("%s: year/mileage = %d/%d, want %d/%d", tt.name, r.Year, r.Mileage, tt.wantYear, tt.wantMileage)
		}
	}
}

func TestHandleRequest_Errors(t *testing.T) {
	a := newAdapter(t, testConfig(), fakeParser{}, &fakeFetcher{})
	if _, err := a.HandleRequest(context.Background(), LinkRef{ID: "x.test-5", URL: "https://x.test/a/5"}); err == nil {
		t.Fatal("fetch failure should surface")
	}

	f := &fakeFetcher{pages: map[string]string{"https://x.test/a/5": "<html/>"}}
	a = newAdapter(t, testConfig(), fakeParser{err: ErrParse}, f)
	_, err := a.HandleRequest(context.Background(), LinkRef{ID: "x.test-5", URL: "https://x.test/a/5"})
	if !errors.Is(err, ErrParse) || !strings.Contains(err.Error(), "x.test-5") {
		t.Fatalf("parse failure should wrap ErrParse and name the advert, got %v", err)
	}
}

func TestHandleRequest_FillsFromTitle(t *testing.T) {
	tests := []struct {
		name      string
		in        record.Record
		wantMake  string
		wantModel string
	}{
		{"both missing", record.Record{Title: "VW Golf 7 1.6 TDI"}, "Volkswagen", "Golf"},
		{"model missing", record.Record{Make: "Volkswagen", Title: "VW Passat Variant"}, "Volkswagen", "Passat Variant"},
		{"page make wins", record.Record{Make: "Seat", Title: "VW Golf"}, "Seat", ""},
		{"complete", record.Record{Make: "BMW", Model: "320", Title: "Audi A4"}, "BMW", "320"},
		{"unknown make", record.Record{Title: "Продавам кола"}, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFetcher{pages: map[string]string{"https://x.test/a/5": "<html/>"}}
			a := newAdapter(t, testConfig(), fakeParser{detail: tt.in}, f)
			r, err := a.HandleRequest(context.Background(), LinkRef{ID: "5", URL: "https://x.test/a/5"})
			if err != nil {
				t.Fatal(err)
			}
			if r.Make != tt.wantMake || r.Model != tt.wantModel {
				t.Errorf("got %q/%q, want %q/%q", r.Make, r.Model, tt.wantMake, tt.wantModel)
			}
		})
	}
}
