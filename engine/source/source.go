// Package source defines the contract between the pipeline engine and a
// listing site. A site contributes a Config and a Parser; Adapter supplies the
// shared orchestration (URL construction, fetching, paging, identity).
package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/WessleyAI/autocrawl/engine/record"
	"github.com/WessleyAI/autocrawl/pkg/fn"
	"github.com/WessleyAI/autocrawl/pkg/resilience"
	"github.com/WessleyAI/autocrawl/pkg/vehiclenlp"
)

// SearchIDKey is the planner's synthetic search identifier. It is never
// forwarded to a source URL.
const SearchIDKey = "id"

// ErrParse marks a page whose structure could not be read.
var ErrParse = errors.New("parse")

// ErrConfig is returned by New for an unusable Config.
var ErrConfig = errors.New("invalid source config")

// Config describes how to talk to one site.
type Config struct {
	Name      string // source tag, e.g. "mobile.bg"
	BaseURL   string // listing URL up to and including "?"
	PageParam string
	PageSize  int
	MaxPages  int    // 0 means no cap
	Charset   string // "" means UTF-8

	ListingWait resilience.Window
	DetailWait  resilience.Window
}

// LinkRef points at one advert. Identity is by ID.
type LinkRef struct {
	ID  string
	URL string

	// Year and Mileage are read off the listing card when the site shows
	// them there. The detail page wins; these only fill its gaps.
	Year    uint16
	Mileage uint64
}

// Fetcher retrieves a page as UTF-8 text.
type Fetcher interface {
	Get(ctx context.Context, rawURL, charset string) (string, error)
}

// Parser holds the site-specific page readers.
type Parser interface {
	// TotalNumber extracts the advertised result count from a listing page.
	TotalNumber(html string) (int, error)
	// ParseListing extracts the advert links of a listing page.
	ParseListing(html string) Listing
	// ParseDetail reads one advert page into a record. Identity, source and
	// URL are stamped by the Adapter afterwards.
	ParseDetail(link LinkRef, html string) (record.Record, error)
}

// Adapter binds a Config and Parser to a Fetcher.
type Adapter struct {
	cfg    Config
	parser Parser
	fetch  Fetcher
}

// New validates cfg and builds an Adapter.
func New(cfg Config, p Parser, f Fetcher) (*Adapter, error) {
	switch {
	case strings.TrimSpace(cfg.Name) == "":
		return nil, fmt.Errorf("%w: empty name", ErrConfig)
	case cfg.BaseURL == "":
		return nil, fmt.Errorf("%w: %s: empty base url", ErrConfig, cfg.Name)
	case cfg.PageParam == "":
		return nil, fmt.Errorf("%w: %s: empty page parameter", ErrConfig, cfg.Name)
	case cfg.PageSize <= 0:
		return nil, fmt.Errorf("%w: %s: page size %d", ErrConfig, cfg.Name, cfg.PageSize)
	case cfg.MaxPages < 0:
		return nil, fmt.Errorf("%w: %s: max pages %d", ErrConfig, cfg.Name, cfg.MaxPages)
	case cfg.Charset != "" && !knownCharset(cfg.Charset):
		return nil, fmt.Errorf("%w: %s: unknown charset %q", ErrConfig, cfg.Name, cfg.Charset)
	case p == nil || f == nil:
		return nil, fmt.Errorf("%w: %s: parser and fetcher are required", ErrConfig, cfg.Name)
	}
	return &Adapter{cfg: cfg, parser: p, fetch: f}, nil
}

func knownCharset(name string) bool {
	_, err := htmlindex.Get(name)
	return err == nil
}

// Name returns the source tag.
func (a *Adapter) Name() string { return a.cfg.Name }

// Config returns the adapter configuration.
func (a *Adapter) Config() Config { return a.cfg }

// SearchURL builds the listing URL for params and page.
func (a *Adapter) SearchURL(params map[string]string, page int) string {
	return a.cfg.SearchURL(params, page)
}

// SearchURL builds the listing URL for params and page. Every pair is
// appended as key=value&; a bracketed value "[a,b,c]" expands to one pair per
// element. Page 0 drops the trailing "&", any other page appends
// PageParam=page. Keys are emitted in sorted order and the "id" key is
// skipped. Values are escaped in the site charset, so a windows-1251 site
// receives "лв." as %EB%E2.
func (c Config) SearchURL(params map[string]string, page int) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == SearchIDKey {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	escape := queryEscaper(c.Charset)
	var b strings.Builder
	b.WriteString(c.BaseURL)
	for _, k := range keys {
		for _, v := range expand(params[k]) {
			b.WriteString(escape(k))
			b.WriteByte('=')
			b.WriteString(escape(v))
			b.WriteByte('&')
		}
	}
	if page == 0 {
		return strings.TrimSuffix(b.String(), "&")
	}
	b.WriteString(escape(c.PageParam))
	b.WriteByte('=')
	b.WriteString(strconv.Itoa(page))
	return b.String()
}

// queryEscaper returns url.QueryEscape applied to the charset's bytes.
// Text the charset cannot represent is escaped as UTF-8.
func queryEscaper(charset string) func(string) string {
	if charset == "" {
		return url.QueryEscape
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return url.QueryEscape
	}
	return func(s string) string {
		encoded, err := enc.NewEncoder().String(s)
		if err != nil {
			return url.QueryEscape(s)
		}
		return url.QueryEscape(encoded)
	}
}

func expand(v string) []string {
	if len(v) < 2 || v[0] != '[' || v[len(v)-1] != ']' {
		return []string{v}
	}
	parts := strings.Split(v[1:len(v)-1], ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// GetHTML fetches the listing page for params with the adapter charset.
func (a *Adapter) GetHTML(ctx context.Context, params map[string]string, page int) (string, error) {
	return a.fetch.Get(ctx, a.SearchURL(params, page), a.cfg.Charset)
}

// TotalNumber extracts the advertised result count. Negative counts are
// reported as parse errors.
func (a *Adapter) TotalNumber(html string) (int, error) {
	n, err := a.parser.TotalNumber(html)
	if err != nil {
		return 0, fmt.Errorf("%s: total: %w", a.cfg.Name, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s: total %d: %w", a.cfg.Name, n, ErrParse)
	}
	return n, nil
}

// NumberOfPages is ceil(total/PageSize), capped at MaxPages when set.
func (a *Adapter) NumberOfPages(total int) int {
	if total <= 0 {
		return 0
	}
	n := (total + a.cfg.PageSize - 1) / a.cfg.PageSize
	if a.cfg.MaxPages > 0 && n > a.cfg.MaxPages {
		n = a.cfg.MaxPages
	}
	return n
}

// ListedIDs fetches one listing page and extracts its links.
func (a *Adapter) ListedIDs(ctx context.Context, params map[string]string, page int) Listing {
	html, err := a.GetHTML(ctx, params, page)
	if err != nil {
		return Failed(err)
	}
	return a.ParseListing(html)
}

// ParseListing extracts the links of an already fetched listing page and
// puts their IDs in canonical form.
func (a *Adapter) ParseListing(html string) Listing {
	l := a.parser.ParseListing(html)
	switch l.Kind {
	case KindValues:
		links := fn.FilterMap(l.Links, a.canonical)
		l.Links = fn.UniqueBy(links, func(r LinkRef) string { return r.ID })
	case KindSingle:
		link, ok := a.canonical(l.Link)
		if !ok {
			return Failed(fmt.Errorf("%s: advert page without id: %w", a.cfg.Name, ErrParse))
		}
		l.Link = link
	}
	return l
}

func (a *Adapter) canonical(l LinkRef) (LinkRef, bool) {
	l.ID = record.CanonicalID(a.cfg.Name, l.ID)
	l.URL = strings.TrimSpace(l.URL)
	return l, l.ID != "" && l.URL != ""
}

// HandleRequest fetches and parses one advert. The returned record carries
// the canonical ID, the source tag and the advert URL; it is not validated.
func (a *Adapter) HandleRequest(ctx context.Context, link LinkRef) (record.Record, error) {
	detail := fn.Traced("source.detail",
		fn.Then(a.fetchDetail, a.parseDetail(link)),
		attribute.String("source", a.cfg.Name),
		attribute.String("advert.id", link.ID),
	)
	return detail(ctx, link).Unwrap()
}

func (a *Adapter) fetchDetail(ctx context.Context, link LinkRef) fn.Result[string] {
	return fn.FromPair(a.fetch.Get(ctx, link.URL, a.cfg.Charset))
}

func (a *Adapter) parseDetail(link LinkRef) fn.Stage[string, record.Record] {
	return func(_ context.Context, html string) fn.Result[record.Record] {
		r, err := a.parser.ParseDetail(link, html)
		if err != nil {
			return fn.Err[record.Record](fmt.Errorf("%s: detail %s: %w", a.cfg.Name, link.ID, err))
		}
		if r.ID == "" {
			r.ID = link.ID
		}
		r.ID = record.CanonicalID(a.cfg.Name, r.ID)
		r.Source = a.cfg.Name
		if r.URL == "" {
			r.URL = link.URL
		}
		if r.Year == 0 {
			r.Year = link.Year
		}
		if r.Mileage == 0 {
			r.Mileage = link.Mileage
		}
		fillFromTitle(&r)
		return fn.Ok(r)
	}
}

// fillFromTitle completes an empty make or model from the advert title. A
// make read from the page always wins; the title model is only taken when
// the title names the same make.
func fillFromTitle(r *record.Record) {
	if (r.Make != "" && r.Model != "") || r.Title == "" {
		return
	}
	m, ok := vehiclenlp.FromTitle(r.Title)
	if !ok {
		return
	}
	if r.Make == "" {
		r.Make = m.Make
	}
	if r.Model == "" && m.Model != "" && strings.EqualFold(r.Make, m.Make) {
		r.Model = m.Model
	}
}
