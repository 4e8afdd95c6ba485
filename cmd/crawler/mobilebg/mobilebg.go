// Package mobilebg reads adverts from mobile.bg, a legacy windows-1251 site.
package mobilebg

import (
	_ "embed"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/WessleyAI/autocrawl/engine/equipment"
	"github.com/WessleyAI/autocrawl/engine/parse"
	"github.com/WessleyAI/autocrawl/engine/planner"
	"github.com/WessleyAI/autocrawl/engine/record"
	"github.com/WessleyAI/autocrawl/engine/source"
	"github.com/WessleyAI/autocrawl/pkg/resilience"
)

// Name is the source tag.
const Name = "mobile.bg"

const origin = "https://www.mobile.bg"

//go:embed equipment.yaml
var equipmentYAML []byte

var builtin = sync.OnceValue(func() *equipment.Catalog { return equipment.MustParse(equipmentYAML) })

// Catalog returns the built-in equipment catalog.
func Catalog() *equipment.Catalog { return builtin() }

// Config returns the site configuration. The search pages cap out at 150.
func Config() source.Config {
	return source.Config{
		Name:        Name,
		BaseURL:     origin + "/pcgi/mobile.cgi?",
		PageParam:   "f1",
		PageSize:    20,
		MaxPages:    150,
		Charset:     "windows-1251",
		ListingWait: resilience.Window{Min: 3 * time.Second, Max: 10 * time.Second},
		DetailWait:  resilience.Window{Min: 3 * time.Second, Max: 7 * time.Second},
	}
}

// Dialect maps intents to the search form fields. A "slink" session token,
// when needed, is passed through an intent's extra parameters.
func Dialect() planner.Dialect {
	return planner.Dialect{
		YearFrom:  "f10",
		YearTo:    "f11",
		PriceFrom: "f7",
		PriceTo:   "f8",
		Fixed:     map[string]string{"act": "3", "rub": "1", "pubtype": "1", "f9": "лв."},
	}
}

// Parser implements source.Parser for mobile.bg pages.
type Parser struct {
	eq *equipment.Catalog
}

// NewParser returns a parser encoding extras with eq, or with the built-in
// catalog when eq is nil.
func NewParser(eq *equipment.Catalog) *Parser {
	if eq == nil {
		eq = Catalog()
	}
	return &Parser{eq: eq}
}

var totalRe = regexp.MustCompile(`(\d[\d\s\x{00a0}]*)\s*обяв`)

// TotalNumber reads the result count from the meta description, e.g.
// "Намерени 1 234 обяви за BMW".
func (p *Parser) TotalNumber(html string) (int, error) {
	doc, err := document(html)
	if err != nil {
		return 0, err
	}
	desc, _ := doc.Find(`meta[name="description"]`).Attr("content")
	if m := totalRe.FindStringSubmatch(desc); m != nil {
		return int(parse.Uint(m[1])), nil
	}
	if strings.Contains(desc, "Няма намерени") {
		return 0, nil
	}
	return 0, fmt.Errorf("no result count in %q: %w", desc, source.ErrParse)
}

// ParseListing returns the advert links of a search page. Each card also
// carries year and mileage, which the links keep as hints for the detail
// page. A search that lands on a single advert yields that advert.
func (p *Parser) ParseListing(html string) source.Listing {
	doc, err := document(html)
	if err != nil {
		return source.Failed(err)
	}
	if link, ok := canonicalAdvert(doc); ok {
		return source.Single(link)
	}
	var links []source.LinkRef
	doc.Find("table.tablereset").Each(func(_ int, card *goquery.Selection) {
		if link, ok := parseCard(card); ok {
			links = append(links, link)
		}
	})
	return source.Values(links...)
}

// parseCard reads one result card. Promoted (TOP and VIP) cards keep
// "2016 г., 185 000 км" in a colspan=3 cell, regular cards in colspan=4.
func parseCard(card *goquery.Selection) (source.LinkRef, bool) {
	href, _ := card.Find("a.mmm").First().Attr("href")
	link, ok := advertLink(href)
	if !ok {
		return source.LinkRef{}, false
	}
	cell := `td[colspan="4"]`
	if promoted(card) {
		cell = `td[colspan="3"]`
	}
	if toks := parse.IntTokens(card.Find(cell).First().Text(), 2); len(toks) == 2 && plausibleYear(toks[0]) {
		link.Year, link.Mileage = uint16(toks[0]), toks[1]
	}
	return link, true
}

func promoted(card *goquery.Selection) bool {
	class, _ := card.Attr("class")
	for _, c := range strings.Fields(class) {
		if strings.EqualFold(c, "TOP") || strings.EqualFold(c, "VIP") {
			return true
		}
	}
	return false
}

func plausibleYear(y uint64) bool { return y >= 1900 && y <= 2100 }

// ParseDetail reads an advert page.
func (p *Parser) ParseDetail(link source.LinkRef, html string) (record.Record, error) {
	doc, err := document(html)
	if err != nil {
		return record.Record{}, err
	}
	if doc.Find("#details_price").Length() == 0 {
		return record.Record{}, fmt.Errorf("no advert on page: %w", source.ErrParse)
	}

	r := record.Record{ID: link.ID, URL: link.URL}
	if canon, ok := canonicalAdvert(doc); ok {
		r.ID, r.URL = canon.ID, canon.URL
	}
	r.Title = parse.Text(doc.Find("h1").First().Text())

	crumbs := doc.Find("div.crumbs a").Map(func(_ int, a *goquery.Selection) string { return parse.Text(a.Text()) })
	if len(crumbs) >= 3 {
		r.Make, r.Model = crumbs[1], crumbs[2]
	}
	r.Price, r.Currency = parse.Price(doc.Find("#details_price").First().Text())

	for label, value := range labelled(doc.Find("ul.dilarData li")) {
		switch label {
		case "дата на производство":
			r.Year, r.Month = parse.YearMonth(value)
		case "тип двигател":
			r.Engine, _ = record.ParseEngine(value)
		case "скоростна кутия":
			r.Gearbox, _ = record.ParseGearbox(value)
		case "мощност":
			r.Power = uint32(parse.Uint(value))
		case "пробег":
			r.Mileage = parse.Uint(value)
		case "кубатура":
			r.CC = uint32(parse.Uint(value))
		}
	}

	extras := doc.Find("div.carExtri div").Map(func(_ int, s *goquery.Selection) string {
		return strings.TrimSpace(strings.TrimLeft(parse.Text(s.Text()), "•·- "))
	})
	r.Equipment = p.eq.Encode(extras)

	r.Phone = parse.Text(doc.Find("div.phone").First().Text())
	r.Location = strings.TrimPrefix(parse.Text(doc.Find("div.adress").First().Text()), "Регион: ")
	if dealer := doc.Find("div.dealerBox"); dealer.Length() > 0 {
		r.Dealer = true
		r.SellerName = parse.Text(dealer.Find(".name").First().Text())
	} else {
		r.SellerName = parse.Text(doc.Find("div.privateBox .name").First().Text())
	}
	r.ViewCount = parse.Uint(doc.Find("span.advact").First().Text())
	r.Top = doc.Find("img.top, div.top").Length() > 0
	r.VIP = doc.Find("img.vip, div.vip").Length() > 0
	r.Sold = doc.Find("div.sold").Length() > 0
	r.CreatedOn = parse.Date(doc.Find("div.pubdate").First().Text())
	r.UpdatedOn = parse.Date(doc.Find("div.editdate").First().Text())
	return r, nil
}

func document(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("html: %w: %w", source.ErrParse, err)
	}
	return doc, nil
}

// labelled pairs alternating label/value items, keyed by the lower-cased
// label.
func labelled(items *goquery.Selection) map[string]string {
	out := make(map[string]string)
	texts := items.Map(func(_ int, s *goquery.Selection) string { return parse.Text(s.Text()) })
	for i := 0; i+1 < len(texts); i += 2 {
		out[strings.ToLower(strings.TrimSuffix(texts[i], ":"))] = texts[i+1]
	}
	return out
}

func canonicalAdvert(doc *goquery.Document) (source.LinkRef, bool) {
	href, ok := doc.Find(`link[rel="canonical"]`).Attr("href")
	if !ok {
		return source.LinkRef{}, false
	}
	return advertLink(href)
}

// advertLink turns any advert href ("//www.mobile.bg/pcgi/mobile.cgi?act=4&
// adv=...&slink=...") into a session-free absolute link.
func advertLink(href string) (source.LinkRef, bool) {
	href = strings.TrimSpace(href)
	switch {
	case strings.HasPrefix(href, "//"):
		href = "https:" + href
	case strings.HasPrefix(href, "/"):
		href = origin + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return source.LinkRef{}, false
	}
	q := u.Query()
	adv := q.Get("adv")
	if adv == "" || q.Get("act") != "4" {
		return source.LinkRef{}, false
	}
	return source.LinkRef{ID: adv, URL: origin + "/pcgi/mobile.cgi?act=4&adv=" + url.QueryEscape(adv)}, true
}
