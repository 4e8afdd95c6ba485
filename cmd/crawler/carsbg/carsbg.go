// Package carsbg reads adverts from cars.bg.
package carsbg

import (
	_ "embed"
	"fmt"
	"net/url"
	"path"
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
const Name = "cars.bg"

const origin = "https://www.cars.bg"

//go:embed equipment.yaml
var equipmentYAML []byte

var builtin = sync.OnceValue(func() *equipment.Catalog { return equipment.MustParse(equipmentYAML) })

// Catalog returns the built-in equipment catalog.
func Catalog() *equipment.Catalog { return builtin() }

// Config returns the site configuration.
func Config() source.Config {
	return source.Config{
		Name:        Name,
		BaseURL:     origin + "/carslist.php?",
		PageParam:   "page",
		PageSize:    20,
		ListingWait: resilience.Window{Min: 3 * time.Second, Max: 10 * time.Second},
		DetailWait:  resilience.Window{Min: 3 * time.Second, Max: 7 * time.Second},
	}
}

// Dialect maps intents to the carslist.php filters.
func Dialect() planner.Dialect {
	return planner.Dialect{
		YearFrom:  "yearFrom",
		YearTo:    "yearTo",
		PriceFrom: "priceFrom",
		PriceTo:   "priceTo",
		Fixed:     map[string]string{"subm": "1", "add_search": "1", "typeoffer": "1", "currencyId": "1"},
	}
}

// Parser implements source.Parser for cars.bg pages.
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

// TotalNumber reads the counter above the result list.
func (p *Parser) TotalNumber(html string) (int, error) {
	doc, err := document(html)
	if err != nil {
		return 0, err
	}
	counter := doc.Find("span.milestoneNumberTotal").First()
	if counter.Length() == 0 {
		if doc.Find("div.no-results").Length() > 0 {
			return 0, nil
		}
		return 0, fmt.Errorf("no result counter: %w", source.ErrParse)
	}
	return int(parse.Uint(counter.Text())), nil
}

// ParseListing returns the offer links of a result page. An offer page
// reached from a search yields that offer.
func (p *Parser) ParseListing(html string) source.Listing {
	doc, err := document(html)
	if err != nil {
		return source.Failed(err)
	}
	if doc.Find(".offer-params").Length() > 0 {
		href, _ := doc.Find(`link[rel="canonical"]`).Attr("href")
		link, ok := offerLink(href)
		if !ok {
			return source.Failed(fmt.Errorf("offer page without canonical link: %w", source.ErrParse))
		}
		return source.Single(link)
	}
	var links []source.LinkRef
	doc.Find("div.mdc-card[data-offer-id]").Each(func(_ int, card *goquery.Selection) {
		href, _ := card.Find("a[href]").First().Attr("href")
		if link, ok := offerLink(href); ok {
			links = append(links, link)
		}
	})
	return source.Values(links...)
}

// ParseDetail reads an offer page. Parameters come from the ".offer-params"
// definition list.
func (p *Parser) ParseDetail(link source.LinkRef, html string) (record.Record, error) {
	doc, err := document(html)
	if err != nil {
		return record.Record{}, err
	}
	params := doc.Find(".offer-params").First()
	if params.Length() == 0 {
		return record.Record{}, fmt.Errorf("no offer on page: %w", source.ErrParse)
	}

	r := record.Record{ID: link.ID, URL: link.URL}
	r.Title = parse.Text(doc.Find("h1").First().Text())
	r.Price, r.Currency = parse.Price(doc.Find(".offer-price").First().Text())

	params.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		value := parse.Text(dt.NextFiltered("dd").Text())
		switch strings.ToLower(strings.TrimSuffix(parse.Text(dt.Text()), ":")) {
		case "марка":
			r.Make = value
		case "модел":
			r.Model = value
		case "година":
			r.Year, r.Month = parse.YearMonth(value)
		case "пробег":
			r.Mileage = parse.Uint(value)
		case "гориво":
			r.Engine, _ = record.ParseEngine(value)
		case "скоростна кутия":
			r.Gearbox, _ = record.ParseGearbox(value)
		case "мощност":
			r.Power = uint32(parse.Uint(value))
		case "кубатура":
			r.CC = uint32(parse.Uint(value))
		}
	})

	extras := doc.Find("ul.extras li").Map(func(_ int, s *goquery.Selection) string { return parse.Text(s.Text()) })
	r.Equipment = p.eq.Encode(extras)

	if tel, ok := doc.Find(`a[href^="tel:"]`).First().Attr("href"); ok {
		r.Phone = strings.TrimPrefix(tel, "tel:")
	}
	r.Location = parse.Text(doc.Find(".offer-location").First().Text())
	if dealer := doc.Find(".dealer-block"); dealer.Length() > 0 {
		r.Dealer = true
		r.SellerName = parse.Text(dealer.Find(".name").First().Text())
	} else {
		r.SellerName = parse.Text(doc.Find(".private-seller .name").First().Text())
	}
	r.ViewCount = parse.Uint(doc.Find(".offer-views").First().Text())
	r.VIP = doc.Find(".badge-vip").Length() > 0
	r.Top = doc.Find(".badge-top").Length() > 0
	r.Sold = doc.Find(".badge-sold").Length() > 0
	r.CreatedOn = parse.Date(doc.Find(".offer-date").First().Text())
	if t, ok := doc.Find("time[datetime].updated").Attr("datetime"); ok {
		r.UpdatedOn = parse.Date(t)
	}
	return r, nil
}

func document(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("html: %w: %w", source.ErrParse, err)
	}
	return doc, nil
}

// offerLink accepts "/offer/<id>" hrefs, relative or absolute.
func offerLink(href string) (source.LinkRef, bool) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil || !strings.HasPrefix(u.Path, "/offer/") {
		return source.LinkRef{}, false
	}
	id := path.Base(u.Path)
	if id == "" || id == "offer" {
		return source.LinkRef{}, false
	}
	return source.LinkRef{ID: id, URL: origin + "/offer/" + id}, true
}
