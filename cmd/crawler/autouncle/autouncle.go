// Package autouncle reads adverts from autouncle.ro. Both page kinds carry
// their data as JSON: search pages in the __AU_STATE__ blob, offer pages in
// schema.org Car JSON-LD plus the same blob for the fields JSON-LD lacks.
package autouncle

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
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
const Name = "autouncle.ro"

const origin = "https://www.autouncle.ro"

//go:embed equipment.yaml
var equipmentYAML []byte

var builtin = sync.OnceValue(func() *equipment.Catalog { return equipment.MustParse(equipmentYAML) })

// Catalog returns the built-in equipment catalog.
func Catalog() *equipment.Catalog { return builtin() }

// Config returns the site configuration. The site tolerates faster paging
// than the Bulgarian sources and never serves more than 100 pages.
func Config() source.Config {
	return source.Config{
		Name:        Name,
		BaseURL:     origin + "/ro/masini-second-hand?",
		PageParam:   "page",
		PageSize:    25,
		MaxPages:    100,
		ListingWait: resilience.Window{Min: time.Second, Max: 3 * time.Second},
		DetailWait:  resilience.Window{Min: time.Second, Max: 2 * time.Second},
	}
}

// Dialect maps intents to the s[...] search filters, priced in EUR.
func Dialect() planner.Dialect {
	return planner.Dialect{
		YearFrom:  "s[min_year]",
		YearTo:    "s[max_year]",
		PriceFrom: "s[min_price]",
		PriceTo:   "s[max_price]",
		Fixed:     map[string]string{"s[currency]": "EUR"},
	}
}

// Parser implements source.Parser for autouncle.ro pages.
type Parser struct {
	eq *equipment.Catalog
}

// NewParser returns a parser encoding equipment with eq, or with the
// built-in catalog when eq is nil.
func NewParser(eq *equipment.Catalog) *Parser {
	if eq == nil {
		eq = Catalog()
	}
	return &Parser{eq: eq}
}

type searchState struct {
	TotalCount *int `json:"total_count"`
	Cars       []struct {
		ID  flexID `json:"id"`
		URL string `json:"url"`
	} `json:"cars"`
	Car *carState `json:"car"`
}

type carState struct {
	ID                  flexID   `json:"id"`
	URL                 string   `json:"url"`
	CO2                 uint32   `json:"co2"`
	ConsumptionCombined float64  `json:"consumption_combined"`
	Equipment           []string `json:"equipment"`
	Dealer              bool     `json:"is_dealer"`
	SellerName          string   `json:"seller_name"`
	Location            string   `json:"location"`
	Phone               string   `json:"phone"`
	Views               uint64   `json:"views"`
	Promoted            bool     `json:"promoted"`
	Sold                bool     `json:"sold"`
	CreatedAt           string   `json:"created_at"`
	UpdatedAt           string   `json:"updated_at"`
	FirstRegistration   string   `json:"first_registration"`
}

// TotalNumber reads total_count from the state blob.
func (p *Parser) TotalNumber(html string) (int, error) {
	st, err := state(html)
	if err != nil {
		return 0, err
	}
	if st.TotalCount == nil {
		return 0, fmt.Errorf("no total_count in state: %w", source.ErrParse)
	}
	return *st.TotalCount, nil
}

// ParseListing returns the cars of the state blob. A page whose state holds
// a single car yields that car.
func (p *Parser) ParseListing(html string) source.Listing {
	st, err := state(html)
	if err != nil {
		return source.Failed(err)
	}
	if st.Car != nil {
		link, ok := carLink(string(st.Car.ID), st.Car.URL)
		if !ok {
			return source.Failed(fmt.Errorf("offer state without id: %w", source.ErrParse))
		}
		return source.Single(link)
	}
	links := make([]source.LinkRef, 0, len(st.Cars))
	for _, c := range st.Cars {
		if link, ok := carLink(string(c.ID), c.URL); ok {
			links = append(links, link)
		}
	}
	return source.Values(links...)
}

// ParseDetail reads an offer page.
func (p *Parser) ParseDetail(link source.LinkRef, html string) (record.Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return record.Record{}, fmt.Errorf("html: %w: %w", source.ErrParse, err)
	}
	car, err := findCar(doc)
	if err != nil {
		return record.Record{}, err
	}

	r := record.Record{ID: link.ID, URL: link.URL}
	r.Title = parse.Text(car.Name)
	r.Make = parse.Text(car.Brand.Name)
	r.Model = parse.Text(car.Model)
	r.Price = uint64(car.Offers.Price)
	if c, ok := record.ParseCurrency(car.Offers.PriceCurrency); ok {
		r.Currency = c
	} else {
		r.Currency = record.EUR
	}
	r.Year, r.Month = parse.YearMonth(car.VehicleModelDate)
	r.Mileage = uint64(car.MileageFromOdometer.Value)
	r.Engine, _ = record.ParseEngine(car.FuelType)
	r.Gearbox, _ = record.ParseGearbox(car.VehicleTransmission)
	r.CC = uint32(car.VehicleEngine.EngineDisplacement.Value)
	switch pw := car.VehicleEngine.EnginePower; strings.ToUpper(pw.UnitCode) {
	case "KWT":
		r.PowerKW = uint32(pw.Value)
		r.Power = uint32(float64(pw.Value)*1.35962 + 0.5)
	case "BHP", "HP", "":
		r.Power = uint32(pw.Value)
	}

	if st, err := stateOf(doc); err == nil && st.Car != nil {
		c := st.Car
		r.CO2 = c.CO2
		r.ConsumptionCombined = c.ConsumptionCombined
		r.Equipment = p.eq.Encode(c.Equipment)
		r.Dealer = c.Dealer
		r.SellerName = parse.Text(c.SellerName)
		r.Location = parse.Text(c.Location)
		r.Phone = parse.Text(c.Phone)
		r.ViewCount = c.Views
		r.Top = c.Promoted
		r.Sold = c.Sold
		r.CreatedOn = parse.Date(c.CreatedAt)
		r.UpdatedOn = parse.Date(c.UpdatedAt)
		if r.Month == 0 && c.FirstRegistration != "" {
			if y, m := parse.YearMonth(c.FirstRegistration); y == r.Year || r.Year == 0 {
				r.Year, r.Month = y, m
			}
		}
	}
	return r, nil
}

// flexID accepts ids serialized as numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		*f = ""
		return nil
	}
	*f = flexID(strings.Trim(s, `"`))
	return nil
}

// number accepts JSON numbers and numeric strings ("8500", "8 500").
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, " ", ""), 64)
	if err != nil {
		return fmt.Errorf("number %q: %w", s, err)
	}
	*n = number(v)
	return nil
}

type quantity struct {
	Value    number `json:"value"`
	UnitCode string `json:"unitCode"`
}

type ldCar struct {
	Type  any    `json:"@type"`
	Name  string `json:"name"`
	Brand struct {
		Name string `json:"name"`
	} `json:"brand"`
	Model               string   `json:"model"`
	VehicleModelDate    string   `json:"vehicleModelDate"`
	MileageFromOdometer quantity `json:"mileageFromOdometer"`
	FuelType            string   `json:"fuelType"`
	VehicleTransmission string   `json:"vehicleTransmission"`
	VehicleEngine       struct {
		EnginePower        quantity `json:"enginePower"`
		EngineDisplacement quantity `json:"engineDisplacement"`
	} `json:"vehicleEngine"`
	Offers struct {
		Price         number `json:"price"`
		PriceCurrency string `json:"priceCurrency"`
	} `json:"offers"`
}

func (c ldCar) isCar() bool {
	switch t := c.Type.(type) {
	case string:
		return t == "Car" || t == "Vehicle"
	case []any:
		for _, v := range t {
			if s, _ := v.(string); s == "Car" || s == "Vehicle" {
				return true
			}
		}
	}
	return false
}

func findCar(doc *goquery.Document) (ldCar, error) {
	var (
		car   ldCar
		found bool
	)
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var c ldCar
		if json.Unmarshal([]byte(s.Text()), &c) == nil && c.isCar() {
			car, found = c, true
			return false
		}
		return true
	})
	if !found {
		return ldCar{}, fmt.Errorf("no Car JSON-LD: %w", source.ErrParse)
	}
	return car, nil
}

func state(html string) (searchState, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return searchState{}, fmt.Errorf("html: %w: %w", source.ErrParse, err)
	}
	return stateOf(doc)
}

func stateOf(doc *goquery.Document) (searchState, error) {
	blob := doc.Find(`script#__AU_STATE__`).First()
	if blob.Length() == 0 {
		return searchState{}, fmt.Errorf("no __AU_STATE__ blob: %w", source.ErrParse)
	}
	var st searchState
	if err := json.Unmarshal([]byte(blob.Text()), &st); err != nil {
		return searchState{}, fmt.Errorf("state: %w: %w", source.ErrParse, err)
	}
	return st, nil
}

func carLink(id, href string) (source.LinkRef, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return source.LinkRef{}, false
	}
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil || u.Path == "" {
		return source.LinkRef{}, false
	}
	return source.LinkRef{ID: id, URL: origin + u.Path}, true
}
