package record

import "strings"

// Currency of an advert price.
type Currency string

const (
	BGN Currency = "BGN"
	EUR Currency = "EUR"
	USD Currency = "USD"
)

// String returns the canonical label; an unset currency reads as EUR.
func (c Currency) String() string {
	if c == "" {
		return string(EUR)
	}
	return string(c)
}

// Engine is the fuel / drivetrain kind.
type Engine string

const (
	Petrol             Engine = "Petrol"
	Diesel             Engine = "Diesel"
	Hybrid             Engine = "Hybrid"
	LPG                Engine = "LPG"
	CNG                Engine = "CNG"
	HybridPetrol       Engine = "HybridPetrol"
	HybridDiesel       Engine = "HybridDiesel"
	Electric           Engine = "Electric"
	PlugInHybridPetrol Engine = "PlugInHybridPetrol"
	PlugInHybridDiesel Engine = "PlugInHybridDiesel"
	PluginHybrid       Engine = "PluginHybrid"
	EngineNotAvailable Engine = "NotAvailable"
)

// Gearbox is the transmission kind.
type Gearbox string

const (
	Automatic           Gearbox = "Automatic"
	Manual              Gearbox = "Manual"
	Semiautomatic       Gearbox = "Semiautomatic"
	GearboxNotAvailable Gearbox = "NotAvailable"
)

// engineLabels maps lower-cased site labels (Bulgarian, Romanian, English)
// to engine kinds.
var engineLabels = map[string]Engine{
	"бензин":                Petrol,
	"бензинов":              Petrol,
	"дизел":                 Diesel,
	"дизелов":               Diesel,
	"хибрид":                Hybrid,
	"хибриден":              Hybrid,
	"газ/бензин":            LPG,
	"газ":                   LPG,
	"метан/бензин":          CNG,
	"метан":                 CNG,
	"бензин/хибрид":         HybridPetrol,
	"дизел/хибрид":          HybridDiesel,
	"електрически":          Electric,
	"електричество":         Electric,
	"plug-in хибрид":        PluginHybrid,
	"plug-in бензин":        PlugInHybridPetrol,
	"plug-in дизел":         PlugInHybridDiesel,
	"benzina":               Petrol,
	"motorina":              Diesel,
	"diesel":                Diesel,
	"hibrid":                Hybrid,
	"hibrid benzina":        HybridPetrol,
	"hibrid motorina":       HybridDiesel,
	"hibrid plug-in":        PluginHybrid,
	"gpl":                   LPG,
	"benzina + gpl":         LPG,
	"cng":                   CNG,
	"electric":              Electric,
	"electrica":             Electric,
	"petrol":                Petrol,
	"gasoline":              Petrol,
	"hybrid":                Hybrid,
	"lpg":                   LPG,
	"plug-in hybrid":        PluginHybrid,
	"pluginhybrid":          PluginHybrid,
	"hybridpetrol":          HybridPetrol,
	"hybriddiesel":          HybridDiesel,
	"pluginhybridpetrol":    PlugInHybridPetrol,
	"pluginhybriddiesel":    PlugInHybridDiesel,
	"plug-in hybrid petrol": PlugInHybridPetrol,
	"plug-in hybrid diesel": PlugInHybridDiesel,
	"notavailable":          EngineNotAvailable,
	"не е посочено":         EngineNotAvailable,
	"n/a":                   EngineNotAvailable,
}

var gearboxLabels = map[string]Gearbox{
	"автоматична":     Automatic,
	"автоматик":       Automatic,
	"ръчна":           Manual,
	"полуавтоматична": Semiautomatic,
	"automata":        Automatic,
	"automatic":       Automatic,
	"automatica":      Automatic,
	"manuala":         Manual,
	"manual":          Manual,
	"semiautomata":    Semiautomatic,
	"semiautomatic":   Semiautomatic,
	"semi-automatic":  Semiautomatic,
	"notavailable":    GearboxNotAvailable,
	"не е посочено":   GearboxNotAvailable,
	"n/a":             GearboxNotAvailable,
}

var currencyLabels = map[string]Currency{
	"bgn": BGN,
	"лв":  BGN,
	"лв.": BGN,
	"eur": EUR,
	"€":   EUR,
	"usd": USD,
	"$":   USD,
}

func normLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimSuffix(s, ":")
}

// ParseEngine resolves a site label to an engine kind. The second return is
// false when the label is unknown.
func ParseEngine(label string) (Engine, bool) {
	e, ok := engineLabels[normLabel(label)]
	return e, ok
}

// ParseGearbox resolves a site label to a gearbox kind.
func ParseGearbox(label string) (Gearbox, bool) {
	g, ok := gearboxLabels[normLabel(label)]
	return g, ok
}

// ParseCurrency resolves a currency code or symbol.
func ParseCurrency(label string) (Currency, bool) {
	c, ok := currencyLabels[normLabel(label)]
	return c, ok
}
