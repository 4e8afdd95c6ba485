// Package vehiclenlp reads make, model and year out of free-form advert
// titles such as "VW Golf 7 1.6 TDI" or "Шкода Октавия 2016". Adapters use
// it to fill identity fields a detail page left empty.
package vehiclenlp

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Match is a vehicle recognized in a title.
type Match struct {
	Make       string
	Model      string
	Year       int     // 0 when the title has none
	Confidence float64 // 0..1
}

// makeAliases maps lower-cased spellings, Latin and Cyrillic, to the
// canonical make.
var makeAliases = map[string]string{
	"alfa romeo":    "Alfa Romeo",
	"алфа ромео":    "Alfa Romeo",
	"audi":          "Audi",
	"ауди":          "Audi",
	"bmw":           "BMW",
	"бмв":           "BMW",
	"chevrolet":     "Chevrolet",
	"шевролет":      "Chevrolet",
	"citroen":       "Citroen",
	"citroën":       "Citroen",
	"ситроен":       "Citroen",
	"dacia":         "Dacia",
	"дачия":         "Dacia",
	"fiat":          "Fiat",
	"фиат":          "Fiat",
	"ford":          "Ford",
	"форд":          "Ford",
	"honda":         "Honda",
	"хонда":         "Honda",
	"hyundai":       "Hyundai",
	"хюндай":        "Hyundai",
	"kia":           "Kia",
	"киа":           "Kia",
	"land rover":    "Land Rover",
	"ленд ровър":    "Land Rover",
	"mazda":         "Mazda",
	"мазда":         "Mazda",
	"mercedes":      "Mercedes-Benz",
	"mercedes-benz": "Mercedes-Benz",
	"мерцедес":      "Mercedes-Benz",
	"mini":          "Mini",
	"mitsubishi":    "Mitsubishi",
	"мицубиши":      "Mitsubishi",
	"nissan":        "Nissan",
	"нисан":         "Nissan",
	"opel":          "Opel",
	"опел":          "Opel",
	"peugeot":       "Peugeot",
	"пежо":          "Peugeot",
	"porsche":       "Porsche",
	"порше":         "Porsche",
	"renault":       "Renault",
	"рено":          "Renault",
	"seat":          "Seat",
	"сеат":          "Seat",
	"skoda":         "Skoda",
	"škoda":         "Skoda",
	"шкода":         "Skoda",
	"subaru":        "Subaru",
	"субару":        "Subaru",
	"suzuki":        "Suzuki",
	"сузуки":        "Suzuki",
	"tesla":         "Tesla",
	"тесла":         "Tesla",
	"toyota":        "Toyota",
	"тойота":        "Toyota",
	"vw":            "Volkswagen",
	"volkswagen":    "Volkswagen",
	"фолксваген":    "Volkswagen",
	"volvo":         "Volvo",
	"волво":         "Volvo",
}

// multiWordModels are models whose name spans several tokens. Any other
// model is read as the single token after the make.
var multiWordModels = map[string][]string{
	"BMW":           {"3 Series", "5 Series", "7 Series", "3 Gran Turismo", "5 Gran Turismo"},
	"Citroen":       {"C4 Picasso", "Grand C4 Picasso", "C4 Cactus"},
	"Dacia":         {"Logan MCV", "Sandero Stepway"},
	"Ford":          {"C-Max", "S-Max", "Grand C-Max", "Focus RS"},
	"Land Rover":    {"Range Rover Sport", "Range Rover Evoque", "Range Rover", "Discovery Sport"},
	"Mercedes-Benz": {"C-Class", "E-Class", "S-Class", "A-Class", "B-Class", "GLC Coupe"},
	"Opel":          {"Astra GTC", "Grandland X", "Crossland X", "Zafira Tourer"},
	"Renault":       {"Grand Scenic", "Megane Grandtour"},
	"Skoda":         {"Octavia Combi", "Superb Combi"},
	"Tesla":         {"Model 3", "Model S", "Model X", "Model Y"},
	"Toyota":        {"Land Cruiser", "Yaris Cross", "C-HR"},
	"Volkswagen":    {"Golf Plus", "Golf Variant", "Passat Variant", "Passat CC", "T-Roc", "ID.3", "ID.4"},
}

var (
	makeRe = func() *regexp.Regexp {
		names := make([]string, 0, len(makeAliases))
		for alias := range makeAliases {
			names = append(names, regexp.QuoteMeta(alias))
		}
		// Longest first so "mercedes-benz" wins over "mercedes".
		sort.Slice(names, func(i, j int) bool {
			if len(names[i]) != len(names[j]) {
				return len(names[i]) > len(names[j])
			}
			return names[i] < names[j]
		})
		return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])(` + strings.Join(names, "|") + `)(?:$|[^\p{L}\p{N}])`)
	}()
	yearRe = regexp.MustCompile(`\b(19[5-9]\d|20\d{2})\b`)
)

// FromTitle recognizes the vehicle in an advert title. ok is false when no
// known make appears.
func FromTitle(title string) (m Match, ok bool) {
	title = strings.Join(strings.Fields(title), " ")
	loc := makeRe.FindStringSubmatchIndex(title)
	if loc == nil {
		return Match{}, false
	}
	m.Make = makeAliases[strings.ToLower(title[loc[2]:loc[3]])]
	m.Confidence = 0.4
	rest := strings.TrimSpace(title[loc[3]:])

	if model, known := findModel(m.Make, rest); model != "" {
		m.Model = model
		m.Confidence = 0.6
		if known {
			m.Confidence = 0.9
		}
	}
	if y := yearRe.FindString(title); y != "" {
		m.Year, _ = strconv.Atoi(y)
		m.Confidence += 0.1
	}
	return m, true
}

// findModel returns the model at the start of rest. known reports whether
// it came from the multi-word table.
func findModel(make_, rest string) (model string, known bool) {
	lower := strings.ToLower(rest)
	best := ""
	for _, candidate := range multiWordModels[make_] {
		c := strings.ToLower(candidate)
		if strings.HasPrefix(lower, c) && boundary(lower, len(c)) && len(c) > len(best) {
			best = candidate
		}
	}
	if best != "" {
		return best, true
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", false
	}
	tok := strings.TrimFunc(fields[0], func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
	if tok == "" || yearRe.MatchString(tok) {
		return "", false
	}
	return tok, false
}

func boundary(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r := rune(s[i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
