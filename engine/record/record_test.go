package record

import (
	"errors"
	"strings"
	"testing"
)

func completeRecord() Record {
	return Record{
		ID:      "mobile.bg-11712345678901",
		Source:  "mobile.bg",
		Make:    "BMW",
		Model:   "320d",
		Price:   18500,
		Year:    2016,
		Mileage: 185000,
		Engine:  Diesel,
		Gearbox: Automatic,
	}
}

func TestValidate_Complete(t *testing.T) {
	if err := Validate(completeRecord()); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
}

func TestValidate_MissingRequiredField(t *testing.T) {
	cases := []struct {
		field string
		clear func(*Record)
	}{
		{"price", func(r *Record) { r.Price = 0 }},
		{"make", func(r *Record) { r.Make = "" }},
		{"year", func(r *Record) { r.Year = 0 }},
		{"mileage", func(r *Record) { r.Mileage = 0 }},
		{"engine", func(r *Record) { r.Engine = "" }},
		{"gearbox", func(r *Record) { r.Gearbox = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.field, func(t *testing.T) {
			r := completeRecord()
			tc.clear(&r)
			err := Validate(r)
			if !errors.Is(err, ErrIncomplete) {
				t.Fatalf("expected ErrIncomplete, got %v", err)
			}
			if Field(err) != tc.field {
				t.Errorf("field = %q, want %q", Field(err), tc.field)
			}
			want := "invalid/incomplete " + tc.field + " for " + r.ID
			if err.Error() != want {
				t.Errorf("message = %q, want %q", err.Error(), want)
			}
		})
	}
}

func TestValidate_NotAvailableCountsAsPresent(t *testing.T) {
	r := completeRecord()
	r.Engine = Electric
	r.Gearbox = GearboxNotAvailable
	if err := Validate(r); err != nil {
		t.Fatalf("NotAvailable gearbox should pass the gate: %v", err)
	}
}

func TestValidate_Identity(t *testing.T) {
	r := completeRecord()
	r.ID = ""
	if !errors.Is(Validate(r), ErrNoID) {
		t.Error("empty id should be rejected")
	}
	r = completeRecord()
	r.Source = ""
	if !errors.Is(Validate(r), ErrNoSource) {
		t.Error("empty source should be rejected")
	}
}

func TestCanonicalID(t *testing.T) {
	if got := CanonicalID("cars.bg", "65a1b2"); got != "cars.bg-65a1b2" {
		t.Errorf("got %q", got)
	}
	if got := CanonicalID("cars.bg", "cars.bg-65a1b2"); got != "cars.bg-65a1b2" {
		t.Errorf("prefix should not be applied twice, got %q", got)
	}
	if got := CanonicalID("cars.bg", "  "); got != "" {
		t.Errorf("blank native id should stay blank, got %q", got)
	}
}

func TestParseEngine(t *testing.T) {
	cases := map[string]Engine{
		"Бензинов":        Petrol,
		"  ДИЗЕЛОВ ":      Diesel,
		"Газ/Бензин":      LPG,
		"Електрически":    Electric,
		"Plug-in хибрид":  PluginHybrid,
		"Motorina":        Diesel,
		"Hibrid Benzina":  HybridPetrol,
		"Plug-in Hybrid ": PluginHybrid,
	}
	for in, want := range cases {
		got, ok := ParseEngine(in)
		if !ok || got != want {
			t.Errorf("ParseEngine(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	if _, ok := ParseEngine("steam"); ok {
		t.Error("unknown label should not resolve")
	}
}

func TestParseGearbox(t *testing.T) {
	cases := map[string]Gearbox{
		"Автоматична":     Automatic,
		"ръчна":           Manual,
		"Полуавтоматична": Semiautomatic,
		"Manuala":         Manual,
		"Automata:":       Automatic,
	}
	for in, want := range cases {
		got, ok := ParseGearbox(in)
		if !ok || got != want {
			t.Errorf("ParseGearbox(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
}

func TestRow_MatchesHeader(t *testing.T) {
	r := completeRecord()
	r.Equipment = 5
	r.VIP = true
	r.CreatedOn = "2024-03-01"
	row := r.Row()
	if len(row) != len(Header) {
		t.Fatalf("row has %d columns, header %d", len(row), len(Header))
	}
	col := func(name string) string {
		for i, h := range Header {
			if h == name {
				return row[i]
			}
		}
		t.Fatalf("no column %q", name)
		return ""
	}
	if col("id") != r.ID || row[IDColumn] != r.ID {
		t.Error("id column mismatch")
	}
	if col("currency") != "EUR" {
		t.Errorf("unset currency should default to EUR, got %q", col("currency"))
	}
	if col("engine") != "Diesel" || col("gearbox") != "Automatic" {
		t.Error("enum labels not canonical")
	}
	if col("month") != "" || col("power") != "" || col("view_count") != "" {
		t.Error("missing optional fields should be empty")
	}
	if col("equipment") != "5" || col("vip") != "true" || col("top") != "false" {
		t.Error("flags or equipment rendered wrong")
	}
	if strings.Join(Header, ",") != "id,source,make,model,title,currency,price,mileage,year,month,engine,gearbox,power,cc,phone,location,seller_name,view_count,equipment,top,vip,sold,dealer,created_on,updated_on" {
		t.Error("header order changed")
	}
}
