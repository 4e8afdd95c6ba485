package equipment

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestEncode_Example(t *testing.T) {
	c, err := New(map[uint]string{0: "ABS", 2: "Airbag"})
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Encode([]string{"ABS", "Airbag"}); got != 0b101 {
		t.Fatalf("mask = %b, want 101", got)
	}
	if got := c.Encode([]string{" abs ", "Sunroof"}); got != 1 {
		t.Fatalf("unknown labels should be ignored, mask = %b", got)
	}
}

func TestRoundTrip_AllSubsets(t *testing.T) {
	c, err := Parse([]byte(`
equipment:
  0: "ABS"
  1: "ESP"
  2: "Airbag"
  5: "Навигация"
  63: "Теглич"
`))
	if err != nil {
		t.Fatal(err)
	}
	all := c.Labels()
	if len(all) != 5 {
		t.Fatalf("expected 5 labels, got %v", all)
	}
	for subset := 0; subset < 1<<len(all); subset++ {
		var labels []string
		for i, l := range all {
			if subset&(1<<i) != 0 {
				labels = append(labels, l)
			}
		}
		got := c.Decode(c.Encode(labels))
		if !reflect.DeepEqual(got, labels) {
			t.Fatalf("subset %05b: decode(encode(%v)) = %v", subset, labels, got)
		}
	}
}

func TestDecode_HighBit(t *testing.T) {
	c, err := New(map[uint]string{63: "Tow bar"})
	if err != nil {
		t.Fatal(err)
	}
	mask := c.Encode([]string{"Tow bar"})
	if mask != 1<<63 {
		t.Fatalf("mask = %d", mask)
	}
	if got := c.Decode(mask); len(got) != 1 || got[0] != "Tow bar" {
		t.Fatalf("got %v", got)
	}
}

func TestNew_Rejects(t *testing.T) {
	if _, err := New(map[uint]string{64: "x"}); !errors.Is(err, ErrBitRange) {
		t.Errorf("expected ErrBitRange, got %v", err)
	}
	if _, err := New(map[uint]string{1: "ABS", 2: "abs"}); err == nil {
		t.Error("duplicate labels should be rejected")
	}
	if _, err := New(map[uint]string{1: "  "}); err == nil {
		t.Error("empty label should be rejected")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eq.yaml")
	if err := os.WriteFile(path, []byte("equipment:\n  3: \"Климатроник\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if l, ok := c.Label(3); !ok || l != "Климатроник" {
		t.Fatalf("label = %q, %v", l, ok)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}
	if _, err := Parse([]byte("equipment: [")); err == nil {
		t.Error("bad yaml should fail")
	}
}
