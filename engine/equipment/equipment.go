// Package equipment encodes the feature labels scraped from an advert into a
// 64-bit mask using a per-source catalog of {bit: label}.
package equipment

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrBitRange is returned for catalog bits outside 0..63.
var ErrBitRange = errors.New("equipment bit out of range")

// Catalog maps bit indexes to feature labels. It is read-only after load and
// safe for concurrent use.
type Catalog struct {
	labels map[uint]string
	bits   map[string]uint // normalized label -> bit
}

type catalogFile struct {
	Equipment map[uint]string `yaml:"equipment"`
}

// New builds a catalog from a bit -> label map.
func New(labels map[uint]string) (*Catalog, error) {
	c := &Catalog{
		labels: make(map[uint]string, len(labels)),
		bits:   make(map[string]uint, len(labels)),
	}
	for bit, label := range labels {
		if bit > 63 {
			return nil, fmt.Errorf("equipment: bit %d (%q): %w", bit, label, ErrBitRange)
		}
		key := norm(label)
		if key == "" {
			return nil, fmt.Errorf("equipment: bit %d has an empty label", bit)
		}
		if prev, dup := c.bits[key]; dup {
			return nil, fmt.Errorf("equipment: label %q used by bits %d and %d", label, prev, bit)
		}
		c.labels[bit] = label
		c.bits[key] = bit
	}
	return c, nil
}

// Parse reads a YAML document of the form `equipment: {0: "ABS", 2: "Airbag"}`.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("equipment: parse: %w", err)
	}
	return New(f.Equipment)
}

// MustParse is Parse for catalogs embedded in the binary.
func MustParse(data []byte) *Catalog {
	c, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads a catalog file from disk.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("equipment: %w", err)
	}
	return Parse(data)
}

// Len reports how many features the catalog knows.
func (c *Catalog) Len() int { return len(c.labels) }

// Label returns the label for bit.
func (c *Catalog) Label(bit uint) (string, bool) {
	l, ok := c.labels[bit]
	return l, ok
}

// Encode sums 2^bit over every label present in the catalog. Unknown labels
// are ignored; matching is case-insensitive on trimmed text.
func (c *Catalog) Encode(labels []string) uint64 {
	var mask uint64
	for _, l := range labels {
		if bit, ok := c.bits[norm(l)]; ok {
			mask |= 1 << bit
		}
	}
	return mask
}

// Decode returns the catalog labels whose bits are set in mask, ordered by
// bit index.
func (c *Catalog) Decode(mask uint64) []string {
	var out []string
	for _, bit := range c.sortedBits() {
		if mask&(1<<bit) != 0 {
			out = append(out, c.labels[bit])
		}
	}
	return out
}

// Labels returns every label ordered by bit index.
func (c *Catalog) Labels() []string {
	bits := c.sortedBits()
	out := make([]string, len(bits))
	for i, b := range bits {
		out[i] = c.labels[b]
	}
	return out
}

func (c *Catalog) sortedBits() []uint {
	bits := make([]uint, 0, len(c.labels))
	for b := range c.labels {
		bits = append(bits, b)
	}
	sort.Slice(bits, func(i, j int) bool { return bits[i] < bits[j] })
	return bits
}

func norm(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
