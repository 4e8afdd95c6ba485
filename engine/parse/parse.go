// Package parse holds the small text parsers shared by every source adapter:
// prices, integer tokens, month/year stamps and dates. Only the mapping from
// page selectors to record fields is source specific.
package parse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/WessleyAI/autocrawl/engine/record"
)

var spaceReplacer = strings.NewReplacer(
	"&nbsp;", "",
	"\u00a0", "",
	"\u202f", "",
	"\u2009", "",
	" ", "",
	"\t", "",
	"\n", "",
	"\r", "",
)

// Price parses an advert price such as "12 345 лв.", "1&nbsp;500 EUR" or
// "$9,999". Decimals are truncated. The currency is the one written next to
// the first amount, so "9 500 лв. (4 857 EUR)" is BGN. Text without a
// recognizable currency is read as BGN; text without digits yields (0, BGN).
func Price(s string) (uint64, record.Currency) {
	rs := []rune(spaceReplacer.Replace(s))
	digits, start, end := leadingNumber(rs)

	cur := record.BGN
	if c, ok := currencyAfter(rs[end:]); ok {
		cur = c
	} else if c, ok := currencyBefore(rs[:start]); ok {
		cur = c
	}

	v, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, cur
	}
	return v, cur
}

var currencyMarks = []struct {
	mark string
	cur  record.Currency
}{
	{"лв", record.BGN},
	{"bgn", record.BGN},
	{"eur", record.EUR},
	{"€", record.EUR},
	{"usd", record.USD},
	{"$", record.USD},
}

// currencyAfter reads the currency mark that follows an amount, skipping the
// decimals the amount was truncated at.
func currencyAfter(rest []rune) (record.Currency, bool) {
	i := 0
	for i < len(rest) && (isDigit(rest[i]) || rest[i] == '.' || rest[i] == ',') {
		i++
	}
	tail := strings.ToLower(string(rest[i:]))
	for _, m := range currencyMarks {
		if strings.HasPrefix(tail, m.mark) {
			return m.cur, true
		}
	}
	return "", false
}

// currencyBefore reads a mark written in front of the amount ("$9,999").
func currencyBefore(head []rune) (record.Currency, bool) {
	lead := strings.ToLower(string(head))
	for _, m := range currencyMarks {
		if strings.HasSuffix(lead, m.mark) {
			return m.cur, true
		}
	}
	return "", false
}

// leadingNumber returns the digits of the first number in rs and the rune
// span it covers. Separators followed by exactly three digits are thousands
// grouping; any other separator ends the number, which truncates decimals.
func leadingNumber(rs []rune) (digits string, start, end int) {
	var b strings.Builder
	start, end = len(rs), len(rs)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if isDigit(r) {
			if b.Len() == 0 {
				start = i
			}
			b.WriteRune(r)
			end = i + 1
			continue
		}
		if b.Len() == 0 {
			continue
		}
		if (r == ',' || r == '.' || r == '\'') && thousandsGroup(rs[i+1:]) {
			continue
		}
		break
	}
	return b.String(), start, end
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func thousandsGroup(rs []rune) bool {
	if len(rs) < 3 {
		return false
	}
	for _, r := range rs[:3] {
		if !isDigit(r) {
			return false
		}
	}
	return len(rs) == 3 || !isDigit(rs[3])
}

var intToken = regexp.MustCompile(`\d[\d\s\x{00a0}]*`)

// IntTokens returns up to n integers found in s, in order. Whitespace inside
// a number ("185 000") is treated as a thousands separator.
func IntTokens(s string, n int) []uint64 {
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	var out []uint64
	for _, m := range intToken.FindAllString(s, -1) {
		if n > 0 && len(out) == n {
			break
		}
		v, err := strconv.ParseUint(strings.Map(dropSpace, m), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Uint parses the first number in s, ignoring spaces and units
// ("1 998 куб.см" -> 1998). It returns 0 when s holds no digits.
func Uint(s string) uint64 {
	toks := IntTokens(s, 1)
	if len(toks) == 0 {
		return 0
	}
	return toks[0]
}

func dropSpace(r rune) rune {
	if unicode.IsSpace(r) {
		return -1
	}
	return r
}

var months = map[string]uint8{
	"януари": 1, "февруари": 2, "март": 3, "април": 4, "май": 5, "юни": 6,
	"юли": 7, "август": 8, "септември": 9, "октомври": 10, "ноември": 11, "декември": 12,
	"ianuarie": 1, "februarie": 2, "martie": 3, "aprilie": 4, "mai": 5, "iunie": 6,
	"iulie": 7, "septembrie": 9, "octombrie": 10, "noiembrie": 11, "decembrie": 12,
	"january": 1, "february": 2, "march": 3, "april": 4, "june": 6,
	"july": 7, "august": 8, "september": 9, "october": 10, "november": 11, "december": 12,
}

var monthYearNumeric = regexp.MustCompile(`\b(0?[1-9]|1[0-2])[./-]((?:19|20)\d{2})\b`)

var yearOnly = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)

// YearMonth parses "март 2019 г.", "03/2019", "2019-03" style stamps. Month
// is zero when only the year is present.
func YearMonth(s string) (year uint16, month uint8) {
	s = strings.ToLower(strings.TrimSpace(s))
	if m := monthYearNumeric.FindStringSubmatch(s); m != nil {
		mo, _ := strconv.Atoi(m[1])
		y, _ := strconv.Atoi(m[2])
		return uint16(y), uint8(mo)
	}
	if m := isoYearMonth.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		return uint16(y), uint8(mo)
	}
	y := yearOnly.FindString(s)
	if y == "" {
		return 0, 0
	}
	yv, _ := strconv.Atoi(y)
	for _, w := range strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) }) {
		if mo, ok := months[w]; ok {
			return uint16(yv), mo
		}
	}
	return uint16(yv), 0
}

var isoYearMonth = regexp.MustCompile(`\b((?:19|20)\d{2})-(0[1-9]|1[0-2])\b`)

// DateLayout is the record date format.
const DateLayout = "2006-01-02"

var dayMonthYear = regexp.MustCompile(`\b(\d{1,2})[./](\d{1,2})[./]((?:19|20)\d{2})\b`)

var isoDate = regexp.MustCompile(`\b((?:19|20)\d{2})-(\d{2})-(\d{2})`)

// Date normalizes "12.03.2024", "12/03/2024" or an RFC 3339 prefix to
// YYYY-MM-DD. Unparseable input yields "".
func Date(s string) string {
	if m := isoDate.FindStringSubmatch(s); m != nil {
		return m[1] + "-" + m[2] + "-" + m[3]
	}
	if m := dayMonthYear.FindStringSubmatch(s); m != nil {
		d, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		y, _ := strconv.Atoi(m[3])
		t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
		if t.Day() != d || int(t.Month()) != mo {
			return ""
		}
		return t.Format(DateLayout)
	}
	return ""
}

// Text collapses runs of whitespace (including no-break spaces) and trims s.
func Text(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
