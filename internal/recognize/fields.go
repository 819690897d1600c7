package recognize

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/attendsync/attendsync/internal/schema"
)

var (
	isoDateRe = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	// Receipts in this domain print day first.
	dmyDateRe = regexp.MustCompile(`\b(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{2,4})\b`)
	amountRe  = regexp.MustCompile(`(?:\$|€)?\s?(\d{1,3}(?:[.,\s]\d{3})*[.,]\d{2}|\d+[.,]\d{2})\b`)
	totalRe   = regexp.MustCompile(`(?i)\b(total|importe|monto|amount|a pagar)\b`)
)

var naturalDates = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// ParseDate resolves free text to a YYYY-MM-DD date. It accepts ISO dates,
// day-first numeric dates (10/01/2024, 10-01-24) and natural expressions
// such as "today" or "yesterday" relative to ref. Returns "" when nothing
// date-like is found.
func ParseDate(text string, ref time.Time) string {
	if m := isoDateRe.FindStringSubmatch(text); m != nil {
		if d, ok := buildDate(m[1], m[2], m[3]); ok {
			return d
		}
	}
	for _, m := range dmyDateRe.FindAllStringSubmatch(text, -1) {
		year := m[3]
		if len(year) == 2 {
			year = "20" + year
		}
		if d, ok := buildDate(year, m[2], m[1]); ok {
			return d
		}
	}
	r, err := naturalDates.Parse(text, ref)
	if err != nil || r == nil {
		return ""
	}
	return r.Time.Format(schema.DateLayout)
}

func buildDate(y, m, d string) (string, bool) {
	year, err1 := strconv.Atoi(y)
	month, err2 := strconv.Atoi(m)
	day, err3 := strconv.Atoi(d)
	if err1 != nil || err2 != nil || err3 != nil {
		return "", false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes 31/02 into March; reject that.
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return "", false
	}
	return t.Format(schema.DateLayout), true
}

// ParseAmount returns the most plausible money amount found in text,
// normalized to "1234.56". A line mentioning a total wins; otherwise the
// largest amount is used.
func ParseAmount(text string) string {
	type candidate struct {
		value float64
		total bool
	}
	var cands []candidate
	for _, line := range strings.Split(text, "\n") {
		isTotal := totalRe.MatchString(line)
		for _, m := range amountRe.FindAllStringSubmatch(line, -1) {
			if v, ok := normalizeAmount(m[1]); ok {
				cands = append(cands, candidate{value: v, total: isTotal})
			}
		}
	}
	if len(cands) == 0 {
		return ""
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].total != cands[j].total {
			return cands[i].total
		}
		return cands[i].value > cands[j].value
	})
	return strconv.FormatFloat(cands[0].value, 'f', 2, 64)
}

// normalizeAmount treats the last separator as the decimal mark and every
// other separator as grouping.
func normalizeAmount(s string) (float64, bool) {
	s = strings.ReplaceAll(s, " ", "")
	if len(s) < 4 {
		return 0, false
	}
	intPart := s[:len(s)-3]
	frac := s[len(s)-2:]
	intPart = strings.NewReplacer(".", "", ",", "").Replace(intPart)
	v, err := strconv.ParseFloat(intPart+"."+frac, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseFields extracts date and amount from recognized text.
func ParseFields(text string, ref time.Time) *schema.RecognizedFields {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return &schema.RecognizedFields{
		Text:   text,
		Date:   ParseDate(text, ref),
		Amount: ParseAmount(text),
	}
}
