// Package terms extracts structured loan terms from a free-text loan request.
//
// A request reads like
//
//	[REQ] 500 USD to cover rent. REPAY 520 USD due Jan 15, 2025 #NYC (PayPal, Venmo)
//
// where REQ names the requested principal and each REPAY names one installment. Amounts
// may be parenthesized and carry either an ISO currency code or a leading "$"; a bare "$"
// leaves the currency to the caller's default. Dates are written as "<Month> <day>, <year>",
// "#..." tags a location and a trailing parenthesized list names accepted payment methods.
package terms

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	labelRequested = "req"
	labelRepayment = "repay"
)

var ErrMalformedTerms = errors.New("malformed_terms")

// MalformedTermsError reports why a description could not be turned into terms.
type MalformedTermsError struct {
	Reason string
}

func (e *MalformedTermsError) Error() string {
	return fmt.Sprintf("malformed terms: %s", e.Reason)
}

func (e *MalformedTermsError) Is(target error) bool {
	return target == ErrMalformedTerms
}

func malformed(format string, args ...any) error {
	return &MalformedTermsError{Reason: fmt.Sprintf(format, args...)}
}

var currencyCodes = []string{
	"USD", "CAD", "EUR", "GBP", "AUD", "NZD", "CHF", "JPY", "CNY", "HKD", "SGD",
	"INR", "PHP", "MXN", "BRL", "ZAR", "SEK", "NOK", "DKK", "PLN",
}

// Groups: label, "$", number, currency code.
var amountPattern = regexp.MustCompile(`(?i)\[?\b(req|repay)\b\]?[\s:]*\(?\s*(\$)?\s*((?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d+)?)(?:\s*(` +
	strings.Join(currencyCodes, "|") + `)\b)?`)

var (
	datePattern     = regexp.MustCompile(`(?i)\b([a-z]+)\.?\s+(\d{1,2}),\s*(\d{4})\b`)
	locationPattern = regexp.MustCompile(`#([A-Za-z0-9][A-Za-z0-9 ,]*)`)
	labelPattern    = regexp.MustCompile(`(?i)\b(?:req|repay)\b`)
	methodsPattern  = regexp.MustCompile(`\(([^()]*)\)\s*$`)
)

var monthNames = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

type Amount struct {
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency"`
}

type Parsed struct {
	Requested      Amount      `json:"requested"`
	Repayments     []Amount    `json:"repayments"`
	DueDates       []time.Time `json:"due_dates"`
	Location       string      `json:"location,omitempty"`
	PaymentMethods []string    `json:"payment_methods,omitempty"`
}

// Parse is pure: the same text always yields the same terms. Repayments and due dates are
// returned in order of appearance and paired by index.
func Parse(text string) (*Parsed, error) {
	out := &Parsed{Repayments: []Amount{}, DueDates: []time.Time{}}

	requestedFound := false
	for _, m := range amountPattern.FindAllStringSubmatch(text, -1) {
		// "repay 2 weeks" is prose, not an amount
		if m[2] == "" && m[4] == "" {
			continue
		}
		value, err := decimal.NewFromString(strings.ReplaceAll(m[3], ",", ""))
		if err != nil {
			return nil, malformed("invalid amount %q", m[3])
		}
		amount := Amount{Value: value, Currency: strings.ToUpper(m[4])}

		switch strings.ToLower(m[1]) {
		case labelRequested:
			if requestedFound {
				return nil, malformed("more than one REQ amount")
			}
			requestedFound = true
			out.Requested = amount
		case labelRepayment:
			out.Repayments = append(out.Repayments, amount)
		}
	}
	if !requestedFound {
		return nil, malformed("missing REQ amount")
	}
	if !out.Requested.Value.IsPositive() {
		return nil, malformed("requested amount must be positive")
	}
	for i, r := range out.Repayments {
		if !r.Value.IsPositive() {
			return nil, malformed("repayment %d must be positive", i+1)
		}
	}
	if err := unifyCurrency(out); err != nil {
		return nil, err
	}

	for _, m := range datePattern.FindAllStringSubmatch(text, -1) {
		month, ok := monthNames[strings.ToLower(m[1])]
		if !ok {
			continue
		}
		d, err := calendarDate(month, m[2], m[3])
		if err != nil {
			return nil, err
		}
		out.DueDates = append(out.DueDates, d)
	}

	if len(out.Repayments) != len(out.DueDates) {
		return nil, malformed("%d repayment amounts but %d due dates", len(out.Repayments), len(out.DueDates))
	}

	if m := locationPattern.FindStringSubmatch(text); m != nil {
		loc := m[1]
		if idx := labelPattern.FindStringIndex(loc); idx != nil {
			loc = loc[:idx[0]]
		}
		out.Location = strings.Trim(loc, " ,")
	}
	if m := methodsPattern.FindStringSubmatch(text); m != nil {
		out.PaymentMethods = splitMethods(m[1])
	}

	return out, nil
}

// unifyCurrency requires every stated currency to agree and copies it to amounts that only
// carried "$". With no code stated anywhere the currency stays empty.
func unifyCurrency(p *Parsed) error {
	code := p.Requested.Currency
	for i, r := range p.Repayments {
		switch {
		case r.Currency == "":
		case code == "":
			code = r.Currency
		case r.Currency != code:
			return malformed("repayment %d currency %s differs from %s", i+1, r.Currency, code)
		}
	}
	p.Requested.Currency = code
	for i := range p.Repayments {
		p.Repayments[i].Currency = code
	}
	return nil
}

func calendarDate(month time.Month, dayText, yearText string) (time.Time, error) {
	day, err := strconv.Atoi(dayText)
	if err != nil {
		return time.Time{}, malformed("invalid day %q", dayText)
	}
	year, err := strconv.Atoi(yearText)
	if err != nil {
		return time.Time{}, malformed("invalid year %q", yearText)
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (Feb 30 -> Mar 2).
	if d.Day() != day || d.Month() != month {
		return time.Time{}, malformed("no such date %s %d, %d", month, day, year)
	}
	return d, nil
}

func splitMethods(list string) []string {
	parts := strings.Split(list, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
