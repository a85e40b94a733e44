package conversation

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/stayline/hotel-concierge/internal/pms"
)

// DateCandidate is a tagged date value produced by an extractor.
type DateCandidate struct {
	Value time.Time
	Valid bool
}

// IntCandidate is a tagged integer value produced by an extractor.
type IntCandidate struct {
	Value int
	Valid bool
}

// StringCandidate is a tagged string value produced by an extractor.
type StringCandidate struct {
	Value string
	Valid bool
}

// Candidates carries everything an extractor recognized in one utterance.
// Guards operate only on candidates whose Valid flag is set.
type Candidates struct {
	CheckIn    DateCandidate
	CheckOut   DateCandidate
	GuestCount IntCandidate
	GuestName  StringCandidate
	GuestEmail StringCandidate
	GuestPhone StringCandidate
}

// Extractor converts a raw utterance into candidate slot values. The
// engine treats it as an opaque function; current slots are provided so
// an implementation can skip fields that are already filled.
type Extractor interface {
	Extract(text string, current Slots) Candidates
}

var (
	isoDateRe    = regexp.MustCompile(`\d{4}[-/]\d{2}[-/]\d{2}`)
	shortDateRe  = regexp.MustCompile(`\b(\d{1,2})[-/](\d{1,2})\b`)
	guestRes     []*regexp.Regexp
	emailRe      = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phoneRe      = regexp.MustCompile(`[+\d][\d\s\-().]{7,}\d`)
	nonPhoneCh   = regexp.MustCompile(`[\s\-().]`)
	e164DigitsRe = regexp.MustCompile(`^\+?\d{10,15}$`)
)

func init() {
	for _, p := range []string{
		`(\d+)\s*(?:guests?|people|persons?)`,
		`(\d+)\s*(?:adults?|pax)`,
		`party\s*of\s*(\d+)`,
		`for\s*(\d+)`,
	} {
		guestRes = append(guestRes, regexp.MustCompile(p))
	}
}

// RegexExtractor is the deterministic reference extractor: date pairs,
// relative dates, guest-count phrases, and contact details, all via fixed
// patterns. No field already present in the current slots is re-extracted.
type RegexExtractor struct {
	now func() time.Time
}

// NewRegexExtractor builds the reference extractor.
func NewRegexExtractor() *RegexExtractor {
	return &RegexExtractor{now: time.Now}
}

var _ Extractor = (*RegexExtractor)(nil)

// Extract scans text for slot candidates.
func (e *RegexExtractor) Extract(text string, current Slots) Candidates {
	var c Candidates

	if current.CheckInDate == "" || current.CheckOutDate == "" {
		in, out := e.extractDates(text)
		// With check-in already held, a lone date is the checkout.
		if current.CheckInDate != "" && in.Valid && !out.Valid {
			in, out = DateCandidate{}, in
		}
		if current.CheckInDate == "" {
			c.CheckIn = in
		}
		if current.CheckOutDate == "" {
			c.CheckOut = out
		}
	}
	if current.GuestCount == 0 {
		c.GuestCount = extractGuestCount(text)
	}

	email := emailRe.FindString(text)
	if current.GuestEmail == "" && email != "" {
		c.GuestEmail = StringCandidate{Value: email, Valid: true}
	}
	phoneRaw := findPhone(text, email)
	if current.GuestPhone == "" && phoneRaw != "" {
		if e164 := normalizeE164(phoneRaw); e164 != "" {
			c.GuestPhone = StringCandidate{Value: e164, Valid: true}
		}
	}
	if current.GuestName == "" {
		if name := extractName(text, email, phoneRaw); name != "" {
			c.GuestName = StringCandidate{Value: name, Valid: true}
		}
	}

	return c
}

// extractDates finds a check-in/check-out pair. A lone date paired with
// "today"/"tomorrow"/"next week" phrasing is left as check-in only; the
// machine re-prompts for the missing end of the range.
func (e *RegexExtractor) extractDates(text string) (DateCandidate, DateCandidate) {
	today := truncateToDay(e.now())

	var found []time.Time
	for _, m := range isoDateRe.FindAllString(text, 2) {
		if t, err := time.Parse(pms.DateLayout, strings.ReplaceAll(m, "/", "-")); err == nil {
			found = append(found, t)
		}
	}
	// Strip full dates so the short-date scan cannot re-match their tails.
	remainder := isoDateRe.ReplaceAllString(text, " ")

	if len(found) < 2 {
		// MM/DD or M/D with next-year rollover for past dates.
		for _, m := range shortDateRe.FindAllStringSubmatch(remainder, 2) {
			month, _ := strconv.Atoi(m[1])
			day, _ := strconv.Atoi(m[2])
			if month < 1 || month > 12 || day < 1 || day > 31 {
				continue
			}
			t := time.Date(today.Year(), time.Month(month), day, 0, 0, 0, 0, time.UTC)
			if t.Before(today) {
				t = t.AddDate(1, 0, 0)
			}
			found = append(found, t)
			if len(found) == 2 {
				break
			}
		}
	}

	if len(found) == 0 {
		if t, ok := relativeDate(text, today); ok {
			found = append(found, t)
		}
	}

	switch len(found) {
	case 0:
		return DateCandidate{}, DateCandidate{}
	case 1:
		return DateCandidate{Value: found[0], Valid: true}, DateCandidate{}
	default:
		return DateCandidate{Value: found[0], Valid: true}, DateCandidate{Value: found[1], Valid: true}
	}
}

func relativeDate(text string, today time.Time) (time.Time, bool) {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "tomorrow"):
		return today.AddDate(0, 0, 1), true
	case strings.Contains(lower, "next week"):
		return today.AddDate(0, 0, 7), true
	case strings.Contains(lower, "today"):
		return today, true
	}
	return time.Time{}, false
}

func extractGuestCount(text string) IntCandidate {
	lower := strings.ToLower(text)
	for _, re := range guestRes {
		if m := re.FindStringSubmatch(lower); m != nil {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			return IntCandidate{Value: n, Valid: n >= 1}
		}
	}
	return IntCandidate{}
}

// findPhone looks for a phone-shaped run, ignoring anything inside the
// matched email (email local parts can look like digit runs).
func findPhone(text, email string) string {
	if email != "" {
		text = strings.ReplaceAll(text, email, " ")
	}
	return phoneRe.FindString(text)
}

// normalizeE164 strips common punctuation and validates the digit count;
// returns "" when the run does not look like a dialable number.
func normalizeE164(raw string) string {
	cleaned := nonPhoneCh.ReplaceAllString(raw, "")
	if !e164DigitsRe.MatchString(cleaned) {
		return ""
	}
	if !strings.HasPrefix(cleaned, "+") {
		cleaned = "+" + cleaned
	}
	return cleaned
}

// extractName keeps 2-3 capitalized words remaining after stripping the
// email and phone tokens from the utterance.
func extractName(text, email, phone string) string {
	if email != "" {
		text = strings.ReplaceAll(text, email, " ")
	}
	if phone != "" {
		text = strings.ReplaceAll(text, phone, " ")
	}

	var candidates []string
	for _, word := range strings.Fields(text) {
		word = strings.Trim(word, ",.!?;:")
		if len(word) > 2 && word[0] >= 'A' && word[0] <= 'Z' && isAlphaWord(word) {
			candidates = append(candidates, word)
		}
	}
	if len(candidates) < 2 {
		return ""
	}
	if len(candidates) > 3 {
		candidates = candidates[:3]
	}
	return strings.Join(candidates, " ")
}

func isAlphaWord(word string) bool {
	for _, r := range word {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == '\'' || r == '-') {
			return false
		}
	}
	return true
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
