package contact

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// addressKeywords mark text that likely carries a shipping or home address.
var addressKeywords = []string{
	"address", "shipping", "delivery", "street", "avenue", "road",
	"city", "state", "zip", "postal", "country", "apt", "suite",
	"building", "floor", "house", "lane", "boulevard", "drive",
}

// regionHints are tried in order when a candidate number has no country code.
var regionHints = []string{"US", "GB", "IN", "CA", "AU"}

// phoneCandidateRe matches digit runs loose enough to catch formatted
// numbers; every candidate is validated before it counts.
var phoneCandidateRe = regexp.MustCompile(`\+?[\d][\d\s().-]{6,18}[\d]`)

// ExtractPhoneNumbers returns the valid phone numbers found in the text,
// normalized to E.164 and deduplicated.
func ExtractPhoneNumbers(text string) []string {
	var numbers []string
	seen := map[string]struct{}{}

	for _, candidate := range phoneCandidateRe.FindAllString(text, -1) {
		e164 := ValidateE164(candidate)
		if e164 == "" {
			continue
		}
		if _, dup := seen[e164]; dup {
			continue
		}
		seen[e164] = struct{}{}
		numbers = append(numbers, e164)
	}

	return numbers
}

// ValidateE164 parses one raw number and returns its E.164 form, or an
// empty string when no region hint yields a valid number.
func ValidateE164(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if strings.HasPrefix(raw, "+") {
		if parsed, err := phonenumbers.Parse(raw, ""); err == nil && phonenumbers.IsValidNumber(parsed) {
			return phonenumbers.Format(parsed, phonenumbers.E164)
		}
		return ""
	}

	for _, region := range regionHints {
		parsed, err := phonenumbers.Parse(raw, region)
		if err != nil {
			continue
		}
		if phonenumbers.IsValidNumber(parsed) {
			return phonenumbers.Format(parsed, phonenumbers.E164)
		}
	}

	return ""
}

// HasAddressSignal reports whether the text mentions address-like keywords.
// Cheap pre-signal only; the classifier decides whether an address was
// actually shared.
func HasAddressSignal(text string) bool {
	lower := strings.ToLower(text)
	for _, keyword := range addressKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
