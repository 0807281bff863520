package enum

type Intent string

const (
	IntentInterested        Intent = "INTERESTED"
	IntentNotInterested     Intent = "NOT_INTERESTED"
	IntentClarification     Intent = "CLARIFICATION"
	IntentContactProvided   Intent = "CONTACT_PROVIDED"
	IntentContinueOverEmail Intent = "CONTINUE_OVER_EMAIL"
	IntentUnclear           Intent = "UNCLEAR"
)

func (t Intent) String() string {
	return string(t)
}

// ParseIntent collapses anything outside the known set to IntentUnclear.
// The classifier is treated as adversarial.
func ParseIntent(s string) Intent {
	switch Intent(s) {
	case IntentInterested, IntentNotInterested, IntentClarification,
		IntentContactProvided, IntentContinueOverEmail:
		return Intent(s)
	}
	return IntentUnclear
}
