package domain

// PolicyDecision is the outcome of gating one tool call. Denials are not
// errors: they are first-class outcomes fed back to the model with a stable
// reason string.
type PolicyDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Allow is the affirmative policy decision.
func Allow() PolicyDecision { return PolicyDecision{Allowed: true} }

// Deny returns a negative decision carrying a short, stable reason code
// usable both for model feedback and for test assertions.
func Deny(reason string) PolicyDecision {
	return PolicyDecision{Allowed: false, Reason: reason}
}
