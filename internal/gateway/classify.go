package gateway

import (
	"net/http"
	"regexp"
)

// limitSignature matches provider messages that announce an exhausted
// sending quota, e.g. Gmail's "Daily Limit Exceeded" or SMTP
// "Daily user sending quota exceeded".
var limitSignature = regexp.MustCompile(`(?i)daily (user )?(sending )?(limit|quota)|quota exceeded|rate limit exceeded|too many (messages|requests)`)

// Classify maps a provider status code and message to an outcome.
//
// This is a heuristic. 403 is treated as a quota rejection because that is
// how Gmail reports its daily cap, which also means an unrelated 403 (for
// example a revoked grant) pauses the campaign instead of failing one lead.
// A limit error that matches neither rule degrades to RecipientFailed and
// the batch keeps going.
func Classify(code int, message string) Outcome {
	if code == http.StatusForbidden || code == http.StatusTooManyRequests || limitSignature.MatchString(message) {
		return Limited(code, message)
	}
	return Failed(code, message)
}
