// Package classify maps errors onto the sync failure taxonomy.
//
// Errors raised inside this module carry an explicit Kind (see Tagged);
// the pattern table is the fallback for untyped errors crossing the
// HTTP-client or database-driver boundary.
package classify

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Kind is a failure category.
type Kind string

const (
	KindRateLimit      Kind = "RATE_LIMIT"
	KindAuthentication Kind = "AUTHENTICATION"
	KindNetwork        Kind = "NETWORK"
	KindDatabase       Kind = "DATABASE"
	KindValidation     Kind = "VALIDATION"
	KindExternalAPI    Kind = "EXTERNAL_API"
	KindUnknown        Kind = "UNKNOWN"
)

// Classification is the result of classifying one error.
type Classification struct {
	Kind        Kind
	Recoverable bool
	RetryAfter  time.Duration // zero when the kind carries no retry hint
	UserMessage string
}

// userMessages holds the fixed per-kind text surfaced to callers instead of
// raw error strings.
var userMessages = map[Kind]string{
	KindRateLimit:      "Rate limit exceeded. Please wait a moment and try again.",
	KindAuthentication: "Authentication failed. Please check your Pipedrive API key.",
	KindNetwork:        "Network error. Please check your connection and try again.",
	KindDatabase:       "A database error occurred. Please try again shortly.",
	KindValidation:     "Some data failed validation and was skipped. Please review it.",
	KindExternalAPI:    "The CRM service returned an error. Please try again later.",
	KindUnknown:        "An unexpected error occurred. Please try again.",
}

// kindPatterns is the ordered fallback matching table. Order is canonical:
// terminal kinds (authentication, validation) are tested before the
// retryable ones so that e.g. an invalid token reported over a flaky
// connection still classifies as AUTHENTICATION.
var kindPatterns = []struct {
	kind     Kind
	patterns []*regexp.Regexp
}{
	{KindAuthentication, compileAll(
		`(?i)unauthori[sz]ed`,
		`(?i)invalid.{0,20}(api )?(token|key)`,
		`(?i)authentication`,
		`(?i)401`,
		`(?i)forbidden`,
	)},
	{KindValidation, compileAll(
		`(?i)validation`,
		`(?i)invalid (input|data|format)`,
		`(?i)required field`,
		`(?i)must be`,
	)},
	{KindRateLimit, compileAll(
		`(?i)rate limit`,
		`(?i)too many requests`,
		`(?i)429`,
		`(?i)quota exceeded`,
	)},
	{KindNetwork, compileAll(
		`(?i)network`,
		`(?i)timeout`,
		`(?i)timed? out`,
		`(?i)connection (refused|reset|closed)`,
		`(?i)no such host`,
		`(?i)econn`,
		`(?i)broken pipe`,
	)},
	{KindDatabase, compileAll(
		`(?i)database`,
		`(?i)sql`,
		`(?i)constraint`,
		`(?i)duplicate key`,
		`(?i)deadlock`,
		`(?i)transaction`,
	)},
	{KindExternalAPI, compileAll(
		`(?i)pipedrive`,
		`(?i)external api`,
		`(?i)bad gateway`,
		`(?i)service unavailable`,
		`\b50[0-9]\b`,
	)},
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

// Classify derives the classification for err. A nil error classifies as
// UNKNOWN (callers should not pass nil).
func Classify(err error) Classification {
	if err == nil {
		return build(KindUnknown)
	}

	var tagged *Tagged
	if errors.As(err, &tagged) {
		return build(tagged.Kind)
	}

	msg := err.Error()
	for _, entry := range kindPatterns {
		for _, re := range entry.patterns {
			if re.MatchString(msg) {
				return build(entry.kind)
			}
		}
	}
	return build(KindUnknown)
}

func build(kind Kind) Classification {
	c := Classification{
		Kind:        kind,
		Recoverable: kind != KindAuthentication && kind != KindValidation,
		UserMessage: userMessages[kind],
	}
	switch kind {
	case KindRateLimit:
		c.RetryAfter = 60 * time.Second
	case KindNetwork:
		c.RetryAfter = 5 * time.Second
	}
	return c
}

// Tagged is an error constructed with an explicit kind, skipping the
// pattern table entirely.
type Tagged struct {
	Kind Kind
	Msg  string
	Err  error
}

// NewTagged wraps err with an explicit classification kind.
func NewTagged(kind Kind, msg string, err error) *Tagged {
	return &Tagged{Kind: kind, Msg: msg, Err: err}
}

// Errorf builds a tagged error from a format string.
func Errorf(kind Kind, format string, args ...any) *Tagged {
	return &Tagged{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func (t *Tagged) Error() string {
	if t.Err != nil {
		return fmt.Sprintf("%s: %v", t.Msg, t.Err)
	}
	return t.Msg
}

func (t *Tagged) Unwrap() error { return t.Err }
