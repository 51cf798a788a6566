// Package gateway sends one campaign email to one lead through an email
// provider and reports the result as a closed set of outcomes. Each
// provider adapter owns the mapping from its own error shapes to those
// outcomes; callers never inspect provider errors.
package gateway

import (
	"context"
	"fmt"

	"github.com/unclebandit/campaign-dispatch/internal/model"
)

type OutcomeKind int

const (
	Success OutcomeKind = iota
	RateLimited
	RecipientFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case RateLimited:
		return "rate_limited"
	case RecipientFailed:
		return "recipient_failed"
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

// Outcome is the result of one send attempt. Code is the provider status
// code when one was available.
type Outcome struct {
	Kind   OutcomeKind
	Code   int
	Reason string
}

func Sent() Outcome { return Outcome{Kind: Success} }

func Limited(code int, reason string) Outcome {
	return Outcome{Kind: RateLimited, Code: code, Reason: reason}
}

func Failed(code int, reason string) Outcome {
	return Outcome{Kind: RecipientFailed, Code: code, Reason: reason}
}

// Message is the campaign content shared by every lead of a job.
type Message struct {
	Subject      string
	TemplateHTML string
	Attachments  []model.Attachment
}

// Gateway performs a single send attempt on behalf of user.
type Gateway interface {
	Send(ctx context.Context, user *model.User, lead model.Lead, msg Message) Outcome
}

// Func adapts a function to the Gateway interface.
type Func func(ctx context.Context, user *model.User, lead model.Lead, msg Message) Outcome

func (f Func) Send(ctx context.Context, user *model.User, lead model.Lead, msg Message) Outcome {
	return f(ctx, user, lead, msg)
}
