package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campaign-dispatch/internal/model"
)

type fakeSES struct {
	err   error
	input *sesv2.SendEmailInput
}

func (f *fakeSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestSESGateway(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want OutcomeKind
	}{
		{"sent", nil, Success},
		{"throttled", &types.TooManyRequestsException{Message: aws.String("Maximum sending rate exceeded.")}, RateLimited},
		{"quota", &types.LimitExceededException{Message: aws.String("Daily message quota exceeded.")}, RateLimited},
		{"paused account", &types.SendingPausedException{Message: aws.String("Sending paused")}, RateLimited},
		{"rejected", &types.MessageRejected{Message: aws.String("Email address is not verified.")}, RecipientFailed},
		{"network", errors.New("dial tcp: connection refused"), RecipientFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeSES{err: tt.err}
			g := NewSESGateway(client, nil)

			out := g.Send(context.Background(), testUser, testLead, testMsg)
			assert.Equal(t, tt.want, out.Kind)

			require.NotNil(t, client.input)
			assert.Equal(t, "owner@example.com", aws.ToString(client.input.FromEmailAddress))
			assert.Equal(t, []string{"ann@example.com"}, client.input.Destination.ToAddresses)
			assert.Contains(t, string(client.input.Content.Raw.Data), "Hi Ann")
		})
	}
}

func TestComposerAttachments(t *testing.T) {
	c := NewComposer(nil)
	msg := testMsg
	msg.Attachments = []model.Attachment{{Filename: "brochure.pdf", ContentType: "application/pdf", Content: []byte("%PDF-1.4")}}

	raw, err := c.Raw(testUser, testLead, msg)
	require.NoError(t, err)
	s := string(raw)
	assert.Contains(t, s, "brochure.pdf")
	assert.Contains(t, s, "application/pdf")
	assert.True(t, strings.Contains(s, "multipart/mixed"))
}

func TestComposerRejectsBadInput(t *testing.T) {
	c := NewComposer(nil)

	_, err := c.Compose(testUser, model.Lead{Email: "not an address"}, testMsg)
	assert.Error(t, err)

	_, err = c.Compose(testUser, testLead, Message{TemplateHTML: "{% if x %}"})
	assert.Error(t, err)
}

func TestSimulatedGateway(t *testing.T) {
	ok := NewSimulatedGateway(false, nil)
	assert.Equal(t, Success, ok.Send(context.Background(), testUser, testLead, testMsg).Kind)

	limited := NewSimulatedGateway(true, nil)
	out := limited.Send(context.Background(), testUser, testLead, testMsg)
	assert.Equal(t, RateLimited, out.Kind)
	assert.Equal(t, 403, out.Code)
	assert.Equal(t, "Daily Limit Exceeded", out.Reason)

	bad := ok.Send(context.Background(), testUser, model.Lead{Email: "nope"}, testMsg)
	assert.Equal(t, RecipientFailed, bad.Kind)
}

func TestWithTimeout(t *testing.T) {
	slow := Func(func(ctx context.Context, user *model.User, lead model.Lead, msg Message) Outcome {
		select {
		case <-ctx.Done():
			return Failed(0, "cancelled")
		case <-time.After(time.Second):
			return Sent()
		}
	})

	out := WithTimeout(slow, 20*time.Millisecond).Send(context.Background(), testUser, testLead, testMsg)
	assert.Equal(t, RecipientFailed, out.Kind)
	assert.Contains(t, out.Reason, "timed out")

	fast := Func(func(ctx context.Context, user *model.User, lead model.Lead, msg Message) Outcome {
		return Limited(429, "slow down")
	})
	out = WithTimeout(fast, time.Second).Send(context.Background(), testUser, testLead, testMsg)
	assert.Equal(t, RateLimited, out.Kind)

	// zero disables the wrapper
	assert.IsType(t, Func(nil), WithTimeout(fast, 0))
}
