package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	"github.com/unclebandit/campaign-dispatch/internal/model"
)

// SESAPI is the subset of the SES v2 client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// sesLimitCodes are SES error codes that mean the account cannot send more right now.
var sesLimitCodes = map[string]bool{
	"TooManyRequestsException": true,
	"LimitExceededException":   true,
	"SendingPausedException":   true,
	"Throttling":               true,
	"ThrottlingException":      true,
}

// SESGateway sends the composed MIME message as SES raw content, from the
// campaign owner's (verified) address.
type SESGateway struct {
	client   SESAPI
	composer *Composer
}

func NewSESGateway(client SESAPI, composer *Composer) *SESGateway {
	if composer == nil {
		composer = NewComposer(nil)
	}
	return &SESGateway{client: client, composer: composer}
}

func (g *SESGateway) Send(ctx context.Context, user *model.User, lead model.Lead, msg Message) Outcome {
	raw, err := g.composer.Raw(user, lead, msg)
	if err != nil {
		return Failed(0, err.Error())
	}

	_, err = g.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(user.Email),
		Destination:      &types.Destination{ToAddresses: []string{lead.Email}},
		Content:          &types.EmailContent{Raw: &types.RawMessage{Data: raw}},
	})
	if err != nil {
		return classifySESError(err)
	}
	return Sent()
}

func classifySESError(err error) Outcome {
	code := 0
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		code = respErr.HTTPStatusCode()
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && sesLimitCodes[apiErr.ErrorCode()] {
		return Limited(code, apiErr.ErrorMessage())
	}
	// a 403 from SES is an auth or identity problem, not a quota
	if code == http.StatusTooManyRequests || limitSignature.MatchString(err.Error()) {
		return Limited(code, err.Error())
	}
	return Failed(code, err.Error())
}
