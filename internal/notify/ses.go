package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/unclebandit/campaign-dispatch/internal/gateway"
	"github.com/unclebandit/campaign-dispatch/internal/model"
)

// SESNotifier mails reports from a fixed service address.
type SESNotifier struct {
	client gateway.SESAPI
	From   string
}

func NewSESNotifier(client gateway.SESAPI, from string) *SESNotifier {
	return &SESNotifier{client: client, From: from}
}

func (n *SESNotifier) Notify(ctx context.Context, user *model.User, subject, body string) error {
	if n.From == "" {
		return errors.New("notifier from address is not configured")
	}
	if user.Email == "" {
		return fmt.Errorf("user %d has no email address", user.ID)
	}

	_, err := n.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.From),
		Destination:      &types.Destination{ToAddresses: []string{user.Email}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses notify user %d: %w", user.ID, err)
	}
	return nil
}

var _ Notifier = (*SESNotifier)(nil)
