package gateway

import (
	"context"
	"errors"
	"net/textproto"
	"regexp"
	"strconv"

	"github.com/wneessen/go-mail"

	"github.com/unclebandit/campaign-dispatch/internal/model"
)

// SMTPGateway sends through an SMTP relay (smtp.gmail.com by default) with
// the owner's username and app password.
type SMTPGateway struct {
	Host     string
	Port     int
	TLS      mail.TLSPolicy
	composer *Composer
}

func NewSMTPGateway(host string, port int, composer *Composer) *SMTPGateway {
	if composer == nil {
		composer = NewComposer(nil)
	}
	return &SMTPGateway{Host: host, Port: port, TLS: mail.TLSMandatory, composer: composer}
}

func (g *SMTPGateway) Send(ctx context.Context, user *model.User, lead model.Lead, msg Message) Outcome {
	m, err := g.composer.Compose(user, lead, msg)
	if err != nil {
		return Failed(0, err.Error())
	}

	client, err := mail.NewClient(g.Host,
		mail.WithPort(g.Port),
		mail.WithTLSPolicy(g.TLS),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(user.SMTPUsername),
		mail.WithPassword(user.SMTPPassword),
	)
	if err != nil {
		return Failed(0, err.Error())
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return classifySMTPError(err)
	}
	return Sent()
}

var smtpReplyCode = regexp.MustCompile(`\b([45]\d\d)\b`)

// classifySMTPError extracts the SMTP reply code when present. Gmail reports
// its cap as "550 5.4.5 Daily user sending quota exceeded"; the code alone is
// not enough since 550 is also a plain bad-mailbox reply.
func classifySMTPError(err error) Outcome {
	msg := err.Error()
	code := 0
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		code = tpErr.Code
	} else if m := smtpReplyCode.FindStringSubmatch(msg); m != nil {
		code, _ = strconv.Atoi(m[1])
	}

	if limitSignature.MatchString(msg) || code == 421 || code == 454 {
		return Limited(code, msg)
	}
	return Failed(code, msg)
}
