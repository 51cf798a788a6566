package gateway

import (
	"bytes"
	"fmt"

	"github.com/wneessen/go-mail"

	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/render"
)

// Composer turns campaign content into a personalised MIME message.
type Composer struct {
	Renderer *render.Renderer
}

func NewComposer(r *render.Renderer) *Composer {
	if r == nil {
		r = render.NewRenderer()
	}
	return &Composer{Renderer: r}
}

// Compose renders subject and body for lead and builds the message sent
// from user's address.
func (c *Composer) Compose(user *model.User, lead model.Lead, msg Message) (*mail.Msg, error) {
	subject, err := c.Renderer.Render(msg.Subject, lead)
	if err != nil {
		return nil, fmt.Errorf("subject: %w", err)
	}
	body, err := c.Renderer.Render(msg.TemplateHTML, lead)
	if err != nil {
		return nil, fmt.Errorf("body: %w", err)
	}

	m := mail.NewMsg()
	if user.SenderName != "" {
		err = m.FromFormat(user.SenderName, user.Email)
	} else {
		err = m.From(user.Email)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", user.Email, err)
	}
	if err := m.To(lead.Email); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", lead.Email, err)
	}
	m.Subject(subject)
	m.SetBodyString(mail.TypeTextHTML, body)

	for _, a := range msg.Attachments {
		var opts []mail.FileOption
		if a.ContentType != "" {
			opts = append(opts, mail.WithFileContentType(mail.ContentType(a.ContentType)))
		}
		if err := m.AttachReader(a.Filename, bytes.NewReader(a.Content), opts...); err != nil {
			return nil, fmt.Errorf("attach %s: %w", a.Filename, err)
		}
	}
	return m, nil
}

// Raw returns the RFC 5322 bytes of the composed message.
func (c *Composer) Raw(user *model.User, lead model.Lead, msg Message) ([]byte, error) {
	m, err := c.Compose(user, lead, msg)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write message: %w", err)
	}
	return buf.Bytes(), nil
}
