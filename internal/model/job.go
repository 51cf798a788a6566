// internal/model/job.go
package model

// Lead is a single recipient plus the merge fields used to personalise
// the template for them.
type Lead struct {
	Email  string            `json:"email"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Attachment content is carried inline; encoding/json base64-encodes it.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType,omitempty"`
	Content     []byte `json:"content"`
}

// Job is the unit delivered by the queue: "send to these leads for this campaign".
//
// Cursor is the position of Leads[0] in the campaign's original lead list.
// A job created by a pause carries the unsent tail and an advanced cursor,
// so log messages and metrics can refer to absolute lead positions.
type Job struct {
	CampaignID   int          `json:"campaignId"`
	Leads        []Lead       `json:"leads"`
	Subject      string       `json:"subject,omitempty"`
	TemplateHTML string       `json:"templateHtml"`
	Attachments  []Attachment `json:"attachments,omitempty"`
	Cursor       int          `json:"cursor"`
}

// Remainder returns the continuation of j starting at lead index k
// (relative to j.Leads). The leads slice is copied so the returned job
// does not alias j.
func (j Job) Remainder(k int) Job {
	if k < 0 {
		k = 0
	}
	if k > len(j.Leads) {
		k = len(j.Leads)
	}
	leads := make([]Lead, len(j.Leads)-k)
	copy(leads, j.Leads[k:])

	next := j
	next.Leads = leads
	next.Cursor = j.Cursor + k
	return next
}
