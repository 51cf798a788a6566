// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrCampaignNotFound is returned when a campaign id does not resolve.
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrUserNotFound is returned when a user id does not resolve.
type ErrUserNotFound struct {
	UserID int
}

func (e *ErrUserNotFound) Error() string {
	return fmt.Sprintf("user with ID %d not found", e.UserID)
}

func NewUserNotFound(id int) error {
	return &ErrUserNotFound{UserID: id}
}

// ValidationError rejects caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ErrInvalidTransition rejects a status write the campaign state machine forbids.
type ErrInvalidTransition struct {
	CampaignID int
	From, To   string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("campaign %d: cannot move from %q to %q", e.CampaignID, e.From, e.To)
}

func NewInvalidTransition(id int, from, to string) error {
	return &ErrInvalidTransition{CampaignID: id, From: from, To: to}
}

// IsInvalidTransition reports whether err is an ErrInvalidTransition.
func IsInvalidTransition(err error) bool {
	var t *ErrInvalidTransition
	return errors.As(err, &t)
}

// ErrCampaignBusy means another worker currently holds the campaign.
var ErrCampaignBusy = errors.New("campaign is being processed by another worker")

// PermanentError marks a job failure that must not be retried by the queue.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the queue drops the job instead of retrying it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	var p *PermanentError
	if errors.As(err, &p) {
		return err
	}
	return &PermanentError{Err: err}
}

// IsNotFound reports whether err is a campaign or user lookup miss.
func IsNotFound(err error) bool {
	var c *ErrCampaignNotFound
	var u *ErrUserNotFound
	return errors.As(err, &c) || errors.As(err, &u)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsPermanent reports whether the queue should give up on a job that
// failed with err. Lookup misses and forbidden status writes are permanent:
// they indicate data inconsistency upstream and retrying will not fix them.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p) || IsNotFound(err) || IsInvalidTransition(err)
}
