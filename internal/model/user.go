// internal/model/user.go
package model

// User owns campaigns. The credential fields are consumed by whichever
// send gateway is configured; the worker never modifies them.
type User struct {
	ID           int    `db:"id" json:"id"`
	Email        string `db:"email" json:"email"`
	SenderName   string `db:"sender_name" json:"sender_name"`
	RefreshToken string `db:"refresh_token" json:"-"`
	SMTPUsername string `db:"smtp_username" json:"-"`
	SMTPPassword string `db:"smtp_password" json:"-"`
}
