package model

import "time"

// User stores Telegram operator metadata and the autobot session bound to it.
type User struct {
	ID         uint  `gorm:"primaryKey"`
	TelegramID int64 `gorm:"uniqueIndex"`
	FirstName  string
	LastName   string
	Username   string
	APISession string
	APIUser    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// LoggedIn reports whether the operator holds an autobot session.
func (u User) LoggedIn() bool {
	return u.APISession != ""
}

// AccountUser is the autobot account as returned by /api/me and /login.
type AccountUser struct {
	ID        uint      `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}
