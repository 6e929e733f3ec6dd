// Package bot implements the Telegram webhook surface: the two-step
// dialog that collects a shift start time and an odometer reading, then
// replies with the generated waybill photo.
package bot

// Update is an incoming Telegram webhook payload. Only message updates
// are handled; everything else is acknowledged and dropped.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message is the subset of the Telegram message object the dialog needs.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

// Chat identifies where replies go.
type Chat struct {
	ID int64 `json:"id"`
}

// User identifies the driver; templates and sessions are keyed by ID.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}
