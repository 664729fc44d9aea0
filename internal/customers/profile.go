package customers

import "strings"

// Profile records a customer seen through an authenticated session.
type Profile struct {
	CustomerID       string `gorm:"column:customer_id;primaryKey;size:190;not null"`
	Email            string `gorm:"column:customer_email;size:320"`
	DisplayName      string `gorm:"column:customer_name;size:320"`
	FirstSeenSeconds int64  `gorm:"column:first_seen_s;not null"`
	LastSeenSeconds  int64  `gorm:"column:last_seen_s;not null"`
}

// TableName exposes the table backing customer profiles.
func (Profile) TableName() string {
	return "customer_profiles"
}

// View is the API shape of a profile.
type View struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	FirstSeen int64  `json:"firstSeen"`
}

func (p Profile) view() View {
	return View{ID: p.CustomerID, Email: p.Email, Name: p.DisplayName, FirstSeen: p.FirstSeenSeconds}
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
