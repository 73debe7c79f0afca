package domain

// Attendee is a required participant of an event.
type Attendee struct {
	Email string `json:"email"`
}

// EventRequest is the caller supplied description of a calendar event.
// Content, Attendees and IsOnlineMeeting are optional; nil means "not supplied".
type EventRequest struct {
	Subject         string     `json:"subject"`
	Content         *string    `json:"content,omitempty"`
	StartTime       string     `json:"start_time"`
	EndTime         string     `json:"end_time"`
	Attendees       []Attendee `json:"attendees,omitempty"`
	IsOnlineMeeting *bool      `json:"is_online_meeting,omitempty"`
}

// ContentOrEmpty returns the HTML body or an empty string.
func (e EventRequest) ContentOrEmpty() string {
	if e.Content == nil {
		return ""
	}
	return *e.Content
}
