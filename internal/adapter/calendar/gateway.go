package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smallbiznis/calendar-bridge/internal/config"
	"github.com/smallbiznis/calendar-bridge/internal/domain"
	"github.com/smallbiznis/calendar-bridge/internal/domain/oauth"
)

// Gateway forwards event operations to the calendar provider on behalf of
// the user owning accessToken. Successful calls return the provider's event
// representation unchanged.
type Gateway interface {
	CreateEvent(ctx context.Context, accessToken string, event Event) (json.RawMessage, error)
	UpdateEvent(ctx context.Context, accessToken, eventID string, event Event) (json.RawMessage, error)
	DeleteEvent(ctx context.Context, accessToken, eventID string) error
}

// Event is a validated EventRequest with resolved times.
type Event struct {
	Subject   string
	Content   string
	Start     time.Time
	End       time.Time
	Attendees []domain.Attendee
	// AttendeesSet is false when the caller omitted attendees entirely.
	AttendeesSet  bool
	OnlineMeeting *bool
}

// Online reports whether an online meeting was requested.
func (e Event) Online() bool {
	return e.OnlineMeeting != nil && *e.OnlineMeeting
}

var wallClockLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTime accepts RFC 3339 timestamps or offset-less wall-clock times.
// Wall-clock values are read in loc; all results are expressed in loc.
func ParseTime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time: %w", oauth.ErrInvalidRequest)
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range wallClockLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q: %w", value, oauth.ErrInvalidRequest)
}

// NewEvent validates req and resolves its times in loc.
func NewEvent(req domain.EventRequest, loc *time.Location) (Event, error) {
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		return Event{}, fmt.Errorf("subject required: %w", oauth.ErrInvalidRequest)
	}
	start, err := ParseTime(req.StartTime, loc)
	if err != nil {
		return Event{}, fmt.Errorf("start_time: %w", err)
	}
	end, err := ParseTime(req.EndTime, loc)
	if err != nil {
		return Event{}, fmt.Errorf("end_time: %w", err)
	}
	if end.Before(start) {
		return Event{}, fmt.Errorf("end_time before start_time: %w", oauth.ErrInvalidRequest)
	}

	attendees := make([]domain.Attendee, 0, len(req.Attendees))
	for _, a := range req.Attendees {
		email := strings.TrimSpace(a.Email)
		if email == "" {
			return Event{}, fmt.Errorf("attendee email required: %w", oauth.ErrInvalidRequest)
		}
		attendees = append(attendees, domain.Attendee{Email: email})
	}

	return Event{
		Subject:       subject,
		Content:       req.ContentOrEmpty(),
		Start:         start,
		End:           end,
		Attendees:     attendees,
		AttendeesSet:  req.Attendees != nil,
		OnlineMeeting: req.IsOnlineMeeting,
	}, nil
}

// NewGateway returns the gateway for the configured provider.
func NewGateway(cfg config.Config, client *http.Client, logger *zap.Logger) (Gateway, error) {
	if cfg.OAuthProvider == config.ProviderGoogle {
		return NewGoogleGateway(cfg, client, logger)
	}
	return NewGraphGateway(cfg, client, logger)
}

func loadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", name, err)
	}
	return loc, nil
}
