package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/smallbiznis/calendar-bridge/internal/config"
	"github.com/smallbiznis/calendar-bridge/internal/domain/oauth"
)

// GoogleGateway manages events through the Google Calendar API.
type GoogleGateway struct {
	calendarID string
	endpoint   string
	client     *http.Client
	loc        *time.Location
	logger     *zap.Logger
	requestID  func() string
}

var _ Gateway = (*GoogleGateway)(nil)

// NewGoogleGateway constructs a gateway for cfg.GoogleCalendarID.
func NewGoogleGateway(cfg config.Config, client *http.Client, logger *zap.Logger) (*GoogleGateway, error) {
	loc, err := loadLocation(cfg.CalendarTimeZone)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPClientTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if logger == nil {
		logger = zap.L()
	}
	calendarID := strings.TrimSpace(cfg.GoogleCalendarID)
	if calendarID == "" {
		calendarID = "primary"
	}
	return &GoogleGateway{
		calendarID: calendarID,
		client:     client,
		loc:        loc,
		logger:     logger,
		requestID:  uuid.NewString,
	}, nil
}

// WithEndpoint points the gateway at a different API root.
func (g *GoogleGateway) WithEndpoint(endpoint string) *GoogleGateway {
	g.endpoint = endpoint
	return g
}

// statusRecorder keeps the status code of the last response it carried.
type statusRecorder struct {
	next   http.RoundTripper
	status int
}

func (r *statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := r.next.RoundTrip(req)
	if resp != nil {
		r.status = resp.StatusCode
	}
	return resp, err
}

// service builds a client for one call. A non-nil recorder observes the
// raw responses.
func (g *GoogleGateway) service(ctx context.Context, accessToken string, recorder *statusRecorder) (*gcal.Service, error) {
	client := g.client
	if recorder != nil {
		wrapped := *g.client
		recorder.next = wrapped.Transport
		if recorder.next == nil {
			recorder.next = http.DefaultTransport
		}
		wrapped.Transport = recorder
		client = &wrapped
	}
	base := context.WithValue(ctx, oauth2.HTTPClient, client)
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(base, source))}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar service: %w: %w", oauth.ErrGatewayFailure, err)
	}
	return svc, nil
}

func (g *GoogleGateway) event(event Event, create bool) *gcal.Event {
	out := &gcal.Event{
		Summary:     event.Subject,
		Description: event.Content,
		Start:       g.dateTime(event.Start),
		End:         g.dateTime(event.End),
	}
	if create || event.AttendeesSet {
		out.Attendees = make([]*gcal.EventAttendee, 0, len(event.Attendees))
		for _, a := range event.Attendees {
			out.Attendees = append(out.Attendees, &gcal.EventAttendee{Email: a.Email})
		}
		if len(out.Attendees) == 0 {
			out.NullFields = append(out.NullFields, "Attendees")
		}
	}
	if event.Online() {
		out.ConferenceData = &gcal.ConferenceData{
			CreateRequest: &gcal.CreateConferenceRequest{
				RequestId:             g.requestID(),
				ConferenceSolutionKey: &gcal.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		}
	}
	return out
}

func (g *GoogleGateway) dateTime(t time.Time) *gcal.EventDateTime {
	return &gcal.EventDateTime{DateTime: t.In(g.loc).Format(time.RFC3339), TimeZone: g.loc.String()}
}

// CreateEvent inserts an event; an online meeting becomes a Meet conference.
func (g *GoogleGateway) CreateEvent(ctx context.Context, accessToken string, event Event) (json.RawMessage, error) {
	svc, err := g.service(ctx, accessToken, nil)
	if err != nil {
		return nil, err
	}
	call := svc.Events.Insert(g.calendarID, g.event(event, true)).Context(ctx)
	if event.Online() {
		call = call.ConferenceDataVersion(1)
	}
	created, err := call.Do()
	if err != nil {
		return nil, g.failure("insert", err)
	}
	return marshalEvent(created)
}

// UpdateEvent patches an event. Removing an existing conference is not
// supported; a false online flag leaves it as is.
func (g *GoogleGateway) UpdateEvent(ctx context.Context, accessToken, eventID string, event Event) (json.RawMessage, error) {
	if strings.TrimSpace(eventID) == "" {
		return nil, fmt.Errorf("event id required: %w", oauth.ErrInvalidRequest)
	}
	svc, err := g.service(ctx, accessToken, nil)
	if err != nil {
		return nil, err
	}
	call := svc.Events.Patch(g.calendarID, eventID, g.event(event, false)).Context(ctx)
	if event.Online() {
		call = call.ConferenceDataVersion(1)
	}
	updated, err := call.Do()
	if err != nil {
		return nil, g.failure("patch", err)
	}
	return marshalEvent(updated)
}

// DeleteEvent removes an event. Only 204 No Content counts as success.
func (g *GoogleGateway) DeleteEvent(ctx context.Context, accessToken, eventID string) error {
	if strings.TrimSpace(eventID) == "" {
		return fmt.Errorf("event id required: %w", oauth.ErrInvalidRequest)
	}
	recorder := &statusRecorder{}
	svc, err := g.service(ctx, accessToken, recorder)
	if err != nil {
		return err
	}
	if err := svc.Events.Delete(g.calendarID, eventID).Context(ctx).Do(); err != nil {
		return g.failure("delete", err)
	}
	if recorder.status != http.StatusNoContent {
		g.logger.Warn("google calendar delete returned unexpected status",
			zap.String("calendar_id", g.calendarID),
			zap.Int("status", recorder.status),
		)
		return fmt.Errorf("google delete event: status %d: %w", recorder.status, oauth.ErrGatewayFailure)
	}
	return nil
}

func (g *GoogleGateway) failure(op string, err error) error {
	fields := []zap.Field{zap.String("operation", op), zap.String("calendar_id", g.calendarID)}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		fields = append(fields, zap.Int("status", apiErr.Code), zap.String("message", apiErr.Message))
		g.logger.Warn("google calendar request rejected", fields...)
		return fmt.Errorf("google %s event: status %d: %w", op, apiErr.Code, oauth.ErrGatewayFailure)
	}
	g.logger.Warn("google calendar request failed", append(fields, zap.Error(err))...)
	return fmt.Errorf("google %s event: %w: %w", op, oauth.ErrGatewayFailure, err)
}

func marshalEvent(event *gcal.Event) (json.RawMessage, error) {
	encoded, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return json.RawMessage(encoded), nil
}
