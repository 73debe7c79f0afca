package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/smallbiznis/calendar-bridge/internal/config"
	"github.com/smallbiznis/calendar-bridge/internal/domain/oauth"
)

const graphDateTimeLayout = "2006-01-02T15:04:05"

// GraphGateway talks to the Microsoft Graph events API.
type GraphGateway struct {
	endpoint string
	client   *http.Client
	loc      *time.Location
	logger   *zap.Logger
}

var _ Gateway = (*GraphGateway)(nil)

// NewGraphGateway constructs a Graph gateway rooted at cfg.GraphAPIEndpoint.
func NewGraphGateway(cfg config.Config, client *http.Client, logger *zap.Logger) (*GraphGateway, error) {
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
	return &GraphGateway{
		endpoint: strings.TrimRight(cfg.GraphAPIEndpoint, "/"),
		client:   client,
		loc:      loc,
		logger:   logger,
	}, nil
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphEmailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

type graphAttendee struct {
	EmailAddress graphEmailAddress `json:"emailAddress"`
	Type         string            `json:"type"`
}

type graphEvent struct {
	Subject         string           `json:"subject"`
	Body            graphBody        `json:"body"`
	Start           graphDateTime    `json:"start"`
	End             graphDateTime    `json:"end"`
	IsOnlineMeeting *bool            `json:"isOnlineMeeting,omitempty"`
	Attendees       *[]graphAttendee `json:"attendees,omitempty"`
}

func (g *GraphGateway) payload(event Event, create bool) graphEvent {
	out := graphEvent{
		Subject: event.Subject,
		Body:    graphBody{ContentType: "HTML", Content: event.Content},
		Start:   g.dateTime(event.Start),
		End:     g.dateTime(event.End),
	}
	if create || event.OnlineMeeting != nil {
		online := event.Online()
		out.IsOnlineMeeting = &online
	}
	if create || event.AttendeesSet {
		attendees := make([]graphAttendee, 0, len(event.Attendees))
		for _, a := range event.Attendees {
			attendees = append(attendees, graphAttendee{
				EmailAddress: graphEmailAddress{Address: a.Email, Name: a.Email},
				Type:         "required",
			})
		}
		out.Attendees = &attendees
	}
	return out
}

func (g *GraphGateway) dateTime(t time.Time) graphDateTime {
	return graphDateTime{DateTime: t.In(g.loc).Format(graphDateTimeLayout), TimeZone: g.loc.String()}
}

// CreateEvent posts a new event to the user's default calendar.
func (g *GraphGateway) CreateEvent(ctx context.Context, accessToken string, event Event) (json.RawMessage, error) {
	_, body, err := g.do(ctx, http.MethodPost, "/me/events", accessToken, g.payload(event, true))
	if err != nil {
		return nil, err
	}
	return rawJSON(body), nil
}

// UpdateEvent patches an existing event. Attendees and the online meeting
// flag are only sent when the caller supplied them.
func (g *GraphGateway) UpdateEvent(ctx context.Context, accessToken, eventID string, event Event) (json.RawMessage, error) {
	if strings.TrimSpace(eventID) == "" {
		return nil, fmt.Errorf("event id required: %w", oauth.ErrInvalidRequest)
	}
	_, body, err := g.do(ctx, http.MethodPatch, "/me/events/"+url.PathEscape(eventID), accessToken, g.payload(event, false))
	if err != nil {
		return nil, err
	}
	return rawJSON(body), nil
}

// DeleteEvent removes an event. Only 204 No Content counts as success.
func (g *GraphGateway) DeleteEvent(ctx context.Context, accessToken, eventID string) error {
	if strings.TrimSpace(eventID) == "" {
		return fmt.Errorf("event id required: %w", oauth.ErrInvalidRequest)
	}
	status, _, err := g.do(ctx, http.MethodDelete, "/me/events/"+url.PathEscape(eventID), accessToken, nil)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return fmt.Errorf("graph delete event: status %d: %w", status, oauth.ErrGatewayFailure)
	}
	return nil
}

func (g *GraphGateway) do(ctx context.Context, method, path, accessToken string, payload any) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode graph payload: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.endpoint+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build graph request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Warn("graph request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return 0, nil, fmt.Errorf("graph %s %s: %w: %w", method, path, oauth.ErrGatewayFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read graph response: %w: %w", oauth.ErrGatewayFailure, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		g.logger.Warn("graph request rejected",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("error_code", graphErrorCode(body)),
		)
		return resp.StatusCode, body, fmt.Errorf("graph %s %s: status %d: %w", method, path, resp.StatusCode, oauth.ErrGatewayFailure)
	}
	return resp.StatusCode, body, nil
}

func graphErrorCode(body []byte) string {
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	return envelope.Error.Code
}

func rawJSON(body []byte) json.RawMessage {
	if len(bytes.TrimSpace(body)) == 0 || !json.Valid(body) {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(body)
}
