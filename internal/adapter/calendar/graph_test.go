package calendar

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/calendar-bridge/internal/config"
	"github.com/smallbiznis/calendar-bridge/internal/domain"
	"github.com/smallbiznis/calendar-bridge/internal/domain/oauth"
)

type recordedRequest struct {
	method string
	path   string
	auth   string
	body   map[string]any
}

func newGraphServer(t *testing.T, status int, response string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization")}
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			require.NoError(t, json.Unmarshal(raw, &rec.body))
		}
		requests = append(requests, rec)
		if response != "" {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func newGraph(t *testing.T, endpoint string) *GraphGateway {
	t.Helper()
	gw, err := NewGraphGateway(config.Config{GraphAPIEndpoint: endpoint + "/v1.0", CalendarTimeZone: "Asia/Kolkata"}, nil, zap.NewNop())
	require.NoError(t, err)
	return gw
}

func sampleEvent(t *testing.T, attendees []domain.Attendee, online *bool) Event {
	t.Helper()
	content := "<p>agenda</p>"
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	event, err := NewEvent(domain.EventRequest{
		Subject:         "Planning",
		Content:         &content,
		StartTime:       "2025-03-01T10:00:00",
		EndTime:         "2025-03-01T11:00:00",
		Attendees:       attendees,
		IsOnlineMeeting: online,
	}, loc)
	require.NoError(t, err)
	return event
}

func TestGraphCreateEvent(t *testing.T) {
	srv, requests := newGraphServer(t, http.StatusCreated, `{"id":"evt-1","subject":"Planning"}`)
	gw := newGraph(t, srv.URL)

	online := true
	out, err := gw.CreateEvent(context.Background(), "tok", sampleEvent(t, []domain.Attendee{{Email: "bob@example.com"}}, &online))
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"evt-1","subject":"Planning"}`, string(out))

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	require.Equal(t, http.MethodPost, req.method)
	require.Equal(t, "/v1.0/me/events", req.path)
	require.Equal(t, "Bearer tok", req.auth)
	require.Equal(t, "Planning", req.body["subject"])
	require.Equal(t, map[string]any{"contentType": "HTML", "content": "<p>agenda</p>"}, req.body["body"])
	require.Equal(t, map[string]any{"dateTime": "2025-03-01T10:00:00", "timeZone": "Asia/Kolkata"}, req.body["start"])
	require.Equal(t, true, req.body["isOnlineMeeting"])
	require.Equal(t, []any{map[string]any{
		"emailAddress": map[string]any{"address": "bob@example.com", "name": "bob@example.com"},
		"type":         "required",
	}}, req.body["attendees"])
}

func TestGraphCreateDefaults(t *testing.T) {
	srv, requests := newGraphServer(t, http.StatusCreated, `{"id":"evt-2"}`)
	gw := newGraph(t, srv.URL)

	_, err := gw.CreateEvent(context.Background(), "tok", sampleEvent(t, nil, nil))
	require.NoError(t, err)
	body := (*requests)[0].body
	require.Equal(t, false, body["isOnlineMeeting"])
	require.Equal(t, []any{}, body["attendees"])
}

func TestGraphUpdateOmitsUnsuppliedFields(t *testing.T) {
	srv, requests := newGraphServer(t, http.StatusOK, `{"id":"evt-1"}`)
	gw := newGraph(t, srv.URL)

	_, err := gw.UpdateEvent(context.Background(), "tok", "evt/1", sampleEvent(t, nil, nil))
	require.NoError(t, err)

	req := (*requests)[0]
	require.Equal(t, http.MethodPatch, req.method)
	require.Equal(t, "/v1.0/me/events/evt/1", req.path)
	require.Contains(t, req.body, "subject")
	require.NotContains(t, req.body, "attendees")
	require.NotContains(t, req.body, "isOnlineMeeting")
}

func TestGraphRejectedRequest(t *testing.T) {
	srv, _ := newGraphServer(t, http.StatusUnauthorized, `{"error":{"code":"InvalidAuthenticationToken"}}`)
	gw := newGraph(t, srv.URL)

	_, err := gw.CreateEvent(context.Background(), "tok", sampleEvent(t, nil, nil))
	require.ErrorIs(t, err, oauth.ErrGatewayFailure)
}

func TestGraphDeleteRequires204(t *testing.T) {
	srv, requests := newGraphServer(t, http.StatusNoContent, "")
	gw := newGraph(t, srv.URL)
	require.NoError(t, gw.DeleteEvent(context.Background(), "tok", "evt-1"))
	require.Equal(t, http.MethodDelete, (*requests)[0].method)

	srvOK, _ := newGraphServer(t, http.StatusOK, `{}`)
	gw = newGraph(t, srvOK.URL)
	require.ErrorIs(t, gw.DeleteEvent(context.Background(), "tok", "evt-1"), oauth.ErrGatewayFailure)

	require.ErrorIs(t, gw.DeleteEvent(context.Background(), "tok", " "), oauth.ErrInvalidRequest)
}
