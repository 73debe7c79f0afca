package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smallbiznis/calendar-bridge/internal/adapter/calendar"
	"github.com/smallbiznis/calendar-bridge/internal/config"
	"github.com/smallbiznis/calendar-bridge/internal/domain"
	"github.com/smallbiznis/calendar-bridge/internal/domain/oauth"
)

// AccessTokenSource yields a usable access token for an identity.
type AccessTokenSource interface {
	AccessToken(ctx context.Context, identity string) (string, error)
}

// EventService validates event requests and forwards them to the calendar
// provider with the identity's current access token.
type EventService struct {
	tokens  AccessTokenSource
	gateway calendar.Gateway
	loc     *time.Location
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewEventService constructs the event service.
func NewEventService(tokens AccessTokenSource, gateway calendar.Gateway, cfg config.Config, logger *zap.Logger) (*EventService, error) {
	loc := time.UTC
	if name := strings.TrimSpace(cfg.CalendarTimeZone); name != "" {
		var err error
		if loc, err = time.LoadLocation(name); err != nil {
			return nil, fmt.Errorf("load time zone: %w", err)
		}
	}
	if logger == nil {
		logger = zap.L()
	}
	return &EventService{
		tokens:  tokens,
		gateway: gateway,
		loc:     loc,
		logger:  logger,
		tracer:  otel.Tracer("github.com/smallbiznis/calendar-bridge/internal/service"),
	}, nil
}

func (s *EventService) CreateEvent(ctx context.Context, identity string, req domain.EventRequest) (json.RawMessage, error) {
	ctx, span := s.tracer.Start(ctx, "EventService.CreateEvent")
	defer span.End()

	event, err := calendar.NewEvent(req, s.loc)
	if err != nil {
		return nil, err
	}
	token, err := s.tokens.AccessToken(ctx, identity)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	out, err := s.gateway.CreateEvent(ctx, token, event)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.logger.Info("event created", zap.String("identity", identity))
	return out, nil
}

func (s *EventService) UpdateEvent(ctx context.Context, identity, eventID string, req domain.EventRequest) (json.RawMessage, error) {
	ctx, span := s.tracer.Start(ctx, "EventService.UpdateEvent")
	defer span.End()

	if strings.TrimSpace(eventID) == "" {
		return nil, fmt.Errorf("event id required: %w", oauth.ErrInvalidRequest)
	}
	event, err := calendar.NewEvent(req, s.loc)
	if err != nil {
		return nil, err
	}
	token, err := s.tokens.AccessToken(ctx, identity)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	out, err := s.gateway.UpdateEvent(ctx, token, eventID, event)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.logger.Info("event updated", zap.String("identity", identity), zap.String("event_id", eventID))
	return out, nil
}

func (s *EventService) DeleteEvent(ctx context.Context, identity, eventID string) error {
	ctx, span := s.tracer.Start(ctx, "EventService.DeleteEvent")
	defer span.End()

	if strings.TrimSpace(eventID) == "" {
		return fmt.Errorf("event id required: %w", oauth.ErrInvalidRequest)
	}
	token, err := s.tokens.AccessToken(ctx, identity)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := s.gateway.DeleteEvent(ctx, token, eventID); err != nil {
		span.RecordError(err)
		return err
	}
	s.logger.Info("event deleted", zap.String("identity", identity), zap.String("event_id", eventID))
	return nil
}
