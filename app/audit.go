// Package app contains the AuditRecorder that persists role applications.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/artpar/traits/core/events"
	"github.com/artpar/traits/ports"
)

// AuditRecorder stores an ApplicationRecord for every role.applied event.
type AuditRecorder struct {
	store  ports.ApplicationStore
	ids    ports.IDGenerator
	clock  ports.Clock
	logger zerolog.Logger
}

// NewAuditRecorder creates a new audit recorder.
func NewAuditRecorder(
	store ports.ApplicationStore,
	ids ports.IDGenerator,
	clock ports.Clock,
	logger zerolog.Logger,
) *AuditRecorder {
	return &AuditRecorder{
		store:  store,
		ids:    ids,
		clock:  clock,
		logger: logger,
	}
}

// Subscribe attaches the recorder to bus.
func (a *AuditRecorder) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.RoleApplied, a.Handle)
}

// Handle converts an applied event into a stored record.
func (a *AuditRecorder) Handle(ctx context.Context, event events.Event) error {
	if event.Name != events.RoleApplied {
		return nil
	}

	rec := ports.ApplicationRecord{
		ID:       a.ids.New(),
		Base:     event.Class,
		Result:   stringValue(event.Data["result"]),
		Roles:    append([]string(nil), event.Roles...),
		Applied:  stringsValue(event.Data["applied"]),
		Modified: stringsValue(event.Data["modified"]),
		At:       a.clock.Now(),
	}

	if err := a.store.Record(ctx, rec); err != nil {
		return fmt.Errorf("record application %s: %w", rec.ID, err)
	}

	a.logger.Debug().
		Str("id", rec.ID).
		Str("class", rec.Base).
		Str("result", rec.Result).
		Msg("application recorded")
	return nil
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func stringsValue(v any) []string {
	s, _ := v.([]string)
	return append([]string{}, s...)
}
