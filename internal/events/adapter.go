package events

import (
	"context"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/notifyhub/delivery-queue/internal/domain"
)

// Enqueuer accepts a message for delivery. Implemented by service.QueueService.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg domain.NotificationMessage) (string, error)
}

// PreferenceChecker reports whether a user wants notifications of a category.
type PreferenceChecker interface {
	Allow(ctx context.Context, userID string, category Category) (bool, error)
}

// AllowAll is the PreferenceChecker used when no preference service is wired.
type AllowAll struct{}

func (AllowAll) Allow(context.Context, string, Category) (bool, error) { return true, nil }

// Adapter translates domain events into notification messages through the
// dispatch table and hands them to the queue.
type Adapter struct {
	enqueuer Enqueuer
	prefs    PreferenceChecker
	routes   map[Kind]Route
	logger   *zap.Logger
}

func NewAdapter(enqueuer Enqueuer, prefs PreferenceChecker, logger *zap.Logger) *Adapter {
	if prefs == nil {
		prefs = AllowAll{}
	}
	return &Adapter{
		enqueuer: enqueuer,
		prefs:    prefs,
		routes:   DefaultRoutes(),
		logger:   logger,
	}
}

// Build turns an event into a message without enqueuing it.
func (a *Adapter) Build(ev Event) (domain.NotificationMessage, Route, error) {
	route, ok := a.routes[ev.Kind]
	if !ok {
		return domain.NotificationMessage{}, Route{}, errors.Wrapf(domain.ErrUnknownEvent, "%q", ev.Kind)
	}
	if strings.TrimSpace(ev.Email) == "" {
		return domain.NotificationMessage{}, route, domain.ErrInvalidRecipient
	}

	priority := route.Priority
	if route.Escalate != nil {
		priority = route.Escalate(ev.Data)
	}
	return domain.NotificationMessage{
		To:                ev.Email,
		Subject:           route.Subject(ev.Data),
		TemplateName:      route.Template,
		TemplateVariables: route.Variables(ev.Data),
		Priority:          priority,
	}, route, nil
}

// Handle enqueues the notification for ev and returns the queued item id.
// A suppressed notification returns "" and no error; so does inline delivery
// with the queue disabled.
func (a *Adapter) Handle(ctx context.Context, ev Event) (string, error) {
	msg, route, err := a.Build(ev)
	if err != nil {
		return "", err
	}
	log := a.logger.With(
		zap.String("event_id", ev.ID),
		zap.String("kind", string(ev.Kind)),
	)

	if !route.Mandatory && ev.UserID != "" {
		allowed, err := a.prefs.Allow(ctx, ev.UserID, route.Category)
		if err != nil {
			return "", errors.Wrap(err, "check preferences")
		}
		if !allowed {
			log.Info("notification suppressed by user preference",
				zap.String("user_id", ev.UserID),
				zap.String("category", string(route.Category)))
			return "", nil
		}
	}

	id, err := a.enqueuer.Enqueue(ctx, msg)
	if err != nil {
		return "", errors.Wrap(err, "enqueue notification")
	}
	log.Debug("event translated", zap.String("item_id", id), zap.String("template", msg.TemplateName))
	return id, nil
}

// Kinds lists every event kind the adapter understands.
func (a *Adapter) Kinds() []Kind {
	kinds := make([]Kind, 0, len(a.routes))
	for k := range a.routes {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
