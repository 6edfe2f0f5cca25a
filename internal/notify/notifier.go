package notify

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"backend-safetrack/internal/contacts"
	"backend-safetrack/internal/link"
	"backend-safetrack/internal/metrics"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const DefaultTimeout = 10 * time.Second

type Route int

const (
	RouteNone Route = iota
	RouteTelegram
	RouteWhatsApp
)

func (r Route) String() string {
	switch r {
	case RouteTelegram:
		return "telegram"
	case RouteWhatsApp:
		return "whatsapp"
	default:
		return "none"
	}
}

// Classify picks the delivery route for a contact detail. Phone numbers only qualify
// when they match the single number the WhatsApp API key was issued for.
func Classify(detail, authorizedNumber string) Route {
	if contacts.IsHandle(detail) {
		return RouteTelegram
	}
	if !contacts.IsPhone(detail) {
		return RouteNone
	}
	if authorizedNumber != "" && contacts.Digits(detail) == contacts.Digits(authorizedNumber) {
		return RouteWhatsApp
	}
	return RouteNone
}

type ContactLister interface {
	List(ctx context.Context, ownerID string) ([]contacts.Contact, error)
}

type Config struct {
	// AuthorizedNumber is the local number a contact must match to use WhatsApp.
	AuthorizedNumber string
	// WhatsAppPhone is the international form of AuthorizedNumber.
	WhatsAppPhone string
	Timeout       time.Duration
}

// Result counts eligible contacts and successful dispatches. Eligible == 0 means nobody could be notified.
type Result struct {
	Eligible  int `json:"eligible"`
	Succeeded int `json:"succeeded"`
}

type Notifier struct {
	contacts ContactLister
	telegram Channel
	whatsapp Channel
	cfg      Config
}

func NewNotifier(lister ContactLister, telegram, whatsapp Channel, cfg Config) *Notifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Notifier{
		contacts: lister,
		telegram: telegram,
		whatsapp: whatsapp,
		cfg:      cfg,
	}
}

// Notify sends the tracking link to every eligible contact in parallel. A failed
// dispatch never cancels the others.
func (n *Notifier) Notify(ctx context.Context, ownerID, trackingURL string) (Result, error) {
	list, err := n.contacts.List(ctx, ownerID)
	if err != nil {
		return Result{}, fmt.Errorf("load contacts: %w", err)
	}

	text := link.NotificationText(trackingURL)
	var (
		result    Result
		succeeded atomic.Int64
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range list {
		route := Classify(c.Detail, n.cfg.AuthorizedNumber)

		var (
			ch        Channel
			recipient string
		)
		switch route {
		case RouteTelegram:
			ch, recipient = n.telegram, strings.TrimPrefix(c.Detail, "@")
		case RouteWhatsApp:
			ch, recipient = n.whatsapp, n.cfg.WhatsAppPhone
			if recipient == "" {
				recipient = contacts.Digits(c.Detail)
			}
		}
		if ch == nil {
			log.Debugf("notify: skipping contact %s (%s)", c.Name, route)
			continue
		}

		result.Eligible++
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, n.cfg.Timeout)
			defer cancel()

			if ch.Send(callCtx, recipient, text) {
				succeeded.Add(1)
				metrics.NotificationsTotal.WithLabelValues(route.String(), "ok").Inc()
			} else {
				metrics.NotificationsTotal.WithLabelValues(route.String(), "failed").Inc()
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Succeeded = int(succeeded.Load())
	log.WithFields(log.Fields{
		"owner_id":  ownerID,
		"eligible":  result.Eligible,
		"succeeded": result.Succeeded,
	}).Info("contact notification finished")
	return result, nil
}
