package checkout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/checkout-pricing/internal/obs"
	"github.com/noah-isme/checkout-pricing/internal/pricing"
)

// ErrInvalidQuantity is returned when a scan carries a non-positive quantity.
var ErrInvalidQuantity = errors.New("quantity must be positive")

// CatalogSource yields the catalog a session is priced against.
type CatalogSource interface {
	Snapshot(ctx context.Context) (*pricing.Catalog, error)
}

// Receipt is a priced view of a session.
type Receipt struct {
	SessionID string          `json:"sessionId"`
	Lines     []pricing.Line  `json:"lines"`
	Units     int             `json:"units"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Total     pricing.Money   `json:"totalCents"`
	Display   string          `json:"total"`
	Closed    bool            `json:"closed"`
}

// Service runs checkout sessions: open, scan, quote and close.
type Service struct {
	Catalog CatalogSource
	Store   Store
	Strict  bool
	TTL     time.Duration
	Now     func() time.Time
	Logger  zerolog.Logger
	Metrics *obs.CheckoutMetrics
}

var tracer = obs.Tracer("checkout")

func (s *Service) ttl() time.Duration {
	if s.TTL <= 0 {
		return 30 * time.Minute
	}
	return s.TTL
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) start(ctx context.Context, name, id string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("checkout.session_id", id)))
}

// Open starts an empty session.
func (s *Service) Open(ctx context.Context) (Session, error) {
	now := s.now().UTC()
	sess := Session{
		ID:        uuid.NewString(),
		Items:     pricing.Cart{},
		OpenedAt:  now,
		ExpiresAt: now.Add(s.ttl()),
	}
	if err := s.Store.Create(ctx, sess, s.ttl()); err != nil {
		return Session{}, err
	}
	if s.Metrics != nil {
		s.Metrics.Sessions.Inc()
	}
	s.Logger.Info().Str("session_id", sess.ID).Msg("checkout opened")
	return sess, nil
}

// Get returns the session without pricing it.
func (s *Service) Get(ctx context.Context, id string) (Session, error) {
	return s.Store.Get(ctx, id)
}

// Scan adds qty units of sku. Unknown identifiers are accepted unless strict.
func (s *Service) Scan(ctx context.Context, id, sku string, qty int) (Session, error) {
	sku = strings.TrimSpace(sku)
	if qty <= 0 {
		return Session{}, ErrInvalidQuantity
	}
	cat, err := s.Catalog.Snapshot(ctx)
	if err != nil {
		return Session{}, err
	}
	_, known := cat.Get(sku)
	if !known && s.Strict {
		return Session{}, fmt.Errorf("scanned %q: %w", sku, pricing.ErrUnknownIdentifier)
	}

	now := s.now().UTC()
	sess, err := s.Store.Update(ctx, id, s.ttl(), func(sess *Session) error {
		if sess.Closed() {
			return ErrSessionClosed
		}
		sess.Items.Add(sku, qty)
		sess.ExpiresAt = now.Add(s.ttl())
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	if s.Metrics != nil {
		s.Metrics.Scans.WithLabelValues(strconv.FormatBool(known)).Add(float64(qty))
	}
	evt := s.Logger.Debug().Str("session_id", id).Str("sku", sku).Int("qty", qty)
	if !known {
		evt = evt.Bool("unknown", true)
	}
	evt.Msg("item scanned")
	return sess, nil
}

// Quote prices the session as it stands. The session is not modified.
func (s *Service) Quote(ctx context.Context, id string) (Receipt, error) {
	ctx, span := s.start(ctx, "checkout.Quote", id)
	defer span.End()

	sess, err := s.Store.Get(ctx, id)
	if err != nil {
		return Receipt{}, s.fail(span, "quote", err)
	}
	receipt, err := s.price(ctx, sess)
	if err != nil {
		return Receipt{}, s.fail(span, "quote", err)
	}
	s.succeed(span, "quote", receipt)
	return receipt, nil
}

// Close prices the session one last time and freezes it. A session whose
// cart cannot be priced stays open.
func (s *Service) Close(ctx context.Context, id string) (Receipt, error) {
	ctx, span := s.start(ctx, "checkout.Close", id)
	defer span.End()

	var receipt Receipt
	now := s.now().UTC()
	_, err := s.Store.Update(ctx, id, s.ttl(), func(sess *Session) error {
		if sess.Closed() {
			return ErrSessionClosed
		}
		r, err := s.price(ctx, *sess)
		if err != nil {
			return err
		}
		sess.ClosedAt = &now
		r.Closed = true
		receipt = r
		return nil
	})
	if err != nil {
		return Receipt{}, s.fail(span, "close", err)
	}
	if s.Metrics != nil {
		s.Metrics.Sessions.Dec()
		s.Metrics.TotalCents.Observe(float64(receipt.Total))
	}
	s.succeed(span, "close", receipt)
	s.Logger.Info().
		Str("session_id", id).
		Int("units", receipt.Units).
		Int64("total_cents", receipt.Total).
		Msg("checkout closed")
	return receipt, nil
}

func (s *Service) price(ctx context.Context, sess Session) (Receipt, error) {
	cat, err := s.Catalog.Snapshot(ctx)
	if err != nil {
		return Receipt{}, err
	}
	q, err := pricing.Compute(cat, sess.Items, pricing.WithStrict(s.Strict))
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{
		SessionID: sess.ID,
		Lines:     q.Lines,
		Units:     sess.Items.Units(),
		Subtotal:  q.Subtotal,
		Total:     q.Total,
		Display:   pricing.FromCents(q.Total).StringFixed(2),
		Closed:    sess.Closed(),
	}, nil
}

func (s *Service) fail(span trace.Span, stage string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if s.Metrics != nil {
		s.Metrics.Quotes.WithLabelValues(stage, "error").Inc()
	}
	return err
}

func (s *Service) succeed(span trace.Span, stage string, r Receipt) {
	span.SetAttributes(
		attribute.Int("checkout.units", r.Units),
		attribute.Int64("checkout.total_cents", r.Total),
	)
	if s.Metrics != nil {
		s.Metrics.Quotes.WithLabelValues(stage, "ok").Inc()
	}
}
