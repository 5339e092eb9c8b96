package checkout

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// feeLookupTimeout is the caller-side timeout for the activation-fee
// lookup against the pricing collaborator.
const feeLookupTimeout = 10 * time.Second

// Resolver turns a selected offer and activation type into a quote: the
// final charge amount, currency, activation fee, and required-field set.
//
// The quote itself is a pure function of its inputs. The activation fee is
// the one asynchronous part: it may call the pricing collaborator and must
// not block the gate, so while the lookup is pending the quote carries the
// FeeCalculating sub-state and payability is suppressed without surfacing
// an error. A failed lookup falls back to a zero fee with a warning; the
// fee is cosmetic to the order summary, not required to pay.
type Resolver struct {
	mu       sync.Mutex
	fees     FeeAPI
	logger   *slog.Logger
	gen      uint64
	quote    Quote
	onChange func(Quote)
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithFeeAPI sets the pricing collaborator used for activation fees.
// Without one, email-linked subscription quotes fall back to a zero fee.
func WithFeeAPI(fees FeeAPI) ResolverOption {
	return func(r *Resolver) { r.fees = fees }
}

// WithResolverLogger sets the logger.
func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

// WithResolverOnChange registers a callback invoked when the quote
// changes, including when an async fee lookup completes.
func WithResolverOnChange(fn func(Quote)) ResolverOption {
	return func(r *Resolver) { r.onChange = fn }
}

// NewResolver creates a pricing/activation resolver.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve recomputes the quote for the offer. Any in-flight fee lookup
// from a previous Resolve is invalidated: its result will be discarded
// when it arrives, not applied over the newer quote.
func (r *Resolver) Resolve(ctx context.Context, offer Offer) Quote {
	r.mu.Lock()
	r.gen++
	gen := r.gen

	q := Quote{
		ChargeAmount:   offer.Price,
		ActivationFee:  Money{Currency: offer.Price.Currency},
		FeeState:       FeeNone,
		Period:         offer.Period,
		RequiredFields: RequiredFieldsFor(offer.Activation),
	}

	needsFee := offer.Activation == ActivationEmailLinked && offer.Period.IsSubscription()
	if needsFee {
		q.FeeState = FeeCalculating
	}
	r.quote = q
	r.mu.Unlock()

	// Notify before starting the lookup so observers always see the
	// calculating state ahead of its result.
	r.notify(q)
	if needsFee {
		go r.lookupFee(ctx, offer, gen)
	}
	return q
}

// lookupFee fetches the activation fee and applies it if this resolve is
// still current.
func (r *Resolver) lookupFee(ctx context.Context, offer Offer, gen uint64) {
	var fee Money
	var err error

	if r.fees == nil {
		err = NewError(ClassTransport, ErrCodeConnectivity, "no pricing collaborator configured", nil)
	} else {
		callCtx, cancel := context.WithTimeout(ctx, feeLookupTimeout)
		defer cancel()
		fee, err = r.fees.GetActivationFee(callCtx, offer.ID)
	}

	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		return
	}
	if err != nil {
		// Non-blocking warning; the quote proceeds with a zero fee.
		r.logger.Warn("activation fee lookup failed, assuming zero fee",
			"offer", offer.ID, "error", err)
		r.quote.ActivationFee = Money{Currency: offer.Price.Currency}
		r.quote.FeeState = FeeFallback
	} else {
		r.quote.ActivationFee = fee
		r.quote.FeeState = FeeReady
	}
	q := r.quote
	r.mu.Unlock()

	r.notify(q)
}

// Quote returns the current quote.
func (r *Resolver) Quote() Quote {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.quote
}

// Settled reports whether the quote is in a state that permits payment:
// a pending fee lookup suppresses payability, a fallback does not.
func (q Quote) Settled() bool {
	return q.FeeState != FeeCalculating
}

func (r *Resolver) notify(q Quote) {
	if r.onChange != nil {
		r.onChange(q)
	}
}
