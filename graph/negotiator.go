// Package graph implements follow edges and the mutual connection handshake:
// request, accept, reject, cancel and disconnect.
package graph

import (
	"context"
	"fmt"
	"time"

	"connect-service/apperr"
	"connect-service/event"
	"connect-service/model"
	"connect-service/profile"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultRequestLimit  = 20
	DefaultRequestWindow = 24 * time.Hour
)

type Options struct {
	Store    Store
	Profiles profile.Reader
	Events   event.Emitter
	Log      *zap.Logger
	Now      func() time.Time

	// RequestLimit pending requests per sender within RequestWindow.
	RequestLimit  int
	RequestWindow time.Duration

	// Backoff builds the retry policy for failed or asymmetric paired writes.
	Backoff func() backoff.BackOff
}

type Negotiator struct {
	store    Store
	profiles profile.Reader
	events   event.Emitter
	log      *zap.Logger
	now      func() time.Time
	limit    int
	window   time.Duration
	backoff  func() backoff.BackOff
	locks    *keyedMutex
}

func NewNegotiator(opts Options) *Negotiator {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Events == nil {
		opts.Events = event.Nop{}
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.RequestLimit <= 0 {
		opts.RequestLimit = DefaultRequestLimit
	}
	if opts.RequestWindow <= 0 {
		opts.RequestWindow = DefaultRequestWindow
	}
	if opts.Backoff == nil {
		opts.Backoff = defaultBackoff
	}
	return &Negotiator{
		store:    opts.Store,
		profiles: opts.Profiles,
		events:   opts.Events,
		log:      opts.Log,
		now:      opts.Now,
		limit:    opts.RequestLimit,
		window:   opts.RequestWindow,
		backoff:  opts.Backoff,
		locks:    newKeyedMutex(),
	}
}

func defaultBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 3 * time.Second
	return backoff.WithMaxRetries(b, 5)
}

func validPair(actor, peer string) error {
	switch {
	case actor == "":
		return apperr.Validation("Missing user identity")
	case peer == "":
		return apperr.Validation("User id is required")
	case actor == peer:
		return apperr.Validation("You cannot do that to yourself")
	}
	return nil
}

func (n *Negotiator) lockPair(a, b string) func() {
	return n.locks.Lock("pair:" + model.PairKey(a, b))
}

// Request opens a pending request from -> to.
func (n *Negotiator) Request(ctx context.Context, from, to string) (*model.ConnectionRequest, error) {
	if err := validPair(from, to); err != nil {
		return nil, err
	}

	// The sender lock makes the quota check and the insert atomic across
	// requests to different users.
	unlockSender := n.locks.Lock("sender:" + from)
	defer unlockSender()
	unlockPair := n.lockPair(from, to)
	defer unlockPair()

	var created *model.ConnectionRequest
	err := n.store.Tx(ctx, func(s Store) error {
		now := n.now()
		recent, err := s.PendingSince(ctx, from, now.Add(-n.window))
		if err != nil {
			return err
		}
		if len(recent) >= n.limit {
			retryAt := recent[0].CreatedAt.Add(n.window)
			return apperr.RateLimited(
				fmt.Sprintf("Too many connection requests, try again after %s", retryAt.Format(time.RFC3339)),
				retryAt,
			)
		}

		existing, err := s.FindPair(ctx, from, to)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Status == model.RequestAccepted {
				return apperr.Conflict("Already connected")
			}
			return apperr.Conflict("Connection request already pending")
		}

		created = &model.ConnectionRequest{
			ID:         uuid.NewString(),
			FromUserID: from,
			ToUserID:   to,
			PairKey:    model.PairKey(from, to),
			Status:     model.RequestPending,
			CreatedAt:  now,
		}
		return s.CreateRequest(ctx, created)
	})
	if err != nil {
		return nil, err
	}

	n.emit(ctx, event.ConnectionRequested, created)
	return created, nil
}

// Accept is allowed only for the recipient of a pending request. Both users
// end up in each other's connections or the call fails.
func (n *Negotiator) Accept(ctx context.Context, actor, requestID string) (*model.ConnectionRequest, error) {
	req, err := n.guard(ctx, actor, requestID, roleRecipient)
	if err != nil {
		return nil, err
	}

	unlock := n.lockPair(req.FromUserID, req.ToUserID)
	defer unlock()

	link := connectionLink(req.FromUserID, req.ToUserID)
	var accepted *model.ConnectionRequest
	err = n.paired(ctx, link, true, func(s Store) error {
		current, err := n.checkRequest(ctx, s, actor, requestID, roleRecipient)
		if err != nil {
			return err
		}
		if err := s.AcceptRequest(ctx, current.ID); err != nil {
			return err
		}
		if err := link.apply(ctx, s, true, n.now()); err != nil {
			return err
		}
		current.Status = model.RequestAccepted
		accepted = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	n.emit(ctx, event.ConnectionAccepted, accepted)
	return accepted, nil
}

// Reject deletes a pending request. Only its recipient may reject it.
func (n *Negotiator) Reject(ctx context.Context, actor, requestID string) error {
	return n.dropRequest(ctx, actor, requestID, roleRecipient)
}

// Cancel deletes a pending request. Only its sender may cancel it.
func (n *Negotiator) Cancel(ctx context.Context, actor, requestID string) error {
	return n.dropRequest(ctx, actor, requestID, roleSender)
}

func (n *Negotiator) dropRequest(ctx context.Context, actor, requestID string, role requestRole) error {
	req, err := n.guard(ctx, actor, requestID, role)
	if err != nil {
		return err
	}

	unlock := n.lockPair(req.FromUserID, req.ToUserID)
	defer unlock()

	return n.store.Tx(ctx, func(s Store) error {
		current, err := n.checkRequest(ctx, s, actor, requestID, role)
		if err != nil {
			return err
		}
		return s.DeleteRequest(ctx, current.ID)
	})
}

// Disconnect removes an accepted connection between actor and peer.
func (n *Negotiator) Disconnect(ctx context.Context, actor, peer string) error {
	if err := validPair(actor, peer); err != nil {
		return err
	}

	unlock := n.lockPair(actor, peer)
	defer unlock()

	link := connectionLink(actor, peer)
	return n.paired(ctx, link, false, func(s Store) error {
		existing, err := s.FindPair(ctx, actor, peer)
		if err != nil {
			return err
		}
		if existing == nil || existing.Status != model.RequestAccepted {
			return apperr.NotFound("No connection with this user")
		}
		if err := s.DeleteRequest(ctx, existing.ID); err != nil {
			return err
		}
		return link.apply(ctx, s, false, n.now())
	})
}

// Follow adds peer to actor's following and actor to peer's followers.
// Following twice is a no-op.
func (n *Negotiator) Follow(ctx context.Context, actor, peer string) error {
	return n.setFollow(ctx, actor, peer, true)
}

// Unfollow is the inverse of Follow and tolerates a missing edge.
func (n *Negotiator) Unfollow(ctx context.Context, actor, peer string) error {
	return n.setFollow(ctx, actor, peer, false)
}

func (n *Negotiator) setFollow(ctx context.Context, actor, peer string, present bool) error {
	if err := validPair(actor, peer); err != nil {
		return err
	}

	unlock := n.lockPair(actor, peer)
	defer unlock()

	link := followLink(actor, peer)
	return n.paired(ctx, link, present, func(s Store) error {
		return link.apply(ctx, s, present, n.now())
	})
}

type requestRole int

const (
	roleRecipient requestRole = iota
	roleSender
)

// guard loads the request outside any lock so the pair key is known.
func (n *Negotiator) guard(ctx context.Context, actor, requestID string, role requestRole) (*model.ConnectionRequest, error) {
	if actor == "" {
		return nil, apperr.Validation("Missing user identity")
	}
	if requestID == "" {
		return nil, apperr.Validation("Request id is required")
	}
	return n.checkRequest(ctx, n.store, actor, requestID, role)
}

func (n *Negotiator) checkRequest(ctx context.Context, s Store, actor, requestID string, role requestRole) (*model.ConnectionRequest, error) {
	req, err := s.FindRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	switch role {
	case roleRecipient:
		if req.ToUserID != actor {
			return nil, apperr.Authorization("Only the recipient can answer this request")
		}
	case roleSender:
		if req.FromUserID != actor {
			return nil, apperr.Authorization("Only the sender can cancel this request")
		}
	}
	if req.Status != model.RequestPending {
		return nil, apperr.Conflict("Connection request is not pending")
	}
	return req, nil
}

func (n *Negotiator) emit(ctx context.Context, action string, req *model.ConnectionRequest) {
	if err := n.events.Emit(ctx, action, req); err != nil {
		n.log.Warn("event emit failed", zap.String("action", action), zap.String("request", req.ID), zap.Error(err))
	}
}
