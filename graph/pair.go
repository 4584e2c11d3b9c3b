package graph

import (
	"context"
	"errors"
	"time"

	"connect-service/apperr"
	"connect-service/model"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

var errAsymmetric = errors.New("edge pair is asymmetric")

type edge struct {
	user string
	kind model.EdgeKind
	peer string
}

// link is two edges that must always be present or absent together.
type link [2]edge

func connectionLink(a, b string) link {
	return link{
		{user: a, kind: model.EdgeConnection, peer: b},
		{user: b, kind: model.EdgeConnection, peer: a},
	}
}

func followLink(actor, peer string) link {
	return link{
		{user: actor, kind: model.EdgeFollowing, peer: peer},
		{user: peer, kind: model.EdgeFollower, peer: actor},
	}
}

func (l link) apply(ctx context.Context, s Store, present bool, at time.Time) error {
	for _, e := range l {
		var err error
		if present {
			err = s.AddEdge(ctx, model.UserEdge{UserID: e.user, Kind: e.kind, PeerID: e.peer, CreatedAt: at})
		} else {
			err = s.RemoveEdge(ctx, e.user, e.kind, e.peer)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (l link) holds(ctx context.Context, s Store, present bool) (bool, error) {
	for _, e := range l {
		ok, err := s.HasEdge(ctx, e.user, e.kind, e.peer)
		if err != nil {
			return false, err
		}
		if ok != present {
			return false, nil
		}
	}
	return true, nil
}

func (l link) fields() []zap.Field {
	return []zap.Field{
		zap.String("kind", string(l[0].kind)),
		zap.String("user", l[0].user),
		zap.String("peer", l[0].peer),
	}
}

// paired runs mutate in one transaction, retrying the whole transaction on
// storage failures, then re-reads both sides of l and repairs them until
// they agree on present. Caller errors such as conflicts are returned as is.
func (n *Negotiator) paired(ctx context.Context, l link, present bool, mutate func(Store) error) error {
	var rejected error
	err := backoff.RetryNotify(func() error {
		err := n.store.Tx(ctx, mutate)
		if err != nil && apperr.KindOf(err) != apperr.KindInternal {
			rejected = err
			return nil
		}
		return err
	}, backoff.WithContext(n.backoff(), ctx), func(err error, wait time.Duration) {
		n.log.Warn("paired write failed, retrying", append(l.fields(), zap.Duration("wait", wait), zap.Error(err))...)
	})
	if rejected != nil {
		return rejected
	}
	if err != nil {
		n.log.Error("paired write failed", append(l.fields(), zap.Error(err))...)
		return err
	}

	return n.ensure(ctx, l, present)
}

// ensure re-reads both edges of l and re-applies them while they disagree.
func (n *Negotiator) ensure(ctx context.Context, l link, present bool) error {
	err := backoff.RetryNotify(func() error {
		ok, err := l.holds(ctx, n.store, present)
		if err != nil || ok {
			return err
		}

		n.log.Warn("edge pair diverged, repairing", append(l.fields(), zap.Bool("present", present))...)
		if err := n.store.Tx(ctx, func(s Store) error {
			return l.apply(ctx, s, present, n.now())
		}); err != nil {
			return err
		}

		ok, err = l.holds(ctx, n.store, present)
		if err != nil {
			return err
		}
		if !ok {
			return errAsymmetric
		}
		return nil
	}, backoff.WithContext(n.backoff(), ctx), func(err error, wait time.Duration) {
		n.log.Warn("edge pair repair retrying", append(l.fields(), zap.Duration("wait", wait), zap.Error(err))...)
	})
	if err != nil {
		n.log.Error("edge pair left asymmetric", append(l.fields(), zap.Error(err))...)
		return apperr.Consistency("Connection state could not be made consistent", err)
	}
	return nil
}
