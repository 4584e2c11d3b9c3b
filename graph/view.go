package graph

import (
	"context"
	"time"

	"connect-service/apperr"
	"connect-service/model"

	"go.uber.org/zap"
)

type Peer struct {
	model.PublicProfile
	Since time.Time `json:"since"`
}

type PendingRequest struct {
	ID        string              `json:"_id"`
	User      model.PublicProfile `json:"user"`
	CreatedAt time.Time           `json:"createdAt"`
}

type ConnectionGraph struct {
	Followers       []Peer           `json:"followers"`
	Following       []Peer           `json:"following"`
	Connections     []Peer           `json:"connections"`
	PendingIncoming []PendingRequest `json:"pending_incoming"`
	PendingOutgoing []PendingRequest `json:"pending_outgoing"`
}

// Graph returns userID's edge sets and open requests with profiles attached.
func (n *Negotiator) Graph(ctx context.Context, userID string) (*ConnectionGraph, error) {
	if userID == "" {
		return nil, apperr.Validation("Missing user identity")
	}

	sets := make(map[model.EdgeKind][]model.UserEdge, 3)
	for _, kind := range []model.EdgeKind{model.EdgeFollower, model.EdgeFollowing, model.EdgeConnection} {
		edges, err := n.store.Edges(ctx, userID, kind)
		if err != nil {
			return nil, err
		}
		sets[kind] = edges
	}
	incoming, outgoing, err := n.store.Pending(ctx, userID)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, edges := range sets {
		for _, e := range edges {
			ids = append(ids, e.PeerID)
		}
	}
	for _, r := range incoming {
		ids = append(ids, r.FromUserID)
	}
	for _, r := range outgoing {
		ids = append(ids, r.ToUserID)
	}
	profiles := n.lookup(ctx, ids)

	peers := func(edges []model.UserEdge) []Peer {
		out := make([]Peer, 0, len(edges))
		for _, e := range edges {
			out = append(out, Peer{PublicProfile: profileOf(profiles, e.PeerID), Since: e.CreatedAt})
		}
		return out
	}
	pending := func(requests []model.ConnectionRequest, other func(model.ConnectionRequest) string) []PendingRequest {
		out := make([]PendingRequest, 0, len(requests))
		for _, r := range requests {
			out = append(out, PendingRequest{ID: r.ID, User: profileOf(profiles, other(r)), CreatedAt: r.CreatedAt})
		}
		return out
	}

	return &ConnectionGraph{
		Followers:       peers(sets[model.EdgeFollower]),
		Following:       peers(sets[model.EdgeFollowing]),
		Connections:     peers(sets[model.EdgeConnection]),
		PendingIncoming: pending(incoming, func(r model.ConnectionRequest) string { return r.FromUserID }),
		PendingOutgoing: pending(outgoing, func(r model.ConnectionRequest) string { return r.ToUserID }),
	}, nil
}

func (n *Negotiator) lookup(ctx context.Context, ids []string) map[string]model.PublicProfile {
	if n.profiles == nil || len(ids) == 0 {
		return nil
	}
	profiles, err := n.profiles.LookupMany(ctx, ids)
	if err != nil {
		n.log.Warn("profile lookup failed", zap.Int("ids", len(ids)), zap.Error(err))
		return nil
	}
	return profiles
}

func profileOf(profiles map[string]model.PublicProfile, id string) model.PublicProfile {
	if p, ok := profiles[id]; ok {
		return p
	}
	return model.PublicProfile{ID: id}
}
