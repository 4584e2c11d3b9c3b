package messenger

import (
	"context"

	"connect-service/model"
	"connect-service/profile"

	"go.uber.org/zap"
)

type ConversationSummary struct {
	PartnerID   string              `json:"partner_id"`
	Partner     model.PublicProfile `json:"partner"`
	LastMessage MessageView         `json:"last_message"`
	UnreadCount int                 `json:"unread_count"`
}

// Aggregator derives conversation summaries from the full message log on
// every call. Nothing is cached between calls.
type Aggregator struct {
	store    Store
	profiles profile.Reader
	log      *zap.Logger
}

func NewAggregator(store Store, profiles profile.Reader, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{store: store, profiles: profiles, log: log}
}

// Summarize returns one summary per counterpart of userID, most recently
// active first.
func (a *Aggregator) Summarize(ctx context.Context, userID string) ([]ConversationSummary, error) {
	messages, err := a.store.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	folded := Fold(userID, messages)

	ids := make([]string, 0, len(folded)+1)
	ids = append(ids, userID)
	for i := range folded {
		ids = append(ids, folded[i].PartnerID)
	}
	profiles := lookupProfiles(ctx, a.profiles, a.log, ids)

	for i := range folded {
		s := &folded[i]
		s.Partner = profiles.get(s.PartnerID)
		s.LastMessage.FromUser = profiles.get(s.LastMessage.FromUserID)
	}
	return folded, nil
}

// Fold groups newest-first messages by counterpart. The first message seen
// for a counterpart is its last message; unread counts every unseen message
// from that counterpart to userID. Output keeps first-encounter order.
func Fold(userID string, newestFirst []model.Message) []ConversationSummary {
	index := make(map[string]int)
	var out []ConversationSummary

	for i := range newestFirst {
		m := &newestFirst[i]
		partner := m.Counterpart(userID)

		pos, ok := index[partner]
		if !ok {
			pos = len(out)
			index[partner] = pos
			out = append(out, ConversationSummary{
				PartnerID:   partner,
				Partner:     model.PublicProfile{ID: partner},
				LastMessage: MessageView{Message: *m, FromUser: model.PublicProfile{ID: m.FromUserID}},
			})
		}

		if m.ToUserID == userID && m.FromUserID == partner && !m.Seen {
			out[pos].UnreadCount++
		}
	}

	if out == nil {
		out = []ConversationSummary{}
	}
	return out
}
