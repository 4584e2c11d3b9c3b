// Package messenger sends, deletes and lists direct messages and folds a
// user's message log into conversation summaries.
package messenger

import (
	"context"
	"strings"
	"time"

	"connect-service/apperr"
	"connect-service/model"
	"connect-service/profile"
	"connect-service/push"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Media struct {
	Kind model.MediaKind
	// Ref is the durable URL returned by the media store.
	Ref string
}

type Content struct {
	Text  string
	Media *Media
}

// MessageView is a message with the sender's public profile inlined, so a
// client can render it without another fetch.
type MessageView struct {
	model.Message
	FromUser model.PublicProfile `json:"from_user"`
}

type Options struct {
	Store     Store
	Publisher push.Publisher
	Profiles  profile.Reader
	Log       *zap.Logger
	Now       func() time.Time
}

type Dispatcher struct {
	store     Store
	publisher push.Publisher
	profiles  profile.Reader
	log       *zap.Logger
	now       func() time.Time
}

func NewDispatcher(opts Options) *Dispatcher {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Dispatcher{
		store:     opts.Store,
		publisher: opts.Publisher,
		profiles:  opts.Profiles,
		log:       opts.Log,
		now:       opts.Now,
	}
}

func (c Content) validate() (string, error) {
	text := strings.TrimSpace(c.Text)
	if c.Media != nil {
		if c.Media.Kind != model.MediaImage && c.Media.Kind != model.MediaAudio {
			return "", apperr.Validation("Unsupported media type")
		}
		if strings.TrimSpace(c.Media.Ref) == "" {
			return "", apperr.Validation("Media reference is required")
		}
		return text, nil
	}
	if text == "" {
		return "", apperr.Validation("Message must have text or one media attachment")
	}
	return text, nil
}

// Send persists the message and then offers it to the recipient's push
// channel. An offline recipient is not an error.
func (d *Dispatcher) Send(ctx context.Context, from, to string, content Content) (*MessageView, error) {
	switch {
	case from == "":
		return nil, apperr.Validation("Missing sender identity")
	case to == "":
		return nil, apperr.Validation("Recipient is required")
	case from == to:
		return nil, apperr.Validation("Cannot send a message to yourself")
	}

	text, err := content.validate()
	if err != nil {
		return nil, err
	}

	m := &model.Message{
		ID:         newID(),
		FromUserID: from,
		ToUserID:   to,
		Text:       text,
		MediaKind:  model.MediaNone,
		CreatedAt:  d.now(),
	}
	if content.Media != nil {
		m.MediaKind = content.Media.Kind
		m.MediaURL = content.Media.Ref
	}

	if err := d.store.Create(ctx, m); err != nil {
		return nil, err
	}

	view := d.hydrate(ctx, []model.Message{*m})[0]
	delivered := d.publisher.Publish(to, push.Event{Type: push.EventMessage, Payload: view})

	d.log.Debug("message sent",
		zap.String("id", m.ID),
		zap.String("from", from),
		zap.String("to", to),
		zap.Bool("delivered", delivered),
	)
	return &view, nil
}

// Delete removes a message sent by actor and tells the other party.
func (d *Dispatcher) Delete(ctx context.Context, actor, messageID string) error {
	if messageID == "" {
		return apperr.Validation("Message id is required")
	}

	m, err := d.store.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if m.FromUserID != actor {
		return apperr.Authorization("Only the sender can delete this message")
	}

	if err := d.store.Delete(ctx, m.ID); err != nil {
		return err
	}

	d.publisher.Publish(m.ToUserID, push.Event{
		Type:    push.EventMessageDeleted,
		Payload: map[string]string{"message_id": m.ID},
	})
	d.log.Debug("message deleted", zap.String("id", m.ID), zap.String("by", actor))
	return nil
}

// History returns the thread between userID and with, oldest first. Messages
// addressed to userID are marked seen before they are read back.
func (d *Dispatcher) History(ctx context.Context, userID, with string) ([]MessageView, error) {
	if with == "" {
		return nil, apperr.Validation("Counterpart is required")
	}

	messages, err := d.store.Thread(ctx, userID, with)
	if err != nil {
		return nil, err
	}
	return d.hydrate(ctx, messages), nil
}

func (d *Dispatcher) hydrate(ctx context.Context, messages []model.Message) []MessageView {
	ids := make([]string, 0, len(messages))
	for i := range messages {
		ids = append(ids, messages[i].FromUserID)
	}
	profiles := lookupProfiles(ctx, d.profiles, d.log, ids)

	views := make([]MessageView, len(messages))
	for i := range messages {
		views[i] = MessageView{Message: messages[i], FromUser: profiles.get(messages[i].FromUserID)}
	}
	return views
}

type profileSet map[string]model.PublicProfile

func (s profileSet) get(id string) model.PublicProfile {
	if p, ok := s[id]; ok {
		return p
	}
	return model.PublicProfile{ID: id}
}

// lookupProfiles never fails: a broken profile store degrades to id-only
// profiles.
func lookupProfiles(ctx context.Context, r profile.Reader, log *zap.Logger, ids []string) profileSet {
	if r == nil || len(ids) == 0 {
		return profileSet{}
	}
	profiles, err := r.LookupMany(ctx, ids)
	if err != nil {
		log.Warn("profile lookup failed", zap.Int("ids", len(ids)), zap.Error(err))
		return profileSet{}
	}
	return profiles
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
