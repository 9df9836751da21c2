package community

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/misiones-arrienda/arrienda/internal/auth"
	"github.com/misiones-arrienda/arrienda/internal/metrics"
	"github.com/misiones-arrienda/arrienda/internal/notification"
)

// ConversationOpener opens the chat between two matched users.
type ConversationOpener interface {
	OpenForMatch(ctx context.Context, a, b int64) (string, error)
}

// Service holds the like and match rules.
type Service struct {
	repo          *Repository
	conversations ConversationOpener
	notifier      notification.Notifier
}

// NewService creates a community service.
func NewService(repo *Repository, conversations ConversationOpener, notifier notification.Notifier) *Service {
	return &Service{repo: repo, conversations: conversations, notifier: notifier}
}

// SaveProfile creates or replaces the caller's profile.
func (s *Service) SaveProfile(ctx context.Context, caller *auth.User, in ProfileInput) (*Profile, error) {
	if err := in.check(); err != nil {
		return nil, err
	}
	return s.repo.Upsert(ctx, in.profile(caller.ID))
}

// Profile returns a user's profile.
func (s *Service) Profile(ctx context.Context, userID int64) (*Profile, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// ProfileByID returns a profile by id.
func (s *Service) ProfileByID(ctx context.Context, id string) (*Profile, error) {
	return s.repo.GetByID(ctx, id)
}

// DeleteProfile removes the caller's profile.
func (s *Service) DeleteProfile(ctx context.Context, caller *auth.User) error {
	return s.repo.DeleteByUserID(ctx, caller.ID)
}

// Browse lists profiles the caller has not liked yet.
func (s *Service) Browse(ctx context.Context, caller *auth.User, opts ListOptions) ([]Profile, error) {
	opts.Viewer = caller.ID
	return s.repo.List(ctx, opts)
}

// LikeResult describes the outcome of a like.
type LikeResult struct {
	Liked          bool   `json:"liked"`
	Matched        bool   `json:"matched"`
	Match          *Match `json:"match,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Like records that caller likes the user with the given id. When the like
// is mutual a match is created, the conversation opened and both users
// notified the first time.
func (s *Service) Like(ctx context.Context, caller *auth.User, to int64) (*LikeResult, error) {
	if to == caller.ID {
		return nil, ErrSelfLike
	}
	if _, err := s.repo.GetByUserID(ctx, to); err != nil {
		return nil, err
	}

	added, err := s.repo.AddLike(ctx, caller.ID, to)
	if err != nil {
		return nil, err
	}
	if added {
		metrics.Liked()
	}

	res := &LikeResult{Liked: added}

	mutual, err := s.repo.HasLike(ctx, to, caller.ID)
	if err != nil || !mutual {
		return res, err
	}

	m, created, err := s.repo.CreateMatch(ctx, caller.ID, to)
	if err != nil {
		return nil, err
	}
	res.Matched = true
	res.Match = m

	res.ConversationID, err = s.conversations.OpenForMatch(ctx, caller.ID, to)
	if err != nil {
		return nil, fmt.Errorf("opening match conversation: %w", err)
	}

	if created {
		metrics.Matched()
		s.notifyMatch(ctx, caller.ID, to, res.ConversationID)
		s.notifyMatch(ctx, to, caller.ID, res.ConversationID)
	}

	return res, nil
}

func (s *Service) notifyMatch(ctx context.Context, userID, other int64, conversationID string) {
	body := "Ya pueden chatear."
	if p, err := s.repo.GetByUserID(ctx, other); err == nil && p.Name != "" {
		body = fmt.Sprintf("Vos y %s se eligieron. Ya pueden chatear.", p.Name)
	}
	if err := s.notifier.Notify(ctx, userID, notification.TypeMatch, "¡Tenés un nuevo match!", body,
		"/api/conversations/"+conversationID+"/messages"); err != nil {
		slog.Error("notifying match", "user_id", userID, "error", err)
	}
}

// Unlike removes caller's like of the given user and undoes their match.
func (s *Service) Unlike(ctx context.Context, caller *auth.User, to int64) error {
	return s.repo.RemoveLike(ctx, caller.ID, to)
}

// MatchView is a match seen by one participant.
type MatchView struct {
	Match
	OtherUserID int64    `json:"other_user_id"`
	Profile     *Profile `json:"profile,omitempty"`
}

// Matches lists the caller's matches with the other user's profile.
func (s *Service) Matches(ctx context.Context, caller *auth.User) ([]MatchView, error) {
	matches, err := s.repo.ListMatches(ctx, caller.ID)
	if err != nil {
		return nil, err
	}

	views := make([]MatchView, 0, len(matches))
	for _, m := range matches {
		v := MatchView{Match: m, OtherUserID: m.Other(caller.ID)}
		p, err := s.repo.GetByUserID(ctx, v.OtherUserID)
		switch {
		case err == nil:
			v.Profile = p
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// IsMatched reports whether two users matched.
func (s *Service) IsMatched(ctx context.Context, a, b int64) (bool, error) {
	return s.repo.IsMatched(ctx, a, b)
}
