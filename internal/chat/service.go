package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/misiones-arrienda/arrienda/internal/apperr"
	"github.com/misiones-arrienda/arrienda/internal/auth"
	"github.com/misiones-arrienda/arrienda/internal/metrics"
	"github.com/misiones-arrienda/arrienda/internal/notification"
)

// MatchChecker reports whether two users matched in the community.
type MatchChecker interface {
	IsMatched(ctx context.Context, a, b int64) (bool, error)
}

// ListingOwners resolves the owner of a listing.
type ListingOwners interface {
	OwnerID(id int64) (int64, error)
}

// Service holds the chat rules.
type Service struct {
	repo     *Repository
	hub      *Hub
	matches  MatchChecker
	listings ListingOwners
	notifier notification.Notifier
}

// NewService creates a chat service.
func NewService(repo *Repository, hub *Hub, matches MatchChecker, listings ListingOwners, notifier notification.Notifier) *Service {
	return &Service{repo: repo, hub: hub, matches: matches, listings: listings, notifier: notifier}
}

// Open returns the conversation between caller and other, creating it when
// missing. Users may talk when they matched, or when other owns the listing
// named by propertyID.
func (s *Service) Open(ctx context.Context, caller *auth.User, other int64, propertyID *int64) (*Conversation, error) {
	if other == caller.ID {
		return nil, apperr.Invalid("cannot open a conversation with yourself")
	}

	allowed, err := s.matches.IsMatched(ctx, caller.ID, other)
	if err != nil {
		return nil, err
	}
	if !allowed && propertyID != nil {
		owner, err := s.listings.OwnerID(*propertyID)
		if err != nil {
			return nil, err
		}
		allowed = owner == other
	}
	if !allowed {
		return nil, fmt.Errorf("%w: you can only write to matches or listing owners", apperr.ErrForbidden)
	}

	c, err := s.repo.GetOrCreate(ctx, caller.ID, other, propertyID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// OpenForMatch opens the conversation of a new match and returns its id.
func (s *Service) OpenForMatch(ctx context.Context, a, b int64) (string, error) {
	c, err := s.repo.GetOrCreate(ctx, a, b, nil)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

// Get returns a conversation the caller takes part in.
func (s *Service) Get(ctx context.Context, caller *auth.User, id string) (*Conversation, error) {
	c, err := s.repo.Get(ctx, id, caller.ID)
	if err != nil {
		return nil, err
	}
	if !c.Has(caller.ID) {
		return nil, ErrNotParticipant
	}
	return c, nil
}

// List returns the caller's conversations.
func (s *Service) List(ctx context.Context, caller *auth.User) ([]Conversation, error) {
	return s.repo.ListForUser(ctx, caller.ID)
}

// CheckBody trims a message body and enforces its length limits.
func CheckBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", apperr.Invalid("message body is required")
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return "", apperr.Invalid("message must be at most %d characters", MaxBodyLength)
	}
	return body, nil
}

// Send stores a message from caller, publishes it to realtime subscribers
// and notifies the other participant.
func (s *Service) Send(ctx context.Context, caller *auth.User, conversationID, body string) (*Message, error) {
	body, err := CheckBody(body)
	if err != nil {
		return nil, err
	}

	c, err := s.Get(ctx, caller, conversationID)
	if err != nil {
		return nil, err
	}

	msg, err := s.repo.AddMessage(ctx, c.ID, caller.ID, body)
	if err != nil {
		return nil, err
	}
	metrics.MessageSent()
	s.hub.Publish(*msg)

	title := "Nuevo mensaje"
	if name := caller.DisplayName(); name != "" {
		title = "Nuevo mensaje de " + name
	}
	if err := s.notifier.Notify(ctx, c.Other(caller.ID), notification.TypeMessage, title, preview(body),
		"/api/conversations/"+c.ID+"/messages"); err != nil {
		slog.Error("notifying message", "conversation_id", c.ID, "error", err)
	}

	return msg, nil
}

// Messages returns messages after afterID for a participant.
func (s *Service) Messages(ctx context.Context, caller *auth.User, conversationID string, afterID int64, limit int) ([]Message, error) {
	if _, err := s.Get(ctx, caller, conversationID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, conversationID, afterID, limit)
}

// MarkRead marks the other participant's messages read.
func (s *Service) MarkRead(ctx context.Context, caller *auth.User, conversationID string) (int64, error) {
	if _, err := s.Get(ctx, caller, conversationID); err != nil {
		return 0, err
	}
	return s.repo.MarkRead(ctx, conversationID, caller.ID)
}

// Unread returns the caller's unread message count.
func (s *Service) Unread(ctx context.Context, caller *auth.User) (int, error) {
	return s.repo.UnreadCount(ctx, caller.ID)
}

// Subscribe registers a participant for realtime messages.
func (s *Service) Subscribe(ctx context.Context, caller *auth.User, conversationID string) (<-chan Message, func(), error) {
	if _, err := s.Get(ctx, caller, conversationID); err != nil {
		return nil, nil, err
	}
	ch, cancel := s.hub.Subscribe(conversationID)
	return ch, cancel, nil
}

func preview(body string) string {
	const max = 80
	if utf8.RuneCountInString(body) <= max {
		return body
	}
	r := []rune(body)
	return string(r[:max-1]) + "…"
}
