package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/iliyamo/clinic-appointments/internal/access"
	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/repository"
	"github.com/iliyamo/clinic-appointments/internal/utils"
)

// TokenStore is the refresh-token persistence used by SessionManager.
// repository.TokenRepo implements it.
type TokenStore interface {
	Create(ctx context.Context, t model.RefreshToken) error
	Rotate(ctx context.Context, oldHash string, next model.RefreshToken, now time.Time) (model.RefreshToken, error)
	Revoke(ctx context.Context, hash string, now time.Time) (bool, error)
	RevokeChain(ctx context.Context, fromHash string, now time.Time) (int, error)
	RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int, error)
}

// UserLookup resolves the current role of a token owner.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (model.User, error)
}

// SessionConfig carries the token settings taken from config.Config.
type SessionConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenPair is what login and refresh hand back to the client.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// maxTokenAttempts bounds regeneration after a refresh-token hash collision.
const maxTokenAttempts = 3

// SessionManager issues and verifies access tokens and owns the refresh
// token lifecycle.  It keeps no state of its own; every refresh token
// transition goes through the TokenStore.
type SessionManager struct {
	tokens TokenStore
	users  UserLookup
	cfg    SessionConfig
	now    func() time.Time
}

func NewSessionManager(tokens TokenStore, users UserLookup, cfg SessionConfig) *SessionManager {
	return &SessionManager{tokens: tokens, users: users, cfg: cfg, now: time.Now}
}

// IssueAccessToken signs a short-lived access token for subjectID.
func (s *SessionManager) IssueAccessToken(subjectID string, role model.Role) (utils.AccessToken, error) {
	return utils.NewAccessToken(s.cfg.Secret, subjectID, role, s.cfg.AccessTTL, s.now())
}

// VerifyAccessToken checks signature, kind and expiry of raw.  It returns
// utils.ErrTokenExpired or utils.ErrInvalidToken on failure; callers reject
// both the same way and may log them differently.
func (s *SessionManager) VerifyAccessToken(raw string) (access.Identity, error) {
	claims, err := utils.ParseAccessToken(s.cfg.Secret, raw, s.now())
	if err != nil {
		return access.Identity{}, err
	}
	return access.Identity{ID: claims.Subject, Role: claims.Role}, nil
}

// IssueRefreshToken creates and persists a new active refresh token for
// userID.  The raw value is returned to the caller and never stored.
func (s *SessionManager) IssueRefreshToken(ctx context.Context, userID string) (utils.RefreshToken, error) {
	for attempt := 0; ; attempt++ {
		rt, err := utils.NewRefreshToken(s.cfg.RefreshTTL, s.now())
		if err != nil {
			return utils.RefreshToken{}, err
		}
		err = s.tokens.Create(ctx, model.RefreshToken{
			TokenHash: utils.HashRefreshRaw(rt.Raw),
			UserID:    userID,
			ExpiresAt: rt.Exp,
		})
		if errors.Is(err, repository.ErrDuplicate) && attempt+1 < maxTokenAttempts {
			continue
		}
		if err != nil {
			return utils.RefreshToken{}, err
		}
		return rt, nil
	}
}

// IssuePair issues an access token and a refresh token for u.
func (s *SessionManager) IssuePair(ctx context.Context, u model.User) (TokenPair, error) {
	at, err := s.IssueAccessToken(u.ID, u.Role)
	if err != nil {
		return TokenPair{}, err
	}
	rt, err := s.IssueRefreshToken(ctx, u.ID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: at.Token, AccessExpiresAt: at.Exp, RefreshToken: rt.Raw, RefreshExpiresAt: rt.Exp}, nil
}

// Rotate exchanges an active refresh token for a new access/refresh pair.
// The old token is revoked and linked to its successor atomically.  Every
// failure to rotate is reported as ErrInvalidRefreshToken.  Presenting a
// token that was already rotated forward revokes every token issued after
// it, since only a copy of the token can still be around at that point.
func (s *SessionManager) Rotate(ctx context.Context, raw string) (TokenPair, error) {
	if raw == "" {
		return TokenPair{}, ErrInvalidRefreshToken
	}
	oldHash := utils.HashRefreshRaw(raw)
	now := s.now()

	var (
		next utils.RefreshToken
		old  model.RefreshToken
		err  error
	)
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		next, err = utils.NewRefreshToken(s.cfg.RefreshTTL, now)
		if err != nil {
			return TokenPair{}, err
		}
		old, err = s.tokens.Rotate(ctx, oldHash, model.RefreshToken{
			TokenHash: utils.HashRefreshRaw(next.Raw),
			ExpiresAt: next.Exp,
		}, now)
		if !errors.Is(err, repository.ErrDuplicate) {
			break
		}
	}
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		return TokenPair{}, ErrInvalidRefreshToken
	case errors.Is(err, repository.ErrTokenInactive):
		if old.Rotated() {
			n, cerr := s.tokens.RevokeChain(ctx, *old.ReplacedByHash, now)
			if cerr != nil {
				return TokenPair{}, cerr
			}
			log.Printf("session: rotated refresh token reused for user %s; revoked %d descendant token(s)", old.UserID, n)
		}
		return TokenPair{}, ErrInvalidRefreshToken
	default:
		return TokenPair{}, err
	}

	u, err := s.users.GetByID(ctx, old.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return TokenPair{}, ErrInvalidRefreshToken
		}
		return TokenPair{}, err
	}
	at, err := s.IssueAccessToken(u.ID, u.Role)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: at.Token, AccessExpiresAt: at.Exp, RefreshToken: next.Raw, RefreshExpiresAt: next.Exp}, nil
}

// Revoke ends the session of raw.  Revoking an unknown or inactive token is
// a no-op.
func (s *SessionManager) Revoke(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}
	_, err := s.tokens.Revoke(ctx, utils.HashRefreshRaw(raw), s.now())
	return err
}

// RevokeAll ends every active session of userID and returns how many were
// ended.
func (s *SessionManager) RevokeAll(ctx context.Context, userID string) (int, error) {
	return s.tokens.RevokeAllForUser(ctx, userID, s.now())
}
