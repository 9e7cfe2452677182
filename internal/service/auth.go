package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/neopharm/pharmacy/internal/events"
	"github.com/neopharm/pharmacy/internal/models"
	"github.com/neopharm/pharmacy/internal/repo"
	pkg_hash "github.com/neopharm/pharmacy/pkg/hash"
	"github.com/neopharm/pharmacy/pkg/logging"
	"github.com/neopharm/pharmacy/pkg/tokens"
)

type AuthService struct {
	Repo          *repo.GormRepo
	JWTSecret     []byte
	RefreshSecret []byte
	Events        events.Publisher
	Now           func() time.Time
}

// Login checks the mobile number and password and issues a token pair.
func (s *AuthService) Login(ctx context.Context, mobile, password string) (*tokens.Pair, *models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login")
	mobile = strings.TrimSpace(mobile)
	if mobile == "" || password == "" {
		return nil, nil, fmt.Errorf("mobile and password are required: %w", ErrInvalidCredentials)
	}

	user, err := s.Repo.UserByMobile(ctx, mobile)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		l.Warn("login_failed", "status", 401, "reason", "unknown mobile")
		return nil, nil, fmt.Errorf("invalid mobile or password: %w", ErrInvalidCredentials)
	}
	if err != nil {
		l.Error("login_failed", "status", 500, "error", err)
		return nil, nil, err
	}
	if !pkg_hash.CheckPassword(user.PasswordHash, password) {
		l.Warn("login_failed", "status", 401, "reason", "bad password", "user_id", user.ID)
		return nil, nil, fmt.Errorf("invalid mobile or password: %w", ErrInvalidCredentials)
	}
	if !user.IsActive {
		l.Warn("login_failed", "status", 401, "reason", "inactive", "user_id", user.ID)
		return nil, nil, fmt.Errorf("account is disabled: %w", ErrInvalidCredentials)
	}

	now := nowOr(s.Now)
	pair, jti, err := s.issue(user, now)
	if err != nil {
		l.Error("login_failed", "status", 500, "error", err)
		return nil, nil, err
	}
	if err := s.Repo.AddRefresh(ctx, user.ID, pair.RefreshToken, jti, pair.RefreshExp); err != nil {
		l.Error("login_failed", "status", 500, "error", err)
		return nil, nil, err
	}
	if err := s.Repo.TouchLastLogin(ctx, user.ID, now); err != nil {
		l.Warn("last_login_error", "error", err)
	}

	l.Info("login_success", "user_id", user.ID, "role", pair.Role)
	events.Publish(ctx, s.Events, events.TopicUsers, strconv.FormatUint(uint64(user.ID), 10), map[string]any{
		"type":    "user_logged_in",
		"user_id": user.ID,
	})
	return pair, user, nil
}

// Refresh rotates a refresh token. The user is reloaded so role changes and
// deactivation apply from the next access token on.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*tokens.Pair, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	claims, err := tokens.RefreshClaimsFromToken(refreshToken, s.RefreshSecret)
	if err != nil {
		return nil, fmt.Errorf("refresh token: %v: %w", err, ErrInvalidCredentials)
	}
	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("refresh token subject: %w", ErrInvalidCredentials)
	}

	user, err := s.Repo.UserByID(ctx, uint(userID))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user is gone: %w", ErrInvalidCredentials)
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		_ = s.Repo.RevokeAllForUser(ctx, user.ID)
		return nil, fmt.Errorf("account is disabled: %w", ErrInvalidCredentials)
	}

	now := nowOr(s.Now)
	pair, jti, err := s.issue(user, now)
	if err != nil {
		return nil, err
	}
	owner, err := s.Repo.RotateRefreshToken(ctx, claims.ID, refreshToken, pair.RefreshToken, jti, pair.RefreshExp, now)
	if errors.Is(err, repo.ErrRefreshRevoked) || errors.Is(err, gorm.ErrRecordNotFound) {
		l.Warn("refresh_rejected", "status", 401, "user_id", user.ID, "error", err)
		return nil, fmt.Errorf("refresh token: %w", ErrInvalidCredentials)
	}
	if err != nil {
		return nil, err
	}
	if owner != user.ID {
		return nil, fmt.Errorf("refresh token owner mismatch: %w", ErrInvalidCredentials)
	}
	return pair, nil
}

func (s *AuthService) LogOut(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.Repo.RevokeRefresh(ctx, refreshToken)
}

func (s *AuthService) issue(user *models.User, now time.Time) (*tokens.Pair, string, error) {
	sub := strconv.FormatUint(uint64(user.ID), 10)
	role := user.Role()

	accessExp := now.Add(tokens.AccessTTL)
	access, err := tokens.NewAccessToken(s.JWTSecret, sub, role, accessExp)
	if err != nil {
		return nil, "", err
	}
	jti := tokens.NewJTI()
	refreshExp := now.Add(tokens.RefreshTTL)
	refresh, err := tokens.NewRefreshToken(s.RefreshSecret, sub, jti, refreshExp)
	if err != nil {
		return nil, "", err
	}
	return &tokens.Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
		Role:         role,
	}, jti, nil
}
