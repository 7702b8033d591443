// Package service contains application services for authentication, profiles and maintenance.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/sociallink/internal/crypto"
	"github.com/and161185/sociallink/internal/errs"
	"github.com/and161185/sociallink/internal/limiter"
	"github.com/and161185/sociallink/internal/model"
	"github.com/and161185/sociallink/internal/repository"
	"github.com/and161185/sociallink/internal/validate"
)

// AuthService defines the authentication surface.
type AuthService interface {
	// SignUp validates the form and creates an account with its profile.
	SignUp(ctx context.Context, f model.RegisterForm) (uuid.UUID, error)
	// SignIn applies rate-limiting and issues an access token.
	SignIn(ctx context.Context, email, password, ip string) (model.Session, error)
	// SessionFromToken restores a session from a stored access token.
	SessionFromToken(ctx context.Context, token string) (model.Session, error)
	// SignOut revokes the session's token.
	SignOut(ctx context.Context, s model.Session) error
	// RequestPasswordReset issues a one-time reset token to the account's email.
	RequestPasswordReset(ctx context.Context, email string) error
	// ResetPassword consumes a reset token and sets a new password.
	ResetPassword(ctx context.Context, token, password, confirm string) error
}

// Mailer delivers reset tokens.
type Mailer interface {
	SendReset(ctx context.Context, email, token string) error
}

// WriterMailer prints reset tokens to W. It stands in for a mail relay.
type WriterMailer struct{ W io.Writer }

// SendReset writes the token line.
func (m WriterMailer) SendReset(_ context.Context, email, token string) error {
	_, err := fmt.Fprintf(m.W, "password reset token for %s: %s\n", email, token)
	return err
}

// AuthConfig holds token settings.
type AuthConfig struct {
	SignKey   []byte
	AccessTTL time.Duration
	ResetTTL  time.Duration
}

type AuthServiceImpl struct {
	accounts repository.AccountRepository
	tokens   repository.AuthTokenRepository
	profiles repository.ProfileRepository
	lim      limiter.Limiter
	mailer   Mailer
	cfg      AuthConfig
	log      *zap.Logger
	now      func() time.Time
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(accounts repository.AccountRepository, tokens repository.AuthTokenRepository,
	profiles repository.ProfileRepository, lim limiter.Limiter, mailer Mailer, cfg AuthConfig, log *zap.Logger) *AuthServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthServiceImpl{
		accounts: accounts, tokens: tokens, profiles: profiles,
		lim: lim, mailer: mailer, cfg: cfg, log: log, now: time.Now,
	}
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func newCredentials(password string) (hash, salt []byte, err error) {
	salt, err = pkgcrypto.RandBytes(pkgcrypto.SaltLen)
	if err != nil {
		return nil, nil, err
	}
	return pkgcrypto.HashPassword([]byte(password), salt), salt, nil
}

// SignUp creates the account and then its profile. The profile insert is a
// separate write; if it fails the account remains and the error is returned.
func (s *AuthServiceImpl) SignUp(ctx context.Context, f model.RegisterForm) (uuid.UUID, error) {
	if err := validate.Register(f); err != nil {
		return uuid.Nil, err
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}
	hash, salt, err := newCredentials(f.Password)
	if err != nil {
		return uuid.Nil, err
	}
	a := &model.Account{ID: uid, Email: normalizeEmail(f.Email), PwdHash: hash, Salt: salt}
	if err := s.accounts.Create(ctx, a); err != nil {
		return uuid.Nil, err
	}

	username := strings.TrimSpace(f.Username)
	p := &model.Profile{ID: uid, Name: username, Username: &username}
	if err := s.profiles.Create(ctx, p); err != nil {
		s.log.Warn("profile insert after sign-up failed", zap.String("user_id", uid.String()), zap.Error(err))
		return uid, fmt.Errorf("create profile: %w", err)
	}
	return uid, nil
}

// SignIn authenticates with rate limiting by (email, ip).
func (s *AuthServiceImpl) SignIn(ctx context.Context, email, password, ip string) (model.Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return model.Session{}, errs.ErrValidation
	}
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return model.Session{}, err
	}
	if !allowed {
		return model.Session{}, errs.ErrRateLimited
	}

	a, err := s.accounts.GetByEmail(ctx, email)
	if err != nil || !pkgcrypto.VerifyPassword([]byte(password), a.Salt, a.PwdHash) {
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr == nil && blocked {
			return model.Session{}, errs.ErrRateLimited
		}
		// unknown email and wrong password look the same
		return model.Session{}, errs.ErrUnauthorized
	}

	_ = s.lim.Success(ctx, email, ipHash)

	return s.issueSession(a.ID, a.Email)
}

// issueSession creates a signed HS256 JWT with a unique token id.
func (s *AuthServiceImpl) issueSession(userID uuid.UUID, email string) (model.Session, error) {
	jti, err := uuid.NewV4()
	if err != nil {
		return model.Session{}, err
	}
	now := s.now()
	exp := now.Add(s.cfg.AccessTTL)
	c := claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti.String(),
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.cfg.SignKey)
	if err != nil {
		return model.Session{}, err
	}
	return model.Session{UserID: userID, Email: email, AccessToken: signed, TokenID: jti.String(), ExpiresAt: exp}, nil
}

// SessionFromToken verifies the token signature, expiry and revocation.
func (s *AuthServiceImpl) SessionFromToken(ctx context.Context, token string) (model.Session, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) { return s.cfg.SignKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return model.Session{}, errs.ErrUnauthorized
	}
	uid, err := uuid.FromString(c.Subject)
	if err != nil || c.ID == "" {
		return model.Session{}, errs.ErrUnauthorized
	}
	revoked, err := s.tokens.IsRevoked(ctx, c.ID)
	if err != nil {
		return model.Session{}, err
	}
	if revoked {
		return model.Session{}, errs.ErrUnauthorized
	}
	return model.Session{
		UserID:      uid,
		Email:       c.Email,
		AccessToken: token,
		TokenID:     c.ID,
		ExpiresAt:   c.ExpiresAt.Time,
	}, nil
}

// SignOut revokes the token until it would have expired anyway.
func (s *AuthServiceImpl) SignOut(ctx context.Context, sess model.Session) error {
	if sess.TokenID == "" {
		return errs.ErrUnauthorized
	}
	return s.tokens.Revoke(ctx, sess.TokenID, sess.ExpiresAt)
}

// RequestPasswordReset stores a hashed ticket and mails the raw token.
// Unknown emails succeed without doing anything.
func (s *AuthServiceImpl) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return errs.ErrValidation
	}
	a, err := s.accounts.GetByEmail(ctx, email)
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	raw, digest, err := pkgcrypto.NewResetToken()
	if err != nil {
		return err
	}
	pr := model.PasswordReset{TokenHash: digest, AccountID: a.ID, ExpiresAt: s.now().Add(s.cfg.ResetTTL)}
	if err := s.tokens.SaveReset(ctx, pr); err != nil {
		return err
	}
	s.log.Info("password reset issued", zap.String("user_id", a.ID.String()))
	return s.mailer.SendReset(ctx, a.Email, raw)
}

// ResetPassword consumes the ticket once and replaces the credentials.
func (s *AuthServiceImpl) ResetPassword(ctx context.Context, token, password, confirm string) error {
	if token == "" || len(password) < 6 {
		return errs.ErrValidation
	}
	if password != confirm {
		return errs.ErrPasswordMismatch
	}
	uid, err := s.tokens.ConsumeReset(ctx, pkgcrypto.TokenDigest(token), s.now())
	if errors.Is(err, errs.ErrNotFound) {
		return errs.ErrUnauthorized
	}
	if err != nil {
		return err
	}
	hash, salt, err := newCredentials(password)
	if err != nil {
		return err
	}
	return s.accounts.UpdatePassword(ctx, uid, hash, salt)
}
