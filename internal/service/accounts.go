package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"shortlink/internal/mailer"
	"shortlink/internal/model"
	"shortlink/internal/repository"
)

const (
	verifyTokenTTL = 24 * time.Hour
	resetTokenTTL  = 15 * time.Minute
)

func emailKey(email string) string       { return "email:" + email }
func usernameKey(name string) string     { return "username:" + name }
func verifiedKey(userID string) string   { return "verified:" + userID }
func verifyTokenKey(token string) string { return "verify:" + token }
func resetTokenKey(token string) string  { return "reset:" + token }

// Hasher hashes and checks passwords.
type Hasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) bool
}

type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(b), err
}

func (h BcryptHasher) Compare(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Accounts is the user directory: registration, verification, login,
// credential changes and password reset.
type Accounts struct {
	store  repository.Store
	hasher Hasher
	mail   mailer.Mailer
	appURL string
	now    func() time.Time
	log    *slog.Logger
}

func NewAccounts(store repository.Store, hasher Hasher, mail mailer.Mailer, appURL string, now func() time.Time, log *slog.Logger) *Accounts {
	return &Accounts{
		store: store, hasher: hasher, mail: mail,
		appURL: strings.TrimRight(appURL, "/"), now: now, log: log,
	}
}

// exists reports whether key is present.
func (a *Accounts) exists(ctx context.Context, key string) (bool, error) {
	_, err := a.store.Get(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("account store failed", err)
	}
	return true, nil
}

func (a *Accounts) lookup(ctx context.Context, key string) (string, bool, error) {
	v, err := a.store.Get(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("account store failed", err)
	}
	return v, true, nil
}

func (a *Accounts) user(ctx context.Context, id string) (*model.User, error) {
	raw, ok, err := a.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newError(ErrNotFound, "User not found")
	}
	var u model.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (a *Accounts) save(ctx context.Context, u *model.User) error {
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if err := a.store.Put(ctx, u.ID, string(b), 0); err != nil {
		return unavailable("account store failed", err)
	}
	return nil
}

func (a *Accounts) send(ctx context.Context, to, subject, body string) {
	if err := a.mail.Send(ctx, to, subject, body); err != nil {
		a.log.Error("send email", "to", to, "subject", subject, "err", err)
	}
}

func (a *Accounts) Register(ctx context.Context, username, email, password string) (*model.User, error) {
	if username == "" || email == "" || password == "" {
		return nil, newError(ErrInvalidInput, "Username, email, and password are required")
	}
	if taken, err := a.exists(ctx, emailKey(email)); err != nil {
		return nil, err
	} else if taken {
		return nil, newError(ErrConflict, "Email already registered")
	}
	if taken, err := a.exists(ctx, usernameKey(username)); err != nil {
		return nil, err
	} else if taken {
		return nil, newError(ErrConflict, "Username already taken")
	}

	hash, err := a.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &model.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    a.now(),
	}
	if err := a.save(ctx, u); err != nil {
		return nil, err
	}
	for _, kv := range [][2]string{
		{emailKey(email), u.ID},
		{usernameKey(username), u.ID},
		{verifiedKey(u.ID), "false"},
	} {
		if err := a.store.Put(ctx, kv[0], kv[1], 0); err != nil {
			return nil, unavailable("failed to register user", err)
		}
	}

	token := uuid.NewString()
	if err := a.store.Put(ctx, verifyTokenKey(token), u.ID, verifyTokenTTL); err != nil {
		return nil, unavailable("failed to register user", err)
	}
	a.send(ctx, email, "verification link",
		fmt.Sprintf("Click to verify your account: %s/verify-register?token=%s", a.appURL, token))

	a.log.Info("registered user", "user", u.ID)
	pub := u.Public()
	return &pub, nil
}

func (a *Accounts) Verify(ctx context.Context, token string) error {
	if token == "" {
		return newError(ErrInvalidInput, "Invalid or expired verification token")
	}
	userID, ok, err := a.lookup(ctx, verifyTokenKey(token))
	if err != nil {
		return err
	}
	if !ok {
		return newError(ErrInvalidInput, "Invalid or expired verification token")
	}
	if err := a.store.Delete(ctx, verifyTokenKey(token)); err != nil {
		return unavailable("failed to verify email", err)
	}
	if err := a.store.Put(ctx, verifiedKey(userID), "true", 0); err != nil {
		return unavailable("failed to verify email", err)
	}
	a.log.Info("verified email", "user", userID)
	return nil
}

func (a *Accounts) Login(ctx context.Context, email, password string) (*model.User, error) {
	if email == "" || password == "" {
		return nil, newError(ErrInvalidInput, "Email and password are required")
	}
	userID, ok, err := a.lookup(ctx, emailKey(email))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newError(ErrUnauthenticated, "Invalid email or password")
	}
	u, err := a.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !a.hasher.Compare(u.PasswordHash, password) {
		return nil, newError(ErrUnauthenticated, "Invalid email or password")
	}
	verified, _, err := a.lookup(ctx, verifiedKey(userID))
	if err != nil {
		return nil, err
	}
	if verified != "true" {
		return nil, newError(ErrForbidden, "User not verified")
	}
	pub := u.Public()
	return &pub, nil
}

func (a *Accounts) ChangeUsername(ctx context.Context, userID, newUsername string) (*model.User, error) {
	if userID == "" || newUsername == "" {
		return nil, newError(ErrInvalidInput, "User ID and new username are required")
	}
	if taken, err := a.exists(ctx, usernameKey(newUsername)); err != nil {
		return nil, err
	} else if taken {
		return nil, newError(ErrConflict, "Username already taken")
	}
	u, err := a.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	old := u.Username
	u.Username = newUsername
	if err := a.save(ctx, u); err != nil {
		return nil, err
	}
	if err := a.store.Put(ctx, usernameKey(newUsername), userID, 0); err != nil {
		return nil, unavailable("failed to change username", err)
	}
	if err := a.store.Delete(ctx, usernameKey(old)); err != nil {
		a.log.Warn("drop old username", "user", userID, "err", err)
	}
	pub := u.Public()
	return &pub, nil
}

func (a *Accounts) ChangeEmail(ctx context.Context, userID, newEmail string) (*model.User, error) {
	if userID == "" || newEmail == "" {
		return nil, newError(ErrInvalidInput, "User ID and new email are required")
	}
	if taken, err := a.exists(ctx, emailKey(newEmail)); err != nil {
		return nil, err
	} else if taken {
		return nil, newError(ErrConflict, "Email already registered")
	}
	u, err := a.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	old := u.Email
	u.Email = newEmail
	if err := a.save(ctx, u); err != nil {
		return nil, err
	}
	if err := a.store.Put(ctx, emailKey(newEmail), userID, 0); err != nil {
		return nil, unavailable("failed to change email", err)
	}
	if err := a.store.Delete(ctx, emailKey(old)); err != nil {
		a.log.Warn("drop old email", "user", userID, "err", err)
	}
	pub := u.Public()
	return &pub, nil
}

func (a *Accounts) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) (*model.User, error) {
	if userID == "" || oldPassword == "" || newPassword == "" {
		return nil, newError(ErrInvalidInput, "User ID, old password, and new password are required")
	}
	u, err := a.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !a.hasher.Compare(u.PasswordHash, oldPassword) {
		return nil, newError(ErrUnauthenticated, "Invalid old password")
	}
	if u.PasswordHash, err = a.hasher.Hash(newPassword); err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := a.save(ctx, u); err != nil {
		return nil, err
	}
	pub := u.Public()
	return &pub, nil
}

// RequestPasswordReset issues a reset token for a registered email and
// returns the user id it belongs to.
func (a *Accounts) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", newError(ErrInvalidInput, "Email is required")
	}
	userID, ok, err := a.lookup(ctx, emailKey(email))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", newError(ErrNotFound, "Email not registered")
	}
	token := uuid.NewString()
	if err := a.store.Put(ctx, resetTokenKey(token), email, resetTokenTTL); err != nil {
		return "", unavailable("failed to request password reset", err)
	}
	a.send(ctx, email, "Reset your password",
		fmt.Sprintf("Click to reset: %s/email-redirect?token=%s", a.appURL, token))
	return userID, nil
}

func (a *Accounts) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" || newPassword == "" {
		return newError(ErrInvalidInput, "Invalid or expired token")
	}
	email, ok, err := a.lookup(ctx, resetTokenKey(token))
	if err != nil {
		return err
	}
	if !ok {
		return newError(ErrInvalidInput, "Invalid or expired token")
	}
	userID, ok, err := a.lookup(ctx, emailKey(email))
	if err != nil {
		return err
	}
	if !ok {
		return newError(ErrNotFound, "User not found")
	}
	u, err := a.user(ctx, userID)
	if err != nil {
		return err
	}
	if u.PasswordHash, err = a.hasher.Hash(newPassword); err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := a.save(ctx, u); err != nil {
		return err
	}
	if err := a.store.Delete(ctx, resetTokenKey(token)); err != nil {
		a.log.Warn("invalidate reset token", "user", userID, "err", err)
	}
	return nil
}
