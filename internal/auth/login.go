package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/alexjbarnes/sitegate/internal/errors"
	"github.com/alexjbarnes/sitegate/internal/models"
	"github.com/alexjbarnes/sitegate/internal/repository"
	"github.com/alexjbarnes/sitegate/internal/secret"
)

// LoginState is the outcome of a login attempt.
type LoginState string

const (
	LoginInvalidUser       LoginState = "invalid_user"
	LoginInvalidUserConfig LoginState = "invalid_user_config"
	LoginDisabled          LoginState = "disabled"
	LoginLocked            LoginState = "locked"
	LoginFailed            LoginState = "failed"
	LoginSuccess           LoginState = "success"
)

// LoginResult carries the login state and, on success, the stored
// display name and email.
type LoginResult struct {
	State    LoginState
	Username string
	Name     string
	Email    string
}

// Login checks a username and password against the credential store.
//
// Checks run in a fixed order: disabled, locked (an elapsed lock is
// cleared and evaluation continues), retry window reset, password
// compare. All counter and flag changes are persisted before returning.
// A non-nil error means the store or policy could not be read.
func (r *Request) Login(ctx context.Context, username, password string) (LoginResult, error) {
	logger := r.core.logger.With(slog.String("username", username), slog.String("ip", r.info.IP))

	name, err := repository.NormalizeName(username)
	if err != nil {
		logger.Warn("login: invalid username")
		return LoginResult{State: LoginInvalidUser}, nil
	}

	now := r.core.now().Unix()
	result := LoginResult{Username: name}

	err = r.core.repo.UpdateUser(ctx, name, func(u *models.User, policy models.Policy) (bool, error) {
		if u.Password == "" {
			result.State = LoginInvalidUserConfig
			return false, nil
		}

		if u.AccountDisabled {
			result.State = LoginDisabled
			return false, nil
		}

		changed := false

		if u.AccountLocked {
			if now < u.PasswordAttemptsExpires {
				result.State = LoginLocked
				return false, nil
			}

			u.ClearAttempts()

			changed = true
		}

		if u.PasswordAttempts != 0 && now >= u.PasswordAttemptsExpires {
			u.PasswordAttempts = 0
			u.PasswordAttemptsExpires = 0
			changed = true
		}

		if secret.VerifyPassword(password, u.Password) {
			if u.ClearAttempts() {
				changed = true
			}

			result.State = LoginSuccess
			result.Name = u.Name
			result.Email = u.Email

			return changed, nil
		}

		retries, ok := policy.Int(models.PolicyPasswordRetries)
		if !ok {
			return false, fmt.Errorf("%q: %w", models.PolicyPasswordRetries, apperrors.ErrPolicyMissing)
		}

		lockout, ok := policy.String(models.PolicyAccountLockout)
		if !ok {
			return false, fmt.Errorf("%q: %w", models.PolicyAccountLockout, apperrors.ErrPolicyMissing)
		}

		u.PasswordAttempts++
		u.PasswordAttemptsExpires = now + secret.ParseDuration(lockout)

		if u.PasswordAttempts >= retries {
			u.AccountLocked = true
		}

		result.State = LoginFailed

		return true, nil
	})

	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		logger.Warn("login: unknown user")
		return LoginResult{State: LoginInvalidUser}, nil
	case err != nil:
		logger.Error("login: credential store", slog.String("error", err.Error()))
		return LoginResult{State: LoginFailed}, err
	}

	switch result.State {
	case LoginSuccess:
		logger.Info("login: success")
	case LoginFailed:
		logger.Warn("login: wrong password")
	case LoginLocked, LoginDisabled:
		logger.Warn("login: rejected", slog.String("state", string(result.State)))
	case LoginInvalidUserConfig:
		logger.Error("login: user has no password hash")
	}

	return result, nil
}
