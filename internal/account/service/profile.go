package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"memberd/internal/account/models"
	"memberd/internal/eventlog"
	"memberd/internal/sentinel"
	dErrors "memberd/pkg/domain-errors"
	"memberd/pkg/validation"
)

// GetProfile returns the full profile of accountID.
func (s *Service) GetProfile(ctx context.Context, accountID uuid.UUID) (*models.Profile, error) {
	account, err := s.findAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	profile := models.ProfileOf(account)
	return &profile, nil
}

// GetPublicProfile returns the member-visible view of accountID.
func (s *Service) GetPublicProfile(ctx context.Context, accountID uuid.UUID) (*models.PublicProfile, error) {
	account, err := s.findAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	profile := models.PublicProfileOf(account)
	return &profile, nil
}

// UpdateProfile applies the non-nil fields of req to the caller's account.
// Changing the email resets the confirmation flag and sends a fresh
// verification mail to the new address.
func (s *Service) UpdateProfile(ctx context.Context, accountID uuid.UUID, req models.UpdateProfileRequest) (*models.Profile, error) {
	if err := validation.Validate(req); err != nil {
		return nil, err
	}

	account, err := s.findAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	changed := map[string]any{}
	emailChanged := false

	if req.Email != nil {
		email := normalizeEmail(*req.Email)
		if email != account.Email {
			changed["email"] = map[string]any{"from": account.Email, "to": email}
			account.Email = email
			account.EmailConfirmed = false
			emailChanged = true
		}
	}
	if req.FirstName != nil && strings.TrimSpace(*req.FirstName) != account.FirstName {
		name := strings.TrimSpace(*req.FirstName)
		changed["first_name"] = map[string]any{"from": account.FirstName, "to": name}
		account.FirstName = name
	}
	if req.LastName != nil && strings.TrimSpace(*req.LastName) != account.LastName {
		name := strings.TrimSpace(*req.LastName)
		changed["last_name"] = map[string]any{"from": account.LastName, "to": name}
		account.LastName = name
	}

	if len(changed) == 0 {
		profile := models.ProfileOf(account)
		return &profile, nil
	}

	if err := s.accounts.Update(ctx, account); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "email is already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not update account")
	}

	s.events.Record(ctx, eventlog.ActionProfileUpdate, &account.ID, changed)

	if emailChanged {
		s.sendVerification(ctx, account)
	}

	profile := models.ProfileOf(account)
	return &profile, nil
}

// ChangePassword rotates the caller's password after checking the current
// one. The new password must differ from the old.
func (s *Service) ChangePassword(ctx context.Context, accountID uuid.UUID, req models.ChangePasswordRequest) error {
	if err := validation.Validate(req); err != nil {
		return err
	}

	account, err := s.findAccount(ctx, accountID)
	if err != nil {
		return err
	}

	if !s.hasher.Verify(req.CurrentPassword, account.PasswordHash) {
		return dErrors.New(dErrors.CodeUnauthorized, "current password is incorrect")
	}
	if req.NewPassword == req.CurrentPassword {
		return dErrors.New(dErrors.CodeValidation, "new password must differ from the current password")
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return err
	}
	account.PasswordHash = hash
	if err := s.accounts.Update(ctx, account); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not update account")
	}

	s.events.Record(ctx, eventlog.ActionPasswordChange, &account.ID, nil)
	return nil
}

func (s *Service) findAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not look up account")
	}
	return account, nil
}
