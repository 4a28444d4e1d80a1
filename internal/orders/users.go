package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/VladKvetkin/keyflow/internal/entities"
	"github.com/VladKvetkin/keyflow/internal/services/validation"
	"github.com/VladKvetkin/keyflow/internal/storage"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const referralCodeAttempts = 5

type Profile struct {
	ID       int64
	Username string
	FullName string
}

type Registration struct {
	User     entities.User
	Inserted bool
	// Referred is set when this contact created the user through a referral link.
	Referred bool
}

type Referral struct {
	Code           string
	Link           string
	Count          int64
	BonusBalance   decimal.Decimal
	BonusPerFriend decimal.Decimal
	Discount       decimal.Decimal
}

// RegisterUser records a contact. The referral code only counts on the first
// contact; it is ignored when malformed, unknown or the user's own.
func (s *Service) RegisterUser(ctx context.Context, profile Profile, refCode string) (Registration, error) {
	var referredBy *int64

	if refCode != "" {
		if err := validation.ValidateReferralCode(refCode); err == nil {
			referrer, err := s.storage.GetUserByReferralCode(ctx, refCode)
			switch {
			case err == nil && referrer.ID != profile.ID:
				referredBy = &referrer.ID
			case err != nil && !errors.Is(err, storage.ErrNoRows):
				return Registration{}, fmt.Errorf("error get user by referral code: %w", err)
			}
		}
	}

	for attempt := 0; attempt < referralCodeAttempts; attempt++ {
		user, inserted, err := s.storage.UpsertUser(ctx, entities.User{
			ID:           profile.ID,
			Username:     profile.Username,
			FullName:     profile.FullName,
			ReferralCode: validation.GenerateReferralCode(),
			ReferredBy:   referredBy,
		})
		if errors.Is(err, storage.ErrConflict) {
			continue
		}

		if err != nil {
			return Registration{}, fmt.Errorf("error upsert user: %w", err)
		}

		if inserted {
			zap.L().Info("user registered", zap.Int64("user_id", user.ID), zap.Bool("referred", user.ReferredBy != nil))
		}

		return Registration{
			User:     user,
			Inserted: inserted,
			Referred: inserted && user.ReferredBy != nil,
		}, nil
	}

	return Registration{}, fmt.Errorf("error upsert user: no free referral code after %d attempts", referralCodeAttempts)
}

func (s *Service) ReferralInfo(ctx context.Context, userID int64) (Referral, error) {
	user, err := s.user(ctx, userID)
	if err != nil {
		return Referral{}, err
	}

	count, err := s.storage.CountReferrals(ctx, userID)
	if err != nil {
		return Referral{}, fmt.Errorf("error count referrals: %w", err)
	}

	return Referral{
		Code:           user.ReferralCode,
		Link:           fmt.Sprintf("https://t.me/%s?start=%s", s.options.BotUsername, user.ReferralCode),
		Count:          count,
		BonusBalance:   user.BonusBalance.Round(2),
		BonusPerFriend: s.ledger.ReferralBonus(),
		Discount:       s.options.ReferralDiscount,
	}, nil
}

// ReferralDiscount is shown to referred users. It is never subtracted from an
// order amount.
func (s *Service) ReferralDiscount() decimal.Decimal {
	return s.options.ReferralDiscount
}
