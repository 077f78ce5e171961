package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opalhealth/backend/pkg/common/logger"
	"github.com/opalhealth/backend/pkg/common/models"
	"github.com/opalhealth/backend/pkg/common/validation"
	"github.com/opalhealth/backend/pkg/relationships"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

// ErrVerificationRequired is returned when redemption is attempted before
// the out-of-band verification code was confirmed.
var ErrVerificationRequired = errors.New("verification code not confirmed")

// SMSSender delivers a registration message to a phone number. The concrete
// gateway is a collaborator owned outside this module.
type SMSSender interface {
	Send(ctx context.Context, phone, message string) error
}

type Options struct {
	CodeValidity time.Duration
	MaxAttempts  int
	VerifyTTL    time.Duration
}

type Service struct {
	repo  *relationships.Repository
	redis *redis.Client
	sms   SMSSender
	opts  Options
}

// NewService wires the redemption workflow. sms may be nil when no gateway
// is configured; verification codes are then only logged.
func NewService(repo *relationships.Repository, redisClient *redis.Client, sms SMSSender, opts Options) *Service {
	if opts.CodeValidity <= 0 {
		opts.CodeValidity = 72 * time.Hour
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.VerifyTTL <= 0 {
		opts.VerifyTTL = 10 * time.Minute
	}
	return &Service{
		repo:  repo,
		redis: redisClient,
		sms:   sms,
		opts:  opts,
	}
}

func verifyKey(code string) string { return "registration:verify:" + code }

// SendVerificationCode issues a short-lived verification code for the
// registration code and delivers it to the caregiver's phone.
func (s *Service) SendVerificationCode(ctx context.Context, codeValue string) error {
	code, err := s.repo.GetCodeByValue(ctx, codeValue)
	if err != nil {
		return err
	}
	if err := CheckRedeemable(code, time.Now().UTC(), s.opts.CodeValidity); err != nil {
		return err
	}

	verification, err := GenerateVerificationCode()
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, verifyKey(codeValue), verification, s.opts.VerifyTTL).Err(); err != nil {
		return fmt.Errorf("store verification code: %w", err)
	}

	rel, err := s.repo.GetRelationship(ctx, code.RelationshipID)
	if err != nil {
		return err
	}
	if s.sms == nil || rel.Caregiver.User.Phone == "" {
		logger.Log.WithField("code", codeValue).Warn("No SMS gateway or phone; verification code not delivered")
		return nil
	}
	message := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.",
		verification, int(s.opts.VerifyTTL.Minutes()))
	return s.sms.Send(ctx, rel.Caregiver.User.Phone, message)
}

// VerifyCode checks the out-of-band verification code, counting failed
// attempts and blocking the registration code when too many accumulate.
func (s *Service) VerifyCode(ctx context.Context, codeValue, verification string) error {
	code, err := s.repo.GetCodeByValue(ctx, codeValue)
	if err != nil {
		return err
	}
	if err := CheckRedeemable(code, time.Now().UTC(), s.opts.CodeValidity); err != nil {
		return err
	}

	stored, err := s.redis.Get(ctx, verifyKey(codeValue)).Result()
	if errors.Is(err, redis.Nil) {
		return validation.FieldErrors{"verification_code": {"verification code expired; request a new one"}}
	}
	if err != nil {
		return fmt.Errorf("load verification code: %w", err)
	}

	if stored != verification {
		attempts, err := s.repo.IncrementCodeAttempts(ctx, code.ID)
		if err != nil {
			return err
		}
		if attempts >= s.opts.MaxAttempts {
			if err := s.repo.UpdateCodeStatus(ctx, code.ID, models.RegistrationCodeStatusBlocked); err != nil {
				return err
			}
			return validation.FieldErrors{"code": {"this registration code is blocked"}}
		}
		return validation.FieldErrors{"verification_code": {"verification code does not match"}}
	}

	return s.redis.Set(ctx, verifyKey(codeValue)+":ok", "1", s.opts.VerifyTTL).Err()
}

// Redeem completes registration: it activates the skeleton caregiver
// account and marks the code REGISTERED, atomically. A code can be redeemed
// exactly once.
func (s *Service) Redeem(ctx context.Context, req models.RedemptionRequest) (models.Relationship, error) {
	errs := validation.FieldErrors{}
	if req.Code == "" {
		errs.Add("code", "code is required")
	}
	if req.Username == "" {
		errs.Add("username", "username is required")
	}
	if len(req.Password) < 8 {
		errs.Add("password", "password must be at least 8 characters")
	}
	if !errs.Empty() {
		return models.Relationship{}, errs
	}

	verified, err := s.redis.Exists(ctx, verifyKey(req.Code)+":ok").Result()
	if err != nil {
		return models.Relationship{}, fmt.Errorf("check verification: %w", err)
	}
	if verified == 0 {
		return models.Relationship{}, ErrVerificationRequired
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.Relationship{}, err
	}

	var redeemed models.Relationship
	err = s.repo.Transaction(ctx, func(tx *relationships.Repository) error {
		code, err := tx.GetCodeByValue(ctx, req.Code)
		if err != nil {
			return err
		}
		if err := CheckRedeemable(code, time.Now().UTC(), s.opts.CodeValidity); err != nil {
			return err
		}

		rel, err := tx.GetRelationship(ctx, code.RelationshipID)
		if err != nil {
			return err
		}

		if err := tx.ActivateCaregiver(ctx, rel.Caregiver.ID, relationships.ActivateCaregiverInput{
			Username:     req.Username,
			PasswordHash: string(hash),
			Phone:        req.Phone,
			Language:     req.Language,
		}); err != nil {
			return err
		}

		if err := tx.UpdateCodeStatus(ctx, code.ID, models.RegistrationCodeStatusRegistered); err != nil {
			return err
		}

		redeemed, err = tx.GetRelationship(ctx, code.RelationshipID)
		return err
	})
	if err != nil {
		return models.Relationship{}, err
	}

	s.redis.Del(ctx, verifyKey(req.Code), verifyKey(req.Code)+":ok")

	logger.Log.WithFields(map[string]interface{}{
		"relationship_id": redeemed.ID,
		"caregiver_id":    redeemed.Caregiver.ID,
	}).Info("Registration code redeemed")

	return redeemed, nil
}
