package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/hackhub-api/internal/dto"
	"github.com/noah-isme/hackhub-api/internal/models"
	"github.com/noah-isme/hackhub-api/internal/repository"
)

var (
	// ErrSeedDisabled indicates the seeding tools are disabled by configuration.
	ErrSeedDisabled = errors.New("seeding is disabled")
	// ErrSeedUnauthorized indicates the provided token is invalid.
	ErrSeedUnauthorized = errors.New("invalid seed token")
)

// SeedService loads challenge definitions and their scoring rubrics.
type SeedService interface {
	SeedChallenges(ctx context.Context, token string, payload dto.ChallengeSeedRequest) (int64, error)
}

type seedService struct {
	challenges repository.ChallengeRepository
	validator  *validator.Validate
	plain      *bluemonday.Policy
	enabled    bool
	token      string
	logger     zerolog.Logger
}

// NewSeedService constructs a seeding service.
func NewSeedService(challenges repository.ChallengeRepository, validate *validator.Validate, enabled bool, token string, logger zerolog.Logger) SeedService {
	return &seedService{
		challenges: challenges,
		validator:  validate,
		plain:      bluemonday.StrictPolicy(),
		enabled:    enabled,
		token:      token,
		logger:     logger.With().Str("component", "seed_service").Logger(),
	}
}

func (s *seedService) SeedChallenges(ctx context.Context, token string, payload dto.ChallengeSeedRequest) (int64, error) {
	if !s.enabled {
		return 0, ErrSeedDisabled
	}
	if !s.validateToken(token) {
		return 0, ErrSeedUnauthorized
	}
	if err := s.validator.Struct(payload); err != nil {
		return 0, err
	}

	affected, err := s.challenges.UpsertBatch(ctx, s.normalizeChallenges(payload.Items))
	if err != nil {
		return 0, err
	}
	s.logger.Info().Int64("affected", affected).Msg("challenges seeded")
	return affected, nil
}

func (s *seedService) validateToken(token string) bool {
	expected := strings.TrimSpace(s.token)
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.TrimSpace(token))) == 1
}

func (s *seedService) normalizeChallenges(items []dto.ChallengeSeed) []models.Challenge {
	challenges := make([]models.Challenge, 0, len(items))
	for _, item := range items {
		challenge := models.Challenge{
			ID:          strings.TrimSpace(item.ID),
			Title:       strings.TrimSpace(s.plain.Sanitize(item.Title)),
			Description: strings.TrimSpace(s.plain.Sanitize(item.Description)),
		}
		if len(item.Rubric) > 0 {
			rubric := datatypes.JSONMap{}
			for name, criterion := range item.Rubric {
				rubric[strings.TrimSpace(name)] = map[string]interface{}{
					"weight":      criterion.Weight,
					"description": strings.TrimSpace(criterion.Description),
				}
			}
			challenge.Rubric = rubric
		}
		challenges = append(challenges, challenge)
	}
	return challenges
}
