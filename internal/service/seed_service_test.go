package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hackhub-api/internal/dto"
	"github.com/noah-isme/hackhub-api/internal/models"
)

type seedChallengeRepo struct {
	stubChallengeRepo
	items []models.Challenge
}

func (s *seedChallengeRepo) UpsertBatch(_ context.Context, items []models.Challenge) (int64, error) {
	s.items = items
	return int64(len(items)), nil
}

func TestSeedServiceTokenGuard(t *testing.T) {
	repo := &seedChallengeRepo{}
	validate := validator.New(validator.WithRequiredStructEnabled())
	payload := dto.ChallengeSeedRequest{Items: []dto.ChallengeSeed{{Title: "Climate"}}}

	_, err := NewSeedService(repo, validate, false, "secret", zerolog.Nop()).SeedChallenges(context.Background(), "secret", payload)
	require.ErrorIs(t, err, ErrSeedDisabled)

	svc := NewSeedService(repo, validate, true, "secret", zerolog.Nop())
	_, err = svc.SeedChallenges(context.Background(), "wrong", payload)
	require.ErrorIs(t, err, ErrSeedUnauthorized)
	require.Nil(t, repo.items)

	affected, err := svc.SeedChallenges(context.Background(), " secret ", payload)
	require.NoError(t, err)
	require.Equal(t, int64(1), affected)
}

func TestSeedServiceStoresRubricInScoringShape(t *testing.T) {
	repo := &seedChallengeRepo{}
	svc := NewSeedService(repo, validator.New(validator.WithRequiredStructEnabled()), true, "secret", zerolog.Nop())

	_, err := svc.SeedChallenges(context.Background(), "secret", dto.ChallengeSeedRequest{Items: []dto.ChallengeSeed{{
		ID:          "climate",
		Title:       "<b>Climate</b> track",
		Description: "Build for the planet<script>x()</script>",
		Rubric: map[string]dto.RubricCriterionSeed{
			"sustainability": {Weight: 60, Description: "Climate impact"},
			"design":         {Weight: 40},
		},
	}}})
	require.NoError(t, err)
	require.Len(t, repo.items, 1)

	seeded := repo.items[0]
	require.Equal(t, "climate", seeded.ID)
	require.Equal(t, "Climate track", seeded.Title)
	require.NotContains(t, seeded.Description, "script")

	rubric := rubricFromJSON(seeded.Rubric)
	require.InDelta(t, 60, rubric["sustainability"].Weight, 0.001)
	require.Equal(t, "Climate impact", rubric["sustainability"].Description)
	require.InDelta(t, 40, rubric["design"].Weight, 0.001)
}

func TestSeedServiceValidatesPayload(t *testing.T) {
	repo := &seedChallengeRepo{}
	svc := NewSeedService(repo, validator.New(validator.WithRequiredStructEnabled()), true, "secret", zerolog.Nop())

	_, err := svc.SeedChallenges(context.Background(), "secret", dto.ChallengeSeedRequest{Items: []dto.ChallengeSeed{{
		Title:  "Bad weights",
		Rubric: map[string]dto.RubricCriterionSeed{"impact": {Weight: 150}},
	}}})
	var validationErrs validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrs)
	require.Nil(t, repo.items)
}
