package dto

// RubricCriterionSeed describes one scoring dimension of a seeded challenge.
type RubricCriterionSeed struct {
	Weight      float64 `json:"weight" validate:"gte=0,lte=100"`
	Description string  `json:"description" validate:"max=500"`
}

// ChallengeSeed is one challenge in a seed payload. ID is optional; reusing an id updates the row.
type ChallengeSeed struct {
	ID          string                         `json:"id" validate:"omitempty,max=36"`
	Title       string                         `json:"title" validate:"required,max=255"`
	Description string                         `json:"description" validate:"max=5000"`
	Rubric      map[string]RubricCriterionSeed `json:"rubric" validate:"omitempty,max=20,dive,keys,required,max=64,endkeys"`
}

// ChallengeSeedRequest is the body of the challenge seed endpoint.
type ChallengeSeedRequest struct {
	Items []ChallengeSeed `json:"items" validate:"required,min=1,max=100,dive"`
}
