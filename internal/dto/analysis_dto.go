package dto

import "time"

// AnalysisTriggerRequest starts (or returns) the analysis of one submission.
type AnalysisTriggerRequest struct {
	SubmissionID string `json:"submissionId" validate:"required,max=64"`
}

// AnalysisBatchRequest re-analyzes a list of submissions sequentially.
type AnalysisBatchRequest struct {
	SubmissionIDs []string `json:"submissionIds" validate:"required,min=1,max=50,dive,required,max=64"`
}

// AnalysisDetail is the full scoring result, visible to judges and admins only.
type AnalysisDetail struct {
	Score            float64                `json:"score"`
	SubScores        map[string]interface{} `json:"subscores"`
	Rationale        string                 `json:"rationale"`
	DetailedAnalysis map[string]interface{} `json:"detailedAnalysis"`
	AnalyzedAt       *time.Time             `json:"analyzedAt"`
}

// AnalysisTriggerResponse is returned by the trigger endpoint. Analysis is set for privileged
// callers, Message for submission owners.
type AnalysisTriggerResponse struct {
	Success      bool            `json:"success"`
	SubmissionID string          `json:"submissionId"`
	Analyzed     bool            `json:"analyzed"`
	Analysis     *AnalysisDetail `json:"analysis,omitempty"`
	Message      string          `json:"message,omitempty"`
}

// AnalysisStatusResponse never includes the rationale.
type AnalysisStatusResponse struct {
	SubmissionID string     `json:"submissionId"`
	Analyzed     bool       `json:"analyzed"`
	AnalyzedAt   *time.Time `json:"analyzedAt"`
	Score        *float64   `json:"score"`
}

// AnalysisBatchItem reports the outcome for one id of a batch run.
type AnalysisBatchItem struct {
	SubmissionID string   `json:"submissionId"`
	Success      bool     `json:"success"`
	Score        *float64 `json:"score,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// AnalysisBatchResponse summarises a batch run.
type AnalysisBatchResponse struct {
	Total      int                 `json:"total"`
	Successful int                 `json:"successful"`
	Failed     int                 `json:"failed"`
	Results    []AnalysisBatchItem `json:"results"`
}
