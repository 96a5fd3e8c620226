package dedup

// Recommendation tells a reviewer what to do with a candidate
type Recommendation string

const (
	RecommendApprove    Recommendation = "APPROVE"
	RecommendReject     Recommendation = "REJECT"
	RecommendModify     Recommendation = "MODIFY"
	RecommendReview     Recommendation = "REVIEW"
	RecommendCaution    Recommendation = "CAUTION"
	RecommendBestEffort Recommendation = "BEST_EFFORT"
)

var recommendationMessages = map[Recommendation]string{
	RecommendApprove:    "Hypothesis is unique and can be used.",
	RecommendReject:     "Hypothesis is nearly identical to existing work. Generate a new one.",
	RecommendModify:     "Hypothesis is very similar to existing work. Change the technique or focus.",
	RecommendReview:     "Hypothesis is similar to existing work. Review it for meaningful differences.",
	RecommendCaution:    "Hypothesis overlaps with existing work. Consider differentiating it.",
	RecommendBestEffort: "Best available candidate after all attempts, still similar to existing work.",
}

// Message returns advisory text for the recommendation.
func (r Recommendation) Message() string {
	return recommendationMessages[r]
}

func recommend(duplicate bool, score float64) Recommendation {
	switch {
	case !duplicate:
		return RecommendApprove
	case score >= 0.9:
		return RecommendReject
	case score >= 0.8:
		return RecommendModify
	case score >= 0.7:
		return RecommendReview
	default:
		return RecommendCaution
	}
}
