package workflow

import "fmt"

type RiskLevel string

const (
	RiskConservative RiskLevel = "CONSERVATIVE"
	RiskModerate     RiskLevel = "MODERATE"
	RiskAggressive   RiskLevel = "AGGRESSIVE"
)

const (
	MinRiskScore = 0
	MaxRiskScore = 100
)

func (l RiskLevel) Valid() bool {
	return l == RiskConservative || l == RiskModerate || l == RiskAggressive
}

// LevelForScore bands a risk score. Banding is monotonic in the score.
func LevelForScore(score int) (RiskLevel, error) {
	switch {
	case score < MinRiskScore || score > MaxRiskScore:
		return "", fmt.Errorf("workflow: risk score %d out of range [%d,%d]", score, MinRiskScore, MaxRiskScore)
	case score <= 30:
		return RiskConservative, nil
	case score <= 70:
		return RiskModerate, nil
	default:
		return RiskAggressive, nil
	}
}

type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// PriorityForScore sets task priority from the assessment's risk score.
func PriorityForScore(score int) Priority {
	switch {
	case score >= 80:
		return PriorityCritical
	case score >= 60:
		return PriorityHigh
	case score >= 40:
		return PriorityMedium
	default:
		return PriorityLow
	}
}
