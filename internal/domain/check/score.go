package check

// Rating is the qualitative band of a security score.
type Rating string

const (
	RatingExcellent Rating = "Excellent"
	RatingGood      Rating = "Good"
	RatingFair      Rating = "Fair"
	RatingPoor      Rating = "Poor"
	RatingCritical  Rating = "Critical"
)

// warnCreditPercent is the share of a rule's weight earned by a warning.
const warnCreditPercent = 70

// Score is the aggregate of all rule results.
type Score struct {
	Score       int    `json:"score"`
	Rating      Rating `json:"rating"`
	Description string `json:"description"`
	Passed      int    `json:"passed"`
	Warned      int    `json:"warned"`
	Failed      int    `json:"failed"`
	Unknown     int    `json:"unknown"`
}

type band struct {
	min         int
	rating      Rating
	description string
}

var bands = []band{
	{85, RatingExcellent, "Strong security configuration with minimal risk factors"},
	{70, RatingGood, "Solid security with some areas for improvement"},
	{50, RatingFair, "Moderate security; several risks should be addressed"},
	{30, RatingPoor, "Weak security configuration with significant risks"},
	{0, RatingCritical, "Critical security issues; immediate action recommended"},
}

// Aggregate folds results into a 0-100 score. Each rule contributes its
// catalogue weight: full credit on pass, partial on warn, none otherwise.
// Unknown never earns credit so missing data cannot raise a score.
func Aggregate(results []Result) Score {
	var s Score
	credit := 0
	for _, r := range results {
		weight := 0
		if meta, ok := ruleCatalogue[r.RuleID]; ok {
			weight = meta.Weight
		}
		switch r.Status {
		case StatusPass:
			s.Passed++
			credit += weight * 100
		case StatusWarn:
			s.Warned++
			credit += weight * warnCreditPercent
		case StatusFail:
			s.Failed++
		default:
			s.Unknown++
		}
	}

	total := (credit + 50) / 100
	if total > 100 {
		total = 100
	}
	s.Score = total
	s.Rating, s.Description = RatingFor(total)
	return s
}

// RatingFor maps a score to its rating band.
func RatingFor(score int) (Rating, string) {
	for _, b := range bands {
		if score >= b.min {
			return b.rating, b.description
		}
	}
	last := bands[len(bands)-1]
	return last.rating, last.description
}
