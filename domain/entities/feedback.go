package entities

const (
	MinScore = 1
	MaxScore = 100
)

// Correction is one grammar fix suggested to the learner
type Correction struct {
	Original    string `json:"original"`
	Corrected   string `json:"corrected"`
	Explanation string `json:"explanation"`
}

// ScoredFeedback is a sub-dimension with a score and a free-text comment
type ScoredFeedback struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

// GrammarFeedback carries the grammar score and its corrections
type GrammarFeedback struct {
	Score       int          `json:"score"`
	Corrections []Correction `json:"corrections"`
}

// VocabularyFeedback carries the vocabulary score and suggested alternatives
type VocabularyFeedback struct {
	Score       int      `json:"score"`
	Feedback    string   `json:"feedback"`
	Suggestions []string `json:"suggestions"`
}

// FeedbackReport is the result of the practice (analyze) path
type FeedbackReport struct {
	Transcription  string             `json:"transcription"`
	OverallScore   int                `json:"overallScore"`
	Pronunciation  ScoredFeedback     `json:"pronunciation"`
	Grammar        GrammarFeedback    `json:"grammar"`
	Vocabulary     VocabularyFeedback `json:"vocabulary"`
	Fluency        ScoredFeedback     `json:"fluency"`
	Encouragement  string             `json:"encouragement"`
	PracticeTopics []string           `json:"practiceTopics"`
}

// Normalize clamps every score into [MinScore, MaxScore] and replaces nil
// lists with empty ones. It reports whether any score had to be clamped.
func (r *FeedbackReport) Normalize() bool {
	clamped := false
	for _, score := range []*int{
		&r.OverallScore,
		&r.Pronunciation.Score,
		&r.Grammar.Score,
		&r.Vocabulary.Score,
		&r.Fluency.Score,
	} {
		if v := ClampScore(*score); v != *score {
			*score = v
			clamped = true
		}
	}

	if r.Grammar.Corrections == nil {
		r.Grammar.Corrections = []Correction{}
	}
	if r.Vocabulary.Suggestions == nil {
		r.Vocabulary.Suggestions = []string{}
	}
	if r.PracticeTopics == nil {
		r.PracticeTopics = []string{}
	}
	return clamped
}

// ClampScore bounds a score to [MinScore, MaxScore]
func ClampScore(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
