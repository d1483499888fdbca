package entities

import (
	"fmt"
	"strings"
)

// Level is a CEFR proficiency tier, ordered from A1 (lowest) to C2 (highest)
type Level string

const (
	LevelA1 Level = "A1"
	LevelA2 Level = "A2"
	LevelB1 Level = "B1"
	LevelB2 Level = "B2"
	LevelC1 Level = "C1"
	LevelC2 Level = "C2"
)

// DefaultLevel is used when a learner has not picked a tier yet
const DefaultLevel = LevelB1

const (
	minSpeechRate = 0.8
	maxSpeechRate = 1.0
)

type levelInfo struct {
	rank        int
	speechRate  float64
	name        string
	description string
}

var levels = map[Level]levelInfo{
	LevelA1: {rank: 1, speechRate: 0.85, name: "Beginner", description: "absolute beginner who knows basic words and phrases"},
	LevelA2: {rank: 2, speechRate: 0.88, name: "Elementary", description: "elementary learner who can handle simple everyday situations"},
	LevelB1: {rank: 3, speechRate: 0.92, name: "Intermediate", description: "intermediate learner who can express opinions on familiar topics"},
	LevelB2: {rank: 4, speechRate: 0.96, name: "Upper Intermediate", description: "upper-intermediate learner who can engage in complex conversations"},
	LevelC1: {rank: 5, speechRate: 1.0, name: "Advanced", description: "advanced learner who can express themselves fluently and spontaneously"},
	LevelC2: {rank: 6, speechRate: 1.0, name: "Mastery", description: "near-native speaker who should demonstrate precision and nuance"},
}

// Levels returns every tier in ascending order
func Levels() []Level {
	return []Level{LevelA1, LevelA2, LevelB1, LevelB2, LevelC1, LevelC2}
}

// ParseLevel converts a level code such as "b1" into a Level
func ParseLevel(code string) (Level, error) {
	level := Level(strings.ToUpper(strings.TrimSpace(code)))
	if _, ok := levels[level]; !ok {
		return "", fmt.Errorf("unknown level %q", code)
	}
	return level, nil
}

// Valid reports whether the level is one of the six known tiers
func (l Level) Valid() bool {
	_, ok := levels[l]
	return ok
}

// Rank returns 1 for A1 up to 6 for C2, 0 for unknown levels
func (l Level) Rank() int {
	return levels[l].rank
}

// Name returns the human readable tier name
func (l Level) Name() string {
	return levels[l].name
}

// Description describes the learner at this level, used in prompts
func (l Level) Description() string {
	return levels[l].description
}

// SpeechRate is the synthesis speed multiplier for replies at this level.
// Unknown levels speak at normal speed.
func (l Level) SpeechRate() float64 {
	info, ok := levels[l]
	if !ok {
		return maxSpeechRate
	}
	rate := info.speechRate
	if rate < minSpeechRate {
		rate = minSpeechRate
	}
	if rate > maxSpeechRate {
		rate = maxSpeechRate
	}
	return rate
}

func (l Level) String() string {
	return string(l)
}
