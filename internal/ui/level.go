package ui

import (
	"math"

	"github.com/charmbracelet/bubbles/progress"
)

// Voice band power, in dB, mapped to an empty and a full meter.
const (
	levelFloor   = -120.0
	levelCeiling = -40.0
)

var levelBar = progress.New(
	progress.WithGradient("#a78bfa", "#10B981"), // Lilac to emerald
	progress.WithWidth(12),
	progress.WithoutPercentage(),
)

// LevelFraction maps a power reading to the 0..1 range of the meter.
func LevelFraction(db float64) float64 {
	if db == 0 || math.IsNaN(db) || db <= levelFloor {
		return 0
	}
	if db >= levelCeiling {
		return 1
	}
	return (db - levelFloor) / (levelCeiling - levelFloor)
}

// LevelView renders a power reading as a meter.
func LevelView(db float64) string {
	return levelBar.ViewAs(LevelFraction(db))
}
