package gamification

import "math"

// xpPerLevelUnit scales the level curve: level L starts at 100*(L-1)^2 XP.
const xpPerLevelUnit = 100

// LevelFor returns floor(sqrt(totalXP/100)) + 1. Negative input counts as 0.
func LevelFor(totalXP int64) int {
	if totalXP < 0 {
		totalXP = 0
	}
	return int(isqrt(totalXP/xpPerLevelUnit)) + 1
}

// MinXPForLevel returns the XP floor of level. Levels below 1 clamp to 1.
func MinXPForLevel(level int) int64 {
	if level < 1 {
		level = 1
	}
	d := int64(level - 1)
	return xpPerLevelUnit * d * d
}

// ProgressWithinLevel returns the XP earned past the current level's floor
// and the XP span of the current level.
func ProgressWithinLevel(totalXP int64) (currentLevelXP, nextLevelXP int64) {
	if totalXP < 0 {
		totalXP = 0
	}
	level := LevelFor(totalXP)
	floor := MinXPForLevel(level)
	return totalXP - floor, MinXPForLevel(level+1) - floor
}

// isqrt is floor(sqrt(n)) without float drift for large n.
func isqrt(n int64) int64 {
	if n <= 0 {
		return 0
	}
	r := int64(math.Sqrt(float64(n)))
	for r*r > n {
		r--
	}
	for (r+1)*(r+1) <= n {
		r++
	}
	return r
}

// StreakMultiplier returns the XP multiplier for a daily streak.
func StreakMultiplier(currentStreak int) float64 {
	if currentStreak < 3 {
		return 1.0
	}
	if currentStreak < 7 {
		return 1.15
	}
	if currentStreak < 14 {
		return 1.25
	}
	if currentStreak < 30 {
		return 1.5
	}
	return 2.0
}

// ApplyMultiplier rounds the multiplied XP to the nearest integer, never
// below 1 for a positive grant.
func ApplyMultiplier(xp int, multiplier float64) int {
	if multiplier <= 0 {
		multiplier = 1
	}
	scaled := int(math.Round(float64(xp) * multiplier))
	if xp > 0 && scaled < 1 {
		return 1
	}
	return scaled
}

// QuizCompletionXP returns XP for finishing a quiz at the given percentage.
func QuizCompletionXP(percentage int) int {
	if percentage < 50 {
		return 10
	}
	if percentage < 70 {
		return 15
	}
	if percentage < 90 {
		return 20
	}
	if percentage < 100 {
		return 25
	}
	return 30
}

// PerfectScoreBonus is granted on top of QuizCompletionXP for 100%.
const PerfectScoreBonus = 25

// streakMilestones maps a streak length to its one-off STREAK_BONUS XP.
var streakMilestones = map[int]int{
	3: 10, 7: 25, 14: 50, 30: 100, 60: 200, 100: 500, 365: 1000,
}

// StreakBonusXP returns the bonus for reaching exactly currentStreak days,
// or 0 if it is not a milestone.
func StreakBonusXP(currentStreak int) int {
	return streakMilestones[currentStreak]
}

// Percentage returns score/maxScore as a whole percentage.
func Percentage(score, maxScore int) int {
	if maxScore <= 0 {
		return 0
	}
	if score > maxScore {
		score = maxScore
	}
	return score * 100 / maxScore
}
