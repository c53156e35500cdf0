package service

import "math"

// Recommendation returns the advice shown next to a BMI.
func Recommendation(bmi float64) string {
	switch {
	case bmi < 18.5:
		return "Consider gaining some weight and building muscle!"
	case bmi < 25:
		return "Keep up the great work!"
	case bmi < 30:
		return "A fitness plan to lose weight could be beneficial."
	default:
		return "It's important to focus on a healthy lifestyle and weight loss."
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
