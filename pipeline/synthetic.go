package pipeline

import (
	"math"
	"math/rand"

	"bodytype/ml"
)

var (
	syntheticGenders    = []string{"Male", "Female"}
	syntheticActivities = []string{"Sedentary", "Lightly Active", "Moderately Active", "Very Active"}
	syntheticGoals      = []string{"Weight Loss", "Muscle Gain", "Maintenance"}
)

// Synthesize generates n labelled records. Categories cycle so every value
// appears once n reaches 12; numbers come from a seeded source, so the same
// seed always yields the same dataset.
func Synthesize(n int, seed int64) []ml.RawRecord {
	rng := rand.New(rand.NewSource(seed))
	records := make([]ml.RawRecord, n)
	for i := range records {
		gender := syntheticGenders[i%len(syntheticGenders)]
		height := 162 + rng.NormFloat64()*7
		if gender == "Male" {
			height += 13
		}
		bmi := 15.5 + rng.Float64()*20
		meters := height / 100
		weight := math.Round(bmi*meters*meters*10) / 10
		height = math.Round(height*10) / 10

		record := ml.RawRecord{
			Age:      float64(18 + rng.Intn(53)),
			Gender:   gender,
			Height:   height,
			Weight:   weight,
			Activity: syntheticActivities[i%len(syntheticActivities)],
			Goal:     syntheticGoals[(i/2)%len(syntheticGoals)],
		}
		actual, _ := ml.BMI(record.Height, record.Weight)
		record.BodyType = ml.BMILabel(actual)
		records[i] = record
	}
	return records
}
