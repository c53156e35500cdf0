package trainer

import (
	"fmt"

	"bodytype/artifact"
	"bodytype/ml"
)

// Evaluate scores a fitted model on the held-out rows. Confusion rows are the
// true class and columns the predicted class.
func Evaluate(model ml.Classifier, features [][]float64, labels []int, mapping *ml.LabelMapping) (artifact.Metrics, error) {
	classes := mapping.Len()
	metrics := artifact.Metrics{
		TestRows:  len(features),
		Confusion: make([][]int, classes),
	}
	for i := range metrics.Confusion {
		metrics.Confusion[i] = make([]int, classes)
	}
	if len(features) == 0 {
		return metrics, fmt.Errorf("no rows to evaluate")
	}

	correct := 0
	for i, row := range features {
		predicted, _, err := model.Predict(row)
		if err != nil {
			return metrics, err
		}
		if predicted < 0 || predicted >= classes || labels[i] < 0 || labels[i] >= classes {
			return metrics, fmt.Errorf("class out of range: predicted %d, actual %d", predicted, labels[i])
		}
		metrics.Confusion[labels[i]][predicted]++
		if predicted == labels[i] {
			correct++
		}
	}
	metrics.TestAccuracy = float64(correct) / float64(len(features))

	for class := 0; class < classes; class++ {
		name, err := mapping.Decode(class)
		if err != nil {
			return metrics, err
		}
		truePositive := metrics.Confusion[class][class]
		support, predicted := 0, 0
		for other := 0; other < classes; other++ {
			support += metrics.Confusion[class][other]
			predicted += metrics.Confusion[other][class]
		}
		cm := artifact.ClassMetrics{Label: name, Support: support}
		if predicted > 0 {
			cm.Precision = float64(truePositive) / float64(predicted)
		}
		if support > 0 {
			cm.Recall = float64(truePositive) / float64(support)
		}
		metrics.Classes = append(metrics.Classes, cm)
	}
	return metrics, nil
}

// macroAverages averages precision and recall over classes present in the
// evaluation rows.
func macroAverages(metrics artifact.Metrics) (precision, recall float64) {
	n := 0
	for _, cm := range metrics.Classes {
		if cm.Support == 0 {
			continue
		}
		precision += cm.Precision
		recall += cm.Recall
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return precision / float64(n), recall / float64(n)
}
