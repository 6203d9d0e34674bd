package ml

import "math"

func Accuracy(predicted, actual []int) float64 {
	if len(actual) == 0 || len(predicted) != len(actual) {
		return 0
	}
	var correct int
	for i := range actual {
		if predicted[i] == actual[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(actual))
}

// ClassReport holds one-vs-rest precision and recall for a class.
type ClassReport struct {
	Class     int
	Precision float64
	Recall    float64
	Support   int
}

func ClassificationReport(predicted, actual []int, classes int) []ClassReport {
	reports := make([]ClassReport, classes)
	for c := range reports {
		var truePositive, predictedPositive, actualPositive int
		for i := range actual {
			if predicted[i] == c {
				predictedPositive++
			}
			if actual[i] == c {
				actualPositive++
				if predicted[i] == c {
					truePositive++
				}
			}
		}
		reports[c] = ClassReport{Class: c, Support: actualPositive}
		if predictedPositive > 0 {
			reports[c].Precision = float64(truePositive) / float64(predictedPositive)
		}
		if actualPositive > 0 {
			reports[c].Recall = float64(truePositive) / float64(actualPositive)
		}
	}
	return reports
}

// RegressionReport mirrors the figures printed after fitting a regressor.
type RegressionReport struct {
	R2            float64
	MSE           float64
	RMSE          float64
	ResidualMean  float64
	ResidualStdev float64
}

func EvaluateRegression(predicted, actual []float64) RegressionReport {
	n := float64(len(actual))
	if n == 0 || len(predicted) != len(actual) {
		return RegressionReport{}
	}
	var mean float64
	for _, y := range actual {
		mean += y
	}
	mean /= n

	var ssRes, ssTot, residualSum float64
	for i, y := range actual {
		diff := y - predicted[i]
		ssRes += diff * diff
		ssTot += (y - mean) * (y - mean)
		residualSum += diff
	}
	report := RegressionReport{
		MSE:          ssRes / n,
		ResidualMean: residualSum / n,
	}
	report.RMSE = math.Sqrt(report.MSE)
	if ssTot > 0 {
		report.R2 = 1 - ssRes/ssTot
	}
	var spread float64
	for i, y := range actual {
		d := (y - predicted[i]) - report.ResidualMean
		spread += d * d
	}
	report.ResidualStdev = math.Sqrt(spread / n)
	return report
}
