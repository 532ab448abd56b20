package training

// Metrics are binary classification scores for the completed class.
type Metrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`
	Support   int     `json:"support"`
}

// Evaluate scores predictions against truth. Undefined ratios are 0.
func Evaluate(truth, predicted []int) Metrics {
	var tp, tn, fp, fn int
	for i := range truth {
		switch {
		case truth[i] == 1 && predicted[i] == 1:
			tp++
		case truth[i] == 0 && predicted[i] == 0:
			tn++
		case truth[i] == 0 && predicted[i] == 1:
			fp++
		default:
			fn++
		}
	}

	m := Metrics{Support: len(truth)}
	if len(truth) > 0 {
		m.Accuracy = float64(tp+tn) / float64(len(truth))
	}
	if tp+fp > 0 {
		m.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		m.Recall = float64(tp) / float64(tp+fn)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m
}
