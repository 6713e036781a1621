package metrics

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/liverrisk/pkg/errors"
)

// ConfusionMatrix は混同行列を返す。行が真のラベル、列が予測ラベル。
// labelsがnilの場合はyTrueとyPredに現れる値を昇順に使う。
func ConfusionMatrix(yTrue, yPred *mat.VecDense, labels []float64) (*mat.Dense, error) {
	n, err := checkPair("ConfusionMatrix", yTrue, yPred)
	if err != nil {
		return nil, err
	}
	if labels == nil {
		labels = uniqueLabels(yTrue, yPred)
	}
	if len(labels) == 0 {
		return nil, errors.NewValueError("ConfusionMatrix", "no labels")
	}
	pos := make(map[float64]int, len(labels))
	for i, l := range labels {
		pos[l] = i
	}

	cm := mat.NewDense(len(labels), len(labels), nil)
	for i := 0; i < n; i++ {
		r, okT := pos[yTrue.AtVec(i)]
		c, okP := pos[yPred.AtVec(i)]
		if okT && okP {
			cm.Set(r, c, cm.At(r, c)+1)
		}
	}
	return cm, nil
}

func uniqueLabels(vs ...*mat.VecDense) []float64 {
	seen := map[float64]bool{}
	var out []float64
	for _, v := range vs {
		for i := 0; i < v.Len(); i++ {
			if x := v.AtVec(i); !seen[x] {
				seen[x] = true
				out = append(out, x)
			}
		}
	}
	sort.Float64s(out)
	return out
}

// PRFS はクラスごとの適合率・再現率・F1・サポート
type PRFS struct {
	Labels    []float64
	Precision []float64
	Recall    []float64
	F1        []float64
	Support   []int
}

// PrecisionRecallFScoreSupport はクラスごとの指標を計算する
// 分母が0になる指標は0とし、UndefinedMetricWarningを発行する。
func PrecisionRecallFScoreSupport(yTrue, yPred *mat.VecDense, labels []float64) (PRFS, error) {
	if labels == nil && yTrue != nil && yPred != nil {
		labels = uniqueLabels(yTrue, yPred)
	}
	cm, err := ConfusionMatrix(yTrue, yPred, labels)
	if err != nil {
		return PRFS{}, errors.Wrap(err, "PrecisionRecallFScoreSupport")
	}

	k := len(labels)
	out := PRFS{
		Labels:    append([]float64(nil), labels...),
		Precision: make([]float64, k),
		Recall:    make([]float64, k),
		F1:        make([]float64, k),
		Support:   make([]int, k),
	}
	for i := 0; i < k; i++ {
		tp := cm.At(i, i)
		predicted := mat.Sum(cm.ColView(i))
		actual := mat.Sum(cm.RowView(i))
		out.Support[i] = int(actual)

		if predicted == 0 {
			errors.Warn(errors.NewUndefinedMetricWarning("precision",
				fmt.Sprintf("no predicted samples for label %v", labels[i]), 0))
		} else {
			out.Precision[i] = tp / predicted
		}
		if actual == 0 {
			errors.Warn(errors.NewUndefinedMetricWarning("recall",
				fmt.Sprintf("no true samples for label %v", labels[i]), 0))
		} else {
			out.Recall[i] = tp / actual
		}
		if p, r := out.Precision[i], out.Recall[i]; p+r > 0 {
			out.F1[i] = 2 * p * r / (p + r)
		}
	}
	return out, nil
}

// ClassificationReport はクラスごとの適合率・再現率・F1・サポートと
// accuracy / macro avg / weighted avg を表形式の文字列で返す。
// targetNamesがnilの場合はラベル値を名前に使う。
func ClassificationReport(yTrue, yPred *mat.VecDense, labels []float64, targetNames []string, digits int) (string, error) {
	prfs, err := PrecisionRecallFScoreSupport(yTrue, yPred, labels)
	if err != nil {
		return "", err
	}
	if targetNames == nil {
		for _, l := range prfs.Labels {
			targetNames = append(targetNames, fmt.Sprintf("%g", l))
		}
	}
	if len(targetNames) != len(prfs.Labels) {
		return "", errors.NewDimensionError("ClassificationReport", len(prfs.Labels), len(targetNames), 0)
	}
	if digits <= 0 {
		digits = 2
	}

	const lastHeading = "weighted avg"
	width := len(lastHeading)
	for _, name := range targetNames {
		if len(name) > width {
			width = len(name)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%*s ", width, "")
	for _, h := range []string{"precision", "recall", "f1-score", "support"} {
		fmt.Fprintf(&sb, " %9s", h)
	}
	sb.WriteString("\n\n")

	row := func(name string, p, r, f float64, support int) {
		fmt.Fprintf(&sb, "%*s  %9.*f %9.*f %9.*f %9d\n", width, name, digits, p, digits, r, digits, f, support)
	}

	total := 0
	for i, name := range targetNames {
		row(name, prfs.Precision[i], prfs.Recall[i], prfs.F1[i], prfs.Support[i])
		total += prfs.Support[i]
	}
	sb.WriteString("\n")

	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&sb, "%*s  %9s %9s %9.*f %9d\n", width, "accuracy", "", "", digits, acc, total)

	var macro, weighted [3]float64
	for i := range prfs.Labels {
		vals := [3]float64{prfs.Precision[i], prfs.Recall[i], prfs.F1[i]}
		for j, v := range vals {
			macro[j] += v / float64(len(prfs.Labels))
			if total > 0 {
				weighted[j] += v * float64(prfs.Support[i]) / float64(total)
			}
		}
	}
	row("macro avg", macro[0], macro[1], macro[2], total)
	row(lastHeading, weighted[0], weighted[1], weighted[2], total)
	return sb.String(), nil
}

// FormatConfusionMatrix は混同行列を [[a b] [c d]] 形式の文字列にする
func FormatConfusionMatrix(cm mat.Matrix) string {
	r, c := cm.Dims()
	width := 1
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if w := len(fmt.Sprintf("%.0f", cm.At(i, j))); w > width {
				width = w
			}
		}
	}
	var sb strings.Builder
	sb.WriteString("[")
	for i := 0; i < r; i++ {
		if i > 0 {
			sb.WriteString("\n ")
		}
		sb.WriteString("[")
		for j := 0; j < c; j++ {
			if j > 0 {
				sb.WriteString(" ")
			}
			fmt.Fprintf(&sb, "%*.0f", width, cm.At(i, j))
		}
		sb.WriteString("]")
	}
	sb.WriteString("]")
	return sb.String()
}
