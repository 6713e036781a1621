package metrics

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/liverrisk/pkg/errors"
)

// Heatmap axis labels for the binary risk classes.
var (
	PredictedLabels = []string{"Pred. Bajo (0)", "Pred. Alto (1)"}
	ActualLabels    = []string{"Real Bajo (0)", "Real Alto (1)"}
)

// confusionGrid は混同行列をplotter.GridXYZとして見せる。
// 行0（真のラベル0）が上に来るようにY軸を反転する。
type confusionGrid struct {
	cm *mat.Dense
}

func (g confusionGrid) Dims() (c, r int) {
	r, c = g.cm.Dims()
	return c, r
}

func (g confusionGrid) Z(c, r int) float64 {
	rows, _ := g.cm.Dims()
	return g.cm.At(rows-1-r, c)
}

func (g confusionGrid) X(c int) float64 { return float64(c) }
func (g confusionGrid) Y(r int) float64 { return float64(r) }

// blues は白から濃い青へのパレット
type blues []color.Color

func (b blues) Colors() []color.Color { return b }

func newBlues(n int) blues {
	from := color.RGBA{R: 0xf7, G: 0xfb, B: 0xff, A: 0xff}
	to := color.RGBA{R: 0x08, G: 0x30, B: 0x6b, A: 0xff}
	out := make(blues, n)
	for i := range out {
		t := float64(i) / float64(n-1)
		lerp := func(a, b uint8) uint8 { return uint8(float64(a) + t*(float64(b)-float64(a))) }
		out[i] = color.RGBA{R: lerp(from.R, to.R), G: lerp(from.G, to.G), B: lerp(from.B, to.B), A: 0xff}
	}
	return out
}

// ConfusionHeatmap は注釈付きの混同行列ヒートマップをPNGで保存する
func ConfusionHeatmap(cm *mat.Dense, xLabels, yLabels []string, path string) error {
	r, c := cm.Dims()
	if len(xLabels) != c || len(yLabels) != r {
		return errors.NewDimensionError("ConfusionHeatmap", c, len(xLabels), 1)
	}

	p := plot.New()
	p.Title.Text = "Matriz de Confusión"
	p.X.Label.Text = "Valor Predicho"
	p.Y.Label.Text = "Valor Real"

	grid := confusionGrid{cm: cm}
	hm := plotter.NewHeatMap(grid, newBlues(64))
	p.Add(hm)

	var (
		xys    plotter.XYs
		labels []string
	)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			xys = append(xys, plotter.XY{X: float64(j), Y: float64(r - 1 - i)})
			labels = append(labels, fmt.Sprintf("%.0f", cm.At(i, j)))
		}
	}
	annot, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: labels})
	if err != nil {
		return errors.Wrap(err, "failed to build heatmap annotations")
	}
	p.Add(annot)

	reversed := make([]string, r)
	for i, l := range yLabels {
		reversed[r-1-i] = l
	}
	p.NominalX(xLabels...)
	p.NominalY(reversed...)

	return save(p, 8*vg.Inch, 6*vg.Inch, path)
}

// PlotLearningCurves は学習履歴の各系列を折れ線でPNGに保存する
func PlotLearningCurves(epochs []int, series map[string][]float64, path string) error {
	if len(epochs) == 0 {
		return errors.NewValueError("PlotLearningCurves", "empty history")
	}
	p := plot.New()
	p.Title.Text = "Historial de entrenamiento"
	p.X.Label.Text = "Época"

	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)

	var args []interface{}
	for _, name := range names {
		ys := series[name]
		if len(ys) != len(epochs) {
			return errors.NewDimensionError("PlotLearningCurves", len(epochs), len(ys), 0)
		}
		pts := make(plotter.XYs, len(ys))
		for i, y := range ys {
			pts[i] = plotter.XY{X: float64(epochs[i]), Y: y}
		}
		args = append(args, name, pts)
	}
	if err := plotutil.AddLinePoints(p, args...); err != nil {
		return errors.Wrap(err, "failed to add learning curves")
	}
	return save(p, 8*vg.Inch, 4*vg.Inch, path)
}

func save(p *plot.Plot, w, h vg.Length, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", path)
	}
	if err := p.Save(w, h, path); err != nil {
		return errors.Wrapf(err, "failed to save plot %s", path)
	}
	return nil
}
