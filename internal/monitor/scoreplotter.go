package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/fieldworks/graspplan/internal/grasp"
)

// ScorePlotter renders candidate score charts to PNG files for offline
// inspection, typically after a pipeline run over a recorded scene.
type ScorePlotter struct {
	outputDir string
}

// NewScorePlotter creates a plotter writing into outputDir.
func NewScorePlotter(outputDir string) *ScorePlotter {
	return &ScorePlotter{outputDir: outputDir}
}

// GeneratePlots writes the score charts for one candidate set. Returns the
// number of plots generated.
func (sp *ScorePlotter) GeneratePlots(scene string, set *grasp.CandidateSet) (int, error) {
	if sp.outputDir == "" {
		return 0, fmt.Errorf("no output directory configured")
	}
	if set == nil || set.Len() == 0 {
		return 0, nil
	}
	if err := os.MkdirAll(sp.outputDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create output dir: %w", err)
	}

	if err := sp.generateScoreScatter(scene, set); err != nil {
		return 0, fmt.Errorf("score scatter: %w", err)
	}
	if err := sp.generateRankPlot(scene, set); err != nil {
		return 1, fmt.Errorf("rank plot: %w", err)
	}
	return 2, nil
}

// generateScoreScatter plots geometric vs fused score per candidate. A point
// far off the diagonal means semantics moved that candidate in the ranking.
func (sp *ScorePlotter) generateScoreScatter(scene string, set *grasp.CandidateSet) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - Geometric vs Fused Score", scene)
	p.X.Label.Text = "Geometric score"
	p.Y.Label.Text = "Fused score"
	p.X.Min, p.X.Max = 0, 1.05
	p.Y.Min, p.Y.Max = 0, 1.05

	pts := make(plotter.XYs, 0, set.Len())
	for _, c := range set.Candidates {
		pts = append(pts, plotter.XY{X: c.GeometricScore, Y: c.FusedScore})
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	scatter.GlyphStyle.Color = color.RGBA{R: 0x35, G: 0xb7, B: 0x79, A: 255}
	scatter.GlyphStyle.Radius = vg.Points(3)
	p.Add(scatter)

	// Diagonal reference: fused == geometric.
	diag := plotter.XYs{{X: 0, Y: 0}, {X: 1, Y: 1}}
	line, err := plotter.NewLine(diag)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 0x9e, G: 0x9e, B: 0x9e, A: 255}
	line.Width = vg.Points(0.5)
	p.Add(line)

	out := filepath.Join(sp.outputDir, "scores_scatter.png")
	return p.Save(8*vg.Inch, 8*vg.Inch, out)
}

// generateRankPlot plots geometric, semantic and fused scores against rank
// order to show how the fused ranking decays across the set.
func (sp *ScorePlotter) generateRankPlot(scene string, set *grasp.CandidateSet) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - Scores by Rank", scene)
	p.X.Label.Text = "Rank"
	p.Y.Label.Text = "Score"
	p.Y.Min, p.Y.Max = 0, 1.05

	geo := make(plotter.XYs, 0, set.Len())
	sem := make(plotter.XYs, 0, set.Len())
	fused := make(plotter.XYs, 0, set.Len())
	for i, c := range set.Candidates {
		geo = append(geo, plotter.XY{X: float64(i), Y: c.GeometricScore})
		sem = append(sem, plotter.XY{X: float64(i), Y: c.SemanticScore})
		fused = append(fused, plotter.XY{X: float64(i), Y: c.FusedScore})
	}

	series := []struct {
		name string
		pts  plotter.XYs
		col  color.RGBA
	}{
		{"geometric", geo, color.RGBA{R: 0x31, G: 0x68, B: 0x8e, A: 255}},
		{"semantic", sem, color.RGBA{R: 0xfd, G: 0xe7, B: 0x25, A: 255}},
		{"fused", fused, color.RGBA{R: 0x35, G: 0xb7, B: 0x79, A: 255}},
	}
	for _, s := range series {
		line, err := plotter.NewLine(s.pts)
		if err != nil {
			return err
		}
		line.Color = s.col
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.name, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	out := filepath.Join(sp.outputDir, "scores_rank.png")
	return p.Save(14*vg.Inch, 6*vg.Inch, out)
}

// FormatTimestamp generates a timestamp string for directory naming.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// MakePlotOutputDir creates a timestamped output directory path for plots:
// plots/<scene>/<timestamp>.
func MakePlotOutputDir(baseDir, scene string) string {
	ts := FormatTimestamp(time.Now())
	if scene != "" {
		return filepath.Join(baseDir, scene, ts)
	}
	return filepath.Join(baseDir, "run_"+ts)
}
