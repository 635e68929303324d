package monitor

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/fieldworks/graspplan/internal/geom"
	"github.com/fieldworks/graspplan/internal/grasp"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleScoreChart renders a scatter of cached candidates (XY position,
// colored by fused score) using go-echarts. Debugging-only endpoint to eyeball
// the fused ranking without the full UI.
// Query params:
//   - scene (optional; defaults to configured scene)
func (ws *WebServer) handleScoreChart(w http.ResponseWriter, r *http.Request) {
	scene := r.URL.Query().Get("scene")
	if scene == "" {
		scene = ws.scene
	}
	if ws.cache == nil || scene == "" {
		ws.writeJSONError(w, http.StatusNotFound, "no candidate cache configured")
		return
	}
	set, ok, err := ws.cache.Load(scene)
	if err != nil || !ok {
		ws.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("no cached candidates for scene '%s'", scene))
		return
	}

	data := make([]opts.ScatterData, 0, set.Len())
	maxAbs := 0.0
	for _, c := range set.Candidates {
		x, y := c.Pose.T.X, c.Pose.T.Y
		if math.Abs(x) > maxAbs {
			maxAbs = math.Abs(x)
		}
		if math.Abs(y) > maxAbs {
			maxAbs = math.Abs(y)
		}
		data = append(data, opts.ScatterData{Value: []interface{}{x, y, c.FusedScore}})
	}

	// Add a small padding so points at the edges are visible
	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Grasp Candidate Scores", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Grasp Candidates", Subtitle: fmt.Sprintf("scene=%s points=%d", scene, len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        1,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}},
		}),
	)

	scatter.AddSeries("candidates", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleHemisphereChart renders the virtual camera positions on the view
// hemisphere projected to XY, colored by height.
// Query params:
//   - cx, cy, cz (optional hemisphere centre; default origin)
//   - grid (optional grid resolution per axis)
func (ws *WebServer) handleHemisphereChart(w http.ResponseWriter, r *http.Request) {
	center := geom.Vec3{}
	if v := r.URL.Query().Get("cx"); v != "" {
		center.X, _ = strconv.ParseFloat(v, 64)
	}
	if v := r.URL.Query().Get("cy"); v != "" {
		center.Y, _ = strconv.ParseFloat(v, 64)
	}
	if v := r.URL.Query().Get("cz"); v != "" {
		center.Z, _ = strconv.ParseFloat(v, 64)
	}

	params := grasp.DefaultHemisphereParams(center)
	if g := r.URL.Query().Get("grid"); g != "" {
		if v, err := strconv.Atoi(g); err == nil && v >= 1 && v <= 50 {
			params.ThetaCount = v
			params.PhiCount = v
		}
	}

	poses, err := grasp.GenerateHemisphere(params)
	if err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("generate hemisphere: %v", err))
		return
	}

	data := make([]opts.ScatterData, 0, len(poses))
	maxAbs := 0.0
	maxZ := 0.0
	for _, p := range poses {
		x, y, z := p.Pose.T.X, p.Pose.T.Y, p.Pose.T.Z
		if math.Abs(x) > maxAbs {
			maxAbs = math.Abs(x)
		}
		if math.Abs(y) > maxAbs {
			maxAbs = math.Abs(y)
		}
		if z > maxZ {
			maxZ = z
		}
		data = append(data, opts.ScatterData{Value: []interface{}{x, y, z}})
	}

	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}
	if maxZ == 0 {
		maxZ = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "View Hemisphere", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Virtual Camera Hemisphere", Subtitle: fmt.Sprintf("views=%d radius=%g", len(data), params.Radius)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxZ),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}},
		}),
	)
	scatter.AddSeries("cameras", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render hemisphere chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
