// Command overlay-plot renders projected overlay points to a PNG scatter
// plot. It reads the JSON emitted by the /api/overlay/points endpoint and
// is used to sanity-check a calibration without a live video pipeline.
package main

import (
	"encoding/json"
	"flag"
	"image/color"
	"log"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var (
	in     = flag.String("in", "", "JSON file of projected points (required)")
	out    = flag.String("out", "overlay.png", "Output PNG path")
	width  = flag.Int("width", 1920, "Frame width in pixels")
	height = flag.Int("height", 1080, "Frame height in pixels")
)

type pointsFile struct {
	Points []struct {
		U         float64 `json:"u"`
		V         float64 `json:"v"`
		Depth     float64 `json:"depth"`
		Intensity uint8   `json:"intensity"`
	} `json:"points"`
}

func main() {
	flag.Parse()
	if *in == "" {
		log.Fatal("-in is required")
	}

	raw, err := os.ReadFile(*in)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", *in, err)
	}
	var pf pointsFile
	if err := json.Unmarshal(raw, &pf); err != nil {
		log.Fatalf("Failed to parse %s: %v", *in, err)
	}
	if len(pf.Points) == 0 {
		log.Fatal("No points to plot")
	}

	p := plot.New()
	p.Title.Text = "Projected sonar overlay"
	p.X.Label.Text = "u (px)"
	p.Y.Label.Text = "v (px)"
	p.X.Min = 0
	p.X.Max = float64(*width)
	// Image rows grow downward; flip the axis so the plot matches the frame.
	p.Y.Min = float64(*height)
	p.Y.Max = 0

	xys := make(plotter.XYs, len(pf.Points))
	for i, pt := range pf.Points {
		xys[i] = plotter.XY{X: pt.U, Y: pt.V}
	}
	scatter, err := plotter.NewScatter(xys)
	if err != nil {
		log.Fatalf("Failed to build scatter: %v", err)
	}
	scatter.GlyphStyle.Radius = vg.Points(1.5)
	scatter.GlyphStyle.Color = color.RGBA{R: 0, G: 180, B: 255, A: 255}
	p.Add(scatter)

	if err := p.Save(12*vg.Inch, 12*vg.Inch*vg.Length(float64(*height)/float64(*width)), *out); err != nil {
		log.Fatalf("Failed to save plot: %v", err)
	}
	log.Printf("Wrote %d points to %s", len(xys), *out)
}
