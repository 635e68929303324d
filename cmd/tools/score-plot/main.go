// score-plot renders PNG score charts for a cached candidate set, for
// inspecting how semantic fusion reordered the geometric ranking after a
// pipeline run.
//
// Usage:
//
//	score-plot -scene table_scene -cache-dir graspdata -out plots
package main

import (
	"flag"
	"log"

	"github.com/fieldworks/graspplan/internal/grasp"
	"github.com/fieldworks/graspplan/internal/monitor"
)

var (
	scene    = flag.String("scene", "", "Scene name of the cached candidate set (required)")
	cacheDir = flag.String("cache-dir", "graspdata", "Candidate cache directory")
	outDir   = flag.String("out", "plots", "Base directory for generated plots")
)

func main() {
	flag.Parse()

	if *scene == "" {
		log.Fatal("a -scene name is required")
	}

	cache := &grasp.CandidateCache{Dir: *cacheDir}
	set, ok, err := cache.Load(*scene)
	if err != nil {
		log.Fatalf("Failed to load cached candidates: %v", err)
	}
	if !ok {
		log.Fatalf("No cached candidates for scene %q in %s (run the pipeline first)", *scene, *cacheDir)
	}
	log.Printf("Loaded %d cached candidates for scene %s", set.Len(), *scene)

	dir := monitor.MakePlotOutputDir(*outDir, *scene)
	sp := monitor.NewScorePlotter(dir)
	n, err := sp.GeneratePlots(*scene, set)
	if err != nil {
		log.Fatalf("Plot generation failed: %v", err)
	}
	log.Printf("Wrote %d plots to %s", n, dir)
}
