package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"sync"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/fieldworks/graspplan/internal/config"
	"github.com/fieldworks/graspplan/internal/grasp"
	"github.com/fieldworks/graspplan/internal/graspdb"
	"github.com/fieldworks/graspplan/internal/monitor"
	"github.com/fieldworks/graspplan/internal/planner"
)

var (
	listen     = flag.String("listen", ":8080", "HTTP listen address for the monitor")
	scenePath  = flag.String("scene", "", "Path to the recorded scene file (required)")
	primitive  = flag.String("primitive", "grasp", "Manipulation primitive: grasp, pick_and_place, pour, twist")
	configPath = flag.String("config", "", "Path to a tuning config JSON (default: built-in defaults)")
	dbFile     = flag.String("db", "grasp.db", "Path to the SQLite database file")
	plotsDir   = flag.String("plots", "", "Base directory for score plots (disabled when empty)")
	serve      = flag.Bool("serve", false, "Keep the monitor HTTP server running after the pipeline completes")
)

// Main
func main() {
	flag.Parse()

	// Handle the migrate subcommand before anything else touches the
	// database.
	if flag.NArg() > 0 && flag.Arg(0) == "migrate" {
		graspdb.RunMigrateCommand(flag.Args()[1:], *dbFile)
		return
	}

	if *scenePath == "" {
		log.Fatal("a -scene file is required")
	}

	var cfg *config.TuningConfig
	var err error
	if *configPath != "" {
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
	} else {
		cfg = config.EmptyTuningConfig()
	}

	scene, err := LoadScene(*scenePath)
	if err != nil {
		log.Fatalf("Failed to load scene: %v", err)
	}
	log.Printf("Loaded scene %s: %d obstacle points, %d recorded viewpoints",
		scene.Name, len(scene.Obstacles.Points), len(scene.Proposals))

	db, err := graspdb.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	cache := &grasp.CandidateCache{Dir: cfg.GetCacheDir()}
	attempts := planner.NewAttemptLog(256)

	// Create a wait group for the HTTP server and pipeline routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ws := monitor.NewWebServer(monitor.WebServerConfig{
		Address:  *listen,
		DB:       db,
		Cache:    cache,
		Attempts: attempts,
		Scene:    scene.Name,
	})

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ws.Start(ctx); err != nil {
			log.Printf("monitor server error: %v", err)
		}
	}()

	// Pipeline goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if !*serve {
			defer stop()
		}
		if err := runOnce(ctx, cfg, db, cache, attempts, scene); err != nil {
			log.Printf("pipeline failed: %v", err)
		}
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// runOnce executes one full acquisition + synthesis pass over the scene and
// records the run in the database.
func runOnce(ctx context.Context, cfg *config.TuningConfig, db *graspdb.DB, cache *grasp.CandidateCache, attempts *planner.AttemptLog, scene *SceneFile) error {
	detector := grasp.NewReplayDetector(scene.Proposals)

	set, err := acquireCandidates(ctx, cfg, cache, detector, scene)
	if err != nil {
		return err
	}

	if *plotsDir != "" {
		outDir := monitor.MakePlotOutputDir(*plotsDir, scene.Name)
		sp := monitor.NewScorePlotter(outDir)
		if n, err := sp.GeneratePlots(scene.Name, set); err != nil {
			log.Printf("plot generation failed: %v", err)
		} else {
			log.Printf("Wrote %d plots to %s", n, outDir)
		}
	}

	runID, err := db.StartRun(scene.Name, *primitive, set.Len())
	if err != nil {
		return err
	}
	log.Printf("Planning run %s: %d candidates, primitive %s", runID, set.Len(), *primitive)

	sink := &teeSink{sinks: []planner.AttemptSink{attempts, graspdb.NewRunRecorder(db, runID)}}
	mp := planner.NewSyntheticPlanner()

	result, err := synthesize(ctx, cfg, mp, sink, scene, planner.Primitive(*primitive), set)
	if err != nil {
		if finishErr := db.FinishRun(runID, "failure", -1, 0); finishErr != nil {
			log.Printf("failed to record run outcome: %v", finishErr)
		}
		if errors.Is(err, planner.ErrNoTrajectory) {
			log.Printf("No feasible trajectory for any candidate; manipulator stays at rest")
		}
		return err
	}

	length := planner.PathLength(result.Trajectory.Configs)
	if err := db.FinishRun(runID, "success", result.CandidateIndex, length); err != nil {
		log.Printf("failed to record run outcome: %v", err)
	}
	mp.Visualize(result.Trajectory.Configs[result.Trajectory.Len()-1])
	log.Printf("Synthesized trajectory: candidate %d, %d configurations over %d stages, path length %.3f",
		result.CandidateIndex, result.Trajectory.Len(), len(result.Trajectory.Stages), length)
	return nil
}
