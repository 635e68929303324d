package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fieldworks/graspplan/internal/geom"
	"github.com/fieldworks/graspplan/internal/grasp"
	"github.com/fieldworks/graspplan/internal/planner"
)

// SceneFile is a recorded planning scene: the obstacle cloud and relevancy
// field produced by the reconstruction toolchain, plus the per-viewpoint
// detector proposals captured during the same pass. Proposals are in each
// viewpoint's local frame, in hemisphere order.
type SceneFile struct {
	Name        string               `json:"name"`
	TableCenter geom.Vec3            `json:"table_center"`
	Obstacles   grasp.ObstacleModel  `json:"obstacles"`
	Relevancy   grasp.RelevancyField `json:"relevancy"`
	Proposals   [][]grasp.Candidate  `json:"proposals"`
	StartConfig planner.Config       `json:"start_config"`
}

// LoadScene reads and validates a scene file.
func LoadScene(path string) (*SceneFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene: %w", err)
	}
	var scene SceneFile
	if err := json.Unmarshal(data, &scene); err != nil {
		return nil, fmt.Errorf("parse scene %s: %w", path, err)
	}
	if scene.Name == "" {
		return nil, fmt.Errorf("scene %s has no name", path)
	}
	if err := scene.Relevancy.Validate(); err != nil {
		return nil, fmt.Errorf("scene %s: %w", path, err)
	}
	if len(scene.StartConfig) == 0 {
		return nil, fmt.Errorf("scene %s has no start configuration", path)
	}
	return &scene, nil
}
