package grasp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// maxCacheFileSize guards against loading a corrupt or runaway cache file.
const maxCacheFileSize = 32 * 1024 * 1024

// cacheEnvelope is the on-disk format for a cached candidate set. Params is
// an audit field recording the values that produced the set; it is not
// consulted for staleness. Delete the file to force recomputation.
type cacheEnvelope struct {
	Scene     string          `json:"scene"`
	CreatedAt time.Time       `json:"created_at"`
	Params    json.RawMessage `json:"params,omitempty"`
	Set       *CandidateSet   `json:"set"`
}

// CandidateCache persists fused candidate sets keyed by scene name so a
// re-run of the same scene skips detector inference entirely.
type CandidateCache struct {
	Dir string
}

// Path returns the cache file location for a scene.
func (c *CandidateCache) Path(scene string) string {
	return filepath.Join(c.Dir, scene, "candidates.json")
}

// Load reads the cached candidate set for a scene. The second return is
// false when no cache file exists; any other failure (unreadable file,
// malformed JSON) is an error so a corrupt cache is surfaced rather than
// silently recomputed over.
func (c *CandidateCache) Load(scene string) (*CandidateSet, bool, error) {
	path := c.Path(scene)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("stat candidate cache: %w", err)
	}
	if info.Size() > maxCacheFileSize {
		return nil, false, fmt.Errorf("candidate cache %s too large: %d bytes", path, info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("read candidate cache: %w", err)
	}
	var env cacheEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, false, fmt.Errorf("decode candidate cache %s: %w", path, err)
	}
	if env.Set == nil {
		return nil, false, fmt.Errorf("candidate cache %s has no candidate set", path)
	}
	return env.Set, true, nil
}

// Store writes the candidate set for a scene, creating the scene directory
// as needed. params may be nil; when present it is stored verbatim for
// audit.
func (c *CandidateCache) Store(scene string, set *CandidateSet, params json.RawMessage) error {
	path := c.Path(scene)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	env := cacheEnvelope{
		Scene:     scene,
		CreatedAt: time.Now().UTC(),
		Params:    params,
		Set:       set,
	}
	data, err := json.MarshalIndent(&env, "", "  ")
	if err != nil {
		return fmt.Errorf("encode candidate cache: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write candidate cache: %w", err)
	}
	return nil
}
