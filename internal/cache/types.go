// Package cache stores pipeline stage artifacts in a working directory.
//
// Artifacts have fixed names, so their presence is what tells the pipeline a
// stage already ran. Every write goes to a temporary sibling first and is
// renamed into place only when complete; readers never see a partial file.
// After a run the store records a snapshot (index.json) with the hash and
// size of every artifact, which the next run diffs against.
package cache

// Artifact is one stage output recorded in a snapshot.
type Artifact struct {
	Name string `json:"name"`
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

// Snapshot captures the artifacts left by one pipeline run.
// FormatVersion versions this file's schema; PipelineVersion changes whenever
// stage outputs would be produced differently.
type Snapshot struct {
	RunID           string     `json:"runId"`
	Created         string     `json:"created"`
	FormatVersion   string     `json:"formatVersion"`
	PipelineVersion string     `json:"pipelineVersion"`
	Type            string     `json:"type,omitempty"`
	Artifacts       []Artifact `json:"artifacts"`
}

// Find returns the artifact called name.
func (s *Snapshot) Find(name string) (Artifact, bool) {
	if s == nil {
		return Artifact{}, false
	}
	for _, a := range s.Artifacts {
		if a.Name == name {
			return a, true
		}
	}
	return Artifact{}, false
}

// Change is an artifact whose content differs between two snapshots.
type Change struct {
	Name       string `json:"name"`
	HashBefore string `json:"hashBefore"`
	HashAfter  string `json:"hashAfter"`
}

// Delta describes how artifacts changed from one snapshot to the next.
//
//   - Added: artifacts present now that were not in the previous snapshot
//   - Removed: artifacts present previously that are gone now
//   - Changed: artifacts with the same name but a different hash
type Delta struct {
	Added   []Artifact `json:"added"`
	Removed []Artifact `json:"removed"`
	Changed []Change   `json:"changed"`
}

// Empty reports whether nothing changed.
func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}
