package cache

import (
	"sort"
)

// BuildDelta computes the change set between two snapshots. Either may be
// nil.
func BuildDelta(prev, curr *Snapshot) Delta {
	if delta, ok := handleTrivialDelta(prev, curr); ok {
		return delta
	}

	prevMap := indexByName(prev.Artifacts)
	currMap := indexByName(curr.Artifacts)

	delta := Delta{
		Added:   classifyAdded(prevMap, currMap),
		Removed: make([]Artifact, 0),
		Changed: make([]Change, 0),
	}
	for name, pa := range prevMap {
		ca, ok := currMap[name]
		if !ok {
			delta.Removed = append(delta.Removed, pa)
			continue
		}
		if pa.Hash != ca.Hash {
			delta.Changed = append(delta.Changed, Change{Name: name, HashBefore: pa.Hash, HashAfter: ca.Hash})
		}
	}
	sortDelta(&delta)
	return delta
}

func handleTrivialDelta(prev, curr *Snapshot) (Delta, bool) {
	var d Delta
	switch {
	case curr == nil || len(curr.Artifacts) == 0:
		if prev != nil {
			d.Removed = append(d.Removed, prev.Artifacts...)
			sortArtifacts(d.Removed)
		}
		return d, true
	case prev == nil || len(prev.Artifacts) == 0:
		d.Added = append(d.Added, curr.Artifacts...)
		sortArtifacts(d.Added)
		return d, true
	default:
		return Delta{}, false
	}
}

func indexByName(list []Artifact) map[string]Artifact {
	m := make(map[string]Artifact, len(list))
	for _, a := range list {
		m[a.Name] = a
	}
	return m
}

func classifyAdded(prev, curr map[string]Artifact) []Artifact {
	added := make([]Artifact, 0)
	for name, ca := range curr {
		if _, ok := prev[name]; !ok {
			added = append(added, ca)
		}
	}
	return added
}

func sortArtifacts(list []Artifact) {
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
}

func sortDelta(d *Delta) {
	sortArtifacts(d.Added)
	sortArtifacts(d.Removed)
	sort.Slice(d.Changed, func(i, j int) bool { return d.Changed[i].Name < d.Changed[j].Name })
}
