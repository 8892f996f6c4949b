package matching

import (
	"github.com/google/uuid"

	"github.com/your-org/facewatch/internal/quality"
)

// ReferenceEntry is one stored reference photo of an identity.
type ReferenceEntry struct {
	ID         uuid.UUID
	IdentityID uuid.UUID
	Embedding  Embedding
	Quality    float64
	Pose       quality.Pose
}

// IdentityRefs groups the references of a single identity.
type IdentityRefs struct {
	IdentityID uuid.UUID
	Name       string
	Refs       []ReferenceEntry
}

// Gallery is a read-only snapshot of known identities, in a stable order.
type Gallery struct {
	Identities []IdentityRefs
}

// NewGallery partitions a flat reference list by identity, keeping the order
// in which identities first appear. names may be nil.
func NewGallery(entries []ReferenceEntry, names map[uuid.UUID]string) *Gallery {
	g := &Gallery{}
	index := make(map[uuid.UUID]int)
	for _, e := range entries {
		i, ok := index[e.IdentityID]
		if !ok {
			i = len(g.Identities)
			index[e.IdentityID] = i
			g.Identities = append(g.Identities, IdentityRefs{
				IdentityID: e.IdentityID,
				Name:       names[e.IdentityID],
			})
		}
		g.Identities[i].Refs = append(g.Identities[i].Refs, e)
	}
	return g
}

// Len returns the number of identities.
func (g *Gallery) Len() int {
	if g == nil {
		return 0
	}
	return len(g.Identities)
}

// PrimaryReferences returns the highest-quality reference per identity.
// Identities without references are omitted. The first reference wins ties.
func (g *Gallery) PrimaryReferences() map[uuid.UUID]ReferenceEntry {
	out := make(map[uuid.UUID]ReferenceEntry, g.Len())
	if g == nil {
		return out
	}
	for _, id := range g.Identities {
		for _, r := range id.Refs {
			if best, ok := out[id.IdentityID]; !ok || r.Quality > best.Quality {
				out[id.IdentityID] = r
			}
		}
	}
	return out
}

// PrimaryReference picks the max-quality entry from refs. ok is false when
// refs is empty.
func PrimaryReference(refs []ReferenceEntry) (best ReferenceEntry, ok bool) {
	for i, r := range refs {
		if i == 0 || r.Quality > best.Quality {
			best = r
			ok = true
		}
	}
	return best, ok
}
