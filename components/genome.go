package components

// MaxConcepts is the genome capacity.
const MaxConcepts = 10

// Concept is an opaque semantic token carried in a genome.
type Concept string

// Genome is a fixed-capacity ring of concepts, oldest evicted first.
// Uses a fixed array to avoid per-entity heap allocations.
type Genome struct {
	Concepts [MaxConcepts]Concept
	Head     uint8 // Index of the oldest concept
	Count    uint8
}

// Len returns the number of stored concepts.
func (g *Genome) Len() int {
	return int(g.Count)
}

// Append adds c, evicting the oldest concept when full.
// Returns the evicted concept and true if one was dropped.
func (g *Genome) Append(c Concept) (Concept, bool) {
	if g.Count < MaxConcepts {
		idx := (int(g.Head) + int(g.Count)) % MaxConcepts
		g.Concepts[idx] = c
		g.Count++
		return "", false
	}

	evicted := g.Concepts[g.Head]
	g.Concepts[g.Head] = c
	g.Head = uint8((int(g.Head) + 1) % MaxConcepts)
	return evicted, true
}

// At returns the i-th concept, oldest first.
func (g *Genome) At(i int) Concept {
	return g.Concepts[(int(g.Head)+i)%MaxConcepts]
}

// List returns the concepts oldest first.
func (g *Genome) List() []Concept {
	out := make([]Concept, 0, g.Count)
	for i := 0; i < int(g.Count); i++ {
		out = append(out, g.At(i))
	}
	return out
}

// Contains reports whether c is present.
func (g *Genome) Contains(c Concept) bool {
	for i := 0; i < int(g.Count); i++ {
		if g.At(i) == c {
			return true
		}
	}
	return false
}

// Reset empties the genome.
func (g *Genome) Reset() {
	*g = Genome{}
}

// FromList rebuilds the genome from an oldest-first list, keeping the newest MaxConcepts.
func FromList(list []Concept) Genome {
	var g Genome
	for _, c := range list {
		g.Append(c)
	}
	return g
}
