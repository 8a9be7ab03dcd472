package components

// Genotype bundles the heritable attributes the evolution pass reads and rewrites.
// Identity, position and metadata stay with the entity slot.
type Genotype struct {
	Vitals     Vitals
	Perception Perception
	Physics    Physics
	Genome     Genome
}
