package consciousness

import (
	"fmt"
	"math/rand"

	"github.com/pthm-cable/voxelcore/components"
)

var (
	conceptRoots      = []string{"lumen", "terra", "aqua", "aeon", "flux", "echo", "nova", "arca", "soma", "vita"}
	conceptQualifiers = []string{"synthesis", "anomaly", "harmonics", "membrane", "pulse", "cipher", "memory", "field"}
)

// randomConcept draws a root_qualifier_NNN token.
func randomConcept(rng *rand.Rand) components.Concept {
	root := conceptRoots[rng.Intn(len(conceptRoots))]
	qualifier := conceptQualifiers[rng.Intn(len(conceptQualifiers))]
	return components.Concept(fmt.Sprintf("%s_%s_%03d", root, qualifier, rng.Intn(1000)))
}
