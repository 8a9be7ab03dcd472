package components

import "strings"

// Flags is a combinable set of voxel status bits.
type Flags uint8

const (
	FlagAlive Flags = 1 << iota
	FlagMoving
	FlagIgnited
	FlagTraumatized
	FlagDead
	FlagIntegrated
	FlagCore
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagAlive, "alive"},
	{FlagMoving, "moving"},
	{FlagIgnited, "ignited"},
	{FlagTraumatized, "traumatized"},
	{FlagDead, "dead"},
	{FlagIntegrated, "integrated"},
	{FlagCore, "core"},
}

// Has reports whether every bit in mask is set.
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask
}

// Set turns on the bits in mask.
func (f *Flags) Set(mask Flags) {
	*f |= mask
}

// Clear turns off the bits in mask.
func (f *Flags) Clear(mask Flags) {
	*f &^= mask
}

// Toggle sets or clears mask depending on on.
func (f *Flags) Toggle(mask Flags, on bool) {
	if on {
		f.Set(mask)
	} else {
		f.Clear(mask)
	}
}

// Live reports whether the voxel participates in simulation.
func (f Flags) Live() bool {
	return f.Has(FlagAlive) && !f.Has(FlagDead)
}

// String returns the set flag names joined with '|'.
func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}
