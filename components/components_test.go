package components

import (
	"fmt"
	"testing"
)

func TestGenomeAppendEvictsOldest(t *testing.T) {
	var g Genome
	for i := 0; i < MaxConcepts; i++ {
		if _, evicted := g.Append(Concept(fmt.Sprintf("c%d", i))); evicted {
			t.Fatalf("unexpected eviction at %d", i)
		}
	}
	if g.Len() != MaxConcepts {
		t.Fatalf("len = %d, want %d", g.Len(), MaxConcepts)
	}

	old, evicted := g.Append("c10")
	if !evicted || old != "c0" {
		t.Errorf("evicted = %q,%v, want c0,true", old, evicted)
	}
	if g.Len() != MaxConcepts {
		t.Errorf("len after overflow = %d, want %d", g.Len(), MaxConcepts)
	}

	list := g.List()
	if list[0] != "c1" || list[len(list)-1] != "c10" {
		t.Errorf("list = %v, want c1..c10", list)
	}
	if g.Contains("c0") {
		t.Error("evicted concept still present")
	}
}

func TestFromListKeepsNewest(t *testing.T) {
	var list []Concept
	for i := 0; i < 15; i++ {
		list = append(list, Concept(fmt.Sprintf("k%d", i)))
	}
	g := FromList(list)
	if g.Len() != MaxConcepts {
		t.Fatalf("len = %d, want %d", g.Len(), MaxConcepts)
	}
	if g.At(0) != "k5" {
		t.Errorf("oldest = %q, want k5", g.At(0))
	}
}

func TestFlagsCombine(t *testing.T) {
	var f Flags
	f.Set(FlagAlive)
	f.Set(FlagIgnited | FlagTraumatized)

	if !f.Has(FlagAlive | FlagIgnited) {
		t.Error("combined flags lost")
	}
	f.Clear(FlagIgnited)
	if f.Has(FlagIgnited) || !f.Has(FlagTraumatized) || !f.Has(FlagAlive) {
		t.Errorf("clear clobbered other bits: %s", f)
	}
	if !f.Live() {
		t.Error("alive flag should be live")
	}
	f.Set(FlagDead)
	if f.Live() {
		t.Error("dead flag should not be live")
	}
	if got := f.String(); got != "alive|traumatized|dead" {
		t.Errorf("String() = %q", got)
	}
}

func TestPhysicsPacking(t *testing.T) {
	tests := []struct {
		material, density uint8
		wantM, wantD      uint8
	}{
		{0, 0, 0, 0},
		{3, 9, 3, 9},
		{15, 15, 15, 15},
		{0x1f, 0x2a, 0x0f, 0x0a}, // upper bits dropped
	}

	for _, tt := range tests {
		var p Physics
		p.SetMaterial(tt.material)
		p.SetDensity(tt.density)
		if p.Material() != tt.wantM || p.Density() != tt.wantD {
			t.Errorf("Set(%d,%d) -> (%d,%d), want (%d,%d)",
				tt.material, tt.density, p.Material(), p.Density(), tt.wantM, tt.wantD)
		}
		// Re-setting one nibble must not disturb the other
		p.SetMaterial(tt.wantM)
		if p.Density() != tt.wantD {
			t.Errorf("SetMaterial clobbered density: %d", p.Density())
		}
	}
}

func TestPerceptionClamp(t *testing.T) {
	var p Perception
	p.SetChannel(0, -0.5)
	p.SetChannel(1, 2)
	p.SetChannel(2, 0.5)

	if p.Channel(0) != 0 {
		t.Errorf("channel 0 = %v, want 0", p.Channel(0))
	}
	if p.Channel(1) != 1 {
		t.Errorf("channel 1 = %v, want 1", p.Channel(1))
	}
	if p.Channel(2) != 0.5 {
		t.Errorf("channel 2 = %v, want 0.5", p.Channel(2))
	}
}

func TestVitalsClamp(t *testing.T) {
	v := Vitals{Energy: 15, Emotion: Emotion{Valence: 2, Arousal: -3, Dominance: 0.2}}
	if !v.ClampEnergy(12) || v.Energy != 12 {
		t.Errorf("energy = %v, want 12 clamped", v.Energy)
	}
	if !v.Emotion.Clamp() {
		t.Error("expected emotion clamp")
	}
	if v.Emotion.Valence != 1 || v.Emotion.Arousal != -1 || v.Emotion.Dominance != 0.2 {
		t.Errorf("emotion = %+v", v.Emotion)
	}
}
