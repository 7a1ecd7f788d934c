package common

import "testing"

func TestNextMultipleOf(t *testing.T) {
	tests := []struct {
		x, y, want uint32
	}{
		{13, 8, 16},
		{16, 8, 16},
		{0, 16, 0},
		{1, 256, 256},
		{7, 0, 7},
	}
	for _, tt := range tests {
		if got := NextMultipleOf(tt.x, tt.y); got != tt.want {
			t.Errorf("NextMultipleOf(%d, %d) = %d, want %d", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestDivCeil(t *testing.T) {
	tests := []struct {
		x, y, want int
	}{
		{17, 16, 2},
		{16, 16, 1},
		{0, 8, 0},
		{5, 0, 0},
	}
	for _, tt := range tests {
		if got := DivCeil(tt.x, tt.y); got != tt.want {
			t.Errorf("DivCeil(%d, %d) = %d, want %d", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestPerspectiveZODepthRange(t *testing.T) {
	p := PerspectiveZO(1.0, 1.5, 0.5, 50)
	depth := func(z float32) float32 {
		clip := p.Mul4x1([4]float32{0, 0, z, 1})
		return clip[2] / clip[3]
	}
	if d := depth(-0.5); d < -1e-5 || d > 1e-5 {
		t.Errorf("depth(near) = %v, want 0", d)
	}
	if d := depth(-50); d < 1-1e-4 || d > 1+1e-4 {
		t.Errorf("depth(far) = %v, want 1", d)
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(5, 0, 3); got != 3 {
		t.Errorf("Clamp(5, 0, 3) = %d, want 3", got)
	}
	if got := Clamp(-1.5, 0.0, 3.0); got != 0 {
		t.Errorf("Clamp(-1.5, 0, 3) = %v, want 0", got)
	}
}
