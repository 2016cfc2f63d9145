package game

import (
	"math"
	"testing"
)

func TestLerpHeading(t *testing.T) {
	cases := []struct {
		name  string
		from  float64
		to    float64
		alpha float64
		want  float64
	}{
		{"no wrap", 10, 30, 0.5, 20},
		{"wrap up through north", 350, 10, 0.5, 0},
		{"wrap down through north", 10, 350, 0.5, 0},
		{"alpha zero", 350, 10, 0, 350},
		{"alpha one", 350, 10, 1, 10},
		{"opposite headings", 0, 180, 0.25, 45},
		{"negative input normalized", -10, 10, 0.5, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := LerpHeading(tc.from, tc.to, tc.alpha)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("LerpHeading(%v, %v, %v) = %v, want %v", tc.from, tc.to, tc.alpha, got, tc.want)
			}
		})
	}
}

func TestLerpClamps(t *testing.T) {
	if got := Lerp(0, 10, -0.5); got != 0 {
		t.Fatalf("want clamp to 0, got %v", got)
	}
	if got := Lerp(0, 10, 1.5); got != 10 {
		t.Fatalf("want clamp to 10, got %v", got)
	}
}

func TestLerpLocation(t *testing.T) {
	from := Location{Latitude: 50, Longitude: 10, Heading: 350, Speed: 2, Accuracy: 8}
	to := Location{Latitude: 51, Longitude: 11, Heading: 10, Speed: 4, Accuracy: 3}

	got := LerpLocation(from, to, 0.5)
	if got.Latitude != 50.5 || got.Longitude != 10.5 {
		t.Fatalf("coordinate: got %v,%v", got.Latitude, got.Longitude)
	}
	if got.Heading != 0 {
		t.Fatalf("heading: got %v, want 0", got.Heading)
	}
	if got.Speed != 3 {
		t.Fatalf("speed: got %v, want 3", got.Speed)
	}
	if got.Accuracy != 3 {
		t.Fatalf("accuracy should come from the newer fix, got %v", got.Accuracy)
	}
}
