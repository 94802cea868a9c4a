package utils

import "testing"

func TestTimeToMinutes(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"00:00", 0},
		{"06:30", 390},
		{"23:59", 1439},
	}
	for _, tt := range tests {
		if got := TimeToMinutes(tt.in); got != tt.want {
			t.Errorf("TimeToMinutes(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
