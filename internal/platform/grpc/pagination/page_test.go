package pagination

import "testing"

func TestClampPageSize(t *testing.T) {
	t.Parallel()

	cfg := PageSizeConfig{Default: 10, Max: 50}
	tests := []struct {
		value int32
		want  int
	}{
		{value: 0, want: 10},
		{value: -3, want: 10},
		{value: 25, want: 25},
		{value: 500, want: 50},
	}
	for _, tc := range tests {
		if got := ClampPageSize(tc.value, cfg); got != tc.want {
			t.Fatalf("ClampPageSize(%d) = %d, want %d", tc.value, got, tc.want)
		}
	}
	if got := ClampPageSize(0, PageSizeConfig{}); got != 1 {
		t.Fatalf("ClampPageSize without defaults = %d, want 1", got)
	}
}
