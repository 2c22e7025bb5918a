package normalize

import "testing"

func TestNormalizers(t *testing.T) {
	tests := []struct {
		name string
		fn   func(string) string
		in   string
		want string
	}{
		{"email lowercased", Email, "  Ayu.Lestari@Contoh.ID ", "ayu.lestari@contoh.id"},
		{"email blank", Email, "   ", ""},
		{"name keeps case", Name, "  Bu Sari Wulandari ", "Bu Sari Wulandari"},
		{"name blank", Name, "", ""},
		{"status folded", Status, " Disabled", "disabled"},
		{"role folded", Role, "Counselor  ", "counselor"},
		{"role superadmin", Role, "SUPERADMIN", "superadmin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
