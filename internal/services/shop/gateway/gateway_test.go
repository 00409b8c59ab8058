package gateway

import "testing"

func TestMemberHasRole(t *testing.T) {
	t.Parallel()

	member := Member{UserID: "u1", RoleIDs: []string{"seller", "vip"}}
	tests := []struct {
		roleID string
		want   bool
	}{
		{roleID: "seller", want: true},
		{roleID: "vip", want: true},
		{roleID: "admin", want: false},
		{roleID: "", want: false},
	}
	for _, tc := range tests {
		if got := member.HasRole(tc.roleID); got != tc.want {
			t.Fatalf("HasRole(%q) = %v, want %v", tc.roleID, got, tc.want)
		}
	}
}
