package aegis

import (
	"testing"

	"github.com/meridianhq/aegis/permission"
)

func TestPermissionMatches(t *testing.T) {
	cases := []struct {
		name   string
		perm   permission.Permission
		res    string
		act    string
		reqCtx map[string]string
		want   bool
	}{
		{
			name: "exact match no conditions",
			perm: permission.Permission{Resource: "orders", Action: "view"},
			res:  "orders", act: "view",
			want: true,
		},
		{
			name: "resource mismatch",
			perm: permission.Permission{Resource: "orders", Action: "view"},
			res:  "reports", act: "view",
			want: false,
		},
		{
			name: "action mismatch",
			perm: permission.Permission{Resource: "orders", Action: "view"},
			res:  "orders", act: "delete",
			want: false,
		},
		{
			name: "no wildcard semantics",
			perm: permission.Permission{Resource: "orders", Action: "*"},
			res:  "orders", act: "view",
			want: false,
		},
		{
			name: "condition satisfied",
			perm: permission.Permission{Resource: "orders", Action: "update",
				Conditions: map[string]string{"branch": "cairo"}},
			res: "orders", act: "update",
			reqCtx: map[string]string{"branch": "cairo"},
			want:   true,
		},
		{
			name: "condition value mismatch",
			perm: permission.Permission{Resource: "orders", Action: "update",
				Conditions: map[string]string{"branch": "cairo"}},
			res: "orders", act: "update",
			reqCtx: map[string]string{"branch": "giza"},
			want:   false,
		},
		{
			name: "condition attribute absent",
			perm: permission.Permission{Resource: "orders", Action: "update",
				Conditions: map[string]string{"branch": "cairo"}},
			res: "orders", act: "update",
			reqCtx: map[string]string{"region": "north"},
			want:   false,
		},
		{
			name: "all conditions must hold",
			perm: permission.Permission{Resource: "orders", Action: "update",
				Conditions: map[string]string{"branch": "cairo", "shift": "day"}},
			res: "orders", act: "update",
			reqCtx: map[string]string{"branch": "cairo", "shift": "night"},
			want:   false,
		},
		{
			name: "extra context attributes ignored",
			perm: permission.Permission{Resource: "orders", Action: "update",
				Conditions: map[string]string{"branch": "cairo"}},
			res: "orders", act: "update",
			reqCtx: map[string]string{"branch": "cairo", "terminal": "t7"},
			want:   true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := permissionMatches(tc.perm, tc.res, tc.act, tc.reqCtx)
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestConditionsSatisfiedEmpty(t *testing.T) {
	if !conditionsSatisfied(nil, nil) {
		t.Fatal("no conditions must match empty context")
	}
	if !conditionsSatisfied(nil, map[string]string{"branch": "cairo"}) {
		t.Fatal("no conditions must match any context")
	}
}
