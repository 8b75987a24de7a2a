package repository

import (
	"reflect"
	"strings"
	"testing"
)

func TestBuildPostListQuery(t *testing.T) {
	cases := []struct {
		name      string
		filter    PostFilter
		wantWhere string
		wantArgs  []any
	}{
		{
			name:      "published only",
			filter:    PostFilter{PublishedOnly: true, VisibleTo: "alice", Limit: 10},
			wantWhere: "WHERE is_published = TRUE ORDER BY",
			wantArgs:  []any{0, 10},
		},
		{
			name:      "drafts of caller",
			filter:    PostFilter{VisibleTo: "alice", Offset: 5, Limit: 10},
			wantWhere: "WHERE (is_published = TRUE OR user_id = $1) ORDER BY",
			wantArgs:  []any{"alice", 5, 10},
		},
		{
			name:      "owner with drafts",
			filter:    PostFilter{OwnerID: "bob", VisibleTo: "alice", Limit: 20},
			wantWhere: "WHERE user_id = $1 AND (is_published = TRUE OR user_id = $2) ORDER BY",
			wantArgs:  []any{"bob", "alice", 0, 20},
		},
		{
			name:      "anonymous never sees drafts",
			filter:    PostFilter{Limit: 1},
			wantWhere: "WHERE is_published = TRUE ORDER BY",
			wantArgs:  []any{0, 1},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			query, args := buildPostListQuery(tc.filter)
			if !strings.Contains(query, tc.wantWhere) {
				t.Fatalf("query %q does not contain %q", query, tc.wantWhere)
			}
			if !reflect.DeepEqual(args, tc.wantArgs) {
				t.Fatalf("args = %v, want %v", args, tc.wantArgs)
			}
		})
	}
}
