package gate

import (
	"testing"

	"github.com/volskaya/norman/cmd/internal/member"
)

func TestDecide(t *testing.T) {
	t.Parallel()

	approved := member.Record{ID: "1", Key: "123", Approved: true, Valid: true}
	keyed := member.Record{ID: "1", Key: "123"}
	blank := member.Record{ID: "1"}

	tests := []struct {
		name  string
		rec   member.Record
		found bool
		subj  Subject
		want  Action
	}{
		{name: "bot is ignored", rec: blank, found: false, subj: Subject{Bot: true}, want: NoOp},
		{name: "bot with record is ignored", rec: keyed, found: true, subj: Subject{Bot: true}, want: NoOp},
		{name: "approved without role", rec: approved, found: true, want: Grant},
		{name: "approved with role", rec: approved, found: true, subj: Subject{HasApprovedRole: true}, want: NoOp},
		{name: "key not approved", rec: keyed, found: true, want: Challenge},
		{name: "key not approved holding role", rec: keyed, found: true, subj: Subject{HasApprovedRole: true}, want: Challenge},
		{name: "blank record", rec: blank, found: true, want: Deny},
		{name: "no record", found: false, want: Deny},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Decide(tc.rec, tc.found, tc.subj); got != tc.want {
				t.Fatalf("Decide=%s want=%s", got, tc.want)
			}
		})
	}
}
