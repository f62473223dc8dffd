package errcode

import (
	"errors"
	"testing"
)

func TestOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, OK},
		{"bare code", AlreadyCheckedOut, AlreadyCheckedOut},
		{"wrapped", Wrap(BadStateMachineProgramming, "install", errors.New("boom")), BadStateMachineProgramming},
		{"joined", errors.Join(errors.New("plain"), FailedToStart), FailedToStart},
		{"plain", errors.New("plain"), Error},
	}
	for _, tc := range cases {
		if got := Of(tc.err); got != tc.want {
			t.Errorf("%s: Of() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestWrappedIs(t *testing.T) {
	cause := errors.New("out of program space")
	err := Wrap(BadStateMachineProgramming, "install", cause)

	if !errors.Is(err, BadStateMachineProgramming) {
		t.Error("wrapped error should match its code")
	}
	if errors.Is(err, ProgrammingFailed) {
		t.Error("wrapped error should not match a different code")
	}
	if !errors.Is(err, cause) {
		t.Error("wrapped error should unwrap to its cause")
	}
	if err.Error() != "install: bad_sm_programming: out of program space" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
