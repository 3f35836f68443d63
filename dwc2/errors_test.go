package dwc2

import "testing"

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		StatusOK:            "ok",
		StatusIO:            "io error",
		StatusInvalidArgs:   "invalid arguments",
		StatusNoMemory:      "no memory",
		StatusNotSupported:  "not supported",
		Status(99):          "unknown status",
	}

	for status, want := range cases {
		if got := status.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", status, got, want)
		}
	}
}
