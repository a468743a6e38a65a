package gpio

import (
	"errors"
	"testing"
)

func TestFakeInputScript(t *testing.T) {
	f := NewFakeInput(true, false, true)

	want := []bool{true, false, true, true} // last level repeats
	for i, w := range want {
		got, err := f.Read()
		if err != nil {
			t.Fatalf("read %d: unexpected error: %v", i, err)
		}
		if got != w {
			t.Errorf("read %d: got %v, want %v", i, got, w)
		}
	}
}

func TestFakeInputNoLevels(t *testing.T) {
	f := NewFakeInput()
	if _, err := f.Read(); err == nil {
		t.Error("expected error with no levels")
	}
}

func TestFakeInputError(t *testing.T) {
	f := NewFakeInput(true)
	f.ReadError = errors.New("simulated error")

	if _, err := f.Read(); err == nil || err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeInputSet(t *testing.T) {
	f := NewFakeInput(false, false, false)
	f.Read()

	f.Set(true)
	got, err := f.Read()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Error("expected level true after Set(true)")
	}
}

func TestFakeOutputRecordsWrites(t *testing.T) {
	f := NewFakeOutput(false)

	if err := f.Write(true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Write(true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Write(false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.Level != false {
		t.Error("expected final level false")
	}
	if f.Writes != 3 {
		t.Errorf("expected 3 writes, got %d", f.Writes)
	}
	if len(f.History) != 3 || !f.History[0] || !f.History[1] || f.History[2] {
		t.Errorf("unexpected history: %v", f.History)
	}
}

func TestFakeOutputError(t *testing.T) {
	f := NewFakeOutput(false)
	f.WriteError = errors.New("simulated error")

	if err := f.Write(true); err == nil {
		t.Error("expected error to be returned")
	}
	if f.Level || f.Writes != 0 {
		t.Error("failed write must not be recorded")
	}
}

func TestFakeClose(t *testing.T) {
	in := NewFakeInput(true)
	out := NewFakeOutput(false)

	if err := in.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !in.Closed || !out.Closed {
		t.Error("should be closed after Close()")
	}
}
