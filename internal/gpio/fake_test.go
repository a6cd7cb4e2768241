package gpio

import (
	"errors"
	"testing"
)

func TestFakeLineValue(t *testing.T) {
	f := NewFakeLine(true, false, true)

	for i, want := range []bool{true, false, true, true} {
		got, err := f.Value()
		if err != nil {
			t.Fatalf("read %d: unexpected error: %v", i, err)
		}
		if got != want {
			t.Errorf("read %d: expected %v, got %v", i, want, got)
		}
	}
}

func TestFakeLineNoValues(t *testing.T) {
	f := NewFakeLine()

	if _, err := f.Value(); err == nil {
		t.Error("expected error with no values")
	}
}

func TestFakeLineReadError(t *testing.T) {
	f := NewFakeLine(true)
	f.SetReadError(errors.New("simulated error"))

	_, err := f.Value()
	if err == nil || err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}

	f.SetReadError(nil)
	if v, err := f.Value(); err != nil || !v {
		t.Errorf("after clearing error: got (%v, %v)", v, err)
	}
}

func TestFakeLineSetValueReadsBack(t *testing.T) {
	f := NewFakeLine(false)

	if err := f.SetValue(true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := f.Value(); !v {
		t.Error("expected written level to be read back")
	}
	if len(f.Written) != 1 || !f.Written[0] {
		t.Errorf("Written: got %v", f.Written)
	}
}

func TestFakeLineWriteError(t *testing.T) {
	f := NewFakeLine(false)
	f.WriteError = errors.New("bus fault")

	if err := f.SetValue(true); err == nil {
		t.Error("expected write error")
	}
	if len(f.Written) != 0 {
		t.Errorf("failed write was recorded: %v", f.Written)
	}
}

func TestFakeLineClose(t *testing.T) {
	f := NewFakeLine(true)
	if f.IsClosed() {
		t.Error("should not be closed initially")
	}
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.IsClosed() {
		t.Error("should be closed after Close()")
	}
}

func TestFakeChipRequest(t *testing.T) {
	c := NewFakeChip()

	in, err := c.RequestInput(17, BiasPullUp)
	if err != nil {
		t.Fatalf("RequestInput: %v", err)
	}
	if in != c.Line(17) {
		t.Error("RequestInput should return the chip's line for the pin")
	}
	if c.Biases[17] != BiasPullUp {
		t.Errorf("bias: got %q", c.Biases[17])
	}

	out, err := c.RequestOutput(27, true)
	if err != nil {
		t.Fatalf("RequestOutput: %v", err)
	}
	if v, _ := out.Value(); !v {
		t.Error("output should start at its initial level")
	}
}

func TestFakeChipRequestError(t *testing.T) {
	c := NewFakeChip()
	c.RequestError = errors.New("busy")

	if _, err := c.RequestInput(4, BiasDefault); err == nil {
		t.Error("expected request error")
	}
	if _, err := c.RequestOutput(5, false); err == nil {
		t.Error("expected request error")
	}
}

func TestParseBias(t *testing.T) {
	tests := []struct {
		in      string
		want    Bias
		wantErr bool
	}{
		{"", BiasDefault, false},
		{"pull-up", BiasPullUp, false},
		{"pull-down", BiasPullDown, false},
		{"disabled", BiasDisabled, false},
		{"floating", BiasDefault, true},
	}
	for _, tt := range tests {
		got, err := ParseBias(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBias(%q): err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseBias(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
