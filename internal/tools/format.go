package tools

import (
	"fmt"
	"strings"
	"time"

	"github.com/sweeney/gpio-manager/internal/device"
	"github.com/sweeney/gpio-manager/internal/logic"
	"github.com/sweeney/gpio-manager/internal/status"
)

const stampLayout = "2006-01-02T15:04:05"

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "None"
	}
	return strings.Join(names, ", ")
}

// ListNames renders the input and output names.
func ListNames(reg *device.Registry) string {
	return fmt.Sprintf("Inputs: %s | Outputs: %s", joinOrNone(reg.InputNames()), joinOrNone(reg.OutputNames()))
}

// Description renders the purpose of one device.
func Description(reg *device.Registry, name string) (string, error) {
	if in, ok := reg.Input(name); ok {
		return fmt.Sprintf("Input '%s': %s", name, in.Description()), nil
	}
	if out, ok := reg.Output(name); ok {
		return fmt.Sprintf("Output '%s': %s", name, out.Description()), nil
	}
	return "", fmt.Errorf("pin '%s' not found", name)
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "Never"
	}
	return t.UTC().Format(stampLayout) + " UTC"
}

// State renders the state, timestamps and smoothed values of one device.
func State(reg *device.Registry, name string) (string, error) {
	d, ok := status.Lookup(reg, name)
	if !ok {
		return "", fmt.Errorf("pin '%s' not found. Use 'list_names' to see available pins", name)
	}

	kind := "Input"
	if d.Kind == status.KindOutput {
		kind = "Output"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Pin %s '%s': %s\n", kind, d.Name, d.State)
	fmt.Fprintf(&b, "Last ON: %s\n", stamp(d.LastOn))
	fmt.Fprintf(&b, "Last OFF: %s\n", stamp(d.LastOff))
	fmt.Fprintf(&b, "Last Change: %s", stamp(d.LastChange))
	for _, s := range d.Smoothed {
		fmt.Fprintf(&b, "\nSmoothed %s: %s", device.WindowLabel(s.Window), logic.StateOf(s.On))
	}
	return b.String(), nil
}

// SetState switches an output and renders the outcome.
func SetState(reg *device.Registry, name string, on bool) (string, error) {
	out, ok := reg.Output(name)
	if !ok {
		return "", fmt.Errorf("pin '%s' not found or is not an output actuator", name)
	}
	if err := out.Switch(on); err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully set %s to %s", name, logic.StateOf(on)), nil
}
