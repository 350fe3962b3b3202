package integrators

import (
	"math"
	"testing"

	"github.com/san-kum/bayesode/internal/dynamo"
)

func TestRK45_EnergyConservation(t *testing.T) {
	integrator := NewRK45()
	dyn := &harmonicOscillator{}
	x0 := dynamo.State{1.0, 0.0}
	p := dynamo.Params{1.0}

	initialEnergy := dyn.Energy(x0)
	x := x0.Clone()
	dt := 0.01

	for i := 0; i < 10000; i++ {
		x = integrator.Step(dyn, x, p, float64(i)*dt, dt)
	}

	if !x.IsValid() {
		t.Fatal("RK45 produced invalid state")
	}

	finalEnergy := dyn.Energy(x)
	drift := math.Abs(finalEnergy-initialEnergy) / initialEnergy

	if drift > 1e-6 {
		t.Errorf("RK45 energy drift too high: %e", drift)
	}
}

func TestRK45_AdaptiveStep(t *testing.T) {
	integrator := NewRK45()
	dyn := &harmonicOscillator{}
	x0 := dynamo.State{1.0, 0.0}
	p := dynamo.Params{1.0}

	x, newDt, ok := integrator.StepAdaptive(dyn, x0, p, 0, 0.1, 1e-6, 1e-9)
	if !ok {
		t.Fatal("small step on a smooth problem should be accepted")
	}
	if !x.IsValid() {
		t.Error("StepAdaptive produced invalid state")
	}
	if newDt <= 0 {
		t.Errorf("StepAdaptive returned invalid dt: %f", newDt)
	}
}

func TestRK45_RejectsLargeStep(t *testing.T) {
	integrator := NewRK45()
	dyn := &harmonicOscillator{}

	_, newDt, ok := integrator.StepAdaptive(dyn, dynamo.State{1.0, 0.0}, dynamo.Params{100.0}, 0, 2.0, 1e-10, 1e-12)
	if ok {
		t.Fatal("expected rejection for a step spanning several periods")
	}
	if newDt >= 2.0 {
		t.Errorf("rejected step should shrink dt, got %f", newDt)
	}
}
