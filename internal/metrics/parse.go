package metrics

import (
	"fmt"
	"strconv"
	"strings"
)

// Kinds lists the expression forms Parse accepts.
func Kinds() []string {
	return []string{"final:J", "mean:J", "max:J", "min:J", "at:J@T", "sum:J@T1,T2", "const:C"}
}

// Parse builds an observable from a short expression:
//
//	final:J       state J at the end of the span
//	mean:J        time average of state J
//	max:J, min:J  extremes of state J
//	at:J@T        state J at time T
//	sum:J@T1,T2   sum of state J over the listed times
//	const:C       the constant C
//
// J is a component index or one of stateNames.
func Parse(expr string, stateNames []string) (Observable, error) {
	kind, arg, ok := strings.Cut(strings.TrimSpace(expr), ":")
	if !ok {
		return Observable{}, fmt.Errorf("metrics: observable %q: missing ':'", expr)
	}

	if kind == "const" {
		c, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return Observable{}, fmt.Errorf("metrics: observable %q: %w", expr, err)
		}
		obs := Constant(c)
		obs.Name = expr
		return obs, nil
	}

	comp, at, hasAt := strings.Cut(arg, "@")
	j, err := component(comp, stateNames)
	if err != nil {
		return Observable{}, fmt.Errorf("metrics: observable %q: %w", expr, err)
	}

	var obs Observable
	switch kind {
	case "final":
		obs = Final(j)
	case "mean":
		obs = TimeAverage(j)
	case "max":
		obs = Max(j)
	case "min":
		obs = Min(j)
	case "at":
		if !hasAt {
			return Observable{}, fmt.Errorf("metrics: observable %q: missing @time", expr)
		}
		t, err := strconv.ParseFloat(at, 64)
		if err != nil {
			return Observable{}, fmt.Errorf("metrics: observable %q: %w", expr, err)
		}
		obs = ComponentAt(j, t)
	case "sum":
		if !hasAt {
			return Observable{}, fmt.Errorf("metrics: observable %q: missing @times", expr)
		}
		var times []float64
		for _, f := range strings.Split(at, ",") {
			t, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return Observable{}, fmt.Errorf("metrics: observable %q: %w", expr, err)
			}
			times = append(times, t)
		}
		obs = SumOver(j, times)
	default:
		return Observable{}, fmt.Errorf("metrics: unknown observable kind %q", kind)
	}
	obs.Name = expr
	return obs, nil
}

func component(s string, names []string) (int, error) {
	if j, err := strconv.Atoi(s); err == nil {
		if j < 0 || (len(names) > 0 && j >= len(names)) {
			return 0, fmt.Errorf("component %d out of range", j)
		}
		return j, nil
	}
	for j, n := range names {
		if n == s {
			return j, nil
		}
	}
	return 0, fmt.Errorf("unknown component %q", s)
}
