package frailtymm

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

func TestDefaultTune(t *testing.T) {

	tune := DefaultTune()
	if len(tune) != 27 {
		t.Errorf("default grid has %d values", len(tune))
	}
	if !scalar.EqualWithinAbs(tune[0], math.Exp(-5.5), 1e-12) {
		t.Errorf("first value %v", tune[0])
	}
	if !scalar.EqualWithinAbs(tune[len(tune)-1], math.Exp(1), 1e-10) {
		t.Errorf("last value %v", tune[len(tune)-1])
	}
	for i := 1; i < len(tune); i++ {
		if tune[i] <= tune[i-1] {
			t.Error("grid should be increasing")
		}
	}
}

// LASSO with a vanishing tuning value must reproduce the unpenalized fit.
func TestPathSmallTune(t *testing.T) {

	ds := simClustered(80, 2, []float64{0.8, -0.5}, 0.5, 13)

	cfg := DefaultConfig()
	m, err := NewFrailtyReg(ds, "Time", "Status", "Cluster", "", xnames(2), Clustered, cfg)
	if err != nil {
		t.Fatal(err)
	}
	rslt, err := m.Fit()
	if err != nil {
		t.Fatal(err)
	}

	cfg2 := DefaultConfig()
	cfg2.Tune = []float64{1e-8}
	m2, err := NewFrailtyReg(ds, "Time", "Status", "Cluster", "", xnames(2), Clustered, cfg2)
	if err != nil {
		t.Fatal(err)
	}
	pr, err := m2.FitPath()
	if err != nil {
		t.Fatal(err)
	}

	if !floats.EqualApprox(pr.Best().Coeff, rslt.Params(), 1e-2) {
		t.Errorf("penalized %v vs unpenalized %v", pr.Best().Coeff, rslt.Params())
	}
}

// On sparse simulated data the BIC-selected fit must include every strong
// true coefficient and shrink the fit to well below the full support.
func TestPathSelection(t *testing.T) {

	p := 10
	beta := make([]float64, p)
	beta[0], beta[3], beta[7] = 1, -1, 0.8

	ds := simClustered(150, 2, beta, 0.5, 2024)

	m, err := NewFrailtyReg(ds, "Time", "Status", "Cluster", "", xnames(p), Clustered, nil)
	if err != nil {
		t.Fatal(err)
	}
	pr, err := m.FitPath()
	if err != nil {
		t.Fatal(err)
	}

	best := pr.Best()
	for _, j := range []int{0, 3, 7} {
		if math.Abs(best.Coeff[j]) < 0.05 {
			t.Errorf("true coefficient %d dropped at tune %v: %v", j, best.Tune, best.Coeff)
		}
	}
	if best.DF < 3 || best.DF > 9 {
		t.Errorf("selected %d coefficients", best.DF)
	}

	// The records cover the path in increasing tune order, with BICs
	// consistent with the stored selections.
	tunes := pr.Tunes()
	for i := 1; i < len(tunes); i++ {
		if tunes[i] <= tunes[i-1] {
			t.Error("records should be in increasing tune order")
		}
	}
	bics := pr.BICs()
	for _, b := range bics {
		if b < bics[pr.BestIndex]-1e-12 {
			t.Error("BestIndex does not minimize the BIC")
		}
	}

	// The coefficient path matrix matches the records.
	cp := pr.CoeffPath()
	nr, nc := cp.Dims()
	if nr != len(pr.Records) || nc != p {
		t.Fatalf("coefficient path is %d x %d", nr, nc)
	}
	for i, r := range pr.Records {
		if !floats.EqualApprox(cp.RawRowView(i), r.Coeff, 1e-14) {
			t.Fail()
		}
	}

	if len(pr.Summary()) == 0 {
		t.Fail()
	}
}

// Warm and cold starts must land on essentially the same path solutions.
func TestWarmColdStart(t *testing.T) {

	beta := []float64{1, 0, -0.8, 0}
	ds := simClustered(100, 2, beta, 0.5, 321)

	tune := []float64{0.01, 0.05, 0.1, 0.3}

	cfg := DefaultConfig()
	cfg.Tune = tune
	cfg.Tol = 1e-6
	cfg.Maxit = 500
	m1, err := NewFrailtyReg(ds, "Time", "Status", "Cluster", "", xnames(4), Clustered, cfg)
	if err != nil {
		t.Fatal(err)
	}
	pw, err := m1.FitPath()
	if err != nil {
		t.Fatal(err)
	}

	cfg2 := DefaultConfig()
	cfg2.Tune = tune
	cfg2.Tol = 1e-6
	cfg2.Maxit = 500
	cfg2.ColdStart = true
	m2, err := NewFrailtyReg(ds, "Time", "Status", "Cluster", "", xnames(4), Clustered, cfg2)
	if err != nil {
		t.Fatal(err)
	}
	pc, err := m2.FitPath()
	if err != nil {
		t.Fatal(err)
	}

	warmIter, coldIter := 0, 0
	for i := range pw.Records {
		if i >= len(pc.Records) {
			break
		}
		if !floats.EqualApprox(pw.Records[i].Coeff, pc.Records[i].Coeff, 0.05) {
			t.Errorf("tune %v: warm %v vs cold %v", pw.Records[i].Tune,
				pw.Records[i].Coeff, pc.Records[i].Coeff)
		}
		warmIter += pw.Records[i].Iterations
		coldIter += pc.Records[i].Iterations
	}

	// Warm starting exists to save iterations.
	if warmIter > coldIter+2 {
		t.Errorf("warm starts took %d iterations, cold starts %d", warmIter, coldIter)
	}
}

// A single-value tuning sequence must reproduce the matching entry of a
// longer cold-started path, which solves each value from the same seed.
func TestPathRoundTrip(t *testing.T) {

	ds := simClustered(70, 2, []float64{0.9, -0.6}, 0.5, 77)

	cfg := DefaultConfig()
	cfg.Tune = []float64{0.01, 0.05, 0.2}
	cfg.ColdStart = true
	m, err := NewFrailtyReg(ds, "Time", "Status", "Cluster", "", xnames(2), Clustered, cfg)
	if err != nil {
		t.Fatal(err)
	}
	pr, err := m.FitPath()
	if err != nil {
		t.Fatal(err)
	}

	cfg1 := DefaultConfig()
	cfg1.Tune = []float64{0.05}
	m1, err := NewFrailtyReg(ds, "Time", "Status", "Cluster", "", xnames(2), Clustered, cfg1)
	if err != nil {
		t.Fatal(err)
	}
	p1, err := m1.FitPath()
	if err != nil {
		t.Fatal(err)
	}

	r := pr.Records[1]
	r1 := p1.Records[0]
	if !floats.EqualApprox(r.Coeff, r1.Coeff, 1e-12) {
		t.Errorf("coefficients differ: %v vs %v", r.Coeff, r1.Coeff)
	}
	if r.Theta != r1.Theta || r.LogLike != r1.LogLike {
		t.Error("theta or log-likelihood differ")
	}

	// The BIC differs only through the group count, identical here.
	if math.Abs(r.BIC-r1.BIC) > 1e-12 {
		t.Errorf("BIC differs: %v vs %v", r.BIC, r1.BIC)
	}
}

// Once every coefficient reaches zero the path terminates early.
func TestPathEarlyStop(t *testing.T) {

	ds := simClustered(60, 2, []float64{0.5, -0.4}, 0.5, 8)

	var calls int
	cfg := DefaultConfig()
	cfg.Tune = []float64{0.05, 5, 10, 20, 40, 80, 160}
	cfg.Progress = func(step, total int, tune float64) {
		calls++
		if total != 7 {
			t.Errorf("total %d", total)
		}
	}
	m, err := NewFrailtyReg(ds, "Time", "Status", "Cluster", "", xnames(2), Clustered, cfg)
	if err != nil {
		t.Fatal(err)
	}
	pr, err := m.FitPath()
	if err != nil {
		t.Fatal(err)
	}

	if len(pr.Records) >= 7 {
		t.Errorf("path did not terminate early: %d records", len(pr.Records))
	}
	last := pr.Records[len(pr.Records)-1]
	if last.DF != 0 {
		t.Errorf("last record has %d nonzero coefficients", last.DF)
	}
	if calls == 0 {
		t.Error("progress callback never invoked")
	}
}

// With more parameters than observations the warm start is reseeded after
// each path step.  Early termination must still key off the recorded
// solution, so the path stops once a heavy penalty zeroes everything.
func TestPathEarlyStopWideData(t *testing.T) {

	beta := []float64{0.6, -0.5, 0.4, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	ds := simClustered(5, 2, beta, 0.5, 11)

	cfg := DefaultConfig()
	cfg.Tune = []float64{0.1, 50, 100, 200}
	m, err := NewFrailtyReg(ds, "Time", "Status", "Cluster", "", xnames(12), Clustered, cfg)
	if err != nil {
		t.Fatal(err)
	}
	pr, err := m.FitPath()
	if err != nil {
		t.Fatal(err)
	}

	if len(pr.Records) >= 4 {
		t.Errorf("path did not terminate early: %d records", len(pr.Records))
	}
	last := pr.Records[len(pr.Records)-1]
	if last.DF != 0 {
		t.Errorf("last record has %d nonzero coefficients", last.DF)
	}
}
