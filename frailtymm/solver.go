package frailtymm

import (
	"math"

	"github.com/cran/frailtyMMpen/frailty"
	"github.com/cran/frailtyMMpen/statfit"
)

const (
	// Number of unpenalized iterations used to seed the path
	burnInIter = 10

	// Bounds enforced on the dispersion parameter
	thetaMin = 1e-6
	thetaMax = 50.0

	// Linear predictors are clamped to this magnitude before
	// exponentiation.
	lpClamp = 200.0
)

// workState holds the mutable iterate of one MM solve: the coefficient
// vector, the dispersion parameter, and the baseline hazard represented as
// per-row jump sizes aligned to the sorted observations.
type workState struct {
	coeff  []float64
	theta  float64
	haz    []float64
	cumhaz []float64
	loglik float64
}

// SafeInit is an immutable record of the burn-in state.  The path driver
// reseeds its working state from a SafeInit and never writes to one, so
// the reset values cannot be corrupted mid-path.
type SafeInit struct {
	coeff  []float64
	theta  float64
	haz    []float64
	cumhaz []float64
}

// Coeff returns a copy of the burn-in coefficients.
func (si *SafeInit) Coeff() []float64 {
	return append([]float64(nil), si.coeff...)
}

// Theta returns the burn-in dispersion.
func (si *SafeInit) Theta() float64 {
	return si.theta
}

// state returns a fresh mutable working state seeded from the burn-in
// values.
func (si *SafeInit) state() *workState {
	return &workState{
		coeff:  append([]float64(nil), si.coeff...),
		theta:  si.theta,
		haz:    append([]float64(nil), si.haz...),
		cumhaz: append([]float64(nil), si.cumhaz...),
	}
}

// scratch holds per-solve working arrays so that the iteration allocates
// nothing.
type scratch struct {
	lp       []float64
	elp      []float64
	ww       []float64
	penw     []float64
	blockLam []float64
	psi      []float64
	gs       []frailty.GroupStat
}

func (m *FrailtyReg) newScratch() *scratch {
	n := m.NumObs()
	p := m.NumParams()
	sc := &scratch{
		lp:       make([]float64, n),
		elp:      make([]float64, n),
		ww:       make([]float64, n),
		penw:     make([]float64, p),
		blockLam: make([]float64, len(m.blocks)),
		psi:      make([]float64, m.ngroup),
		gs:       make([]frailty.GroupStat, m.ngroup),
	}
	for g := range sc.gs {
		sc.gs[g].Events = m.nevent[g]
	}
	return sc
}

func zero(x []float64) {
	for i := range x {
		x[i] = 0
	}
}

func maxAbs(x []float64) float64 {
	var mx float64
	for _, v := range x {
		if a := math.Abs(v); a > mx {
			mx = a
		}
	}
	return mx
}

func sumAbs(x []float64) float64 {
	var s float64
	for _, v := range x {
		s += math.Abs(v)
	}
	return s
}

// linpred fills lp with the linear predictors at the given coefficients,
// clamped for stable exponentiation, and elp with their exponentials.
func (m *FrailtyReg) linpred(coeff []float64, lp, elp []float64) {

	zero(lp)
	for j, k := range m.xpos {
		x := m.data[k]
		for i := range x {
			lp[i] += float64(x[i]) * coeff[j]
		}
	}
	for i := range lp {
		if lp[i] > lpClamp {
			lp[i] = lpClamp
		} else if lp[i] < -lpClamp {
			lp[i] = -lpClamp
		}
		elp[i] = math.Exp(lp[i])
	}
}

// weights fills ww with the risk weights psi_g * exp(lp_i) used by the
// hazard and coefficient updates.
func (m *FrailtyReg) weights(psi, elp, ww []float64) {
	for i := range ww {
		ww[i] = psi[m.groupix[i]] * elp[i]
	}
}

// hazard profiles the baseline hazard at the current risk weights: within
// each stratum the risk set of a tie block is the prefix of the stratum up
// to and including the block, so a single forward pass accumulates the
// denominators.  The per-row jumps and cumulative hazard in st are
// overwritten.
func (m *FrailtyReg) hazard(ww []float64, st *workState, blockLam []float64) {

	status := m.data[m.statuspos]

	s := -1
	var s0 float64
	for k, b := range m.blocks {
		if m.blockstrat[k] != s {
			s = m.blockstrat[k]
			s0 = 0
		}
		d := 0
		for i := b[0]; i < b[1]; i++ {
			s0 += ww[i]
			if status[i] == 1 {
				d++
			}
		}
		for i := b[0]; i < b[1]; i++ {
			if status[i] == 1 {
				st.haz[i] = 1 / s0
			} else {
				st.haz[i] = 0
			}
		}
		if d > 0 {
			blockLam[k] = float64(d) / s0
		} else {
			blockLam[k] = 0
		}
	}

	// Within a stratum the blocks run from the largest time down, so the
	// cumulative hazard at a block's time sums this and all later blocks.
	s = -1
	var cum float64
	for k := len(m.blocks) - 1; k >= 0; k-- {
		if m.blockstrat[k] != s {
			s = m.blockstrat[k]
			cum = 0
		}
		cum += blockLam[k]
		b := m.blocks[k]
		for i := b[0]; i < b[1]; i++ {
			st.cumhaz[i] = cum
		}
	}
}

// groupStats accumulates the per-group cumulative hazard totals at the
// current relative risks.
func (m *FrailtyReg) groupStats(elp, cumhaz []float64, gs []frailty.GroupStat) {
	for g := range gs {
		gs[g].CumHaz = 0
	}
	for i, g := range m.groupix {
		gs[g].CumHaz += cumhaz[i] * elp[i]
	}
}

// obsLogLike returns the observed marginal log-likelihood at the current
// state: the event terms under the profiled baseline hazard plus the
// frailty marginal contributions.
func (m *FrailtyReg) obsLogLike(fr *frailty.Frailty, st *workState, lp []float64, gs []frailty.GroupStat) float64 {

	status := m.data[m.statuspos]

	var ll float64
	for i := range status {
		if status[i] == 1 {
			ll += math.Log(st.haz[i]) + lp[i]
		}
	}

	return ll + fr.ProfLogLike(gs, st.theta)
}

// surrObj evaluates the profile surrogate maximized by the coefficient
// step: the weighted Breslow-type objective minus the quadratic penalty
// surrogate.  Constants in the frailty weights are omitted, so values are
// only comparable at fixed psi.
func (m *FrailtyReg) surrObj(lp, ww, coeff, penw []float64) float64 {

	status := m.data[m.statuspos]

	var obj float64
	s := -1
	var s0 float64
	for k, b := range m.blocks {
		if m.blockstrat[k] != s {
			s = m.blockstrat[k]
			s0 = 0
		}
		d := 0
		for i := b[0]; i < b[1]; i++ {
			s0 += ww[i]
			if status[i] == 1 {
				d++
				obj += lp[i]
			}
		}
		if d > 0 {
			obj -= float64(d) * math.Log(s0)
		}
	}

	for j := range coeff {
		obj -= 0.5 * penw[j] * coeff[j] * coeff[j]
	}

	return obj
}

// coordCycle performs one cycle of coordinate updates on the surrogate.
// Each coordinate takes a Newton step penalized by its local quadratic
// weight; lp, elp and ww are kept current as coefficients change.
func (m *FrailtyReg) coordCycle(coeff, lp, elp, ww, psi, penw []float64) {

	status := m.data[m.statuspos]

	for j := range coeff {

		x := m.data[m.xpos[j]]

		var grad, curv float64
		s := -1
		var s0, s1, s2 float64
		for k, b := range m.blocks {
			if m.blockstrat[k] != s {
				s = m.blockstrat[k]
				s0, s1, s2 = 0, 0, 0
			}
			d := 0
			for i := b[0]; i < b[1]; i++ {
				w := ww[i]
				xi := float64(x[i])
				s0 += w
				s1 += w * xi
				s2 += w * xi * xi
				if status[i] == 1 {
					d++
					grad += xi
				}
			}
			if d > 0 {
				r := s1 / s0
				grad -= float64(d) * r
				curv += float64(d) * (s2/s0 - r*r)
			}
		}

		den := curv + penw[j]
		if den < 1e-12 {
			continue
		}

		bj := (grad + curv*coeff[j]) / den
		delta := bj - coeff[j]
		if delta == 0 {
			continue
		}
		coeff[j] = bj

		for i := range lp {
			lp[i] += float64(x[i]) * delta
			if lp[i] > lpClamp {
				lp[i] = lpClamp
			} else if lp[i] < -lpClamp {
				lp[i] = -lpClamp
			}
			elp[i] = math.Exp(lp[i])
			ww[i] = psi[m.groupix[i]] * elp[i]
		}
	}
}

// coefStep runs one coordinate cycle with a step-halving safeguard: if the
// cycle lowers the surrogate the increment is halved toward the previous
// point until the surrogate improves, keeping the MM ascent property.
func (m *FrailtyReg) coefStep(coeff, lp, elp, ww, psi, penw []float64) {

	old := append([]float64(nil), coeff...)
	f0 := m.surrObj(lp, ww, coeff, penw)

	m.coordCycle(coeff, lp, elp, ww, psi, penw)
	f1 := m.surrObj(lp, ww, coeff, penw)

	for h := 0; h < 12 && f1 < f0-1e-10; h++ {
		for j := range coeff {
			coeff[j] = 0.5 * (coeff[j] + old[j])
		}
		m.linpred(coeff, lp, elp)
		m.weights(psi, elp, ww)
		f1 = m.surrObj(lp, ww, coeff, penw)
	}

	if f1 < f0-1e-10 {
		copy(coeff, old)
		m.linpred(coeff, lp, elp)
		m.weights(psi, elp, ww)
	}
}

func clampTheta(x float64) float64 {
	switch {
	case math.IsNaN(x), x < thetaMin:
		return thetaMin
	case x > thetaMax:
		return thetaMax
	}
	return x
}

// thetaStep updates the dispersion parameter by maximizing its profile
// log-likelihood at the current group statistics.  Closed-form updates are
// used when the distribution provides them (the EM update for
// inverse-Gaussian, a Newton step on the analytic score for gamma), and a
// bracketed bisection search otherwise.  A candidate is only accepted if
// it does not lower the profile, so the update never breaks the MM ascent.
func (m *FrailtyReg) thetaStep(fr *frailty.Frailty, gs []frailty.GroupStat, theta float64) float64 {

	prof := func(th float64) float64 {
		return fr.ProfLogLike(gs, th)
	}
	cur := prof(theta)

	if cand, ok := fr.ThetaClosed(gs, theta); ok {
		cand = clampTheta(cand)
		if prof(cand) >= cur {
			return cand
		}
	}

	if sc, ok := fr.ThetaScore(gs, theta); ok {
		if cv, ok2 := fr.ThetaCurve(gs, theta); ok2 && cv < 0 && !math.IsNaN(sc) {
			cand := clampTheta(theta - sc/cv)
			for h := 0; h < 6; h++ {
				if prof(cand) >= cur {
					return cand
				}
				cand = clampTheta(0.5 * (cand + theta))
			}
		}
	}

	x, v := statfit.MaximizeScalar(prof, theta, thetaMin, thetaMax, 1e-7)
	if v >= cur {
		return x
	}
	return theta
}

// solve runs the MM iteration from the given state: profile the baseline
// hazard at the current pseudo-frailty values, ascend the coefficient
// surrogate, re-profile the hazard, and update the dispersion, until the
// change in coefficients and dispersion falls below the tolerance or the
// iteration budget is exhausted.  Non-convergence is reported through the
// returned flag, never as a failure; the last iterate is kept in st.
func (m *FrailtyReg) solve(fr *frailty.Frailty, st *workState, lam float64, penalized bool, maxit int) (bool, int, []float64) {

	n := m.NumObs()
	sc := m.newScratch()

	m.linpred(st.coeff, sc.lp, sc.elp)

	if st.haz == nil {
		st.haz = make([]float64, n)
		st.cumhaz = make([]float64, n)
		for g := range sc.psi {
			sc.psi[g] = 1
		}
		m.weights(sc.psi, sc.elp, sc.ww)
		m.hazard(sc.ww, st, sc.blockLam)
	}

	prevCoeff := make([]float64, len(st.coeff))
	var trace []float64
	conv := false
	iter := 0

	for iter = 0; iter < maxit; iter++ {

		copy(prevCoeff, st.coeff)
		prevTheta := st.theta

		// Pseudo-frailty values minorizing at the current point
		m.groupStats(sc.elp, st.cumhaz, sc.gs)
		for g := range sc.psi {
			sc.psi[g] = fr.Expect(sc.gs[g], st.theta)
		}
		m.weights(sc.psi, sc.elp, sc.ww)

		// Local quadratic penalty weights at the current coefficients
		if penalized {
			m.pen.Weights(st.coeff, lam, sc.penw)
		} else {
			zero(sc.penw)
		}

		m.coefStep(st.coeff, sc.lp, sc.elp, sc.ww, sc.psi, sc.penw)

		// Re-profile the baseline hazard at the new coefficients
		m.hazard(sc.ww, st, sc.blockLam)

		// Dispersion update at the new hazard
		m.groupStats(sc.elp, st.cumhaz, sc.gs)
		st.theta = m.thetaStep(fr, sc.gs, st.theta)

		st.loglik = m.obsLogLike(fr, st, sc.lp, sc.gs)
		trace = append(trace, st.loglik)

		if m.log != nil {
			m.log.Printf("iteration %d: loglike=%.10f theta=%.6f", iter+1, st.loglik, st.theta)
		}

		dx := math.Abs(st.theta - prevTheta)
		for j := range st.coeff {
			if d := math.Abs(st.coeff[j] - prevCoeff[j]); d > dx {
				dx = d
			}
		}
		if dx < m.tol {
			conv = true
			iter++
			break
		}
	}

	return conv, iter, trace
}

// freshState returns a default starting state: zero coefficients and unit
// dispersion.
func (m *FrailtyReg) freshState() *workState {
	return &workState{
		coeff: make([]float64, m.NumParams()),
		theta: 1,
	}
}

// burnIn runs the short unpenalized fit that seeds the path.  The burn-in
// runs under gamma frailty first; if it collapses to all-zero coefficients
// (a local maximum artifact) it is redone under the requested distribution.
func (m *FrailtyReg) burnIn() *SafeInit {

	gam := m.fr
	if gam.TypeCode != frailty.Gamma {
		var err error
		gam, err = frailty.New("gamma", 0)
		if err != nil {
			panic(err)
		}
	}

	st := m.freshState()
	m.solve(gam, st, 0, false, burnInIter)

	if m.fr.TypeCode != frailty.Gamma && maxAbs(st.coeff) < m.tol {
		st = m.freshState()
		m.solve(m.fr, st, 0, false, burnInIter)
	}

	return &SafeInit{
		coeff:  append([]float64(nil), st.coeff...),
		theta:  st.theta,
		haz:    append([]float64(nil), st.haz...),
		cumhaz: append([]float64(nil), st.cumhaz...),
	}
}

// surrHessian returns the Hessian of the unpenalized profile surrogate at
// the given risk weights, used for the sampling covariance of an
// unpenalized fit.
func (m *FrailtyReg) surrHessian(ww []float64) []float64 {

	status := m.data[m.statuspos]
	p := m.NumParams()

	hess := make([]float64, p*p)
	s1 := make([]float64, p)
	s2 := make([]float64, p*p)

	s := -1
	var s0 float64
	for k, b := range m.blocks {
		if m.blockstrat[k] != s {
			s = m.blockstrat[k]
			s0 = 0
			zero(s1)
			zero(s2)
		}
		d := 0
		for i := b[0]; i < b[1]; i++ {
			w := ww[i]
			s0 += w
			if status[i] == 1 {
				d++
			}
			for j1, k1 := range m.xpos {
				x1 := float64(m.data[k1][i])
				s1[j1] += w * x1
				for j2 := 0; j2 <= j1; j2++ {
					u := w * x1 * float64(m.data[m.xpos[j2]][i])
					s2[j1*p+j2] += u
					if j2 != j1 {
						s2[j2*p+j1] += u
					}
				}
			}
		}
		if d > 0 {
			fd := float64(d)
			for j1 := 0; j1 < p; j1++ {
				for j2 := 0; j2 < p; j2++ {
					hess[j1*p+j2] -= fd * (s2[j1*p+j2]/s0 - s1[j1]*s1[j2]/(s0*s0))
				}
			}
		}
	}

	return hess
}

// Fit estimates the model without a penalty: the burn-in seeds a full MM
// run under the requested frailty distribution.  Standard errors are
// derived from the curvature of the profile surrogate at the converged
// point.
func (m *FrailtyReg) Fit() (*FrailtyResults, error) {

	si := m.burnIn()
	st := si.state()
	conv, iters, trace := m.solve(m.fr, st, 0, false, m.maxit)

	var vcov []float64
	p := m.NumParams()
	if p > 0 {
		sc := m.newScratch()
		m.linpred(st.coeff, sc.lp, sc.elp)
		m.groupStats(sc.elp, st.cumhaz, sc.gs)
		for g := range sc.psi {
			sc.psi[g] = m.fr.Expect(sc.gs[g], st.theta)
		}
		m.weights(sc.psi, sc.elp, sc.ww)

		var err error
		vcov, err = statfit.VCovFromHess(m.surrHessian(sc.ww), p)
		if err != nil {
			if m.log != nil {
				m.log.Printf("frailtymm: %v", err)
			}
			vcov = nil
		}
	}

	coeff := append([]float64(nil), st.coeff...)

	return &FrailtyResults{
		BaseResults:  statfit.NewBaseResults(st.loglik, coeff, m.XNames(), vcov),
		model:        m,
		Theta:        st.theta,
		Hazard:       append([]float64(nil), st.haz...),
		CumHazard:    append([]float64(nil), st.cumhaz...),
		Converged:    conv,
		Iterations:   iters,
		LogLikeTrace: trace,
	}, nil
}
