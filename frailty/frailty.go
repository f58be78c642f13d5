// Package frailty implements the frailty distributions used in shared
// frailty survival models: Gamma, Log-Normal, Inverse-Gaussian, and PVF
// (power variance function).  All distributions are parameterized to have
// unit mean, with dispersion (variance) parameter theta.
//
// For a group with d observed events and accumulated cumulative hazard h,
// the marginal likelihood contribution is the d'th Laplace transform
// derivative A_d(h) = (-1)^d L^(d)(h), and the pseudo-frailty value used by
// the MM updates is the posterior expectation A_(d+1)(h)/A_d(h).  Gamma and
// Inverse-Gaussian admit closed forms; Log-Normal is evaluated by
// Gauss-Hermite quadrature and PVF by a recursion on the transform
// derivatives.
package frailty

import (
	"fmt"
	"math"
	"strings"
)

// Type is the numeric code of a frailty distribution.
type Type uint8

// Gamma, LogNormal, InvGauss and PVF are the supported frailty
// distributions.
const (
	Gamma Type = iota
	LogNormal
	InvGauss
	PVF
)

// GroupStat summarizes one frailty group at the current iterate: the number
// of observed events and the accumulated cumulative hazard for the group's
// members.
type GroupStat struct {

	// Number of observed events in the group
	Events int

	// Sum over group members of the baseline cumulative hazard at the
	// member's time, scaled by the member's relative risk.
	CumHaz float64
}

// Frailty represents a frailty distribution.  The function fields are
// resolved once, at configuration time, so that no name dispatch occurs in
// the optimization loop.
type Frailty struct {

	// The name of the distribution
	Name string

	// The numeric code for the distribution
	TypeCode Type

	// The power parameter, only used by PVF
	Power float64

	// logA returns log A_d(h; theta).
	logA func(d int, h, theta float64) float64

	// expect returns A_(d+1)(h; theta) / A_d(h; theta).
	expect func(d int, h, theta float64) float64

	// score and curve are the first and second derivatives in theta of
	// the profile log-likelihood contribution, when closed forms exist.
	score func(d int, h, theta float64) float64
	curve func(d int, h, theta float64) float64

	// closed returns a closed-form dispersion update from the group
	// statistics, when one exists.
	closed func(gs []GroupStat, theta float64) float64
}

// New returns a Frailty for the given distribution name (case-insensitive:
// gamma, lognormal, invgauss, pvf).  The power argument is required for pvf
// and must lie strictly in (0, 1); it is ignored otherwise.
func New(name string, power float64) (*Frailty, error) {

	switch strings.ToLower(name) {
	case "gamma":
		return &gammaFrailty, nil
	case "lognormal":
		return newLogNormal(), nil
	case "invgauss":
		return &invGaussFrailty, nil
	case "pvf":
		if power <= 0 || power >= 1 {
			return nil, fmt.Errorf("frailty: pvf requires a power parameter in (0, 1), got %v", power)
		}
		return newPVF(power), nil
	}

	return nil, fmt.Errorf("frailty: unknown distribution '%s'", name)
}

// Expect returns the posterior expectation of the frailty for a group with
// the given statistics, at dispersion theta.  The value is clamped to a
// finite positive range.
func (fr *Frailty) Expect(g GroupStat, theta float64) float64 {
	return clampPos(fr.expect(g.Events, g.CumHaz, theta))
}

// LogLike returns the marginal log-likelihood contribution of a group with
// the given statistics, at dispersion theta.
func (fr *Frailty) LogLike(g GroupStat, theta float64) float64 {
	return clampFinite(fr.logA(g.Events, g.CumHaz, theta))
}

// ProfLogLike returns the dispersion profile log-likelihood: the sum of the
// marginal contributions of all groups at dispersion theta, holding the
// group statistics fixed.
func (fr *Frailty) ProfLogLike(gs []GroupStat, theta float64) float64 {
	var ll float64
	for _, g := range gs {
		ll += fr.LogLike(g, theta)
	}
	return ll
}

// ThetaScore returns the derivative in theta of the profile log-likelihood,
// and whether a closed form is available.
func (fr *Frailty) ThetaScore(gs []GroupStat, theta float64) (float64, bool) {
	if fr.score == nil {
		return 0, false
	}
	var s float64
	for _, g := range gs {
		s += fr.score(g.Events, g.CumHaz, theta)
	}
	return s, true
}

// ThetaCurve returns the second derivative in theta of the profile
// log-likelihood, and whether a closed form is available.
func (fr *Frailty) ThetaCurve(gs []GroupStat, theta float64) (float64, bool) {
	if fr.curve == nil {
		return 0, false
	}
	var s float64
	for _, g := range gs {
		s += fr.curve(g.Events, g.CumHaz, theta)
	}
	return s, true
}

// ThetaClosed returns a closed-form dispersion update computed from the
// group statistics, and whether one is available.
func (fr *Frailty) ThetaClosed(gs []GroupStat, theta float64) (float64, bool) {
	if fr.closed == nil {
		return 0, false
	}
	return fr.closed(gs, theta), true
}

// clampFinite replaces non-finite values by a large negative constant so
// that overflow in a likelihood evaluation rejects a candidate rather than
// propagating NaN through the optimization.
func clampFinite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return -math.MaxFloat64 / 2
	}
	return x
}

// clampPos confines a pseudo-frailty value to a finite positive range.
func clampPos(x float64) float64 {
	switch {
	case math.IsNaN(x):
		return 1
	case x < 1e-10:
		return 1e-10
	case x > 1e10:
		return 1e10
	}
	return x
}

// Gamma frailty with mean 1 and variance theta has Laplace transform
// L(s) = (1 + theta*s)^(-1/theta), with
// A_d(s) = (1+theta*s)^(-1/theta-d) * prod_{k=1}^{d-1} (1+k*theta).
var gammaFrailty = Frailty{
	Name:     "gamma",
	TypeCode: Gamma,

	logA: func(d int, h, theta float64) float64 {
		ll := -(1/theta + float64(d)) * math.Log1p(theta*h)
		for k := 1; k < d; k++ {
			ll += math.Log1p(float64(k) * theta)
		}
		return ll
	},

	expect: func(d int, h, theta float64) float64 {
		return (1 + float64(d)*theta) / (1 + theta*h)
	},

	score: func(d int, h, theta float64) float64 {
		lg := math.Log1p(theta * h)
		s := lg/(theta*theta) - (1/theta+float64(d))*h/(1+theta*h)
		for k := 1; k < d; k++ {
			fk := float64(k)
			s += fk / (1 + fk*theta)
		}
		return s
	},

	curve: func(d int, h, theta float64) float64 {
		lg := math.Log1p(theta * h)
		v := 1 + theta*h
		s := 2*h/(theta*theta*v) - 2*lg/(theta*theta*theta) + (1/theta+float64(d))*h*h/(v*v)
		for k := 1; k < d; k++ {
			fk := float64(k)
			u := 1 + fk*theta
			s -= fk * fk / (u * u)
		}
		return s
	},
}

// Inverse-Gaussian frailty with mean 1 and variance theta.  The posterior
// of the frailty given d events and cumulative hazard h is generalized
// inverse Gaussian, so A_d and the posterior moments reduce to modified
// Bessel functions of half-integer order, which have elementary closed
// forms.
var invGaussFrailty = Frailty{
	Name:     "invgauss",
	TypeCode: InvGauss,

	logA: func(d int, h, theta float64) float64 {
		b := 1 / theta
		a := b + 2*h
		z := math.Sqrt(a * b)
		return 0.5*(float64(d)-0.5)*math.Log(b/a) + besselKHalfLog(imax(d-1, 0), z) - besselKHalfLog(0, b)
	},

	expect: func(d int, h, theta float64) float64 {
		b := 1 / theta
		a := b + 2*h
		z := math.Sqrt(a * b)
		return math.Exp(0.5*math.Log(b/a) + besselKHalfLog(d, z) - besselKHalfLog(imax(d-1, 0), z))
	},

	closed: func(gs []GroupStat, theta float64) float64 {
		// M-step of the EM algorithm: theta = mean of the posterior
		// expectations of (omega - 1)^2 / omega.
		var s float64
		for _, g := range gs {
			b := 1 / theta
			a := b + 2*g.CumHaz
			z := math.Sqrt(a * b)
			d := g.Events
			ew := math.Exp(0.5*math.Log(b/a) + besselKHalfLog(d, z) - besselKHalfLog(imax(d-1, 0), z))

			// E[1/omega] uses the order |d - 3/2| Bessel term.
			var n int
			switch {
			case d == 0:
				n = 1
			case d == 1:
				n = 0
			default:
				n = d - 2
			}
			ewi := math.Exp(0.5*math.Log(a/b) + besselKHalfLog(n, z) - besselKHalfLog(imax(d-1, 0), z))

			s += ew + ewi - 2
		}
		return s / float64(len(gs))
	},
}

// besselKHalfLog returns log K_{n+1/2}(z) using the closed form
//
//	K_{n+1/2}(z) = sqrt(pi/(2z)) e^{-z} sum_{k=0}^{n} (n+k)! / (k! (n-k)! (2z)^k)
//
// evaluated on the log scale for stability at large orders.
func besselKHalfLog(n int, z float64) float64 {

	t := make([]float64, n+1)
	l2z := math.Log(2 * z)
	for k := 0; k <= n; k++ {
		g1, _ := math.Lgamma(float64(n+k) + 1)
		g2, _ := math.Lgamma(float64(k) + 1)
		g3, _ := math.Lgamma(float64(n-k) + 1)
		t[k] = g1 - g2 - g3 - float64(k)*l2z
	}

	return 0.5*math.Log(math.Pi/(2*z)) - z + logSumExp(t)
}

// logSumExp returns log(sum_i exp(t_i)) computed stably.
func logSumExp(t []float64) float64 {
	m := math.Inf(-1)
	for _, x := range t {
		if x > m {
			m = x
		}
	}
	if math.IsInf(m, -1) {
		return m
	}
	var s float64
	for _, x := range t {
		s += math.Exp(x - m)
	}
	return m + math.Log(s)
}

func imax(a, b int) int {
	if a > b {
		return a
	}
	return b
}
