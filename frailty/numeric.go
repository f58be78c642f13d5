package frailty

import (
	"math"

	"gonum.org/v1/gonum/integrate/quad"
)

// Number of Gauss-Hermite nodes used for the Log-Normal expectation.
const hermiteNodes = 40

// newLogNormal returns a Log-Normal frailty distribution with unit mean:
// omega = exp(b - theta/2) with b ~ N(0, theta), so E[omega] = 1.  There is
// no closed-form Laplace transform, so A_d is evaluated by Gauss-Hermite
// quadrature; the node locations and weights are computed once here and
// captured by the returned function fields.
func newLogNormal() *Frailty {

	x := make([]float64, hermiteNodes)
	w := make([]float64, hermiteNodes)
	quad.Hermite{}.FixedLocations(x, w, math.Inf(-1), math.Inf(1))

	// logw folds the quadrature weights and the Gaussian normalization
	// into the log-sum terms.
	logw := make([]float64, hermiteNodes)
	for i := range w {
		logw[i] = math.Log(w[i]) - 0.5*math.Log(math.Pi)
	}

	// logA(d, h, theta) = log Integral omega^d exp(-h*omega) dP(omega),
	// with omega = exp(sigma*sqrt(2)*x - theta/2) at each Hermite node x.
	logA := func(d int, h, theta float64) float64 {
		sigma := math.Sqrt(theta)
		t := make([]float64, hermiteNodes)
		for i := range x {
			v := sigma*math.Sqrt2*x[i] - theta/2
			if v > 700 {
				v = 700
			}
			t[i] = float64(d)*v - h*math.Exp(v) + logw[i]
		}
		return logSumExp(t)
	}

	return &Frailty{
		Name:     "lognormal",
		TypeCode: LogNormal,
		logA:     logA,
		expect: func(d int, h, theta float64) float64 {
			return math.Exp(logA(d+1, h, theta) - logA(d, h, theta))
		},
	}
}

// newPVF returns a PVF (power variance function) frailty distribution with
// the given power parameter in (0, 1), parameterized to unit mean and
// variance theta.  The PVF likelihood has no closed form: A_d is computed
// by a recursion of length d on the Laplace transform derivatives, so PVF
// fits are markedly slower than the other variants, particularly when
// groups carry many events.
func newPVF(power float64) *Frailty {

	// derivs returns A_0 .. A_(dmax) scaled relative to L(h), together
	// with log L(h) and an accumulated log rescaling applied uniformly
	// to all entries to avoid overflow.
	derivs := func(dmax int, h, theta float64) ([]float64, float64, float64) {

		alpha := power
		thh := (1 - alpha) / theta
		delta := math.Pow(thh, 1-alpha)

		logL := -delta * (math.Pow(thh+h, alpha) - math.Pow(thh, alpha)) / alpha

		// u[m] = (-1)^(m-1) g^(m)(h) for the exponent g = -log L;
		// all u[m] are positive for power in (0, 1).
		u := make([]float64, dmax+2)
		prod := 1.0
		for m := 1; m <= dmax+1; m++ {
			u[m] = delta * prod * math.Pow(thh+h, alpha-float64(m))
			prod *= float64(m) - alpha
		}

		q := make([]float64, dmax+2)
		q[0] = 1
		var shift float64

		// Pascal row of binomial coefficients for the current order.
		binom := []float64{1}

		for d := 0; d <= dmax; d++ {
			var s float64
			for k := 0; k <= d; k++ {
				s += binom[k] * u[k+1] * q[d-k]
			}
			q[d+1] = s

			if s > 1e270 {
				for j := 0; j <= d+1; j++ {
					q[j] /= s
				}
				shift += math.Log(s)
			}

			next := make([]float64, d+2)
			next[0], next[d+1] = 1, 1
			for k := 1; k <= d; k++ {
				next[k] = binom[k-1] + binom[k]
			}
			binom = next
		}

		return q, logL, shift
	}

	logA := func(d int, h, theta float64) float64 {
		q, logL, shift := derivs(d, h, theta)
		return logL + math.Log(q[d]) + shift
	}

	return &Frailty{
		Name:     "pvf",
		TypeCode: PVF,
		Power:    power,
		logA:     logA,
		expect: func(d int, h, theta float64) float64 {
			q, _, _ := derivs(d, h, theta)
			return q[d+1] / q[d]
		},
	}
}
