// Package penalty provides local quadratic surrogates for the LASSO, MCP,
// and SCAD penalties.  At a current coefficient value b, each penalty is
// replaced by the quadratic 0.5 * w * x^2 whose derivative matches the
// penalty derivative at |b|, which makes every MM coefficient step a
// weighted least-squares-like update.
package penalty

import (
	"fmt"
	"math"
	"strings"
)

// Type is the numeric code of a penalty family.
type Type uint8

// LASSO, MCP and SCAD are the supported penalty families.
const (
	LASSO Type = iota
	MCP
	SCAD
)

// Default concavity parameters.
const (
	DefaultMCPGamma  = 3.0
	DefaultSCADGamma = 3.7
)

// Floor applied to |b| in the quadratic weight, preventing division
// blow-up as coefficients approach zero.
const weightFloor = 1e-8

// Penalty represents a penalty family with a fixed concavity parameter.
type Penalty struct {

	// The name of the penalty family
	Name string

	// The numeric code for the penalty family
	TypeCode Type

	// The concavity parameter, unused by LASSO
	Gamma float64
}

// New returns a Penalty for the given family name (case-insensitive:
// LASSO, MCP, SCAD).  A non-positive gamma selects the family default
// (3 for MCP, 3.7 for SCAD).
func New(name string, gamma float64) (*Penalty, error) {

	switch strings.ToUpper(name) {
	case "LASSO":
		return &Penalty{Name: "LASSO", TypeCode: LASSO}, nil
	case "MCP":
		if gamma <= 0 {
			gamma = DefaultMCPGamma
		}
		if gamma <= 1 {
			return nil, fmt.Errorf("penalty: MCP requires gamma > 1, got %v", gamma)
		}
		return &Penalty{Name: "MCP", TypeCode: MCP, Gamma: gamma}, nil
	case "SCAD":
		if gamma <= 0 {
			gamma = DefaultSCADGamma
		}
		if gamma <= 2 {
			return nil, fmt.Errorf("penalty: SCAD requires gamma > 2, got %v", gamma)
		}
		return &Penalty{Name: "SCAD", TypeCode: SCAD, Gamma: gamma}, nil
	}

	return nil, fmt.Errorf("penalty: unknown penalty '%s'", name)
}

// Deriv returns the derivative of the penalty with respect to a coefficient
// magnitude b >= 0, at tuning value lam.
func (p *Penalty) Deriv(b, lam float64) float64 {

	switch p.TypeCode {
	case LASSO:
		return lam
	case MCP:
		d := lam * (1 - b/(p.Gamma*lam))
		if d < 0 {
			d = 0
		}
		return d
	case SCAD:
		if b <= lam {
			return lam
		}
		d := (p.Gamma*lam - b) / (p.Gamma - 1)
		if d < 0 {
			d = 0
		}
		return d
	}

	panic("penalty: invalid type code")
}

// Weights fills w with the local quadratic weights for the given
// coefficient vector at tuning value lam: w[j] = pen'(|coeff[j]|) / |coeff[j]|,
// with a small floor on |coeff[j]|.  The call is stateless; it is invoked
// once per MM iteration with the iteration's current coefficients.
func (p *Penalty) Weights(coeff []float64, lam float64, w []float64) {
	for j, b := range coeff {
		ab := math.Abs(b)
		if ab < weightFloor {
			ab = weightFloor
		}
		w[j] = p.Deriv(ab, lam) / ab
	}
}
