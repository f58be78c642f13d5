// Package statfit provides shared infrastructure for fitting statistical
// models: parameter containers, base result types with standard errors and
// test statistics, text summary tables, and one-dimensional search
// primitives used by dispersion-parameter updates.
package statfit

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Dtype is the scalar type used for model data.
type Dtype = float64

// Parameter is the parameter of a model.
type Parameter interface {

	// GetCoeff returns the coefficients of the covariates in the linear
	// predictor.  The returned value is a reference, changes to it lead
	// to corresponding changes in the parameter itself.
	GetCoeff() []float64

	// SetCoeff sets the coefficients of the covariates in the linear
	// predictor.
	SetCoeff([]float64)

	// Clone creates a deep copy of the Parameter.
	Clone() Parameter
}

// VecParameter is a Parameter holding a plain coefficient vector.
type VecParameter struct {
	coeff []float64
}

// NewVecParameter returns a VecParameter wrapping the given coefficients.
func NewVecParameter(x []float64) *VecParameter {
	return &VecParameter{coeff: x}
}

// GetCoeff returns the coefficient vector.
func (p *VecParameter) GetCoeff() []float64 {
	return p.coeff
}

// SetCoeff sets the coefficient vector.
func (p *VecParameter) SetCoeff(x []float64) {
	p.coeff = x
}

// Clone returns a deep copy of the parameter.
func (p *VecParameter) Clone() Parameter {
	q := make([]float64, len(p.coeff))
	copy(q, p.coeff)
	return &VecParameter{q}
}

// BaseResults contains the results after fitting a model to data.
type BaseResults struct {
	loglike float64
	params  []float64
	xnames  []string
	vcov    []float64
	stderr  []float64
	zscores []float64
	pvalues []float64
}

// NewBaseResults returns a BaseResults for a fitted model.  The vcov
// argument may be nil, in which case no standard errors are available.
func NewBaseResults(loglike float64, params []float64, xnames []string, vcov []float64) BaseResults {
	return BaseResults{
		loglike: loglike,
		params:  params,
		xnames:  xnames,
		vcov:    vcov,
	}
}

// Names returns the covariate names for the variables in the model.
func (rslt *BaseResults) Names() []string {
	return rslt.xnames
}

// Params returns the point estimates for the parameters in the model.
func (rslt *BaseResults) Params() []float64 {
	return rslt.params
}

// LogLike returns the log-likelihood or objective function value for the
// fitted model.
func (rslt *BaseResults) LogLike() float64 {
	return rslt.loglike
}

// VCov returns the sampling variance/covariance matrix of the parameter
// estimates, vectorized to one dimension.
func (rslt *BaseResults) VCov() []float64 {
	return rslt.vcov
}

// StdErr returns the standard errors for the parameters in the model.
func (rslt *BaseResults) StdErr() []float64 {

	// No vcov, no standard error
	if rslt.vcov == nil {
		return nil
	}

	p := len(rslt.params)
	if rslt.stderr != nil {
		return rslt.stderr
	}
	rslt.stderr = make([]float64, p)

	for i := range rslt.stderr {
		rslt.stderr[i] = math.Sqrt(rslt.vcov[i*p+i])
	}

	return rslt.stderr
}

// ZScores returns the Z-scores (the parameter estimates divided by the
// standard errors).
func (rslt *BaseResults) ZScores() []float64 {

	if rslt.vcov == nil {
		return nil
	}

	if rslt.zscores != nil {
		return rslt.zscores
	}
	rslt.zscores = make([]float64, len(rslt.params))

	std := rslt.StdErr()
	for i := range std {
		rslt.zscores[i] = rslt.params[i] / std[i]
	}

	return rslt.zscores
}

func normcdf(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt(2))
}

// PValues returns the p-values for the null hypothesis that each
// parameter's population value is equal to zero.
func (rslt *BaseResults) PValues() []float64 {

	if rslt.vcov == nil {
		return nil
	}

	if rslt.pvalues != nil {
		return rslt.pvalues
	}
	rslt.pvalues = make([]float64, len(rslt.params))

	for i, z := range rslt.ZScores() {
		rslt.pvalues[i] = 2 * normcdf(-math.Abs(z))
	}

	return rslt.pvalues
}

// VCovFromHess inverts the negative of the given p x p Hessian matrix of a
// log-likelihood, returning the sampling variance/covariance matrix in
// vectorized form.
func VCovFromHess(hess []float64, p int) ([]float64, error) {

	hmat := mat.NewDense(p, p, hess)
	vcov := make([]float64, p*p)
	vmat := mat.NewDense(p, p, vcov)

	if err := vmat.Inverse(hmat); err != nil {
		return nil, fmt.Errorf("statfit: cannot invert Hessian: %v", err)
	}
	vmat.Scale(-1, vmat)

	return vcov, nil
}

// Fmter formats the elements of an array of values for a summary column.
type Fmter func(interface{}, string) []string

// FmtString is a Fmter for string-valued columns.
func FmtString(x interface{}, h string) []string {
	y := x.([]string)
	m := len(h)
	for i := range y {
		if len(y[i]) > m {
			m = len(y[i])
		}
	}
	z := make([]string, len(y))
	for i := range y {
		z[i] = fmt.Sprintf(fmt.Sprintf("%%-%ds", m), y[i])
	}
	return z
}

// FmtFloat is a Fmter for float-valued columns.
func FmtFloat(x interface{}, h string) []string {
	y := x.([]float64)
	z := make([]string, len(y))
	for i := range y {
		z[i] = fmt.Sprintf("%12.4f", y[i])
	}
	return z
}

// SummaryTable holds the summary values for a fitted model.
type SummaryTable struct {

	// Title of the table
	Title string

	// Column names
	ColNames []string

	// Formatters for the column values
	ColFmt []Fmter

	// Cols[j] is the j^th column; its concrete type should be an array,
	// e.g. of numbers or strings.
	Cols []interface{}

	// Lines displayed above the column headers
	Top []string

	// Messages displayed below the table
	Msg []string
}

// String returns the table as a string.
func (s *SummaryTable) String() string {

	var tab [][]string
	var wx []int
	for j, c := range s.Cols {
		u := s.ColFmt[j](c, s.ColNames[j])
		tab = append(tab, u)
		w := len(s.ColNames[j])
		if len(u) > 0 && len(u[0]) > w {
			w = len(u[0])
		}
		wx = append(wx, w)
	}

	tw := 0
	for _, w := range wx {
		tw += w + 2
	}
	if tw < len(s.Title) {
		tw = len(s.Title)
	}
	for _, x := range s.Top {
		if tw < len(x) {
			tw = len(x)
		}
	}

	line := func(c string) string {
		return strings.Repeat(c, tw) + "\n"
	}

	var buf bytes.Buffer

	// Center the title
	kr := (tw - len(s.Title)) / 2
	if kr < 0 {
		kr = 0
	}
	buf.WriteString(strings.Repeat(" ", kr))
	buf.WriteString(s.Title)
	buf.WriteString("\n")
	buf.WriteString(line("="))

	for _, x := range s.Top {
		buf.WriteString(x)
		buf.WriteString("\n")
	}
	buf.WriteString(line("-"))

	for j, c := range s.ColNames {
		buf.WriteString(fmt.Sprintf(fmt.Sprintf("%%%ds  ", wx[j]), c))
	}
	buf.WriteString("\n")
	buf.WriteString(line("-"))

	nrow := 0
	if len(tab) > 0 {
		nrow = len(tab[0])
	}
	for i := 0; i < nrow; i++ {
		for j := range tab {
			buf.WriteString(fmt.Sprintf(fmt.Sprintf("%%%ds  ", wx[j]), tab[j][i]))
		}
		buf.WriteString("\n")
	}
	buf.WriteString(line("-"))

	for _, msg := range s.Msg {
		buf.WriteString(msg + "\n")
	}

	return buf.String()
}
