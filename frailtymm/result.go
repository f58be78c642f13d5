package frailtymm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/cran/frailtyMMpen/statfit"
)

// FrailtyResults holds the results of an unpenalized frailty regression
// fit.
type FrailtyResults struct {
	statfit.BaseResults

	model *FrailtyReg

	// Theta is the estimated dispersion of the frailty distribution.
	Theta float64

	// Hazard holds the per-row baseline hazard jumps, aligned to the
	// model's internal (stratum, descending time) row order.
	Hazard []float64

	// CumHazard holds the baseline cumulative hazard at each row's
	// observation time, in the same row order.
	CumHazard []float64

	// Converged indicates whether the fit converged within the
	// iteration budget.
	Converged bool

	// Iterations is the number of MM iterations performed.
	Iterations int

	// LogLikeTrace holds the observed log-likelihood after each
	// iteration.
	LogLikeTrace []float64
}

// Model returns the model that was fit to obtain these results.
func (rslt *FrailtyResults) Model() *FrailtyReg {
	return rslt.model
}

// Summary displays a summary table of the fitted model.
func (rslt *FrailtyResults) Summary() string {

	m := rslt.model

	sum := &statfit.SummaryTable{
		Title: fmt.Sprintf("%s frailty proportional hazards regression", m.fr.Name),
	}

	sum.Top = []string{
		fmt.Sprintf("  Observations: %10d", m.NumObs()),
		fmt.Sprintf("  Groups:       %10d", m.NumGroups()),
		fmt.Sprintf("  Topology:     %10s", m.topology),
		fmt.Sprintf("  Theta:        %10.4f", rslt.Theta),
		fmt.Sprintf("  Log-like:     %10.4f", rslt.LogLike()),
	}

	if se := rslt.StdErr(); se != nil {
		sum.ColNames = []string{"Variable   ", "Coefficient", "SE", "HR", "Z-score", "P-value"}
		sum.ColFmt = []statfit.Fmter{
			statfit.FmtString, statfit.FmtFloat, statfit.FmtFloat,
			statfit.FmtFloat, statfit.FmtFloat, statfit.FmtFloat,
		}
		hr := make([]float64, len(rslt.Params()))
		for i, b := range rslt.Params() {
			hr[i] = math.Exp(b)
		}
		sum.Cols = []interface{}{
			rslt.Names(), rslt.Params(), se, hr, rslt.ZScores(), rslt.PValues(),
		}
	} else {
		sum.ColNames = []string{"Variable   ", "Coefficient"}
		sum.ColFmt = []statfit.Fmter{statfit.FmtString, statfit.FmtFloat}
		sum.Cols = []interface{}{rslt.Names(), rslt.Params()}
		sum.Msg = append(sum.Msg, "Standard errors are not available.")
	}

	if !rslt.Converged {
		sum.Msg = append(sum.Msg, "The fit did not converge.")
	}

	return sum.String()
}

// PathRecord holds the fit at one tuning value of a regularization path.
type PathRecord struct {
	Tune       float64
	Coeff      []float64
	Theta      float64
	Hazard     []float64
	LogLike    float64
	BIC        float64
	DF         int
	Converged  bool
	Iterations int
}

// PathResults holds the fits along a regularization path, ordered by
// increasing tuning value.
type PathResults struct {
	model *FrailtyReg

	// Records holds one entry per completed tuning value.  If the path
	// terminated early after all coefficients reached zero, Records is
	// shorter than the tuning sequence.
	Records []*PathRecord

	// BestIndex is the position in Records of the BIC-minimizing fit.
	BestIndex int
}

// Model returns the model that was fit to obtain these results.
func (pr *PathResults) Model() *FrailtyReg {
	return pr.model
}

// Best returns the record with the smallest BIC.
func (pr *PathResults) Best() *PathRecord {
	return pr.Records[pr.BestIndex]
}

// BestTune returns the tuning value with the smallest BIC.
func (pr *PathResults) BestTune() float64 {
	return pr.Best().Tune
}

// Tunes returns the tuning values of the completed path.
func (pr *PathResults) Tunes() []float64 {
	x := make([]float64, len(pr.Records))
	for i, r := range pr.Records {
		x[i] = r.Tune
	}
	return x
}

// BICs returns the BIC values of the completed path.
func (pr *PathResults) BICs() []float64 {
	x := make([]float64, len(pr.Records))
	for i, r := range pr.Records {
		x[i] = r.BIC
	}
	return x
}

// CoeffPath returns the coefficient estimates along the path as a matrix
// with one row per tuning value and one column per covariate.
func (pr *PathResults) CoeffPath() *mat.Dense {
	p := pr.model.NumParams()
	x := mat.NewDense(len(pr.Records), p, nil)
	for i, r := range pr.Records {
		x.SetRow(i, r.Coeff)
	}
	return x
}

// Summary displays a summary table of the regularization path, marking
// the BIC-minimizing tuning value.
func (pr *PathResults) Summary() string {

	m := pr.model
	nr := len(pr.Records)

	tune := make([]float64, nr)
	ll := make([]float64, nr)
	bic := make([]float64, nr)
	df := make([]string, nr)
	mark := make([]string, nr)
	for i, r := range pr.Records {
		tune[i] = r.Tune
		ll[i] = r.LogLike
		bic[i] = r.BIC
		df[i] = fmt.Sprintf("%d", r.DF)
		if i == pr.BestIndex {
			mark[i] = "*"
		}
	}

	sum := &statfit.SummaryTable{
		Title: fmt.Sprintf("%s penalized %s frailty regression path", m.pen.Name, m.fr.Name),
		Top: []string{
			fmt.Sprintf("  Observations: %10d", m.NumObs()),
			fmt.Sprintf("  Groups:       %10d", m.NumGroups()),
			fmt.Sprintf("  Covariates:   %10d", m.NumParams()),
		},
		ColNames: []string{"Tune", "Log-like", "BIC", "DF", " "},
		ColFmt: []statfit.Fmter{
			statfit.FmtFloat, statfit.FmtFloat, statfit.FmtFloat,
			statfit.FmtString, statfit.FmtString,
		},
		Cols: []interface{}{tune, ll, bic, df, mark},
		Msg:  []string{fmt.Sprintf("* BIC-selected tuning value: %.6f", pr.BestTune())},
	}

	return sum.String()
}
