package frailtymm

import (
	"fmt"
	"log"
	"sort"

	"github.com/cran/frailtyMMpen/frailty"
	"github.com/cran/frailtyMMpen/penalty"
)

// ProgressFunc reports progress along the regularization path.  It is
// called after each completed tuning value with the number of completed
// steps, the total number of steps, and the tuning value just finished.
type ProgressFunc func(step, total int, tune float64)

// Config defines configuration parameters for a frailty regression model.
type Config struct {

	// Frailty is the name of the frailty distribution: gamma,
	// lognormal, invgauss, or pvf (case-insensitive).  The default is
	// gamma.
	Frailty string

	// Power is the PVF power parameter, required iff Frailty is pvf.
	Power float64

	// Penalty is the name of the penalty family: LASSO, MCP, or SCAD
	// (case-insensitive).  The default is LASSO.
	Penalty string

	// Gam overrides the penalty concavity parameter; if zero the family
	// default is used (3 for MCP, 3.7 for SCAD).
	Gam float64

	// Tune is an explicit tuning sequence for the regularization path.
	// If nil, the default geometric grid exp(-5.5), ..., exp(1) is used.
	Tune []float64

	// Tol is the convergence tolerance, default 1e-5.
	Tol float64

	// Maxit is the iteration budget per solve, default 200.
	Maxit int

	// Log receives iteration logging information if non-nil.
	Log *log.Logger

	// Progress, if non-nil, is called after each tuning value on the
	// path.
	Progress ProgressFunc

	// ColdStart disables warm starting on the path: every tuning value
	// is solved from the burn-in state rather than from the previous
	// tuning value's solution.  Convergence is slower but the tuning
	// values become independent of each other.
	ColdStart bool
}

// DefaultConfig returns a default configuration for a frailty regression.
func DefaultConfig() *Config {
	return &Config{
		Frailty: "gamma",
		Penalty: "LASSO",
		Tol:     1e-5,
		Maxit:   200,
	}
}

// FrailtyReg describes a shared frailty proportional hazards model fit by
// an MM algorithm, with optional penalized variable selection.
type FrailtyReg struct {

	// The names of the variables, ordered as in data.
	varnames []string

	// The data to which the model is fit, reordered by (stratum,
	// descending time).  This is a copy; the caller's dataset is not
	// modified.
	data [][]Dtype

	// Positions of the time, status, frailty group, and event-type
	// variables.  eventpos is -1 except for multi-event data.
	timepos   int
	statuspos int
	grouppos  int
	eventpos  int

	// Positions of the covariates
	xpos []int

	topology Topology

	fr  *frailty.Frailty
	pen *penalty.Penalty

	tune      []float64
	tol       float64
	maxit     int
	log       *log.Logger
	progress  ProgressFunc
	coldStart bool

	// Start and end position of the baseline-hazard strata (one stratum
	// except for multi-event data, where each event type is a stratum).
	stratumix [][2]int

	// Tie blocks: runs of rows sharing a stratum and an observation
	// time, and the stratum index of each block.
	blocks     [][2]int
	blockstrat []int

	// groupix[i] is the frailty group of row i, relabeled to contiguous
	// integers preserving the original order of first appearance.
	groupix []int
	ngroup  int

	// Number of observed events per frailty group
	nevent []int
}

// NewFrailtyReg returns a FrailtyReg for fitting a frailty model to the
// given dataset.  The time, status, and group arguments name the
// observation time, event indicator (0 = censored), and frailty grouping
// variables.  For multi-event data, event names the event-type variable;
// it must be empty otherwise.
func NewFrailtyReg(data Dataset, time, status, group, event string, predictors []string, topology Topology, config *Config) (*FrailtyReg, error) {

	if config == nil {
		config = DefaultConfig()
	}
	fname := config.Frailty
	if fname == "" {
		fname = "gamma"
	}
	pname := config.Penalty
	if pname == "" {
		pname = "LASSO"
	}
	tol := config.Tol
	if tol <= 0 {
		tol = 1e-5
	}
	maxit := config.Maxit
	if maxit <= 0 {
		maxit = 200
	}

	fr, err := frailty.New(fname, config.Power)
	if err != nil {
		return nil, err
	}
	pen, err := penalty.New(pname, config.Gam)
	if err != nil {
		return nil, err
	}

	pos := make(map[string]int)
	for i, v := range data.Names() {
		pos[v] = i
	}

	getpos := func(vn, role string) (int, error) {
		p, ok := pos[vn]
		if !ok {
			return -1, fmt.Errorf("frailtymm: %s variable '%s' not found in dataset", role, vn)
		}
		return p, nil
	}

	timepos, err := getpos(time, "time")
	if err != nil {
		return nil, err
	}
	statuspos, err := getpos(status, "status")
	if err != nil {
		return nil, err
	}
	grouppos, err := getpos(group, "group")
	if err != nil {
		return nil, err
	}

	eventpos := -1
	if topology == MultiEvent {
		if event == "" {
			return nil, fmt.Errorf("frailtymm: multi-event data require an event variable")
		}
		eventpos, err = getpos(event, "event")
		if err != nil {
			return nil, err
		}
	} else if event != "" {
		return nil, fmt.Errorf("frailtymm: event variable is only used with multi-event data")
	}

	var xpos []int
	for _, xna := range predictors {
		xp, err := getpos(xna, "predictor")
		if err != nil {
			return nil, err
		}
		xpos = append(xpos, xp)
	}

	// Work on a copy so that the caller's arrays are never reordered.
	cols := make([][]Dtype, len(data.Data()))
	for j, col := range data.Data() {
		cols[j] = make([]Dtype, len(col))
		copy(cols[j], col)
	}

	m := &FrailtyReg{
		varnames:  data.Names(),
		data:      cols,
		timepos:   timepos,
		statuspos: statuspos,
		grouppos:  grouppos,
		eventpos:  eventpos,
		xpos:      xpos,
		topology:  topology,
		fr:        fr,
		pen:       pen,
		tune:      config.Tune,
		tol:       tol,
		maxit:     maxit,
		log:       config.Log,
		progress:  config.Progress,
		coldStart: config.ColdStart,
	}

	if err := m.init(); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *FrailtyReg) init() error {

	n := len(m.data[m.timepos])
	if n <= 2 {
		return fmt.Errorf("frailtymm: need more than 2 observations, got %d", n)
	}

	time := m.data[m.timepos]
	status := m.data[m.statuspos]
	for i := 0; i < n; i++ {
		if time[i] < 0 {
			return fmt.Errorf("frailtymm: observation times cannot be negative")
		}
		if status[i] != 0 && status[i] != 1 {
			return fmt.Errorf("frailtymm: status variable '%s' has values other than 0 and 1",
				m.varnames[m.statuspos])
		}
	}

	m.relabelGroups()
	m.sortData()
	m.setupStrata()

	if err := m.validateGroups(); err != nil {
		return err
	}

	m.setupBlocks()
	m.countEvents()

	return nil
}

// relabelGroups rewrites the frailty group column to contiguous integers
// 0..a-1, preserving the original order of first appearance.
func (m *FrailtyReg) relabelGroups() {

	g := m.data[m.grouppos]
	labels := make(map[Dtype]int)
	for i := range g {
		if _, ok := labels[g[i]]; !ok {
			labels[g[i]] = len(labels)
		}
	}
	for i := range g {
		g[i] = Dtype(labels[g[i]])
	}
	m.ngroup = len(labels)
}

// sortData reorders all columns by ascending stratum and descending time
// within stratum, so that every risk set is a prefix of its stratum.
func (m *FrailtyReg) sortData() {

	time := m.data[m.timepos]
	n := len(time)

	var strat []Dtype
	if m.eventpos != -1 {
		strat = m.data[m.eventpos]
	}

	inds := make([]int, n)
	for i := range inds {
		inds[i] = i
	}
	sort.SliceStable(inds, func(i, j int) bool {
		a, b := inds[i], inds[j]
		if strat != nil && strat[a] != strat[b] {
			return strat[a] < strat[b]
		}
		return time[a] > time[b]
	})

	tmp := make([]Dtype, n)
	for _, col := range m.data {
		for i, j := range inds {
			tmp[i] = col[j]
		}
		copy(col, tmp)
	}
}

func (m *FrailtyReg) setupStrata() {

	n := len(m.data[m.timepos])

	if m.eventpos == -1 {
		m.stratumix = [][2]int{{0, n}}
	} else {
		strat := m.data[m.eventpos]
		var i0 int
		for i := 1; i <= n; i++ {
			if i == n || strat[i] != strat[i0] {
				m.stratumix = append(m.stratumix, [2]int{i0, i})
				i0 = i
			}
		}
	}

	m.groupix = make([]int, n)
	g := m.data[m.grouppos]
	for i := range g {
		m.groupix[i] = int(g[i])
	}
}

// validateGroups checks the balance requirement of multi-event data: each
// subject must have one observation per event type.
func (m *FrailtyReg) validateGroups() error {

	if m.topology != MultiEvent {
		return nil
	}

	nev := len(m.stratumix)
	count := make([]int, m.ngroup)
	for _, g := range m.groupix {
		count[g]++
	}
	for _, c := range count {
		if c != nev {
			return fmt.Errorf("frailtymm: every subject should have same number of events")
		}
	}

	return nil
}

// setupBlocks splits each stratum into tie blocks of equal observation
// time.  Rows in a tie block share a risk set and a baseline cumulative
// hazard value.
func (m *FrailtyReg) setupBlocks() {

	time := m.data[m.timepos]

	for s, ix := range m.stratumix {
		i0 := ix[0]
		for i := ix[0] + 1; i <= ix[1]; i++ {
			if i == ix[1] || time[i] != time[i0] {
				m.blocks = append(m.blocks, [2]int{i0, i})
				m.blockstrat = append(m.blockstrat, s)
				i0 = i
			}
		}
	}
}

func (m *FrailtyReg) countEvents() {

	status := m.data[m.statuspos]
	m.nevent = make([]int, m.ngroup)
	for i, g := range m.groupix {
		if status[i] == 1 {
			m.nevent[g]++
		}
	}
}

// NumObs returns the number of observations in the data set.
func (m *FrailtyReg) NumObs() int {
	return len(m.data[0])
}

// NumParams returns the number of model parameters (regression
// coefficients).
func (m *FrailtyReg) NumParams() int {
	return len(m.xpos)
}

// NumGroups returns the number of frailty groups (clusters or subjects).
func (m *FrailtyReg) NumGroups() int {
	return m.ngroup
}

// Topology returns the data topology of the model.
func (m *FrailtyReg) Topology() Topology {
	return m.topology
}

// Dataset returns the model's data columns, reordered by stratum and
// descending time.
func (m *FrailtyReg) Dataset() [][]Dtype {
	return m.data
}

// Names returns the variable names, ordered as in Dataset.
func (m *FrailtyReg) Names() []string {
	return m.varnames
}

// Xpos returns the positions of the covariates in the model's dataset.
func (m *FrailtyReg) Xpos() []int {
	return m.xpos
}

// XNames returns the names of the covariates in the model.
func (m *FrailtyReg) XNames() []string {
	var xna []string
	for _, k := range m.xpos {
		xna = append(xna, m.varnames[k])
	}
	return xna
}
