package frailtymm

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

// simClustered generates clustered survival data with gamma frailty: each
// cluster draws a unit-mean gamma frailty with variance theta, and event
// times are exponential with rate w * exp(x'beta), censored at a fixed
// time.  Covariates are iid standard normal.
func simClustered(nclust, csize int, beta []float64, theta float64, seed uint64) Dataset {

	rng := rand.NewSource(seed)
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rng}
	gam := distuv.Gamma{Alpha: 1 / theta, Beta: 1 / theta, Src: rng}
	unif := distuv.Uniform{Min: 0, Max: 1, Src: rng}

	const cens = 3.0

	p := len(beta)
	n := nclust * csize
	time := make([]Dtype, n)
	status := make([]Dtype, n)
	group := make([]Dtype, n)
	x := make([][]Dtype, p)
	for j := range x {
		x[j] = make([]Dtype, n)
	}

	i := 0
	for g := 0; g < nclust; g++ {
		w := gam.Rand()
		for k := 0; k < csize; k++ {
			var lp float64
			for j := range beta {
				v := normal.Rand()
				x[j][i] = Dtype(v)
				lp += beta[j] * v
			}
			rate := w * math.Exp(lp)
			tt := -math.Log(1-unif.Rand()) / rate
			if tt > cens {
				time[i] = cens
				status[i] = 0
			} else {
				time[i] = Dtype(tt)
				status[i] = 1
			}
			group[i] = Dtype(g)
			i++
		}
	}

	cols := append([][]Dtype{time, status, group}, x...)
	names := []string{"Time", "Status", "Cluster"}
	for j := range x {
		names = append(names, fmt.Sprintf("X%d", j+1))
	}

	return NewDataset(cols, names)
}

func xnames(p int) []string {
	var na []string
	for j := 0; j < p; j++ {
		na = append(na, fmt.Sprintf("X%d", j+1))
	}
	return na
}

// simMultiEvent generates balanced multi-event data: every subject has one
// observation of each event type, the event types have different baseline
// rates, and a subject-level gamma frailty is shared across types.
func simMultiEvent(nsubj, ntype int, beta []float64, theta float64, seed uint64) Dataset {

	rng := rand.NewSource(seed)
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rng}
	gam := distuv.Gamma{Alpha: 1 / theta, Beta: 1 / theta, Src: rng}
	unif := distuv.Uniform{Min: 0, Max: 1, Src: rng}

	const cens = 3.0

	p := len(beta)
	n := nsubj * ntype
	time := make([]Dtype, n)
	status := make([]Dtype, n)
	subj := make([]Dtype, n)
	etype := make([]Dtype, n)
	x := make([][]Dtype, p)
	for j := range x {
		x[j] = make([]Dtype, n)
	}

	i := 0
	for s := 0; s < nsubj; s++ {
		w := gam.Rand()
		for e := 0; e < ntype; e++ {
			var lp float64
			for j := range beta {
				v := normal.Rand()
				x[j][i] = Dtype(v)
				lp += beta[j] * v
			}
			rate := w * float64(e+1) * math.Exp(lp)
			tt := -math.Log(1-unif.Rand()) / rate
			if tt > cens {
				time[i] = cens
				status[i] = 0
			} else {
				time[i] = Dtype(tt)
				status[i] = 1
			}
			subj[i] = Dtype(s)
			etype[i] = Dtype(e)
			i++
		}
	}

	cols := append([][]Dtype{time, status, subj, etype}, x...)
	names := []string{"Time", "Status", "Subject", "Event"}
	for j := range x {
		names = append(names, fmt.Sprintf("X%d", j+1))
	}

	return NewDataset(cols, names)
}
