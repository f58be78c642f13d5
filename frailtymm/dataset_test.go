package frailtymm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clusterData() Dataset {

	da := [][]Dtype{
		{5, 1, 3, 3, 2, 4, 1, 2},
		{1, 1, 0, 1, 1, 0, 1, 1},
		{7, 7, 2, 2, 2, 5, 5, 5},
		{4, 2, 5, 6, 6, 5, 4, 3},
	}
	names := []string{"Time", "Status", "Cluster", "X1"}

	return NewDataset(da, names)
}

func TestNewDataset(t *testing.T) {

	assert.Panics(t, func() {
		NewDataset([][]Dtype{{1, 2}}, []string{"a", "b"})
	})
	assert.Panics(t, func() {
		NewDataset([][]Dtype{{1, 2}, {1}}, []string{"a", "b"})
	})

	ds := clusterData()
	assert.Equal(t, []string{"Time", "Status", "Cluster", "X1"}, ds.Names())
	assert.Len(t, ds.Data(), 4)
}

func TestConfigErrors(t *testing.T) {

	ds := clusterData()

	_, err := NewFrailtyReg(ds, "Wrong", "Status", "Cluster", "", []string{"X1"}, Clustered, nil)
	assert.Error(t, err)

	_, err = NewFrailtyReg(ds, "Time", "Status", "Cluster", "", []string{"X9"}, Clustered, nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Frailty = "weibull"
	_, err = NewFrailtyReg(ds, "Time", "Status", "Cluster", "", []string{"X1"}, Clustered, cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Penalty = "ridge"
	_, err = NewFrailtyReg(ds, "Time", "Status", "Cluster", "", []string{"X1"}, Clustered, cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Frailty = "pvf"
	_, err = NewFrailtyReg(ds, "Time", "Status", "Cluster", "", []string{"X1"}, Clustered, cfg)
	assert.Error(t, err, "pvf requires a power parameter")

	// The event variable only applies to multi-event data.
	_, err = NewFrailtyReg(ds, "Time", "Status", "Cluster", "X1", []string{"X1"}, Clustered, nil)
	assert.Error(t, err)
	_, err = NewFrailtyReg(ds, "Time", "Status", "Cluster", "", []string{"X1"}, MultiEvent, nil)
	assert.Error(t, err)
}

func TestDataErrors(t *testing.T) {

	// Too few observations
	da := [][]Dtype{{1, 2}, {1, 1}, {0, 1}}
	names := []string{"Time", "Status", "Cluster"}
	_, err := NewFrailtyReg(NewDataset(da, names), "Time", "Status", "Cluster", "", nil, Clustered, nil)
	assert.Error(t, err)

	// Negative time
	da = [][]Dtype{{1, -2, 3}, {1, 1, 1}, {0, 0, 1}}
	_, err = NewFrailtyReg(NewDataset(da, names), "Time", "Status", "Cluster", "", nil, Clustered, nil)
	assert.Error(t, err)

	// Status outside {0, 1}
	da = [][]Dtype{{1, 2, 3}, {1, 2, 1}, {0, 0, 1}}
	_, err = NewFrailtyReg(NewDataset(da, names), "Time", "Status", "Cluster", "", nil, Clustered, nil)
	assert.Error(t, err)
}

func TestSorting(t *testing.T) {

	m, err := NewFrailtyReg(clusterData(), "Time", "Status", "Cluster", "", []string{"X1"}, Clustered, nil)
	require.NoError(t, err)

	// A single stratum, sorted by descending time
	require.Len(t, m.stratumix, 1)
	time := m.data[m.timepos]
	for i := 1; i < len(time); i++ {
		assert.LessOrEqual(t, time[i], time[i-1])
	}

	// The caller's arrays must not be reordered.
	assert.Equal(t, Dtype(5), clusterData().Data()[0][0])

	// Groups are relabeled by order of first appearance: 7 -> 0,
	// 2 -> 1, 5 -> 2, so there are three groups.
	assert.Equal(t, 3, m.NumGroups())
	for _, g := range m.groupix {
		assert.Less(t, g, 3)
	}

	// Events per group: cluster 7 has 2, cluster 2 has 2, cluster 5
	// has 2.
	assert.Equal(t, []int{2, 2, 2}, m.nevent)

	// Tie blocks partition the rows and are constant in time.
	nrow := 0
	for k, b := range m.blocks {
		assert.Equal(t, nrow, b[0])
		nrow = b[1]
		for i := b[0] + 1; i < b[1]; i++ {
			assert.Equal(t, time[b[0]], time[i])
		}
		assert.Equal(t, 0, m.blockstrat[k])
	}
	assert.Equal(t, m.NumObs(), nrow)
}

func TestMultiEventSetup(t *testing.T) {

	ds := simMultiEvent(10, 2, []float64{0.5}, 1, 42)
	m, err := NewFrailtyReg(ds, "Time", "Status", "Subject", "Event", []string{"X1"}, MultiEvent, nil)
	require.NoError(t, err)

	// One stratum per event type, each sorted by descending time
	require.Len(t, m.stratumix, 2)
	time := m.data[m.timepos]
	for _, ix := range m.stratumix {
		for i := ix[0] + 1; i < ix[1]; i++ {
			assert.LessOrEqual(t, time[i], time[i-1])
		}
	}
	assert.Equal(t, 10, m.NumGroups())

	// Unbalanced multi-event data are rejected.
	cols := ds.Data()
	bad := make([][]Dtype, len(cols))
	for j := range cols {
		bad[j] = cols[j][1:]
	}
	_, err = NewFrailtyReg(NewDataset(bad, ds.Names()), "Time", "Status", "Subject", "Event",
		[]string{"X1"}, MultiEvent, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "same number of events")
}

func TestAccessors(t *testing.T) {

	m, err := NewFrailtyReg(clusterData(), "Time", "Status", "Cluster", "", []string{"X1"}, Clustered, nil)
	require.NoError(t, err)

	assert.Equal(t, 8, m.NumObs())
	assert.Equal(t, 1, m.NumParams())
	assert.Equal(t, Clustered, m.Topology())
	assert.Equal(t, []string{"X1"}, m.XNames())
}
