package frailtymm

import (
	"fmt"

	"github.com/cran/frailtyMMpen/statfit"
)

// Dtype is the scalar type used for model data.
type Dtype = statfit.Dtype

// Topology identifies how observations are grouped for the frailty term
// and how risk sets are formed.
type Topology uint8

// Clustered data share a frailty within each cluster under a common
// baseline hazard.  MultiEvent data record several event types per subject,
// with a separate baseline hazard per event type and a frailty shared
// within each subject.  Recurrent data record repeated episodes per
// subject, with a common baseline hazard and a frailty shared within each
// subject.
const (
	Clustered Topology = iota
	MultiEvent
	Recurrent
)

// String returns the label of the topology.
func (t Topology) String() string {
	switch t {
	case Clustered:
		return "clustered"
	case MultiEvent:
		return "multi-event"
	case Recurrent:
		return "recurrent"
	}
	return "invalid"
}

// Dataset defines a way to pass data to the model constructor.  The data
// are stored column-wise; all columns must have the same length.
type Dataset struct {
	data  [][]Dtype
	names []string
}

// NewDataset returns a Dataset from the given columns and column names.
func NewDataset(data [][]Dtype, names []string) Dataset {

	if len(data) != len(names) {
		panic(fmt.Sprintf("frailtymm: %d variables but %d variable names", len(data), len(names)))
	}
	for j := range data {
		if len(data[j]) != len(data[0]) {
			panic(fmt.Sprintf("frailtymm: variable '%s' has length %d, expected %d",
				names[j], len(data[j]), len(data[0])))
		}
	}

	return Dataset{data: data, names: names}
}

// Names returns the column names of the dataset.
func (ds Dataset) Names() []string {
	return ds.names
}

// Data returns the columns of the dataset.
func (ds Dataset) Data() [][]Dtype {
	return ds.data
}
