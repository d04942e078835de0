package datasets

import (
	"fmt"
	"io"
	"math/rand"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// SequenceDataset presents engineered feature sequences and their targets
// through the batching interface the trainer consumes, and additionally
// through gomlx tensors (Yield/Restart follow the gomlx train.Dataset
// shape) for callers that execute on a tensor backend.
//
// Each example is a fixed-length sequence (timestep x feature); the
// drought pipeline uses single-step sequences, but nothing here assumes
// a particular length beyond all examples sharing one.
type SequenceDataset struct {
	// BatchSize used by Yield.
	BatchSize int

	x [][][]float64
	y []float64

	order  []int
	cursor int
}

// NewSequenceDataset wraps aligned sequences and targets. All sequences
// must share the same (time, feature) shape.
func NewSequenceDataset(x [][][]float64, y []float64, batchSize int) (*SequenceDataset, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("sequences and targets don't match: %d != %d", len(x), len(y))
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	if len(x) > 0 {
		t, f := len(x[0]), 0
		if t > 0 {
			f = len(x[0][0])
		}
		for i, seq := range x {
			if len(seq) != t {
				return nil, fmt.Errorf("sequence %d has %d timesteps, expected %d", i, len(seq), t)
			}
			for _, step := range seq {
				if len(step) != f {
					return nil, fmt.Errorf("sequence %d has inconsistent feature width", i)
				}
			}
		}
	}

	order := make([]int, len(x))
	for i := range order {
		order[i] = i
	}
	return &SequenceDataset{BatchSize: batchSize, x: x, y: y, order: order}, nil
}

// SingleStepSequences reshapes a feature matrix so each row becomes a
// length-1 sequence (record x 1 timestep x feature count). This is a
// structural requirement of the sequence model, not a multi-step series.
func SingleStepSequences(x [][]float64) [][][]float64 {
	seqs := make([][][]float64, len(x))
	for i, row := range x {
		seqs[i] = [][]float64{row}
	}
	return seqs
}

// Len returns the number of examples.
func (d *SequenceDataset) Len() int { return len(d.x) }

// Example returns a single sequence and its target.
func (d *SequenceDataset) Example(i int) ([][]float64, float64, error) {
	if i < 0 || i >= len(d.x) {
		return nil, 0, fmt.Errorf("index %d out of range [0, %d)", i, len(d.x))
	}
	return d.x[i], d.y[i], nil
}

// Batch returns the sequences and targets for the provided indices.
func (d *SequenceDataset) Batch(indices []int) ([][][]float64, []float64, error) {
	seqs := make([][][]float64, len(indices))
	targets := make([]float64, len(indices))
	for bi, idx := range indices {
		if idx < 0 || idx >= len(d.x) {
			return nil, nil, fmt.Errorf("index %d out of range [0, %d)", idx, len(d.x))
		}
		seqs[bi] = d.x[idx]
		targets[bi] = d.y[idx]
	}
	return seqs, targets, nil
}

// Shuffle reorders the iteration order used by Yield.
func (d *SequenceDataset) Shuffle(seed int64) {
	r := rand.New(rand.NewSource(seed))
	r.Shuffle(len(d.order), func(i, j int) {
		d.order[i], d.order[j] = d.order[j], d.order[i]
	})
}

// Tensors reads a batch of examples and returns them as gomlx tensors.
func (d *SequenceDataset) Tensors(indices []int) (*tensors.Tensor, *tensors.Tensor, error) {
	seqs, targets, err := d.Batch(indices)
	if err != nil {
		return nil, nil, err
	}
	flat, err := MakeSequenceBatchFlat(seqs, targets)
	if err != nil {
		return nil, nil, err
	}
	return flat.ToGomlxTensors()
}

// Yield returns the next batch of data for the gomlx Dataset interface,
// advancing an internal cursor. io.EOF signals the end of the epoch.
func (d *SequenceDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if d.cursor >= len(d.order) {
		return nil, nil, nil, io.EOF
	}
	end := d.cursor + d.BatchSize
	if end > len(d.order) {
		end = len(d.order)
	}
	indices := d.order[d.cursor:end]
	d.cursor = end

	in, lab, err := d.Tensors(indices)
	if err != nil {
		return nil, nil, nil, err
	}
	return nil, []*tensors.Tensor{in}, []*tensors.Tensor{lab}, nil
}

// Restart resets the Yield cursor for a new epoch.
func (d *SequenceDataset) Restart() error {
	d.cursor = 0
	return nil
}

// SequenceBatchFlat stores a batch of sequences in contiguous buffers
// (batch x time x features for inputs, batch x 1 for targets).
type SequenceBatchFlat struct {
	Inputs   []float64
	Targets  []float64
	Batch    int
	Time     int
	Features int
}

// MakeSequenceBatchFlat flattens a batch into contiguous buffers.
func MakeSequenceBatchFlat(seqs [][][]float64, targets []float64) (*SequenceBatchFlat, error) {
	if len(seqs) != len(targets) {
		return nil, fmt.Errorf("sequences and targets batch sizes don't match: %d != %d", len(seqs), len(targets))
	}
	if len(seqs) == 0 {
		return &SequenceBatchFlat{}, nil
	}

	timeSteps := len(seqs[0])
	features := 0
	if timeSteps > 0 {
		features = len(seqs[0][0])
	}

	flat := make([]float64, len(seqs)*timeSteps*features)
	idx := 0
	for i, seq := range seqs {
		if len(seq) != timeSteps {
			return nil, fmt.Errorf("inconsistent timesteps at example %d: expected %d, got %d", i, timeSteps, len(seq))
		}
		for _, step := range seq {
			if len(step) != features {
				return nil, fmt.Errorf("inconsistent feature width at example %d: expected %d, got %d", i, features, len(step))
			}
			copy(flat[idx:], step)
			idx += features
		}
	}

	flatTargets := make([]float64, len(targets))
	copy(flatTargets, targets)

	return &SequenceBatchFlat{
		Inputs:   flat,
		Targets:  flatTargets,
		Batch:    len(seqs),
		Time:     timeSteps,
		Features: features,
	}, nil
}

// ToGomlxTensors converts the flat buffers into gomlx tensors.
func (b *SequenceBatchFlat) ToGomlxTensors() (*tensors.Tensor, *tensors.Tensor, error) {
	if b.Batch == 0 || b.Time == 0 || b.Features == 0 {
		emptyIn := make([][][]float64, 0)
		emptyLab := make([][]float64, 0)
		return tensors.FromAnyValue(emptyIn), tensors.FromAnyValue(emptyLab), nil
	}

	inputs := make([][][]float64, b.Batch)
	idx := 0
	for i := 0; i < b.Batch; i++ {
		inputs[i] = make([][]float64, b.Time)
		for t := 0; t < b.Time; t++ {
			inputs[i][t] = b.Inputs[idx : idx+b.Features]
			idx += b.Features
		}
	}
	labels := make([][]float64, b.Batch)
	for i := range labels {
		labels[i] = b.Targets[i : i+1]
	}

	return tensors.FromAnyValue(inputs), tensors.FromAnyValue(labels), nil
}
