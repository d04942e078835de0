package rnn

import (
	"math"
	"math/rand"
	"time"

	"github.com/pkg/errors"
)

// Config holds the network architecture and training hyperparameters.
type Config struct {
	// RecurrentSizes lists the widths of the stacked recurrent layers.
	// Every layer but the last feeds its full output sequence to the next
	// layer; the last contributes only its final state. Default: [64, 32].
	RecurrentSizes []int

	// DenseSize is the width of the ReLU head between the recurrent stack
	// and the linear output. Default: 16.
	DenseSize int

	// Dropout is the rate applied to each recurrent layer's outputs
	// during training. Default: 0.3.
	Dropout float64

	// LearningRate used by the optimizer. Default: 0.001.
	LearningRate float64

	// Epochs caps the number of passes over the training partition.
	// Default: 50.
	Epochs int

	// BatchSize for mini-batch updates. Default: 32.
	BatchSize int

	// ValidationSplit is the fraction of the training partition held out
	// to monitor early stopping. Default: 0.1.
	ValidationSplit float64

	// Patience is the number of epochs without validation improvement
	// tolerated before training halts. Default: 10.
	Patience int

	// Seed controls RNG for weight init, shuffling and dropout. If zero,
	// a time-based seed is used.
	Seed int64

	// Optimizer selects "adam" or "sgd". Default: "adam".
	Optimizer string

	// Adam hyperparameters (defaults below if zero).
	Beta1   float64
	Beta2   float64
	Epsilon float64

	// ClipNorm is the global-norm gradient clipping threshold. Zero
	// disables clipping.
	ClipNorm float64
}

func (c *Config) applyDefaults() {
	if len(c.RecurrentSizes) == 0 {
		c.RecurrentSizes = []int{64, 32}
	}
	if c.DenseSize == 0 {
		c.DenseSize = 16
	}
	if c.Dropout == 0 {
		c.Dropout = 0.3
	}
	if c.LearningRate == 0 {
		c.LearningRate = 0.001
	}
	if c.Epochs == 0 {
		c.Epochs = 50
	}
	if c.BatchSize == 0 {
		c.BatchSize = 32
	}
	if c.ValidationSplit == 0 {
		c.ValidationSplit = 0.1
	}
	if c.Patience == 0 {
		c.Patience = 10
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
	if c.Optimizer == "" {
		c.Optimizer = "adam"
	}
	if c.Beta1 == 0 {
		c.Beta1 = 0.9
	}
	if c.Beta2 == 0 {
		c.Beta2 = 0.999
	}
	if c.Epsilon == 0 {
		c.Epsilon = 1e-8
	}
}

// layerParams holds one recurrent layer: input weights, recurrent
// weights and bias. Wx is [Out][In], Wh is [Out][Out].
type layerParams struct {
	In  int
	Out int
	Wx  [][]float64
	Wh  [][]float64
	B   []float64
}

// netParams is the full parameter set of the network. Fields are
// exported for gob serialization of the model artifact.
type netParams struct {
	Rec    []layerParams
	DenseW [][]float64
	DenseB []float64
	OutW   []float64
	OutB   []float64
}

// rows returns every parameter vector in a fixed order, so optimizers
// and clipping can walk the whole network without knowing its shape.
func (p *netParams) rows() [][]float64 {
	var rows [][]float64
	for i := range p.Rec {
		rows = append(rows, p.Rec[i].Wx...)
		rows = append(rows, p.Rec[i].Wh...)
		rows = append(rows, p.Rec[i].B)
	}
	rows = append(rows, p.DenseW...)
	rows = append(rows, p.DenseB, p.OutW, p.OutB)
	return rows
}

func (p *netParams) clone() netParams {
	c := netParams{
		Rec:    make([]layerParams, len(p.Rec)),
		DenseW: cloneMatrix(p.DenseW),
		DenseB: cloneVector(p.DenseB),
		OutW:   cloneVector(p.OutW),
		OutB:   cloneVector(p.OutB),
	}
	for i, l := range p.Rec {
		c.Rec[i] = layerParams{
			In:  l.In,
			Out: l.Out,
			Wx:  cloneMatrix(l.Wx),
			Wh:  cloneMatrix(l.Wh),
			B:   cloneVector(l.B),
		}
	}
	return c
}

// zeroLike returns a parameter set of the same shape with all zeros,
// used for gradient accumulators and optimizer moments.
func (p *netParams) zeroLike() netParams {
	z := netParams{
		Rec:    make([]layerParams, len(p.Rec)),
		DenseW: zeroMatrix(len(p.DenseW), len(p.DenseW[0])),
		DenseB: make([]float64, len(p.DenseB)),
		OutW:   make([]float64, len(p.OutW)),
		OutB:   make([]float64, len(p.OutB)),
	}
	for i, l := range p.Rec {
		z.Rec[i] = layerParams{
			In:  l.In,
			Out: l.Out,
			Wx:  zeroMatrix(l.Out, l.In),
			Wh:  zeroMatrix(l.Out, l.Out),
			B:   make([]float64, l.Out),
		}
	}
	return z
}

// Model is a stacked recurrent regressor with a small dense head,
// trained by a self-contained mini-batch trainer (no external
// deep-learning framework). All randomness flows from Config.Seed so a
// fixed seed reproduces weights, shuffles and dropout masks exactly.
type Model struct {
	Config   Config
	InputDim int

	p   netParams
	rng *rand.Rand

	history History
}

// NewModel creates a Model for the given input feature width, with
// weights initialized and ready to train.
func NewModel(cfg Config, inputDim int) (*Model, error) {
	if inputDim <= 0 {
		return nil, errors.Errorf("input dimension must be positive, got %d", inputDim)
	}
	cfg.applyDefaults()
	if cfg.Optimizer != "adam" && cfg.Optimizer != "sgd" {
		return nil, errors.Errorf("unknown optimizer %q", cfg.Optimizer)
	}
	if cfg.Dropout < 0 || cfg.Dropout >= 1 {
		return nil, errors.Errorf("dropout rate %v outside [0, 1)", cfg.Dropout)
	}

	m := &Model{
		Config:   cfg,
		InputDim: inputDim,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
	}

	in := inputDim
	m.p.Rec = make([]layerParams, len(cfg.RecurrentSizes))
	for i, out := range cfg.RecurrentSizes {
		m.p.Rec[i] = layerParams{
			In:  in,
			Out: out,
			Wx:  m.initMatrix(out, in),
			Wh:  m.initMatrix(out, out),
			B:   make([]float64, out),
		}
		in = out
	}
	m.p.DenseW = m.initMatrix(cfg.DenseSize, in)
	m.p.DenseB = make([]float64, cfg.DenseSize)
	m.p.OutW = m.initVector(cfg.DenseSize)
	m.p.OutB = make([]float64, 1)

	return m, nil
}

// initMatrix allocates an [out][in] matrix with a Xavier/Glorot uniform
// initialization heuristic.
func (m *Model) initMatrix(out, in int) [][]float64 {
	limit := math.Sqrt(6.0/float64(in+out)) * 0.5
	mat := make([][]float64, out)
	for j := range mat {
		row := make([]float64, in)
		for i := range row {
			row[i] = (m.rng.Float64()*2.0 - 1.0) * limit
		}
		mat[j] = row
	}
	return mat
}

func (m *Model) initVector(n int) []float64 {
	limit := math.Sqrt(6.0/float64(n+1)) * 0.5
	v := make([]float64, n)
	for i := range v {
		v[i] = (m.rng.Float64()*2.0 - 1.0) * limit
	}
	return v
}

// forwardCache stores everything the backward pass needs for one example.
type forwardCache struct {
	T int

	// in[l][t] is the input fed to recurrent layer l at timestep t
	// (post-dropout output of the layer below for l > 0).
	in [][][]float64

	// act[l][t] is the raw tanh activation of layer l at timestep t.
	act [][][]float64

	// mask[l][t] is the inverted-dropout mask applied to layer l's
	// outputs. Recurrence always uses the raw activations; only the feed
	// to the next layer (or to the dense head) is masked.
	mask [][][]float64

	state    []float64 // masked final state of the last recurrent layer
	densePre []float64
	denseAct []float64
	pred     float64
}

// forward runs one sequence through the network. When train is true,
// dropout masks are sampled from the model RNG; otherwise masks are
// identity and the cache may be discarded by the caller.
func (m *Model) forward(seq [][]float64, train bool) (*forwardCache, error) {
	T := len(seq)
	if T == 0 {
		return nil, errors.New("empty sequence")
	}
	for t, step := range seq {
		if len(step) != m.InputDim {
			return nil, errors.Errorf("timestep %d has %d features, model expects %d", t, len(step), m.InputDim)
		}
	}

	L := len(m.p.Rec)
	c := &forwardCache{
		T:    T,
		in:   make([][][]float64, L),
		act:  make([][][]float64, L),
		mask: make([][][]float64, L),
	}

	cur := seq
	for l := 0; l < L; l++ {
		layer := &m.p.Rec[l]
		c.in[l] = cur
		c.act[l] = make([][]float64, T)
		c.mask[l] = make([][]float64, T)

		h := make([]float64, layer.Out)
		dropped := make([][]float64, T)
		for t := 0; t < T; t++ {
			next := make([]float64, layer.Out)
			for j := 0; j < layer.Out; j++ {
				sum := layer.B[j]
				wx := layer.Wx[j]
				for i, v := range cur[t] {
					sum += wx[i] * v
				}
				wh := layer.Wh[j]
				for i, v := range h {
					sum += wh[i] * v
				}
				next[j] = math.Tanh(sum)
			}
			h = next
			c.act[l][t] = next

			mask := m.dropoutMask(layer.Out, train)
			c.mask[l][t] = mask
			d := make([]float64, layer.Out)
			for j := range d {
				d[j] = next[j] * mask[j]
			}
			dropped[t] = d
		}
		cur = dropped
	}

	c.state = cur[T-1]

	c.densePre = make([]float64, len(m.p.DenseB))
	c.denseAct = make([]float64, len(m.p.DenseB))
	for j := range m.p.DenseB {
		sum := m.p.DenseB[j]
		w := m.p.DenseW[j]
		for i, v := range c.state {
			sum += w[i] * v
		}
		c.densePre[j] = sum
		if sum > 0 {
			c.denseAct[j] = sum
		}
	}

	out := m.p.OutB[0]
	for j, v := range c.denseAct {
		out += m.p.OutW[j] * v
	}
	c.pred = out

	return c, nil
}

// dropoutMask samples an inverted-dropout mask: entries are zero with
// probability Dropout, otherwise 1/(1-Dropout) so activations keep the
// same expectation at inference time.
func (m *Model) dropoutMask(n int, train bool) []float64 {
	mask := make([]float64, n)
	if !train || m.Config.Dropout == 0 {
		for i := range mask {
			mask[i] = 1
		}
		return mask
	}
	keep := 1 - m.Config.Dropout
	inv := 1 / keep
	for i := range mask {
		if m.rng.Float64() < keep {
			mask[i] = inv
		}
	}
	return mask
}

// PredictOne returns the model output for a single sequence, with
// dropout disabled.
func (m *Model) PredictOne(seq [][]float64) (float64, error) {
	c, err := m.forward(seq, false)
	if err != nil {
		return 0, err
	}
	return c.pred, nil
}

// Predict returns predictions for a batch of sequences.
func (m *Model) Predict(seqs [][][]float64) ([]float64, error) {
	out := make([]float64, len(seqs))
	for i, seq := range seqs {
		v, err := m.PredictOne(seq)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func cloneVector(v []float64) []float64 {
	c := make([]float64, len(v))
	copy(c, v)
	return c
}

func cloneMatrix(m [][]float64) [][]float64 {
	c := make([][]float64, len(m))
	for i, row := range m {
		c[i] = cloneVector(row)
	}
	return c
}

func zeroMatrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}
