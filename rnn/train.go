package rnn

import (
	"math"

	"github.com/pkg/errors"
)

// Dataset is the minimal interface the trainer requires. It is satisfied
// by datasets.SequenceDataset; tests use small in-memory mocks.
type Dataset interface {
	Len() int
	// Batch returns sequences (example x timestep x feature) and targets
	// for the provided indices.
	Batch(indices []int) ([][][]float64, []float64, error)
}

// History records one training run: per-epoch loss curves and how the
// run ended.
type History struct {
	TrainLoss    []float64
	ValLoss      []float64
	BestEpoch    int
	StoppedEarly bool
}

// History returns the record of the most recent Fit call.
func (m *Model) History() History {
	return m.history
}

// Fit trains the model with mini-batch gradient descent and
// backpropagation through time. A ValidationSplit fraction of the
// dataset is held out to monitor validation loss; training halts once
// Patience epochs pass without improvement and the best-observed weights
// are restored. A non-finite training or validation loss aborts with
// *TrainingDivergedError.
func (m *Model) Fit(ds Dataset) error {
	if ds == nil {
		return errors.New("dataset is nil")
	}
	n := ds.Len()
	if n == 0 {
		return errors.New("dataset has no examples")
	}

	cfg := m.Config

	// Deterministic validation holdout from a seeded shuffle.
	perm := m.rng.Perm(n)
	valN := int(float64(n) * cfg.ValidationSplit)
	if valN >= n {
		valN = n - 1
	}
	val := perm[:valN]
	train := perm[valN:]

	opt := newOptimizer(cfg, &m.p)

	best := m.p.clone()
	bestLoss := math.Inf(1)
	bestEpoch := 0
	wait := 0

	m.history = History{}

	for ep := 0; ep < cfg.Epochs; ep++ {
		m.rng.Shuffle(len(train), func(i, j int) {
			train[i], train[j] = train[j], train[i]
		})

		var epochSq float64
		var epochN int
		for bstart := 0; bstart < len(train); bstart += cfg.BatchSize {
			bend := bstart + cfg.BatchSize
			if bend > len(train) {
				bend = len(train)
			}
			sq, count, err := m.trainBatch(opt, ds, train[bstart:bend])
			if err != nil {
				return err
			}
			epochSq += sq
			epochN += count
		}

		trainLoss := epochSq / float64(epochN)
		if !isFinite(trainLoss) {
			return &TrainingDivergedError{Epoch: ep, Loss: trainLoss}
		}

		// With too little data for a holdout, the training loss is the
		// only monitor available.
		monitor := trainLoss
		valLoss := math.NaN()
		if len(val) > 0 {
			var err error
			valLoss, err = m.meanSquaredError(ds, val)
			if err != nil {
				return err
			}
			if !isFinite(valLoss) {
				return &TrainingDivergedError{Epoch: ep, Loss: valLoss}
			}
			monitor = valLoss
		}

		m.history.TrainLoss = append(m.history.TrainLoss, trainLoss)
		m.history.ValLoss = append(m.history.ValLoss, valLoss)

		if monitor < bestLoss {
			bestLoss = monitor
			bestEpoch = ep
			best = m.p.clone()
			wait = 0
			continue
		}
		wait++
		if wait >= cfg.Patience {
			m.history.StoppedEarly = true
			break
		}
	}

	m.p = best
	m.history.BestEpoch = bestEpoch
	return nil
}

// trainBatch accumulates gradients over one mini-batch and applies a
// single averaged optimizer step. Returns the summed squared error and
// example count for epoch-loss accounting.
func (m *Model) trainBatch(opt *optimizer, ds Dataset, indices []int) (float64, int, error) {
	seqs, targets, err := ds.Batch(indices)
	if err != nil {
		return 0, 0, errors.Wrap(err, "read batch")
	}
	if len(seqs) == 0 {
		return 0, 0, nil
	}

	grads := m.p.zeroLike()
	var sq float64
	for ex, seq := range seqs {
		c, err := m.forward(seq, true)
		if err != nil {
			return 0, 0, err
		}
		diff := c.pred - targets[ex]
		sq += diff * diff
		m.backward(c, targets[ex], &grads)
	}

	inv := 1.0 / float64(len(seqs))
	for _, row := range grads.rows() {
		for i := range row {
			row[i] *= inv
		}
	}
	if m.Config.ClipNorm > 0 {
		clipGlobalNorm(&grads, m.Config.ClipNorm)
	}
	opt.step(&m.p, &grads)

	return sq, len(seqs), nil
}

// backward accumulates the gradients of the squared error for one
// example into grads, backpropagating through the dense head and then
// through time across the recurrent stack.
func (m *Model) backward(c *forwardCache, target float64, grads *netParams) {
	// dLoss/dOutput for squared error.
	dOut := 2 * (c.pred - target)

	grads.OutB[0] += dOut
	dDense := make([]float64, len(m.p.OutW))
	for j := range m.p.OutW {
		grads.OutW[j] += dOut * c.denseAct[j]
		if c.densePre[j] > 0 {
			dDense[j] = dOut * m.p.OutW[j]
		}
	}

	dState := make([]float64, len(c.state))
	for j, dz := range dDense {
		if dz == 0 {
			continue
		}
		grads.DenseB[j] += dz
		w := m.p.DenseW[j]
		gw := grads.DenseW[j]
		for i, v := range c.state {
			gw[i] += dz * v
			dState[i] += w[i] * dz
		}
	}

	L := len(m.p.Rec)
	T := c.T

	// ext[t] holds the gradient arriving at the current layer's masked
	// output at timestep t from the layer above (or the dense head).
	ext := make([][]float64, T)
	last := make([]float64, len(dState))
	for i := range dState {
		last[i] = dState[i] * c.mask[L-1][T-1][i]
	}
	ext[T-1] = last

	for l := L - 1; l >= 0; l-- {
		layer := &m.p.Rec[l]
		gl := &grads.Rec[l]

		var down [][]float64
		if l > 0 {
			down = make([][]float64, T)
		}

		carry := make([]float64, layer.Out)
		for t := T - 1; t >= 0; t-- {
			dh := carry
			if ext[t] != nil {
				for j := range dh {
					dh[j] += ext[t][j]
				}
			}

			act := c.act[l][t]
			dpre := make([]float64, layer.Out)
			for j := range dpre {
				dpre[j] = dh[j] * (1 - act[j]*act[j])
			}

			in := c.in[l][t]
			var prev []float64
			if t > 0 {
				prev = c.act[l][t-1]
			}
			for j, dp := range dpre {
				gl.B[j] += dp
				gwx := gl.Wx[j]
				for i, v := range in {
					gwx[i] += dp * v
				}
				if prev != nil {
					gwh := gl.Wh[j]
					for i, v := range prev {
						gwh[i] += dp * v
					}
				}
			}

			carry = make([]float64, layer.Out)
			for j, dp := range dpre {
				wh := layer.Wh[j]
				for i := range carry {
					carry[i] += wh[i] * dp
				}
			}

			if l > 0 {
				di := make([]float64, layer.In)
				for j, dp := range dpre {
					wx := layer.Wx[j]
					for i := range di {
						di[i] += wx[i] * dp
					}
				}
				// The layer below fed us its masked outputs.
				for i := range di {
					di[i] *= c.mask[l-1][t][i]
				}
				down[t] = di
			}
		}

		ext = down
	}
}

// meanSquaredError evaluates the model (dropout disabled) over the given
// dataset indices.
func (m *Model) meanSquaredError(ds Dataset, indices []int) (float64, error) {
	seqs, targets, err := ds.Batch(indices)
	if err != nil {
		return 0, errors.Wrap(err, "read validation batch")
	}
	var sq float64
	for i, seq := range seqs {
		pred, err := m.PredictOne(seq)
		if err != nil {
			return 0, err
		}
		diff := pred - targets[i]
		sq += diff * diff
	}
	return sq / float64(len(seqs)), nil
}

// clipGlobalNorm rescales all gradients when their global L2 norm
// exceeds the threshold.
func clipGlobalNorm(grads *netParams, clip float64) {
	var sum float64
	rows := grads.rows()
	for _, row := range rows {
		for _, v := range row {
			sum += v * v
		}
	}
	norm := math.Sqrt(sum)
	if norm <= clip {
		return
	}
	scale := clip / norm
	for _, row := range rows {
		for i := range row {
			row[i] *= scale
		}
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// optimizer applies parameter updates; it implements Adam with bias
// correction and plain SGD.
type optimizer struct {
	cfg  Config
	t    int
	mMom netParams
	vMom netParams
}

func newOptimizer(cfg Config, params *netParams) *optimizer {
	o := &optimizer{cfg: cfg}
	if cfg.Optimizer == "adam" {
		o.mMom = params.zeroLike()
		o.vMom = params.zeroLike()
	}
	return o
}

func (o *optimizer) step(params, grads *netParams) {
	lr := o.cfg.LearningRate
	pRows := params.rows()
	gRows := grads.rows()

	if o.cfg.Optimizer == "sgd" {
		for r, row := range pRows {
			g := gRows[r]
			for i := range row {
				row[i] -= lr * g[i]
			}
		}
		return
	}

	o.t++
	b1, b2, eps := o.cfg.Beta1, o.cfg.Beta2, o.cfg.Epsilon
	c1 := 1 - math.Pow(b1, float64(o.t))
	c2 := 1 - math.Pow(b2, float64(o.t))
	mRows := o.mMom.rows()
	vRows := o.vMom.rows()

	for r, row := range pRows {
		g := gRows[r]
		mm := mRows[r]
		vv := vRows[r]
		for i := range row {
			mm[i] = b1*mm[i] + (1-b1)*g[i]
			vv[i] = b2*vv[i] + (1-b2)*g[i]*g[i]
			mHat := mm[i] / c1
			vHat := vv[i] / c2
			row[i] -= lr * mHat / (math.Sqrt(vHat) + eps)
		}
	}
}
