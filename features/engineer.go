package features

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/hydrosense/droughtcast/datasets"
)

// Config controls the engineered feature set. Zero-value fields fall back
// to the reference configuration: lags 1-3 and trailing windows 6 and 9.
type Config struct {
	// Lags are the month offsets applied to each driver within a watershed.
	Lags []int
	// Windows are the trailing window lengths (inclusive of the current
	// month) for the rolling mean and variance of each driver.
	Windows []int
}

// DefaultConfig returns the reference feature configuration.
func DefaultConfig() Config {
	return Config{Lags: []int{1, 2, 3}, Windows: []int{6, 9}}
}

func (c *Config) applyDefaults() {
	if len(c.Lags) == 0 {
		c.Lags = []int{1, 2, 3}
	}
	if len(c.Windows) == 0 {
		c.Windows = []int{6, 9}
	}
}

// drivers are the raw fields that lag and rolling features derive from.
var drivers = []string{"ppt", "tmax"}

// Names returns the fixed feature ordering produced by Engineer: raw
// drivers, then lags per driver, then rolling mean/variance per driver
// and window, then the four cyclical encodings.
func (c Config) Names() []string {
	c.applyDefaults()
	names := append([]string{}, drivers...)
	for _, d := range drivers {
		for _, k := range c.Lags {
			names = append(names, fmt.Sprintf("%s_lag%d", d, k))
		}
	}
	for _, d := range drivers {
		for _, w := range c.Windows {
			names = append(names, fmt.Sprintf("%s_roll%d_mean", d, w))
			names = append(names, fmt.Sprintf("%s_roll%d_var", d, w))
		}
	}
	return append(names, "month_sin", "month_cos", "year_sin", "year_cos")
}

// minRows is the number of observations a watershed must accumulate
// (including the current one) before every feature is defined.
func (c Config) minRows() int {
	c.applyDefaults()
	need := 1
	for _, k := range c.Lags {
		if k+1 > need {
			need = k + 1
		}
	}
	for _, w := range c.Windows {
		if w > need {
			need = w
		}
	}
	return need
}

// Set is the engineered feature matrix with its aligned targets and the
// observations that survived the completeness filter.
type Set struct {
	Names []string
	X     [][]float64
	Y     []float64
	Kept  []datasets.Observation
}

// trail is a bounded queue of the most recent driver values for one
// watershed. It serves both lag lookups and trailing-window statistics
// without re-scanning the group.
type trail struct {
	max  int
	vals []float64
}

func newTrail(max int) *trail {
	return &trail{max: max, vals: make([]float64, 0, max)}
}

func (t *trail) push(v float64) {
	if len(t.vals) == t.max {
		copy(t.vals, t.vals[1:])
		t.vals[len(t.vals)-1] = v
		return
	}
	t.vals = append(t.vals, v)
}

// lag returns the value k positions before the most recent push.
func (t *trail) lag(k int) (float64, bool) {
	i := len(t.vals) - 1 - k
	if i < 0 {
		return 0, false
	}
	return t.vals[i], true
}

// window returns the trailing w values including the most recent push.
func (t *trail) window(w int) ([]float64, bool) {
	if len(t.vals) < w {
		return nil, false
	}
	return t.vals[len(t.vals)-w:], true
}

type groupState struct {
	seen int
	ppt  *trail
	tmax *trail
}

// Engineer computes lag, rolling and cyclical features for each
// observation, grouped by HUC8. Observations must already be sorted by
// (HUC8, Year, Month); any row whose lag or window inputs are incomplete
// is dropped, which discards the leading rows of every watershed.
//
// Rolling variance uses the unbiased (n-1) sample estimator, matching
// the convention of the statistics library it is computed with.
func Engineer(obs []datasets.Observation, cfg Config) (*Set, error) {
	cfg.applyDefaults()
	for _, k := range cfg.Lags {
		if k < 1 {
			return nil, fmt.Errorf("lag offset %d must be >= 1", k)
		}
	}
	for _, w := range cfg.Windows {
		if w < 2 {
			return nil, fmt.Errorf("window length %d must be >= 2", w)
		}
	}

	names := cfg.Names()
	minRows := cfg.minRows()
	set := &Set{Names: names}

	groups := make(map[string]*groupState)
	for _, o := range obs {
		g, ok := groups[o.HUC8]
		if !ok {
			g = &groupState{
				ppt:  newTrail(minRows),
				tmax: newTrail(minRows),
			}
			groups[o.HUC8] = g
		}
		g.ppt.push(o.PPT)
		g.tmax.push(o.TMAX)
		g.seen++

		if g.seen < minRows {
			continue
		}

		row := make([]float64, 0, len(names))
		row = append(row, o.PPT, o.TMAX)
		for _, t := range []*trail{g.ppt, g.tmax} {
			for _, k := range cfg.Lags {
				v, ok := t.lag(k)
				if !ok {
					return nil, fmt.Errorf("lag %d undefined after %d rows in group %s", k, g.seen, o.HUC8)
				}
				row = append(row, v)
			}
		}
		for _, t := range []*trail{g.ppt, g.tmax} {
			for _, w := range cfg.Windows {
				win, ok := t.window(w)
				if !ok {
					return nil, fmt.Errorf("window %d undefined after %d rows in group %s", w, g.seen, o.HUC8)
				}
				row = append(row, stat.Mean(win, nil), stat.Variance(win, nil))
			}
		}
		row = append(row, cyclical(o)...)

		set.X = append(set.X, row)
		set.Y = append(set.Y, o.USDM)
		set.Kept = append(set.Kept, o)
	}

	return set, nil
}

// cyclical returns the sine/cosine encodings of the calendar fields.
// TODO: the year encoding divides by 365, which only makes sense for a
// day-of-year input; revisit once downstream models can be retrained on
// a changed feature set.
func cyclical(o datasets.Observation) []float64 {
	monthAngle := 2 * math.Pi * float64(o.Month) / 12
	yearAngle := 2 * math.Pi * float64(o.Year) / 365
	return []float64{
		math.Sin(monthAngle),
		math.Cos(monthAngle),
		math.Sin(yearAngle),
		math.Cos(yearAngle),
	}
}
