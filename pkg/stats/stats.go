// Package stats collects per-lane, per-statistic measurements taken
// during parallel loops (iteration counts, conflict counts, timing) and
// reduces them into a single report at loop or process exit. Reduction
// strategy (Single/Min/Max/Sum/Avg) is chosen per statistic at
// registration time, matching the variety of things callers tag: a
// "total items processed" wants Sum, a "longest iteration" wants Max, a
// build-time constant wants Single.
package stats

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loom-run/loom/pkg/logging"
)

var log = logging.Component("loom/stats")

// Reduction selects how a statistic's per-lane values combine into the
// single number the final report shows.
type Reduction int

const (
	Sum Reduction = iota
	Min
	Max
	Avg
	// Single asserts every lane recorded the same value (e.g. a config
	// parameter echoed for the report) and reports that value as-is.
	Single
)

type key struct {
	region, stat string
}

type series struct {
	reduction Reduction
	values    map[int]float64 // tid -> last recorded value
}

// Manager accumulates statistics keyed by (region, stat name) across
// lanes, with an optional CSV file and an optional Prometheus registry
// mirroring the same counters for host processes that already scrape
// metrics.
type Manager struct {
	mu                  sync.Mutex
	series              map[key]*series
	statFile            string
	printPerThreadStats bool

	promReg  *prometheus.Registry
	promVecs map[string]*prometheus.GaugeVec
}

// NewManager constructs an empty Manager. statFile, if non-empty, is
// where Flush writes the CSV report; printPerThreadStats mirrors the
// PRINT_PER_THREAD_STATS environment toggle and controls whether Flush
// emits one row per lane in addition to the reduced row.
func NewManager(statFile string, printPerThreadStats bool) *Manager {
	return &Manager{
		series:              make(map[key]*series),
		statFile:            statFile,
		printPerThreadStats: printPerThreadStats,
	}
}

// AddInt records an integer-valued sample for (region, stat) from lane
// tid, using reduction to combine it with other lanes' samples.
func (m *Manager) AddInt(tid int, region, stat string, value int64, reduction Reduction) {
	m.add(tid, region, stat, float64(value), reduction)
}

// AddFloat records a floating-point sample for (region, stat) from lane
// tid.
func (m *Manager) AddFloat(tid int, region, stat string, value float64, reduction Reduction) {
	m.add(tid, region, stat, value, reduction)
}

// AddParam records a named run parameter (chunk size, active threads,
// delta) under the "params" region with Single reduction, so it rides
// along in the same CSV report as the statistics it explains.
func (m *Manager) AddParam(name string, value float64) {
	m.add(0, "params", name, value, Single)
}

func (m *Manager) add(tid int, region, stat string, value float64, reduction Reduction) {
	k := key{region: region, stat: stat}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.series[k]
	if !ok {
		s = &series{reduction: reduction, values: make(map[int]float64)}
		m.series[k] = s
	}
	switch reduction {
	case Sum:
		s.values[tid] += value
	case Min:
		if old, seen := s.values[tid]; !seen || value < old {
			s.values[tid] = value
		}
	case Max:
		if old, seen := s.values[tid]; !seen || value > old {
			s.values[tid] = value
		}
	default: // Avg, Single: last writer wins per tid; Reduce() post-processes
		s.values[tid] = value
	}
	if m.promReg != nil {
		m.updatePrometheusLocked(region, stat, s)
	}
}

// Reduced holds one statistic's final, cross-lane value.
type Reduced struct {
	Region, Stat string
	Reduction    Reduction
	Value        float64
}

// totalType names a Reduction the way the CSV TOTAL_TYPE column does.
func (r Reduction) totalType() string {
	switch r {
	case Min:
		return "TMIN"
	case Max:
		return "TMAX"
	case Avg:
		return "TAVG"
	case Single:
		return "SINGLE"
	default: // Sum
		return "TSUM"
	}
}

// statType names a Reduction the way the CSV STAT_TYPE column does:
// Single-reduction series carry named run parameters, everything else
// is a measured statistic.
func (r Reduction) statType() string {
	if r == Single {
		return "PARAM"
	}
	return "STAT"
}

// Reduce merges every statistic's per-lane values according to its
// registered Reduction, sorted by region then stat for stable output.
func (m *Manager) Reduce() []Reduced {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Reduced, 0, len(m.series))
	for k, s := range m.series {
		out = append(out, Reduced{Region: k.region, Stat: k.stat, Reduction: s.reduction, Value: reduceSeries(s)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Region != out[j].Region {
			return out[i].Region < out[j].Region
		}
		return out[i].Stat < out[j].Stat
	})
	return out
}

func reduceSeries(s *series) float64 {
	switch s.reduction {
	case Min:
		first := true
		var best float64
		for _, v := range s.values {
			if first || v < best {
				best = v
				first = false
			}
		}
		return best
	case Max:
		first := true
		var best float64
		for _, v := range s.values {
			if first || v > best {
				best = v
				first = false
			}
		}
		return best
	case Avg:
		var total float64
		for _, v := range s.values {
			total += v
		}
		if len(s.values) == 0 {
			return 0
		}
		return total / float64(len(s.values))
	case Single:
		for _, v := range s.values {
			return v
		}
		return 0
	default: // Sum
		var total float64
		for _, v := range s.values {
			total += v
		}
		return total
	}
}

// PerThread returns every lane's raw value for (region, stat), for the
// per-thread CSV rows PRINT_PER_THREAD_STATS enables.
func (m *Manager) PerThread(region, stat string) map[int]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.series[key{region: region, stat: stat}]
	if !ok {
		return nil
	}
	out := make(map[int]float64, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Flush writes the reduced report (and, if PrintPerThreadStats is set,
// per-lane rows) as CSV to StatFile, or to stderr if StatFile is empty.
func (m *Manager) Flush() error {
	var w *csv.Writer
	if m.statFile != "" {
		f, err := os.Create(m.statFile)
		if err != nil {
			return fmt.Errorf("stats: creating %s: %w", m.statFile, err)
		}
		defer f.Close()
		w = csv.NewWriter(f)
	} else {
		w = csv.NewWriter(os.Stderr)
	}
	defer w.Flush()

	if err := w.Write([]string{"STAT_TYPE", "REGION", "CATEGORY", "TOTAL_TYPE", "TOTAL"}); err != nil {
		return err
	}
	for _, r := range m.Reduce() {
		row := []string{r.Reduction.statType(), r.Region, r.Stat, r.Reduction.totalType(), strconv.FormatFloat(r.Value, 'g', -1, 64)}
		if err := w.Write(row); err != nil {
			return err
		}
		if m.printPerThreadStats {
			per := m.PerThread(r.Region, r.Stat)
			tids := make([]int, 0, len(per))
			for tid := range per {
				tids = append(tids, tid)
			}
			sort.Ints(tids)
			values := make([]string, len(tids))
			for i, tid := range tids {
				values[i] = fmt.Sprintf("%d=%s", tid, strconv.FormatFloat(per[tid], 'g', -1, 64))
			}
			threadRow := []string{r.Reduction.statType(), r.Region, r.Stat, "Values:", strings.Join(values, ";")}
			if err := w.Write(threadRow); err != nil {
				return err
			}
		}
	}
	log.Info("statistics flushed", logging.Fields{"stat_file": m.statFile, "per_thread": m.printPerThreadStats})
	return nil
}

// PrometheusRegistry lazily creates and returns a Prometheus registry
// mirroring every statistic this Manager has seen as a GaugeVec labeled
// by tid, so a host process can scrape loop statistics the same way it
// scrapes any other subsystem's metrics.
func (m *Manager) PrometheusRegistry() *prometheus.Registry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.promReg == nil {
		m.promReg = prometheus.NewRegistry()
		m.promVecs = make(map[string]*prometheus.GaugeVec)
		for k, s := range m.series {
			m.updatePrometheusLocked(k.region, k.stat, s)
		}
	}
	return m.promReg
}

func (m *Manager) updatePrometheusLocked(region, stat string, s *series) {
	name := fmt.Sprintf("loom_%s_%s", region, stat)
	vec, ok := m.promVecs[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: name,
			Help: fmt.Sprintf("loom statistic %s/%s", region, stat),
		}, []string{"tid"})
		m.promReg.MustRegister(vec)
		m.promVecs[name] = vec
	}
	for tid, v := range s.values {
		vec.WithLabelValues(strconv.Itoa(tid)).Set(v)
	}
}
