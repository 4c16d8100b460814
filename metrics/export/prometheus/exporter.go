package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	goToken "github.com/MrEthical07/goToken"
	"github.com/MrEthical07/goToken/metrics/export/internaldefs"
)

// Source is what the exporter scrapes. [*goToken.Engine] satisfies it.
type Source interface {
	MetricsSnapshot() goToken.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter renders engine metrics in Prometheus text exposition format.
type Exporter struct {
	source Source
}

// New returns an exporter that scrapes source on every request.
func New(source Source) *Exporter {
	return &Exporter{source: source}
}

// Handler serves the current metrics. It is safe to mount on any path.
func (e *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(e.Render()))
	})
}

// Render returns the exposition text, or "" when metrics are disabled on the engine.
func (e *Exporter) Render() string {
	if e == nil || e.source == nil {
		return ""
	}

	snap := e.source.MetricsSnapshot()
	dropped := e.source.AuditDropped()
	if len(snap.Counters) == 0 && len(snap.Histograms) == 0 && dropped == 0 {
		return ""
	}

	w := &textWriter{}
	for _, fam := range internaldefs.CounterFamilies {
		w.header(fam.Name, fam.Help, "counter")
		for _, s := range fam.Samples {
			w.sample(fam.Name, fam.Label, s.Value, snap.Counters[s.ID])
		}
	}

	if raw, ok := snap.Histograms[internaldefs.LatencyHistogram.ID]; ok {
		w.latency(internaldefs.CumulativeBuckets(raw))
	}

	w.header(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, "counter")
	w.sample(internaldefs.AuditDroppedName, "", "", dropped)

	return w.String()
}

type textWriter struct {
	strings.Builder
}

func (w *textWriter) header(name, help, kind string) {
	w.WriteString("# HELP " + name + " " + escapeHelp(help) + "\n")
	w.WriteString("# TYPE " + name + " " + kind + "\n")
}

func (w *textWriter) sample(name, label, value string, n uint64) {
	w.WriteString(name)
	if label != "" {
		w.WriteString("{" + label + `="` + value + `"}`)
	}
	w.WriteByte(' ')
	w.WriteString(strconv.FormatUint(n, 10))
	w.WriteByte('\n')
}

// latency writes the validation histogram. Buckets are cumulative. The engine keeps
// no running sum so _sum is always 0.
func (w *textWriter) latency(cumulative [8]uint64) {
	def := internaldefs.LatencyHistogram
	w.header(def.Name, def.Help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		w.sample(def.Name+"_bucket", "le", le, cumulative[i])
	}
	w.sample(def.Name+"_count", "", "", cumulative[len(cumulative)-1])
	w.sample(def.Name+"_sum", "", "", 0)
}

func escapeHelp(help string) string {
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(help)
}
