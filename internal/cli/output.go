package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/fatih/color"

	"github.com/ttc-bus-delays/busdelay/internal/analysis"
	"github.com/ttc-bus-delays/busdelay/internal/diagnostics"
	"github.com/ttc-bus-delays/busdelay/internal/summary"
)

var (
	okMark   = color.New(color.FgGreen).Sprint("✓")
	warnMark = color.New(color.FgYellow).Sprint("⚠")
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fmtNum(v float64, prec int) string {
	if math.IsNaN(v) {
		return "NA"
	}
	return fmt.Sprintf("%.*f", prec, v)
}

func printSummary(w io.Writer, s *summary.PosteriorSummary) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-28s %10s %10s %22s\n", "Parameter", "Median", "MAD", "95% interval")
	fmt.Fprintln(w, "────────────────────────────────────────────────────────────────────────────────")
	for _, r := range s.Rows {
		fmt.Fprintf(w, "%-28s %10s %10s %22s\n",
			r.Label, fmtNum(r.Median, 2), fmtNum(r.MAD, 2),
			fmt.Sprintf("[%s, %s]", fmtNum(r.Lower95, 2), fmtNum(r.Upper95, 2)))
	}
	fmt.Fprintln(w)
}

func printDiagnostics(w io.Writer, r *diagnostics.Report) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d chains x %d draws, R-hat threshold %.2f\n\n", r.Chains, r.DrawsPerChain, r.RHatThreshold)
	fmt.Fprintf(w, "%-28s %8s %8s  %s\n", "Parameter", "R-hat", "ESS", "Status")
	fmt.Fprintln(w, "──────────────────────────────────────────────────────────")
	for _, p := range r.Params {
		mark := okMark
		if p.Flagged {
			mark = warnMark
		}
		fmt.Fprintf(w, "%-28s %8s %8s  %s\n", p.Label, fmtNum(p.RHat.Value(), 3), fmtNum(p.ESS.Value(), 0), mark)
	}
	if pp := r.Predictive; pp != nil {
		fmt.Fprintf(w, "\nPosterior predictive (%d replicates): mean %s vs observed %s, variance %s vs observed %s\n",
			pp.Draws, fmtNum(pp.MeanOfMeans, 2), fmtNum(pp.ObservedMean, 2),
			fmtNum(pp.MeanOfVariances, 2), fmtNum(pp.ObservedVariance, 2))
	}
	fmt.Fprintln(w)
	if !r.Converged {
		color.New(color.FgYellow).Fprintf(w, "%s %d parameter(s) above R-hat %.2f: chains may not have converged\n",
			warnMark, len(r.Flagged), r.RHatThreshold)
	} else {
		fmt.Fprintf(w, "%s all chains converged\n", okMark)
	}
}

func printDescriptives(w io.Writer, d analysis.Descriptives) {
	fmt.Fprintf(w, "\n%d records\n\n", d.Records)

	fmt.Fprintf(w, "%-10s %8s %12s\n", "Day", "Records", "Mean delay")
	fmt.Fprintln(w, "────────────────────────────────")
	for _, dm := range d.DayMeans {
		fmt.Fprintf(w, "%-10s %8d %12s\n", dm.Day, dm.Count, fmtNum(dm.Mean.Value(), 2))
	}

	fmt.Fprintf(w, "\n%-36s %8s\n", "Incident", "Records")
	fmt.Fprintln(w, "─────────────────────────────────────────────")
	for _, ic := range d.IncidentCounts {
		fmt.Fprintf(w, "%-36s %8d\n", ic.Incident, ic.Count)
	}

	fmt.Fprintf(w, "\nGap vs delay OLS: slope %s, intercept %s\n",
		fmtNum(d.GapScatter.Slope.Value(), 3), fmtNum(d.GapScatter.Intercept.Value(), 3))
	fmt.Fprintf(w, "Delay histogram: %d bins, %d records outside the plotted range\n\n",
		len(d.DelayHistogram.Bins), d.DelayHistogram.Excluded)
}
