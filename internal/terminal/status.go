package terminal

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/mainbong/copilot_kit/internal/llm"
	"github.com/mainbong/copilot_kit/internal/tools"
)

var (
	okStyle   = color.New(color.FgGreen)
	warnStyle = color.New(color.FgYellow)
	failStyle = color.New(color.FgRed)
	dimStyle  = color.New(color.FgHiBlack)
)

// PrintStatuses writes one line per provider, marking the active one
func PrintStatuses(w io.Writer, statuses []llm.ProviderStatus, active string) {
	sorted := append([]llm.ProviderStatus(nil), statuses...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	for _, st := range sorted {
		marker := "  "
		if st.Name == active {
			marker = "* "
		}

		var state string
		switch {
		case st.IsHealthy:
			state = okStyle.Sprint("healthy")
		case st.IsAvailable:
			state = warnStyle.Sprint("unhealthy")
		default:
			state = failStyle.Sprint("unavailable")
		}

		line := fmt.Sprintf("%s%-12s %s", marker, st.Name, state)
		if st.Metrics != nil && st.Metrics.TotalRequests > 0 {
			line += dimStyle.Sprintf("  requests=%d errors=%d avg=%s",
				st.Metrics.TotalRequests, st.Metrics.FailedRequests, st.Metrics.AverageLatency.Round(time.Millisecond))
		}
		if st.Error != "" {
			line += " " + dimStyle.Sprint(st.Error)
		}
		fmt.Fprintln(w, line)
	}
}

// PrintToolResults summarizes the tool calls of one turn
func PrintToolResults(w io.Writer, results []tools.Result) {
	for _, res := range results {
		switch {
		case res.Skipped:
			fmt.Fprintln(w, dimStyle.Sprintf("  ~ %s skipped", res.Name))
		case res.Err != nil:
			fmt.Fprintln(w, failStyle.Sprintf("  ✗ %s: %v", res.Name, res.Err))
		default:
			fmt.Fprintln(w, okStyle.Sprintf("  ✓ %s", res.Name))
		}
	}
}

// PrintDescriptors lists the tools the model can call
func PrintDescriptors(w io.Writer, descriptors []tools.Descriptor) {
	for _, d := range descriptors {
		where := string(d.EffectiveTransport())
		if d.IsLocal() {
			where = "local"
		}
		desc := strings.TrimSpace(d.Description)
		if i := strings.IndexByte(desc, '\n'); i >= 0 {
			desc = desc[:i]
		}
		fmt.Fprintf(w, "%-24s %-6s %s\n", d.Definition().Name, dimStyle.Sprint(where), desc)
	}
}
