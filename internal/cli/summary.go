package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/cboone/settle"
)

type summaryRow struct {
	operation string
	kind      settle.Kind
	attempts  int
	elapsed   time.Duration
	signal    string
}

func signalColumn(conf settle.Confirmation, waited bool) string {
	switch {
	case conf.Signaled:
		return "received"
	case conf.FellBack:
		return "fallback"
	case waited:
		return "missing"
	default:
		return "-"
	}
}

func writeSummary(w io.Writer, rows ...summaryRow) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader([]string{"Operation", "Outcome", "Attempts", "Elapsed", "Signal"})

	for _, r := range rows {
		table.Append([]string{
			r.operation,
			r.kind.String(),
			strconv.Itoa(r.attempts),
			fmt.Sprint(r.elapsed.Round(time.Millisecond)),
			r.signal,
		})
	}
	table.Render()
}
