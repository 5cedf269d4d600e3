// Package output renders command results for the terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/tphakala/evalsync/internal/evaluation"
)

// JSON writes v indented with two spaces and a trailing newline.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// RecordTable writes one line per record: id, capture time, status,
// attempts, operator and the last sync error.
func RecordTable(w io.Writer, records []*evaluation.Record) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIMESTAMP\tSTATUS\tATTEMPTS\tOPERATOR\tERROR")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID, evaluation.FormatTimestamp(r.Timestamp), r.Status, r.SyncAttempts, r.OperatorName, r.SyncError)
	}
	return tw.Flush()
}
