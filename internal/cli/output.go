package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// render writes v as indented JSON, or calls table for the text format.
func (o *options) render(w io.Writer, v any, table func(tw *tabwriter.Writer)) error {
	switch strings.ToLower(o.format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "text", "":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		table(tw)
		return tw.Flush()
	default:
		return fmt.Errorf("unknown format %q", o.format)
	}
}

func formatSeconds(secs int64) string {
	h, m, s := secs/3600, (secs%3600)/60, secs%60
	return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
}
