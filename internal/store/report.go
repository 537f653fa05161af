package store

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// WriteText prints the report in the layout the CLI shows after every run.
func (r Report) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STORAGE REPORT")
	fmt.Fprintf(tw, "Total chunks\t%d\n", r.TotalChunks)
	fmt.Fprintf(tw, "Total articles\t%d\n", r.TotalArticles)
	fmt.Fprintf(tw, "Total sources\t%d\n", r.TotalSources)
	if r.EarliestDate != "" {
		fmt.Fprintf(tw, "Date range\t%s .. %s\n", r.EarliestDate, r.LatestDate)
	}
	fmt.Fprintf(tw, "Metadata size\t%s\n", humanBytes(r.SizeBytes))
	fmt.Fprintf(tw, "Index\t%s, %d vectors, dim %d, %s\n", r.IndexFlavor, r.IndexVectors, r.IndexDim, humanBytes(r.IndexBytes))
	if len(r.TopSources) > 0 {
		fmt.Fprintln(tw, "Top sources\t")
		for _, s := range r.TopSources {
			fmt.Fprintf(tw, "  %s\t%d\n", s.Source, s.Articles)
		}
	}
	return tw.Flush()
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
