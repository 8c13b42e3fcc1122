package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/ghemawat/stream"
	"github.com/guptarohit/asciigraph"
	"github.com/kr/pretty"
	"github.com/olekukonko/tablewriter"
)

// WriteBlockTable renders blocks as a human-readable table (the `show`
// command's non-JSON mode).
func WriteBlockTable(w io.Writer, blocks []BlockInfo, showAll bool) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Seq", "Offset", "Kind", "Valid"})
	table.SetAutoWrapText(false)
	for _, b := range blocks {
		if !showAll && b.Kind == "parity" {
			continue
		}
		table.Append([]string{
			fmt.Sprintf("%d", b.SeqNum),
			fmt.Sprintf("%#x", b.Offset),
			b.Kind,
			fmt.Sprintf("%v", b.Valid),
		})
	}
	table.Render()
}

// FilterLines pipes newline-joined text through a ghemawat/stream pipeline.
// A non-empty match keeps only the lines matching that regular expression;
// an empty match numbers every line instead of filtering, which is how
// `show --verbose` renders its listing.
func FilterLines(text string, match string) (string, error) {
	var out strings.Builder
	lines := stream.Items(strings.Split(text, "\n")...)
	var err error
	if match == "" {
		err = stream.Run(lines, stream.NumberLines(), stream.WriteLines(&out))
	} else {
		err = stream.Run(lines, stream.Grep(match), stream.WriteLines(&out))
	}
	if err != nil {
		return "", err
	}
	return out.String(), nil
}

// Sparkline renders an ASCII throughput graph for --verbose progress
// output: bytes-per-block-interval samples rendered with asciigraph.
func Sparkline(samples []float64, height int) string {
	if len(samples) == 0 {
		return ""
	}
	return asciigraph.Plot(samples, asciigraph.Height(height))
}

// PrettyDump renders v with kr/pretty for --verbose block/struct dumps.
func PrettyDump(v interface{}) string {
	return strings.TrimSpace(pretty.Sprint(v))
}
