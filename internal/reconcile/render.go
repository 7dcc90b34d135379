package reconcile

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/pathnorm"
)

var statusLabels = map[Kind]string{
	Match:             "MATCH",
	MissingInGraph:    "MISSING",
	UnexpectedInGraph: "UNEXPECTED",
	CountMismatch:     "MISMATCH",
	BothZero:          "ZERO",
}

// WriteText renders r as a human-readable table. Paths are shown relative
// to the report base. Matches are omitted unless showMatches is set.
func WriteText(w io.Writer, r *Report, showMatches bool) error {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	p.Fprintf(&b, "Graph:    %s\n", r.GraphURI)
	p.Fprintf(&b, "Base:     %s\n", r.Base)
	p.Fprintf(&b, "Triples:  %d\n\n", r.GraphTriples)

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', tabwriter.AlignRight)
	p.Fprintf(tw, "STATUS\tEXPECTED\tOBSERVED\tDIFF\t\n")
	rows := 0
	for _, d := range r.Discrepancies {
		if d.Kind == Match && !showMatches {
			continue
		}
		rows++
		p.Fprintf(tw, "%s\t%d\t%d\t%s\t  %s\n",
			statusLabels[d.Kind], d.Expected, d.Observed, fmt.Sprintf("%+d", d.Diff), pathnorm.Relative(d.Path, r.Base))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if rows == 0 {
		b.WriteString("(no discrepancies)\n")
	}

	s := r.Summary
	b.WriteString("\n")
	p.Fprintf(&b, "Matches:                 %d\n", s.Matches)
	p.Fprintf(&b, "Count mismatches:        %d\n", s.Mismatches)
	p.Fprintf(&b, "Missing in graph:        %d\n", s.Missing)
	p.Fprintf(&b, "Unexpected in graph:     %d\n", s.Unexpected)
	if s.BothZero > 0 {
		p.Fprintf(&b, "Empty on both sides:     %d\n", s.BothZero)
	}
	p.Fprintf(&b, "Recordsets / records:    %d / %d\n", s.RecordSets, s.Records)
	p.Fprintf(&b, "False positives avoided: %d\n", s.FalsePositivesAvoided)
	p.Fprintf(&b, "Orphan records:          %d\n", s.OrphanRecords)
	if s.InvalidPaths > 0 {
		p.Fprintf(&b, "Paths outside base:      %d\n", s.InvalidPaths)
	}

	if r.Success {
		b.WriteString("\nResult: SUCCESS\n")
	} else {
		p.Fprintf(&b, "\nResult: FAILURE (%d paths)\n", s.Mismatches+s.Missing)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
