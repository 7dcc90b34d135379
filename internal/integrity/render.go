package integrity

import (
	"io"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/pathnorm"
)

// WriteText renders r for a terminal, listing at most limit findings per
// kind (all when limit <= 0).
func WriteText(w io.Writer, r *Report, limit int) error {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	p.Fprintf(&b, "Graph: %s\nBase:  %s\n\n", r.GraphURI, r.Base)

	groups := []struct {
		kind  Kind
		title string
	}{
		{DigestMismatch, "Digest mismatches"},
		{MissingInGraph, "Missing in graph"},
		{UnexpectedInGraph, "Unexpected in graph"},
	}
	for _, g := range groups {
		var rows []Finding
		for _, f := range r.Findings {
			if f.Kind == g.kind {
				rows = append(rows, f)
			}
		}
		if len(rows) == 0 {
			continue
		}
		p.Fprintf(&b, "%s (%d):\n", g.title, len(rows))
		for i, f := range rows {
			if limit > 0 && i == limit {
				p.Fprintf(&b, "  ... %d more\n", len(rows)-limit)
				break
			}
			rel := pathnorm.Relative(f.Path, r.Base)
			if f.Kind == DigestMismatch {
				p.Fprintf(&b, "  %s\n    snapshot %s\n    graph    %s\n", rel, f.SnapshotDigest, f.GraphDigest)
			} else {
				p.Fprintf(&b, "  %s\n", rel)
			}
		}
		b.WriteString("\n")
	}
	if n := len(r.SnapshotErrors); n > 0 {
		p.Fprintf(&b, "Snapshot entries without digest (%d):\n", n)
		for i, e := range r.SnapshotErrors {
			if limit > 0 && i == limit {
				p.Fprintf(&b, "  ... %d more\n", n-limit)
				break
			}
			p.Fprintf(&b, "  %s: %s\n", e.Path, e.Error)
		}
		b.WriteString("\n")
	}

	s := r.Summary
	p.Fprintf(&b, "Files in snapshot:   %d\n", s.SnapshotFiles)
	p.Fprintf(&b, "Files in graph:      %d\n", s.GraphFiles)
	p.Fprintf(&b, "Digests verified:    %d\n", s.Matches)
	p.Fprintf(&b, "Digest mismatches:   %d\n", s.Mismatches)
	p.Fprintf(&b, "Missing in graph:    %d\n", s.MissingInGraph)
	p.Fprintf(&b, "Unexpected in graph: %d\n", s.UnexpectedInGraph)
	p.Fprintf(&b, "Snapshot errors:     %d\n", s.SnapshotErrors)
	if r.Success {
		b.WriteString("\nResult: SUCCESS\n")
	} else {
		b.WriteString("\nResult: FAILURE\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}
