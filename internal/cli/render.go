package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/docsync/internal/doc"
)

func documentState(d doc.Document, uploaded bool) string {
	switch {
	case !d.IsLive():
		return "deleted"
	case !uploaded:
		return "dirty"
	default:
		return "synced"
	}
}

func payloadJSON(d doc.Document) string {
	if len(d.Fields) == 0 {
		return "{}"
	}
	data, err := json.Marshal(d.Fields)
	if err != nil {
		return fmt.Sprintf("<unencodable: %v>", err)
	}
	return string(data)
}

// renderLine is the one-line form used by ls and watch.
func renderLine(d doc.Document, uploaded bool) string {
	return fmt.Sprintf("%s  %-7s  %s", d.ID, documentState(d, uploaded), payloadJSON(d))
}

func renderStamp(t time.Time, by *doc.Actor) string {
	if t.IsZero() {
		return "-"
	}
	s := t.UTC().Format(time.RFC3339)
	if by != nil && by.ClientID != "" {
		s += " by " + by.ClientID
	}
	return s
}

// renderDetail is the multi-line form used by get.
func renderDetail(d doc.Document, uploaded bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "id:       %s\n", d.ID)
	fmt.Fprintf(&b, "rev:      %s\n", d.Rev)
	fmt.Fprintf(&b, "state:    %s\n", documentState(d, uploaded))
	fmt.Fprintf(&b, "created:  %s\n", renderStamp(d.CreatedAt, d.CreatedBy))
	fmt.Fprintf(&b, "updated:  %s\n", renderStamp(d.UpdatedAt, d.UpdatedBy))
	if !d.DeletedAt.IsZero() {
		fmt.Fprintf(&b, "deleted:  %s\n", renderStamp(d.DeletedAt, d.DeletedBy))
	}
	fmt.Fprintf(&b, "payload:  %s", payloadJSON(d))
	return b.String()
}
