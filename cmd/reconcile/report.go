package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/geocoder89/accountcore/internal/currency"
	"github.com/geocoder89/accountcore/internal/domain/ledger"
)

type auditRow struct {
	UserID   string          `json:"userId"`
	Stored   currency.Amount `json:"stored"`
	Computed currency.Amount `json:"computed"`
	Drift    currency.Amount `json:"drift"`
	Fixed    bool            `json:"fixed"`
}

type report struct {
	Audits  []auditRow `json:"audits"`
	Audited int        `json:"audited"`
	Drifted int        `json:"drifted"`
	Fixed   int        `json:"fixed"`
}

func buildReport(audits []ledger.Audit, cur currency.Config) report {
	rep := report{Audits: make([]auditRow, 0, len(audits)), Audited: len(audits)}
	for _, a := range audits {
		if a.Drift != 0 {
			rep.Drifted++
		}
		if a.Fixed {
			rep.Fixed++
		}
		rep.Audits = append(rep.Audits, auditRow{
			UserID:   a.UserID,
			Stored:   cur.Amount(a.Stored),
			Computed: cur.Amount(a.Computed),
			Drift:    cur.Amount(a.Drift),
			Fixed:    a.Fixed,
		})
	}
	return rep
}

// writeReport prints only drifted users in text mode; JSON carries every audit.
func writeReport(w io.Writer, audits []ledger.Audit, cur currency.Config, asJSON bool) error {
	rep := buildReport(audits, cur)

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tSTORED\tCOMPUTED\tDRIFT\tFIXED")
	for _, row := range rep.Audits {
		if row.Drift.Minor == 0 {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", row.UserID, row.Stored.Formatted, row.Computed.Formatted, row.Drift.Formatted, row.Fixed)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "audited %d, drifted %d, fixed %d\n", rep.Audited, rep.Drifted, rep.Fixed)
	return err
}

func unfixedDrift(audits []ledger.Audit) int {
	n := 0
	for _, a := range audits {
		if a.Drift != 0 && !a.Fixed {
			n++
		}
	}
	return n
}
