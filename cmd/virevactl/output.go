package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/wolfman30/virevamind/internal/catalog"
	"github.com/wolfman30/virevamind/internal/ledger"
)

func render(w io.Writer, format string, v any, text func(io.Writer)) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func printTherapists(w io.Writer, profiles []catalog.TherapistProfile) {
	if len(profiles) == 0 {
		fmt.Fprintln(w, "no therapists match")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCERT\tRATING\tSESSIONS\tLANGUAGES\tINSURED\tVERIFIED")
	for _, p := range profiles {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f\t%d\t%s\t%s\t%s\n",
			p.ID, p.Name, p.CertificationLabel(), p.Rating, p.Sessions,
			strings.Join(p.Languages, ", "), yesNo(p.Insured), p.Verification)
	}
	_ = tw.Flush()
}

func printSlots(w io.Writer, slots []catalog.AvailabilitySlot) {
	if len(slots) == 0 {
		fmt.Fprintln(w, "no slots")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SLOT\tDATE\tSTART\tMINUTES\tSTATUS")
	for _, s := range slots {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", s.ID, s.Date, s.Start, s.Duration, s.Status)
	}
	_ = tw.Flush()
}

func printBooking(w io.Writer, b ledger.Booking) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "booking\t%s\n", b.ID)
	fmt.Fprintf(tw, "status\t%s\n", b.Status)
	fmt.Fprintf(tw, "therapist\t%s\n", b.TherapistID)
	fmt.Fprintf(tw, "when\t%s %s (%d min)\n", b.Date, b.Start, b.Duration)
	fmt.Fprintf(tw, "price\t%s\n", b.Price)
	fmt.Fprintf(tw, "confirmation\t%s\n", b.ConfirmationToken)
	_ = tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
