package controller

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/aanand-mishra/student-crud/internal/querycache"
	"github.com/aanand-mishra/student-crud/internal/types"
)

// Render writes v as text: a loading or error line, or the student table
// followed by the form.
func Render(w io.Writer, v View) error {
	switch v.Status {
	case querycache.StatusLoading:
		_, err := fmt.Fprintln(w, "Loading...")
		return err
	case querycache.StatusError:
		_, err := fmt.Fprintf(w, "error: %v\n", v.Err)
		return err
	}

	if err := RenderList(w, v.Records); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	return RenderForm(w, v)
}

// RenderList writes the records as an aligned table.
func RenderList(w io.Writer, records []types.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tADDRESS\tBIRTHDATE\tAVATAR")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Name, r.Email, r.Address, displayDate(r.Birthdate), r.Avatar)
	}
	if len(records) == 0 {
		fmt.Fprintln(tw, "(no students)")
	}
	return tw.Flush()
}

// RenderForm writes the draft and the action submit would perform.
func RenderForm(w io.Writer, v View) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	action := "Submit"
	if v.Mode() == ModeEditing {
		fmt.Fprintf(tw, "Editing student %s\n", v.EditingID)
		action = "Update"
	} else {
		fmt.Fprintln(tw, "New student")
	}
	fmt.Fprintf(tw, "  %s\t%s\n", types.FieldName, v.Draft.Name)
	fmt.Fprintf(tw, "  %s\t%s\n", types.FieldEmail, v.Draft.Email)
	fmt.Fprintf(tw, "  %s\t%s\n", types.FieldAddress, v.Draft.Address)
	fmt.Fprintf(tw, "  %s\t%s\n", types.FieldBirthdate, v.Draft.Birthdate)
	fmt.Fprintf(tw, "  %s\t%s\n", types.FieldAvatar, v.Draft.Avatar)
	fmt.Fprintf(tw, "[%s]", action)
	if v.Pending > 0 {
		fmt.Fprintf(tw, " (%d pending)", v.Pending)
	}
	fmt.Fprintln(tw)
	return tw.Flush()
}

// displayDate shortens ISO timestamps to their date part.
func displayDate(s string) string {
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(time.DateOnly)
		}
	}
	return s
}
