package reports

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/samber/lo"

	"github.com/careconnect/careconnect-api/internal/models"
)

const (
	pageHeight   = 297.0 // A4, mm
	bottomMargin = 20.0
	contentWidth = 190.0
	rowHeight    = 7.0
	dateLayout   = "Jan 2, 2006"
)

var (
	brand     = [3]int{20, 83, 136}
	zebra     = [3]int{240, 245, 250}
	mutedText = [3]int{110, 110, 110}
)

type column struct {
	title string
	width float64
}

// Render lays the bundle out as an A4 PDF with a running header and a
// "Page X of Y" footer.
func Render(b *Bundle) ([]byte, error) {
	pdf := layout(b)
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func layout(b *Bundle) *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(b.Title, true)
	pdf.SetCreator("CareConnect", true)
	pdf.AliasNbPages("")
	pdf.SetAutoPageBreak(true, bottomMargin)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	r := &renderer{pdf: pdf, tr: tr}

	pdf.SetHeaderFunc(func() {
		pdf.SetFillColor(brand[0], brand[1], brand[2])
		pdf.Rect(0, 0, 210, 18, "F")
		pdf.SetTextColor(255, 255, 255)
		pdf.SetFont("Helvetica", "B", 13)
		pdf.SetXY(10, 5)
		pdf.CellFormat(120, 8, tr("CareConnect"), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(70, 8, tr(b.GeneratedAt.Format("Generated Jan 2, 2006 15:04 MST")), "", 0, "R", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
		pdf.SetY(24)
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(mutedText[0], mutedText[1], mutedText[2])
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "T", 0, "C", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	})

	pdf.AddPage()
	r.title(b)
	if b.Patient != nil {
		r.patient(b.Patient)
	}
	if b.Doctor != nil {
		r.doctor(b.Doctor)
	}
	r.stats(b)
	r.analytics(b)
	if b.includes(models.ReportAppointments) {
		r.appointments(b.Appointments)
	}
	if b.includes(models.ReportPrescriptions) {
		r.prescriptions(b.Prescriptions)
	}
	if b.includes(models.ReportMedicalRecords) {
		r.records(b.Records)
	}
	return pdf
}

type renderer struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func (r *renderer) title(b *Bundle) {
	pdf := r.pdf
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(contentWidth, 10, r.tr(b.Title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(mutedText[0], mutedText[1], mutedText[2])
	line := fmt.Sprintf("%s report  |  %s", titleCase(b.ReportType), rangeLabel(b))
	pdf.CellFormat(contentWidth, 6, r.tr(line), "", 1, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(4)
}

// titleCase turns "medical-records" into "Medical Records".
func titleCase(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "-", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func rangeLabel(b *Bundle) string {
	switch {
	case b.Range.From != nil && b.Range.To != nil:
		return b.Range.From.Format(dateLayout) + " - " + b.Range.To.Format(dateLayout)
	case b.Range.From != nil:
		return "since " + b.Range.From.Format(dateLayout)
	case b.Range.To != nil:
		return "until " + b.Range.To.Format(dateLayout)
	}
	return "all time"
}

func (r *renderer) heading(text string) {
	pdf := r.pdf
	r.ensure(rowHeight * 3)
	pdf.Ln(3)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.SetTextColor(brand[0], brand[1], brand[2])
	pdf.CellFormat(contentWidth, 8, r.tr(text), "B", 1, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(2)
}

func (r *renderer) field(label, value string) {
	if value == "" {
		return
	}
	pdf := r.pdf
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(45, 6, r.tr(label), "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(contentWidth-45, 6, r.tr(value), "", "L", false)
}

func (r *renderer) patient(p *PatientInfo) {
	r.heading("Patient Details")
	r.field("Name", p.Name)
	r.field("Email", p.Email)
	r.field("Phone", p.Phone)
	if p.DateOfBirth != nil {
		r.field("Date of birth", p.DateOfBirth.Format(dateLayout))
	}
	r.field("Gender", p.Gender)
	r.field("Blood group", p.BloodGroup)
	r.field("Allergies", strings.Join(p.Allergies, ", "))
	if p.Emergency != nil {
		r.field("Emergency contact", fmt.Sprintf("%s (%s) %s", p.Emergency.Name, p.Emergency.Relationship, p.Emergency.Phone))
	}
}

func (r *renderer) doctor(d *DoctorInfo) {
	r.heading("Doctor Details")
	r.field("Name", d.Name)
	r.field("Email", d.Email)
	r.field("Phone", d.Phone)
	r.field("Specializations", strings.Join(d.Specializations, ", "))
	r.field("Qualifications", strings.Join(d.Qualifications, ", "))
	r.field("Experience", fmt.Sprintf("%d years", d.Experience))
	r.field("Patients in care", fmt.Sprint(d.PatientsInCare))
}

func (r *renderer) stats(b *Bundle) {
	st := b.Stats
	r.heading("Statistics")
	who := lo.Ternary(b.Doctor != nil, "Distinct patients", "Distinct doctors")
	rows := [][]string{
		{"Appointments", fmt.Sprint(st.Appointments)},
		{"Completed", fmt.Sprint(st.Completed)},
		{"Cancelled", fmt.Sprint(st.Cancelled)},
		{"No-show", fmt.Sprint(st.NoShow)},
		{"Upcoming", fmt.Sprint(st.Upcoming)},
		{"Prescriptions", fmt.Sprintf("%d (%d active)", st.Prescriptions, st.ActivePrescriptions)},
		{"Medical records", fmt.Sprint(st.Records)},
		{who, fmt.Sprint(st.Counterparts)},
	}
	r.table([]column{{"Metric", 95}, {"Value", 95}}, rows)
}

func (r *renderer) analytics(b *Bundle) {
	if len(b.StatusBreakdown) == 0 && len(b.MonthlyVisits) == 0 {
		return
	}
	r.heading("Analytics")
	if len(b.StatusBreakdown) > 0 {
		r.subheading("Appointments by status")
		r.bars(b.StatusBreakdown)
	}
	if len(b.MonthlyVisits) > 0 {
		r.subheading("Visits per month")
		r.bars(b.MonthlyVisits)
	}
}

func (r *renderer) subheading(text string) {
	r.ensure(rowHeight * 2)
	r.pdf.SetFont("Helvetica", "B", 10)
	r.pdf.CellFormat(contentWidth, 7, r.tr(text), "", 1, "L", false, 0, "")
}

// bars draws a horizontal bar per count, scaled to the largest one.
func (r *renderer) bars(counts []Count) {
	pdf := r.pdf
	maxN := lo.MaxBy(counts, func(a, b Count) bool { return a.N > b.N }).N
	const labelW, barW = 40.0, 130.0
	for _, c := range counts {
		r.ensure(6)
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(labelW, 6, r.tr(c.Label), "", 0, "L", false, 0, "")
		w := barW * float64(c.N) / float64(lo.Max([]int{maxN, 1}))
		x, y := pdf.GetXY()
		pdf.SetFillColor(brand[0], brand[1], brand[2])
		pdf.Rect(x, y+1, lo.Max([]float64{w, 0.5}), 4, "F")
		pdf.SetX(x + barW + 2)
		pdf.CellFormat(18, 6, fmt.Sprint(c.N), "", 1, "R", false, 0, "")
	}
	pdf.Ln(2)
}

func (r *renderer) appointments(rows []AppointmentRow) {
	r.heading("Appointment History")
	if len(rows) == 0 {
		r.empty("No appointments in this period.")
		return
	}
	cols := []column{{"Date", 38}, {"With", 45}, {"Reason", 62}, {"Status", 27}, {"Min", 18}}
	r.table(cols, lo.Map(rows, func(a AppointmentRow, _ int) []string {
		return []string{a.Date.Format("Jan 2, 2006 15:04"), a.Counterpart, a.Reason, string(a.Status), fmt.Sprint(a.DurationMins)}
	}))
}

func (r *renderer) prescriptions(rows []PrescriptionRow) {
	r.heading("Prescription History")
	if len(rows) == 0 {
		r.empty("No prescriptions in this period.")
		return
	}
	cols := []column{{"Issued", 28}, {"By / For", 40}, {"Diagnosis", 42}, {"Medications", 60}, {"Status", 20}}
	r.table(cols, lo.Map(rows, func(p PrescriptionRow, _ int) []string {
		meds := lo.Map(p.Medications, func(m models.Medication, _ int) string { return m.Name + " " + m.Dosage })
		return []string{p.IssuedAt.Format(dateLayout), p.Counterpart, p.Diagnosis, strings.Join(meds, "; "), p.Status}
	}))
}

func (r *renderer) records(rows []RecordRow) {
	r.heading("Medical Records")
	if len(rows) == 0 {
		r.empty("No medical records in this period.")
		return
	}
	cols := []column{{"Visit", 28}, {"By / For", 38}, {"Type", 28}, {"Title", 40}, {"Diagnosis / Treatment", 56}}
	r.table(cols, lo.Map(rows, func(rec RecordRow, _ int) []string {
		detail := strings.Trim(rec.Diagnosis+" / "+rec.Treatment, " /")
		return []string{rec.VisitDate.Format(dateLayout), rec.Counterpart, rec.RecordType, rec.Title, detail}
	}))
}

func (r *renderer) empty(text string) {
	r.pdf.SetFont("Helvetica", "I", 10)
	r.pdf.SetTextColor(mutedText[0], mutedText[1], mutedText[2])
	r.pdf.CellFormat(contentWidth, 6, r.tr(text), "", 1, "L", false, 0, "")
	r.pdf.SetTextColor(0, 0, 0)
}

// table prints a striped table and repeats the header row after page breaks.
func (r *renderer) table(cols []column, rows [][]string) {
	pdf := r.pdf
	header := func() {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(brand[0], brand[1], brand[2])
		pdf.SetTextColor(255, 255, 255)
		for _, c := range cols {
			pdf.CellFormat(c.width, rowHeight, r.tr(c.title), "", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetTextColor(0, 0, 0)
		pdf.SetFont("Helvetica", "", 9)
	}

	r.ensure(rowHeight * 2)
	header()
	for i, row := range rows {
		if r.ensure(rowHeight) {
			header()
		}
		pdf.SetFillColor(zebra[0], zebra[1], zebra[2])
		for j, c := range cols {
			cell := ""
			if j < len(row) {
				cell = r.fit(row[j], c.width-2)
			}
			pdf.CellFormat(c.width, rowHeight, cell, "", 0, "L", i%2 == 1, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(2)
}

// ensure starts a new page when less than h millimetres are left. It
// reports whether it did.
func (r *renderer) ensure(h float64) bool {
	if r.pdf.GetY()+h <= pageHeight-bottomMargin {
		return false
	}
	r.pdf.AddPage()
	return true
}

// fit translates s and shortens it with an ellipsis until it fits width w.
func (r *renderer) fit(s string, w float64) string {
	s = r.tr(s)
	if r.pdf.GetStringWidth(s) <= w {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && r.pdf.GetStringWidth(string(runes)+"...") > w {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}

// Filename is the object name a rendered report is stored under.
func Filename(reportType string, created time.Time) string {
	return fmt.Sprintf("%s-report-%s.pdf", reportType, created.UTC().Format("20060102-150405"))
}
