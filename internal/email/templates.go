package email

import (
	"bytes"
	"cmp"
	"embed"
	"fmt"
	"html/template"
	"slices"
)

const subjectVIPAlertFmt = "VIP lead: %s (score %d)"

//go:embed templates/*.html
var templateFS embed.FS

var vipAlertTemplate = template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/vip_alert.html"))

type breakdownRow struct {
	Rule   string
	Points int
}

type vipAlertData struct {
	Title      string
	Heading    string
	Subheading string
	CTALabel   string
	CTAURL     string

	SessionID string
	Email     string
	Score     int
	Tier      string
	AlertType string
	Breakdown []breakdownRow
}

// sortedBreakdown lists the highest contributions first, ties by rule name.
func sortedBreakdown(breakdown map[string]int) []breakdownRow {
	rows := make([]breakdownRow, 0, len(breakdown))
	for rule, points := range breakdown {
		rows = append(rows, breakdownRow{Rule: rule, Points: points})
	}
	slices.SortFunc(rows, func(a, b breakdownRow) int {
		return cmp.Or(cmp.Compare(b.Points, a.Points), cmp.Compare(a.Rule, b.Rule))
	})
	return rows
}

func renderVIPAlert(alert VIPAlert) (subject, html string, err error) {
	who := cmp.Or(alert.Email, "anonymous visitor")

	var buf bytes.Buffer
	err = vipAlertTemplate.ExecuteTemplate(&buf, "email", vipAlertData{
		Title:      "VIP lead detected",
		Heading:    "A visitor just crossed the VIP threshold",
		Subheading: who,
		CTALabel:   "Review alert",
		CTAURL:     alert.DashboardURL,
		SessionID:  alert.SessionID,
		Email:      alert.Email,
		Score:      alert.Score,
		Tier:       alert.Tier,
		AlertType:  alert.AlertType,
		Breakdown:  sortedBreakdown(alert.Breakdown),
	})
	if err != nil {
		return "", "", fmt.Errorf("render vip alert email: %w", err)
	}
	return fmt.Sprintf(subjectVIPAlertFmt, who, alert.Score), buf.String(), nil
}
