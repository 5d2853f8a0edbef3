// Package scoring turns a signal snapshot into a lead score, a tier and a
// VIP classification. Everything here is pure and deterministic.
package scoring

import (
	"strings"

	"concierge_backend/internal/leadscores/signals"
)

// Version identifies the rule table. It is stored with every score so
// records computed under older rules can be recognised.
const Version = "2026.1"

// Breakdown keys.
const (
	RulePricingPage         = "pricing_page"
	RuleServicesPage        = "services_page"
	RuleContactPage         = "contact_page"
	RuleTrialPage           = "trial_page"
	RuleServicesViewed3Plus = "services_viewed_3plus"
	RuleTimeEngagement      = "time_engagement"
	RuleScrollDepth         = "scroll_depth"
	RuleReturnVisitor       = "return_visitor"
	RuleMultipleSessions    = "multiple_sessions"
	RuleUTMQuality          = "utm_quality"
	RuleFormInteraction     = "form_interaction"
	RuleTrialStarted        = "trial_started"
)

// Tier is the coarse engagement bucket derived from the total score.
type Tier string

const (
	TierCold      Tier = "cold"
	TierWarm      Tier = "warm"
	TierHot       Tier = "hot"
	TierQualified Tier = "qualified"
)

// IsValid reports whether t is a known tier.
func (t Tier) IsValid() bool {
	switch t {
	case TierCold, TierWarm, TierHot, TierQualified:
		return true
	}
	return false
}

// LeadScore is the result of scoring one snapshot. Total always equals the
// sum of Breakdown.
type LeadScore struct {
	Total     int            `json:"total"`
	Breakdown map[string]int `json:"breakdown"`
	Tier      Tier           `json:"tier"`
	Version   string         `json:"version"`
}

type rule struct {
	key  string
	eval func(signals.Snapshot) int
}

type band struct {
	min    int
	points int
}

// highestBand returns the points of the highest band v reaches. bands are
// ordered from highest threshold to lowest.
func highestBand(v int, bands []band) int {
	for _, b := range bands {
		if v >= b.min {
			return b.points
		}
	}
	return 0
}

var timeBands = []band{{min: 600, points: 15}, {min: 300, points: 10}, {min: 120, points: 5}}

var scrollBands = []band{{min: 90, points: 8}, {min: 75, points: 5}, {min: 50, points: 3}}

var rules = []rule{
	{RulePricingPage, pageRule(15, "pricing", "membership")},
	{RuleServicesPage, pageRule(10, "services")},
	{RuleContactPage, pageRule(10, "contact")},
	{RuleTrialPage, pageRule(20, "trial", "apply")},
	{RuleServicesViewed3Plus, func(s signals.Snapshot) int {
		if s.ServicesViewed >= 3 {
			return 10
		}
		return 0
	}},
	{RuleTimeEngagement, func(s signals.Snapshot) int { return highestBand(s.TimeOnSiteSeconds, timeBands) }},
	{RuleScrollDepth, func(s signals.Snapshot) int { return highestBand(s.ScrollDepthPercent, scrollBands) }},
	{RuleReturnVisitor, func(s signals.Snapshot) int {
		if s.ReturnVisits >= 1 {
			return 20
		}
		return 0
	}},
	{RuleMultipleSessions, func(s signals.Snapshot) int {
		if s.ReturnVisits >= 3 {
			return 15
		}
		return 0
	}},
	{RuleUTMQuality, func(s signals.Snapshot) int { return utmPoints(s.UTMSource, s.UTMMedium) }},
	{RuleFormInteraction, func(s signals.Snapshot) int { return min(s.FormInteractions, 5) * 5 }},
	{RuleTrialStarted, func(s signals.Snapshot) int {
		if s.TrialStarted {
			return 30
		}
		return 0
	}},
}

// Compute scores a snapshot. Only rules awarding points appear in the breakdown.
func Compute(snap signals.Snapshot) LeadScore {
	snap = snap.Normalize()

	score := LeadScore{
		Breakdown: make(map[string]int),
		Version:   Version,
	}
	for _, r := range rules {
		if pts := r.eval(snap); pts > 0 {
			score.Breakdown[r.key] = pts
			score.Total += pts
		}
	}
	score.Tier = TierFor(score.Total)
	return score
}

// TierFor maps a total score to its tier.
func TierFor(total int) Tier {
	switch {
	case total >= 80:
		return TierQualified
	case total >= 50:
		return TierHot
	case total >= 25:
		return TierWarm
	default:
		return TierCold
	}
}

// pageRule awards points when any visited path contains one of the keywords.
func pageRule(points int, keywords ...string) func(signals.Snapshot) int {
	return func(s signals.Snapshot) int {
		for _, p := range s.PagesVisited {
			lower := strings.ToLower(p)
			for _, kw := range keywords {
				if strings.Contains(lower, kw) {
					return points
				}
			}
		}
		return 0
	}
}

// utmPoints grades campaign attribution. The first matching channel wins.
func utmPoints(source, medium string) int {
	src := strings.ToLower(strings.TrimSpace(source))
	med := strings.ToLower(strings.TrimSpace(medium))

	switch {
	case strings.Contains(src, "linkedin"):
		return 25
	case strings.Contains(src, "google") && isPaidMedium(med):
		return 20
	case med == "referral" || src == "referral":
		return 15
	case med == "email" || src == "email" || src == "newsletter":
		return 10
	default:
		return 0
	}
}

func isPaidMedium(med string) bool {
	switch med {
	case "cpc", "ppc", "paid", "paidsearch", "paid_search":
		return true
	}
	return false
}
