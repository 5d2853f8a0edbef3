package scoring

import (
	"math"
	"reflect"
	"testing"

	"concierge_backend/internal/leadscores/signals"
)

func TestComputeHighIntentExample(t *testing.T) {
	snap := signals.Snapshot{
		PagesVisited:       []string{"/pricing"},
		TimeOnSiteSeconds:  650,
		ScrollDepthPercent: 95,
		ReturnVisits:       3,
		UTMSource:          "linkedin",
	}

	got := Compute(snap)
	want := map[string]int{
		RulePricingPage:      15,
		RuleTimeEngagement:   15,
		RuleScrollDepth:      8,
		RuleReturnVisitor:    20,
		RuleMultipleSessions: 15,
		RuleUTMQuality:       25,
	}
	if !reflect.DeepEqual(got.Breakdown, want) {
		t.Fatalf("unexpected breakdown: %v", got.Breakdown)
	}
	if got.Total != 98 || got.Tier != TierQualified {
		t.Fatalf("expected 98/qualified, got %d/%s", got.Total, got.Tier)
	}

	vip := ClassifyVIP(got)
	if !vip.IsVIP || vip.AlertType != AlertUltraHighIntent {
		t.Fatalf("expected ultra VIP, got %+v", vip)
	}
}

func TestComputeEmptySnapshot(t *testing.T) {
	got := Compute(signals.Snapshot{})
	if got.Total != 0 || got.Tier != TierCold || len(got.Breakdown) != 0 {
		t.Fatalf("expected empty cold score, got %+v", got)
	}
	if vip := ClassifyVIP(got); vip.IsVIP || vip.AlertType != AlertNone {
		t.Fatalf("expected no VIP, got %+v", vip)
	}
}

func TestFormInteractionIsCapped(t *testing.T) {
	got := Compute(signals.Snapshot{FormInteractions: 10})
	if got.Breakdown[RuleFormInteraction] != 25 {
		t.Fatalf("expected cap of 25, got %d", got.Breakdown[RuleFormInteraction])
	}

	got = Compute(signals.Snapshot{FormInteractions: 2})
	if got.Breakdown[RuleFormInteraction] != 10 {
		t.Fatalf("expected 10 for two interactions, got %d", got.Breakdown[RuleFormInteraction])
	}

	for _, n := range []int{math.MaxInt / 5, math.MaxInt/5 + 1, 3689348814741910324, math.MaxInt} {
		got := Compute(signals.Snapshot{FormInteractions: n})
		if got.Breakdown[RuleFormInteraction] != 25 || got.Total != 25 {
			t.Fatalf("n=%d: expected cap of 25, got %d total=%d", n, got.Breakdown[RuleFormInteraction], got.Total)
		}
	}
}

func TestBandedRulesDoNotStack(t *testing.T) {
	cases := []struct {
		seconds, scroll       int
		wantTime, wantScroll  int
	}{
		{seconds: 119, scroll: 49, wantTime: 0, wantScroll: 0},
		{seconds: 120, scroll: 50, wantTime: 5, wantScroll: 3},
		{seconds: 300, scroll: 75, wantTime: 10, wantScroll: 5},
		{seconds: 599, scroll: 89, wantTime: 10, wantScroll: 5},
		{seconds: 3600, scroll: 100, wantTime: 15, wantScroll: 8},
	}

	for _, tc := range cases {
		got := Compute(signals.Snapshot{TimeOnSiteSeconds: tc.seconds, ScrollDepthPercent: tc.scroll})
		if got.Breakdown[RuleTimeEngagement] != tc.wantTime || got.Breakdown[RuleScrollDepth] != tc.wantScroll {
			t.Fatalf("seconds=%d scroll=%d: got time=%d scroll=%d", tc.seconds, tc.scroll,
				got.Breakdown[RuleTimeEngagement], got.Breakdown[RuleScrollDepth])
		}
		if got.Total != tc.wantTime+tc.wantScroll {
			t.Fatalf("seconds=%d scroll=%d: total %d includes stacked bands", tc.seconds, tc.scroll, got.Total)
		}
	}
}

func TestUTMQualityPriority(t *testing.T) {
	cases := []struct {
		source, medium string
		want           int
	}{
		{"LinkedIn", "email", 25},
		{"google", "cpc", 20},
		{"google", "organic", 0},
		{"partner-site", "referral", 15},
		{"newsletter", "", 10},
		{"", "email", 10},
		{"", "", 0},
	}
	for _, tc := range cases {
		got := Compute(signals.Snapshot{UTMSource: tc.source, UTMMedium: tc.medium}).Breakdown[RuleUTMQuality]
		if got != tc.want {
			t.Fatalf("%q/%q: expected %d, got %d", tc.source, tc.medium, tc.want, got)
		}
	}
}

func TestPageRulesFireOncePerSnapshot(t *testing.T) {
	got := Compute(signals.Snapshot{
		PagesVisited: []string{"/pricing", "/membership", "/services", "/services/yacht", "/contact", "/apply", "/trial"},
	})
	want := map[string]int{
		RulePricingPage:  15,
		RuleServicesPage: 10,
		RuleContactPage:  10,
		RuleTrialPage:    20,
	}
	if !reflect.DeepEqual(got.Breakdown, want) {
		t.Fatalf("unexpected breakdown: %v", got.Breakdown)
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	snap := signals.Snapshot{
		PagesVisited:     []string{"/contact", "/pricing"},
		ServicesViewed:   4,
		FormInteractions: 3,
		TrialStarted:     true,
	}
	first := Compute(snap)
	for i := 0; i < 20; i++ {
		if again := Compute(snap); !reflect.DeepEqual(again, first) {
			t.Fatalf("run %d differs: %+v vs %+v", i, again, first)
		}
	}
}

func TestTierAndVIPScalesAreSeparate(t *testing.T) {
	cases := []struct {
		total     int
		tier      Tier
		alertType AlertType
	}{
		{24, TierCold, AlertNone},
		{25, TierWarm, AlertNone},
		{50, TierHot, AlertNone},
		{70, TierHot, AlertQualifiedLead},
		{79, TierHot, AlertQualifiedLead},
		{80, TierQualified, AlertHighIntent},
		{89, TierQualified, AlertHighIntent},
		{90, TierQualified, AlertUltraHighIntent},
	}
	for _, tc := range cases {
		if got := TierFor(tc.total); got != tc.tier {
			t.Fatalf("total %d: expected tier %s, got %s", tc.total, tc.tier, got)
		}
		vip := ClassifyVIP(LeadScore{Total: tc.total})
		if vip.AlertType != tc.alertType || vip.IsVIP != (tc.total >= VIPQualifiedThreshold) {
			t.Fatalf("total %d: unexpected classification %+v", tc.total, vip)
		}
	}
}

func TestVIPNeverRevokedByMerge(t *testing.T) {
	base := signals.Snapshot{
		PagesVisited:      []string{"/pricing", "/contact"},
		TimeOnSiteSeconds: 700,
		ReturnVisits:      3,
		FormInteractions:  2,
	}
	if !ClassifyVIP(Compute(base)).IsVIP {
		t.Fatal("expected base snapshot to be VIP")
	}

	additions := []signals.Snapshot{
		{},
		{PagesVisited: []string{"/about"}},
		{TimeOnSiteSeconds: 10, ScrollDepthPercent: 20},
		{UTMSource: "newsletter"},
	}
	for _, add := range additions {
		merged := signals.Merge(base, add)
		if !ClassifyVIP(Compute(merged)).IsVIP {
			t.Fatalf("merge with %+v revoked VIP", add)
		}
	}
}

func TestAlertTypeRankRoundTrip(t *testing.T) {
	for _, a := range []AlertType{AlertQualifiedLead, AlertHighIntent, AlertUltraHighIntent} {
		if AlertTypeForRank(a.Rank()) != a {
			t.Fatalf("rank round trip failed for %s", a)
		}
	}
	if AlertQualifiedLead.Rank() >= AlertHighIntent.Rank() || AlertHighIntent.Rank() >= AlertUltraHighIntent.Rank() {
		t.Fatal("expected severities in ascending rank order")
	}
}
