package scoring

// VIP thresholds. They use their own scale, separate from tier boundaries:
// a 70-point lead is VIP while its tier is still "hot".
const (
	VIPQualifiedThreshold = 70
	VIPHotThreshold       = 80
	VIPUltraThreshold     = 90
)

// AlertType is the severity of a VIP alert. The zero value means no alert.
type AlertType string

const (
	AlertNone            AlertType = ""
	AlertQualifiedLead   AlertType = "qualified_lead"
	AlertHighIntent      AlertType = "high_intent"
	AlertUltraHighIntent AlertType = "ultra_high_intent"
)

// Rank orders alert types by severity; AlertNone ranks 0.
func (a AlertType) Rank() int {
	switch a {
	case AlertQualifiedLead:
		return 1
	case AlertHighIntent:
		return 2
	case AlertUltraHighIntent:
		return 3
	default:
		return 0
	}
}

// IsValid reports whether a is a concrete alert type.
func (a AlertType) IsValid() bool {
	return a.Rank() > 0
}

// AlertTypeForRank is the inverse of Rank.
func AlertTypeForRank(rank int) AlertType {
	switch rank {
	case 1:
		return AlertQualifiedLead
	case 2:
		return AlertHighIntent
	case 3:
		return AlertUltraHighIntent
	default:
		return AlertNone
	}
}

// VIPClassification is the VIP verdict for one score.
type VIPClassification struct {
	IsVIP     bool      `json:"isVip"`
	AlertType AlertType `json:"alertType,omitempty"`
}

// ClassifyVIP picks the highest threshold the score crosses.
func ClassifyVIP(score LeadScore) VIPClassification {
	switch total := score.Total; {
	case total >= VIPUltraThreshold:
		return VIPClassification{IsVIP: true, AlertType: AlertUltraHighIntent}
	case total >= VIPHotThreshold:
		return VIPClassification{IsVIP: true, AlertType: AlertHighIntent}
	case total >= VIPQualifiedThreshold:
		return VIPClassification{IsVIP: true, AlertType: AlertQualifiedLead}
	default:
		return VIPClassification{}
	}
}
