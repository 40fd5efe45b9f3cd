package guard

import (
	"strings"

	"github.com/oarkflow/guard/utils"
)

// ComplianceConfig holds the regulatory thresholds the checker applies.
type ComplianceConfig struct {
	MinRetentionDays                int      `json:"min_retention_days" yaml:"min_retention_days"`
	MaxRetentionDays                int      `json:"max_retention_days" yaml:"max_retention_days"`
	RestrictedCountries             []string `json:"restricted_countries" yaml:"restricted_countries"`
	ExportControlledClassifications []string `json:"export_controlled_classifications" yaml:"export_controlled_classifications"`
	LawfulBases                     []string `json:"lawful_bases" yaml:"lawful_bases"`
}

// DefaultComplianceConfig returns the built-in thresholds.
func DefaultComplianceConfig() ComplianceConfig {
	return ComplianceConfig{
		MinRetentionDays:                30,
		MaxRetentionDays:                365,
		RestrictedCountries:             []string{"CU", "IR", "KP", "SY"},
		ExportControlledClassifications: []string{"restricted", "secret"},
		LawfulBases: []string{
			"consent", "contract", "legal_obligation",
			"vital_interests", "public_task", "legitimate_interests",
		},
	}
}

// Compliance check names.
const (
	CheckRetention     = "retention"
	CheckGDPR          = "gdpr"
	CheckExportControl = "export_control"
)

// Violation messages.
const (
	ViolationRetentionTooShort = "retention period too short"
	ViolationRetentionTooLong  = "retention period too long"
	ViolationNoLawfulBasis     = "missing lawful basis for processing personal data"
	ViolationNoConsent         = "consent basis without recorded user consent"
	ViolationTransferSafeguard = "cross-border transfer without safeguards"
	ViolationDataAccess        = "data access policy denied"
	ViolationRestrictedCountry = "destination country is export restricted"
	ViolationExportLicense     = "export-controlled data requires a license"
)

// ComplianceResult is the outcome of one check.
type ComplianceResult struct {
	Check      string   `json:"check"`
	Compliant  bool     `json:"compliant"`
	Violations []string `json:"violations,omitempty"`
}

func (r *ComplianceResult) violate(msg string) {
	r.Compliant = false
	r.Violations = append(r.Violations, msg)
}

// ComplianceReport aggregates every check that applied to a request.
type ComplianceReport struct {
	Compliant bool               `json:"compliant"`
	Results   []ComplianceResult `json:"results"`
}

// ComplianceChecker answers regulatory questions by composing security
// policies with simple predicates over the request context.
type ComplianceChecker struct {
	policies *PolicyRegistry
	cfg      ComplianceConfig
}

func NewComplianceChecker(policies *PolicyRegistry, cfg ComplianceConfig) *ComplianceChecker {
	if policies == nil {
		policies = NewPolicyRegistry()
	}
	def := DefaultComplianceConfig()
	if cfg.MinRetentionDays <= 0 {
		cfg.MinRetentionDays = def.MinRetentionDays
	}
	if cfg.MaxRetentionDays <= 0 {
		cfg.MaxRetentionDays = def.MaxRetentionDays
	}
	if cfg.RestrictedCountries == nil {
		cfg.RestrictedCountries = def.RestrictedCountries
	}
	if cfg.ExportControlledClassifications == nil {
		cfg.ExportControlledClassifications = def.ExportControlledClassifications
	}
	if cfg.LawfulBases == nil {
		cfg.LawfulBases = def.LawfulBases
	}
	return &ComplianceChecker{policies: policies, cfg: cfg}
}

// Config returns the thresholds in use.
func (c *ComplianceChecker) Config() ComplianceConfig {
	return c.cfg
}

// CheckRetention verifies a retention period lies within [min, max] days.
func (c *ComplianceChecker) CheckRetention(days int) ComplianceResult {
	res := ComplianceResult{Check: CheckRetention, Compliant: true}
	switch {
	case days < c.cfg.MinRetentionDays:
		res.violate(ViolationRetentionTooShort)
	case days > c.cfg.MaxRetentionDays:
		res.violate(ViolationRetentionTooLong)
	}
	return res
}

// CheckGDPR verifies personal data processing has a lawful basis, consent
// when that is the basis, safeguards for cross-border transfers, and passes
// the data access policy.
func (c *ComplianceChecker) CheckGDPR(attrs Attrs) ComplianceResult {
	res := ComplianceResult{Check: CheckGDPR, Compliant: true}
	if attrs.Bool("contains_personal_data") {
		basis, _ := attrs.String("lawful_basis")
		switch {
		case !containsString(c.cfg.LawfulBases, basis):
			res.violate(ViolationNoLawfulBasis)
		case basis == "consent" && !attrs.Bool("user_consent"):
			res.violate(ViolationNoConsent)
		}
		if attrs.Bool("cross_border_transfer") &&
			!attrs.Bool("adequacy_decision") && !attrs.Bool("standard_contractual_clauses") {
			res.violate(ViolationTransferSafeguard)
		}
	}
	if _, ok := attrs.Get(AttrDataClassification); ok && !c.policies.CheckPolicy(PolicyDataAccess, attrs) {
		res.violate(ViolationDataAccess)
	}
	return res
}

// CheckExportControl verifies the destination is not embargoed and that
// export-controlled classifications carry a license.
func (c *ComplianceChecker) CheckExportControl(attrs Attrs) ComplianceResult {
	res := ComplianceResult{Check: CheckExportControl, Compliant: true}
	if country, ok := attrs.String("destination_country"); ok {
		if containsFold(c.cfg.RestrictedCountries, country) {
			res.violate(ViolationRestrictedCountry)
		}
	}
	if class, ok := attrs.String(AttrDataClassification); ok {
		if containsFold(c.cfg.ExportControlledClassifications, class) && !attrs.Bool("export_license") {
			res.violate(ViolationExportLicense)
		}
	}
	return res
}

// Run executes every applicable check. Retention is checked only when
// attrs carries "retention_days".
func (c *ComplianceChecker) Run(attrs Attrs) ComplianceReport {
	results := []ComplianceResult{c.CheckGDPR(attrs), c.CheckExportControl(attrs)}
	if v, ok := attrs.Get("retention_days"); ok {
		if days, isNum := utils.ToNumber(v); isNum {
			results = append(results, c.CheckRetention(int(days)))
		}
	}
	report := ComplianceReport{Compliant: true, Results: results}
	for _, r := range results {
		if !r.Compliant {
			report.Compliant = false
		}
	}
	return report
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
