package vulndb

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Feed is one of the mirrored VulnDB datasets.
type Feed int

const (
	Vendors Feed = iota + 1
	Products
	Vulnerabilities
)

// AllFeeds is the order feeds are mirrored in.
var AllFeeds = []Feed{Vendors, Products, Vulnerabilities}

func (f Feed) String() string {
	switch f {
	case Vendors:
		return "vendors"
	case Products:
		return "products"
	case Vulnerabilities:
		return "vulnerabilities"
	}
	return "unknown"
}

// Kind returns the entity kind the feed's pages carry.
func (f Feed) Kind() EntityKind {
	switch f {
	case Vendors:
		return KindVendor
	case Products:
		return KindProduct
	case Vulnerabilities:
		return KindVulnerability
	}
	return 0
}

func ParseFeed(s string) (Feed, bool) {
	for _, f := range AllFeeds {
		if strings.EqualFold(f.String(), s) {
			return f, true
		}
	}
	return 0, false
}

type EntityKind int

const (
	KindVendor EntityKind = iota + 1
	KindProduct
	KindVersion
	KindVulnerability
)

func (k EntityKind) String() string {
	switch k {
	case KindVendor:
		return "vendor"
	case KindProduct:
		return "product"
	case KindVersion:
		return "version"
	case KindVulnerability:
		return "vulnerability"
	}
	return "unknown"
}

// Entity is a top-level record of a results page.
type Entity interface {
	Kind() EntityKind
}

// Page is one decoded API response.
type Page struct {
	Feed         Feed
	Kind         EntityKind
	Number       int
	TotalEntries int
	RawBody      []byte
	Entities     []Entity

	// Skipped lists vulnerabilities dropped because a CVSS metric could not be normalized.
	Skipped []SkippedRecord
}

type SkippedRecord struct {
	ID  int
	Err error
}

// Optional string fields are nil when missing or blank in the response.

type Vendor struct {
	ID        int       `json:"id"`
	Name      *string   `json:"name,omitempty"`
	ShortName *string   `json:"short_name,omitempty"`
	VendorURL *string   `json:"vendor_url,omitempty"`
	Products  []Product `json:"products,omitempty"`
}

type Product struct {
	ID       int       `json:"id"`
	Name     *string   `json:"name,omitempty"`
	Versions []Version `json:"versions,omitempty"`
}

type Version struct {
	ID       int     `json:"id"`
	Name     *string `json:"name,omitempty"`
	Affected bool    `json:"affected"`
	CPEs     []CPE   `json:"cpe,omitempty"`
}

type CPE struct {
	CPE  *string `json:"cpe,omitempty"`
	Type *string `json:"type,omitempty"`
}

type Vulnerability struct {
	ID                     int                 `json:"vulndb_id"`
	Title                  *string             `json:"title,omitempty"`
	DisclosureDate         *string             `json:"disclosure_date,omitempty"`
	DiscoveryDate          *string             `json:"discovery_date,omitempty"`
	ExploitPublishDate     *string             `json:"exploit_publish_date,omitempty"`
	Keywords               *string             `json:"keywords,omitempty"`
	ShortDescription       *string             `json:"short_description,omitempty"`
	Description            *string             `json:"description,omitempty"`
	Solution               *string             `json:"solution,omitempty"`
	ManualNotes            *string             `json:"manual_notes,omitempty"`
	TechnicalDescription   *string             `json:"t_description,omitempty"`
	SolutionDate           *string             `json:"solution_date,omitempty"`
	VendorInformedDate     *string             `json:"vendor_informed_date,omitempty"`
	VendorAckDate          *string             `json:"vendor_ack_date,omitempty"`
	ThirdPartySolutionDate *string             `json:"third_party_solution_date,omitempty"`
	Classifications        []Classification    `json:"classifications,omitempty"`
	Authors                []Author            `json:"authors,omitempty"`
	ExtReferences          []ExternalReference `json:"ext_references,omitempty"`
	ExtTexts               []ExternalText      `json:"ext_texts,omitempty"`
	CvssV2Metrics          []CvssV2Metric      `json:"cvss_metrics,omitempty"`
	CvssV3Metrics          []CvssV3Metric      `json:"cvss_version_three_metrics,omitempty"`
	NvdAdditionalInfo      *NvdAdditionalInfo  `json:"nvd_additional_information,omitempty"`
	Vendors                []Vendor            `json:"vendors,omitempty"`
}

type Classification struct {
	ID          int     `json:"id"`
	Name        *string `json:"name,omitempty"`
	Longname    *string `json:"longname,omitempty"`
	Description *string `json:"description,omitempty"`
	Mediumtext  *string `json:"mediumtext,omitempty"`
}

type Author struct {
	ID         int     `json:"id"`
	Name       *string `json:"name,omitempty"`
	Company    *string `json:"company,omitempty"`
	Email      *string `json:"email,omitempty"`
	CompanyURL *string `json:"company_url,omitempty"`
	Country    *string `json:"country,omitempty"`
}

type ExternalReference struct {
	Type  *string `json:"type,omitempty"`
	Value *string `json:"value,omitempty"`
}

type ExternalText struct {
	Type  *string `json:"type,omitempty"`
	Value *string `json:"value,omitempty"`
}

type NvdAdditionalInfo struct {
	Summary *string `json:"summary,omitempty"`
	CweID   *string `json:"cwe_id,omitempty"`
	CveID   *string `json:"cve_id,omitempty"`
}

// CvssV2Metric is a CVSS v2 score in VulnDB's own encoding.
type CvssV2Metric struct {
	ID                      int      `json:"id"`
	AccessVector            *string  `json:"access_vector,omitempty"`
	AccessComplexity        *string  `json:"access_complexity,omitempty"`
	Authentication          *string  `json:"authentication,omitempty"`
	ConfidentialityImpact   *string  `json:"confidentiality_impact,omitempty"`
	IntegrityImpact         *string  `json:"integrity_impact,omitempty"`
	AvailabilityImpact      *string  `json:"availability_impact,omitempty"`
	Score                   *float64 `json:"score,omitempty"`
	CalculatedCvssBaseScore *float64 `json:"calculated_cvss_base_score,omitempty"`
	CveID                   *string  `json:"cve_id,omitempty"`
	Source                  *string  `json:"source,omitempty"`
	GeneratedOn             *string  `json:"generated_on,omitempty"`
}

// CvssV3Metric is a CVSS v3 score in VulnDB's own encoding.
type CvssV3Metric struct {
	ID                      int      `json:"id"`
	AttackVector            *string  `json:"attack_vector,omitempty"`
	AttackComplexity        *string  `json:"attack_complexity,omitempty"`
	PrivilegesRequired      *string  `json:"privileges_required,omitempty"`
	UserInteraction         *string  `json:"user_interaction,omitempty"`
	Scope                   *string  `json:"scope,omitempty"`
	ConfidentialityImpact   *string  `json:"confidentiality_impact,omitempty"`
	IntegrityImpact         *string  `json:"integrity_impact,omitempty"`
	AvailabilityImpact      *string  `json:"availability_impact,omitempty"`
	Score                   *float64 `json:"score,omitempty"`
	CalculatedCvssBaseScore *float64 `json:"calculated_cvss_base_score,omitempty"`
	CveID                   *string  `json:"cve_id,omitempty"`
	Source                  *string  `json:"source,omitempty"`
	GeneratedOn             *string  `json:"generated_on,omitempty"`
}

// Status is the account status reported by the API.
type Status struct {
	OrganizationName        *string
	UserNameRequesting      *string
	UserEmailRequesting     *string
	SubscriptionEndDate     *string
	APICallsAllowedPerMonth *string
	APICallsMadeThisMonth   *string
	VulnDBStatistics        *string
	RawStatus               []byte
}

func (Vendor) Kind() EntityKind        { return KindVendor }
func (Product) Kind() EntityKind       { return KindProduct }
func (Version) Kind() EntityKind       { return KindVersion }
func (Vulnerability) Kind() EntityKind { return KindVulnerability }

func (v Vulnerability) Disclosed() (time.Time, bool) {
	return parseDate(v.DisclosureDate)
}

func (v Vulnerability) Discovered() (time.Time, bool) {
	return parseDate(v.DiscoveryDate)
}

func (v Vulnerability) Solved() (time.Time, bool) {
	return parseDate(v.SolutionDate)
}

func (s Status) SubscriptionEnd() (time.Time, bool) {
	return parseDate(s.SubscriptionEndDate)
}

// parseDate accepts the several date layouts VulnDB uses across fields.
func parseDate(s *string) (time.Time, bool) {
	if s == nil {
		return time.Time{}, false
	}
	t, err := dateparse.ParseAny(*s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
