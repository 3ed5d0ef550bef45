package vulndb

import (
	"bytes"
	"encoding/json"
	"fmt"

	"golang.org/x/xerrors"

	"github.com/aquasecurity/vulndb-mirror/utils"
)

type rawPage struct {
	CurrentPage  *int               `json:"current_page"`
	TotalEntries *int               `json:"total_entries"`
	Results      *[]json.RawMessage `json:"results"`
}

type rawVendor struct {
	ID        *int         `json:"id"`
	Name      *string      `json:"name"`
	ShortName *string      `json:"short_name"`
	VendorURL *string      `json:"vendor_url"`
	Products  []rawProduct `json:"products"`
}

type rawProduct struct {
	ID       *int         `json:"id"`
	Name     *string      `json:"name"`
	Versions []rawVersion `json:"versions"`
}

type rawVersion struct {
	ID       *int    `json:"id"`
	Name     *string `json:"name"`
	Affected *bool   `json:"affected"`
	CPEs     []CPE   `json:"cpe"`
}

type rawVulnerability struct {
	ID                     *int                `json:"vulndb_id"`
	Title                  *string             `json:"title"`
	DisclosureDate         *string             `json:"disclosure_date"`
	DiscoveryDate          *string             `json:"discovery_date"`
	ExploitPublishDate     *string             `json:"exploit_publish_date"`
	Keywords               *string             `json:"keywords"`
	ShortDescription       *string             `json:"short_description"`
	Description            *string             `json:"description"`
	Solution               *string             `json:"solution"`
	ManualNotes            *string             `json:"manual_notes"`
	TechnicalDescription   *string             `json:"t_description"`
	SolutionDate           *string             `json:"solution_date"`
	VendorInformedDate     *string             `json:"vendor_informed_date"`
	VendorAckDate          *string             `json:"vendor_ack_date"`
	ThirdPartySolutionDate *string             `json:"third_party_solution_date"`
	Classifications        []rawClassification `json:"classifications"`
	Authors                []rawAuthor         `json:"authors"`
	ExtReferences          []ExternalReference `json:"ext_references"`
	ExtTexts               []ExternalText      `json:"ext_texts"`
	CvssV2Metrics          []rawCvssV2Metric   `json:"cvss_metrics"`
	CvssV3Metrics          []rawCvssV3Metric   `json:"cvss_version_three_metrics"`
	NvdAdditionalInfo      []NvdAdditionalInfo `json:"nvd_additional_information"`
	Vendors                []rawVendor         `json:"vendors"`
}

type rawClassification struct {
	ID *int `json:"id"`
	Classification
}

type rawAuthor struct {
	ID *int `json:"id"`
	Author
}

type rawCvssV2Metric struct {
	ID *int `json:"id"`
	CvssV2Metric
}

type rawCvssV3Metric struct {
	ID *int `json:"id"`
	CvssV3Metric
}

type rawStatus struct {
	OrganizationName        json.RawMessage `json:"organization_name"`
	UserNameRequesting      json.RawMessage `json:"user_name_requesting"`
	UserEmailRequesting     json.RawMessage `json:"user_email_address_requesting"`
	SubscriptionEndDate     json.RawMessage `json:"subscription_end_date"`
	APICallsAllowedPerMonth json.RawMessage `json:"number_of_api_calls_allowed_per_month"`
	APICallsMadeThisMonth   json.RawMessage `json:"number_of_api_calls_made_this_month"`
	VulnDBStatistics        json.RawMessage `json:"vulndb_statistics"`
}

// ParsePage decodes one results page. Any missing metadata, wrongly typed
// field or undecodable item rejects the whole page with *MalformedPageError.
func ParsePage(body []byte, kind EntityKind) (Page, error) {
	var rp rawPage
	if err := json.Unmarshal(body, &rp); err != nil {
		return Page{}, &MalformedPageError{Reason: "invalid page JSON", Err: err}
	}
	switch {
	case rp.CurrentPage == nil:
		return Page{}, &MalformedPageError{Reason: "current_page is missing"}
	case rp.TotalEntries == nil:
		return Page{}, &MalformedPageError{Reason: "total_entries is missing"}
	case rp.Results == nil:
		return Page{}, &MalformedPageError{Reason: "results is missing"}
	case *rp.CurrentPage < 1:
		return Page{}, &MalformedPageError{Reason: fmt.Sprintf("invalid current_page %d", *rp.CurrentPage)}
	case *rp.TotalEntries < 0:
		return Page{}, &MalformedPageError{Reason: fmt.Sprintf("invalid total_entries %d", *rp.TotalEntries)}
	}

	page := Page{
		Kind:         kind,
		Number:       *rp.CurrentPage,
		TotalEntries: *rp.TotalEntries,
		RawBody:      body,
		Entities:     make([]Entity, 0, len(*rp.Results)),
	}

	for i, item := range *rp.Results {
		entity, err := parseEntity(item, kind)
		if err != nil {
			return Page{}, &MalformedPageError{Reason: fmt.Sprintf("%s at results[%d]", kind, i), Err: err}
		}
		page.Entities = append(page.Entities, entity)
	}
	return page, nil
}

func parseEntity(item json.RawMessage, kind EntityKind) (Entity, error) {
	switch kind {
	case KindVendor:
		var rv rawVendor
		if err := json.Unmarshal(item, &rv); err != nil {
			return nil, err
		}
		return rv.convert()
	case KindProduct:
		var rp rawProduct
		if err := json.Unmarshal(item, &rp); err != nil {
			return nil, err
		}
		return rp.convert()
	case KindVersion:
		var rv rawVersion
		if err := json.Unmarshal(item, &rv); err != nil {
			return nil, err
		}
		return rv.convert()
	case KindVulnerability:
		var rv rawVulnerability
		if err := json.Unmarshal(item, &rv); err != nil {
			return nil, err
		}
		return rv.convert()
	}
	return nil, xerrors.Errorf("unsupported entity kind %d", kind)
}

func requireID(id *int, field string) (int, error) {
	if id == nil {
		return 0, xerrors.Errorf("%s is missing", field)
	}
	return *id, nil
}

func (rv rawVendor) convert() (Vendor, error) {
	id, err := requireID(rv.ID, "id")
	if err != nil {
		return Vendor{}, err
	}
	products, err := convertProducts(rv.Products)
	if err != nil {
		return Vendor{}, xerrors.Errorf("vendor %d: %w", id, err)
	}
	return Vendor{
		ID:        id,
		Name:      utils.TrimToNil(rv.Name),
		ShortName: utils.TrimToNil(rv.ShortName),
		VendorURL: utils.TrimToNil(rv.VendorURL),
		Products:  products,
	}, nil
}

func convertVendors(rvs []rawVendor) ([]Vendor, error) {
	if rvs == nil {
		return nil, nil
	}
	vendors := make([]Vendor, 0, len(rvs))
	for i, rv := range rvs {
		v, err := rv.convert()
		if err != nil {
			return nil, xerrors.Errorf("vendors[%d]: %w", i, err)
		}
		vendors = append(vendors, v)
	}
	return vendors, nil
}

func (rp rawProduct) convert() (Product, error) {
	id, err := requireID(rp.ID, "id")
	if err != nil {
		return Product{}, err
	}
	p := Product{
		ID:   id,
		Name: utils.TrimToNil(rp.Name),
	}
	if rp.Versions != nil {
		p.Versions = make([]Version, 0, len(rp.Versions))
		for i, rv := range rp.Versions {
			v, err := rv.convert()
			if err != nil {
				return Product{}, xerrors.Errorf("product %d: versions[%d]: %w", id, i, err)
			}
			p.Versions = append(p.Versions, v)
		}
	}
	return p, nil
}

func convertProducts(rps []rawProduct) ([]Product, error) {
	if rps == nil {
		return nil, nil
	}
	products := make([]Product, 0, len(rps))
	for i, rp := range rps {
		p, err := rp.convert()
		if err != nil {
			return nil, xerrors.Errorf("products[%d]: %w", i, err)
		}
		products = append(products, p)
	}
	return products, nil
}

func (rv rawVersion) convert() (Version, error) {
	id, err := requireID(rv.ID, "id")
	if err != nil {
		return Version{}, err
	}
	v := Version{
		ID:   id,
		Name: utils.TrimToNil(rv.Name),
	}
	if rv.Affected != nil {
		v.Affected = *rv.Affected
	}
	if rv.CPEs != nil {
		v.CPEs = make([]CPE, 0, len(rv.CPEs))
		for _, c := range rv.CPEs {
			v.CPEs = append(v.CPEs, CPE{
				CPE:  utils.TrimToNil(c.CPE),
				Type: utils.TrimToNil(c.Type),
			})
		}
	}
	return v, nil
}

func (rv rawVulnerability) convert() (Vulnerability, error) {
	id, err := requireID(rv.ID, "vulndb_id")
	if err != nil {
		return Vulnerability{}, err
	}

	v := Vulnerability{
		ID:                     id,
		Title:                  utils.TrimToNil(rv.Title),
		DisclosureDate:         utils.TrimToNil(rv.DisclosureDate),
		DiscoveryDate:          utils.TrimToNil(rv.DiscoveryDate),
		ExploitPublishDate:     utils.TrimToNil(rv.ExploitPublishDate),
		Keywords:               utils.TrimToNil(rv.Keywords),
		ShortDescription:       utils.TrimToNil(rv.ShortDescription),
		Description:            utils.TrimToNil(rv.Description),
		Solution:               utils.TrimToNil(rv.Solution),
		ManualNotes:            utils.TrimToNil(rv.ManualNotes),
		TechnicalDescription:   utils.TrimToNil(rv.TechnicalDescription),
		SolutionDate:           utils.TrimToNil(rv.SolutionDate),
		VendorInformedDate:     utils.TrimToNil(rv.VendorInformedDate),
		VendorAckDate:          utils.TrimToNil(rv.VendorAckDate),
		ThirdPartySolutionDate: utils.TrimToNil(rv.ThirdPartySolutionDate),
	}

	for i, rc := range rv.Classifications {
		cid, err := requireID(rc.ID, "id")
		if err != nil {
			return Vulnerability{}, xerrors.Errorf("vulnerability %d: classifications[%d]: %w", id, i, err)
		}
		v.Classifications = append(v.Classifications, Classification{
			ID:          cid,
			Name:        utils.TrimToNil(rc.Name),
			Longname:    utils.TrimToNil(rc.Longname),
			Description: utils.TrimToNil(rc.Description),
			Mediumtext:  utils.TrimToNil(rc.Mediumtext),
		})
	}

	for i, ra := range rv.Authors {
		aid, err := requireID(ra.ID, "id")
		if err != nil {
			return Vulnerability{}, xerrors.Errorf("vulnerability %d: authors[%d]: %w", id, i, err)
		}
		v.Authors = append(v.Authors, Author{
			ID:         aid,
			Name:       utils.TrimToNil(ra.Name),
			Company:    utils.TrimToNil(ra.Company),
			Email:      utils.TrimToNil(ra.Email),
			CompanyURL: utils.TrimToNil(ra.CompanyURL),
			Country:    utils.TrimToNil(ra.Country),
		})
	}

	for _, r := range rv.ExtReferences {
		v.ExtReferences = append(v.ExtReferences, ExternalReference{
			Type:  utils.TrimToNil(r.Type),
			Value: utils.TrimToNil(r.Value),
		})
	}

	for _, t := range rv.ExtTexts {
		v.ExtTexts = append(v.ExtTexts, ExternalText{
			Type:  utils.TrimToNil(t.Type),
			Value: utils.TrimToNil(t.Value),
		})
	}

	for i, rm := range rv.CvssV2Metrics {
		mid, err := requireID(rm.ID, "id")
		if err != nil {
			return Vulnerability{}, xerrors.Errorf("vulnerability %d: cvss_metrics[%d]: %w", id, i, err)
		}
		v.CvssV2Metrics = append(v.CvssV2Metrics, CvssV2Metric{
			ID:                      mid,
			AccessVector:            utils.TrimToNil(rm.AccessVector),
			AccessComplexity:        utils.TrimToNil(rm.AccessComplexity),
			Authentication:          utils.TrimToNil(rm.Authentication),
			ConfidentialityImpact:   utils.TrimToNil(rm.ConfidentialityImpact),
			IntegrityImpact:         utils.TrimToNil(rm.IntegrityImpact),
			AvailabilityImpact:      utils.TrimToNil(rm.AvailabilityImpact),
			Score:                   rm.Score,
			CalculatedCvssBaseScore: rm.CalculatedCvssBaseScore,
			CveID:                   utils.TrimToNil(rm.CveID),
			Source:                  utils.TrimToNil(rm.Source),
			GeneratedOn:             utils.TrimToNil(rm.GeneratedOn),
		})
	}

	for i, rm := range rv.CvssV3Metrics {
		mid, err := requireID(rm.ID, "id")
		if err != nil {
			return Vulnerability{}, xerrors.Errorf("vulnerability %d: cvss_version_three_metrics[%d]: %w", id, i, err)
		}
		v.CvssV3Metrics = append(v.CvssV3Metrics, CvssV3Metric{
			ID:                      mid,
			AttackVector:            utils.TrimToNil(rm.AttackVector),
			AttackComplexity:        utils.TrimToNil(rm.AttackComplexity),
			PrivilegesRequired:      utils.TrimToNil(rm.PrivilegesRequired),
			UserInteraction:         utils.TrimToNil(rm.UserInteraction),
			Scope:                   utils.TrimToNil(rm.Scope),
			ConfidentialityImpact:   utils.TrimToNil(rm.ConfidentialityImpact),
			IntegrityImpact:         utils.TrimToNil(rm.IntegrityImpact),
			AvailabilityImpact:      utils.TrimToNil(rm.AvailabilityImpact),
			Score:                   rm.Score,
			CalculatedCvssBaseScore: rm.CalculatedCvssBaseScore,
			CveID:                   utils.TrimToNil(rm.CveID),
			Source:                  utils.TrimToNil(rm.Source),
			GeneratedOn:             utils.TrimToNil(rm.GeneratedOn),
		})
	}

	// the API sends a list but a vulnerability carries a single record; the last one wins
	for _, info := range rv.NvdAdditionalInfo {
		v.NvdAdditionalInfo = &NvdAdditionalInfo{
			Summary: utils.TrimToNil(info.Summary),
			CweID:   utils.TrimToNil(info.CweID),
			CveID:   utils.TrimToNil(info.CveID),
		}
	}

	vendors, err := convertVendors(rv.Vendors)
	if err != nil {
		return Vulnerability{}, xerrors.Errorf("vulnerability %d: %w", id, err)
	}
	v.Vendors = vendors

	return v, nil
}

// ParseStatus decodes the account status response. Non-string values are kept
// as their JSON text.
func ParseStatus(body []byte) (Status, error) {
	var rs rawStatus
	if err := json.Unmarshal(body, &rs); err != nil {
		return Status{}, xerrors.Errorf("unable to decode account status: %w", err)
	}
	return Status{
		OrganizationName:        optString(rs.OrganizationName),
		UserNameRequesting:      optString(rs.UserNameRequesting),
		UserEmailRequesting:     optString(rs.UserEmailRequesting),
		SubscriptionEndDate:     optString(rs.SubscriptionEndDate),
		APICallsAllowedPerMonth: optString(rs.APICallsAllowedPerMonth),
		APICallsMadeThisMonth:   optString(rs.APICallsMadeThisMonth),
		VulnDBStatistics:        optString(rs.VulnDBStatistics),
		RawStatus:               body,
	}, nil
}

func optString(raw json.RawMessage) *string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
	} else {
		s = string(raw)
	}
	return utils.TrimToNil(&s)
}
