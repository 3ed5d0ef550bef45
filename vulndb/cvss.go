package vulndb

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/vulndb-mirror/cvss"
)

// VulnDB spells some values differently across schema generations; every
// accepted spelling is listed.
var (
	v2AccessVectors = map[string]cvss.AccessVector{
		"ADJACENT_NETWORK": cvss.AccessVectorAdjacent,
		"LOCAL":            cvss.AccessVectorLocal,
		"NETWORK":          cvss.AccessVectorNetwork,
	}
	v2AccessComplexities = map[string]cvss.AccessComplexity{
		"LOW":    cvss.AccessComplexityLow,
		"MEDIUM": cvss.AccessComplexityMedium,
		"HIGH":   cvss.AccessComplexityHigh,
	}
	v2Authentications = map[string]cvss.Authentication{
		"SINGLE_INSTANCE":    cvss.AuthenticationSingle,
		"MULTIPLE_INSTANCES": cvss.AuthenticationMultiple,
		"NONE":               cvss.AuthenticationNone,
	}
	v2Impacts = map[string]cvss.ImpactV2{
		"NONE":     cvss.ImpactV2None,
		"PARTIAL":  cvss.ImpactV2Partial,
		"COMPLETE": cvss.ImpactV2Complete,
	}

	v3AttackVectors = map[string]cvss.AttackVector{
		"ADJACENT_NETWORK": cvss.AttackVectorAdjacent,
		"ADJACENT":         cvss.AttackVectorAdjacent,
		"LOCAL":            cvss.AttackVectorLocal,
		"NETWORK":          cvss.AttackVectorNetwork,
		"PHYSICAL":         cvss.AttackVectorPhysical,
	}
	v3AttackComplexities = map[string]cvss.AttackComplexity{
		"LOW":  cvss.AttackComplexityLow,
		"HIGH": cvss.AttackComplexityHigh,
	}
	v3PrivilegesRequired = map[string]cvss.PrivilegesRequired{
		"NONE": cvss.PrivilegesRequiredNone,
		"LOW":  cvss.PrivilegesRequiredLow,
		"HIGH": cvss.PrivilegesRequiredHigh,
	}
	v3UserInteractions = map[string]cvss.UserInteraction{
		"NONE":     cvss.UserInteractionNone,
		"REQUIRED": cvss.UserInteractionRequired,
	}
	v3Scopes = map[string]cvss.Scope{
		"UNCHANGED": cvss.ScopeUnchanged,
		"CHANGED":   cvss.ScopeChanged,
	}
	v3Impacts = map[string]cvss.ImpactV3{
		"NONE": cvss.ImpactV3None,
		"LOW":  cvss.ImpactV3Low,
		"HIGH": cvss.ImpactV3High,
	}
)

func lookup[T any](table map[string]T, version, field string, value *string) (T, error) {
	var v string
	if value != nil {
		v = *value
		if mapped, ok := table[v]; ok {
			return mapped, nil
		}
	}
	accepted := maps.Keys(table)
	slices.Sort(accepted)
	var zero T
	return zero, &UnknownCvssEnumValueError{Version: version, Field: field, Value: v, Accepted: accepted}
}

// NormalizeV2 converts a VulnDB CVSS v2 metric into a scored standard vector.
func NormalizeV2(m CvssV2Metric) (cvss.V2, error) {
	var (
		v   cvss.V2
		err error
	)
	if v.AccessVector, err = lookup(v2AccessVectors, "v2", "access_vector", m.AccessVector); err != nil {
		return cvss.V2{}, err
	}
	if v.AccessComplexity, err = lookup(v2AccessComplexities, "v2", "access_complexity", m.AccessComplexity); err != nil {
		return cvss.V2{}, err
	}
	if v.Authentication, err = lookup(v2Authentications, "v2", "authentication", m.Authentication); err != nil {
		return cvss.V2{}, err
	}
	if v.Confidentiality, err = lookup(v2Impacts, "v2", "confidentiality_impact", m.ConfidentialityImpact); err != nil {
		return cvss.V2{}, err
	}
	if v.Integrity, err = lookup(v2Impacts, "v2", "integrity_impact", m.IntegrityImpact); err != nil {
		return cvss.V2{}, err
	}
	if v.Availability, err = lookup(v2Impacts, "v2", "availability_impact", m.AvailabilityImpact); err != nil {
		return cvss.V2{}, err
	}
	return v.Scored()
}

// NormalizeV3 converts a VulnDB CVSS v3 metric into a scored standard vector.
func NormalizeV3(m CvssV3Metric) (cvss.V3, error) {
	var (
		v   cvss.V3
		err error
	)
	if v.AttackVector, err = lookup(v3AttackVectors, "v3", "attack_vector", m.AttackVector); err != nil {
		return cvss.V3{}, err
	}
	if v.AttackComplexity, err = lookup(v3AttackComplexities, "v3", "attack_complexity", m.AttackComplexity); err != nil {
		return cvss.V3{}, err
	}
	if v.PrivilegesRequired, err = lookup(v3PrivilegesRequired, "v3", "privileges_required", m.PrivilegesRequired); err != nil {
		return cvss.V3{}, err
	}
	if v.UserInteraction, err = lookup(v3UserInteractions, "v3", "user_interaction", m.UserInteraction); err != nil {
		return cvss.V3{}, err
	}
	if v.Scope, err = lookup(v3Scopes, "v3", "scope", m.Scope); err != nil {
		return cvss.V3{}, err
	}
	if v.Confidentiality, err = lookup(v3Impacts, "v3", "confidentiality_impact", m.ConfidentialityImpact); err != nil {
		return cvss.V3{}, err
	}
	if v.Integrity, err = lookup(v3Impacts, "v3", "integrity_impact", m.IntegrityImpact); err != nil {
		return cvss.V3{}, err
	}
	if v.Availability, err = lookup(v3Impacts, "v3", "availability_impact", m.AvailabilityImpact); err != nil {
		return cvss.V3{}, err
	}
	return v.Scored()
}

// NormalizedCvss normalizes every CVSS metric of the vulnerability.
func (v Vulnerability) NormalizedCvss() ([]cvss.V2, []cvss.V3, error) {
	var (
		v2s []cvss.V2
		v3s []cvss.V3
	)
	for _, m := range v.CvssV2Metrics {
		n, err := NormalizeV2(m)
		if err != nil {
			return nil, nil, xerrors.Errorf("vulnerability %d, CVSS v2 metric %d: %w", v.ID, m.ID, err)
		}
		v2s = append(v2s, n)
	}
	for _, m := range v.CvssV3Metrics {
		n, err := NormalizeV3(m)
		if err != nil {
			return nil, nil, xerrors.Errorf("vulnerability %d, CVSS v3 metric %d: %w", v.ID, m.ID, err)
		}
		v3s = append(v3s, n)
	}
	return v2s, v3s, nil
}
