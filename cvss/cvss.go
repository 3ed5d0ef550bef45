// Package cvss holds the standard CVSS v2 and v3.1 base vectors the mirror
// normalizes provider metrics into.
package cvss

import (
	"fmt"

	gocvss20 "github.com/pandatix/go-cvss/20"
	gocvss31 "github.com/pandatix/go-cvss/31"
	"golang.org/x/xerrors"
)

const v31Prefix = "CVSS:3.1/"

// Metric values use the abbreviations of the standard vector notation.
type (
	AccessVector       string
	AccessComplexity   string
	Authentication     string
	ImpactV2           string
	AttackVector       string
	AttackComplexity   string
	PrivilegesRequired string
	UserInteraction    string
	Scope              string
	ImpactV3           string
)

const (
	AccessVectorLocal    AccessVector = "L"
	AccessVectorAdjacent AccessVector = "A"
	AccessVectorNetwork  AccessVector = "N"

	AccessComplexityHigh   AccessComplexity = "H"
	AccessComplexityMedium AccessComplexity = "M"
	AccessComplexityLow    AccessComplexity = "L"

	AuthenticationMultiple Authentication = "M"
	AuthenticationSingle   Authentication = "S"
	AuthenticationNone     Authentication = "N"

	ImpactV2None     ImpactV2 = "N"
	ImpactV2Partial  ImpactV2 = "P"
	ImpactV2Complete ImpactV2 = "C"
)

const (
	AttackVectorNetwork  AttackVector = "N"
	AttackVectorAdjacent AttackVector = "A"
	AttackVectorLocal    AttackVector = "L"
	AttackVectorPhysical AttackVector = "P"

	AttackComplexityLow  AttackComplexity = "L"
	AttackComplexityHigh AttackComplexity = "H"

	PrivilegesRequiredNone PrivilegesRequired = "N"
	PrivilegesRequiredLow  PrivilegesRequired = "L"
	PrivilegesRequiredHigh PrivilegesRequired = "H"

	UserInteractionNone     UserInteraction = "N"
	UserInteractionRequired UserInteraction = "R"

	ScopeUnchanged Scope = "U"
	ScopeChanged   Scope = "C"

	ImpactV3High ImpactV3 = "H"
	ImpactV3Low  ImpactV3 = "L"
	ImpactV3None ImpactV3 = "N"
)

// V2 is a CVSS v2 base vector.
type V2 struct {
	AccessVector     AccessVector
	AccessComplexity AccessComplexity
	Authentication   Authentication
	Confidentiality  ImpactV2
	Integrity        ImpactV2
	Availability     ImpactV2
	BaseScore        float64
}

// V3 is a CVSS v3.1 base vector.
type V3 struct {
	AttackVector       AttackVector
	AttackComplexity   AttackComplexity
	PrivilegesRequired PrivilegesRequired
	UserInteraction    UserInteraction
	Scope              Scope
	Confidentiality    ImpactV3
	Integrity          ImpactV3
	Availability       ImpactV3
	BaseScore          float64
}

func (v V2) String() string {
	return fmt.Sprintf("AV:%s/AC:%s/Au:%s/C:%s/I:%s/A:%s",
		v.AccessVector, v.AccessComplexity, v.Authentication, v.Confidentiality, v.Integrity, v.Availability)
}

func (v V3) String() string {
	return fmt.Sprintf("%sAV:%s/AC:%s/PR:%s/UI:%s/S:%s/C:%s/I:%s/A:%s", v31Prefix,
		v.AttackVector, v.AttackComplexity, v.PrivilegesRequired, v.UserInteraction, v.Scope,
		v.Confidentiality, v.Integrity, v.Availability)
}

// Scored returns the vector with BaseScore computed from its metrics.
func (v V2) Scored() (V2, error) {
	c, err := gocvss20.ParseVector(v.String())
	if err != nil {
		return V2{}, xerrors.Errorf("invalid CVSS v2 vector %q: %w", v.String(), err)
	}
	v.BaseScore = c.BaseScore()
	return v, nil
}

// Scored returns the vector with BaseScore computed from its metrics.
func (v V3) Scored() (V3, error) {
	c, err := gocvss31.ParseVector(v.String())
	if err != nil {
		return V3{}, xerrors.Errorf("invalid CVSS v3 vector %q: %w", v.String(), err)
	}
	v.BaseScore = c.BaseScore()
	return v, nil
}

func (v V2) Severity() string {
	// NVD v2 ratings have no CRITICAL band
	switch {
	case v.BaseScore < 4.0:
		return "LOW"
	case v.BaseScore < 7.0:
		return "MEDIUM"
	default:
		return "HIGH"
	}
}

func (v V3) Severity() string {
	return Severity(v.BaseScore)
}

// Severity returns the CVSS v3 qualitative rating of a base score.
func Severity(score float64) string {
	if score == 0 {
		return "NONE"
	} else if score < 4.0 {
		return "LOW"
	} else if score < 7.0 {
		return "MEDIUM"
	} else if score < 9.0 {
		return "HIGH"
	}
	return "CRITICAL"
}
