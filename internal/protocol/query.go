package protocol

import "fmt"

// DistributionQueryType enumerates the distribution queries bunny can be
// asked to solve. ICD-MAIN is a recognized value that is not implemented;
// see internal/distribution.
type DistributionQueryType string

const (
	DistributionDemographics DistributionQueryType = "DEMOGRAPHICS"
	DistributionGeneric      DistributionQueryType = "GENERIC"
	DistributionICDMain      DistributionQueryType = "ICD-MAIN"
)

func validDistributionQueryTypes() []DistributionQueryType {
	return []DistributionQueryType{DistributionDemographics, DistributionGeneric, DistributionICDMain}
}

// AvailabilityQuery asks bunny to count the cohort's population.
type AvailabilityQuery struct {
	Cohort          Cohort `json:"cohort"`
	UUID            string `json:"uuid"`
	Owner           string `json:"owner"`
	Collection      string `json:"collection"`
	ProtocolVersion string `json:"protocol_version"`
	CharSalt        string `json:"char_salt,omitempty"`
}

// NewAvailabilityQuery validates and constructs an AvailabilityQuery.
func NewAvailabilityQuery(cohort Cohort, uuid, owner, collection, protocolVersion string) (AvailabilityQuery, error) {
	if uuid == "" {
		return AvailabilityQuery{}, fmt.Errorf("availability query: uuid is required")
	}
	if collection == "" {
		return AvailabilityQuery{}, fmt.Errorf("availability query: collection is required")
	}
	return AvailabilityQuery{
		Cohort:          cohort,
		UUID:            uuid,
		Owner:           owner,
		Collection:      collection,
		ProtocolVersion: protocolVersion,
	}, nil
}

// DistributionQuery asks bunny to produce a distribution of a code or
// demographic breakdown across the population.
type DistributionQuery struct {
	Owner      string                `json:"owner"`
	Code       DistributionQueryType `json:"code"`
	Analysis   string                `json:"analysis"`
	UUID       string                `json:"uuid"`
	Collection string                `json:"collection"`
}

// NewDistributionQuery validates and constructs a DistributionQuery.
func NewDistributionQuery(owner string, code DistributionQueryType, analysis, uuid, collection string) (DistributionQuery, error) {
	valid := false
	for _, c := range validDistributionQueryTypes() {
		if c == code {
			valid = true
			break
		}
	}
	if !valid {
		return DistributionQuery{}, fmt.Errorf("distribution query: code must be one of %v, got %q", validDistributionQueryTypes(), code)
	}
	if uuid == "" {
		return DistributionQuery{}, fmt.Errorf("distribution query: uuid is required")
	}
	return DistributionQuery{
		Owner:      owner,
		Code:       code,
		Analysis:   analysis,
		UUID:       uuid,
		Collection: collection,
	}, nil
}
