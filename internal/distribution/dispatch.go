package distribution

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/Health-Informatics-UoN/bunny/internal/protocol"
)

// ErrNotImplemented is returned for distribution query codes bunny does
// not implement (anything other than GENERIC and DEMOGRAPHICS).
var ErrNotImplemented = errors.New("distribution query type not implemented")

// distributionFileNames maps each solvable code to its artifact name.
var distributionFileNames = map[protocol.DistributionQueryType]string{
	protocol.DistributionDemographics: "demographics.distribution",
	protocol.DistributionGeneric:      "code.distribution",
}

// Solve dispatches a DistributionQuery to the appropriate solver and
// returns a populated protocol.Result, or a {status: error} envelope on
// failure.
func Solve(ctx context.Context, db Querier, query protocol.DistributionQuery, suppressionThreshold, roundingTarget int) protocol.Result {
	var tsv string
	var rowCount int
	var err error

	switch query.Code {
	case protocol.DistributionGeneric:
		tsv, rowCount, err = SolveCodeDistribution(ctx, db, query.Collection, suppressionThreshold, roundingTarget)
	case protocol.DistributionDemographics:
		tsv, rowCount, err = SolveDemographicsDistribution(ctx, db, query.Collection, suppressionThreshold, roundingTarget)
	default:
		err = fmt.Errorf("%w: %q", ErrNotImplemented, query.Code)
	}

	if err != nil {
		return protocol.NewErrorResult(query.UUID, query.Collection, "", err.Error())
	}

	b64 := base64.StdEncoding.EncodeToString([]byte(tsv))
	file := protocol.File{
		FileName:        distributionFileNames[query.Code],
		FileData:        b64,
		FileDescription: "Result of code.distribution analysis",
		FileSensitive:   true,
		FileSize:        float64(len(b64)) / 1000,
		FileType:        "BCOS",
	}

	return protocol.Result{
		UUID:          query.UUID,
		Status:        protocol.StatusOK,
		CollectionID:  query.Collection,
		Count:         rowCount,
		DatasetsCount: 1,
		Files:         []protocol.File{file},
	}
}
