// Package metadata generates the capability-discovery metadata file
// optionally attached to distribution results, reporting the worker's
// configured disclosure thresholds.
package metadata

import (
	"encoding/base64"
	"fmt"
	"runtime"

	"github.com/Health-Informatics-UoN/bunny/internal/protocol"
)

// Generate builds the metadata file for a worker identified by
// collection, reporting the configured rounding target and suppression
// threshold.
func Generate(collection, version string, roundingTarget, suppressionThreshold int) protocol.File {
	header := "BIOBANK\tPROTOCOL\tOS\tBCLINK\tDATAMODEL\tROUNDING\tTHRESHOLD"
	dataLine := fmt.Sprintf("%s\tBunny\t%s\t%s\tOMOP\t%d\t%d",
		collection, runtime.GOOS, version, roundingTarget, suppressionThreshold)
	tsv := header + "\n" + dataLine

	b64 := base64.StdEncoding.EncodeToString([]byte(tsv))
	return protocol.File{
		FileName:        "metadata.bcos",
		FileData:        b64,
		FileDescription: "Metadata for the result of code.distribution analysis",
		FileSensitive:   false,
		FileSize:        float64(len(b64)) / 1000,
		FileType:        "BCOS",
	}
}
