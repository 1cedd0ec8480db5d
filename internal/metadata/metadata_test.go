package metadata

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateReportsConfiguredThresholds(t *testing.T) {
	f := Generate("RQ-CC-1", "1.0.0", 10, 5)
	assert.Equal(t, "metadata.bcos", f.FileName)
	assert.Equal(t, "BCOS", f.FileType)
	assert.False(t, f.FileSensitive)

	raw, err := base64.StdEncoding.DecodeString(f.FileData)
	require.NoError(t, err)
	lines := strings.Split(string(raw), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "BIOBANK\tPROTOCOL\tOS\tBCLINK\tDATAMODEL\tROUNDING\tTHRESHOLD", lines[0])

	fields := strings.Split(lines[1], "\t")
	require.Len(t, fields, 7)
	assert.Equal(t, "RQ-CC-1", fields[0])
	assert.Equal(t, "Bunny", fields[1])
	assert.Equal(t, "OMOP", fields[4])
	assert.Equal(t, "10", fields[5])
	assert.Equal(t, "5", fields[6])
}
