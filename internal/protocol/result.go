package protocol

// Status is the outcome of a solved query.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// QueryResult is the nested result payload inside a Result's wire form.
type QueryResult struct {
	Count        int    `json:"count"`
	DatasetCount int    `json:"datasetCount"`
	Files        []File `json:"files"`
}

// Result is the full response bunny posts back to the coordinator for a
// solved task. ToWire nests the count, dataset count and files under a
// "queryResult" key per the coordinator's contract.
type Result struct {
	UUID            string
	Status          Status
	CollectionID    string
	Count           int
	DatasetsCount   int
	Files           []File
	Message         string
	ProtocolVersion string
}

// NewErrorResult builds the {status: error, count: 0} envelope produced
// whenever a solve fails.
func NewErrorResult(uuid, collectionID, protocolVersion, message string) Result {
	return Result{
		UUID:            uuid,
		Status:          StatusError,
		CollectionID:    collectionID,
		ProtocolVersion: protocolVersion,
		Message:         message,
	}
}

// wireQueryResult and wireResult are the exact JSON shapes the
// coordinator expects, including the nested "queryResult" key.
type wireQueryResult struct {
	Count        int    `json:"count"`
	DatasetCount int    `json:"datasetCount"`
	Files        []File `json:"files"`
}

type wireResult struct {
	UUID            string          `json:"uuid"`
	Status          Status          `json:"status"`
	CollectionID    string          `json:"collection_id"`
	Message         string          `json:"message"`
	ProtocolVersion string          `json:"protocolVersion"`
	QueryResult     wireQueryResult `json:"queryResult"`
}

// ToWire converts a Result to its JSON-serializable wire representation.
func (r Result) ToWire() any {
	protocolVersion := r.ProtocolVersion
	if protocolVersion == "" {
		protocolVersion = "v2"
	}
	files := r.Files
	if files == nil {
		files = []File{}
	}
	return wireResult{
		UUID:            r.UUID,
		Status:          r.Status,
		CollectionID:    r.CollectionID,
		Message:         r.Message,
		ProtocolVersion: protocolVersion,
		QueryResult: wireQueryResult{
			Count:        r.Count,
			DatasetCount: r.DatasetsCount,
			Files:        files,
		},
	}
}
