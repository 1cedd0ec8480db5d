package protocol

// File carries a result payload (typically base64-encoded TSV) back to
// the coordinator. Field names match the coordinator's wire contract
// exactly.
type File struct {
	FileName        string  `json:"file_name"`
	FileData        string  `json:"file_data"`
	FileDescription string  `json:"file_description"`
	FileReference   string  `json:"file_reference"`
	FileSensitive   bool    `json:"file_sensitive"`
	FileSize        float64 `json:"file_size"`
	FileType        string  `json:"file_type"`
}
