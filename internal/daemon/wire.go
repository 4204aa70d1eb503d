package daemon

// Wire types for the one-exchange-per-connection TCP protocol. Each side
// sends a single line of JSON terminated by a newline.

// Request names the file to rewrite and the renames to replay, keyed
// original name -> desired name.
type Request struct {
	FilePath string            `json:"filePath"`
	Mappings map[string]string `json:"mappings"`
}

// Response summarizes one batch. Success reflects the batch as a whole:
// per-symbol failures live in FailedRenames while Success stays true;
// only a batch-fatal failure (transport, spawn, unreadable file) turns it
// false and fills Error.
type Response struct {
	Success           bool              `json:"success"`
	SuccessfulRenames map[string]string `json:"successfulRenames"`
	FailedRenames     map[string]string `json:"failedRenames"`
	TotalReferences   int               `json:"totalReferences"`
	Error             string            `json:"error,omitempty"`
}
