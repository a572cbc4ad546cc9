package exports

import "errors"

var (
	ErrExportFetchFailed = errors.New("export fetch failed")
	ErrNotCompleted      = errors.New("document has not completed processing")
)
