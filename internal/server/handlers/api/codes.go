package api

const (
	// Generic request/server errors
	CodeInvalidRequest = "E_INVALID_REQUEST" // bad or invalid request
	CodeRateLimited    = "E_RATE_LIMITED"    // rate limit exceeded
	CodeInternalError  = "E_INTERNAL_ERROR"  // internal server error
	CodeNotFound       = "E_NOT_FOUND"       // no such route

	// Asset errors
	CodeAssetNotFound = "E_ASSET_NOT_FOUND" // no asset under the requested key

	// Batch errors
	CodeBatchExpired    = "E_BATCH_EXPIRED"     // the batch expired, was released, or never existed
	CodeBatchBusy       = "E_BATCH_BUSY"        // a proposal for the batch is being applied
	CodeCommitRejected  = "E_COMMIT_REJECTED"   // validation of the commit failed, nothing was applied
	CodeChunkTooLarge   = "E_CHUNK_TOO_LARGE"   // chunk exceeds the server limit
	CodeNoCommitPending = "E_NO_COMMIT_PENDING" // status requested for a batch without a proposal
)
