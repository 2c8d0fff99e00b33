package assetsdk

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/imroc/req/v3"
	"github.com/openmined/assetsync/internal/assets"
)

var (
	ErrNoServerURL      = errors.New("sdk: server url missing")
	ErrInvalidServerURL = errors.New("sdk: invalid server url")
)

const (
	// Generic request/server errors
	CodeInvalidRequest = "E_INVALID_REQUEST" // bad or invalid request
	CodeRateLimited    = "E_RATE_LIMITED"    // rate limit exceeded
	CodeInternalError  = "E_INTERNAL_ERROR"  // internal server error
	CodeUnknownError   = "E_UNKNOWN_ERR"     // unknown error

	// Asset errors
	CodeAssetNotFound = "E_ASSET_NOT_FOUND" // no asset under the requested key

	// Batch errors
	CodeBatchExpired    = "E_BATCH_EXPIRED"     // the batch expired, was released, or never existed
	CodeBatchBusy       = "E_BATCH_BUSY"        // a proposal for the batch is being applied
	CodeCommitRejected  = "E_COMMIT_REJECTED"   // validation of the commit failed, nothing was applied
	CodeChunkTooLarge   = "E_CHUNK_TOO_LARGE"   // chunk exceeds the server limit
	CodeNoCommitPending = "E_NO_COMMIT_PENDING" // status requested for a batch without a proposal
)

// APIError represents an error answered by the asset server
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
}

func NewAPIError(code, message string) *APIError {
	return &APIError{Code: code, Message: message}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s - %s", e.Code, e.Message)
}

// Is maps server codes onto the engine's sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case assets.ErrAssetNotFound:
		return e.Code == CodeAssetNotFound
	case assets.ErrBatchExpired:
		return e.Code == CodeBatchExpired
	}
	return false
}

// handleAPIError is a helper function that handles the common error pattern
func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("http request error: %s %w", operation, requestErr)
	}

	// got a response, but api returned an error
	if resp.IsErrorState() {
		if apiErr, ok := resp.ErrorResult().(*APIError); ok && apiErr.Code != "" {
			apiErr.Status = resp.StatusCode
			if apiErr.Code == CodeCommitRejected {
				return &assets.CommitRejectedError{Reason: apiErr.Message}
			}
			return fmt.Errorf("%s %w", operation, apiErr)
		}

		return fmt.Errorf("api error: %s %s", operation, http.StatusText(resp.StatusCode))
	}

	return nil
}
