package assets

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// store contract
	ErrAssetNotFound = errors.New("asset not found")
	ErrBatchExpired  = errors.New("batch expired")
	ErrCommitTimeout = errors.New("commit outcome not reported in time")

	// uploader
	ErrConsentDeclined = errors.New("destructive changes declined")
)

// Stage names the part of a sync run that failed.
type Stage string

const (
	StageGatherAssetDescriptors      Stage = "GatherAssetDescriptorsFailed"
	StageListAssets                  Stage = "ListAssetsFailed"
	StageGetAssetProperties          Stage = "GetAssetPropertiesFailed"
	StageAssembleCommitBatchArgument Stage = "AssembleCommitBatchArgumentFailed"
	StageCreateBatch                 Stage = "CreateBatchFailed"
	StageCommitBatch                 Stage = "CommitBatchFailed"
	StageConsent                     Stage = "ConsentDeclined"
)

var stageMessages = map[Stage]string{
	StageGatherAssetDescriptors:      "failed to gather asset descriptors",
	StageListAssets:                  "failed to list assets",
	StageGetAssetProperties:          "failed to get asset properties",
	StageAssembleCommitBatchArgument: "failed to assemble commit_batch argument",
	StageCreateBatch:                 "failed to create batch",
	StageCommitBatch:                 "failed to commit batch",
	StageConsent:                     "consent declined",
}

// Error is the single structured failure returned by a sync run.
// Committed and Failed hold batch indices; both empty means nothing changed remotely.
type Error struct {
	Stage     Stage
	Key       string
	Err       error
	Batches   int
	Committed []int
	Failed    []int
}

func newError(stage Stage, key string, err error) *Error {
	return &Error{Stage: stage, Key: key, Err: err}
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(stageMessages[e.Stage])
	if e.Key != "" {
		fmt.Fprintf(&sb, " key=%s", e.Key)
	}
	if e.Batches > 0 {
		fmt.Fprintf(&sb, " (committed %d/%d batches)", len(e.Committed), e.Batches)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NothingChanged reports whether the run aborted before any batch was committed.
func (e *Error) NothingChanged() bool {
	return len(e.Committed) == 0
}

// StageOf returns the failing stage of err, or "" if err is not an *Error.
func StageOf(err error) Stage {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}

// CommitRejectedError is returned by the store when it refuses to apply a batch.
type CommitRejectedError struct {
	Reason string
}

func (e *CommitRejectedError) Error() string {
	return "commit rejected: " + e.Reason
}

// ChunkUploadError reports a chunk that failed after all retries.
type ChunkUploadError struct {
	Key      string
	Chunk    int
	Attempts int
	Err      error
}

func (e *ChunkUploadError) Error() string {
	return fmt.Sprintf("upload chunk %d of %s after %d attempts: %v", e.Chunk, e.Key, e.Attempts, e.Err)
}

func (e *ChunkUploadError) Unwrap() error {
	return e.Err
}
