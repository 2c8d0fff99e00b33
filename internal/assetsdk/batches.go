package assetsdk

import (
	"context"
	"errors"

	"github.com/openmined/assetsync/internal/assets"
)

const (
	v1Batches      = "/api/v1/batches"
	v1Batch        = "/api/v1/batches/{id}"
	v1BatchChunks  = "/api/v1/batches/{id}/chunks"
	v1BatchCommit  = "/api/v1/batches/{id}/commit"
	v1BatchPropose = "/api/v1/batches/{id}/propose"
	v1BatchStatus  = "/api/v1/batches/{id}/status"
)

// CreateBatch opens a new batch on the store
func (s *AssetSDK) CreateBatch(ctx context.Context) (*assets.BatchHandle, error) {
	var apiResp assets.BatchHandle

	// a retried create would leak the first batch
	resp, err := s.client.R().
		SetContext(ctx).
		SetRetryCount(0).
		SetSuccessResult(&apiResp).
		Post(v1Batches)

	if err := handleAPIError(resp, err, "create batch"); err != nil {
		return nil, err
	}

	return &apiResp, nil
}

// CreateChunk uploads one chunk of content into the batch.
// Retries are left to the caller.
func (s *AssetSDK) CreateChunk(ctx context.Context, batchID assets.BatchID, content []byte) (assets.ChunkID, error) {
	var apiResp CreateChunkResponse

	resp, err := s.client.R().
		SetContext(ctx).
		SetRetryCount(0).
		SetPathParam("id", string(batchID)).
		SetContentType("application/octet-stream").
		SetBodyBytes(content).
		SetSuccessResult(&apiResp).
		Post(v1BatchChunks)

	if err := handleAPIError(resp, err, "create chunk"); err != nil {
		return "", err
	}

	return apiResp.ChunkID, nil
}

// CommitBatch applies the operations atomically
func (s *AssetSDK) CommitBatch(ctx context.Context, args *assets.CommitBatchArguments) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetRetryCount(0).
		SetPathParam("id", string(args.BatchID)).
		SetBody(&CommitRequest{Operations: assets.WrapAll(args.Operations)}).
		Post(v1BatchCommit)

	return handleAPIError(resp, err, "commit batch")
}

// ProposeCommitBatch hands the operations to the store for asynchronous application
func (s *AssetSDK) ProposeCommitBatch(ctx context.Context, args *assets.CommitBatchArguments) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetRetryCount(0).
		SetPathParam("id", string(args.BatchID)).
		SetBody(&CommitRequest{Operations: assets.WrapAll(args.Operations)}).
		Post(v1BatchPropose)

	return handleAPIError(resp, err, "propose commit batch")
}

// CommitStatus reports the outcome of a proposal. A batch the store no
// longer knows is reported as expired.
func (s *AssetSDK) CommitStatus(ctx context.Context, batchID assets.BatchID) (*assets.CommitStatus, error) {
	var apiResp assets.CommitStatus

	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("id", string(batchID)).
		SetSuccessResult(&apiResp).
		Get(v1BatchStatus)

	if err := handleAPIError(resp, err, "commit status"); err != nil {
		if errors.Is(err, assets.ErrBatchExpired) {
			return &assets.CommitStatus{State: assets.CommitExpired}, nil
		}
		return nil, err
	}

	return &apiResp, nil
}

// DeleteBatch releases an uncommitted batch. Releasing an unknown batch is not an error.
func (s *AssetSDK) DeleteBatch(ctx context.Context, batchID assets.BatchID) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("id", string(batchID)).
		Delete(v1Batch)

	err = handleAPIError(resp, err, "delete batch")
	if errors.Is(err, assets.ErrBatchExpired) {
		return nil
	}
	return err
}
