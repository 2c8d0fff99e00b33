package server

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/assetsync/internal/server/blob"
	"github.com/openmined/assetsync/internal/server/store"
)

type Services struct {
	Blob  *blob.BlobService
	Store *store.AssetStore
}

func NewServices(ctx context.Context, config *Config, db *sqlx.DB, opts ...store.Option) (*Services, error) {
	blobSvc, err := blob.NewBlobService(ctx, &config.Blob)
	if err != nil {
		return nil, fmt.Errorf("create blob service: %w", err)
	}

	storeSvc, err := store.NewAssetStore(&config.Store, db, blobSvc, opts...)
	if err != nil {
		return nil, fmt.Errorf("create asset store: %w", err)
	}

	return &Services{
		Blob:  blobSvc,
		Store: storeSvc,
	}, nil
}

func (s *Services) Start(ctx context.Context) error {
	if err := s.Store.Start(ctx); err != nil {
		return fmt.Errorf("start asset store: %w", err)
	}
	return nil
}

func (s *Services) Shutdown(ctx context.Context) error {
	if err := s.Store.Shutdown(ctx); err != nil {
		return fmt.Errorf("stop asset store: %w", err)
	}
	return nil
}
