package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

type fakeAsset struct {
	props     Properties
	encodings map[string][]byte
}

type fakeBatch struct {
	chunks   map[ChunkID][]byte
	proposed *CommitBatchArguments
	polls    int
}

// fakeStore is an in-memory Store with failure injection.
type fakeStore struct {
	mu      sync.Mutex
	assets  map[string]*fakeAsset
	batches map[BatchID]*fakeBatch
	seq     int

	// observed calls
	created   []BatchID
	released  []BatchID
	commits   []*CommitBatchArguments
	chunkSeen int
	uploaded  map[ChunkID]BatchID

	// injected failures
	listErr        error
	propsErr       map[string]error
	ghosts         []string // listed but get_properties says not found
	createBatchErr error
	chunkErr       func(content []byte, call int) error
	expireCommits  int
	rejectReason   string
	pendingPolls   int
	onChunk        func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		assets:   make(map[string]*fakeAsset),
		batches:  make(map[BatchID]*fakeBatch),
		propsErr: make(map[string]error),
		uploaded: make(map[ChunkID]BatchID),
	}
}

func (s *fakeStore) put(key, contentType string, encodings map[string][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[key] = &fakeAsset{
		props:     Properties{ContentType: contentType},
		encodings: encodings,
	}
}

func (s *fakeStore) content(key, encoding string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[key]
	if !ok {
		return nil, false
	}
	c, ok := a.encodings[encoding]
	return c, ok
}

func (s *fakeStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.assets))
}

func (s *fakeStore) List(ctx context.Context) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append(s.keys(), s.ghosts...), nil
}

func (s *fakeStore) GetProperties(ctx context.Context, key string) (*AssetProperties, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.propsErr[key]; err != nil {
		return nil, err
	}
	a, ok := s.assets[key]
	if !ok {
		return nil, ErrAssetNotFound
	}
	hashes := make(map[string]Hash, len(a.encodings))
	for name, c := range a.encodings {
		hashes[name] = HashOf(c)
	}
	return &AssetProperties{Properties: a.props.Clone(), Encodings: hashes}, nil
}

func (s *fakeStore) CreateBatch(ctx context.Context) (*BatchHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createBatchErr != nil {
		return nil, s.createBatchErr
	}
	s.seq++
	id := BatchID(fmt.Sprintf("batch-%d", s.seq))
	s.batches[id] = &fakeBatch{chunks: make(map[ChunkID][]byte)}
	s.created = append(s.created, id)
	return &BatchHandle{ID: id}, nil
}

func (s *fakeStore) CreateChunk(ctx context.Context, batchID BatchID, content []byte) (ChunkID, error) {
	if s.onChunk != nil {
		s.onChunk()
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunkSeen++
	if s.chunkErr != nil {
		if err := s.chunkErr(content, s.chunkSeen); err != nil {
			return "", err
		}
	}
	b, ok := s.batches[batchID]
	if !ok {
		return "", ErrBatchExpired
	}
	s.seq++
	id := ChunkID(fmt.Sprintf("chunk-%d", s.seq))
	b.chunks[id] = bytes.Clone(content)
	s.uploaded[id] = batchID
	return id, nil
}

func (s *fakeStore) CommitBatch(ctx context.Context, args *CommitBatchArguments) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(args)
}

func (s *fakeStore) commitLocked(args *CommitBatchArguments) error {
	b, ok := s.batches[args.BatchID]
	if !ok {
		return ErrBatchExpired
	}
	if s.expireCommits > 0 {
		s.expireCommits--
		delete(s.batches, args.BatchID)
		return ErrBatchExpired
	}
	if s.rejectReason != "" {
		return &CommitRejectedError{Reason: s.rejectReason}
	}

	next := make(map[string]*fakeAsset, len(s.assets))
	for k, a := range s.assets {
		next[k] = &fakeAsset{props: a.props.Clone(), encodings: maps.Clone(a.encodings)}
	}
	for _, op := range args.Operations {
		if err := applyFake(next, b, op); err != nil {
			return &CommitRejectedError{Reason: err.Error()}
		}
	}

	s.assets = next
	s.commits = append(s.commits, args)
	delete(s.batches, args.BatchID)
	return nil
}

func applyFake(assets map[string]*fakeAsset, b *fakeBatch, op Operation) error {
	key := op.AssetKey()
	a := assets[key]
	if _, isCreate := op.(*CreateAsset); !isCreate && a == nil {
		return fmt.Errorf("%s: asset not found", key)
	}

	switch o := op.(type) {
	case *CreateAsset:
		if a != nil {
			return fmt.Errorf("%s: already exists", key)
		}
		assets[key] = &fakeAsset{
			props: Properties{
				ContentType: o.ContentType,
				MaxAge:      o.MaxAge,
				Headers:     o.Headers,
				IsAliased:   o.EnableAliasing,
			},
			encodings: make(map[string][]byte),
		}
	case *SetAssetContent:
		content := o.Content
		if len(o.ChunkIDs) > 0 {
			var buf bytes.Buffer
			for _, id := range o.ChunkIDs {
				c, ok := b.chunks[id]
				if !ok {
					return fmt.Errorf("%s: unknown chunk %s", key, id)
				}
				buf.Write(c)
			}
			content = buf.Bytes()
		}
		if HashOf(content) != o.SHA256 {
			return fmt.Errorf("%s: sha256 mismatch", key)
		}
		a.encodings[o.ContentEncoding] = content
	case *UnsetAssetContent:
		delete(a.encodings, o.ContentEncoding)
	case *SetAssetProperties:
		if o.MaxAge != nil {
			a.props.MaxAge = o.MaxAge.Value
		}
		if o.Headers != nil {
			a.props.Headers = o.Headers.Value
		}
		if o.IsAliased != nil {
			a.props.IsAliased = o.IsAliased.Value
		}
	case *DeleteAsset:
		delete(assets, key)
	}
	return nil
}

func (s *fakeStore) ProposeCommitBatch(ctx context.Context, args *CommitBatchArguments) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[args.BatchID]
	if !ok {
		return ErrBatchExpired
	}
	b.proposed = args
	return nil
}

func (s *fakeStore) CommitStatus(ctx context.Context, batchID BatchID) (*CommitStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[batchID]
	if !ok {
		if slices.ContainsFunc(s.commits, func(a *CommitBatchArguments) bool { return a.BatchID == batchID }) {
			return &CommitStatus{State: CommitCommitted}, nil
		}
		return &CommitStatus{State: CommitExpired}, nil
	}
	if b.proposed == nil {
		return nil, errors.New("no proposal")
	}
	if b.polls < s.pendingPolls {
		b.polls++
		return &CommitStatus{State: CommitPending}, nil
	}

	err := s.commitLocked(b.proposed)
	var rejected *CommitRejectedError
	switch {
	case err == nil:
		return &CommitStatus{State: CommitCommitted}, nil
	case errors.Is(err, ErrBatchExpired):
		return &CommitStatus{State: CommitExpired}, nil
	case errors.As(err, &rejected):
		return &CommitStatus{State: CommitRejected, Reason: rejected.Reason}, nil
	default:
		return nil, err
	}
}

func (s *fakeStore) DeleteBatch(ctx context.Context, batchID BatchID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, batchID)
	delete(s.batches, batchID)
	return nil
}

func (s *fakeStore) openBatches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}
