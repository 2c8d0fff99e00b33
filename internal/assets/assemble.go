package assets

import (
	"errors"
	"fmt"
)

var ErrCreateBeforeUse = errors.New("operation on asset that does not exist")

// ChunkPlan is content that must be uploaded as chunks before its batch commits.
type ChunkPlan struct {
	OpIndex int // position of the SetAssetContent in PlannedBatch.Operations
	Chunks  [][]byte
}

func (p *ChunkPlan) Size() int {
	n := 0
	for _, c := range p.Chunks {
		n += len(c)
	}
	return n
}

// PlannedBatch is one commit worth of operations. Operations referenced by a
// ChunkPlan carry neither content nor chunk ids until the committer fills them.
type PlannedBatch struct {
	Index      int
	Operations []Operation
	Uploads    []*ChunkPlan
	Bytes      int
}

func (b *PlannedBatch) ChunkCount() int {
	n := 0
	for _, u := range b.Uploads {
		n += len(u.Chunks)
	}
	return n
}

// Destructive returns the operations of b that remove content.
func (b *PlannedBatch) Destructive() []Operation {
	var out []Operation
	for _, op := range b.Operations {
		if IsDestructive(op) {
			out = append(out, op)
		}
	}
	return out
}

// unit is the run of operations for one key that must commit together.
type unit struct {
	ops   []Operation
	bytes int
}

// Assemble splits ops into batches within limits. Operations for one key are
// never split, so a unit larger than the soft limits gets a batch of its own.
func Assemble(ops []Operation, remote RemoteState, limits Limits) ([]*PlannedBatch, error) {
	if err := limits.Validate(); err != nil {
		return nil, newError(StageAssembleCommitBatchArgument, "", err)
	}
	if err := checkCreateBeforeUse(ops, remote); err != nil {
		return nil, err
	}

	var batches []*PlannedBatch
	current := &PlannedBatch{}

	flush := func() {
		if len(current.Operations) == 0 {
			return
		}
		current.Index = len(batches)
		batches = append(batches, current)
		current = &PlannedBatch{}
	}

	for _, u := range groupUnits(ops) {
		if len(current.Operations) > 0 &&
			(len(current.Operations)+len(u.ops) > limits.MaxBatchOperations ||
				current.Bytes+u.bytes > limits.MaxBatchBytes) {
			flush()
		}
		for _, op := range u.ops {
			current.add(op, limits)
		}
	}
	flush()

	return batches, nil
}

func (b *PlannedBatch) add(op Operation, limits Limits) {
	set, ok := op.(*SetAssetContent)
	if !ok {
		b.Operations = append(b.Operations, op)
		return
	}

	b.Bytes += len(set.Content)
	if len(set.Content) <= limits.MaxInlineSize {
		b.Operations = append(b.Operations, set)
		return
	}

	planned := &SetAssetContent{
		Key:             set.Key,
		ContentEncoding: set.ContentEncoding,
		SHA256:          set.SHA256,
	}
	b.Uploads = append(b.Uploads, &ChunkPlan{
		OpIndex: len(b.Operations),
		Chunks:  splitChunks(set.Content, limits.MaxChunkSize),
	})
	b.Operations = append(b.Operations, planned)
}

func groupUnits(ops []Operation) []*unit {
	var units []*unit
	var cur *unit
	for _, op := range ops {
		if cur == nil || cur.ops[0].AssetKey() != op.AssetKey() {
			cur = &unit{}
			units = append(units, cur)
		}
		cur.ops = append(cur.ops, op)
		if set, ok := op.(*SetAssetContent); ok {
			cur.bytes += len(set.Content)
		}
	}
	return units
}

func splitChunks(content []byte, size int) [][]byte {
	chunks := make([][]byte, 0, (len(content)+size-1)/size)
	for start := 0; start < len(content); start += size {
		end := min(start+size, len(content))
		chunks = append(chunks, content[start:end])
	}
	return chunks
}

// checkCreateBeforeUse replays ops against the set of remote keys.
// A failure here means the operation list itself is wrong.
func checkCreateBeforeUse(ops []Operation, remote RemoteState) error {
	exists := make(map[string]bool, len(remote))
	for key := range remote {
		exists[key] = true
	}

	for i, op := range ops {
		key := op.AssetKey()
		switch op.(type) {
		case *CreateAsset:
			if exists[key] {
				return newError(StageAssembleCommitBatchArgument, key,
					fmt.Errorf("operation %d: create of existing asset", i))
			}
			exists[key] = true
		case *DeleteAsset:
			if !exists[key] {
				return newError(StageAssembleCommitBatchArgument, key,
					fmt.Errorf("operation %d: %w", i, ErrCreateBeforeUse))
			}
			delete(exists, key)
		default:
			if !exists[key] {
				return newError(StageAssembleCommitBatchArgument, key,
					fmt.Errorf("operation %d %v: %w", i, op, ErrCreateBeforeUse))
			}
		}
	}
	return nil
}
