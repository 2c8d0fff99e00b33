package assets

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLimits() Limits {
	return Limits{
		MaxInlineSize:      10,
		MaxChunkSize:       10,
		MaxBatchOperations: 100,
		MaxBatchBytes:      1000,
	}
}

func TestAssembleSingleBatch(t *testing.T) {
	local := []*AssetDescriptor{
		descriptor("/index.html", "text/html", NewEncoding(EncodingIdentity, []byte("<p>x</p>"))),
	}
	ops := Diff(local, RemoteState{})

	batches, err := Assemble(ops, RemoteState{}, DefaultLimits())
	require.NoError(t, err)

	require.Len(t, batches, 1)
	assert.Equal(t, ops, batches[0].Operations)
	assert.Empty(t, batches[0].Uploads)
	assert.Empty(t, batches[0].Destructive())
}

func TestAssembleEmpty(t *testing.T) {
	batches, err := Assemble(nil, RemoteState{}, DefaultLimits())
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestAssemblePlansChunks(t *testing.T) {
	content := []byte("0123456789abcdefghijKLMNO")
	enc := NewEncoding(EncodingIdentity, content)
	ops := Diff([]*AssetDescriptor{descriptor("/big.bin", "application/octet-stream", enc)}, RemoteState{})

	batches, err := Assemble(ops, RemoteState{}, testLimits())
	require.NoError(t, err)
	require.Len(t, batches, 1)

	b := batches[0]
	require.Len(t, b.Uploads, 1)
	plan := b.Uploads[0]
	assert.Len(t, plan.Chunks, 3)
	assert.Equal(t, len(content), plan.Size())
	assert.Equal(t, content, bytes.Join(plan.Chunks, nil))

	set := b.Operations[plan.OpIndex].(*SetAssetContent)
	assert.Nil(t, set.Content, "chunked content is never inlined")
	assert.Nil(t, set.ChunkIDs)
	assert.Equal(t, enc.SHA256, set.SHA256)

	// the differ's operation is left as it was
	assert.Equal(t, content, ops[1].(*SetAssetContent).Content)
}

func TestAssembleInlineAtThreshold(t *testing.T) {
	ops := Diff([]*AssetDescriptor{
		descriptor("/ten", "text/plain", NewEncoding(EncodingIdentity, []byte("0123456789"))),
	}, RemoteState{})

	batches, err := Assemble(ops, RemoteState{}, testLimits())
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Empty(t, batches[0].Uploads)
	assert.Equal(t, []byte("0123456789"), batches[0].Operations[1].(*SetAssetContent).Content)
}

func TestAssembleKeepsKeyTogether(t *testing.T) {
	local := []*AssetDescriptor{
		descriptor("/a.js", "application/javascript",
			NewEncoding(EncodingBrotli, []byte("1")),
			NewEncoding(EncodingGzip, []byte("2")),
			NewEncoding(EncodingIdentity, []byte("3")),
		),
		descriptor("/b.js", "application/javascript", NewEncoding(EncodingIdentity, []byte("4"))),
	}
	ops := Diff(local, RemoteState{})
	limits := testLimits()
	limits.MaxBatchOperations = 2

	batches, err := Assemble(ops, RemoteState{}, limits)
	require.NoError(t, err)

	require.Len(t, batches, 2)
	assert.Len(t, batches[0].Operations, 4, "a unit may exceed the soft limit")
	assert.Len(t, batches[1].Operations, 2)
	assert.Equal(t, 0, batches[0].Index)
	assert.Equal(t, 1, batches[1].Index)
	for _, b := range batches {
		_, isCreate := b.Operations[0].(*CreateAsset)
		assert.True(t, isCreate)
	}
}

func TestAssembleSplitsByBytes(t *testing.T) {
	local := []*AssetDescriptor{
		descriptor("/a", "text/plain", NewEncoding(EncodingIdentity, bytes.Repeat([]byte("a"), 8))),
		descriptor("/b", "text/plain", NewEncoding(EncodingIdentity, bytes.Repeat([]byte("b"), 8))),
		descriptor("/c", "text/plain", NewEncoding(EncodingIdentity, bytes.Repeat([]byte("c"), 8))),
	}
	ops := Diff(local, RemoteState{})
	limits := testLimits()
	limits.MaxBatchBytes = 16

	batches, err := Assemble(ops, RemoteState{}, limits)
	require.NoError(t, err)

	require.Len(t, batches, 2)
	assert.Equal(t, 16, batches[0].Bytes)
	assert.Equal(t, 8, batches[1].Bytes)
}

func TestAssembleCreateBeforeUse(t *testing.T) {
	ops := []Operation{
		&SetAssetContent{Key: "/ghost", ContentEncoding: EncodingIdentity, Content: []byte("x"), SHA256: HashOf([]byte("x"))},
	}

	_, err := Assemble(ops, RemoteState{}, DefaultLimits())
	require.Error(t, err)
	assert.Equal(t, StageAssembleCommitBatchArgument, StageOf(err))
	assert.ErrorIs(t, err, ErrCreateBeforeUse)

	var stageErr *Error
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "/ghost", stageErr.Key)
}

func TestAssembleRejectsInvalidOrder(t *testing.T) {
	remote := remoteOf(descriptor("/a", "text/plain"))

	tests := []struct {
		name string
		ops  []Operation
	}{
		{"create existing", []Operation{&CreateAsset{Key: "/a", ContentType: "text/plain"}}},
		{"delete missing", []Operation{&DeleteAsset{Key: "/b"}}},
		{"use after delete", []Operation{&DeleteAsset{Key: "/a"}, &UnsetAssetContent{Key: "/a", ContentEncoding: EncodingGzip}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Assemble(tt.ops, remote, DefaultLimits())
			assert.Equal(t, StageAssembleCommitBatchArgument, StageOf(err))
		})
	}

	_, err := Assemble([]Operation{
		&DeleteAsset{Key: "/a"},
		&CreateAsset{Key: "/a", ContentType: "text/html"},
	}, remote, DefaultLimits())
	assert.NoError(t, err, "recreate is allowed")
}

func TestAssembleInvalidLimits(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxChunkSize = 0

	_, err := Assemble(nil, RemoteState{}, limits)
	assert.Equal(t, StageAssembleCommitBatchArgument, StageOf(err))
}

func TestPlannedBatchDestructive(t *testing.T) {
	b := &PlannedBatch{Operations: []Operation{
		&SetAssetProperties{Key: "/a"},
		&UnsetAssetContent{Key: "/a", ContentEncoding: EncodingGzip},
		&DeleteAsset{Key: "/b"},
	}}

	summary := summarize([]*PlannedBatch{b})
	assert.Equal(t, []string{"/b"}, summary.Deleted)
	require.Len(t, summary.Unset, 1)
	assert.Contains(t, summary.String(), "/a (gzip)")
	assert.Contains(t, summary.String(), "1 asset(s) will be deleted")
}

func TestSummarizeReportsRecreatedAssetsAsReplaced(t *testing.T) {
	local := []*AssetDescriptor{
		descriptor("/a.txt", "text/markdown", NewEncoding(EncodingIdentity, []byte("a"))),
	}
	remote := remoteOf(
		descriptor("/a.txt", "text/plain", NewEncoding(EncodingIdentity, []byte("a"))),
		descriptor("/gone.txt", "text/plain", NewEncoding(EncodingIdentity, []byte("g"))),
	)

	batches, err := Assemble(Diff(local, remote), remote, testLimits())
	require.NoError(t, err)

	summary := summarize(batches)
	assert.Equal(t, []string{"/gone.txt"}, summary.Deleted)
	assert.Equal(t, []string{"/a.txt"}, summary.Replaced)
	assert.False(t, summary.Empty())
	assert.Equal(t, 2, summary.Count())

	out := summary.String()
	assert.Contains(t, out, "1 asset(s) will be deleted:\n  - /gone.txt\n")
	assert.Contains(t, out, "1 asset(s) will be replaced:\n  - /a.txt\n")
}

func TestSummarizeReplaceOnly(t *testing.T) {
	b := &PlannedBatch{Operations: []Operation{
		&DeleteAsset{Key: "/a"},
		&CreateAsset{Key: "/a", ContentType: "text/css"},
	}}

	summary := summarize([]*PlannedBatch{b})
	assert.Empty(t, summary.Deleted)
	assert.Equal(t, []string{"/a"}, summary.Replaced)
	assert.False(t, summary.Empty(), "a replace still needs consent")
	assert.NotContains(t, summary.String(), "deleted")
}
