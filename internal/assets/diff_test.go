package assets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func descriptor(key, contentType string, encodings ...*Encoding) *AssetDescriptor {
	return &AssetDescriptor{
		Key:        key,
		Encodings:  encodings,
		Properties: Properties{ContentType: contentType},
	}
}

func remoteOf(local ...*AssetDescriptor) RemoteState {
	state := make(RemoteState, len(local))
	for _, d := range local {
		hashes := make(map[string]Hash, len(d.Encodings))
		for _, enc := range d.Encodings {
			hashes[enc.Name] = enc.SHA256
		}
		state[d.Key] = &RemoteAssetState{
			Key:        d.Key,
			Properties: d.Properties.Clone(),
			Encodings:  hashes,
		}
	}
	return state
}

func TestDiffNewAsset(t *testing.T) {
	a := NewEncoding(EncodingIdentity, []byte("<h1>hi</h1>"))
	local := []*AssetDescriptor{descriptor("/index.html", "text/html", a)}

	ops := Diff(local, RemoteState{})

	require.Len(t, ops, 2)
	assert.Equal(t, &CreateAsset{Key: "/index.html", ContentType: "text/html"}, ops[0])
	set, ok := ops[1].(*SetAssetContent)
	require.True(t, ok)
	assert.Equal(t, "/index.html", set.Key)
	assert.Equal(t, EncodingIdentity, set.ContentEncoding)
	assert.Equal(t, a.SHA256, set.SHA256)
	assert.Equal(t, a.Content, set.Content)
}

func TestDiffDeleteOnly(t *testing.T) {
	css := descriptor("/a.css", "text/css", NewEncoding(EncodingIdentity, []byte("body{}")))
	old := descriptor("/old.js", "application/javascript", NewEncoding(EncodingIdentity, []byte("x()")))

	ops := Diff([]*AssetDescriptor{css}, remoteOf(css, old))

	assert.Equal(t, []Operation{&DeleteAsset{Key: "/old.js"}}, ops)
}

func TestDiffIdempotent(t *testing.T) {
	maxAge := uint64(3600)
	d := descriptor("/app.js", "application/javascript",
		NewEncoding(EncodingGzip, []byte("gz")),
		NewEncoding(EncodingIdentity, []byte("plain")),
	)
	d.Properties.MaxAge = &maxAge
	d.Properties.Headers = map[string]string{"X-Frame-Options": "DENY"}

	assert.Empty(t, Diff([]*AssetDescriptor{d}, remoteOf(d)))
	assert.Empty(t, Diff(nil, RemoteState{}))
}

func TestDiffPropertyOnlyChange(t *testing.T) {
	enc := NewEncoding(EncodingIdentity, []byte("same"))
	remote := remoteOf(descriptor("/a.txt", "text/plain", enc))

	maxAge := uint64(60)
	aliased := true
	local := descriptor("/a.txt", "text/plain", enc)
	local.Properties.MaxAge = &maxAge
	local.Properties.IsAliased = &aliased

	ops := Diff([]*AssetDescriptor{local}, remote)

	require.Len(t, ops, 1)
	props, ok := ops[0].(*SetAssetProperties)
	require.True(t, ok)
	require.NotNil(t, props.MaxAge)
	assert.Equal(t, uint64(60), *props.MaxAge.Value)
	require.NotNil(t, props.IsAliased)
	assert.True(t, *props.IsAliased.Value)
	assert.Nil(t, props.Headers, "unchanged fields are not carried")
}

func TestDiffClearsProperty(t *testing.T) {
	enc := NewEncoding(EncodingIdentity, []byte("same"))
	remoteDesc := descriptor("/a.txt", "text/plain", enc)
	remoteDesc.Properties.Headers = map[string]string{"X-A": "1"}

	ops := Diff([]*AssetDescriptor{descriptor("/a.txt", "text/plain", enc)}, remoteOf(remoteDesc))

	require.Len(t, ops, 1)
	props := ops[0].(*SetAssetProperties)
	require.NotNil(t, props.Headers)
	assert.Nil(t, props.Headers.Value)
}

func TestDiffEncodingChanges(t *testing.T) {
	remote := remoteOf(
		descriptor("/a.js", "application/javascript",
			NewEncoding(EncodingBrotli, []byte("br-old")),
			NewEncoding(EncodingGzip, []byte("gz-old")),
			NewEncoding(EncodingIdentity, []byte("same")),
		),
		descriptor("/b.js", "application/javascript",
			NewEncoding(EncodingIdentity, []byte("b-old")),
		),
	)
	local := []*AssetDescriptor{
		descriptor("/b.js", "application/javascript",
			NewEncoding(EncodingIdentity, []byte("b-new")),
		),
		descriptor("/a.js", "application/javascript",
			NewEncoding(EncodingGzip, []byte("gz-new")),
			NewEncoding(EncodingIdentity, []byte("same")),
		),
	}

	ops := Diff(local, remote)

	require.Len(t, ops, 3)
	assert.Equal(t, "SetAssetContent(/a.js, gzip, "+HashOf([]byte("gz-new")).String()+")", ops[0].(*SetAssetContent).String())
	assert.Equal(t, "/b.js", ops[1].AssetKey())
	assert.IsType(t, &SetAssetContent{}, ops[1])
	// removals come after every content update
	assert.Equal(t, &UnsetAssetContent{Key: "/a.js", ContentEncoding: EncodingBrotli}, ops[2])
}

func TestDiffContentTypeChangeRecreates(t *testing.T) {
	enc := NewEncoding(EncodingIdentity, []byte("data"))
	remote := remoteOf(descriptor("/data", "application/octet-stream", enc))
	local := []*AssetDescriptor{descriptor("/data", "application/json", enc)}

	ops := Diff(local, remote)

	require.Len(t, ops, 3)
	assert.Equal(t, &DeleteAsset{Key: "/data"}, ops[0])
	assert.Equal(t, &CreateAsset{Key: "/data", ContentType: "application/json"}, ops[1])
	assert.IsType(t, &SetAssetContent{}, ops[2])
}

func TestDiffOrdering(t *testing.T) {
	stale := descriptor("/z-stale", "text/plain", NewEncoding(EncodingIdentity, []byte("z")))
	stale2 := descriptor("/a-stale", "text/plain", NewEncoding(EncodingIdentity, []byte("a")))
	local := []*AssetDescriptor{
		descriptor("/m.txt", "text/plain",
			NewEncoding(EncodingIdentity, []byte("m")),
			NewEncoding(EncodingGzip, []byte("mz")),
		),
		descriptor("/c.txt", "text/plain", NewEncoding(EncodingIdentity, []byte("c"))),
	}

	ops := Diff(local, remoteOf(stale, stale2))

	var got []string
	for _, op := range ops {
		got = append(got, op.(interface{ String() string }).String())
	}
	require.Len(t, ops, 7)
	assert.Equal(t, "CreateAsset(/c.txt, text/plain)", got[0])
	assert.Equal(t, "CreateAsset(/m.txt, text/plain)", got[2])
	assert.Equal(t, EncodingGzip, ops[3].(*SetAssetContent).ContentEncoding)
	assert.Equal(t, EncodingIdentity, ops[4].(*SetAssetContent).ContentEncoding)
	assert.Equal(t, []string{"DeleteAsset(/a-stale)", "DeleteAsset(/z-stale)"}, got[5:])
}
