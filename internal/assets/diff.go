package assets

import (
	"maps"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// Diff computes the operations that make remote mirror local.
//
// Operations for one key are contiguous and in key order: CreateAsset, then
// SetAssetContent by encoding name, then SetAssetProperties. Every
// UnsetAssetContent and DeleteAsset of removed content follows all content
// updates. Equal inputs yield an empty list.
func Diff(local []*AssetDescriptor, remote RemoteState) []Operation {
	local = slices.Clone(local)
	slices.SortFunc(local, func(a, b *AssetDescriptor) int {
		return strings.Compare(a.Key, b.Key)
	})

	localKeys := mapset.NewThreadUnsafeSetWithSize[string](len(local))
	var ops, removals []Operation

	for _, d := range local {
		localKeys.Add(d.Key)

		r, exists := remote[d.Key]
		if !exists {
			ops = append(ops, createOps(d)...)
			continue
		}

		// the store cannot change the content type of an existing asset
		if r.Properties.ContentType != d.Properties.ContentType {
			ops = append(ops, &DeleteAsset{Key: d.Key})
			ops = append(ops, createOps(d)...)
			continue
		}

		for _, enc := range sortedEncodings(d) {
			if h, ok := r.Encodings[enc.Name]; ok && h == enc.SHA256 {
				continue
			}
			ops = append(ops, setContent(d.Key, enc))
		}

		if delta := diffProperties(d.Key, d.Properties, r.Properties); delta != nil {
			ops = append(ops, delta)
		}

		for _, name := range sortedEncodingNames(r.Encodings) {
			if d.Encoding(name) == nil {
				removals = append(removals, &UnsetAssetContent{Key: d.Key, ContentEncoding: name})
			}
		}
	}

	remoteKeys := mapset.NewThreadUnsafeSetWithSize[string](len(remote))
	for key := range remote {
		remoteKeys.Add(key)
	}
	stale := remoteKeys.Difference(localKeys).ToSlice()
	slices.Sort(stale)
	for _, key := range stale {
		removals = append(removals, &DeleteAsset{Key: key})
	}

	return append(ops, removals...)
}

func createOps(d *AssetDescriptor) []Operation {
	ops := make([]Operation, 0, len(d.Encodings)+1)
	ops = append(ops, &CreateAsset{
		Key:            d.Key,
		ContentType:    d.Properties.ContentType,
		MaxAge:         d.Properties.MaxAge,
		Headers:        d.Properties.Headers,
		EnableAliasing: d.Properties.IsAliased,
	})
	for _, enc := range sortedEncodings(d) {
		ops = append(ops, setContent(d.Key, enc))
	}
	return ops
}

func setContent(key string, enc *Encoding) *SetAssetContent {
	return &SetAssetContent{
		Key:             key,
		ContentEncoding: enc.Name,
		SHA256:          enc.SHA256,
		Content:         enc.Content,
	}
}

// diffProperties returns nil when nothing but content type differs.
func diffProperties(key string, local, remote Properties) *SetAssetProperties {
	op := &SetAssetProperties{Key: key}
	if !equalPtr(local.MaxAge, remote.MaxAge) {
		op.MaxAge = Set(local.MaxAge)
	}
	if !equalHeaders(local.Headers, remote.Headers) {
		op.Headers = Set(local.Headers)
	}
	if !equalPtr(local.IsAliased, remote.IsAliased) {
		op.IsAliased = Set(local.IsAliased)
	}
	if op.Empty() {
		return nil
	}
	return op
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalHeaders(a, b map[string]string) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return maps.Equal(a, b)
}

func sortedEncodings(d *AssetDescriptor) []*Encoding {
	return slices.SortedFunc(slices.Values(d.Encodings), func(a, b *Encoding) int {
		return strings.Compare(a.Name, b.Name)
	})
}

func sortedEncodingNames(encodings map[string]Hash) []string {
	return slices.Sorted(maps.Keys(encodings))
}
