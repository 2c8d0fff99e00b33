package assets

import (
	"crypto/sha256"
	"encoding/hex"
	"maps"
	"time"
)

// Content encodings understood by the store.
const (
	EncodingIdentity = "identity"
	EncodingGzip     = "gzip"
	EncodingBrotli   = "br"
)

// Hash is the sha256 digest of an encoding's bytes.
type Hash [sha256.Size]byte

func HashOf(content []byte) Hash {
	return sha256.Sum256(content)
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*h = Hash{}
		return nil
	}
	var out Hash
	n, err := hex.Decode(out[:], text)
	if err != nil {
		return err
	}
	if n != len(out) {
		return hex.ErrLength
	}
	*h = out
	return nil
}

// Encoding is one representation of an asset's content.
type Encoding struct {
	Name    string
	Content []byte
	SHA256  Hash
}

func NewEncoding(name string, content []byte) *Encoding {
	return &Encoding{
		Name:    name,
		Content: content,
		SHA256:  HashOf(content),
	}
}

func (e *Encoding) Length() int {
	return len(e.Content)
}

// Properties are the metadata of an asset that can change without touching its content.
type Properties struct {
	ContentType string            `json:"content_type"`
	MaxAge      *uint64           `json:"max_age,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	IsAliased   *bool             `json:"is_aliased,omitempty"`
}

func (p Properties) Clone() Properties {
	out := Properties{ContentType: p.ContentType}
	if p.MaxAge != nil {
		v := *p.MaxAge
		out.MaxAge = &v
	}
	if p.IsAliased != nil {
		v := *p.IsAliased
		out.IsAliased = &v
	}
	if p.Headers != nil {
		out.Headers = maps.Clone(p.Headers)
	}
	return out
}

// AssetDescriptor is the canonical local model of a single asset.
type AssetDescriptor struct {
	Key        string
	Encodings  []*Encoding // sorted by name
	Properties Properties
}

func (d *AssetDescriptor) Encoding(name string) *Encoding {
	for _, enc := range d.Encodings {
		if enc.Name == name {
			return enc
		}
	}
	return nil
}

// AssetProperties is what the store reports for one key.
type AssetProperties struct {
	Properties
	Encodings map[string]Hash `json:"encodings"`
}

// RemoteAssetState is a snapshot of one remote asset, taken once per sync run.
type RemoteAssetState struct {
	Key        string
	Properties Properties
	Encodings  map[string]Hash
}

// RemoteState is keyed by asset key. A key that is absent does not exist remotely.
type RemoteState map[string]*RemoteAssetState

// ChunkID references content uploaded ahead of a commit. Only valid inside its batch.
type ChunkID string

// BatchID identifies a transaction scope on the store.
type BatchID string

// BatchHandle is issued by CreateBatch.
type BatchHandle struct {
	ID        BatchID   `json:"batch_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CommitBatchArguments is the atomic unit submitted to the store.
type CommitBatchArguments struct {
	BatchID    BatchID
	Operations []Operation
}

// CommitState is the outcome of a proposed commit as reported by the store.
type CommitState string

const (
	CommitPending   CommitState = "pending"
	CommitCommitted CommitState = "committed"
	CommitRejected  CommitState = "rejected"
	CommitExpired   CommitState = "expired"
)

type CommitStatus struct {
	State  CommitState `json:"state"`
	Reason string      `json:"reason,omitempty"`
}

func (s *CommitStatus) Done() bool {
	return s.State != CommitPending
}
