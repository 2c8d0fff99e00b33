package assets

import (
	"errors"
	"fmt"
)

// Operation is one mutating intent applied by a commit. The set of
// implementations is closed: CreateAsset, SetAssetContent, UnsetAssetContent,
// SetAssetProperties and DeleteAsset.
type Operation interface {
	AssetKey() string
	isOperation()
}

type CreateAsset struct {
	Key            string            `json:"key"`
	ContentType    string            `json:"content_type"`
	MaxAge         *uint64           `json:"max_age,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	EnableAliasing *bool             `json:"enable_aliasing,omitempty"`
}

// SetAssetContent carries either inline Content or the ChunkIDs of content
// uploaded earlier in the same batch, never both.
type SetAssetContent struct {
	Key             string    `json:"key"`
	ContentEncoding string    `json:"content_encoding"`
	SHA256          Hash      `json:"sha256"`
	Content         []byte    `json:"content,omitempty"`
	ChunkIDs        []ChunkID `json:"chunk_ids,omitempty"`
}

type UnsetAssetContent struct {
	Key             string `json:"key"`
	ContentEncoding string `json:"content_encoding"`
}

// Field wraps a property value that should be written. A nil *Field leaves
// the property untouched; a Field holding a nil value clears it.
type Field[T any] struct {
	Value T `json:"value"`
}

func Set[T any](v T) *Field[T] {
	return &Field[T]{Value: v}
}

type SetAssetProperties struct {
	Key       string                    `json:"key"`
	MaxAge    *Field[*uint64]           `json:"max_age,omitempty"`
	Headers   *Field[map[string]string] `json:"headers,omitempty"`
	IsAliased *Field[*bool]             `json:"is_aliased,omitempty"`
}

func (op *SetAssetProperties) Empty() bool {
	return op.MaxAge == nil && op.Headers == nil && op.IsAliased == nil
}

type DeleteAsset struct {
	Key string `json:"key"`
}

func (op *CreateAsset) AssetKey() string        { return op.Key }
func (op *SetAssetContent) AssetKey() string    { return op.Key }
func (op *UnsetAssetContent) AssetKey() string  { return op.Key }
func (op *SetAssetProperties) AssetKey() string { return op.Key }
func (op *DeleteAsset) AssetKey() string        { return op.Key }

func (*CreateAsset) isOperation()        {}
func (*SetAssetContent) isOperation()    {}
func (*UnsetAssetContent) isOperation()  {}
func (*SetAssetProperties) isOperation() {}
func (*DeleteAsset) isOperation()        {}

func (op *CreateAsset) String() string {
	return fmt.Sprintf("CreateAsset(%s, %s)", op.Key, op.ContentType)
}

func (op *SetAssetContent) String() string {
	return fmt.Sprintf("SetAssetContent(%s, %s, %s)", op.Key, op.ContentEncoding, op.SHA256)
}

func (op *UnsetAssetContent) String() string {
	return fmt.Sprintf("UnsetAssetContent(%s, %s)", op.Key, op.ContentEncoding)
}

func (op *SetAssetProperties) String() string {
	return fmt.Sprintf("SetAssetProperties(%s)", op.Key)
}

func (op *DeleteAsset) String() string {
	return fmt.Sprintf("DeleteAsset(%s)", op.Key)
}

// IsDestructive reports whether op removes content from the store.
func IsDestructive(op Operation) bool {
	switch op.(type) {
	case *DeleteAsset, *UnsetAssetContent:
		return true
	default:
		return false
	}
}

// ===================================================================================================

var ErrInvalidEnvelope = errors.New("operation envelope must hold exactly one operation")

// OperationEnvelope is the tagged wire form of an Operation.
type OperationEnvelope struct {
	CreateAsset        *CreateAsset        `json:"create_asset,omitempty"`
	SetAssetContent    *SetAssetContent    `json:"set_asset_content,omitempty"`
	UnsetAssetContent  *UnsetAssetContent  `json:"unset_asset_content,omitempty"`
	SetAssetProperties *SetAssetProperties `json:"set_asset_properties,omitempty"`
	DeleteAsset        *DeleteAsset        `json:"delete_asset,omitempty"`
}

func Wrap(op Operation) OperationEnvelope {
	var env OperationEnvelope
	switch o := op.(type) {
	case *CreateAsset:
		env.CreateAsset = o
	case *SetAssetContent:
		env.SetAssetContent = o
	case *UnsetAssetContent:
		env.UnsetAssetContent = o
	case *SetAssetProperties:
		env.SetAssetProperties = o
	case *DeleteAsset:
		env.DeleteAsset = o
	}
	return env
}

func (e OperationEnvelope) Unwrap() (Operation, error) {
	var ops []Operation
	if e.CreateAsset != nil {
		ops = append(ops, e.CreateAsset)
	}
	if e.SetAssetContent != nil {
		ops = append(ops, e.SetAssetContent)
	}
	if e.UnsetAssetContent != nil {
		ops = append(ops, e.UnsetAssetContent)
	}
	if e.SetAssetProperties != nil {
		ops = append(ops, e.SetAssetProperties)
	}
	if e.DeleteAsset != nil {
		ops = append(ops, e.DeleteAsset)
	}
	if len(ops) != 1 {
		return nil, ErrInvalidEnvelope
	}
	return ops[0], nil
}

func WrapAll(ops []Operation) []OperationEnvelope {
	out := make([]OperationEnvelope, len(ops))
	for i, op := range ops {
		out[i] = Wrap(op)
	}
	return out
}

func UnwrapAll(envs []OperationEnvelope) ([]Operation, error) {
	out := make([]Operation, len(envs))
	for i, env := range envs {
		op, err := env.Unwrap()
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		out[i] = op
	}
	return out, nil
}
