package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/docstore/eventsourcing"
)

func floatPtr(v float64) *float64 { return &v }

func TestMetadataValidate(t *testing.T) {
	require.NoError(t, Metadata{}.Validate())
	require.NoError(t, Metadata{Confidence: floatPtr(0)}.Validate())
	require.NoError(t, Metadata{Confidence: floatPtr(1)}.Validate())

	require.ErrorIs(t, Metadata{Confidence: floatPtr(-0.1)}.Validate(), eventsourcing.ErrValidation)
	require.ErrorIs(t, Metadata{Confidence: floatPtr(1.01)}.Validate(), eventsourcing.ErrValidation)
}

func TestMentionConstructorsRejectBlankPayloads(t *testing.T) {
	_, err := NewTextMention("   ", Metadata{})
	require.ErrorIs(t, err, eventsourcing.ErrValidation)

	_, err = NewTagMention("", Metadata{})
	require.ErrorIs(t, err, eventsourcing.ErrValidation)

	_, err = NewTitleMention("\t", Metadata{})
	require.ErrorIs(t, err, eventsourcing.ErrValidation)

	_, err = NewCompoundMention("", Metadata{})
	require.ErrorIs(t, err, eventsourcing.ErrValidation)

	// 载荷合法但元数据非法同样拒绝。
	_, err = NewTextMention("body", Metadata{Confidence: floatPtr(2)})
	require.ErrorIs(t, err, eventsourcing.ErrValidation)
}

func TestMentionConstructorsKeepPayload(t *testing.T) {
	text, err := NewTextMention("page body", Metadata{ModelName: "ocr-v3"})
	require.NoError(t, err)
	assert.Equal(t, "page body", text.Text)
	assert.Equal(t, "ocr-v3", text.ModelName)

	compound, err := NewCompoundMention("c1ccccc1", Metadata{})
	require.NoError(t, err)
	assert.Equal(t, "c1ccccc1", compound.Smiles)
}

// 化合物判等只看规范化 SMILES，缺失规范化形式时一律视为不等。
func TestCompoundMentionEqual(t *testing.T) {
	a := CompoundMention{Smiles: "C1=CC=CC=C1", CanonicalSmiles: "c1ccccc1"}
	b := CompoundMention{Smiles: "c1ccccc1", CanonicalSmiles: " c1ccccc1 "}
	c := CompoundMention{Smiles: "CCO", CanonicalSmiles: "CCO"}
	raw := CompoundMention{Smiles: "c1ccccc1"}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(raw))
	assert.False(t, raw.Equal(raw))
}

func TestNewEmbeddingMetadata(t *testing.T) {
	meta, err := NewEmbeddingMetadata("emb-1", "text-encoder-v2", 768, "")
	require.NoError(t, err)
	assert.Equal(t, EmbeddingTypeText, meta.EmbeddingType)
	assert.False(t, meta.GeneratedAt.IsZero())

	_, err = NewEmbeddingMetadata("", "text-encoder-v2", 768, EmbeddingTypeText)
	require.ErrorIs(t, err, eventsourcing.ErrValidation)

	_, err = NewEmbeddingMetadata("emb-1", " ", 768, EmbeddingTypeText)
	require.ErrorIs(t, err, eventsourcing.ErrValidation)

	_, err = NewEmbeddingMetadata("emb-1", "m", 0, EmbeddingTypeText)
	require.ErrorIs(t, err, eventsourcing.ErrValidation)
}
