// Package extraction 定义 NLP 抽取结果的值对象。
// 值对象不可变，构造时完成校验；向量本体存放在向量库中，聚合只保留元数据。
package extraction

import (
	"fmt"
	"strings"
	"time"

	"github.com/wyfcoding/docstore/eventsourcing"
)

// Metadata 抽取过程元数据，各类 mention 共享。
type Metadata struct {
	Confidence            *float64          `json:"confidence,omitempty" bson:"confidence,omitempty"`
	DateExtracted         *time.Time        `json:"date_extracted,omitempty" bson:"date_extracted,omitempty"`
	ModelName             string            `json:"model_name,omitempty" bson:"model_name,omitempty"`
	AdditionalModelParams map[string]string `json:"additional_model_params,omitempty" bson:"additional_model_params,omitempty"`
	PipelineRunID         string            `json:"pipeline_run_id,omitempty" bson:"pipeline_run_id,omitempty"`
}

// Validate 校验元数据约束：置信度必须落在 [0, 1]。
func (m Metadata) Validate() error {
	if m.Confidence != nil && (*m.Confidence < 0 || *m.Confidence > 1) {
		return fmt.Errorf("%w: confidence %v out of range [0, 1]", eventsourcing.ErrValidation, *m.Confidence)
	}

	return nil
}

// TextMention 从页面抽取的正文文本。
type TextMention struct {
	Metadata `bson:",inline"`
	Text     string `json:"text" bson:"text"`
}

// NewTextMention 创建正文 mention，text 不能为空白。
func NewTextMention(text string, metadata Metadata) (TextMention, error) {
	if strings.TrimSpace(text) == "" {
		return TextMention{}, fmt.Errorf("%w: text cannot be blank", eventsourcing.ErrValidation)
	}
	if err := metadata.Validate(); err != nil {
		return TextMention{}, err
	}

	return TextMention{Metadata: metadata, Text: text}, nil
}

// TagMention 从页面抽取的标签。
type TagMention struct {
	Metadata `bson:",inline"`
	Tag      string `json:"tag" bson:"tag"`
}

// NewTagMention 创建标签 mention，tag 不能为空白。
func NewTagMention(tag string, metadata Metadata) (TagMention, error) {
	if strings.TrimSpace(tag) == "" {
		return TagMention{}, fmt.Errorf("%w: tag cannot be blank", eventsourcing.ErrValidation)
	}
	if err := metadata.Validate(); err != nil {
		return TagMention{}, err
	}

	return TagMention{Metadata: metadata, Tag: tag}, nil
}

// TitleMention 从文档抽取的标题。
type TitleMention struct {
	Metadata `bson:",inline"`
	Title    string `json:"title" bson:"title"`
}

// NewTitleMention 创建标题 mention，title 不能为空白。
func NewTitleMention(title string, metadata Metadata) (TitleMention, error) {
	if strings.TrimSpace(title) == "" {
		return TitleMention{}, fmt.Errorf("%w: title cannot be blank", eventsourcing.ErrValidation)
	}
	if err := metadata.Validate(); err != nil {
		return TitleMention{}, err
	}

	return TitleMention{Metadata: metadata, Title: title}, nil
}

// CompoundMention 从文档抽取的化合物，以 SMILES 记法为主键信息。
type CompoundMention struct {
	Metadata        `bson:",inline"`
	Smiles          string   `json:"smiles" bson:"smiles"`
	CanonicalSmiles string   `json:"canonical_smiles,omitempty" bson:"canonical_smiles,omitempty"`
	IsSmilesValid   *bool    `json:"is_smiles_valid,omitempty" bson:"is_smiles_valid,omitempty"`
	InternalID      string   `json:"internal_id,omitempty" bson:"internal_id,omitempty"`
	CddID           string   `json:"cdd_id,omitempty" bson:"cdd_id,omitempty"`
	ChemblID        string   `json:"chembl_id,omitempty" bson:"chembl_id,omitempty"`
	PdbID           string   `json:"pdb_id,omitempty" bson:"pdb_id,omitempty"`
	OtherIDs        []string `json:"other_ids,omitempty" bson:"other_ids,omitempty"`
	ExtractedID     string   `json:"extracted_id,omitempty" bson:"extracted_id,omitempty"`
}

// NewCompoundMention 创建化合物 mention，smiles 不能为空白。
func NewCompoundMention(smiles string, metadata Metadata) (CompoundMention, error) {
	if strings.TrimSpace(smiles) == "" {
		return CompoundMention{}, fmt.Errorf("%w: smiles cannot be blank", eventsourcing.ErrValidation)
	}
	if err := metadata.Validate(); err != nil {
		return CompoundMention{}, err
	}

	return CompoundMention{Metadata: metadata, Smiles: smiles}, nil
}

// Equal 按规范化 SMILES 判等，任一方缺少规范化形式时视为不等。
func (c CompoundMention) Equal(other CompoundMention) bool {
	if c.CanonicalSmiles == "" || other.CanonicalSmiles == "" {
		return false
	}

	return strings.TrimSpace(c.CanonicalSmiles) == strings.TrimSpace(other.CanonicalSmiles)
}

// SummaryCandidate 页面摘要候选，含人工修订位。
type SummaryCandidate struct {
	Metadata      `bson:",inline"`
	Summary       string `json:"summary,omitempty" bson:"summary,omitempty"`
	IsLocked      bool   `json:"is_locked" bson:"is_locked"`
	HILCorrection string `json:"hil_correction,omitempty" bson:"hil_correction,omitempty"`
}

// EmbeddingType 向量类型。
const (
	EmbeddingTypeText     = "text"
	EmbeddingTypeChemical = "chemical"
)

// EmbeddingMetadata 向量元数据，真实向量存放在向量库中。
type EmbeddingMetadata struct {
	EmbeddingID   string    `json:"embedding_id" bson:"embedding_id"`
	ModelName     string    `json:"model_name" bson:"model_name"`
	Dimensions    int       `json:"dimensions" bson:"dimensions"`
	GeneratedAt   time.Time `json:"generated_at" bson:"generated_at"`
	EmbeddingType string    `json:"embedding_type" bson:"embedding_type"`
}

// NewEmbeddingMetadata 创建向量元数据。
func NewEmbeddingMetadata(embeddingID, modelName string, dimensions int, embeddingType string) (EmbeddingMetadata, error) {
	if strings.TrimSpace(embeddingID) == "" {
		return EmbeddingMetadata{}, fmt.Errorf("%w: embedding id cannot be blank", eventsourcing.ErrValidation)
	}
	if strings.TrimSpace(modelName) == "" {
		return EmbeddingMetadata{}, fmt.Errorf("%w: model name cannot be blank", eventsourcing.ErrValidation)
	}
	if dimensions <= 0 {
		return EmbeddingMetadata{}, fmt.Errorf("%w: dimensions must be positive", eventsourcing.ErrValidation)
	}
	if embeddingType == "" {
		embeddingType = EmbeddingTypeText
	}

	return EmbeddingMetadata{
		EmbeddingID:   embeddingID,
		ModelName:     modelName,
		Dimensions:    dimensions,
		GeneratedAt:   time.Now(),
		EmbeddingType: embeddingType,
	}, nil
}
