// Package readmodel 定义查询侧的反规范化文档与版本化存储契约。
// 文档的写入只能由投影引擎驱动，last_applied_version 承载幂等规则：
// 版本为 last_applied+1 的事件才会被应用，旧事件跳过，跳号视为完整性故障。
package readmodel

import (
	"time"

	"github.com/wyfcoding/docstore/artifact"
	"github.com/wyfcoding/docstore/extraction"
	"github.com/wyfcoding/docstore/workflow"
)

// ArtifactDocument 制品读模型文档。
type ArtifactDocument struct {
	ArtifactID         string                       `bson:"artifact_id" json:"artifact_id"`
	SourceURI          string                       `bson:"source_uri" json:"source_uri"`
	SourceFilename     string                       `bson:"source_filename" json:"source_filename"`
	ArtifactType       artifact.Type                `bson:"artifact_type" json:"artifact_type"`
	MimeType           string                       `bson:"mime_type" json:"mime_type"`
	StorageLocation    string                       `bson:"storage_location" json:"storage_location"`
	PageIDs            []string                     `bson:"page_ids" json:"page_ids"`
	TitleMention       *extraction.TitleMention     `bson:"title_mention,omitempty" json:"title_mention,omitempty"`
	SummaryCandidate   *extraction.SummaryCandidate `bson:"summary_candidate,omitempty" json:"summary_candidate,omitempty"`
	Tags               []string                     `bson:"tags" json:"tags"`
	Deleted            bool                         `bson:"deleted" json:"deleted"`
	DeletedAt          *time.Time                   `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
	LastAppliedVersion int64                        `bson:"last_applied_version" json:"last_applied_version"`
	CreatedAt          time.Time                    `bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time                    `bson:"updated_at" json:"updated_at"`
}

// PageDocument 页面读模型文档。
type PageDocument struct {
	PageID                  string                            `bson:"page_id" json:"page_id"`
	Name                    string                            `bson:"name" json:"name"`
	ArtifactID              string                            `bson:"artifact_id" json:"artifact_id"`
	Index                   int                               `bson:"index" json:"index"`
	CompoundMentions        []extraction.CompoundMention      `bson:"compound_mentions,omitempty" json:"compound_mentions,omitempty"`
	TagMentions             []extraction.TagMention           `bson:"tag_mentions,omitempty" json:"tag_mentions,omitempty"`
	TextMention             *extraction.TextMention           `bson:"text_mention,omitempty" json:"text_mention,omitempty"`
	SummaryCandidate        *extraction.SummaryCandidate      `bson:"summary_candidate,omitempty" json:"summary_candidate,omitempty"`
	TextEmbeddingMetadata   *extraction.EmbeddingMetadata     `bson:"text_embedding_metadata,omitempty" json:"text_embedding_metadata,omitempty"`
	SmilesEmbeddingMetadata *extraction.EmbeddingMetadata     `bson:"smiles_embedding_metadata,omitempty" json:"smiles_embedding_metadata,omitempty"`
	WorkflowStatuses        map[workflow.Name]workflow.Status `bson:"workflow_statuses,omitempty" json:"workflow_statuses,omitempty"`
	Deleted                 bool                              `bson:"deleted" json:"deleted"`
	DeletedAt               *time.Time                        `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
	LastAppliedVersion      int64                             `bson:"last_applied_version" json:"last_applied_version"`
	CreatedAt               time.Time                         `bson:"created_at" json:"created_at"`
	UpdatedAt               time.Time                         `bson:"updated_at" json:"updated_at"`
}
