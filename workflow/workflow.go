// Package workflow 定义文档处理流水线的工作流标识与运行状态。
// 工作流本体运行在 Temporal 中，这里只维护名称、幂等键和状态视图。
package workflow

import "fmt"

// Name 工作流名称。
type Name string

const (
	// ArtifactSample 制品抽样工作流（新制品入库后的首轮采样处理）。
	ArtifactSample Name = "artifact_sample_workflow"
	// CompoundExtraction 化合物抽取工作流。
	CompoundExtraction Name = "compound_extraction_workflow"
	// Embedding 页面文本向量化工作流。
	Embedding Name = "embedding_workflow"
	// SmilesEmbedding SMILES 向量化工作流。
	SmilesEmbedding Name = "smiles_embedding_workflow"
	// PageSummarization 页面摘要工作流。
	PageSummarization Name = "page_summarization_workflow"
)

// IdempotencyKey 计算工作流实例的幂等键：同一 (工作流, 聚合) 永远得到同一个键，
// 不含时间戳或随机成分，Temporal 以此保证同一时刻至多一个活跃实例。
func IdempotencyKey(name Name, aggregateID string) string {
	return fmt.Sprintf("%s-%s", name, aggregateID)
}

// Reason 工作流触发原因。
type Reason string

const (
	// ReasonInitialRun 事件驱动的首次触发。
	ReasonInitialRun Reason = "initial_run"
	// ReasonManualRerun 人工重跑。
	ReasonManualRerun Reason = "manual_rerun"
	// ReasonFailedRetry 失败后重试。
	ReasonFailedRetry Reason = "failed_retry"
)
