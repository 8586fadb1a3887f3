package workflow

// 各工作流的启动入参。向量本体、抽取产物等由工作流活动自行读写，
// 入参只携带定位聚合所需的标识。

// ArtifactSampleInput 制品采样工作流入参。
type ArtifactSampleInput struct {
	ArtifactID      string `json:"artifact_id"`
	StorageLocation string `json:"storage_location"`
}

// CompoundExtractionInput 化合物抽取工作流入参。
type CompoundExtractionInput struct {
	PageID     string `json:"page_id"`
	ArtifactID string `json:"artifact_id"`
}

// EmbeddingInput 文本向量工作流入参。
type EmbeddingInput struct {
	PageID string `json:"page_id"`
}

// SmilesEmbeddingInput SMILES 向量工作流入参。
type SmilesEmbeddingInput struct {
	PageID string `json:"page_id"`
}

// PageSummarizationInput 页面摘要工作流入参。
type PageSummarizationInput struct {
	PageID string `json:"page_id"`
}
