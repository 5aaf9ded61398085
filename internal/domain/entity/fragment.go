package entity

// 片段来源类型，写入向量库 metadata.type
const (
	FragmentKindUpload = "cloud_upload"
	FragmentKindText   = "cloud_text"
	FragmentKindLocal  = "local_doc"
)

// Fragment 向量库中检索到的文本片段
type Fragment struct {
	ID       string  `json:"id"`
	Text     string  `json:"text"`
	Source   string  `json:"source,omitempty"`
	Kind     string  `json:"kind,omitempty"`
	Distance float32 `json:"distance"`
}

// UpsertBatch 写入向量库的一批记录，四个切片等长
type UpsertBatch struct {
	IDs       []string
	Vectors   [][]float32
	Documents []string
	Metadatas []map[string]string
}

// Len 返回批次记录数
func (b UpsertBatch) Len() int {
	return len(b.IDs)
}

// Consistent 检查各列长度一致
func (b UpsertBatch) Consistent() bool {
	n := len(b.IDs)
	return len(b.Vectors) == n && len(b.Documents) == n && len(b.Metadatas) == n
}
