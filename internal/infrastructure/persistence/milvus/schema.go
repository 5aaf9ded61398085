package milvus

import (
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// 字段名
const (
	FieldID       = "id"
	FieldVector   = "vector"
	FieldDocument = "document"
	FieldSource   = "source"
	FieldKind     = "kind"
)

// DefaultDimension bge-small-en-v1.5 输出维度
const DefaultDimension = 384

// CurriculumSchema 课程文档片段集合 Schema
func CurriculumSchema(name string, dim int) *entity.Schema {
	return &entity.Schema{
		CollectionName: name,
		Description:    "CBC curriculum document chunks",
		Fields: []*entity.Field{
			{
				Name:       FieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "512",
				},
			},
			{
				Name:     FieldVector,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(dim),
				},
			},
			{
				Name:     FieldDocument,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
			{
				Name:     FieldSource,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "512",
				},
			},
			{
				Name:     FieldKind,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "32",
				},
			},
		},
	}
}

func (c *Client) hnswIndex() (entity.Index, error) {
	m := c.config.HNSWM
	if m <= 0 {
		m = 16
	}
	efConstruction := c.config.HNSWEfConstruction
	if efConstruction <= 0 {
		efConstruction = 200
	}
	idx, err := entity.NewIndexHNSW(entity.COSINE, m, efConstruction)
	if err != nil {
		return nil, fmt.Errorf("failed to create HNSW index: %w", err)
	}
	return idx, nil
}
