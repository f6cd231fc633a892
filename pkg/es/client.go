// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"offshore-assist-go/internal/config"
	"offshore-assist-go/internal/model"
	"offshore-assist-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// InitES 初始化 Elasticsearch 客户端并确保索引存在。
func InitES(esCfg config.ElasticsearchConfig, dims int) (*elasticsearch.Client, error) {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if err := createIndexIfNotExists(client, esCfg.IndexName, dims); err != nil {
		return nil, err
	}
	return client, nil
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func createIndexIfNotExists(client *elasticsearch.Client, indexName string, dims int) error {
	res, err := client.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	// 向量字段使用 cosine 相似度，与 embedding 模型训练时的度量一致
	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"vector_id": { "type": "keyword" },
				"content": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"metadata": { "type": "object", "enabled": false },
				"source_file": { "type": "keyword" },
				"chunk_index": { "type": "integer" }
			}
		}
	}`, dims)

	res, err = client.Indices.Create(
		indexName,
		client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// BulkIndex 批量写入文档，refresh=true 以便随后的检索立即可见。
func BulkIndex(ctx context.Context, client *elasticsearch.Client, indexName string, docs []model.EsEmbeddingDocument) error {
	if len(docs) == 0 {
		return nil
	}
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, doc := range docs {
		meta := map[string]interface{}{"index": map[string]interface{}{"_index": indexName, "_id": doc.VectorID}}
		if err := enc.Encode(meta); err != nil {
			return err
		}
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}

	req := esapi.BulkRequest{Body: &body, Refresh: "true"}
	res, err := req.Do(ctx, client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk index failed: %s", res.String())
	}

	var out struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if out.Errors {
		return errors.New("bulk index reported item errors")
	}
	return nil
}

// DeleteAll 删除索引内全部文档。
func DeleteAll(ctx context.Context, client *elasticsearch.Client, indexName string) error {
	req := esapi.DeleteByQueryRequest{
		Index:     []string{indexName},
		Body:      strings.NewReader(`{"query":{"match_all":{}}}`),
		Refresh:   esapi.BoolPtr(true),
		Conflicts: "proceed",
	}
	res, err := req.Do(ctx, client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("delete_by_query failed: %s", res.String())
	}
	return nil
}

// Count 返回索引内的文档数。
func Count(ctx context.Context, client *elasticsearch.Client, indexName string) (int64, error) {
	res, err := client.Count(client.Count.WithContext(ctx), client.Count.WithIndex(indexName))
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return 0, fmt.Errorf("count failed: %s", string(body))
	}
	var out struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.Count, nil
}
