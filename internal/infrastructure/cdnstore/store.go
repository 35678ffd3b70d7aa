// Package cdnstore 提供外置资源的对象存储实现
//
// 资产落在 S3 兼容的 Cloudflare R2 桶里，对象键与打包器生成的
// CDN 路径一一对应，上传天然幂等：同键覆盖写入相同内容。
package cdnstore

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"z-webforge-api/internal/config"
	"z-webforge-api/pkg/logger"
)

var tracer = otel.Tracer("cdnstore")

// s3API 上传所需的最小 S3 接口，便于测试替换
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store R2 资产存储
type Store struct {
	client s3API
	bucket string
}

// NewStore 创建 R2 资产存储
func NewStore(ctx context.Context, cfg *config.R2Config) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load r2 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID))
	})

	return &Store{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// NewStoreFromClient 基于既有客户端创建存储（测试用）
func NewStoreFromClient(client s3API, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// UploadAll 实现 generation.AssetStore
// 按键排序后逐个上传，失败即中止，调用方整体重试。
func (s *Store) UploadAll(ctx context.Context, projectID string, assets map[string][]byte) error {
	ctx, span := tracer.Start(ctx, "cdnstore.UploadAll",
		trace.WithAttributes(
			attribute.String("project_id", projectID),
			attribute.Int("asset_count", len(assets)),
		))
	defer span.End()

	keys := make([]string, 0, len(assets))
	for key := range assets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, assetPath := range keys {
		objectKey := ObjectKey(projectID, assetPath)
		if err := s.put(ctx, objectKey, assets[assetPath]); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to upload asset %s: %w", assetPath, err)
		}
	}

	logger.Debug(ctx, "assets uploaded", "project_id", projectID, "count", len(assets))
	return nil
}

func (s *Store) put(ctx context.Context, key string, content []byte) error {
	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	return err
}

// ObjectKey 资产的确定性对象键，与打包器的 CDN 路径一致
func ObjectKey(projectID, assetPath string) string {
	for len(assetPath) > 0 && assetPath[0] == '/' {
		assetPath = assetPath[1:]
	}
	return projectID + "/" + assetPath
}
