package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/akulikov/securetext/internal/common"
)

// Test seams, following the same pattern as the gateway token source: the
// AWS constructors are package vars so tests can substitute a fake client.
var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) s3API {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// s3API is the slice of the S3 client the store uses.
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config holds connection settings for an S3-compatible object store
// (AWS or MinIO-style with a custom endpoint).
type S3Config struct {
	Region       string
	Bucket       string
	BaseEndpoint string // empty for AWS proper
	AccessKey    string
	SecretKey    string
}

const (
	s3IndexKey      = "index.json"
	s3ContentPrefix = "content/"
)

// s3Index is the tree-structure record kept alongside the content objects.
// Content blobs are opaque to the store; the index carries only identity and
// shape, mirroring what a drive listing would expose.
type s3Index struct {
	RootID  string            `json:"rootId"`
	Name    string            `json:"name"`
	Nodes   map[string]s3Node `json:"nodes"`
	Updated time.Time         `json:"updated"`
}

type s3Node struct {
	Node
	Trashed bool `json:"trashed,omitempty"`
}

// S3Store implements Store over a bucket: sealed content under
// "content/<id>", tree structure in a single "index.json" object. Node ids
// are client-generated UUIDs, assigned once and never changed by rename.
type S3Store struct {
	cfg    S3Config
	client s3API
}

var _ Store = (*S3Store)(nil)

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{cfg: cfg, client: client}, nil
}

func (s *S3Store) EnsureRootFolder(ctx context.Context, name string) (string, error) {
	idx, err := s.loadIndex(ctx)
	if err == nil {
		return idx.RootID, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return "", err
	}

	rootID := uuid.NewString()
	idx = &s3Index{
		RootID: rootID,
		Name:   name,
		Nodes: map[string]s3Node{
			rootID: {Node: Node{ID: rootID, Name: name, Folder: true}},
		},
	}
	if err := s.storeIndex(ctx, idx); err != nil {
		return "", err
	}
	return rootID, nil
}

func (s *S3Store) ListChildren(ctx context.Context, folderID string) ([]Node, error) {
	idx, err := s.loadIndex(ctx)
	if err != nil {
		return nil, err
	}

	var out []Node
	for _, n := range idx.Nodes {
		if n.ParentID == folderID && !n.Trashed {
			out = append(out, n.Node)
		}
	}
	return out, nil
}

func (s *S3Store) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	return s.createNode(ctx, name, parentID, true)
}

func (s *S3Store) CreateFile(ctx context.Context, name, parentID string) (string, error) {
	return s.createNode(ctx, name, parentID, false)
}

func (s *S3Store) createNode(ctx context.Context, name, parentID string, folder bool) (string, error) {
	idx, err := s.loadIndex(ctx)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	idx.Nodes[id] = s3Node{Node: Node{ID: id, Name: name, Folder: folder, ParentID: parentID}}
	if err := s.storeIndex(ctx, idx); err != nil {
		return "", err
	}
	return id, nil
}

func (s *S3Store) Rename(ctx context.Context, id, newName string) error {
	return s.updateNode(ctx, id, func(n *s3Node) { n.Name = newName })
}

func (s *S3Store) Trash(ctx context.Context, id string) error {
	return s.updateNode(ctx, id, func(n *s3Node) { n.Trashed = true })
}

func (s *S3Store) updateNode(ctx context.Context, id string, mutate func(*s3Node)) error {
	idx, err := s.loadIndex(ctx)
	if err != nil {
		return err
	}

	n, ok := idx.Nodes[id]
	if !ok {
		return common.ErrNotFound
	}
	mutate(&n)
	idx.Nodes[id] = n
	return s.storeIndex(ctx, idx)
}

func (s *S3Store) LoadBytes(ctx context.Context, id string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s3ContentPrefix + id),
	})
	if err != nil {
		return nil, mapS3Error(err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read object body: %v", common.ErrRemoteUnavailable, err)
	}
	return data, nil
}

func (s *S3Store) SaveBytes(ctx context.Context, id string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s3ContentPrefix + id),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return mapS3Error(err)
	}
	return nil
}

func (s *S3Store) loadIndex(ctx context.Context) (*s3Index, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s3IndexKey),
	})
	if err != nil {
		return nil, mapS3Error(err)
	}
	defer out.Body.Close()

	var idx s3Index
	if err := json.NewDecoder(out.Body).Decode(&idx); err != nil {
		return nil, fmt.Errorf("%w: decode index: %v", common.ErrRemoteUnavailable, err)
	}
	if idx.Nodes == nil {
		idx.Nodes = make(map[string]s3Node)
	}
	return &idx, nil
}

func (s *S3Store) storeIndex(ctx context.Context, idx *s3Index) error {
	idx.Updated = time.Now().UTC()
	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(s3IndexKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return mapS3Error(err)
	}
	return nil
}

// mapS3Error folds AWS error codes into the client taxonomy.
func mapS3Error(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return common.ErrNotFound
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return common.ErrNotAuthenticated
		}
	}
	return fmt.Errorf("%w: %v", common.ErrRemoteUnavailable, err)
}
