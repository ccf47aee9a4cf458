package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GridFSContentStore keeps zstd compressed content in a GridFS bucket,
// one file per message with the connector message id as file id. Uploads
// and downloads use the bucket's own timeouts; only deletes honour ctx.
type GridFSContentStore struct {
	bucket  *gridfs.Bucket
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func NewGridFSContentStore(db *mongo.Database, bucketName string) (*GridFSContentStore, error) {
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(bucketName))
	if err != nil {
		return nil, fmt.Errorf("failed to open gridfs bucket: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &GridFSContentStore{bucket: bucket, encoder: encoder, decoder: decoder}, nil
}

func (s *GridFSContentStore) Transactional() bool { return false }

func (s *GridFSContentStore) SaveContent(ctx context.Context, _ Queryer, connectorMessageID string, content *StoredContent) error {
	raw, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("failed to marshal content: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	compressed := s.encoder.EncodeAll(raw, nil)

	uploadOpts := options.GridFSUpload().SetMetadata(bson.M{
		"connector_message_id": connectorMessageID,
		"encoding":             "zstd",
		"raw_size":             len(raw),
	})

	if err := s.bucket.UploadFromStreamWithID(connectorMessageID, connectorMessageID, bytes.NewReader(compressed), uploadOpts); err != nil {
		return fmt.Errorf("failed to upload content: %w", err)
	}
	return nil
}

func (s *GridFSContentStore) LoadContent(ctx context.Context, _ Queryer, connectorMessageID string) (*StoredContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := s.bucket.DownloadToStream(connectorMessageID, &buf); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to download content: %w", err)
	}

	raw, err := s.decoder.DecodeAll(buf.Bytes(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress content: %w", err)
	}

	var content StoredContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("failed to unmarshal content: %w", err)
	}
	return &content, nil
}

func (s *GridFSContentStore) DeleteContent(ctx context.Context, _ Queryer, connectorMessageID string) error {
	err := s.bucket.DeleteContext(ctx, connectorMessageID)
	if err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
		return fmt.Errorf("failed to delete content: %w", err)
	}
	return nil
}

func (s *GridFSContentStore) Close() {
	s.encoder.Close()
	s.decoder.Close()
}
