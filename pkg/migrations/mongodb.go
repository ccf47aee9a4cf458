package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureContentBucket creates the lookup indexes of the GridFS bucket that
// holds business content. GridFS adds its own chunk index on first upload.
func EnsureContentBucket(ctx context.Context, db *mongo.Database, bucket string) error {
	files := db.Collection(bucket + ".files")

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "metadata.connector_message_id", Value: 1}},
			Options: options.Index().SetName("idx_content_connector_message_id"),
		},
		{
			Keys:    bson.D{{Key: "uploadDate", Value: -1}},
			Options: options.Index().SetName("idx_content_upload_date"),
		},
	}

	_, err := files.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	return nil
}
