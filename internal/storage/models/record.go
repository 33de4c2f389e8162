// internal/storage/models/record.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Record - итог одной операции, как он попадает в хранилище
type Record struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Operation  string             `bson:"operation" json:"operation"`
	Key        string             `bson:"key,omitempty" json:"key,omitempty"`
	Success    bool               `bson:"success" json:"success"`
	Error      string             `bson:"error,omitempty" json:"error,omitempty"`
	Signature  string             `bson:"signature,omitempty" json:"signature,omitempty"`
	Endpoint   string             `bson:"endpoint,omitempty" json:"endpoint,omitempty"`
	DurationMs int64              `bson:"duration_ms" json:"duration_ms"`
	RecordedAt time.Time          `bson:"recorded_at" json:"recorded_at"`
}
