package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ServiceKey is a long-lived machine credential for ingestion agents.
// Only the bcrypt hash is stored; the plaintext is shown once at creation.
type ServiceKey struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TenantID  string             `bson:"tenant_id" json:"tenant_id"`
	Name      string             `bson:"name" json:"name"`
	KeyHash   string             `bson:"key_hash" json:"-"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	LastUsed  *time.Time         `bson:"last_used,omitempty" json:"last_used,omitempty"`
}
