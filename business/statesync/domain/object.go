// Package domain contains the core domain types for the state synchronization context.
package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ObjectID identifies a tracked object. Bucket groups objects of one kind in
// the shared cache; when empty the namespace is used.
type ObjectID struct {
	Namespace string
	Name      string
	Bucket    string
}

// NewObjectID creates an ObjectID.
func NewObjectID(namespace, name, bucket string) ObjectID {
	return ObjectID{Namespace: namespace, Name: name, Bucket: bucket}
}

// CacheBucket returns the shared-cache hash the object's snapshot lives in.
func (id ObjectID) CacheBucket() string {
	if id.Bucket != "" {
		return id.Bucket
	}
	return id.Namespace
}

// CacheKey returns the field within CacheBucket.
func (id ObjectID) CacheKey() string {
	return strings.ToLower(id.Name)
}

func (id ObjectID) String() string {
	return fmt.Sprintf("%s/%s", id.Namespace, id.Name)
}

// NewObjectRequest is published by replicas that found no shared snapshot, asking
// the primary to start tracking and caching the object.
type NewObjectRequest struct {
	Namespace   string           `json:"namespace"`
	Name        string           `json:"name"`
	Bucket      string           `json:"bucket,omitempty"`
	Addresses   []common.Address `json:"addresses"`
	BlockNumber uint64           `json:"blockNumber"`
}

// ObjectID returns the requested object's identity.
func (r NewObjectRequest) ObjectID() ObjectID {
	return ObjectID{Namespace: r.Namespace, Name: r.Name, Bucket: r.Bucket}
}
