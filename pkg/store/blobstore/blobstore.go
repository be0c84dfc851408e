/*
Copyright 2021 The KEDA Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package blobstore implements store.Store against Azure Blob Storage: one
// blob per partition, keyed by partition ID, with the blob's ETag standing
// in for the ownership record's version token. This mirrors the way the
// event-hub processor's checkpoint store layout uses one blob per
// partition under the backend container.
package blobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/kedacore/partbalance/pkg/ownership"
	"github.com/kedacore/partbalance/pkg/store"
)

// wireRecord is the JSON envelope persisted in each blob's body. The owner
// is carried in the body (rather than relying solely on blob metadata) so
// a snapshot taken by any tool that can read the container is
// self-describing.
type wireRecord struct {
	OwnerID      string    `json:"ownerId"`
	LastModified time.Time `json:"lastModified"`
}

// Store is a store.Store backed by an Azure Blob Storage container. One
// blob per (namespace, hub, consumer group, partition): the blob's virtual
// path is "<namespace>/<hub>/<consumerGroup>/<partitionID>".
type Store struct {
	client    *azblob.Client
	container string
}

// New returns a Store that writes into containerName using client.
func New(client *azblob.Client, containerName string) *Store {
	return &Store{client: client, container: containerName}
}

func blobName(scope store.Scope, partitionID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", scope.Namespace, scope.Hub, scope.ConsumerGroup, partitionID)
}

func scopePrefix(scope store.Scope) string {
	return fmt.Sprintf("%s/%s/%s/", scope.Namespace, scope.Hub, scope.ConsumerGroup)
}

func (s *Store) List(ctx context.Context, scope store.Scope) ([]ownership.Record, error) {
	prefix := scopePrefix(scope)
	pager := s.client.NewListBlobsFlatPager(s.container, &azblob.ListBlobsFlatOptions{
		Prefix: &prefix,
	})

	var out []ownership.Record
	for pager.More() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, store.NewTransientError("list", err)
		}

		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			partitionID := strings.TrimPrefix(*item.Name, prefix)

			rec, err := s.downloadRecord(ctx, scope, partitionID)
			if err != nil {
				if bloberror.HasCode(err, bloberror.BlobNotFound) {
					continue // deleted between listing and download; next tick re-reads
				}
				return nil, store.NewTransientError("list", err)
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Store) downloadRecord(ctx context.Context, scope store.Scope, partitionID string) (ownership.Record, error) {
	name := blobName(scope, partitionID)
	blobClient := s.client.ServiceClient().NewContainerClient(s.container).NewBlobClient(name)

	resp, err := blobClient.DownloadStream(ctx, nil)
	if err != nil {
		return ownership.Record{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ownership.Record{}, err
	}

	var wire wireRecord
	if err := json.Unmarshal(body, &wire); err != nil {
		return ownership.Record{}, fmt.Errorf("decode blob %s: %w", name, err)
	}

	var token *string
	if resp.ETag != nil {
		token = to.Ptr(string(*resp.ETag))
	}

	return ownership.Record{
		Namespace:     scope.Namespace,
		Hub:           scope.Hub,
		ConsumerGroup: scope.ConsumerGroup,
		PartitionID:   partitionID,
		OwnerID:       wire.OwnerID,
		LastModified:  wire.LastModified,
		VersionToken:  token,
	}, nil
}

func (s *Store) Claim(ctx context.Context, batch []ownership.Record) ([]ownership.Record, error) {
	accepted := make([]ownership.Record, 0, len(batch))

	for _, proposed := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec, ok, err := s.claimOne(ctx, proposed)
		if err != nil {
			return nil, store.NewTransientError("claim", err)
		}
		if ok {
			accepted = append(accepted, rec)
		}
	}
	return accepted, nil
}

// claimOne performs a single conditional write. A non-nil VersionToken on
// the proposed record becomes an If-Match condition (claim/renew/steal an
// existing record); a nil token becomes an If-None-Match: * condition
// (create only if the blob does not yet exist).
func (s *Store) claimOne(ctx context.Context, proposed ownership.Record) (ownership.Record, bool, error) {
	scope := store.Scope{Namespace: proposed.Namespace, Hub: proposed.Hub, ConsumerGroup: proposed.ConsumerGroup}
	name := blobName(scope, proposed.PartitionID)

	body, err := json.Marshal(wireRecord{OwnerID: proposed.OwnerID, LastModified: proposed.LastModified})
	if err != nil {
		return ownership.Record{}, false, err
	}

	conditions := &blob.AccessConditions{ModifiedAccessConditions: &blob.ModifiedAccessConditions{}}
	if proposed.VersionToken != nil {
		etag := azcore.ETag(*proposed.VersionToken)
		conditions.ModifiedAccessConditions.IfMatch = &etag
	} else {
		star := azcore.ETagAny
		conditions.ModifiedAccessConditions.IfNoneMatch = &star
	}

	resp, err := s.client.UploadBuffer(ctx, s.container, name, body, &azblob.UploadBufferOptions{
		AccessConditions: conditions,
	})
	if err != nil {
		if bloberror.HasCode(err, bloberror.ConditionNotMet) || bloberror.HasCode(err, bloberror.BlobAlreadyExists) {
			return ownership.Record{}, false, nil // optimistic-concurrency rejection, not an error
		}
		return ownership.Record{}, false, err
	}

	var token *string
	if resp.ETag != nil {
		token = to.Ptr(string(*resp.ETag))
	}
	return proposed.WithVersionToken(token), true, nil
}
