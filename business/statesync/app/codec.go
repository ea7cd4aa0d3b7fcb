package app

import (
	"encoding/json"

	"github.com/fd1az/poolsync/business/statesync/domain"
	"github.com/fd1az/poolsync/internal/apperror"
)

// JSONCodec encodes snapshots as {"blockNumber": n, "state": S}. *big.Int fields
// are written as JSON number literals and decoded without float conversion.
type JSONCodec[S any] struct{}

// Encode implements Codec.
func (JSONCodec[S]) Encode(snapshot domain.Snapshot[S]) ([]byte, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, apperror.New(apperror.CodeSnapshotEncodeFailed, apperror.WithCause(err))
	}
	return data, nil
}

// Decode implements Codec.
func (JSONCodec[S]) Decode(data []byte) (domain.Snapshot[S], error) {
	var snapshot domain.Snapshot[S]
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return snapshot, apperror.New(apperror.CodeSnapshotDecodeFailed, apperror.WithCause(err))
	}
	return snapshot, nil
}
