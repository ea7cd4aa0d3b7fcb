package domain

// Snapshot is a state paired with the block number at which it is valid. A nil
// State is an empty marker: the primary knows the object but holds no state.
type Snapshot[S any] struct {
	BlockNumber uint64 `json:"blockNumber"`
	State       *S     `json:"state"`
}

// NewSnapshot creates a snapshot holding state.
func NewSnapshot[S any](state S, blockNumber uint64) Snapshot[S] {
	return Snapshot[S]{BlockNumber: blockNumber, State: &state}
}

// HasState reports whether the snapshot carries a real state.
func (s Snapshot[S]) HasState() bool {
	return s.State != nil
}

// Path names how a tracked object obtained its first snapshot.
type Path string

const (
	PathSupplied  Path = "supplied"
	PathGenerated Path = "generated"
	PathAdopted   Path = "adopted"
)
