package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/agentAuth/flow"
	"github.com/MrEthical07/agentAuth/storage"
)

const defaultKeyPrefix = "auth"

var (
	ErrFlowRecordContext = errors.New("flow record context missing or invalid channel or user id")
	ErrFlowRecordCorrupt = errors.New("flow record corrupt")
)

// FlowRecordStore reads and writes the flow records of one user on one
// channel. It is cheap to construct and is built per turn.
type FlowRecordStore struct {
	storage     storage.Storage
	prefix      string
	channelID   string
	userID      string
	handlerIDs  []string
	maxAttempts int
}

func NewFlowRecordStore(
	backend storage.Storage,
	prefix string,
	channelID string,
	userID string,
	handlerIDs []string,
	maxAttempts int,
) (*FlowRecordStore, error) {
	if !validKeySegment(channelID) || !validKeySegment(userID) {
		return nil, ErrFlowRecordContext
	}
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &FlowRecordStore{
		storage:     backend,
		prefix:      prefix,
		channelID:   channelID,
		userID:      userID,
		handlerIDs:  handlerIDs,
		maxAttempts: maxAttempts,
	}, nil
}

// Key returns the storage key of a flow record.
func Key(prefix, channelID, userID, handlerID string) string {
	return prefix + "/" + channelID + "/" + userID + "/" + handlerID
}

// validKeySegment reports whether id can be a key segment. Key segments
// must not contain the separator, or two identities could share a key.
func validKeySegment(id string) bool {
	return id != "" && !strings.Contains(id, "/")
}

func (s *FlowRecordStore) key(handlerID string) string {
	return Key(s.prefix, s.channelID, s.userID, handlerID)
}

// Read returns the stored state of handlerID with its version. An absent
// record reads as a fresh not-started state with storage.NoVersion.
func (s *FlowRecordStore) Read(ctx context.Context, handlerID string) (*flow.FlowState, storage.Version, error) {
	key := s.key(handlerID)
	records, err := s.storage.Read(ctx, []string{key})
	if err != nil {
		return nil, storage.NoVersion, err
	}
	rec, ok := records[key]
	if !ok {
		return flow.New(s.maxAttempts), storage.NoVersion, nil
	}
	state, err := decodeFlowRecord(rec.Data)
	if err != nil {
		return nil, storage.NoVersion, err
	}
	return state, rec.Version, nil
}

// Write stores state guarded by version. storage.ErrPreconditionFailed is
// returned unwrapped.
func (s *FlowRecordStore) Write(ctx context.Context, handlerID string, state *flow.FlowState, version storage.Version) error {
	data, err := flow.Encode(state)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFlowRecordCorrupt, err)
	}
	return s.storage.Write(ctx, map[string]storage.Record{
		s.key(handlerID): {Data: data, Version: version},
	})
}

// Delete removes the records of handlerIDs. Missing records are ignored.
func (s *FlowRecordStore) Delete(ctx context.Context, handlerIDs ...string) error {
	if len(handlerIDs) == 0 {
		return nil
	}
	keys := make([]string, len(handlerIDs))
	for i, id := range handlerIDs {
		keys[i] = s.key(id)
	}
	return s.storage.Delete(ctx, keys)
}

// DeleteAll removes the records of every configured handler.
func (s *FlowRecordStore) DeleteAll(ctx context.Context) error {
	return s.Delete(ctx, s.handlerIDs...)
}

// ActiveRecord is a flow record found by FindActive.
type ActiveRecord struct {
	HandlerID string
	State     *flow.FlowState
	Version   storage.Version
}

// FindActive reads every configured handler's record in one call and returns
// the first active one in handler order. Undecodable records are skipped.
func (s *FlowRecordStore) FindActive(ctx context.Context, now time.Time) (*ActiveRecord, bool, error) {
	if len(s.handlerIDs) == 0 {
		return nil, false, nil
	}
	keys := make([]string, len(s.handlerIDs))
	for i, id := range s.handlerIDs {
		keys[i] = s.key(id)
	}

	records, err := s.storage.Read(ctx, keys)
	if err != nil {
		return nil, false, err
	}
	for i, id := range s.handlerIDs {
		rec, ok := records[keys[i]]
		if !ok {
			continue
		}
		state, err := decodeFlowRecord(rec.Data)
		if err != nil {
			continue
		}
		if state.IsActive(now) {
			return &ActiveRecord{HandlerID: id, State: state, Version: rec.Version}, true, nil
		}
	}
	return nil, false, nil
}

func decodeFlowRecord(data []byte) (*flow.FlowState, error) {
	state, err := flow.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFlowRecordCorrupt, err)
	}
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFlowRecordCorrupt, err)
	}
	return state, nil
}
