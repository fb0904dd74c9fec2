package redirect

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memIndex is a minimal in-memory Index used to exercise the uniqueness invariant without a database.
type memIndex struct {
	mu   sync.Mutex
	rows []*Redirect
}

func (m *memIndex) Record(_ context.Context, sourceMessageID, recipientMemberID uuid.UUID, mid int64) (*Redirect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.RecipientMemberID == recipientMemberID && r.MID == mid {
			return nil, ErrDuplicate
		}
	}
	r := &Redirect{ID: uuid.New(), SourceMessageID: sourceMessageID, RecipientMemberID: recipientMemberID, MID: mid, CreatedAt: time.Now()}
	m.rows = append(m.rows, r)
	return r, nil
}

func (m *memIndex) RedirectFor(_ context.Context, sourceMessageID, recipientMemberID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.SourceMessageID == sourceMessageID && r.RecipientMemberID == recipientMemberID {
			return r.MID, nil
		}
	}
	return 0, ErrNotFound
}

func (m *memIndex) Reverse(_ context.Context, recipientMemberID uuid.UUID, mid int64) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.RecipientMemberID == recipientMemberID && r.MID == mid {
			return r.SourceMessageID, nil
		}
	}
	return uuid.Nil, ErrNotFound
}

func (m *memIndex) ListBySource(_ context.Context, sourceMessageID uuid.UUID) ([]*Redirect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Redirect
	for _, r := range m.rows {
		if r.SourceMessageID == sourceMessageID {
			out = append(out, r)
		}
	}
	return out, nil
}

func TestRecordDuplicateFailsLoudly(t *testing.T) {
	idx := &memIndex{}
	ctx := context.Background()
	source := uuid.New()
	recipient := uuid.New()

	_, err := idx.Record(ctx, source, recipient, 7)
	require.NoError(t, err)

	_, err = idx.Record(ctx, source, recipient, 7)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestReverseRoundTrip(t *testing.T) {
	idx := &memIndex{}
	ctx := context.Background()
	source := uuid.New()
	recipient := uuid.New()

	_, err := idx.Record(ctx, source, recipient, 99)
	require.NoError(t, err)

	got, err := idx.Reverse(ctx, recipient, 99)
	require.NoError(t, err)
	assert.Equal(t, source, got)
}

func TestRedirectForMissing(t *testing.T) {
	idx := &memIndex{}
	_, err := idx.RedirectFor(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

var _ Index = (*memIndex)(nil)
