package message

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCreateParamsRoundTrip(t *testing.T) {
	groupID := uuid.New()
	memberID := uuid.New()
	params := CreateParams{
		GroupID:  groupID,
		MID:      42,
		MemberID: memberID,
		Mask:     "🦊",
	}

	m := &Message{
		ID:        uuid.New(),
		GroupID:   params.GroupID,
		MID:       params.MID,
		MemberID:  params.MemberID,
		Mask:      params.Mask,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	assert.Equal(t, groupID, m.GroupID)
	assert.Equal(t, memberID, m.MemberID)
	assert.Equal(t, "🦊", m.Mask)
	assert.False(t, m.Pinned)
	assert.Nil(t, m.ReplyToID)
}
