package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "rollcall/pkg/domain-errors"
)

func TestParseSubjectID(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseSubjectID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseSubjectID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseSubjectID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects oversized input", func(t *testing.T) {
		long := make([]byte, 65)
		for i := range long {
			long[i] = 'a'
		}
		_, err := ParseSubjectID(string(long))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		raw := uuid.New()
		parsed, err := ParseSubjectID(raw.String())
		require.NoError(t, err)
		assert.Equal(t, SubjectID(raw), parsed)
	})
}

func TestIDStringRoundTrip(t *testing.T) {
	subjectID := NewSubjectID()
	parsed, err := ParseSubjectID(subjectID.String())
	require.NoError(t, err)
	assert.Equal(t, subjectID, parsed)

	orgID := NewOrgID()
	parsedOrg, err := ParseOrgID(orgID.String())
	require.NoError(t, err)
	assert.Equal(t, orgID, parsedOrg)

	sessionID := NewSessionID()
	parsedSession, err := ParseSessionID(sessionID.String())
	require.NoError(t, err)
	assert.Equal(t, sessionID, parsedSession)

	ticketID := NewTicketID()
	parsedTicket, err := ParseTicketID(ticketID.String())
	require.NoError(t, err)
	assert.Equal(t, ticketID, parsedTicket)
}

// TestIDJSONEncoding verifies IDs marshal as canonical UUID strings, not as
// raw byte arrays.
func TestIDJSONEncoding(t *testing.T) {
	subjectID := NewSubjectID()

	encoded, err := json.Marshal(subjectID)
	require.NoError(t, err)
	assert.Equal(t, `"`+subjectID.String()+`"`, string(encoded))

	var decoded SubjectID
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, subjectID, decoded)
}

func TestIsNil(t *testing.T) {
	assert.True(t, SubjectID{}.IsNil())
	assert.False(t, NewSubjectID().IsNil())
	assert.True(t, OrgID{}.IsNil())
	assert.True(t, SessionID{}.IsNil())
	assert.True(t, TicketID{}.IsNil())
	assert.True(t, MembershipID{}.IsNil())
}
