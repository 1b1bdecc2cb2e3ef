package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "rollcall/pkg/domain"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func TestStationFrom(t *testing.T) {
	station := StationFrom(chromeUA, "203.0.113.7")
	assert.Equal(t, chromeUA, station.UserAgent)
	assert.Equal(t, "Chrome/120.0.0.0", station.Browser)
	assert.Equal(t, "Windows 10", station.OS)
	assert.False(t, station.Mobile)
	assert.Equal(t, "203.0.113.7", station.ClientIP)
}

func TestStationFromEmptyUserAgent(t *testing.T) {
	station := StationFrom("", "203.0.113.7")
	assert.Empty(t, station.Browser)
	assert.Empty(t, station.OS)
	assert.Equal(t, "203.0.113.7", station.ClientIP)
}

func TestInMemoryRecorder(t *testing.T) {
	ctx := context.Background()
	recorder := NewInMemory()
	now := time.Unix(1700000000, 0).UTC()

	alice := id.NewSubjectID()
	bob := id.NewSubjectID()
	require.NoError(t, recorder.Append(ctx, Event{Kind: KindScanRecorded, SubjectID: alice, OccurredAt: now}))
	require.NoError(t, recorder.Append(ctx, Event{Kind: KindRewardClaimed, SubjectID: alice, OccurredAt: now}))
	require.NoError(t, recorder.Append(ctx, Event{Kind: KindScanRecorded, SubjectID: bob, OccurredAt: now}))

	assert.Len(t, recorder.Events(), 3)

	mine := recorder.BySubject(alice.String())
	require.Len(t, mine, 2)
	assert.Equal(t, KindScanRecorded, mine[0].Kind)
	assert.Equal(t, KindRewardClaimed, mine[1].Kind)
}
