//go:build integration

package history_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"rollcall/internal/history"
	id "rollcall/pkg/domain"
	"rollcall/pkg/testutil/containers"
)

func TestKafkaRecorderRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	broker := containers.GetManager().GetKafkaBroker(t)
	const topic = "rollcall.history.test"

	recorder, err := history.NewKafkaRecorder(ctx, []string{broker}, topic, slog.Default())
	require.NoError(t, err)

	subjectID := id.NewSubjectID()
	event := history.Event{
		Kind:       history.KindScanRecorded,
		SubjectID:  subjectID,
		SessionID:  id.NewSessionID(),
		OccurredAt: time.Unix(1700000000, 0).UTC(),
		Station:    history.StationFrom("", "203.0.113.7"),
	}
	require.NoError(t, recorder.Append(ctx, event))
	require.NoError(t, recorder.Close(ctx))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())

	records := fetches.Records()
	require.Len(t, records, 1)
	require.Equal(t, subjectID.String(), string(records[0].Key))

	var got history.Event
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	require.Equal(t, history.KindScanRecorded, got.Kind)
	require.Equal(t, subjectID, got.SubjectID)
	require.Equal(t, "203.0.113.7", got.Station.ClientIP)
}
