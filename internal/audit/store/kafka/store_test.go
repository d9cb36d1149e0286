package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"lms/internal/audit"
)

type recordingProducer struct {
	records []*kgo.Record
	err     error
}

func (p *recordingProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		p.records = append(p.records, r)
		results = append(results, kgo.ProduceResult{Record: r, Err: p.err})
	}
	return results
}

func TestAppendKeysByApplication(t *testing.T) {
	producer := &recordingProducer{}
	store, err := New(producer, "lms.audit")
	require.NoError(t, err)

	event := audit.Event{ApplicationID: "app-7", Action: audit.ActionStatusChanged, Outcome: "approved"}
	require.NoError(t, store.Append(context.Background(), event))

	require.Len(t, producer.records, 1)
	rec := producer.records[0]
	assert.Equal(t, "lms.audit", rec.Topic)
	assert.Equal(t, []byte("app-7"), rec.Key)

	var decoded audit.Event
	require.NoError(t, json.Unmarshal(rec.Value, &decoded))
	assert.Equal(t, audit.ActionStatusChanged, decoded.Action)
	assert.Equal(t, "approved", decoded.Outcome)
}

func TestAppendSurfacesProduceError(t *testing.T) {
	store, err := New(&recordingProducer{err: errors.New("broker unreachable")}, "lms.audit")
	require.NoError(t, err)

	err = store.Append(context.Background(), audit.Event{ApplicationID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unreachable")
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, "t")
	require.Error(t, err)
	_, err = New(&recordingProducer{}, "")
	require.Error(t, err)
}
