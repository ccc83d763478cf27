package processor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sorrel/pkg/kafka"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/schedule"
	"github.com/Ramsey-B/sorrel/pkg/writing"
)

type fakeEngine struct {
	result models.WriteResult
	err    error
	writes []models.Content
}

func (f *fakeEngine) WriteContent(_ context.Context, content models.Content) (models.WriteResult, error) {
	f.writes = append(f.writes, content)
	if f.err != nil {
		return models.WriteResult{}, f.err
	}
	return f.result, nil
}

type fakeAssertions struct {
	update models.EquivalenceGraphUpdate
	err    error
	calls  int
}

func (f *fakeAssertions) WriteAssertions(_ context.Context, _ models.ContentRef, _ []models.ContentRef) (models.EquivalenceGraphUpdate, error) {
	f.calls++
	return f.update, f.err
}

type fakeConsolidator struct {
	updates  []models.EquivalenceGraphUpdate
	contents []models.Content
	err      error
}

func (f *fakeConsolidator) UpdateEquivalences(_ context.Context, update models.EquivalenceGraphUpdate) error {
	f.updates = append(f.updates, update)
	return f.err
}

func (f *fakeConsolidator) UpdateContent(_ context.Context, content models.Content) error {
	f.contents = append(f.contents, content)
	return f.err
}

type fakeReconciler struct {
	result schedule.ReconcileResult
	err    error
	calls  int
}

func (f *fakeReconciler) WriteSchedule(_ context.Context, _, _ string, _ models.Interval, _ []models.ScheduleHierarchy) (schedule.ReconcileResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeProjections struct {
	scheduleChannels []string
	equivalences     int
}

func (f *fakeProjections) ScheduleUpdated(_ context.Context, channelID string) error {
	f.scheduleChannels = append(f.scheduleChannels, channelID)
	return nil
}

func (f *fakeProjections) EquivalencesUpdated(_ context.Context) error {
	f.equivalences++
	return nil
}

type fakeEquivNotifier struct {
	updates []models.EquivalenceGraphUpdate
}

func (f *fakeEquivNotifier) NotifyEquivalenceUpdate(_ context.Context, update models.EquivalenceGraphUpdate) error {
	f.updates = append(f.updates, update)
	return nil
}

type fakeSchedNotifier struct {
	calls int
}

func (f *fakeSchedNotifier) NotifyScheduleUpdate(_ context.Context, _, _ string, _ models.Interval, _, _ int) error {
	f.calls++
	return nil
}

type harness struct {
	processor    *Processor
	engine       *fakeEngine
	assertions   *fakeAssertions
	consolidator *fakeConsolidator
	reconciler   *fakeReconciler
	projections  *fakeProjections
	equivEvents  *fakeEquivNotifier
	schedEvents  *fakeSchedNotifier
}

func newHarness() *harness {
	h := &harness{
		engine:       &fakeEngine{},
		assertions:   &fakeAssertions{},
		consolidator: &fakeConsolidator{},
		reconciler:   &fakeReconciler{},
		projections:  &fakeProjections{},
		equivEvents:  &fakeEquivNotifier{},
		schedEvents:  &fakeSchedNotifier{},
	}
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	h.processor = NewProcessor(logger, h.engine, h.assertions, h.consolidator, h.reconciler, h.projections, h.equivEvents, h.schedEvents)
	return h
}

func message(t *testing.T, msgType string, body any) *kafka.IncomingMessage {
	t.Helper()
	value, err := json.Marshal(body)
	require.NoError(t, err)
	return &kafka.IncomingMessage{
		Value:   value,
		Headers: map[string]string{"message_type": msgType},
		Topic:   "sorrel.ingest",
	}
}

func contentMessage(t *testing.T, c models.Content) *kafka.IncomingMessage {
	t.Helper()
	payload, err := models.MarshalContent(c)
	require.NoError(t, err)
	return message(t, models.IngestTypeContent, models.ContentWriteMessage{Content: payload})
}

func TestHandleContentWriteRefreshesEquivalenceView(t *testing.T) {
	h := newHarness()
	item := &models.Item{ContentCore: models.ContentCore{Publisher: "bbc.co.uk", Title: "News at Ten"}}
	written := item.Copy()
	id := int64(7)
	written.Core().ID = &id
	h.engine.result = models.WriteResult{Written: true, Resource: written, WrittenAt: time.Now()}

	err := h.processor.HandleMessage(context.Background(), contentMessage(t, item))

	require.NoError(t, err)
	require.Len(t, h.engine.writes, 1)
	require.Len(t, h.consolidator.contents, 1)
	assert.Equal(t, int64(7), *h.consolidator.contents[0].Core().ID)
}

func TestHandleContentWriteNoOpSkipsConsolidation(t *testing.T) {
	h := newHarness()
	previous := &models.Item{ContentCore: models.ContentCore{Publisher: "bbc.co.uk", Title: "News at Ten"}}
	h.engine.result = models.WriteResult{Written: false, Resource: previous, Previous: previous}

	err := h.processor.HandleMessage(context.Background(), contentMessage(t, previous))

	require.NoError(t, err)
	assert.Empty(t, h.consolidator.contents)
}

func TestHandleContentWriteBadInputIsCommitted(t *testing.T) {
	h := newHarness()
	h.engine.err = writing.NewPreconditionError("episode has no container ref")
	episode := &models.Episode{Item: models.Item{ContentCore: models.ContentCore{Publisher: "bbc.co.uk"}}}

	err := h.processor.HandleMessage(context.Background(), contentMessage(t, episode))

	assert.NoError(t, err)
}

func TestHandleContentWriteInfrastructureFailureIsRetried(t *testing.T) {
	h := newHarness()
	h.engine.err = errors.New("connection refused")

	err := h.processor.HandleMessage(context.Background(), contentMessage(t, &models.Item{ContentCore: models.ContentCore{Publisher: "bbc.co.uk"}}))

	assert.Error(t, err)
}

func TestHandleEquivalenceAssertFansOut(t *testing.T) {
	h := newHarness()
	update := models.EquivalenceGraphUpdate{
		Updated: models.EquivalenceGraph{Members: []models.ContentRef{
			{ID: 1, Publisher: "bbc.co.uk", Type: models.ContentTypeItem},
			{ID: 2, Publisher: "itv.com", Type: models.ContentTypeItem},
		}},
	}
	h.assertions.update = update

	msg := message(t, models.IngestTypeEquivalence, models.EquivalenceAssertMessage{
		Subject:  models.ContentRef{ID: 1, Publisher: "bbc.co.uk", Type: models.ContentTypeItem},
		Asserted: []models.ContentRef{{ID: 2, Publisher: "itv.com", Type: models.ContentTypeItem}},
	})
	err := h.processor.HandleMessage(context.Background(), msg)

	require.NoError(t, err)
	assert.Equal(t, 1, h.assertions.calls)
	require.Len(t, h.consolidator.updates, 1)
	assert.Equal(t, 1, h.projections.equivalences)
	require.Len(t, h.equivEvents.updates, 1)
}

func TestHandleEquivalenceConsolidationFailureIsRetried(t *testing.T) {
	h := newHarness()
	h.consolidator.err = errors.New("lock wait interrupted")

	msg := message(t, models.IngestTypeEquivalence, models.EquivalenceAssertMessage{
		Subject: models.ContentRef{ID: 1, Publisher: "bbc.co.uk", Type: models.ContentTypeItem},
	})
	err := h.processor.HandleMessage(context.Background(), msg)

	assert.Error(t, err)
	assert.Empty(t, h.equivEvents.updates)
}

func scheduleMessage(t *testing.T) *kafka.IncomingMessage {
	t.Helper()
	start := time.Date(2021, time.March, 1, 20, 0, 0, 0, time.UTC)
	item, err := models.MarshalContent(&models.Item{ContentCore: models.ContentCore{Publisher: "bbc.co.uk", Title: "News at Ten"}})
	require.NoError(t, err)
	return message(t, models.IngestTypeSchedule, models.ScheduleWriteMessage{
		Publisher: "bbc.co.uk",
		ChannelID: "bbcone",
		Interval:  models.Interval{Start: start, End: start.Add(time.Hour)},
		Entries: []models.ScheduleEntryMessage{{
			Item:      item,
			Broadcast: models.Broadcast{ChannelID: "bbcone", Start: start, End: start.Add(time.Hour)},
		}},
	})
}

func TestHandleScheduleWriteInvalidatesAndNotifies(t *testing.T) {
	h := newHarness()
	h.reconciler.result = schedule.ReconcileResult{Written: true, EntriesInput: 1}

	err := h.processor.HandleMessage(context.Background(), scheduleMessage(t))

	require.NoError(t, err)
	assert.Equal(t, 1, h.reconciler.calls)
	assert.Equal(t, []string{"bbcone"}, h.projections.scheduleChannels)
	assert.Equal(t, 1, h.schedEvents.calls)
}

func TestHandleScheduleWriteNoOpSkipsFanOut(t *testing.T) {
	h := newHarness()
	h.reconciler.result = schedule.ReconcileResult{Written: false, EntriesInput: 1}

	err := h.processor.HandleMessage(context.Background(), scheduleMessage(t))

	require.NoError(t, err)
	assert.Empty(t, h.projections.scheduleChannels)
	assert.Equal(t, 0, h.schedEvents.calls)
}

func TestHandleScheduleWriteValidationFailureIsCommitted(t *testing.T) {
	h := newHarness()
	h.reconciler.err = schedule.NewValidationError("entries overlap")

	err := h.processor.HandleMessage(context.Background(), scheduleMessage(t))

	assert.NoError(t, err)
	assert.Equal(t, 0, h.schedEvents.calls)
}

func TestHandleUnknownMessageTypeIsIgnored(t *testing.T) {
	h := newHarness()

	err := h.processor.HandleMessage(context.Background(), &kafka.IncomingMessage{
		Value:   []byte(`{}`),
		Headers: map[string]string{"message_type": "something.else"},
	})

	require.NoError(t, err)
	assert.Empty(t, h.engine.writes)
	assert.Equal(t, 0, h.assertions.calls)
	assert.Equal(t, 0, h.reconciler.calls)
}
