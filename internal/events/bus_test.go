package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/events"
)

type capturingNotifier struct {
	events []events.Event
	err    error
}

func (n *capturingNotifier) Notify(_ context.Context, ev events.Event) error {
	n.events = append(n.events, ev)
	return n.err
}

func TestEmitFansOutToNotifiers(t *testing.T) {
	first := &capturingNotifier{}
	second := &capturingNotifier{}
	bus := &events.Bus{Notifiers: []events.Notifier{first, second}}

	ev, err := bus.Emit(context.Background(), events.TopicSaleCommitted, "sale-1", map[string]any{"total": 27300})
	require.NoError(t, err)
	require.Equal(t, events.TopicSaleCommitted, ev.Topic)
	require.Len(t, first.events, 1)
	require.Len(t, second.events, 1)
	require.Equal(t, ev.ID, first.events[0].ID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(ev.Payload, &decoded))
	require.EqualValues(t, 27300, decoded["total"])
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	failing := &capturingNotifier{err: errors.New("printer offline")}
	ok := &capturingNotifier{}
	bus := &events.Bus{Notifiers: []events.Notifier{failing, ok}}

	_, err := bus.Emit(context.Background(), events.TopicShiftClosed, "sh-1", nil)
	require.Error(t, err)
	// Fan-out still reaches the remaining notifiers.
	require.Len(t, ok.events, 1)
}

func TestEmitValidation(t *testing.T) {
	bus := &events.Bus{}
	_, err := bus.Emit(context.Background(), "", "sale-1", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicSaleCommitted, "", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicSaleCommitted, "sale-1", []byte("not json"))
	require.Error(t, err)
}
