package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sengine/internal/logger"
	"sengine/internal/models"
	"sengine/internal/queue"
)

func statusDelivery(t *testing.T, data queue.StatusEventData) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(queue.StatusEvent{Data: data})
	require.NoError(t, err)
	return amqp.Delivery{Body: body}
}

func sentMessage() *models.Message {
	bRef := "DM-1700000000000-123456"
	sid := "SM123"
	return &models.Message{
		ID:                7,
		UID:               "uid-7",
		BRef:              &bRef,
		ProviderMessageID: &sid,
		UserID:            3,
		WorkspaceID:       4,
		FromNumber:        "+15550001111",
		ToNumber:          "+15551234567",
		Status:            models.MessageStatusSent,
	}
}

func TestStatusReconciler_DeliveredEmitsWebhook(t *testing.T) {
	messages := newMockMessageRepo()
	emitter := &mockEmitter{}
	r := NewStatusReconciler(messages, emitter, logger.NewNop())

	messages.GetByBRefFunc = func(ctx context.Context, bRef string) (*models.Message, error) {
		assert.Equal(t, "DM-1700000000000-123456", bRef)
		return sentMessage(), nil
	}
	var gotCoarse int
	var gotTextual string
	messages.UpdateDeliveryStatusFunc = func(ctx context.Context, id int64, status int, deliveryStatus string) error {
		gotCoarse, gotTextual = status, deliveryStatus
		return nil
	}

	err := r.HandleDelivery(context.Background(), statusDelivery(t, queue.StatusEventData{
		MessageSID: "SM123",
		BRef:       "DM-1700000000000-123456",
		Status:     "delivered",
	}))
	require.NoError(t, err)

	assert.Equal(t, models.MessageStatusDelivered, gotCoarse)
	assert.Equal(t, "delivered", gotTextual)
	require.Len(t, emitter.Events, 1)
	assert.Equal(t, models.EventMessageDelivered, emitter.Events[0].Event)
	data := emitter.Events[0].Data.(map[string]interface{})
	assert.Equal(t, int64(7), data["message_id"])
	assert.Equal(t, "SM123", data["provider_message_id"])
}

func TestStatusReconciler_FailedCarriesErrorDetail(t *testing.T) {
	messages := newMockMessageRepo()
	emitter := &mockEmitter{}
	r := NewStatusReconciler(messages, emitter, logger.NewNop())

	messages.GetByProviderMessageIDFunc = func(ctx context.Context, sid string) (*models.Message, error) {
		return sentMessage(), nil
	}

	err := r.HandleDelivery(context.Background(), statusDelivery(t, queue.StatusEventData{
		MessageSID:   "SM123",
		Status:       "undelivered",
		ErrorCode:    "30003",
		ErrorMessage: "Unreachable destination handset",
	}))
	require.NoError(t, err)

	require.Len(t, emitter.Events, 1)
	assert.Equal(t, models.EventMessageFailed, emitter.Events[0].Event)
	data := emitter.Events[0].Data.(map[string]interface{})
	assert.Equal(t, "30003", data["error_code"])
	assert.Equal(t, "Unreachable destination handset", data["error_message"])
}

func TestStatusReconciler_IntermediateStatusEmitsNothing(t *testing.T) {
	messages := newMockMessageRepo()
	emitter := &mockEmitter{}
	r := NewStatusReconciler(messages, emitter, logger.NewNop())

	messages.GetByProviderMessageIDFunc = func(ctx context.Context, sid string) (*models.Message, error) {
		return sentMessage(), nil
	}

	err := r.HandleDelivery(context.Background(), statusDelivery(t, queue.StatusEventData{
		MessageSID: "SM123",
		Status:     "sent",
	}))
	require.NoError(t, err)

	assert.Equal(t, 1, messages.Calls["UpdateDeliveryStatus"])
	assert.Empty(t, emitter.Events)
}

func TestStatusReconciler_BRefMissFallsBackToSid(t *testing.T) {
	messages := newMockMessageRepo()
	emitter := &mockEmitter{}
	r := NewStatusReconciler(messages, emitter, logger.NewNop())

	messages.GetByProviderMessageIDFunc = func(ctx context.Context, sid string) (*models.Message, error) {
		assert.Equal(t, "SM123", sid)
		return sentMessage(), nil
	}

	err := r.HandleDelivery(context.Background(), statusDelivery(t, queue.StatusEventData{
		MessageSID: "SM123",
		BRef:       "DM-unknown",
		Status:     "delivered",
	}))
	require.NoError(t, err)

	assert.Equal(t, 1, messages.Calls["GetByBRef"])
	assert.Equal(t, 1, messages.Calls["GetByProviderMessageID"])
	assert.Len(t, emitter.Events, 1)
}

func TestStatusReconciler_UnmatchedEventAcks(t *testing.T) {
	messages := newMockMessageRepo()
	emitter := &mockEmitter{}
	r := NewStatusReconciler(messages, emitter, logger.NewNop())

	err := r.HandleDelivery(context.Background(), statusDelivery(t, queue.StatusEventData{
		MessageSID: "SMmissing",
		Status:     "delivered",
	}))
	require.NoError(t, err)

	assert.Equal(t, 0, messages.Calls["UpdateDeliveryStatus"])
	assert.Empty(t, emitter.Events)
}

func TestStatusReconciler_UnknownStatusKeepsCoarse(t *testing.T) {
	messages := newMockMessageRepo()
	emitter := &mockEmitter{}
	r := NewStatusReconciler(messages, emitter, logger.NewNop())

	messages.GetByProviderMessageIDFunc = func(ctx context.Context, sid string) (*models.Message, error) {
		return sentMessage(), nil
	}
	var gotCoarse int
	messages.UpdateDeliveryStatusFunc = func(ctx context.Context, id int64, status int, deliveryStatus string) error {
		gotCoarse = status
		return nil
	}

	err := r.HandleDelivery(context.Background(), statusDelivery(t, queue.StatusEventData{
		MessageSID: "SM123",
		Status:     "partially_delivered",
	}))
	require.NoError(t, err)

	assert.Equal(t, models.MessageStatusSent, gotCoarse)
}

func TestStatusReconciler_UpdateFailureSuppressesWebhook(t *testing.T) {
	messages := newMockMessageRepo()
	emitter := &mockEmitter{}
	r := NewStatusReconciler(messages, emitter, logger.NewNop())

	messages.GetByProviderMessageIDFunc = func(ctx context.Context, sid string) (*models.Message, error) {
		return sentMessage(), nil
	}
	messages.UpdateDeliveryStatusFunc = func(ctx context.Context, id int64, status int, deliveryStatus string) error {
		return errors.New("write timeout")
	}

	err := r.HandleDelivery(context.Background(), statusDelivery(t, queue.StatusEventData{
		MessageSID: "SM123",
		Status:     "delivered",
	}))
	require.NoError(t, err)

	assert.Empty(t, emitter.Events)
}

func TestStatusReconciler_UndecodableEventReturnsError(t *testing.T) {
	r := NewStatusReconciler(newMockMessageRepo(), &mockEmitter{}, logger.NewNop())

	err := r.HandleDelivery(context.Background(), amqp.Delivery{Body: []byte("nope")})
	assert.Error(t, err)
}
