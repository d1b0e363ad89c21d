package registry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tradeyard/tradeyard-backend/pkg/config"
	"github.com/tradeyard/tradeyard-backend/pkg/db/models"
	"github.com/tradeyard/tradeyard-backend/pkg/enums"
	"github.com/tradeyard/tradeyard-backend/pkg/outbox"
	"github.com/tradeyard/tradeyard-backend/pkg/outbox/payloads"
)

func testRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{
		OrdersTopic:       "orders",
		NotificationTopic: "notifications",
	})
	require.NoError(t, err)
	return reg
}

func encodeEnvelope(t *testing.T, data any) json.RawMessage {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       payload,
	}
	raw, err := json.Marshal(envelope)
	require.NoError(t, err)
	return raw
}

func TestResolveOrderReceived(t *testing.T) {
	reg := testRegistry(t)
	orderID := uuid.New()
	sellerID := uuid.New()

	event := models.OutboxEvent{
		EventType:     enums.EventOrderReceived,
		AggregateType: enums.AggregatePurchasedOrder,
		AggregateID:   orderID,
		Payload: encodeEnvelope(t, payloads.OrderReceivedEvent{
			OrderID:     orderID,
			BuyerID:     uuid.New(),
			LineCount:   2,
			AmountCents: 4000,
			Sellers: []payloads.OrderSellerShare{
				{SellerID: sellerID, LineCount: 2, GrossCents: 4000, FeeCents: 400, NetCents: 3600},
			},
		}),
	}

	resolved, err := reg.Resolve(event)
	require.NoError(t, err)
	require.Equal(t, "orders", resolved.Descriptor.Topic)

	typed, ok := resolved.Payload.(*payloads.OrderReceivedEvent)
	require.True(t, ok)
	require.Equal(t, int64(4000), typed.AmountCents)
	require.Len(t, typed.Sellers, 1)
	require.Equal(t, sellerID, typed.Sellers[0].SellerID)
	require.Equal(t, int64(3600), typed.Sellers[0].NetCents)
}

func TestResolveOutOfStockRoutesToNotifications(t *testing.T) {
	reg := testRegistry(t)
	productID := uuid.New()

	event := models.OutboxEvent{
		EventType:     enums.EventProductOutOfStock,
		AggregateType: enums.AggregateProduct,
		AggregateID:   productID,
		Payload: encodeEnvelope(t, payloads.ProductOutOfStockEvent{
			ProductID:   productID,
			SellerID:    uuid.New(),
			OrderID:     uuid.New(),
			ProductName: "walnut desk",
		}),
	}

	resolved, err := reg.Resolve(event)
	require.NoError(t, err)
	require.Equal(t, "notifications", resolved.Descriptor.Topic)
}

func TestResolveRejectsUnknownEventType(t *testing.T) {
	reg := testRegistry(t)

	_, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.OutboxEventType("order_rejected"),
		AggregateType: enums.AggregatePurchasedOrder,
		AggregateID:   uuid.New(),
	})
	require.Error(t, err)

	var nonRetry NonRetryableError
	require.ErrorAs(t, err, &nonRetry)
}

func TestResolveRejectsAggregateMismatch(t *testing.T) {
	reg := testRegistry(t)

	_, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventOrderReceived,
		AggregateType: enums.AggregateProduct,
		AggregateID:   uuid.New(),
		Payload:       encodeEnvelope(t, payloads.OrderReceivedEvent{}),
	})
	require.Error(t, err)
}

func TestResolveRejectsEmptyPayload(t *testing.T) {
	reg := testRegistry(t)

	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version: 1,
		EventID: uuid.NewString(),
		Data:    json.RawMessage("null"),
	})
	require.NoError(t, err)

	_, err = reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventOrderReceived,
		AggregateType: enums.AggregatePurchasedOrder,
		AggregateID:   uuid.New(),
		Payload:       envelope,
	})
	require.Error(t, err)
}
