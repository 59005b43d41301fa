package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-fulfillment/internal/domain/fault"
	"github.com/xenking/kart-fulfillment/internal/domain/payment"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  payment.Notification
	}{
		{
			name:  "captured",
			input: `{"event":"payment.captured","orderId":"intent_1","paymentId":"pay_1","deliveryId":"evt_1"}`,
			want: payment.Notification{
				Event: "payment.captured", IntentRef: "intent_1", Label: "pay_1", DeliveryID: "evt_1",
			},
		},
		{
			name:  "failed with reason",
			input: `{"event":"payment.failed","orderId":"intent_2","reason":"card declined"}`,
			want:  payment.Notification{Event: "payment.failed", IntentRef: "intent_2", Reason: "card declined"},
		},
		{
			name:  "unknown fields and nulls",
			input: `{"event":"order.paid","orderId":"intent_3","paymentId":null,"extra":{"a":[1,2]}}`,
			want:  payment.Notification{Event: "order.paid", IntentRef: "intent_3"},
		},
		{
			name:  "empty object",
			input: `{}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	for _, input := range []string{``, `[]`, `"x"`, `{"event":1}`, `{"event":"payment.failed"`} {
		_, err := Decode([]byte(input))
		require.Error(t, err, input)
		assert.Equal(t, fault.InvalidInput, fault.KindOf(err), input)
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	n := payment.Notification{
		Event: payment.EventPaymentFailed, IntentRef: "intent_9", Reason: "expired", DeliveryID: "sim_intent_9",
	}
	got, err := Decode(Encode(n))
	require.NoError(t, err)
	assert.Equal(t, n, got)
	assert.NotContains(t, string(Encode(n)), "paymentId")
}
