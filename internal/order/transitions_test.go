package order_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-payments/internal/order"
)

func TestTransitionTable(t *testing.T) {
	statuses := []order.Status{order.StatusPending, order.StatusPaid, order.StatusFailed, order.StatusCanceled}
	kinds := []order.EventKind{order.KindPaymentSucceeded, order.KindPaymentFailed, order.KindPaymentCanceled, order.KindUnknown}

	allowed := map[[2]string]order.Status{
		{string(order.StatusPending), string(order.KindPaymentSucceeded)}: order.StatusPaid,
		{string(order.StatusPending), string(order.KindPaymentFailed)}:    order.StatusFailed,
		{string(order.StatusPending), string(order.KindPaymentCanceled)}:  order.StatusCanceled,
		{string(order.StatusPaid), string(order.KindPaymentCanceled)}:     order.StatusCanceled,
		{string(order.StatusFailed), string(order.KindPaymentCanceled)}:   order.StatusCanceled,
	}

	for _, s := range statuses {
		for _, k := range kinds {
			next, err := order.Transition(s, k)
			if want, ok := allowed[[2]string{string(s), string(k)}]; ok {
				require.NoError(t, err, "%s on %s", k, s)
				require.Equal(t, want, next)
				continue
			}
			require.ErrorIs(t, err, order.ErrInvalidTransition, "%s on %s", k, s)
			require.Equal(t, s, next, "rejected transitions keep the current status")
		}
	}
}

func TestTransitionIsDeterministic(t *testing.T) {
	first, err1 := order.Transition(order.StatusPending, order.KindPaymentSucceeded)
	second, err2 := order.Transition(order.StatusPending, order.KindPaymentSucceeded)
	require.NoError(t, err1)
	require.NoError(t, err2)
	require.Equal(t, first, second)
}

func TestParseStatus(t *testing.T) {
	got, ok := order.ParseStatus(" Paid ")
	require.True(t, ok)
	require.Equal(t, order.StatusPaid, got)

	_, ok = order.ParseStatus("refunded")
	require.False(t, ok)
}
