package tasks_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-payments/internal/common"
	"github.com/noah-isme/backend-payments/internal/tasks"
)

func TestReceiptHandlerSendsEmail(t *testing.T) {
	mail := &common.InMemoryEmail{}
	h := &tasks.ReceiptHandler{Mail: mail, To: "billing@example.com", Logger: zerolog.Nop()}

	payload, err := json.Marshal(tasks.ReceiptPayload{
		EventID: "evt_1", OrderID: "ord_1", Amount: 2500, Currency: "usd",
	})
	require.NoError(t, err)

	err = h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeReceiptEmail, payload))
	require.NoError(t, err)
	require.Len(t, mail.Outbox, 1)
	require.Equal(t, "billing@example.com", mail.Outbox[0].To)
	require.Contains(t, mail.Outbox[0].Subject, "ord_1")
	require.Contains(t, mail.Outbox[0].HTML, "2500 USD")
}

func TestReceiptHandlerSkipsRetryOnMalformedPayload(t *testing.T) {
	h := &tasks.ReceiptHandler{Mail: &common.InMemoryEmail{}, Logger: zerolog.Nop()}

	err := h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeReceiptEmail, []byte("{not json")))
	require.Error(t, err)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type failingSender struct{}

func (failingSender) Send(string, string, string) error { return errors.New("smtp down") }

func TestReceiptHandlerPropagatesSendFailure(t *testing.T) {
	h := &tasks.ReceiptHandler{Mail: failingSender{}, Logger: zerolog.Nop()}

	payload, err := json.Marshal(tasks.ReceiptPayload{EventID: "evt_2", OrderID: "ord_2", Amount: 1, Currency: "usd"})
	require.NoError(t, err)

	err = h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeReceiptEmail, payload))
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}
