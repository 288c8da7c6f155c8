package delivery

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeTemplateModelReservedKeysWin(t *testing.T) {
	merged := MergeTemplateModel(
		map[string]string{"claim_url": "https://net/claim/abc", "recipient_name": "Alice"},
		map[string]string{"claim_url": "https://evil.example", "greeting": "hi"},
	)

	assert.Equal(t, "https://net/claim/abc", merged["claim_url"])
	assert.Equal(t, "Alice", merged["recipient_name"])
	assert.Equal(t, "hi", merged["greeting"])
}

func TestDispatchDeliversAsynchronously(t *testing.T) {
	mail := NewMemoryService()
	d := NewDispatcher(mail, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Second)

	res := <-d.Dispatch(Notification{Channel: ChannelEmail, To: "alice@example.com", TemplateID: "claim"})
	require.NoError(t, res.Err)

	sent := mail.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "alice@example.com", sent[0].To)
}

func TestDispatchReportsFailures(t *testing.T) {
	mail := NewMemoryService()
	mail.Err = errors.New("provider down")

	d := NewDispatcher(mail, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Second)
	failures := 0
	d.OnFailure(func() { failures++ })

	res := <-d.Dispatch(Notification{Channel: ChannelEmail, To: "alice@example.com"})
	require.Error(t, res.Err)
	assert.Equal(t, 1, failures)
	assert.Empty(t, mail.Sent())
}
