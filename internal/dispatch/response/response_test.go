package response

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "service-dispatch/internal/common/errors"
	"service-dispatch/internal/common/logger"
	"service-dispatch/internal/dispatch/messages"
	"service-dispatch/internal/models"
	"service-dispatch/internal/store/memory"
)

func TestKeywordClassifier(t *testing.T) {
	c := NewKeywordClassifier()

	tests := []struct {
		text string
		want models.ReplyDecision
	}{
		{"Oui", models.DecisionAccept},
		{"OUI !!", models.DecisionAccept},
		{"ok", models.DecisionAccept},
		{"D'accord, j'arrive", models.DecisionAccept},
		{"J’accepte", models.DecisionAccept},
		{"accepté", models.DecisionAccept},
		{"yes", models.DecisionAccept},
		{"Non", models.DecisionReject},
		{"Refusé", models.DecisionReject},
		{"je suis indisponible", models.DecisionReject},
		{"ok mais pas disponible", models.DecisionReject},
		{"oui... enfin non", models.DecisionReject},
		{"combien ça paie ?", models.DecisionUnknown},
		{"nono", models.DecisionUnknown},
		{"book", models.DecisionUnknown},
		{"", models.DecisionUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.text))
		})
	}
}

func TestKeywordClassifier_CustomPhrases(t *testing.T) {
	c := NewKeywordClassifierWith([]string{"go"}, []string{"stop"})
	assert.Equal(t, models.DecisionAccept, c.Classify("Go!"))
	assert.Equal(t, models.DecisionReject, c.Classify("go, no wait, stop"))
	assert.Equal(t, models.DecisionUnknown, c.Classify("oui"))
}

type decision struct {
	kind       string
	requestID  string
	providerID string
}

type fakeDecider struct {
	mu        sync.Mutex
	calls     []decision
	acceptErr error
}

func (d *fakeDecider) Accept(_ context.Context, requestID, providerID string) (*models.ServiceRequest, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, decision{"accept", requestID, providerID})
	if d.acceptErr != nil {
		return nil, d.acceptErr
	}
	return &models.ServiceRequest{ID: requestID, Status: models.StatusAssigned}, nil
}

func (d *fakeDecider) Reject(_ context.Context, requestID, providerID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, decision{"reject", requestID, providerID})
	return nil
}

type recordingGateway struct {
	mu   sync.Mutex
	sent map[string][]string
}

func (g *recordingGateway) Send(_ context.Context, channelID, message string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sent == nil {
		g.sent = map[string][]string{}
	}
	g.sent[channelID] = append(g.sent[channelID], message)
	return true
}

func newHandler(t *testing.T) (*Handler, *memory.Store, *fakeDecider, *recordingGateway) {
	t.Helper()
	st := memory.New()
	d := &fakeDecider{}
	gw := &recordingGateway{}
	return NewHandler(st, d, nil, gw, logger.NewTestLogger(t)), st, d, gw
}

func seedNotification(t *testing.T, st *memory.Store, requestID, providerID, channel string, sentAt time.Time) {
	t.Helper()
	require.NoError(t, st.SaveNotification(context.Background(), &models.NotificationRecord{
		RequestID:  requestID,
		ProviderID: providerID,
		ChannelID:  channel,
		SentAt:     sentAt,
	}))
}

func TestResolve_PicksMostRecentOpenRecord(t *testing.T) {
	h, st, _, _ := newHandler(t)
	ctx := context.Background()
	base := time.Now().UTC()

	seedNotification(t, st, "req-old", "p-1", "ch-1", base.Add(-10*time.Minute))
	seedNotification(t, st, "req-new", "p-1", "ch-1", base)
	seedNotification(t, st, "req-other", "p-2", "ch-2", base.Add(time.Minute))

	rec, err := h.Resolve(ctx, "ch-1")
	require.NoError(t, err)
	assert.Equal(t, "req-new", rec.RequestID)

	require.NoError(t, st.MarkResponded(ctx, "req-new", "p-1", models.DecisionReject, base))
	rec, err = h.Resolve(ctx, "ch-1")
	require.NoError(t, err)
	assert.Equal(t, "req-old", rec.RequestID)

	_, err = h.Resolve(ctx, "ch-unknown")
	assert.ErrorIs(t, err, apperrors.ErrNoPendingRequest)
}

func TestOnReply(t *testing.T) {
	ctx := context.Background()

	t.Run("accept goes to the decider", func(t *testing.T) {
		h, st, d, _ := newHandler(t)
		seedNotification(t, st, "req-1", "p-1", "ch-1", time.Now())

		out, err := h.OnReply(ctx, "ch-1", "Oui je prends")
		require.NoError(t, err)
		assert.Equal(t, models.DecisionAccept, out.Decision)
		assert.Equal(t, models.StatusAssigned, out.Status)
		assert.Equal(t, []decision{{"accept", "req-1", "p-1"}}, d.calls)
	})

	t.Run("reject goes to the decider", func(t *testing.T) {
		h, st, d, _ := newHandler(t)
		seedNotification(t, st, "req-1", "p-1", "ch-1", time.Now())

		out, err := h.OnReply(ctx, "ch-1", "non désolé")
		require.NoError(t, err)
		assert.Equal(t, models.DecisionReject, out.Decision)
		assert.Equal(t, []decision{{"reject", "req-1", "p-1"}}, d.calls)
	})

	t.Run("unknown text gets help and no decision", func(t *testing.T) {
		h, st, d, gw := newHandler(t)
		seedNotification(t, st, "req-1", "p-1", "ch-1", time.Now())

		out, err := h.OnReply(ctx, "ch-1", "c'est où exactement ?")
		require.NoError(t, err)
		assert.Equal(t, models.DecisionUnknown, out.Decision)
		assert.Empty(t, d.calls)
		assert.Equal(t, []string{messages.Render(messages.ProviderHelp, nil)}, gw.sent["ch-1"])

		rec, err := h.Resolve(ctx, "ch-1")
		require.NoError(t, err)
		assert.True(t, rec.Open())
	})

	t.Run("no pending request", func(t *testing.T) {
		h, _, d, gw := newHandler(t)

		out, err := h.OnReply(ctx, "ch-9", "oui")
		require.NoError(t, err)
		assert.False(t, out.Pending)
		assert.Empty(t, d.calls)
		assert.Equal(t, []string{messages.Render(messages.ProviderNoPending, nil)}, gw.sent["ch-9"])
	})

	t.Run("conflict is returned", func(t *testing.T) {
		h, st, d, _ := newHandler(t)
		d.acceptErr = apperrors.ErrAssignmentConflict
		seedNotification(t, st, "req-1", "p-1", "ch-1", time.Now())

		out, err := h.OnReply(ctx, "ch-1", "ok")
		assert.True(t, errors.Is(err, apperrors.ErrAssignmentConflict))
		require.NotNil(t, out)
		assert.Equal(t, "req-1", out.RequestID)
	})
}
