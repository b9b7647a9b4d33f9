package complexity

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"service-dispatch/internal/common/config"
	apperrors "service-dispatch/internal/common/errors"
	"service-dispatch/internal/common/logger"
	"service-dispatch/internal/models"
)

func conversation(id string, texts ...string) models.Conversation {
	conv := models.Conversation{ID: id, UserID: "u-" + id, ChannelID: "whatsapp:+237690000001"}
	for _, t := range texts {
		conv.Messages = append(conv.Messages,
			models.ConversationMessage{Role: models.RoleUser, Text: t},
			models.ConversationMessage{Role: models.RoleAssistant, Text: "C'est urgent ? Je m'en occupe vite."},
		)
	}
	return conv
}

var electricalEmergency = []string{
	"Le disjoncteur saute et le différentiel aussi, c'est urgent !!",
	"C'est inacceptable, toujours pas de courant, il y a des étincelles",
}

func TestAnalyze(t *testing.T) {
	a := NewAnalyzer(DefaultConfig())

	t.Run("calm request stays with the assistant", func(t *testing.T) {
		as := a.Analyze(conversation("c1", "Bonjour, j'ai une fuite sous l'évier"))
		assert.False(t, as.Escalate)
		assert.Zero(t, as.Frustration)
		assert.Zero(t, as.Urgency)
		assert.InDelta(t, 0.1, as.Turns, 1e-9)
		assert.InDelta(t, 0.02, as.Score, 1e-9)
	})

	t.Run("frustrated technical emergency crosses the threshold", func(t *testing.T) {
		as := a.Analyze(conversation("c2", electricalEmergency...))
		assert.Equal(t, 1.0, as.Frustration)
		assert.Equal(t, 1.0, as.Urgency)
		assert.InDelta(t, 20.0/22.0, as.Technical, 1e-9)
		assert.InDelta(t, 0.2, as.Turns, 1e-9)
		assert.InDelta(t, 0.817273, as.Score, 1e-6)
		assert.True(t, as.Escalate)
		assert.Equal(t, TriggerScore, as.Trigger)
	})

	t.Run("explicit human request escalates regardless of score", func(t *testing.T) {
		as := a.Analyze(conversation("c3", "Je voudrais parler à un conseiller svp"))
		assert.Less(t, as.Score, 0.6)
		assert.True(t, as.HumanRequested)
		assert.True(t, as.Escalate)
		assert.Equal(t, TriggerHumanRequest, as.Trigger)
	})

	t.Run("long but calm conversation does not escalate", func(t *testing.T) {
		texts := make([]string, 12)
		for i := range texts {
			texts[i] = "d'accord merci"
		}
		as := a.Analyze(conversation("c4", texts...))
		assert.Equal(t, 1.0, as.Turns)
		assert.InDelta(t, 0.2, as.Score, 1e-9)
		assert.False(t, as.Escalate)
	})

	t.Run("assistant messages are ignored", func(t *testing.T) {
		as := a.Analyze(models.Conversation{ID: "c5", Messages: []models.ConversationMessage{
			{Role: models.RoleAssistant, Text: "URGENT URGENT danger !!"},
		}})
		assert.Zero(t, as.Score)
	})
}

func TestConfigFromEscalation(t *testing.T) {
	cfg := ConfigFromEscalation(config.EscalationConfig{})
	assert.Equal(t, DefaultConfig(), cfg)

	cfg = ConfigFromEscalation(config.EscalationConfig{
		Threshold: 0.8,
		MaxTurns:  5,
		Weights:   config.ComplexityWeights{Frustration: 1},
	})
	assert.Equal(t, 0.8, cfg.Threshold)
	assert.Equal(t, 5, cfg.MaxTurns)
	assert.Equal(t, Weights{Frustration: 1}, cfg.Weights)
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *fakeMailer) SendEmail(_ context.Context, to, subject, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to+"|"+subject)
	return m.err
}

type fakeGateway struct {
	mu   sync.Mutex
	sent []string
}

func (g *fakeGateway) Send(_ context.Context, channelID, _ string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, channelID)
	return true
}

func newRouter(t *testing.T, client redis.Cmdable, mailer *fakeMailer, gw *fakeGateway) *Router {
	t.Helper()
	opts := RouterOptions{DeskEmail: "agents@example.cm"}
	if mailer != nil {
		opts.Mailer = mailer
	}
	if gw != nil {
		opts.Gateway = gw
	}
	r := NewRouter(NewAnalyzer(DefaultConfig()), client, opts, logger.NewTestLogger(t))
	r.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	return r
}

func TestEvaluate_RoutesOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	mailer := &fakeMailer{}
	gw := &fakeGateway{}
	r := newRouter(t, client, mailer, gw)
	ctx := context.Background()

	conv := conversation("conv-1", electricalEmergency...)
	as, routed, err := r.Evaluate(ctx, conv)
	require.NoError(t, err)
	assert.True(t, routed)
	assert.True(t, as.Escalate)

	items, err := mr.List(DefaultAgentQueueKey)
	require.NoError(t, err)
	require.Len(t, items, 1)
	var h Handoff
	require.NoError(t, json.Unmarshal([]byte(items[0]), &h))
	assert.Equal(t, "conv-1", h.ConversationID)
	assert.Equal(t, TriggerScore, h.Trigger)
	assert.True(t, mr.Exists("conversation:escalated:conv-1"))
	assert.Equal(t, 24*time.Hour, mr.TTL("conversation:escalated:conv-1"))

	_, routed, err = r.Evaluate(ctx, conv)
	require.NoError(t, err)
	assert.False(t, routed)
	items, _ = mr.List(DefaultAgentQueueKey)
	assert.Len(t, items, 1)
	assert.Len(t, mailer.sent, 1)
	assert.Contains(t, mailer.sent[0], "agents@example.cm|Conversation conv-1")
	assert.Equal(t, []string{conv.ChannelID}, gw.sent)

	require.NoError(t, r.Release(ctx, "conv-1"))
	_, routed, err = r.Evaluate(ctx, conv)
	require.NoError(t, err)
	assert.True(t, routed)
}

func TestEvaluate_BelowThresholdTouchesNothing(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	r := newRouter(t, client, nil, nil)

	_, routed, err := r.Evaluate(context.Background(), conversation("conv-2", "Bonjour"))
	require.NoError(t, err)
	assert.False(t, routed)
	assert.Empty(t, mr.Keys())

	_, _, err = r.Evaluate(context.Background(), models.Conversation{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)
}

func TestEvaluate_MailerFailureStillRoutes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	r := newRouter(t, client, &fakeMailer{err: errors.New("ses throttled")}, nil)

	_, routed, err := r.Evaluate(context.Background(), conversation("conv-3", "je veux un humain"))
	require.NoError(t, err)
	assert.True(t, routed)
}

func TestEvaluate_QueueFailureReleasesMarker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, mr.Set(DefaultAgentQueueKey, "not-a-list"))
	r := newRouter(t, client, nil, nil)

	_, routed, err := r.Evaluate(context.Background(), conversation("conv-4", "je veux un humain"))
	require.Error(t, err)
	assert.False(t, routed)
	assert.Equal(t, apperrors.ErrCodeAgentQueueFailed, apperrors.FromError(err).Code)
	assert.False(t, mr.Exists("conversation:escalated:conv-4"))
}

func TestEvaluate_RedisDown(t *testing.T) {
	client, mock := redismock.NewClientMock()
	r := newRouter(t, client, nil, nil)

	mock.ExpectSetNX("conversation:escalated:conv-5", TriggerHumanRequest, 24*time.Hour).SetErr(errors.New("connection refused"))

	_, routed, err := r.Evaluate(context.Background(), conversation("conv-5", "je veux un humain"))
	require.Error(t, err)
	assert.False(t, routed)
	assert.True(t, apperrors.FromError(err).Retryable)
	assert.NoError(t, mock.ExpectationsWereMet())
}
