package ping

import (
	"errors"
	"testing"
	"time"

	"lifesignal-sync/internal/models"
	"lifesignal-sync/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func setup(t *testing.T, contacts ...models.Contact) (*Handler, *store.ContactStore) {
	t.Helper()
	s := store.NewContactStore(zap.NewNop())
	for _, c := range contacts {
		_, err := s.Apply(store.AddContact{Contact: c})
		require.NoError(t, err)
	}
	h := NewHandler(s, zap.NewNop())
	h.SetClock(func() time.Time { return fixedNow })
	return h, s
}

func TestSendPing_ThenClear(t *testing.T) {
	h, s := setup(t, models.Contact{ID: "x", IsDependent: true})

	res, err := h.SendPing("x")
	require.NoError(t, err)
	assert.True(t, res.Contact.HasOutgoingPing)
	require.NotNil(t, res.Contact.OutgoingPingTimestamp)
	assert.True(t, res.Contact.OutgoingPingTimestamp.Equal(fixedNow))

	_, err = h.ClearPing("x")
	require.NoError(t, err)
	got, _ := s.Get("x")
	assert.False(t, got.HasOutgoingPing)
	assert.Nil(t, got.OutgoingPingTimestamp)
}

func TestSendPing_NotEligible(t *testing.T) {
	h, s := setup(t, models.Contact{ID: "r", IsResponder: true})

	_, err := h.SendPing("r")

	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNotEligible))
	got, _ := s.Get("r")
	assert.False(t, got.HasOutgoingPing)
}

func TestSendPing_UnknownContact(t *testing.T) {
	h, _ := setup(t)
	_, err := h.SendPing("nobody")
	assert.ErrorIs(t, err, models.ErrContactNotFound)
}

func TestClearPing_NoActivePing(t *testing.T) {
	h, _ := setup(t, models.Contact{ID: "x", IsDependent: true})
	_, err := h.ClearPing("x")
	assert.ErrorIs(t, err, models.ErrNoActivePing)
}

func TestRespondToPing(t *testing.T) {
	h, s := setup(t, models.Contact{ID: "r", IsResponder: true, HasIncomingPing: true, IncomingPingTimestamp: models.TimePtr(fixedNow)})

	_, err := h.RespondToPing("r")
	require.NoError(t, err)
	got, _ := s.Get("r")
	assert.False(t, got.HasIncomingPing)
	assert.Nil(t, got.IncomingPingTimestamp)

	_, err = h.RespondToPing("r")
	assert.ErrorIs(t, err, models.ErrNoActivePing)
}

func TestRespondToAllPings_SecondCallReturnsZero(t *testing.T) {
	h, s := setup(t,
		models.Contact{ID: "r1", IsResponder: true, HasIncomingPing: true},
		models.Contact{ID: "r2", IsResponder: true, HasIncomingPing: true},
		models.Contact{ID: "r3", IsResponder: true},
	)

	first, err := h.RespondToAllPings()
	require.NoError(t, err)
	assert.Equal(t, 2, first.Count())

	second, err := h.RespondToAllPings()
	require.NoError(t, err)
	assert.Equal(t, 0, second.Count())

	for _, c := range s.All() {
		assert.False(t, c.HasIncomingPing, c.ID)
	}
}

func TestSendPing_RollbackRestoresPreviousState(t *testing.T) {
	h, s := setup(t, models.Contact{ID: "x", IsDependent: true})

	res, err := h.SendPing("x")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rollback.Undo())

	got, _ := s.Get("x")
	assert.False(t, got.HasOutgoingPing)
	assert.Nil(t, got.OutgoingPingTimestamp)
}
