package service

import (
	"context"
	"testing"
	"time"

	"lifesignal-sync/internal/models"
	"lifesignal-sync/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func typesOf(ns []notice) []models.NotificationType {
	out := make([]models.NotificationType, 0, len(ns))
	for _, n := range ns {
		out = append(out, n.typ)
	}
	return out
}

func TestDescribeChange_RemoteDiff(t *testing.T) {
	before := models.Contact{ID: "a", DisplayName: "Ann", IsResponder: true, IsDependent: true, HasOutgoingPing: true}
	after := before
	after.HasOutgoingPing = false
	after.ManualAlertActive = true
	after.HasIncomingPing = true
	after.LastCheckIn = models.TimePtr(fixedNow)

	got := describeChange(store.Change{Mutation: store.ApplyRemote{Contact: after}, Before: &before, After: &after})

	assert.Equal(t, []models.NotificationType{
		models.NotificationManualAlertActivated,
		models.NotificationCheckIn,
		models.NotificationPingReceived,
		models.NotificationPingResponded,
	}, typesOf(got))
	assert.Contains(t, got[0].body, "Ann")
}

func TestDescribeChange_AlertClearedAndRolesChanged(t *testing.T) {
	before := models.Contact{ID: "b", IsDependent: true, ManualAlertActive: true, LastCheckIn: models.TimePtr(fixedNow)}
	after := models.Contact{ID: "b", IsDependent: true, IsResponder: true, LastCheckIn: models.TimePtr(fixedNow.Add(-time.Hour))}

	got := describeChange(store.Change{Mutation: store.ApplyRemote{Contact: after}, Before: &before, After: &after})

	assert.Equal(t, []models.NotificationType{
		models.NotificationManualAlertCleared,
		models.NotificationRolesChanged,
	}, typesOf(got))
	assert.Contains(t, got[1].body, "b is now a responder and a dependent")
}

func TestDescribeChange_NewRemoteContact(t *testing.T) {
	c := models.Contact{ID: "n", IsResponder: true}
	got := describeChange(store.Change{Mutation: store.ApplyRemote{Contact: c}, After: &c})
	assert.Equal(t, []models.NotificationType{models.NotificationContactAdded}, typesOf(got))
}

func TestDescribeChange_NonResponsive(t *testing.T) {
	c := models.Contact{ID: "d", DisplayName: "Dee", IsDependent: true, IsNonResponsive: true}
	got := describeChange(store.Change{Mutation: store.SetNonResponsive{ID: "d", Value: true}, After: &c})
	assert.Equal(t, []models.NotificationType{models.NotificationNonResponsive}, typesOf(got))

	alerting := c
	alerting.ManualAlertActive = true
	assert.Empty(t, describeChange(store.Change{Mutation: store.SetNonResponsive{ID: "d", Value: true}, After: &alerting}))

	recovered := c
	recovered.IsNonResponsive = false
	assert.Empty(t, describeChange(store.Change{Mutation: store.SetNonResponsive{ID: "d", Value: false}, After: &recovered}))
}

func TestDescribeChange_LocalMutationsAreIgnored(t *testing.T) {
	c := models.Contact{ID: "x", IsDependent: true, HasOutgoingPing: true}
	assert.Empty(t, describeChange(store.Change{Mutation: store.SetOutgoingPing{ID: "x", At: fixedNow}, After: &c}))
	assert.Empty(t, describeChange(store.Change{Mutation: store.RemoveContact{ID: "x"}, Before: &c}))
}

func TestNoticeFeed_ObserveRespectsEnabledAndRollback(t *testing.T) {
	f := newNoticeFeed()
	c := models.Contact{ID: "n", IsResponder: true}
	ch := store.Change{Mutation: store.ApplyRemote{Contact: c}, After: &c}

	f.observe(ch)
	assert.Empty(t, f.take())

	f.enabled.Store(true)
	rolledBack := ch
	rolledBack.Rollback = true
	f.observe(rolledBack)
	assert.Empty(t, f.take())

	f.observe(ch)
	assert.Len(t, f.take(), 1)
}

func TestNoticeFeed_RunDeliversInOrder(t *testing.T) {
	f := newNoticeFeed()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	delivered := make(chan models.NotificationType, 3)
	go f.run(ctx, func(_ context.Context, n notice) { delivered <- n.typ })

	f.push(notice{typ: models.NotificationPingSent}, notice{typ: models.NotificationPingCleared})
	f.push(notice{typ: models.NotificationSyncFailed})

	var got []models.NotificationType
	for i := 0; i < 3; i++ {
		select {
		case typ := <-delivered:
			got = append(got, typ)
		case <-time.After(time.Second):
			require.FailNow(t, "notice not delivered")
		}
	}
	assert.Equal(t, []models.NotificationType{
		models.NotificationPingSent,
		models.NotificationPingCleared,
		models.NotificationSyncFailed,
	}, got)
}
