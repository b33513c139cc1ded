package service

import (
	"context"
	"sync"
	"sync/atomic"

	"lifesignal-sync/internal/models"
	"lifesignal-sync/internal/remote"

	"github.com/stretchr/testify/mock"
)

// MockRemoteService is a mock implementation of remote.Service
type MockRemoteService struct {
	mock.Mock
}

func (m *MockRemoteService) AddContactRelation(ctx context.Context, userID, contactID string, isResponder, isDependent bool) (string, error) {
	args := m.Called(ctx, userID, contactID, isResponder, isDependent)
	return args.String(0), args.Error(1)
}

func (m *MockRemoteService) UpdateContactRoles(ctx context.Context, userID, contactID string, isResponder, isDependent bool) (string, error) {
	args := m.Called(ctx, userID, contactID, isResponder, isDependent)
	return args.String(0), args.Error(1)
}

func (m *MockRemoteService) DeleteContactRelation(ctx context.Context, userID, contactID string) error {
	args := m.Called(ctx, userID, contactID)
	return args.Error(0)
}

func (m *MockRemoteService) PingDependent(ctx context.Context, userID, dependentID string) (string, error) {
	args := m.Called(ctx, userID, dependentID)
	return args.String(0), args.Error(1)
}

func (m *MockRemoteService) RespondToPing(ctx context.Context, userID, responderID string) (string, error) {
	args := m.Called(ctx, userID, responderID)
	return args.String(0), args.Error(1)
}

func (m *MockRemoteService) RespondToAllPings(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockRemoteService) ClearPing(ctx context.Context, userID, dependentID string) (string, error) {
	args := m.Called(ctx, userID, dependentID)
	return args.String(0), args.Error(1)
}

func (m *MockRemoteService) LookupUserByQRCode(ctx context.Context, qrCodeID string) (remote.UserRef, error) {
	args := m.Called(ctx, qrCodeID)
	return args.Get(0).(remote.UserRef), args.Error(1)
}

func (m *MockRemoteService) ListContacts(ctx context.Context, userID string) ([]models.Contact, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Contact), args.Error(1)
}

func (m *MockRemoteService) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// fakeConnectivity 手动切换的连接状态
type fakeConnectivity struct {
	online atomic.Bool
}

func (f *fakeConnectivity) Online() bool {
	return f.online.Load()
}

// recordingNotifier 记录收到的通知
type recordingNotifier struct {
	mu     sync.Mutex
	events []models.NotificationEvent
}

func (n *recordingNotifier) Notify(_ context.Context, typ models.NotificationType, title, body string) (models.NotificationEvent, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ev := models.NotificationEvent{Type: typ, Title: title, Body: body}
	n.events = append(n.events, ev)
	return ev, nil
}

func (n *recordingNotifier) types() []models.NotificationType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.NotificationType, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Type)
	}
	return out
}
