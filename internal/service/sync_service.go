// Package service 同步引擎的协调层：独占联系人 store，把用户意图转换为
// “本地预提交 + 远端确认/回滚”，连接不可用时转入离线队列。
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"lifesignal-sync/internal/connectivity"
	"lifesignal-sync/internal/consumer"
	"lifesignal-sync/internal/models"
	"lifesignal-sync/internal/ping"
	"lifesignal-sync/internal/queue"
	"lifesignal-sync/internal/remote"
	"lifesignal-sync/internal/store"

	"go.uber.org/zap"
)

const defaultConfirmTimeout = 10 * time.Second

// Notifier 本地通知（notification.Dispatcher）
type Notifier interface {
	Notify(ctx context.Context, typ models.NotificationType, title, body string) (models.NotificationEvent, error)
}

// Connectivity 当前连接状态（connectivity.Monitor）
type Connectivity interface {
	Online() bool
}

// Outcome 一次意图的结果
// Queued=true 表示远端尚未确认，动作已进入离线队列，本地已是乐观状态
type Outcome struct {
	Contact models.Contact
	Queued  bool
	Count   int
}

// Deps 构造 SyncService 所需的组件；Monitor / Consumer 为空时 Start 不启动对应循环
type Deps struct {
	UserID         string
	Store          *store.ContactStore
	Remote         remote.Service
	Queue          *queue.OfflineQueue
	Connectivity   Connectivity
	Notifier       Notifier
	ConfirmTimeout time.Duration
	SortMode       models.SortMode
	Logger         *zap.Logger

	Monitor         *connectivity.Monitor
	Consumer        *consumer.UpdateConsumer
	RefreshInterval time.Duration
	// Stop 时按顺序调用
	Closers []func() error
}

// SyncService 同步服务
type SyncService struct {
	userID         string
	store          *store.ContactStore
	pings          *ping.Handler
	remote         remote.Service
	queue          *queue.OfflineQueue
	conn           Connectivity
	notifier       Notifier
	confirmTimeout time.Duration
	now            func() time.Time
	logger         *zap.Logger

	modeMu   sync.RWMutex
	sortMode models.SortMode

	feed *noticeFeed

	failMu       sync.Mutex
	lastFailedID string

	monitor         *connectivity.Monitor
	consumer        *consumer.UpdateConsumer
	refreshInterval time.Duration
	closers         []func() error

	bg       context.Context
	bgCancel context.CancelFunc
	// stopped 置位后不再启动后台重放，保证 wg.Add 不会与 Stop 中的 Wait 并发
	bgMu    sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewSyncService 创建同步服务
func NewSyncService(d Deps) *SyncService {
	if d.ConfirmTimeout <= 0 {
		d.ConfirmTimeout = defaultConfirmTimeout
	}
	if d.RefreshInterval <= 0 {
		d.RefreshInterval = 30 * time.Second
	}
	bg, cancel := context.WithCancel(context.Background())
	s := &SyncService{
		userID:          d.UserID,
		store:           d.Store,
		pings:           ping.NewHandler(d.Store, d.Logger),
		remote:          d.Remote,
		queue:           d.Queue,
		conn:            d.Connectivity,
		notifier:        d.Notifier,
		confirmTimeout:  d.ConfirmTimeout,
		now:             time.Now,
		logger:          d.Logger,
		sortMode:        d.SortMode,
		feed:            newNoticeFeed(),
		monitor:         d.Monitor,
		consumer:        d.Consumer,
		refreshInterval: d.RefreshInterval,
		closers:         d.Closers,
		bg:              bg,
		bgCancel:        cancel,
	}
	s.store.Subscribe(s.feed.observe)
	return s
}

// SetClock 替换时钟（测试用）
func (s *SyncService) SetClock(now func() time.Time) {
	s.now = now
	s.pings.SetClock(now)
}

// AddContact 新增联系人关系
func (s *SyncService) AddContact(ctx context.Context, c models.Contact) (Outcome, error) {
	if c.ID != "" && c.ID == s.userID {
		return Outcome{}, &models.ValidationError{Kind: models.ValidationInvalidContact, ContactID: c.ID, Detail: "cannot add yourself"}
	}
	added, rb, err := s.store.Speculate(store.AddContact{Contact: c})
	if err != nil {
		return Outcome{}, err
	}
	roles := models.RolesPayload{IsResponder: added.IsResponder, IsDependent: added.IsDependent}
	queued, err := s.commit(ctx, models.ActionAddContact, added.ID, roles, rb, func(ctx context.Context) error {
		_, err := s.remote.AddContactRelation(ctx, s.userID, added.ID, roles.IsResponder, roles.IsDependent)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}
	s.feed.push(notice{
		typ:   models.NotificationContactAdded,
		title: "Contact added",
		body:  fmt.Sprintf("%s was added as %s.", nameOf(added), roleLabel(added)),
	})
	return Outcome{Contact: added, Queued: queued}, nil
}

// AddContactByQRCode 通过二维码解析对方用户后新增；解析必须在线完成
func (s *SyncService) AddContactByQRCode(ctx context.Context, qrCodeID string, isResponder, isDependent bool) (Outcome, error) {
	ref, err := s.remote.LookupUserByQRCode(ctx, qrCodeID)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to resolve qr code: %w", err)
	}
	return s.AddContact(ctx, models.Contact{
		ID:          ref.UserID,
		DisplayName: ref.Name,
		IsResponder: isResponder,
		IsDependent: isDependent,
	})
}

// RemoveContact 删除联系人关系
func (s *SyncService) RemoveContact(ctx context.Context, contactID string) (Outcome, error) {
	removed, rb, err := s.store.Speculate(store.RemoveContact{ID: contactID})
	if err != nil {
		return Outcome{}, err
	}
	queued, err := s.commit(ctx, models.ActionRemoveContact, contactID, nil, rb, func(ctx context.Context) error {
		return s.remote.DeleteContactRelation(ctx, s.userID, contactID)
	})
	if err != nil {
		return Outcome{}, err
	}
	s.feed.push(notice{
		typ:   models.NotificationContactRemoved,
		title: "Contact removed",
		body:  fmt.Sprintf("%s was removed from your contacts.", nameOf(removed)),
	})
	return Outcome{Contact: removed, Queued: queued}, nil
}

// UpdateRoles 修改角色；两个角色都为 false 时在本地直接拒绝
func (s *SyncService) UpdateRoles(ctx context.Context, contactID string, isResponder, isDependent bool) (Outcome, error) {
	updated, rb, err := s.store.Speculate(store.SetRoles{ID: contactID, IsResponder: isResponder, IsDependent: isDependent})
	if err != nil {
		return Outcome{}, err
	}
	roles := models.RolesPayload{IsResponder: isResponder, IsDependent: isDependent}
	queued, err := s.commit(ctx, models.ActionUpdateRoles, contactID, roles, rb, func(ctx context.Context) error {
		_, err := s.remote.UpdateContactRoles(ctx, s.userID, contactID, isResponder, isDependent)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}
	s.feed.push(notice{
		typ:   models.NotificationRolesChanged,
		title: "Roles updated",
		body:  fmt.Sprintf("%s is now %s.", nameOf(updated), roleLabel(updated)),
	})
	return Outcome{Contact: updated, Queued: queued}, nil
}

// SendPing ping 一个 dependent
func (s *SyncService) SendPing(ctx context.Context, contactID string) (Outcome, error) {
	res, err := s.pings.SendPing(contactID)
	if err != nil {
		return Outcome{}, err
	}
	queued, err := s.commit(ctx, models.ActionSendPing, contactID, nil, res.Rollback, func(ctx context.Context) error {
		_, err := s.remote.PingDependent(ctx, s.userID, contactID)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}
	s.feed.push(notice{
		typ:   models.NotificationPingSent,
		title: "Ping sent",
		body:  fmt.Sprintf("You pinged %s.", nameOf(res.Contact)),
	})
	return Outcome{Contact: res.Contact, Queued: queued}, nil
}

// ClearPing 撤回本用户发出的 ping
func (s *SyncService) ClearPing(ctx context.Context, contactID string) (Outcome, error) {
	res, err := s.pings.ClearPing(contactID)
	if err != nil {
		return Outcome{}, err
	}
	queued, err := s.commit(ctx, models.ActionClearPing, contactID, nil, res.Rollback, func(ctx context.Context) error {
		_, err := s.remote.ClearPing(ctx, s.userID, contactID)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}
	s.feed.push(notice{
		typ:   models.NotificationPingCleared,
		title: "Ping cleared",
		body:  fmt.Sprintf("Your ping to %s was cleared.", nameOf(res.Contact)),
	})
	return Outcome{Contact: res.Contact, Queued: queued}, nil
}

// RespondToPing 回应某个 responder 的 ping
func (s *SyncService) RespondToPing(ctx context.Context, contactID string) (Outcome, error) {
	res, err := s.pings.RespondToPing(contactID)
	if err != nil {
		return Outcome{}, err
	}
	queued, err := s.commit(ctx, models.ActionRespondToPing, contactID, nil, res.Rollback, func(ctx context.Context) error {
		_, err := s.remote.RespondToPing(ctx, s.userID, contactID)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}
	s.feed.push(notice{
		typ:   models.NotificationPingResponded,
		title: "Ping answered",
		body:  fmt.Sprintf("You responded to %s.", nameOf(res.Contact)),
	})
	return Outcome{Contact: res.Contact, Queued: queued}, nil
}

// RespondToAllPings 回应全部收到的 ping；没有待回应的 ping 时不访问远端，Count=0
func (s *SyncService) RespondToAllPings(ctx context.Context) (Outcome, error) {
	res, err := s.pings.RespondToAllPings()
	if err != nil {
		return Outcome{}, err
	}
	if res.Count() == 0 {
		res.Rollback.Discard()
		return Outcome{}, nil
	}
	queued, err := s.commit(ctx, models.ActionRespondToAllPings, "", nil, res.Rollback, func(ctx context.Context) error {
		_, err := s.remote.RespondToAllPings(ctx, s.userID)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}
	s.feed.push(notice{
		typ:   models.NotificationAllPingsResponded,
		title: "All pings answered",
		body:  fmt.Sprintf("You responded to %d ping(s).", res.Count()),
	})
	return Outcome{Count: res.Count(), Queued: queued}, nil
}

// commit 两阶段提交的第二阶段
//   - 离线，或队列里还有更早的动作：入队（保持 FIFO），在线时顺带触发重放
//   - 远端确认成功：丢弃回滚句柄
//   - 远端拒绝：回滚并返回错误，不入队
//   - 不可达、确认超时、调用方取消：保留乐观状态并入队
//
// 入队失败时回滚，store 中不会留下既未确认也未入队的修改
func (s *SyncService) commit(
	ctx context.Context,
	kind models.ActionKind,
	contactID string,
	payload any,
	rb *store.Rollback,
	confirm func(ctx context.Context) error,
) (bool, error) {
	online := s.conn.Online()
	if !online || s.backlog(ctx) {
		if err := s.enqueue(ctx, kind, contactID, payload); err != nil {
			rb.Undo()
			return false, err
		}
		if online {
			s.kickReplay()
		}
		return true, nil
	}

	confirmCtx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	err := confirm(confirmCtx)
	cancel()

	switch {
	case err == nil:
		rb.Discard()
		return false, nil

	case remote.IsRejection(err):
		undone := rb.Undo()
		s.logger.Warn("Remote rejected mutation, local change rolled back",
			zap.String("kind", kind.String()),
			zap.String("contact_id", contactID),
			zap.Int("rolled_back", undone),
			zap.Error(err),
		)
		return false, fmt.Errorf("remote rejected %s: %w", kind, err)
	}

	s.logger.Info("Remote confirmation not received, queueing mutation",
		zap.String("kind", kind.String()),
		zap.String("contact_id", contactID),
		zap.Bool("transient", remote.IsTransient(err)),
		zap.Error(err),
	)
	if qerr := s.enqueue(ctx, kind, contactID, payload); qerr != nil {
		rb.Undo()
		return false, fmt.Errorf("failed to queue %s after confirmation error (%v): %w", kind, err, qerr)
	}
	return true, nil
}

// enqueue 不受调用方取消影响，否则取消会留下半完成的状态
func (s *SyncService) enqueue(ctx context.Context, kind models.ActionKind, contactID string, payload any) error {
	action, err := models.NewOfflineAction(kind, contactID, payload, s.now())
	if err != nil {
		return err
	}
	return s.queue.Enqueue(context.WithoutCancel(ctx), action)
}

// backlog 队列非空时新动作必须排在后面
func (s *SyncService) backlog(ctx context.Context) bool {
	n, err := s.queue.Len(context.WithoutCancel(ctx))
	if err != nil {
		s.logger.Warn("Failed to read offline queue length", zap.Error(err))
		return false
	}
	return n > 0
}

func (s *SyncService) kickReplay() {
	s.bgMu.Lock()
	defer s.bgMu.Unlock()
	if s.stopped {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, _ = s.Replay(s.bg)
	}()
}

// Len 离线队列长度（connectivity.Replayer）
func (s *SyncService) Len(ctx context.Context) (int, error) {
	return s.queue.Len(ctx)
}

// Replay 重放离线队列（connectivity.Replayer）。
// 卡在某个动作上时发一条 SyncFailed 通知，同一个动作只通知一次
func (s *SyncService) Replay(ctx context.Context) (int, error) {
	n, err := s.queue.Replay(ctx)

	var rerr *queue.ReplayError
	if !errors.As(err, &rerr) {
		if err == nil {
			s.failMu.Lock()
			s.lastFailedID = ""
			s.failMu.Unlock()
		}
		return n, err
	}

	s.failMu.Lock()
	first := s.lastFailedID != rerr.Action.ID
	s.lastFailedID = rerr.Action.ID
	s.failMu.Unlock()

	if first {
		target := rerr.Action.TargetContactID
		if c, ok := s.store.Get(target); ok {
			target = nameOf(c)
		}
		body := fmt.Sprintf("Could not sync %s.", describeKind(rerr.Action.Kind))
		if target != "" {
			body = fmt.Sprintf("Could not sync %s for %s.", describeKind(rerr.Action.Kind), target)
		}
		s.feed.push(notice{
			typ:   models.NotificationSyncFailed,
			title: "Sync paused",
			body:  body + " It will be retried when you are back online.",
		})
	}
	return n, err
}

// PendingActions 离线队列快照
func (s *SyncService) PendingActions(ctx context.Context) ([]models.OfflineAction, error) {
	return s.queue.Pending(ctx)
}

// LastSyncError 最近一次重放失败，队列清空后为 nil
func (s *SyncService) LastSyncError() *queue.ReplayError {
	return s.queue.LastError()
}

func describeKind(k models.ActionKind) string {
	switch k {
	case models.ActionAddContact:
		return "a new contact"
	case models.ActionRemoveContact:
		return "a contact removal"
	case models.ActionUpdateRoles:
		return "a role change"
	case models.ActionSendPing:
		return "a ping"
	case models.ActionClearPing:
		return "a cleared ping"
	case models.ActionRespondToPing, models.ActionRespondToAllPings:
		return "a ping response"
	default:
		return k.String()
	}
}
