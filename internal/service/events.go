package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"lifesignal-sync/internal/models"
	"lifesignal-sync/internal/store"
)

// notice 一条待发送的本地通知
type notice struct {
	typ   models.NotificationType
	title string
	body  string
}

// noticeFeed store 观察者与通知发送之间的缓冲
// push 不做 I/O，可在持有 store 通知锁时调用；run 在独立 goroutine 中按顺序发送
type noticeFeed struct {
	enabled atomic.Bool

	mu      sync.Mutex
	pending []notice
	signal  chan struct{}
}

func newNoticeFeed() *noticeFeed {
	return &noticeFeed{signal: make(chan struct{}, 1)}
}

func (f *noticeFeed) push(ns ...notice) {
	if len(ns) == 0 {
		return
	}
	f.mu.Lock()
	f.pending = append(f.pending, ns...)
	f.mu.Unlock()
	select {
	case f.signal <- struct{}{}:
	default:
	}
}

func (f *noticeFeed) take() []notice {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.pending
	f.pending = nil
	return out
}

// run 阻塞到 ctx 结束
func (f *noticeFeed) run(ctx context.Context, deliver func(context.Context, notice)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.signal:
		}
		for _, n := range f.take() {
			deliver(ctx, n)
		}
	}
}

// observe store 观察者：只处理远端来源的修改（权威更新、派生状态刷新）
// 本地意图产生的通知在确认或入队后由 SyncService 直接推送，回滚不会产生通知
func (f *noticeFeed) observe(ch store.Change) {
	if !f.enabled.Load() || ch.Rollback {
		return
	}
	f.push(describeChange(ch)...)
}

func describeChange(ch store.Change) []notice {
	switch m := ch.Mutation.(type) {
	case store.SetNonResponsive:
		if m.Value && ch.After != nil && ch.After.IsDependent && !ch.After.ManualAlertActive {
			return []notice{{
				typ:   models.NotificationNonResponsive,
				title: "Missed check-in",
				body:  fmt.Sprintf("%s has not checked in.", nameOf(*ch.After)),
			}}
		}
	case store.ApplyRemote:
		if ch.After == nil {
			return nil
		}
		if ch.Before == nil {
			return []notice{{
				typ:   models.NotificationContactAdded,
				title: "Contact added",
				body:  fmt.Sprintf("%s was added to your contacts.", nameOf(*ch.After)),
			}}
		}
		return diffRemote(*ch.Before, *ch.After)
	}
	return nil
}

func diffRemote(before, after models.Contact) []notice {
	name := nameOf(after)
	var out []notice

	if !before.ManualAlertActive && after.ManualAlertActive {
		out = append(out, notice{
			typ:   models.NotificationManualAlertActivated,
			title: "Manual alert",
			body:  fmt.Sprintf("%s has activated a manual alert.", name),
		})
	} else if before.ManualAlertActive && !after.ManualAlertActive {
		out = append(out, notice{
			typ:   models.NotificationManualAlertCleared,
			title: "Alert cleared",
			body:  fmt.Sprintf("%s has cleared their manual alert.", name),
		})
	}

	if checkedIn(before.LastCheckIn, after.LastCheckIn) {
		out = append(out, notice{
			typ:   models.NotificationCheckIn,
			title: "Check-in",
			body:  fmt.Sprintf("%s checked in.", name),
		})
	}

	if after.IsResponder && !before.HasIncomingPing && after.HasIncomingPing {
		out = append(out, notice{
			typ:   models.NotificationPingReceived,
			title: "Ping received",
			body:  fmt.Sprintf("%s is checking on you.", name),
		})
	}

	// 对方回应后，远端清除了本用户发出的 ping
	if before.HasOutgoingPing && !after.HasOutgoingPing && after.IsDependent {
		out = append(out, notice{
			typ:   models.NotificationPingResponded,
			title: "Ping answered",
			body:  fmt.Sprintf("%s responded to your ping.", name),
		})
	}

	if before.IsResponder != after.IsResponder || before.IsDependent != after.IsDependent {
		out = append(out, notice{
			typ:   models.NotificationRolesChanged,
			title: "Roles changed",
			body:  fmt.Sprintf("%s is now %s.", name, roleLabel(after)),
		})
	}
	return out
}

func checkedIn(before, after *time.Time) bool {
	if after == nil {
		return false
	}
	return before == nil || after.After(*before)
}

func nameOf(c models.Contact) string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.ID
}

func roleLabel(c models.Contact) string {
	switch {
	case c.IsResponder && c.IsDependent:
		return "a responder and a dependent"
	case c.IsResponder:
		return "a responder"
	default:
		return "a dependent"
	}
}
