package service

import (
	"context"
	"errors"
	"fmt"

	"lifesignal-sync/internal/models"
	"lifesignal-sync/internal/queue"
	"lifesignal-sync/internal/remote"
)

// NewReplayExecutor 把离线动作映射到对应的远端调用。
// 重放时 add 遇到 AlreadyExists、remove 遇到 NotFound 视为已生效
func NewReplayExecutor(svc remote.Service, userID string) queue.Executor {
	return func(ctx context.Context, action models.OfflineAction) error {
		id := action.TargetContactID
		switch action.Kind {
		case models.ActionAddContact:
			var p models.RolesPayload
			if err := action.DecodePayload(&p); err != nil {
				return err
			}
			_, err := svc.AddContactRelation(ctx, userID, id, p.IsResponder, p.IsDependent)
			if errors.Is(err, remote.ErrAlreadyExists) {
				return nil
			}
			return err

		case models.ActionRemoveContact:
			err := svc.DeleteContactRelation(ctx, userID, id)
			if errors.Is(err, remote.ErrNotFound) {
				return nil
			}
			return err

		case models.ActionUpdateRoles:
			var p models.RolesPayload
			if err := action.DecodePayload(&p); err != nil {
				return err
			}
			_, err := svc.UpdateContactRoles(ctx, userID, id, p.IsResponder, p.IsDependent)
			return err

		case models.ActionSendPing:
			_, err := svc.PingDependent(ctx, userID, id)
			return err

		case models.ActionClearPing:
			_, err := svc.ClearPing(ctx, userID, id)
			return err

		case models.ActionRespondToPing:
			_, err := svc.RespondToPing(ctx, userID, id)
			return err

		case models.ActionRespondToAllPings:
			_, err := svc.RespondToAllPings(ctx, userID)
			return err

		default:
			return fmt.Errorf("unsupported offline action kind: %s", action.Kind)
		}
	}
}
