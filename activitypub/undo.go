package activitypub

import (
	"context"
)

// Undo reverses an earlier activity of the same actor
type Undo struct {
	activity
}

func (u *Undo) Perform(ctx context.Context) error {
	if u.objectURI() == "" {
		u.reject("missing object")
		return nil
	}
	switch Kind(objectType(u.object)) {
	case KindAnnounce:
		return u.undoAnnounce(ctx)
	case KindAccept:
		return u.undoAccept(ctx)
	case KindFollow:
		return u.undoFollow(ctx)
	case KindLike:
		return u.undoLike(ctx)
	case KindBlock:
		return u.undoBlock(ctx)
	case "":
		return u.handleReference(ctx)
	}
	u.reject("unsupported object type")
	return nil
}

// targetURI is the object of the activity being undone
func (u *Undo) targetURI() string {
	return valueOrID(asObject(u.object)["object"])
}

// handleReference guesses what a bare activity URI referred to. An
// unknown one may still be on its way, so it is suppressed on arrival.
func (u *Undo) handleReference(ctx context.Context) error {
	for _, try := range []func(context.Context) (bool, error){
		u.tryUndoAnnounce,
		u.tryUndoFollow,
		u.tryUndoLike,
		u.tryUndoBlock,
	} {
		done, err := try(ctx)
		if err != nil || done {
			return err
		}
	}
	return u.deleteLater(ctx)
}

func (u *Undo) deleteLater(ctx context.Context) error {
	if u.deps.Markers == nil {
		return nil
	}
	_, err := u.deps.Markers.SetIfAbsent(ctx, deleteMarkerKey(u.account, u.objectURI()), deleteMarkerTTL)
	return err
}

func (u *Undo) tryUndoAnnounce(ctx context.Context) (bool, error) {
	status, err := u.db().FindStatusByURIAndAccount(ctx, u.objectURI(), u.account.Id)
	if err != nil || status == nil || !status.IsReblog() {
		return false, err
	}
	return true, u.db().RemoveStatus(ctx, status, nil)
}

func (u *Undo) tryUndoFollow(ctx context.Context) (bool, error) {
	request, err := u.db().FindFollowRequestByURI(ctx, u.account.Id, u.objectURI())
	if err != nil {
		return false, err
	}
	if request != nil {
		return true, u.db().DeleteFollowRequest(ctx, request.Id)
	}
	follow, err := u.db().FindFollowByURI(ctx, u.account.Id, u.objectURI())
	if err != nil || follow == nil {
		return false, err
	}
	return true, u.db().DeleteFollow(ctx, follow.Id)
}

func (u *Undo) tryUndoLike(ctx context.Context) (bool, error) {
	favourite, err := u.db().FindFavouriteByURI(ctx, u.account.Id, u.objectURI())
	if err != nil || favourite == nil {
		return false, err
	}
	return true, u.db().DeleteFavourite(ctx, favourite.Id)
}

func (u *Undo) tryUndoBlock(ctx context.Context) (bool, error) {
	block, err := u.db().FindBlockByURI(ctx, u.account.Id, u.objectURI())
	if err != nil || block == nil {
		return false, err
	}
	return true, u.db().DeleteBlock(ctx, block.Id)
}

func (u *Undo) undoAnnounce(ctx context.Context) error {
	status, err := u.db().FindStatusByURIAndAccount(ctx, u.objectURI(), u.account.Id)
	if err != nil {
		return err
	}
	if status == nil {
		if atomURI := stringField(asObject(u.object), "atomUri"); atomURI != "" {
			if status, err = u.db().FindStatusByURIAndAccount(ctx, atomURI, u.account.Id); err != nil {
				return err
			}
		}
	}
	if status == nil {
		return u.deleteLater(ctx)
	}
	return u.db().RemoveStatus(ctx, status, nil)
}

// undoAccept turns the follow the actor accepted back into a request
func (u *Undo) undoAccept(ctx context.Context) error {
	follow, err := u.db().FindFollowOfTargetByURI(ctx, u.account.Id, u.targetURI())
	if err != nil || follow == nil {
		return err
	}
	return u.db().RevokeFollow(ctx, follow)
}

func (u *Undo) undoFollow(ctx context.Context) error {
	target, err := u.tags().AccountFromURI(ctx, u.targetURI())
	if err != nil {
		return err
	}
	if target == nil || !target.IsLocal() {
		return nil
	}

	follow, err := u.db().FindFollow(ctx, u.account.Id, target.Id)
	if err != nil {
		return err
	}
	if follow != nil {
		return u.db().DeleteFollow(ctx, follow.Id)
	}
	request, err := u.db().FindFollowRequest(ctx, u.account.Id, target.Id)
	if err != nil {
		return err
	}
	if request != nil {
		return u.db().DeleteFollowRequest(ctx, request.Id)
	}
	return u.deleteLater(ctx)
}

func (u *Undo) undoLike(ctx context.Context) error {
	status, err := u.tags().StatusFromURI(ctx, u.targetURI())
	if err != nil {
		return err
	}
	if !isLocalStatus(status) {
		return nil
	}
	favourite, err := u.db().FindFavourite(ctx, u.account.Id, status.Id)
	if err != nil {
		return err
	}
	if favourite == nil {
		return u.deleteLater(ctx)
	}
	return u.db().DeleteFavourite(ctx, favourite.Id)
}

func (u *Undo) undoBlock(ctx context.Context) error {
	target, err := u.tags().AccountFromURI(ctx, u.targetURI())
	if err != nil {
		return err
	}
	if target == nil || !target.IsLocal() {
		return nil
	}
	block, err := u.db().FindBlock(ctx, u.account.Id, target.Id)
	if err != nil {
		return err
	}
	if block == nil {
		return u.deleteLater(ctx)
	}
	return u.db().DeleteBlock(ctx, block.Id)
}
