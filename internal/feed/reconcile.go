package feed

import "github.com/Xausdorf/outing-chat/internal/domain"

// Reconcile returns the selection to render for a poll view.
// A clean view trusts the server; a dirty view keeps the viewer's pending
// clicks no matter what the snapshot says.
func Reconcile(snapshot *domain.PollSnapshot, state domain.PollViewState) domain.OptionSet {
	if state.Dirty {
		if state.PendingSelection == nil {
			return domain.OptionSet{}
		}
		return state.PendingSelection.Clone()
	}
	if snapshot == nil || snapshot.MyOptionIDs == nil {
		return domain.OptionSet{}
	}
	return snapshot.MyOptionIDs.Clone()
}

// Merge builds the view handed to the Renderer. Everything except the
// selection always comes from the snapshot.
func Merge(snapshot *domain.PollSnapshot, state domain.PollViewState) PollView {
	view := PollView{
		Selection: Reconcile(snapshot, state),
		Dirty:     state.Dirty,
	}
	if snapshot != nil {
		view.Snapshot = *snapshot
		view.Snapshot.Options = append([]domain.OptionResult(nil), snapshot.Options...)
		view.Snapshot.MyOptionIDs = snapshot.MyOptionIDs.Clone()
	}
	return view
}
