package editor

// Event types published to the Notifier.
const (
	EventNavigationUpdated   = "navigation.updated"
	EventDraftSaved          = "draft.saved"
	EventDraftCleared        = "draft.cleared"
	EventNavigationCommitted = "navigation.committed"
	EventBranchChanged       = "branch.changed"
	EventBranchCreated       = "branch.created"
	EventBranchDeleted       = "branch.deleted"
	EventEditModeChanged     = "edit_mode.changed"
	EventContentChanged      = "content.changed"
	EventContentDeleted      = "content.deleted"
	EventPageDraftSaved      = "page_draft.saved"
	EventPageDraftCleared    = "page_draft.cleared"
	EventPullRequestOpened   = "pull_request.opened"
)

// Notifier receives session events.
type Notifier interface {
	Notify(eventType string, data any)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, any) {}
