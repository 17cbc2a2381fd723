package vfs

// Recorder receives operational measurements from a FileSystem.
type Recorder interface {
	SetActiveChanges(n int)
	SetDeferredChanges(n int)
	ExternalChange(kind string)
	SetWatchedRoots(n int)
	WatchFailure()
	CounterUnderflow()
	SetIndexSize(n int)
}

// Kinds passed to Recorder.ExternalChange.
const (
	ChangeWholesale = "wholesale"
	ChangeIgnored   = "ignored"
	ChangeStale     = "stale"
	ChangeFile      = "file"
	ChangeDirectory = "directory"
)

type nopRecorder struct{}

func (nopRecorder) SetActiveChanges(int)   {}
func (nopRecorder) SetDeferredChanges(int) {}
func (nopRecorder) ExternalChange(string)  {}
func (nopRecorder) SetWatchedRoots(int)    {}
func (nopRecorder) WatchFailure()          {}
func (nopRecorder) CounterUnderflow()      {}
func (nopRecorder) SetIndexSize(int)       {}
