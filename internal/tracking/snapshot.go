package tracking

import (
	"log/slog"
	"time"
)

// Snapshot is the immutable read view handed to every rule evaluator in a
// run. It is loaded once per run so that concurrent mirror syncs cannot
// change the data mid-evaluation.
type Snapshot struct {
	AsOf time.Time

	ActiveUsers []User
	Projects    []Project
	Issues      []Issue
	Entries     []TimeEntry

	// All-time spent hours per issue, aggregated in the store.
	IssueHours map[int64]float64

	projectsByID  map[int64]*Project
	issuesByID    map[int64]*Issue
	entriesByUser map[int64][]*TimeEntry
	entriesByIssue map[int64][]*TimeEntry
}

func (s *Snapshot) ProjectByID(id int64) *Project {
	return s.projectsByID[id]
}

func (s *Snapshot) IssueByID(id int64) *Issue {
	return s.issuesByID[id]
}

// EntriesForUser returns the user's entries inside the snapshot window.
func (s *Snapshot) EntriesForUser(userID int64) []*TimeEntry {
	return s.entriesByUser[userID]
}

// EntriesForIssue returns the issue's entries inside the snapshot window.
func (s *Snapshot) EntriesForIssue(issueID int64) []*TimeEntry {
	return s.entriesByIssue[issueID]
}

// IssueProject resolves the project owning an issue, nil when the mirror is
// missing it.
func (s *Snapshot) IssueProject(issue *Issue) *Project {
	if issue == nil {
		return nil
	}
	return s.projectsByID[issue.ProjectID]
}

func (s *Snapshot) index() {
	s.projectsByID = make(map[int64]*Project, len(s.Projects))
	for i := range s.Projects {
		s.projectsByID[s.Projects[i].ID] = &s.Projects[i]
	}
	s.issuesByID = make(map[int64]*Issue, len(s.Issues))
	for i := range s.Issues {
		s.issuesByID[s.Issues[i].ID] = &s.Issues[i]
	}
	s.entriesByUser = make(map[int64][]*TimeEntry)
	s.entriesByIssue = make(map[int64][]*TimeEntry)
	for i := range s.Entries {
		e := &s.Entries[i]
		s.entriesByUser[e.UserID] = append(s.entriesByUser[e.UserID], e)
		if e.IssueID != nil {
			s.entriesByIssue[*e.IssueID] = append(s.entriesByIssue[*e.IssueID], e)
		}
	}
}

// SnapshotLoader materializes snapshots from the mirror store.
type SnapshotLoader struct {
	repo   Repository
	logger *slog.Logger
}

func NewSnapshotLoader(repo Repository, logger *slog.Logger) *SnapshotLoader {
	return &SnapshotLoader{repo: repo, logger: logger}
}

// Load builds a snapshot as of asOf. lookbackDays bounds the entry window;
// callers pass the widest window any rule needs so one load serves all
// evaluators.
func (l *SnapshotLoader) Load(asOf time.Time, lookbackDays int) (*Snapshot, error) {
	if lookbackDays < 1 {
		lookbackDays = 1
	}

	users, err := l.repo.ActiveUsers()
	if err != nil {
		return nil, err
	}
	projects, err := l.repo.Projects()
	if err != nil {
		return nil, err
	}
	issues, err := l.repo.Issues()
	if err != nil {
		return nil, err
	}
	from := asOf.AddDate(0, 0, -lookbackDays)
	entries, err := l.repo.EntriesSince(from)
	if err != nil {
		return nil, err
	}
	issueHours, err := l.repo.SumHoursByIssue()
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		AsOf:        asOf,
		ActiveUsers: users,
		Projects:    projects,
		Issues:      issues,
		Entries:     entries,
		IssueHours:  issueHours,
	}
	snap.index()

	l.logger.Debug("tracking snapshot loaded",
		"as_of", asOf,
		"lookback_days", lookbackDays,
		"users", len(users),
		"projects", len(projects),
		"issues", len(issues),
		"entries", len(entries))

	return snap, nil
}

// NewSnapshot builds an indexed snapshot from in-memory data. Rule and
// aggregator tests use it to avoid a store round trip.
func NewSnapshot(asOf time.Time, users []User, projects []Project, issues []Issue, entries []TimeEntry, issueHours map[int64]float64) *Snapshot {
	if issueHours == nil {
		issueHours = make(map[int64]float64)
		for _, e := range entries {
			if e.IssueID != nil {
				issueHours[*e.IssueID] += e.Hours
			}
		}
	}
	snap := &Snapshot{
		AsOf:        asOf,
		ActiveUsers: users,
		Projects:    projects,
		Issues:      issues,
		Entries:     entries,
		IssueHours:  issueHours,
	}
	snap.index()
	return snap
}
