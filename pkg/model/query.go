package model

// Query describes a selection over the TaskStore: the conjunction of all
// provided fields. A nil/zero field means "don't filter on this".
type Query struct {
	Owner    string
	JobName  string
	TaskIDs  map[TaskID]bool
	Statuses map[TaskStatus]bool
	Pred     func(*ScheduledTask) bool
}

// Matches reports whether t satisfies every field set on q.
func (q Query) Matches(t *ScheduledTask) bool {
	if q.Owner != "" && t.JobKey.Owner != q.Owner {
		return false
	}
	if q.JobName != "" && t.JobKey.Name != q.JobName {
		return false
	}
	if q.TaskIDs != nil && !q.TaskIDs[t.ID] {
		return false
	}
	if q.Statuses != nil && !q.Statuses[t.Status] {
		return false
	}
	if q.Pred != nil && !q.Pred(t) {
		return false
	}
	return true
}

// GetAll selects every task in the store.
func GetAll() Query {
	return Query{}
}

// QueryByID selects tasks with one of the given ids.
func QueryByID(ids ...TaskID) Query {
	set := make(map[TaskID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return Query{TaskIDs: set}
}

// QueryByStatus selects tasks in one of the given statuses.
func QueryByStatus(statuses ...TaskStatus) Query {
	set := make(map[TaskStatus]bool, len(statuses))
	for _, s := range statuses {
		set[s] = true
	}
	return Query{Statuses: set}
}

// QueryByJob selects every task belonging to the given job key.
func QueryByJob(key JobKey) Query {
	return Query{Owner: key.Owner, JobName: key.Name}
}

// ActiveQuery selects the active (PENDING/STARTING/RUNNING) tasks of the
// given job key.
func ActiveQuery(key JobKey) Query {
	return Query{
		Owner:   key.Owner,
		JobName: key.Name,
		Statuses: map[TaskStatus]bool{
			StatusPending:  true,
			StatusStarting: true,
			StatusRunning:  true,
		},
	}
}

// WithPredicate returns a copy of q with an additional predicate stage
// ANDed onto any existing one.
func (q Query) WithPredicate(pred func(*ScheduledTask) bool) Query {
	if q.Pred == nil {
		q.Pred = pred
		return q
	}
	prev := q.Pred
	q.Pred = func(t *ScheduledTask) bool { return prev(t) && pred(t) }
	return q
}
