package domain

import "time"

// Column is one board bucket with its display count.
type Column struct {
	Status Status `json:"status"`
	Tasks  []Task `json:"tasks"`
	Count  int    `json:"count"`
}

// Board is the four-column projection of an owner's tasks.
type Board struct {
	Todo       Column `json:"todo"`
	InProgress Column `json:"inProgress"`
	Blocked    Column `json:"blocked"`
	Done       Column `json:"done"`
}

// Project partitions tasks into the four columns, preserving store order
// within each column. When ref is non-zero the board is filtered to that
// calendar day: done tasks appear only when completedAt falls on ref, and all
// other tasks appear only when ref is the same day as now.
func Project(tasks []Task, ref, now time.Time) Board {
	cols := map[Status][]Task{}
	for _, t := range tasks {
		if !ref.IsZero() && !onDay(t, ref, now) {
			continue
		}
		cols[t.Status] = append(cols[t.Status], t)
	}
	return Board{
		Todo:       column(StatusTodo, cols[StatusTodo]),
		InProgress: column(StatusInProgress, cols[StatusInProgress]),
		Blocked:    column(StatusBlocked, cols[StatusBlocked]),
		Done:       column(StatusDone, cols[StatusDone]),
	}
}

func column(s Status, tasks []Task) Column {
	if tasks == nil {
		tasks = []Task{}
	}
	return Column{Status: s, Tasks: tasks, Count: len(tasks)}
}

func onDay(t Task, ref, now time.Time) bool {
	if t.Status == StatusDone {
		if t.CompletedAt == 0 {
			return false
		}
		return sameDay(time.UnixMilli(t.CompletedAt), ref)
	}
	return sameDay(ref, now)
}

func sameDay(a, b time.Time) bool {
	a = a.In(b.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
