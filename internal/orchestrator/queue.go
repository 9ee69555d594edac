package orchestrator

import "sort"

// Job is a generation waiting for a process slot. Params is set only for
// generation-0 jobs whose directory has not been created yet.
type Job struct {
	Identity Identity
	Params   *GenerationParams
}

// JobQueue orders pending generations so that existing chains advance
// before new replications start.
type JobQueue struct {
	jobs []Job
}

func (q *JobQueue) Len() int { return len(q.jobs) }

// Push adds jobs and restores queue order.
func (q *JobQueue) Push(jobs ...Job) {
	if len(jobs) == 0 {
		return
	}
	q.jobs = append(q.jobs, jobs...)
	sort.SliceStable(q.jobs, func(i, j int) bool {
		a, b := q.jobs[i].Identity, q.jobs[j].Identity
		if a.Generation != b.Generation {
			// Deeper chains first.
			return a.Generation > b.Generation
		}
		return a.Replication < b.Replication
	})
}

func (q *JobQueue) Pop() (Job, bool) {
	if len(q.jobs) == 0 {
		return Job{}, false
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, true
}

// Jobs returns a copy of the pending jobs in dispatch order.
func (q *JobQueue) Jobs() []Job {
	return append([]Job(nil), q.jobs...)
}
