// Package deletion holds deferred release actions and runs them in reverse
// order of registration.
package deletion

// Queue is a LIFO stack of release actions parameterized by the object
// they need at release time (a device, an allocator). It is not safe for
// concurrent use.
type Queue[D any] struct {
	actions []func(D)
}

// Push registers an action. Actions run in reverse push order on Drain.
func (q *Queue[D]) Push(action func(D)) {
	q.actions = append(q.actions, action)
}

// Drain runs every pending action, newest first, and leaves the queue
// empty. An action pushed while draining runs in the same drain.
func (q *Queue[D]) Drain(d D) {
	for len(q.actions) > 0 {
		last := len(q.actions) - 1
		action := q.actions[last]
		q.actions[last] = nil
		q.actions = q.actions[:last]
		action(d)
	}
}

func (q *Queue[D]) Len() int {
	return len(q.actions)
}
