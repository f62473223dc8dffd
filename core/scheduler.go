package core

// Task is a scheduled callback. Handler runs once WakeTime (microseconds on
// the broker clock) has passed; returning true reschedules the task at
// whatever WakeTime the handler left in it.
type Task struct {
	WakeTime uint64
	Handler  func(t *Task, now uint64) bool
	next     *Task
}

// Scheduler is a wake-time ordered list of tasks run from the main loop.
type Scheduler struct {
	head *Task
}

// Schedule adds t. A task must not be scheduled twice.
func (s *Scheduler) Schedule(t *Task) {
	critical(func() {
		s.insert(t)
	})
}

// Every schedules fn to run each period microseconds, first at start+period.
func (s *Scheduler) Every(start, period uint64, fn func(now uint64)) *Task {
	t := &Task{WakeTime: start + period}
	t.Handler = func(t *Task, now uint64) bool {
		fn(now)
		t.WakeTime += period
		if t.WakeTime <= now {
			// Fell behind; skip the missed periods.
			t.WakeTime = now + period
		}
		return true
	}
	s.Schedule(t)
	return t
}

// Cancel removes t if it is scheduled.
func (s *Scheduler) Cancel(t *Task) {
	critical(func() {
		for p := &s.head; *p != nil; p = &(*p).next {
			if *p == t {
				*p = t.next
				t.next = nil
				return
			}
		}
	})
}

func (s *Scheduler) insert(t *Task) {
	if s.head == nil || t.WakeTime < s.head.WakeTime {
		t.next = s.head
		s.head = t
		return
	}
	cur := s.head
	for cur.next != nil && cur.next.WakeTime <= t.WakeTime {
		cur = cur.next
	}
	t.next = cur.next
	cur.next = t
}

// Dispatch runs every task due at now and returns how many ran. Handlers
// run outside the critical section.
func (s *Scheduler) Dispatch(now uint64) int {
	ran := 0
	for {
		var t *Task
		critical(func() {
			if s.head != nil && s.head.WakeTime <= now {
				t = s.head
				s.head = t.next
				t.next = nil
			}
		})
		if t == nil {
			return ran
		}
		ran++
		if t.Handler(t, now) {
			s.Schedule(t)
		}
	}
}

// Pending is the number of scheduled tasks.
func (s *Scheduler) Pending() int {
	n := 0
	critical(func() {
		for t := s.head; t != nil; t = t.next {
			n++
		}
	})
	return n
}
