package harvest

import "sync"

// recordBudget caps emitted records under concurrent enrichment. A slot is
// reserved before work is scheduled and either committed (record pushed) or
// released (record failed), so emitted never exceeds max even when every
// in-flight record succeeds.
type recordBudget struct {
	mu       sync.Mutex
	cond     *sync.Cond
	max      int
	emitted  int
	inFlight int
}

func newRecordBudget(max int) *recordBudget {
	b := &recordBudget{max: max}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// reserve blocks while the remaining budget is fully held by in-flight work.
// It returns false once the budget is exhausted.
func (b *recordBudget) reserve() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		if b.emitted >= b.max {
			return false
		}
		if b.emitted+b.inFlight < b.max {
			b.inFlight++
			return true
		}
		b.cond.Wait()
	}
}

func (b *recordBudget) commit() {
	b.mu.Lock()
	b.inFlight--
	b.emitted++
	b.mu.Unlock()
	b.cond.Broadcast()
}

func (b *recordBudget) release() {
	b.mu.Lock()
	b.inFlight--
	b.mu.Unlock()
	b.cond.Broadcast()
}

func (b *recordBudget) exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.emitted >= b.max
}

func (b *recordBudget) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.emitted
}
