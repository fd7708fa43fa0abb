// Package anticheat gates player actions on rate and timing before they
// reach the game engine. Turn order, legality and amounts are enforced
// by the engine itself; together the two layers cover the full check
// list.
package anticheat

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"cardroom/poker"
)

const (
	// At most maxActions per rolling window per (player, table).
	maxActions = 5
	rateWindow = time.Second

	// Hard floor between consecutive actions from one player; deltas in
	// the flag band above the floor are logged at low severity.
	timingFloor    = 100 * time.Millisecond
	timingFlagBand = 200 * time.Millisecond

	activityDepth = 1000
	bucketCap     = 4096
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
)

// Activity is one flagged event in the bounded log.
type Activity struct {
	PlayerID string
	TableID  string
	Kind     string
	Severity Severity
	At       time.Time
}

type bucket struct {
	actions    []time.Time // recent action times within the window
	lastAction time.Time   // per-player floor is tracked per table key
}

// Validator is stateful only in its rate/timing buckets and the
// activity log; the decision itself is a pure function of those plus
// the clock.
type Validator struct {
	mu         sync.Mutex
	buckets    *lru.Cache[string, *bucket]
	activities []Activity
	now        func() time.Time
}

func New() *Validator {
	cache, err := lru.New[string, *bucket](bucketCap)
	if err != nil {
		panic(err)
	}
	return &Validator{
		buckets: cache,
		now:     time.Now,
	}
}

// Check admits or rejects an action attempt for (playerID, tableID).
// A nil error means the action may proceed to the engine.
func (v *Validator) Check(playerID, tableID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	key := playerID + "|" + tableID
	b, ok := v.buckets.Get(key)
	if !ok {
		b = &bucket{}
		v.buckets.Add(key, b)
	}

	// Rolling rate window.
	live := b.actions[:0]
	for _, t := range b.actions {
		if now.Sub(t) < rateWindow {
			live = append(live, t)
		}
	}
	b.actions = live
	if len(b.actions) >= maxActions {
		v.flagLocked(playerID, tableID, "rate_limit", SeverityMedium, now)
		return poker.NewError(poker.CodeRateLimited, "too many actions")
	}

	// Inter-action timing floor.
	if !b.lastAction.IsZero() {
		delta := now.Sub(b.lastAction)
		if delta < timingFloor {
			v.flagLocked(playerID, tableID, "timing_floor", SeverityMedium, now)
			return poker.NewError(poker.CodeTimingViolation, "actions too fast")
		}
		if delta < timingFlagBand {
			v.flagLocked(playerID, tableID, "timing_fast", SeverityLow, now)
		}
	}

	b.actions = append(b.actions, now)
	b.lastAction = now
	return nil
}

func (v *Validator) flagLocked(playerID, tableID, kind string, sev Severity, at time.Time) {
	v.activities = append(v.activities, Activity{
		PlayerID: playerID,
		TableID:  tableID,
		Kind:     kind,
		Severity: sev,
		At:       at,
	})
	if len(v.activities) > activityDepth {
		v.activities = v.activities[len(v.activities)-activityDepth:]
	}
}

// Activities returns a copy of the flagged-event log, oldest first.
func (v *Validator) Activities() []Activity {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Activity(nil), v.activities...)
}
