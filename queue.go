package chime

import (
	"log/slog"
	"math/rand/v2"
	"sync"
)

// ProgressionMode is the policy for choosing the next item after the current
// one ends.
type ProgressionMode int

const (
	// ProgressionNone never advances.
	ProgressionNone ProgressionMode = iota
	// ProgressionConsecutive plays items in order and stops after the last.
	ProgressionConsecutive
	// ProgressionCarousel plays in order and wraps back to the start.
	ProgressionCarousel
	// ProgressionRepeatItem repeats the current item forever.
	ProgressionRepeatItem
	// ProgressionShuffle picks random items, never repeating one until all
	// items have been played.
	ProgressionShuffle
)

func (m ProgressionMode) String() string {
	switch m {
	case ProgressionNone:
		return "none"
	case ProgressionConsecutive:
		return "consecutive"
	case ProgressionCarousel:
		return "carousel"
	case ProgressionRepeatItem:
		return "repeat-item"
	case ProgressionShuffle:
		return "shuffle"
	default:
		return "unknown"
	}
}

// Queue is the ordered, observable list of media items a player works
// through. All methods are safe to call from any goroutine.
//
// Mutations are staged: the list is changed under the lock, then
// notifications (app relay, reactors, pipeline commands) are emitted after
// release so observer callbacks may freely re-enter the queue.
type Queue struct {
	mu              sync.Mutex
	items           []*MediaItem
	currentIndex    int
	currentItem     *MediaItem
	progressionMode ProgressionMode
	gapless         bool
	instant         bool

	// Pairs an about-to-finish gapless handoff with the EOS that follows it.
	handledGapless bool

	player *Player
	log    *slog.Logger
}

func newQueue(player *Player, log *slog.Logger) *Queue {
	return &Queue{
		currentIndex: InvalidPosition,
		player:       player,
		log:          log.With("component", "queue"),
	}
}

// notification staged while the queue lock is held and emitted after release.
type queueNotice func()

func emitAll(notices []queueNotice) {
	for _, n := range notices {
		n()
	}
}

// Add appends an item to the end of the queue. A no-op when the item is
// already queued.
func (q *Queue) Add(item *MediaItem) {
	q.Insert(item, -1)
}

// Insert places an item at index; negative index appends. A no-op when the
// item is already queued. Inserting into an empty queue selects the item.
func (q *Queue) Insert(item *MediaItem, index int) {
	if item == nil {
		return
	}

	q.mu.Lock()
	if q.findLocked(item) != InvalidPosition {
		q.mu.Unlock()
		return
	}

	prevLen := len(q.items)
	if index < 0 || index > prevLen {
		index = prevLen
	}
	q.items = append(q.items, nil)
	copy(q.items[index+1:], q.items[index:])
	q.items[index] = item
	item.player.Store(q.player)

	notices := []queueNotice{q.noticeItemAdded(item, index)}

	switch {
	case q.currentIndex != InvalidPosition && index <= q.currentIndex:
		q.currentIndex++
		notices = append(notices, q.noticeIndexChange())
	case prevLen == 0:
		q.selectItemLocked(item, 0)
		notices = append(notices, q.noticeSelectionChange())
	case q.currentIndex == prevLen-1 && q.progressionMode == ProgressionConsecutive &&
		q.player != nil && q.player.AfterEOS():
		// The previous last item already ended; treat the append like the
		// item that would have been played next.
		q.selectItemLocked(item, index)
		notices = append(notices, q.noticeSelectionChange())
	}
	q.mu.Unlock()

	emitAll(notices)
}

// Reposition moves an already queued item so that it ends up at newIndex;
// negative newIndex moves it to the end.
func (q *Queue) Reposition(item *MediaItem, newIndex int) {
	q.mu.Lock()
	oldIndex := q.findLocked(item)
	if oldIndex == InvalidPosition {
		q.mu.Unlock()
		return
	}
	if newIndex < 0 || newIndex >= len(q.items) {
		newIndex = len(q.items) - 1
	}
	if newIndex == oldIndex {
		q.mu.Unlock()
		return
	}

	q.items = append(q.items[:oldIndex], q.items[oldIndex+1:]...)
	q.items = append(q.items[:newIndex], append([]*MediaItem{item}, q.items[newIndex:]...)...)

	notices := []queueNotice{q.noticeItemRepositioned(oldIndex, newIndex)}

	// Shift selection if the move crossed it.
	switch {
	case q.currentIndex == oldIndex:
		q.currentIndex = newIndex
		notices = append(notices, q.noticeIndexChange())
	case oldIndex < q.currentIndex && newIndex >= q.currentIndex:
		q.currentIndex--
		notices = append(notices, q.noticeIndexChange())
	case oldIndex > q.currentIndex && newIndex <= q.currentIndex:
		q.currentIndex++
		notices = append(notices, q.noticeIndexChange())
	}
	q.mu.Unlock()

	emitAll(notices)
}

// Remove removes the item from the queue, if present.
func (q *Queue) Remove(item *MediaItem) {
	q.mu.Lock()
	index := q.findLocked(item)
	q.mu.Unlock()
	if index != InvalidPosition {
		q.RemoveIndex(index)
	}
}

// RemoveIndex removes the item at index.
func (q *Queue) RemoveIndex(index int) {
	_ = q.StealIndex(index)
}

// StealIndex removes and returns the item at index, nil when out of range.
// Removing the current item clears the selection; no neighbour is selected
// in its place.
func (q *Queue) StealIndex(index int) *MediaItem {
	q.mu.Lock()
	if index < 0 || index >= len(q.items) {
		q.mu.Unlock()
		return nil
	}

	item := q.items[index]
	q.items = append(q.items[:index], q.items[index+1:]...)
	item.player.Store(nil)

	notices := []queueNotice{q.noticeItemRemoved(item, index)}

	switch {
	case index == q.currentIndex:
		q.selectItemLocked(nil, InvalidPosition)
		notices = append(notices, q.noticeSelectionChange())
	case q.currentIndex != InvalidPosition && index < q.currentIndex:
		q.currentIndex--
		notices = append(notices, q.noticeIndexChange())
	}
	q.mu.Unlock()

	emitAll(notices)
	return item
}

// Clear removes all items and the selection in a single operation.
func (q *Queue) Clear() {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return
	}
	for _, item := range q.items {
		item.player.Store(nil)
	}
	q.items = nil

	notices := []queueNotice{q.noticeCleared()}
	if q.currentIndex != InvalidPosition {
		q.selectItemLocked(nil, InvalidPosition)
		notices = append(notices, q.noticeSelectionChange())
	}
	q.mu.Unlock()

	emitAll(notices)
}

// Select makes the given item current, regardless of progression mode.
// Passing nil clears the selection.
func (q *Queue) Select(item *MediaItem) bool {
	if item == nil {
		q.SelectIndex(InvalidPosition)
		return true
	}
	q.mu.Lock()
	index := q.findLocked(item)
	q.mu.Unlock()
	if index == InvalidPosition {
		return false
	}
	q.SelectIndex(index)
	return true
}

// SelectIndex selects by position; InvalidPosition clears the selection.
func (q *Queue) SelectIndex(index int) {
	q.mu.Lock()
	var notices []queueNotice
	switch {
	case index == InvalidPosition:
		if q.currentItem != nil {
			q.selectItemLocked(nil, InvalidPosition)
			notices = append(notices, q.noticeSelectionChange())
		}
	case index >= 0 && index < len(q.items):
		if q.items[index] != q.currentItem {
			q.selectItemLocked(q.items[index], index)
			notices = append(notices, q.noticeSelectionChange())
		}
	}
	q.mu.Unlock()

	emitAll(notices)
}

// SelectNext selects the following item. Returns false at the end of the
// queue or when nothing is selected.
func (q *Queue) SelectNext() bool {
	q.mu.Lock()
	ok := q.currentIndex != InvalidPosition && q.currentIndex+1 < len(q.items)
	next := q.currentIndex + 1
	q.mu.Unlock()
	if ok {
		q.SelectIndex(next)
	}
	return ok
}

// SelectPrevious selects the preceding item. Returns false at the start of
// the queue or when nothing is selected.
func (q *Queue) SelectPrevious() bool {
	q.mu.Lock()
	ok := q.currentIndex != InvalidPosition && q.currentIndex > 0
	prev := q.currentIndex - 1
	q.mu.Unlock()
	if ok {
		q.SelectIndex(prev)
	}
	return ok
}

// Item returns the item at index, nil when out of range.
func (q *Queue) Item(index int) *MediaItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	if index < 0 || index >= len(q.items) {
		return nil
	}
	return q.items[index]
}

// Items returns a snapshot of all queued items.
func (q *Queue) Items() []*MediaItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*MediaItem, len(q.items))
	copy(out, q.items)
	return out
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// CurrentItem returns the selected item, nil when none.
func (q *Queue) CurrentItem() *MediaItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.currentItem
}

// CurrentIndex returns the selected index, InvalidPosition when none.
func (q *Queue) CurrentIndex() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.currentIndex
}

// IsCurrent reports whether the item is the selected one.
func (q *Queue) IsCurrent(item *MediaItem) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return item != nil && item == q.currentItem
}

// Find returns the index of the item and whether it is queued.
func (q *Queue) Find(item *MediaItem) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	index := q.findLocked(item)
	return index, index != InvalidPosition
}

// ProgressionMode returns the active progression policy.
func (q *Queue) ProgressionMode() ProgressionMode {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.progressionMode
}

// SetProgressionMode changes the progression policy. Switching to shuffle
// restarts shuffle tracking from the current item.
func (q *Queue) SetProgressionMode(mode ProgressionMode) {
	q.mu.Lock()
	if q.progressionMode == mode {
		q.mu.Unlock()
		return
	}
	q.progressionMode = mode

	if mode == ProgressionShuffle {
		// Allow reselecting past items, except the one playing now.
		q.resetShuffleLocked()
		if q.currentItem != nil {
			q.currentItem.used.Store(true)
		}
	}
	player := q.player
	q.mu.Unlock()

	if player != nil {
		player.appBus.postPropNotify(q, PropQueueProgressionMode)
		player.dispatcher.post(reactorEvent{kind: reactorQueueProgressionChanged, progression: mode})
	}
}

// Gapless returns whether gapless progression is enabled.
func (q *Queue) Gapless() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.gapless
}

// SetGapless enables handing the next item to the pipeline before the
// current one finishes, removing the audible gap between items.
func (q *Queue) SetGapless(gapless bool) {
	q.mu.Lock()
	changed := q.gapless != gapless
	q.gapless = gapless
	player := q.player
	q.mu.Unlock()

	if changed && player != nil {
		player.appBus.postPropNotify(q, PropQueueGapless)
	}
}

// Instant returns whether instant item changes are enabled.
func (q *Queue) Instant() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.instant
}

// SetInstant makes user item changes keep the pipeline running instead of
// going through Ready. Best effort; falls back to a normal change when the
// pipeline cannot do it.
func (q *Queue) SetInstant(instant bool) {
	q.mu.Lock()
	changed := q.instant != instant
	q.instant = instant
	player := q.player
	q.mu.Unlock()

	if changed && player != nil {
		player.appBus.postPropNotify(q, PropQueueInstant)
	}
}

// NextItemForMode answers "what would play next" for an arbitrary mode
// without changing queue state (except shuffle bookkeeping resets).
func (q *Queue) NextItemForMode(mode ProgressionMode) *MediaItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.nextItemLocked(mode)
}

func (q *Queue) nextItemLocked(mode ProgressionMode) *MediaItem {
	if q.currentIndex == InvalidPosition {
		return nil
	}

	switch mode {
	case ProgressionNone:
		return nil
	case ProgressionConsecutive, ProgressionCarousel:
		if q.currentIndex+1 < len(q.items) {
			return q.items[q.currentIndex+1]
		}
		if mode == ProgressionCarousel && len(q.items) > 0 {
			return q.items[0]
		}
		return nil
	case ProgressionRepeatItem:
		return q.currentItem
	case ProgressionShuffle:
		var unused []*MediaItem
		for _, item := range q.items {
			if !item.used.Load() {
				unused = append(unused, item)
			}
		}
		if len(unused) > 0 {
			return unused[rand.IntN(len(unused))]
		}
		if len(q.items) == 0 {
			return nil
		}
		q.resetShuffleLocked()
		return q.items[rand.IntN(len(q.items))]
	default:
		return nil
	}
}

func (q *Queue) resetShuffleLocked() {
	for _, item := range q.items {
		item.used.Store(false)
	}
}

// handleAboutToFinish performs the gapless handoff: when gapless progression
// is on, the next item is pushed into the pipeline before the current one
// drains. Called from the pipeline streaming goroutine.
func (q *Queue) handleAboutToFinish(setPending func(*MediaItem, ItemChangeMode)) {
	q.mu.Lock()
	if !q.gapless {
		q.mu.Unlock()
		return
	}
	next := q.nextItemLocked(q.progressionMode)
	// Only an actual handoff pairs with the upcoming EOS. With nothing to
	// select the EOS must still reach the controller and end playback.
	q.handledGapless = next != nil
	q.mu.Unlock()

	q.log.Debug("about-to-finish", "gapless", true, "next", next != nil)
	if next != nil {
		setPending(next, ItemChangeGapless)
	}
}

// handleEOS progresses the queue after end of stream. Returns false when the
// controller should finish playback (pause and announce EOS). Worker only.
func (q *Queue) handleEOS(seekToStart func()) bool {
	q.mu.Lock()
	if q.handledGapless {
		// Gapless already advanced; this EOS is just the old stream tail.
		q.handledGapless = false
		q.mu.Unlock()
		return true
	}
	next := q.nextItemLocked(q.progressionMode)
	current := q.currentItem
	q.mu.Unlock()

	if next == nil {
		return false
	}
	if next == current {
		seekToStart()
	} else {
		q.Select(next)
	}
	return true
}

// clearHandledGapless resets the about-to-finish pairing, e.g. when an error
// arrives between about-to-finish and EOS.
func (q *Queue) clearHandledGapless() {
	q.mu.Lock()
	q.handledGapless = false
	q.mu.Unlock()
}

// handlePlayedItemChanged syncs the selection to what the pipeline actually
// started playing (relevant for gapless progression, where the queue does
// not drive the change itself). Worker only.
func (q *Queue) handlePlayedItemChanged(item *MediaItem) {
	q.mu.Lock()
	index := q.findLocked(item)
	changed := index != InvalidPosition && item != q.currentItem
	var notice queueNotice
	if changed {
		q.currentItem = item
		q.currentIndex = index
		item.used.Store(true)
		notice = q.noticeCurrentPropsOnly()
	}
	q.mu.Unlock()

	if notice != nil {
		notice()
	}
}

func (q *Queue) findLocked(item *MediaItem) int {
	for i, it := range q.items {
		if it == item {
			return i
		}
	}
	return InvalidPosition
}

// selectItemLocked replaces the current selection without announcing it.
func (q *Queue) selectItemLocked(item *MediaItem, index int) {
	q.currentItem = item
	q.currentIndex = index
	if item != nil {
		item.used.Store(true)
	}
}

// Notices. Each captures the state it needs while the lock is held and is
// invoked afterwards.

func (q *Queue) noticeItemAdded(item *MediaItem, index int) queueNotice {
	return func() {
		if q.player == nil {
			return
		}
		q.player.appBus.postRefreshQueue(q)
		q.player.dispatcher.post(reactorEvent{kind: reactorQueueItemAdded, item: item, index: index})
	}
}

func (q *Queue) noticeItemRemoved(item *MediaItem, index int) queueNotice {
	return func() {
		if q.player == nil {
			return
		}
		q.player.appBus.postRefreshQueue(q)
		q.player.dispatcher.post(reactorEvent{kind: reactorQueueItemRemoved, item: item, index: index})
	}
}

func (q *Queue) noticeItemRepositioned(from, to int) queueNotice {
	return func() {
		if q.player == nil {
			return
		}
		q.player.appBus.postRefreshQueue(q)
		q.player.dispatcher.post(reactorEvent{kind: reactorQueueItemRepositioned, index: from, toIndex: to})
	}
}

func (q *Queue) noticeCleared() queueNotice {
	return func() {
		if q.player == nil {
			return
		}
		q.player.appBus.postRefreshQueue(q)
		q.player.dispatcher.post(reactorEvent{kind: reactorQueueCleared})
	}
}

// noticeIndexChange announces a current-index shift caused by inserting or
// removing items before the selection. The selected item itself is unchanged.
func (q *Queue) noticeIndexChange() queueNotice {
	return func() {
		if q.player == nil {
			return
		}
		q.player.appBus.postPropNotify(q, PropQueueCurrentIndex)
	}
}

// noticeSelectionChange announces a new current item and forwards it to the
// player worker for playback. Callers hold the queue lock.
func (q *Queue) noticeSelectionChange() queueNotice {
	item := q.currentItem
	instant := q.instant

	return func() {
		if q.player == nil {
			return
		}
		mode := ItemChangeNormal
		if instant {
			mode = ItemChangeInstant
		}
		q.player.postCommand(cmdCurrentItemChange{item: item, mode: mode})
		q.player.appBus.postPropNotify(q, PropQueueCurrentItem)
		q.player.appBus.postPropNotify(q, PropQueueCurrentIndex)
	}
}

// noticeCurrentPropsOnly announces selection properties without posting a
// playback command (the pipeline already plays the item).
func (q *Queue) noticeCurrentPropsOnly() queueNotice {
	return func() {
		if q.player == nil {
			return
		}
		q.player.appBus.postPropNotify(q, PropQueueCurrentItem)
		q.player.appBus.postPropNotify(q, PropQueueCurrentIndex)
	}
}
