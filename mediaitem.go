package chime

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrInvalidURI is returned when a media item URI does not parse as an
// absolute RFC 3986 URI.
var ErrInvalidURI = errors.New("invalid URI")

var itemIDCounter atomic.Uint32

// MediaItem represents a single media to be played. Identity (id and URI) is
// immutable; metadata is updated by the player worker as the pipeline
// discovers it.
type MediaItem struct {
	id  uint32
	uri string

	mu              sync.Mutex
	title           string
	containerFormat string
	duration        time.Duration
	subURI          string
	cacheLocation   string

	used atomic.Bool // consumed by shuffle progression

	timeline *Timeline

	// Back-reference for routing notifications. Set while the item belongs
	// to a player's queue, nil otherwise. Never an owning reference.
	player atomic.Pointer[Player]
}

// NewMediaItem creates a media item for the given URI.
func NewMediaItem(uri string) (*MediaItem, error) {
	parsed, err := url.Parse(uri)
	if err != nil || !parsed.IsAbs() || parsed.Scheme == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}

	item := &MediaItem{
		id:       itemIDCounter.Add(1) - 1,
		uri:      uri,
		title:    titleFromURI(parsed),
		timeline: newTimeline(),
	}
	item.timeline.item = item

	return item, nil
}

// NewMediaItemCached creates a media item that will play from an already
// downloaded local file while keeping the original URI as its identity.
func NewMediaItemCached(uri, cacheLocation string) (*MediaItem, error) {
	item, err := NewMediaItem(uri)
	if err != nil {
		return nil, err
	}
	item.cacheLocation = cacheLocation
	return item, nil
}

// titleFromURI makes a best-effort title: the last path segment without its
// extension, URL-unescaped.
func titleFromURI(u *url.URL) string {
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return u.String()
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	if ext := path.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// ID returns the unique item id, monotonically increasing per process.
func (it *MediaItem) ID() uint32 { return it.id }

// URI returns the URI this item was created with.
func (it *MediaItem) URI() string { return it.uri }

// Timeline returns the item timeline with media markers.
func (it *MediaItem) Timeline() *Timeline { return it.timeline }

// Title returns the item title, either parsed from the URI or discovered
// from media tags.
func (it *MediaItem) Title() string {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.title
}

// ContainerFormat returns the container format name, if discovered.
func (it *MediaItem) ContainerFormat() string {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.containerFormat
}

// Duration returns the media duration, zero when not yet known.
func (it *MediaItem) Duration() time.Duration {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.duration
}

// SubURI returns the additional subtitles URI, empty when unset.
func (it *MediaItem) SubURI() string {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.subURI
}

// SetSubURI sets an additional URI with external subtitles. If this item is
// currently playing, playback restarts with subtitles applied.
func (it *MediaItem) SetSubURI(subURI string) {
	it.mu.Lock()
	changed := it.subURI != subURI
	it.subURI = subURI
	it.mu.Unlock()

	if !changed {
		return
	}
	if p := it.player.Load(); p != nil {
		p.postCommand(cmdItemSubURIChange{item: it})
		p.appBus.postPropNotify(it, PropItemSubURI)
	}
}

// CacheLocation returns the local cache file path, empty when none.
func (it *MediaItem) CacheLocation() string {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.cacheLocation
}

// SetCacheLocation points the item at a local download of its URI. An empty
// location clears the cache.
func (it *MediaItem) SetCacheLocation(location string) {
	it.mu.Lock()
	changed := it.cacheLocation != location
	it.cacheLocation = location
	it.mu.Unlock()

	if changed {
		it.notifyUpdated(PropItemCacheLocation)
	}
}

// playbackURI resolves the URI to hand to the pipeline. Prefers a still
// existing cache file; a stale cache location is dropped. Worker only.
func (it *MediaItem) playbackURI() string {
	it.mu.Lock()
	location := it.cacheLocation
	it.mu.Unlock()

	if location == "" {
		return it.uri
	}
	if _, err := os.Stat(location); err != nil {
		// Cached file is gone, forget it.
		it.SetCacheLocation("")
		return it.uri
	}
	return "file://" + location
}

// setTitle is a worker-side metadata update.
func (it *MediaItem) setTitle(title string) bool {
	it.mu.Lock()
	changed := title != "" && it.title != title
	if changed {
		it.title = title
	}
	it.mu.Unlock()
	return changed
}

func (it *MediaItem) setContainerFormat(format string) bool {
	it.mu.Lock()
	changed := format != "" && it.containerFormat != format
	if changed {
		it.containerFormat = format
	}
	it.mu.Unlock()
	return changed
}

func (it *MediaItem) setDuration(d time.Duration) bool {
	if d < 0 {
		d = 0
	}
	it.mu.Lock()
	changed := it.duration != d
	if changed {
		it.duration = d
	}
	it.mu.Unlock()
	return changed
}

// notifyUpdated fans an item change out to the app relay and the reactors.
func (it *MediaItem) notifyUpdated(prop string) {
	p := it.player.Load()
	if p == nil {
		return
	}
	p.appBus.postPropNotify(it, prop)
	p.dispatcher.post(reactorEvent{kind: reactorItemUpdated, item: it})
}

func (it *MediaItem) String() string {
	return fmt.Sprintf("MediaItem(id=%d, uri=%q)", it.id, it.uri)
}
