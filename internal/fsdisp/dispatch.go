package fsdisp

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/Jango73/EXOS-sub006/internal/defs"
	"github.com/Jango73/EXOS-sub006/internal/driver"
	"github.com/Jango73/EXOS-sub006/internal/hashtable"
)

// PathKind classifies how a name resolves, per spec.md §4.8.
type PathKind int

const (
	PathVolume PathKind = iota
	PathAbsolute
	PathBareName
)

// ParsePath splits name into its kind, an optional volume label, and the
// remaining path component: "C:/dir/file" -> (PathVolume, "C",
// "/dir/file"); "/dir/file" -> (PathAbsolute, "", "/dir/file"); "file" ->
// (PathBareName, "", "file").
func ParsePath(name string) (PathKind, string, string) {
	if idx := strings.Index(name, ":"); idx >= 0 {
		return PathVolume, name[:idx], name[idx+1:]
	}
	if strings.HasPrefix(name, "/") {
		return PathAbsolute, "", name
	}
	return PathBareName, "", name
}

// OpenKey uniquely identifies one logical open-file-cache entry: the same
// name opened by two different tasks, or with different flags, is a
// distinct entry (spec.md §4.8).
type OpenKey struct {
	Name  string
	Owner defs.Tid_t
	Flags uint32
}

func (k OpenKey) cacheKey() string {
	return fmt.Sprintf("%s\x00%d\x00%d", k.Name, k.Owner, k.Flags)
}

// OpenFile is one cached open handle, reference-counted across callers
// that open the same OpenKey concurrently.
type OpenFile struct {
	Key    OpenKey
	Volume string
	Rel    string
	Driver driver.Driver

	refs int32
}

func (f *OpenFile) Retain() int32 { return atomic.AddInt32(&f.refs, 1) }
func (f *OpenFile) Release() int32 { return atomic.AddInt32(&f.refs, -1) }

// Dispatcher mounts FS driver backends under volume labels and serves
// Open requests through a singleflight-deduplicated open-file cache, so
// callers racing to open the same (name, owner, flags) triple share one
// OpenFile entry rather than each creating their own -- spec.md §4.8's
// open-file cache contract. The dispatcher does not itself send the FS
// driver's open command; Open resolves the volume and leaves that to its
// caller.
type Dispatcher struct {
	mu     sync.RWMutex
	mounts map[string]driver.Driver

	cache *hashtable.Table[string, *OpenFile]
	group singleflight.Group

	defaultVolume string
}

// New constructs an empty dispatcher. defaultVolume is used to resolve
// bare names and absolute paths that don't specify VOLUME:.
func New(defaultVolume string) *Dispatcher {
	return &Dispatcher{
		mounts:        make(map[string]driver.Driver),
		cache:         hashtable.New[string, *OpenFile](64, hashtable.FNV1a64),
		defaultVolume: defaultVolume,
	}
}

// Mount registers drv as the backend for volume.
func (d *Dispatcher) Mount(volume string, drv driver.Driver) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mounts[strings.ToUpper(volume)] = drv
}

// Unmount removes volume's backend, if mounted.
func (d *Dispatcher) Unmount(volume string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.mounts, strings.ToUpper(volume))
}

// Resolve determines which mounted driver serves name and the path
// relative to that volume's root.
func (d *Dispatcher) Resolve(name string) (driver.Driver, string, defs.Err_t) {
	kind, vol, rel := ParsePath(name)
	if kind == PathBareName || (kind == PathAbsolute && d.defaultVolume != "") {
		if kind == PathBareName {
			rel = name
		}
		vol = d.defaultVolume
	}

	d.mu.RLock()
	drv, ok := d.mounts[strings.ToUpper(vol)]
	d.mu.RUnlock()
	if !ok {
		return nil, "", defs.NODEVICE
	}
	return drv, rel, defs.SUCCESS
}

// Open resolves name to a mounted driver and returns a shared OpenFile,
// creating at most one cache entry per distinct OpenKey even under
// concurrent callers; every successful call takes one reference.
func (d *Dispatcher) Open(name string, owner defs.Tid_t, flags uint32) (*OpenFile, defs.Err_t) {
	key := OpenKey{Name: name, Owner: owner, Flags: flags}
	ck := key.cacheKey()

	if existing, ok := d.cache.Get(ck); ok {
		existing.Retain()
		return existing, defs.SUCCESS
	}

	v, err, _ := d.group.Do(ck, func() (interface{}, error) {
		if existing, ok := d.cache.Get(ck); ok {
			return existing, nil
		}
		drv, rel, e := d.Resolve(name)
		if e != defs.SUCCESS {
			return nil, fmt.Errorf("resolve: %d", int(e))
		}
		of := &OpenFile{Key: key, Rel: rel, Driver: drv}
		d.cache.Set(ck, of)
		return of, nil
	})
	if err != nil {
		return nil, defs.BAD_PARAMETER
	}
	// Every caller sharing the singleflight result takes its own reference.
	of := v.(*OpenFile)
	of.Retain()
	return of, defs.SUCCESS
}

// Close releases a reference to f, evicting it from the cache once no
// callers hold it.
func (d *Dispatcher) Close(f *OpenFile) defs.Err_t {
	if f.Release() <= 0 {
		d.cache.Del(f.Key.cacheKey())
	}
	return defs.SUCCESS
}
