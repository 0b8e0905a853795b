package portability

import (
	"bytes"
	"encoding/binary"
	"sort"
	"sync"
)

// The pipeline cache persists which pipelines a device has built so a
// later run can prewarm them. The blob format is owned by this layer:
//
//	magic "VKPC" | version u32 | backend name len u32 | backend name |
//	entry count u32 | entries (key len u32, key, data len u32, data)
//
// all little-endian. A blob from another version or backend is not an
// error; it loads as an empty cache, which is the defined fallback for
// unusable cache data in the target API.
var cacheMagic = [4]byte{'V', 'K', 'P', 'C'}

const cacheVersion = 1

type pipelineCacheObject struct {
	mu      sync.Mutex
	device  Device
	backend string
	entries map[string][]byte
}

// PipelineCacheCreateInfo optionally seeds the cache from a prior GetData
// blob.
type PipelineCacheCreateInfo struct {
	InitialData []byte
}

// CreatePipelineCache creates a cache, loading any usable initial data.
func (d Device) CreatePipelineCache(info *PipelineCacheCreateInfo) (PipelineCache, error) {
	obj, err := deviceFor(d)
	if err != nil {
		return 0, err
	}

	var backend string
	if pd, perr := resolve[*physicalDeviceObject](Handle(obj.physical), KindPhysicalDevice); perr == nil {
		backend = pd.info.Name
	}

	co := &pipelineCacheObject{
		device:  d,
		backend: backend,
		entries: make(map[string][]byte),
	}
	if info != nil && len(info.InitialData) > 0 {
		if entries, ok := parseCacheBlob(info.InitialData, backend); ok {
			co.entries = entries
		} else {
			Logger().Debug("pipeline cache data rejected", "len", len(info.InitialData))
		}
	}
	return PipelineCache(obj.reg.allocate(KindPipelineCache, co)), nil
}

// GetData serializes the cache. Feeding the result back into
// CreatePipelineCache on the same backend restores the entries exactly.
func (c PipelineCache) GetData() ([]byte, error) {
	co, err := resolve[*pipelineCacheObject](Handle(c), KindPipelineCache)
	if err != nil {
		return nil, err
	}

	co.mu.Lock()
	defer co.mu.Unlock()

	var buf bytes.Buffer
	buf.Write(cacheMagic[:])
	writeU32(&buf, cacheVersion)
	writeU32(&buf, uint32(len(co.backend)))
	buf.WriteString(co.backend)
	writeU32(&buf, uint32(len(co.entries)))

	keys := make([]string, 0, len(co.entries))
	for k := range co.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeU32(&buf, uint32(len(k)))
		buf.WriteString(k)
		data := co.entries[k]
		writeU32(&buf, uint32(len(data)))
		buf.Write(data)
	}
	return buf.Bytes(), nil
}

// EntryCount reports how many pipelines the cache has seen.
func (c PipelineCache) EntryCount() (int, error) {
	co, err := resolve[*pipelineCacheObject](Handle(c), KindPipelineCache)
	if err != nil {
		return 0, err
	}
	co.mu.Lock()
	defer co.mu.Unlock()
	return len(co.entries), nil
}

// Merge folds the entries of src caches into this one.
func (c PipelineCache) Merge(srcs []PipelineCache) error {
	co, err := resolve[*pipelineCacheObject](Handle(c), KindPipelineCache)
	if err != nil {
		return err
	}
	for _, s := range srcs {
		so, err := resolve[*pipelineCacheObject](Handle(s), KindPipelineCache)
		if err != nil {
			return err
		}
		so.mu.Lock()
		entries := make(map[string][]byte, len(so.entries))
		for k, v := range so.entries {
			entries[k] = v
		}
		so.mu.Unlock()

		co.mu.Lock()
		for k, v := range entries {
			co.entries[k] = v
		}
		co.mu.Unlock()
	}
	return nil
}

func (c PipelineCache) Destroy() error {
	if _, err := resolve[*pipelineCacheObject](Handle(c), KindPipelineCache); err != nil {
		return err
	}
	reg := currentRegistry()
	if reg == nil {
		return Error(ErrorInitializationFailed)
	}
	reg.destroy(Handle(c), KindPipelineCache, nil)
	return nil
}

// noteCacheEntry records a pipeline digest into a cache handle, silently
// skipping the null handle and stale handles so pipeline creation never
// fails on cache trouble.
func noteCacheEntry(c PipelineCache, digest string) {
	if Handle(c) == NullHandle {
		return
	}
	co, err := resolve[*pipelineCacheObject](Handle(c), KindPipelineCache)
	if err != nil {
		return
	}
	co.mu.Lock()
	if _, ok := co.entries[digest]; !ok {
		co.entries[digest] = []byte{}
	}
	co.mu.Unlock()
}

func parseCacheBlob(data []byte, backend string) (map[string][]byte, bool) {
	r := bytes.NewReader(data)

	var magic [4]byte
	if _, err := r.Read(magic[:]); err != nil || magic != cacheMagic {
		return nil, false
	}
	version, ok := readU32(r)
	if !ok || version != cacheVersion {
		return nil, false
	}
	nameLen, ok := readU32(r)
	if !ok || nameLen > uint32(r.Len()) {
		return nil, false
	}
	name := make([]byte, nameLen)
	if _, err := r.Read(name); err != nil || string(name) != backend {
		return nil, false
	}
	count, ok := readU32(r)
	if !ok {
		return nil, false
	}

	entries := make(map[string][]byte)
	for i := uint32(0); i < count; i++ {
		klen, ok := readU32(r)
		if !ok || klen > uint32(r.Len()) {
			return nil, false
		}
		key := make([]byte, klen)
		if _, err := r.Read(key); err != nil {
			return nil, false
		}
		dlen, ok := readU32(r)
		if !ok || dlen > uint32(r.Len()) {
			return nil, false
		}
		val := make([]byte, dlen)
		if _, err := r.Read(val); err != nil {
			return nil, false
		}
		entries[string(key)] = val
	}
	return entries, true
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readU32(r *bytes.Reader) (uint32, bool) {
	var b [4]byte
	if n, err := r.Read(b[:]); err != nil || n != 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b[:]), true
}
