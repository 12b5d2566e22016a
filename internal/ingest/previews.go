package ingest

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// PreviewPrefix is the URL path under which preview references are served.
const PreviewPrefix = "/api/v1/previews/"

type preview struct {
	data      []byte
	mediaType string
}

// Previews holds displayable copies of ingested images. Nothing is reclaimed
// implicitly: the slot store or the chat transcript that owns a reference
// must Release it.
type Previews struct {
	mu    sync.RWMutex
	items map[string]preview
}

func NewPreviews() *Previews {
	return &Previews{items: make(map[string]preview)}
}

func (p *Previews) Put(data []byte, mediaType string) string {
	id := uuid.NewString()
	p.mu.Lock()
	p.items[id] = preview{data: data, mediaType: mediaType}
	p.mu.Unlock()
	return PreviewPrefix + id
}

func (p *Previews) Get(ref string) ([]byte, string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	it, ok := p.items[previewID(ref)]
	if !ok {
		return nil, "", false
	}
	return it.data, it.mediaType, true
}

func (p *Previews) Release(ref string) {
	p.mu.Lock()
	delete(p.items, previewID(ref))
	p.mu.Unlock()
}

func (p *Previews) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}

func previewID(ref string) string {
	return strings.TrimPrefix(ref, PreviewPrefix)
}
