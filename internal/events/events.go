// Package events carries the typed progress and lifecycle events the engine
// emits towards the shell. Delivery is best effort: with no subscriber
// attached, or a subscriber that cannot keep up, events are dropped.
package events

import "sync"

// Event topics. The names and payload shapes are part of the public contract
// with the shell.
const (
	TopicUploadStart      = "upload_start"
	TopicFolderProgress   = "folder_progress"
	TopicUploadProgress   = "upload_progress"
	TopicUploadComplete   = "upload_complete"
	TopicDownloadStart    = "download_start"
	TopicDownloadProgress = "download_progress"
	TopicDownloadComplete = "download_complete"
)

// UploadStart announces a new upload operation.
type UploadStart struct {
	UploadID   string `json:"uploadId"`
	Filename   string `json:"filename"`
	Multipart  bool   `json:"multipart"`
	IsFolder   bool   `json:"isFolder"`
	TotalFiles int    `json:"totalFiles,omitempty"`
	TotalParts int64  `json:"totalParts,omitempty"`
}

// FolderProgress reports per-file progress inside a folder upload.
type FolderProgress struct {
	UploadID    string `json:"uploadId"`
	Filename    string `json:"filename"`
	CurrentFile int    `json:"currentFile"`
	TotalFiles  int    `json:"totalFiles"`
}

// UploadProgress reports a dispatched multipart part.
type UploadProgress struct {
	UploadID   string `json:"uploadId"`
	Filename   string `json:"filename"`
	Part       int64  `json:"part"`
	TotalParts int64  `json:"totalParts"`
}

// UploadComplete marks the end of a successful upload operation.
type UploadComplete struct {
	UploadID string `json:"uploadId"`
}

// DownloadStart announces a new download.
type DownloadStart struct {
	Filename   string `json:"filename"`
	TotalBytes int64  `json:"totalBytes"`
}

// DownloadProgress reports bytes received so far.
type DownloadProgress struct {
	Filename        string `json:"filename"`
	DownloadedBytes int64  `json:"downloadedBytes"`
	TotalBytes      int64  `json:"totalBytes"`
}

// DownloadComplete marks the end of a successful download.
type DownloadComplete struct {
	Filename   string `json:"filename"`
	TotalBytes int64  `json:"totalBytes"`
}

// Event pairs a topic with its payload.
type Event struct {
	Topic   string
	Payload interface{}
}

// Emitter is what the engine emits through. The Bus implements it; tests
// substitute recorders.
type Emitter interface {
	Emit(topic string, payload interface{})
}

// Bus fans events out to subscribers without ever blocking the sender.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber with the given channel buffer. The
// returned cancel func removes the subscription and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, buffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Emit delivers the event to every subscriber that has room, dropping it for
// any that do not.
func (b *Bus) Emit(topic string, payload interface{}) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- Event{Topic: topic, Payload: payload}:
		default:
		}
	}
}

// Discard is an Emitter that drops everything. Used where no shell is
// attached.
type Discard struct{}

// Emit implements Emitter.
func (Discard) Emit(string, interface{}) {}
