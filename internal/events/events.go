package events

import "encoding/json"

// EventTypePostCreated 事件通道上唯一已知的事件类型
const EventTypePostCreated = "post_created"

// PostCreated 发帖事实。IsCelebrity 是发帖瞬间的快照，
// 消费端只认这个快照，绝不回查实时标记（避免阈值翻转竞态）。
type PostCreated struct {
	EventType   string  `json:"event_type"`
	PostID      int64   `json:"post_id"`
	AuthorID    int64   `json:"author_id"`
	IsCelebrity bool    `json:"is_celebrity"`
	Timestamp   float64 `json:"timestamp"` // seconds since epoch
}

func (e PostCreated) Marshal() ([]byte, error) {
	e.EventType = EventTypePostCreated
	return json.Marshal(e)
}
