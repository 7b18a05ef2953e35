package inference

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/teslashibe/go-ecotrack/pkg/conversation"
)

// CannedReplies are the offline answers, in Thai.
var CannedReplies = []string{
	"ขอบคุณสำหรับข้อความของคุณ ฉันสามารถช่วยอะไรคุณได้อีกไหม?",
	"ฉันเข้าใจแล้ว มีอะไรอีกไหมที่คุณอยากให้ฉันช่วย?",
	"ขอบคุณที่แชร์ข้อมูลนี้ ฉันจะช่วยคุณจัดการกับเรื่องนี้",
	"ฉันกำลังประมวลผลข้อมูลของคุณ โปรดรอสักครู่",
	"ฉันพบข้อมูลที่คุณต้องการแล้ว ต้องการให้ฉันอธิบายเพิ่มเติมไหม?",
}

// Canned answers with a random pick from a fixed list after an optional
// delay. It never fails unless the context ends first.
type Canned struct {
	replies []string
	delay   time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewCanned creates a canned responder. A nil rng uses a random seed.
func NewCanned(delay time.Duration, rng *rand.Rand, replies ...string) *Canned {
	if len(replies) == 0 {
		replies = CannedReplies
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Canned{replies: replies, delay: delay, rng: rng}
}

// Name returns "canned".
func (c *Canned) Name() string { return "canned" }

// Respond picks a reply.
func (c *Canned) Respond(ctx context.Context, history []conversation.Utterance) (string, error) {
	if c.delay > 0 {
		t := time.NewTimer(c.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	}
	c.mu.Lock()
	i := c.rng.IntN(len(c.replies))
	c.mu.Unlock()
	return c.replies[i], nil
}

var _ conversation.Responder = (*Canned)(nil)
