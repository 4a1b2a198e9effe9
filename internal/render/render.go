// Package render turns execution status observations into result blocks.
// The Renderer owns the mapping from execution id to block; every
// observation replaces the block's content in full.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"sync"
	"time"

	"github.com/seantiz/dss/internal/model"
)

var blockTemplate = template.Must(template.New("block").Parse(
	`<div id="result-{{.ID}}"><pre>{{.JSON}}</pre>` +
		`{{if .Running}}<div class="progress"><div class="indeterminate"></div></div>{{end}}` +
		`{{if .Link}}<a href="{{.Link}}">best run</a>{{end}}</div>`,
))

// Block is the rendered view of one execution.
type Block struct {
	ExecutionID string                `json:"id"`
	Status      model.ExecutionStatus `json:"status"`
	HTML        template.HTML         `json:"-"`
	Updates     int                   `json:"updates"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// Renderer keeps one block per execution, in first-seen order. It is safe
// for concurrent use and implements monitor.Sink.
type Renderer struct {
	mu     sync.RWMutex
	blocks map[string]*Block
	order  []string
	now    func() time.Time
}

// NewRenderer creates an empty renderer.
func NewRenderer() *Renderer {
	return &Renderer{
		blocks: make(map[string]*Block),
		now:    time.Now,
	}
}

// Observe re-renders the block for status.ID.
func (r *Renderer) Observe(status model.ExecutionStatus) {
	html, err := HTML(status)
	if err != nil {
		html = template.HTML(template.HTMLEscapeString(err.Error()))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.blocks[status.ID]
	if !ok {
		b = &Block{ExecutionID: status.ID}
		r.blocks[status.ID] = b
		r.order = append(r.order, status.ID)
	}
	b.Status = status
	b.HTML = html
	b.Updates++
	b.UpdatedAt = r.now().UTC()
}

// Block returns a copy of the block for id.
func (r *Renderer) Block(id string) (Block, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.blocks[id]
	if !ok {
		return Block{}, false
	}
	return *b, true
}

// Blocks returns copies of all blocks in first-seen order.
func (r *Renderer) Blocks() []Block {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Block, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.blocks[id])
	}
	return out
}

// Forget drops the block for id.
func (r *Renderer) Forget(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.blocks[id]; !ok {
		return false
	}
	delete(r.blocks, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// HTML renders a single status as a result block fragment: the indented
// status JSON, a progress bar while RUNNING, and the result link if set.
func HTML(status model.ExecutionStatus) (template.HTML, error) {
	pretty, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render status %s: %w", status.ID, err)
	}

	var buf bytes.Buffer
	err = blockTemplate.Execute(&buf, struct {
		ID      string
		JSON    string
		Running bool
		Link    string
	}{
		ID:      status.ID,
		JSON:    string(pretty),
		Running: status.Running(),
		Link:    status.Link,
	})
	if err != nil {
		return "", fmt.Errorf("render status %s: %w", status.ID, err)
	}
	return template.HTML(buf.String()), nil
}
