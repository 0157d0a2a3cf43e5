// Package report renders recorded payloads into human-browsable artifacts.
// The recorder only depends on the Renderer interface; the rendered
// document's internal layout is deliberately opaque to it.
package report

import (
	"context"
	"time"

	"github.com/fengqlin/GrandR/internal/record"
)

// Metadata accompanies a payload into the renderer.
type Metadata struct {
	FuncName    string
	ArgsSummary string
	Note        string
	Outcome     string
	Fingerprint string
	Duration    time.Duration
	CreatedAt   time.Time
}

// Renderer turns a payload plus execution metadata into a durable,
// resolvable reference (a path, a URL - the recorder does not interpret it).
type Renderer interface {
	Render(ctx context.Context, payload *record.Payload, meta Metadata) (ref string, err error)
}
