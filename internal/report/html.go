package report

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/fengqlin/GrandR/internal/canon"
	"github.com/fengqlin/GrandR/internal/record"
)

// HTMLRenderer writes one self-contained HTML document per report into a
// directory and returns the file path as the report reference. Images are
// inlined as data URIs so a report stays viewable when moved.
type HTMLRenderer struct {
	dir string
}

// NewHTMLRenderer creates the report directory if needed.
func NewHTMLRenderer(dir string) (*HTMLRenderer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("new html renderer: %w", err)
	}
	return &HTMLRenderer{dir: dir}, nil
}

// Render implements Renderer. The written file is the durable reference;
// temp-file-plus-rename keeps half-written reports from ever being
// referenced.
func (r *HTMLRenderer) Render(ctx context.Context, payload *record.Payload, meta Metadata) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}

	doc, err := renderHTML(payload, meta)
	if err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("render report: new id: %w", err)
	}
	path := filepath.Join(r.dir, id.String()+".html")

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, doc, 0o644); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("render report: %w", err)
	}

	return path, nil
}

// Template data types. Everything is pre-stringified so the template stays
// logic-free and the output deterministic.
type docData struct {
	Meta  metaData
	Slots []slotData
}

type metaData struct {
	FuncName    string
	ArgsSummary string
	Note        string
	Outcome     string
	Fingerprint string
	Duration    string
	CreatedAt   string
}

type slotData struct {
	Name    string
	Kind    record.Kind
	Scalar  string
	Text    string
	Caption string
	DataURI template.URL
	Header  []string
	Rows    [][]string
}

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Meta.FuncName}}</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
table { border-collapse: collapse; margin: 1em 0; }
th, td { border: 1px solid #999; padding: 0.3em 0.8em; text-align: left; }
th { background: #eee; }
.meta { color: #555; font-size: 0.9em; }
figure { margin: 1em 0; }
figcaption { color: #555; font-size: 0.9em; }
</style>
</head>
<body>
<h1>{{.Meta.FuncName}}</h1>
<p class="meta">
fingerprint {{.Meta.Fingerprint}} &middot; {{.Meta.Outcome}} &middot; {{.Meta.Duration}} &middot; {{.Meta.CreatedAt}}<br>
args: {{.Meta.ArgsSummary}}{{if .Meta.Note}}<br>note: {{.Meta.Note}}{{end}}
</p>
{{range .Slots}}
<h2>{{.Name}}</h2>
{{if eq .Kind "table"}}<table>
<tr>{{range .Header}}<th>{{.}}</th>{{end}}</tr>
{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</table>
{{else if eq .Kind "scalar"}}<p><code>{{.Scalar}}</code></p>
{{else if eq .Kind "text"}}<p>{{.Text}}</p>
{{else if eq .Kind "image"}}<figure><img src="{{.DataURI}}" alt="{{.Name}}">{{if .Caption}}<figcaption>{{.Caption}}</figcaption>{{end}}</figure>
{{end}}{{end}}
</body>
</html>
`))

// renderHTML builds the document bytes. Pure function of its inputs, which
// is what the golden tests pin down.
func renderHTML(payload *record.Payload, meta Metadata) ([]byte, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	data := docData{
		Meta: metaData{
			FuncName:    meta.FuncName,
			ArgsSummary: meta.ArgsSummary,
			Note:        meta.Note,
			Outcome:     meta.Outcome,
			Fingerprint: meta.Fingerprint,
			Duration:    meta.Duration.String(),
			CreatedAt:   meta.CreatedAt.UTC().Format(time.RFC3339),
		},
	}

	for _, name := range payload.Names() {
		slot, _ := payload.Get(name)
		sd := slotData{Name: name, Kind: slot.Kind}

		switch slot.Kind {
		case record.KindScalar:
			sd.Scalar = cellString(slot.Scalar)
		case record.KindText:
			sd.Text = slot.Text
		case record.KindImage:
			sd.Caption = slot.Image.Caption
			sd.DataURI = template.URL(fmt.Sprintf("data:%s;base64,%s",
				slot.Image.MediaType, base64.StdEncoding.EncodeToString(slot.Image.Data)))
		case record.KindTable:
			for _, c := range slot.Table.Schema {
				sd.Header = append(sd.Header, c.Name)
			}
			for i := 0; i < slot.Table.NumRows(); i++ {
				row := make([]string, len(slot.Table.Schema))
				for j := range slot.Table.Schema {
					row[j] = cellString(slot.Table.Columns[j][i])
				}
				sd.Rows = append(sd.Rows, row)
			}
		}

		data.Slots = append(data.Slots, sd)
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cellString(v canon.Value) string {
	switch val := v.(type) {
	case canon.Null:
		return ""
	case canon.String:
		return string(val)
	case canon.Int:
		return strconv.FormatInt(int64(val), 10)
	case canon.Float:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case canon.Bool:
		return strconv.FormatBool(bool(val))
	default:
		return fmt.Sprintf("%v", v)
	}
}
