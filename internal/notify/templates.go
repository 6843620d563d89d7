package notify

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/transferbox/transferbox/internal/area"
	"github.com/transferbox/transferbox/internal/audit"
	"github.com/transferbox/transferbox/internal/content"
)

var digestTmpl = template.Must(template.New("digest").Parse(strings.TrimSpace(`
Hello {{.Recipient}},

there was recent activity in the data transfer area "{{.AreaName}}":

{{range .Actions}}  {{.When}}  {{.Event}}  {{.File}} by {{.Actor}}{{if .Detail}} ({{.Detail}}){{end}}
{{end}}
{{- if .Downloads}}
Downloads (for your information):

{{range .Downloads}}  {{.When}}  {{.Event}}  {{.File}} by {{.Actor}}
{{end}}
{{- end}}
Open the area: {{.Link}}
`) + "\n"))

var expiryTmpl = template.Must(template.New("expiry").Parse(strings.TrimSpace(`
Hello {{.Recipient}},

the following attachments will be deleted automatically soon:

{{range .Items}}  {{.ExpiresAt}}  {{.File}} ({{.Size}}) in "{{.AreaName}}"
{{end}}
Download anything you still need before the dates above.
`) + "\n"))

type digestLine struct {
	When   string
	Event  string
	File   string
	Actor  string
	Detail string
}

type digestData struct {
	Recipient string
	AreaName  string
	Actions   []digestLine
	Downloads []digestLine
	Link      string
}

type expiryLine struct {
	ExpiresAt string
	File      string
	Size      string
	AreaName  string
}

type expiryData struct {
	Recipient string
	Items     []expiryLine
}

// renderDigest builds the digest mail body for one recipient.
func renderDigest(recipient string, a *area.Area, actions, downloads []*audit.Entry, link string, actorName func(*audit.Entry) string) (string, error) {
	data := digestData{
		Recipient: recipient,
		AreaName:  a.Name,
		Link:      link,
	}
	for _, e := range actions {
		data.Actions = append(data.Actions, digestLine{
			When:   e.CreatedAt.Format("2006-01-02 15:04"),
			Event:  string(e.EventType),
			File:   e.Filename,
			Actor:  actorName(e),
			Detail: modificationDetail(e),
		})
	}
	for _, e := range downloads {
		data.Downloads = append(data.Downloads, digestLine{
			When:  e.CreatedAt.Format("2006-01-02 15:04"),
			Event: string(e.EventType),
			File:  e.Filename,
			Actor: actorName(e),
		})
	}

	var sb strings.Builder
	if err := digestTmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render digest: %w", err)
	}
	return sb.String(), nil
}

// renderExpiryWarning builds the pre-deletion warning body for one observer.
func renderExpiryWarning(recipient string, items []ExpiryItem) (string, error) {
	data := expiryData{Recipient: recipient}
	for _, item := range items {
		data.Items = append(data.Items, expiryLine{
			ExpiresAt: item.ExpiresAt.Format("2006-01-02"),
			File:      item.Attachment.Filename,
			Size:      humanize.Bytes(uint64(item.Attachment.SizeBytes)),
			AreaName:  item.Area.Name,
		})
	}

	var sb strings.Builder
	if err := expiryTmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render expiry warning: %w", err)
	}
	return sb.String(), nil
}

func modificationDetail(e *audit.Entry) string {
	if e.EventType != audit.EventModification {
		return ""
	}
	var parts []string
	if e.OldFilename != "" && e.OldFilename != e.Filename {
		parts = append(parts, fmt.Sprintf("renamed from %s", e.OldFilename))
	}
	if e.OldDescription != "" && e.OldDescription != e.Description {
		parts = append(parts, "description changed")
	}
	return strings.Join(parts, ", ")
}

// ExpiryItem is one attachment about to be purged, as shown to an observer.
type ExpiryItem struct {
	Area       *area.Area
	Attachment *content.Attachment
	ExpiresAt  time.Time
}
