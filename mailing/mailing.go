// Package mailing holds the persistent domain records of the system: the
// mailing templates as stored (raw header and body blocks) and the
// per-recipient records carrying contact data and tracking identity.
package mailing

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/valentin-kaiser/go-core/apperror"
)

// Mailing is one bulk email campaign. Header and Body hold the raw MIME
// source of the shared template exactly as uploaded; they are parsed into
// a tree once per mailing, never stored parsed.
type Mailing struct {
	ID          uint   `gorm:"primarykey"`
	Header      string `gorm:"type:text"`
	Body        string `gorm:"type:text"`
	TrackingURL string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Recipient is one addressee of a mailing. ContactData carries the flat
// field mapping used for template substitution, optionally including an
// "attachments" list of per-recipient attachments.
type Recipient struct {
	ID          string `gorm:"primarykey"`
	MailingID   uint   `gorm:"index"`
	Email       string
	TrackingID  string
	ContactData ContactData `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Report is one raw delivery or feedback report collected from the report
// mailbox, stored for later processing.
type Report struct {
	ID        uint   `gorm:"primarykey"`
	Raw       []byte `gorm:"type:blob"`
	CreatedAt time.Time
}

// ContactData is the recipient's field mapping. Keys are case-sensitive;
// values are scalars or nested values as stored. It serializes to a JSON
// text column.
type ContactData map[string]any

// Value implements driver.Valuer for database storage.
func (d ContactData) Value() (driver.Value, error) {
	if d == nil {
		return "{}", nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, apperror.NewError("could not serialize contact data").AddError(err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner for database retrieval.
func (d *ContactData) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*d = ContactData{}
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return apperror.NewErrorf("cannot scan %T into contact data", value)
	}
}

// AttachmentSpec describes one per-recipient attachment as supplied in the
// recipient record. Data holds the content base64-encoded, exactly as it
// arrived.
type AttachmentSpec struct {
	Filename    string
	ContentType string
	Charset     string
	Data        string
}

// Attachments extracts the attachment list from the recipient's contact
// data. Entries that are not shaped like an attachment are skipped.
func (r *Recipient) Attachments() []AttachmentSpec {
	raw, ok := r.ContactData["attachments"]
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	var specs []AttachmentSpec
	for _, entry := range list {
		fields, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		spec := AttachmentSpec{
			Filename:    stringField(fields, "filename"),
			ContentType: stringField(fields, "content-type"),
			Charset:     stringField(fields, "charset"),
			Data:        stringField(fields, "data"),
		}
		if spec.Filename == "" || spec.Data == "" {
			continue
		}
		if spec.ContentType == "" {
			spec.ContentType = "application/octet-stream"
		}
		specs = append(specs, spec)
	}
	return specs
}

func stringField(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}
