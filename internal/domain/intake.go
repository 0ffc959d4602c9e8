package domain

// IntakeSource names the producer that delivered a share payload.
type IntakeSource string

const (
	SourceWeb      IntakeSource = "web"
	SourceTelegram IntakeSource = "telegram"
)

// Index fields declared on the sharedIntake collection.
const (
	IntakeFieldProcessed = "processed"
	IntakeFieldTimestamp = "timestamp"
)

// SharedIntake is a holding record for an incoming share event.
// URL, Title and Text are stored exactly as delivered.
type SharedIntake struct {
	ID        string       `json:"id"`
	URL       string       `json:"url"`
	Title     string       `json:"title"`
	Text      string       `json:"text"`
	Timestamp int64        `json:"timestamp"`
	Processed bool         `json:"processed"`
	Source    IntakeSource `json:"source,omitempty"`

	// LinkID is the link created from this record. Empty when the share
	// was absorbed as a duplicate or could not produce a link.
	LinkID string `json:"linkId,omitempty"`
}

func (s *SharedIntake) RecordID() string { return s.ID }

func (s *SharedIntake) IndexValue(field string) (string, bool) {
	switch field {
	case IntakeFieldProcessed:
		return EncodeBool(s.Processed), true
	case IntakeFieldTimestamp:
		return EncodeMillis(s.Timestamp), true
	}
	return "", false
}
