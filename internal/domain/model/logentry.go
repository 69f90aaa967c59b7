package model

// LogKind classifies a user log entry by its message text.
type LogKind string

const (
	LogKindGym        LogKind = "gym"
	LogKindConsumable LogKind = "consumable"
	LogKindOther      LogKind = "other"
)

// LogEntry is one normalized user log line.
type LogEntry struct {
	ID         string
	PlayerID   int64
	Timestamp  int64
	Kind       LogKind
	Message    string
	EnergyUsed int64
	Trains     int64
	GymID      int64
	Stat       string
	Delta      float64
	Item       string
	Quantity   int64
	// Raw is the entry as received, kept for later reprocessing.
	Raw []byte
}

// NaturalID implements Record.
func (e LogEntry) NaturalID() string { return e.ID }

// OccurredAt implements Record.
func (e LogEntry) OccurredAt() int64 { return e.Timestamp }
