package tracking

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"
)

// Animal is one tracked animal as the backend sends it. Records are kept as
// field maps because position updates carry only the fields that changed.
type Animal map[string]any

// ID returns the animal's id field as a string. Numeric ids are formatted
// without a fractional part.
func (a Animal) ID() string {
	return stringField(a, "id")
}

// Merge returns a new record holding a's fields overwritten by update's.
// Fields absent from update survive.
func (a Animal) Merge(update Animal) Animal {
	merged := make(Animal, len(a)+len(update))
	maps.Copy(merged, a)
	maps.Copy(merged, update)
	return merged
}

// Clone returns a shallow copy of the record.
func (a Animal) Clone() Animal {
	if a == nil {
		return nil
	}
	return maps.Clone(a)
}

// Alert is a backend alert. The nested `{"alert":{...}}` and flattened
// shapes both decode into this type.
type Alert struct {
	ID        string         `json:"id,omitempty"`
	AnimalID  string         `json:"animal_id,omitempty"`
	Kind      string         `json:"alert_type,omitempty"`
	Severity  string         `json:"severity,omitempty"`
	Message   string         `json:"message,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
	Fields    map[string]any `json:"-"`
}

// Key identifies an alert for de-duplication. Alerts without an id fall
// back to animal, kind and timestamp. When all three are missing the key is
// a digest of the alert's full field set.
func (a Alert) Key() string {
	if a.ID != "" {
		return a.ID
	}
	if a.AnimalID != "" || a.Kind != "" || a.Timestamp != "" {
		return strings.Join([]string{a.AnimalID, a.Kind, a.Timestamp}, "|")
	}
	return "sha256:" + a.digest()
}

// digest hashes the canonical JSON of the alert. encoding/json sorts map
// keys, so equal field sets hash equally.
func (a Alert) digest() string {
	var v any = a.Fields
	if a.Fields == nil {
		v = a
	}
	raw, err := json.Marshal(v)
	if err != nil {
		raw = []byte(a.Severity + "|" + a.Message)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// ParsedTime returns Timestamp as time.Time, or the zero time.
func (a Alert) ParsedTime() time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, a.Timestamp); err == nil {
			return t
		}
	}
	return time.Time{}
}

func alertFromFields(fields map[string]any) Alert {
	alert := Alert{
		ID:        stringField(fields, "id"),
		AnimalID:  stringField(fields, "animal_id"),
		Kind:      stringField(fields, "alert_type"),
		Severity:  stringField(fields, "severity"),
		Message:   stringField(fields, "message"),
		Timestamp: stringField(fields, "timestamp"),
		Fields:    fields,
	}
	if alert.Kind == "" {
		alert.Kind = stringField(fields, "kind")
	}
	return alert
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
