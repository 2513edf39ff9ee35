package json

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"
)

// Test data structure shaped like a flattened catalog record
type testRecord struct {
	ID        string                 `json:"id"`
	Title     string                 `json:"title"`
	Price     string                 `json:"price"`
	Tags      []string               `json:"tags"`
	Metadata  map[string]interface{} `json:"metadata"`
	UpdatedAt int64                  `json:"updated_at"`
}

func generateTestRecords(n int) []*testRecord {
	records := make([]*testRecord, n)
	for i := 0; i < n; i++ {
		records[i] = &testRecord{
			ID:    fmt.Sprintf("prod-%d", i),
			Title: "Test Product",
			Price: "19.99",
			Tags:  []string{"sale", "summer", "featured"},
			Metadata: map[string]interface{}{
				"vendor":   "acme",
				"status":   "active",
				"index":    i,
				"category": "apparel",
			},
			UpdatedAt: 1234567890,
		}
	}
	return records
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	record := generateTestRecords(1)[0]

	data, err := Marshal(record)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded testRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded.ID != record.ID || decoded.Price != record.Price {
		t.Errorf("round trip mismatch: got %+v, expected %+v", decoded, record)
	}
}

func TestMarshalToBuffer(t *testing.T) {
	record := generateTestRecords(1)[0]

	buf, err := MarshalToBuffer(record)
	if err != nil {
		t.Fatalf("MarshalToBuffer failed: %v", err)
	}
	defer PutBuffer(buf)

	var decoded testRecord
	if err := Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Unmarshal of buffered output failed: %v", err)
	}

	if decoded.ID != record.ID {
		t.Errorf("expected ID %q, got %q", record.ID, decoded.ID)
	}
}

func TestGetBufferReset(t *testing.T) {
	buf := GetBuffer()
	buf.WriteString("leftover")
	PutBuffer(buf)

	again := GetBuffer()
	defer PutBuffer(again)
	if again.Len() != 0 {
		t.Errorf("pooled buffer not reset, length %d", again.Len())
	}
}

func TestEncoderNoHTMLEscape(t *testing.T) {
	var buf bytes.Buffer
	enc := GetEncoder(&buf)
	defer PutEncoder(enc)

	if err := enc.Encode(map[string]string{"q": "a<b&c>d"}); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if !bytes.Contains(buf.Bytes(), []byte(`a<b&c>d`)) {
		t.Errorf("expected literal angle brackets with HTML escaping disabled, got %s", buf.String())
	}
}

// Benchmark standard library json.Marshal
func BenchmarkStdMarshal(b *testing.B) {
	records := generateTestRecords(100)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		for _, record := range records {
			_, err := json.Marshal(record)
			if err != nil {
				b.Fatal(err)
			}
		}
	}
}

// Benchmark pooled Marshal
func BenchmarkPooledMarshal(b *testing.B) {
	records := generateTestRecords(100)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		for _, record := range records {
			_, err := Marshal(record)
			if err != nil {
				b.Fatal(err)
			}
		}
	}
}

// Benchmark pooled buffer encoding
func BenchmarkMarshalToBuffer(b *testing.B) {
	records := generateTestRecords(100)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		for _, record := range records {
			buf, err := MarshalToBuffer(record)
			if err != nil {
				b.Fatal(err)
			}
			PutBuffer(buf)
		}
	}
}
