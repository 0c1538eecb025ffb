package memory

import (
	"strings"
	"testing"
)

// The transcript query orders by seq, so the database must assign it. An
// insert that wrote the zero value from TurnRecord would collapse every
// turn onto seq 0 and scramble transcript order.
func TestPostgresSeqAssignedByDatabase(t *testing.T) {
	if !strings.Contains(createTranscriptTurnsSQL, "seq BIGINT GENERATED ALWAYS AS IDENTITY") {
		t.Fatalf("schema does not declare seq as identity:\n%s", createTranscriptTurnsSQL)
	}

	cols := insertTurnSQL[strings.Index(insertTurnSQL, "("):strings.Index(insertTurnSQL, ")")]
	if strings.Contains(cols, "seq") {
		t.Fatalf("insert writes seq explicitly: %s", cols)
	}
	if !strings.Contains(insertTurnSQL, "RETURNING seq") {
		t.Fatalf("insert does not return the assigned seq: %s", insertTurnSQL)
	}
}
