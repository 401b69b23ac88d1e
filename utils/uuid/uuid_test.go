package uuid_test

import (
	"testing"

	"github.com/SpeedReach/surrealdb/utils/uuid"
)

func TestParse(t *testing.T) {
	testCases := map[string]struct {
		input string
		fail  bool
	}{
		"valid": {
			input: "b7afc077-2123-476f-bee0-43d7504f1e0a",
		},
		"nil-uuid": {
			input: "00000000-0000-0000-0000-000000000000",
			fail:  true,
		},
		"garbage": {
			input: "not-a-uuid",
			fail:  true,
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			id, err := uuid.Parse(testCase.input)

			if testCase.fail {
				if err == nil {
					t.Fatalf("expected error, got %s", id)
				}

				return
			}

			if err != nil {
				t.Fatalf("expected no error, got %s", err)
			}

			if id.String() != testCase.input {
				t.Fatalf("%s != %s", id, testCase.input)
			}
		})
	}
}

func TestMustUUID(t *testing.T) {
	if uuid.MustUUID() == uuid.MustUUID() {
		t.Fatalf("expected two random UUIDs to differ")
	}
}
