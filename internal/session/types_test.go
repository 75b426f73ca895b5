package session

import "testing"

func TestSessionValidate(t *testing.T) {
	four := []string{"a", "b", "c", "d"}
	standard := Session{ID: "s1"}
	for i := 0; i < 10; i++ {
		standard.Questions = append(standard.Questions, Question{ID: "q", Options: four})
	}
	if err := standard.Validate(); err != nil {
		t.Fatalf("ten questions of four options rejected: %v", err)
	}
	short := Session{ID: "s2", Questions: standard.Questions[:5]}
	if err := short.Validate(); err != nil {
		t.Fatalf("shorter run rejected: %v", err)
	}

	cases := map[string]Session{
		"missing id":   {Questions: standard.Questions},
		"no questions": {ID: "s3"},
		"one option":   {ID: "s4", Questions: []Question{{ID: "q", Options: []string{"only"}}}},
		"index past end": {
			ID:                   "s5",
			Questions:            standard.Questions[:2],
			CurrentQuestionIndex: 2,
		},
	}
	for name, sess := range cases {
		if err := sess.Validate(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
