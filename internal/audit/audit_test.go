package audit

import "testing"

func TestTableNameSanitizesBucket(t *testing.T) {
	cases := map[string]string{
		"my-bucket":       "bucket_my_bucket",
		"my.bucket.name":  "bucket_my_bucket_name",
		"plainbucket":     "bucket_plainbucket",
		"UPPER-Case.99":   "bucket_UPPER_Case_99",
	}
	for in, want := range cases {
		if got := tableName(in); got != want {
			t.Errorf("tableName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNilSinkMethodsAreNoOps(t *testing.T) {
	var s *Sink
	s.RecordPut("b", "k", 10, "text/plain", false)
	s.RecordDelete("b", "k")
	if err := s.Close(); err != nil {
		t.Fatalf("Close on nil sink: %v", err)
	}
}
