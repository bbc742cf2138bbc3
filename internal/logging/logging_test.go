package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewMapsLevelNames(t *testing.T) {
	cases := map[string]logrus.Level{
		"debug":    logrus.DebugLevel,
		"warn":     logrus.WarnLevel,
		"warning":  logrus.WarnLevel,
		"error":    logrus.ErrorLevel,
		"fatal":    logrus.FatalLevel,
		"off":      logrus.PanicLevel,
		"disabled": logrus.PanicLevel,
		"":         logrus.InfoLevel,
		"bogus":    logrus.InfoLevel,
	}
	for level, want := range cases {
		log := New(level)
		if log.GetLevel() != want {
			t.Errorf("New(%q).GetLevel() = %v, want %v", level, log.GetLevel(), want)
		}
	}
}

func TestRequestAttachesFields(t *testing.T) {
	log := New("info")
	entry := Request(log, "req-1", "my-bucket", "GET", "s3")
	if entry.Data["request_id"] != "req-1" || entry.Data["bucket"] != "my-bucket" {
		t.Fatalf("unexpected fields: %+v", entry.Data)
	}
}
