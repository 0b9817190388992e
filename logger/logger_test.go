// Copyright 2023 The h5scan Authors.
// SPDX-License-Identifier: Apache-2.0
package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestStandardLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewStandardLogger(&buf)
	log.Infof("hello %d", 7)
	log.Debugf("not shown")
	log.Errorf("bad")

	out := buf.String()
	if !strings.Contains(out, "hello 7") {
		t.Fatalf("missing info line: %q", out)
	}
	if strings.Contains(out, "not shown") {
		t.Fatalf("debug should be suppressed: %q", out)
	}
	if !strings.Contains(out, "bad") {
		t.Fatalf("missing error line: %q", out)
	}
}

func TestVerboseLoggerDebug(t *testing.T) {
	var buf bytes.Buffer
	log := NewVerboseLogger(&buf)
	log.Debugf("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("verbose logger should emit debug: %q", buf.String())
	}
}

func TestWithPrefix(t *testing.T) {
	var buf bytes.Buffer
	log := NewStandardLogger(&buf).WithPrefix("scan: ")
	log.Infof("go")
	if !strings.Contains(buf.String(), "scan: ") {
		t.Fatalf("missing prefix: %q", buf.String())
	}
}

func TestNopLogger(t *testing.T) {
	// Must simply not panic.
	NopLogger.Printf("x")
	NopLogger.Debugf("x")
	NopLogger.WithPrefix("p").Errorf("y")
}
