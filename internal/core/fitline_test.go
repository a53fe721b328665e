package core

import (
	"errors"
	"testing"

	"fitsync/pkg/domain"
)

func TestDisabledFieldsRejectEditsButFollowBroadcast(t *testing.T) {
	s, _ := newTestSession(t, 1, 2)
	line := mustLine(t, s, 1)
	if err := line.Disable("amp"); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if line.Enabled("amp") || !line.Enabled("1_T1") {
		t.Fatalf("only amp must be disabled")
	}
	if err := s.Edit(runKey(1), "amp", domain.ColumnP0, "0.2"); !errors.Is(err, domain.ErrReadOnlyColumn) {
		t.Fatalf("expected read-only error, got %v", err)
	}

	s.SetModifyAll(true)
	if err := s.Edit(runKey(2), "amp", domain.ColumnP0, "0.3"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	fields, err := line.Fields("amp")
	if err != nil {
		t.Fatalf("fields: %v", err)
	}
	if fields[domain.ColumnP0] != "0.3" || len(fields) != 6 {
		t.Fatalf("unexpected fields %v", fields)
	}
	if v := mustGet(t, s, 1, "amp", domain.ColumnP0); v.Number != 0.3 {
		t.Fatalf("broadcast must reach disabled fields, got %v", v.Number)
	}

	if err := line.Enable("amp"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if err := s.Edit(runKey(1), "amp", domain.ColumnP0, "0.4"); err != nil {
		t.Fatalf("edit after enable: %v", err)
	}
	if err := line.Disable("ghost"); !errors.Is(err, domain.ErrUnknownParameter) {
		t.Fatalf("expected unknown parameter, got %v", err)
	}
	if _, err := line.Fields("ghost"); !errors.Is(err, domain.ErrUnknownParameter) {
		t.Fatalf("expected unknown parameter, got %v", err)
	}
}
