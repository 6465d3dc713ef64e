package health

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestStatusWithoutDatabase(t *testing.T) {
	svc := NewService("stackdocs", "1.2.3", "dev", nil)
	status, ok := svc.Status(context.Background())
	if !ok {
		t.Fatalf("expected healthy")
	}
	if status["app"] != "stackdocs" || status["version"] != "1.2.3" || status["database"] != "memory" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestStatusReportsDatabase(t *testing.T) {
	tests := []struct {
		name     string
		pingErr  error
		wantOK   bool
		wantText string
	}{
		{name: "up", wantOK: true, wantText: "ok"},
		{name: "down", pingErr: errors.New("connection refused"), wantOK: false, wantText: "unavailable"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
			if err != nil {
				t.Fatalf("sqlmock.New: %v", err)
			}
			defer db.Close()
			mock.ExpectPing().WillReturnError(tc.pingErr)

			status, ok := NewService("stackdocs", "1.2.3", "production", db).Status(context.Background())
			if ok != tc.wantOK {
				t.Fatalf("expected ok=%v, got %v", tc.wantOK, ok)
			}
			if status["database"] != tc.wantText {
				t.Fatalf("expected database %q, got %v", tc.wantText, status["database"])
			}
		})
	}
}
