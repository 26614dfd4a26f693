package fsops

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"
)

func TestOpErrorMessages(t *testing.T) {
	t.Run("source not found", func(t *testing.T) {
		err := sourceNotFound("/tmp/missing")
		if err.Code != CodeSourceNotFound {
			t.Errorf("expected SourceNotFound, got %s", err.Code)
		}
		if !strings.Contains(err.Message(), "/tmp/missing") {
			t.Errorf("message should name the path: %q", err.Message())
		}
	})

	t.Run("insufficient space carries both sizes", func(t *testing.T) {
		err := &OpError{
			Code:      CodeInsufficientSpace,
			Path:      "/mnt/usb",
			Required:  10 << 20,
			Available: 1 << 20,
		}
		if !strings.Contains(err.Error(), "10485760") {
			t.Errorf("Error should include the required byte count: %q", err.Error())
		}
		msg := err.Message()
		if !strings.Contains(msg, "10.0 MiB") || !strings.Contains(msg, "1.0 MiB") {
			t.Errorf("Message should humanize both sizes: %q", msg)
		}
	})

	t.Run("unwrap exposes the cause", func(t *testing.T) {
		cause := fmt.Errorf("disk fell over")
		err := &OpError{Code: CodeIoError, Path: "/x", Cause: cause}
		if !errors.Is(err, cause) {
			t.Error("errors.Is should reach the cause")
		}
	})
}

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", cancelled())
	if !IsCode(err, CodeCancelled) {
		t.Error("IsCode should see through wrapping")
	}
	if IsCode(err, CodeIoError) {
		t.Error("IsCode should not match a different code")
	}
	if IsCode(errors.New("plain"), CodeCancelled) {
		t.Error("IsCode should reject non-OpError values")
	}
}

func TestIoErrorClassification(t *testing.T) {
	t.Run("permission errors get their own code", func(t *testing.T) {
		err := ioError("/root/secret", fmt.Errorf("open: %w", fs.ErrPermission))
		if err.Code != CodePermissionDenied {
			t.Errorf("expected PermissionDenied, got %s", err.Code)
		}
	})

	t.Run("an OpError passes through unchanged", func(t *testing.T) {
		orig := sourceNotFound("/a")
		if got := ioError("/b", orig); got != orig {
			t.Error("an existing OpError should not be re-wrapped")
		}
	})

	t.Run("everything else is an IO error", func(t *testing.T) {
		err := ioError("/x", errors.New("short write"))
		if err.Code != CodeIoError {
			t.Errorf("expected IoError, got %s", err.Code)
		}
	})
}

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{5 << 30, "5.0 GiB"},
	}
	for _, tc := range cases {
		if got := formatBytes(tc.in); got != tc.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
