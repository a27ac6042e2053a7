package tdserrors_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ha1tch/tdsdriver/tdserrors"
)

func TestConnectionErrorMessageAndUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := tdserrors.WrapConnectionError(cause, tdserrors.ESocket, "dialing db1:1433")

	if !strings.Contains(err.Error(), "ESOCKET") || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("Error(): got %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
}

func TestConnectionErrorWithFieldFormatting(t *testing.T) {
	err := tdserrors.NewConnectionError(tdserrors.ELogin, "login rejected").WithField("number", int32(18456))
	out := fmt.Sprintf("%+v", err)
	if !strings.Contains(out, "number=18456") {
		t.Fatalf("%%+v output missing field: %q", out)
	}
}

func TestRequestErrorMessageAndUnwrap(t *testing.T) {
	cause := errors.New("server closed the stream")
	err := tdserrors.WrapRequestError(cause, tdserrors.ERequest, "request failed")

	if !strings.Contains(err.Error(), "EREQUEST") {
		t.Fatalf("Error(): got %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
}

func TestCodeOfExtractsCodeFromEitherErrorKind(t *testing.T) {
	connErr := tdserrors.NewConnectionError(tdserrors.ETimeout, "connect timed out")
	if got := tdserrors.CodeOf(connErr); got != tdserrors.ETimeout {
		t.Errorf("CodeOf(ConnectionError): got %q, want %q", got, tdserrors.ETimeout)
	}

	reqErr := tdserrors.NewRequestError(tdserrors.ECancel, "canceled")
	if got := tdserrors.CodeOf(reqErr); got != tdserrors.ECancel {
		t.Errorf("CodeOf(RequestError): got %q, want %q", got, tdserrors.ECancel)
	}

	if got := tdserrors.CodeOf(errors.New("plain error")); got != "" {
		t.Errorf("CodeOf(plain error): got %q, want empty", got)
	}
}

func TestCodeOfFollowsWrappedChain(t *testing.T) {
	inner := tdserrors.NewRequestError(tdserrors.ENotInTran, "no transaction in progress")
	wrapped := fmt.Errorf("operation failed: %w", inner)
	if got := tdserrors.CodeOf(wrapped); got != tdserrors.ENotInTran {
		t.Errorf("CodeOf(wrapped): got %q, want %q", got, tdserrors.ENotInTran)
	}
}
