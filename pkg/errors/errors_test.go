package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	pkgerrors "recordstore/pkg/errors"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, pkgerrors.KindConflict,
		pkgerrors.KindOf(pkgerrors.New(pkgerrors.KindConflict, "id reuse")))

	// Wrapping with fmt keeps the kind visible through the chain.
	wrapped := fmt.Errorf("put failed: %w", pkgerrors.New(pkgerrors.KindUnavailable, "pool exhausted"))
	assert.Equal(t, pkgerrors.KindUnavailable, pkgerrors.KindOf(wrapped))

	// Untyped errors default to internal.
	assert.Equal(t, pkgerrors.KindInternal, pkgerrors.KindOf(stderrors.New("boom")))
}

func TestIsKind(t *testing.T) {
	err := pkgerrors.New(pkgerrors.KindNotFound, "no such record")
	assert.True(t, pkgerrors.IsKind(err, pkgerrors.KindNotFound))
	assert.False(t, pkgerrors.IsKind(err, pkgerrors.KindUnavailable))
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := stderrors.New("dial tcp: connection refused")
	err := pkgerrors.Wrap(pkgerrors.KindUnavailable, "backend down", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, pkgerrors.KindUnavailable, pkgerrors.KindOf(err))
}

func TestValidation_CarriesFields(t *testing.T) {
	err := pkgerrors.Validation("payload rejected", "name", "age")
	assert.Equal(t, []string{"name", "age"}, err.Fields)
	assert.Contains(t, err.Error(), "name")
	assert.Contains(t, err.Error(), "age")
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[pkgerrors.Kind]int{
		pkgerrors.KindValidation:  http.StatusBadRequest,
		pkgerrors.KindConflict:    http.StatusConflict,
		pkgerrors.KindNotFound:    http.StatusNotFound,
		pkgerrors.KindUnavailable: http.StatusServiceUnavailable,
		pkgerrors.KindDeadline:    http.StatusGatewayTimeout,
		pkgerrors.KindInternal:    http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, pkgerrors.ToHTTPStatus(kind), string(kind))
	}
}
