package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("Should map input errors to 400", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, ErrEmptyInput.HTTPStatus)
		assert.Equal(t, http.StatusRequestEntityTooLarge, ErrPayloadTooLarge.HTTPStatus)
		assert.Equal(t, http.StatusUnsupportedMediaType, ErrUnsupportedMedia.HTTPStatus)
		assert.Equal(t, http.StatusNotFound, ErrJobNotFound.HTTPStatus)
	})

	t.Run("Should find wrapped AppError through fmt wrapping", func(t *testing.T) {
		inner := Wrap(stderrors.New("dial tcp"), CodeVectorDBError, "query failed")
		outer := fmt.Errorf("retrieve: %w", inner)

		assert.True(t, IsAppError(outer))
		got := AsAppError(outer)
		assert.Equal(t, CodeVectorDBError, got.Code)
		assert.True(t, stderrors.Is(outer, ErrVectorDB))
	})

	t.Run("Should not mutate predefined errors when adding detail", func(t *testing.T) {
		e := ErrEmptyInput.WithDetail("title=foo")
		assert.Equal(t, "title=foo", e.Detail)
		assert.Empty(t, ErrEmptyInput.Detail)
	})

	t.Run("Should wrap unknown errors", func(t *testing.T) {
		got := AsAppError(stderrors.New("x"))
		assert.Equal(t, CodeUnknown, got.Code)
		assert.Equal(t, http.StatusInternalServerError, got.HTTPStatus)
	})
}
