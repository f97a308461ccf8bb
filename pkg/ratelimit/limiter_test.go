package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter(t *testing.T) {
	t.Run("AllowsBurstThenRejects", func(t *testing.T) {
		l := NewLimiter(3, 0.001)

		for i := 0; i < 3; i++ {
			assert.True(t, l.Allow("10.0.0.1"), "request %d should pass", i+1)
		}
		assert.False(t, l.Allow("10.0.0.1"))
	})

	t.Run("AddressesAreIndependent", func(t *testing.T) {
		l := NewLimiter(1, 0.001)

		assert.True(t, l.Allow("10.0.0.1"))
		assert.False(t, l.Allow("10.0.0.1"))
		assert.True(t, l.Allow("10.0.0.2"))
	})

	t.Run("RefillsOverTime", func(t *testing.T) {
		l := NewLimiter(1, 100)

		assert.True(t, l.Allow("10.0.0.1"))
		assert.False(t, l.Allow("10.0.0.1"))

		time.Sleep(50 * time.Millisecond)
		assert.True(t, l.Allow("10.0.0.1"))
	})
}

func TestHandler(t *testing.T) {
	l := NewLimiter(1, 0.001)
	handler := l.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	request := httptest.NewRequest(http.MethodPost, "/login", nil)
	request.RemoteAddr = "10.0.0.1:54321"

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, request)
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, request)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}
