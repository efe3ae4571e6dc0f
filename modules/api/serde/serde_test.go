package serde

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathID(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{raw: "7", want: 7},
		{raw: "0012", want: 12},
		{raw: "0", wantErr: true},
		{raw: "-3", wantErr: true},
		{raw: "+3", wantErr: true},
		{raw: "abc", wantErr: true},
		{raw: "1.5", wantErr: true},
		{raw: "99999999999999999999", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var (
				got int64
				err error
			)
			mux := http.NewServeMux()
			mux.HandleFunc("GET /things/{id}", func(w http.ResponseWriter, r *http.Request) {
				got, err = PathID(r, "id")
			})
			mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/things/"+tt.raw, nil))

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseJsonBody(t *testing.T) {
	type body struct {
		Name string `json:"name"`
	}

	var b body
	require.NoError(t, ParseJsonBody(io.NopCloser(strings.NewReader(`{"name":"a"}`)), &b))
	assert.Equal(t, "a", b.Name)

	assert.Error(t, ParseJsonBody(io.NopCloser(strings.NewReader(`{"name":"a","x":1}`)), &b))
	assert.Error(t, ParseJsonBody(io.NopCloser(strings.NewReader(`{"name":"a"}{"name":"b"}`)), &b))
}

func TestPtr(t *testing.T) {
	p := Ptr(3)
	*p = 4
	assert.Equal(t, 4, *Ptr(*p))
}
