package ai_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"testing"

	"github.com/myrjola/turingtrial/internal/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBase64(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(1, 1, color.RGBA{R: 200, G: 10, B: 10, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestOpenAIClient_GenerateImage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		b64      func(t *testing.T) string
		wantKind ai.ErrorKind
	}{
		{name: "png", b64: pngBase64},
		{
			name:     "not base64",
			b64:      func(*testing.T) string { return "%%%" },
			wantKind: ai.KindMalformed,
		},
		{
			name:     "not png",
			b64:      func(*testing.T) string { return base64.StdEncoding.EncodeToString([]byte("GIF89a")) },
			wantKind: ai.KindMalformed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b64 := tt.b64(t)
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/images/generations", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				_, _ = fmt.Fprintf(w, `{"created": 1700000000, "data": [{"b64_json": %q}]}`, b64)
			})

			img, err := client.GenerateImage(context.Background(), "A dim courtroom at night")
			if tt.wantKind != "" {
				require.Error(t, err)
				require.Equal(t, tt.wantKind, ai.KindOf(err))
				return
			}
			require.NoError(t, err)
			require.Equal(t, image.Rect(0, 0, 2, 2), img.Bounds())
		})
	}
}
