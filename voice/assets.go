// ABOUTME: Static responder for generated audio artifacts under /tts
// ABOUTME: Serves from the configured assets directory only

package voice

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

// audioContentType maps artifact extensions to a content type. Unknown
// extensions fall back to a generic byte stream.
func audioContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".ogg":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

// validAssetName rejects names that could escape the assets directory.
func validAssetName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) {
		return false
	}
	return filepath.Base(name) == name
}

// handleAsset serves one previously generated audio artifact by filename.
// Missing artifacts are a not-found outcome for the requester, never fatal.
func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "file")
	if !validAssetName(name) {
		writeJSONError(w, http.StatusBadRequest, "invalid artifact name")
		return
	}

	f, err := os.Open(filepath.Join(s.cfg.AssetsDir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeJSONError(w, http.StatusNotFound, "no such audio artifact: "+name)
			return
		}
		s.logger.Error("opening audio artifact", "file", name, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "reading audio artifact")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeJSONError(w, http.StatusNotFound, "no such audio artifact: "+name)
		return
	}

	w.Header().Set("Content-Type", audioContentType(name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}
