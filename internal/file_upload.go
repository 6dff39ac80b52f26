package internal

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
)

// multipartSlack covers boundaries and part headers on top of the file bytes.
const multipartSlack = 1 * MB

type uploadResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
}

// HandleUpload returns the handler for POST /upload/{class}. The file is read
// from the multipart field named after the class, never past ceiling+1 bytes.
func (s *Server) HandleUpload(class MediaClass) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		if !s.uploadLimiter.Allow(clientIP(r, s.opts.TrustProxy)) {
			writeError(w, http.StatusTooManyRequests, errors.New("Too many uploads, try again later"))
			return
		}
		ceiling := s.ingestor.Ceiling(class)

		r.Body = http.MaxBytesReader(w, r.Body, ceiling+multipartSlack)
		data, part, err := readFilePart(r, string(class), ceiling)
		if err != nil {
			s.metrics.IncUploadRejected()
			var maxErr *http.MaxBytesError
			switch {
			case errors.As(err, &maxErr):
				writeError(w, http.StatusBadRequest, errors.New(class.Label()+" too large"))
			case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
				writeError(w, http.StatusBadRequest, errors.New("No "+string(class)))
			default:
				s.log.Warn("upload read failed", "class", class, "error", err)
				writeError(w, http.StatusBadRequest, errors.New("No "+string(class)))
			}
			return
		}

		url, err := s.ingestor.Ingest(r.Context(), class, data, part.FileName(), part.Header.Get("Content-Type"))
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				s.metrics.IncUploadRejected()
				writeError(w, http.StatusBadRequest, errors.New(uploadErrorText(class, verr)))
				return
			}
			s.metrics.IncUploadFailure()
			s.log.Error("upload failed", "class", class, "error", err)
			writeError(w, http.StatusInternalServerError, errors.New(class.Label()+" upload failed"))
			return
		}
		s.metrics.IncUpload()
		writeJSON(w, http.StatusOK, uploadResponse{Success: true, URL: url})
	}
}

// readFilePart streams the multipart body up to the named file field and
// reads at most ceiling+1 bytes of it.
func readFilePart(r *http.Request, field string, ceiling int64) ([]byte, *multipart.Part, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, nil, err
	}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, nil, http.ErrMissingFile
		}
		if err != nil {
			return nil, nil, err
		}
		if part.FormName() != field || part.FileName() == "" {
			_ = part.Close()
			continue
		}
		defer part.Close()
		data, err := io.ReadAll(io.LimitReader(part, ceiling+1))
		if err != nil {
			return nil, nil, err
		}
		return data, part, nil
	}
}

func uploadErrorText(class MediaClass, verr *ValidationError) string {
	switch verr.Reason {
	case ReasonMissing:
		return "No " + string(class)
	case ReasonTooLarge:
		return class.Label() + " too large"
	}
	return verr.Error()
}
